// Package sqlite persists the in-memory store to a single SQLite file.
//
// The full state is written as one JSON payload per bucket inside the
// commit of every write transaction. A failed write aborts the commit, so
// the file and the memory state never diverge.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
	"github.com/alem-hub/tutoring-hub/internal/domain/store"
	"github.com/alem-hub/tutoring-hub/internal/infrastructure/persistence/memory"
)

// DefaultPath is used when no path is configured.
const DefaultPath = "tutoring-hub.db"

const (
	bucketIdentities   = "identities"
	bucketInstructors  = "instructors"
	bucketLearners     = "learners"
	bucketSubjects     = "subjects"
	bucketMeasurements = "measurements"
	bucketSequences    = "sequences"
)

var buckets = []string{
	bucketIdentities, bucketInstructors, bucketLearners,
	bucketSubjects, bucketMeasurements, bucketSequences,
}

// Store is a memory.Store whose commits are mirrored to SQLite.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at path and loads its state.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, shared.StorageError("sqlite", "Open", fmt.Errorf("create dirs: %w", err))
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, shared.StorageError("sqlite", "Open", err)
	}
	// a single connection keeps writes ordered
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, shared.StorageError("sqlite", "Open", fmt.Errorf("create state table: %w", err))
	}

	snapshot, err := load(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, shared.StorageError("sqlite", "Load", err)
	}

	s := &Store{db: db, path: path}
	s.Store = memory.New(memory.WithSnapshot(snapshot), memory.WithCommitHook(s.persist))
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

func load(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	var snapshot memory.Snapshot

	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return snapshot, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			bucket  string
			payload []byte
		)
		if err := rows.Scan(&bucket, &payload); err != nil {
			return snapshot, fmt.Errorf("scan: %w", err)
		}
		target := bucketTarget(&snapshot, bucket)
		if target == nil {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return snapshot, fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	return snapshot, rows.Err()
}

// persist is the commit hook. It writes every bucket in one SQLite transaction.
func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	for _, bucket := range buckets {
		data, err := json.Marshal(bucketTarget(&snapshot, bucket))
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`,
			bucket, data,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	return tx.Commit()
}

func bucketTarget(snapshot *memory.Snapshot, bucket string) any {
	switch bucket {
	case bucketIdentities:
		return &snapshot.Identities
	case bucketInstructors:
		return &snapshot.Instructors
	case bucketLearners:
		return &snapshot.Learners
	case bucketSubjects:
		return &snapshot.Subjects
	case bucketMeasurements:
		return &snapshot.Measurements
	case bucketSequences:
		return &snapshot.Sequences
	}
	return nil
}
