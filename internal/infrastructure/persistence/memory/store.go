// Package memory provides an in-process Store implementation.
//
// Each transaction works on a private clone of the committed state and
// swaps it in on success, so a failed transaction leaves no trace and
// readers never observe partial writes.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/alem-hub/tutoring-hub/internal/domain/grade"
	"github.com/alem-hub/tutoring-hub/internal/domain/roster"
	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
	"github.com/alem-hub/tutoring-hub/internal/domain/store"
)

// ErrReadOnly is returned when a View attempts a write.
var ErrReadOnly = errors.New("memory: write inside read-only view")

// CommitHook runs with the state a transaction is about to commit.
// Returning an error aborts the commit.
type CommitHook func(ctx context.Context, snapshot Snapshot) error

// Option configures a Store.
type Option func(*Store)

// WithCommitHook installs a hook invoked before every commit.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.hook = hook }
}

// WithSnapshot seeds the store with previously exported state.
func WithSnapshot(snapshot Snapshot) Option {
	return func(s *Store) { s.state = stateFromSnapshot(snapshot) }
}

// Store is the in-memory store.
type Store struct {
	writeMu sync.Mutex   // serialises transactions
	mu      sync.RWMutex // guards state pointer
	state   *state
	hook    CommitHook
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{state: newState()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunInTransaction implements store.Store.
func (s *Store) RunInTransaction(ctx context.Context, fn store.TxFunc) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return shared.StorageError("memory", "Begin", err)
	}

	s.mu.RLock()
	working := s.state.clone()
	s.mu.RUnlock()

	tx := &transaction{state: working}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	if s.hook != nil {
		if err := s.hook(ctx, working.snapshot()); err != nil {
			return shared.StorageError("memory", "Commit", err)
		}
	}

	s.mu.Lock()
	s.state = working
	s.mu.Unlock()
	return nil
}

// View implements store.Store. Committed states are never mutated in place,
// so the view shares the current state without copying it.
func (s *Store) View(ctx context.Context, fn store.TxFunc) error {
	s.mu.RLock()
	current := s.state
	s.mu.RUnlock()

	return fn(ctx, &transaction{state: current, readOnly: true})
}

// Export returns a copy of the committed state.
func (s *Store) Export() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.snapshot()
}

// ═══════════════════════════════════════════════════════════════════════════
// Transaction
// ═══════════════════════════════════════════════════════════════════════════

type transaction struct {
	state    *state
	readOnly bool
}

func (tx *transaction) Roster() roster.Repository { return rosterRepo{tx: tx} }
func (tx *transaction) Grades() grade.Repository  { return gradeRepo{tx: tx} }

func (tx *transaction) writable() error {
	if tx.readOnly {
		return shared.StorageError("memory", "Write", ErrReadOnly)
	}
	return nil
}
