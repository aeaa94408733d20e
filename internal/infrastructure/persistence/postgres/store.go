package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/tutoring-hub/internal/domain/grade"
	"github.com/alem-hub/tutoring-hub/internal/domain/roster"
	"github.com/alem-hub/tutoring-hub/internal/domain/store"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// Every store transaction is one database transaction. Writers use
// READ COMMITTED; views run in a read-only REPEATABLE READ snapshot.
// ══════════════════════════════════════════════════════════════════════════════

// Store implements store.Store on PostgreSQL.
type Store struct {
	conn *Connection
}

var _ store.Store = (*Store)(nil)

// NewStore creates a Store over an open connection.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// RunInTransaction implements store.Store.
func (s *Store) RunInTransaction(ctx context.Context, fn store.TxFunc) error {
	return s.run(ctx, "RunInTransaction", writeTx, fn)
}

// View implements store.Store.
func (s *Store) View(ctx context.Context, fn store.TxFunc) error {
	return s.run(ctx, "View", snapshotTx, fn)
}

func (s *Store) run(ctx context.Context, op string, opts pgx.TxOptions, fn store.TxFunc) error {
	err := s.conn.WithTx(ctx, opts, func(tx pgx.Tx) error {
		return fn(ctx, txHandle{q: tx})
	})
	return classify(op, err, nil, nil)
}

type txHandle struct {
	q Querier
}

func (t txHandle) Roster() roster.Repository { return rosterRepo{q: t.q} }
func (t txHandle) Grades() grade.Repository  { return gradeRepo{q: t.q} }
