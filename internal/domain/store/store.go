// Package store определяет границу транзакции над реестром и оценками.
//
// Все изменения выполняются внутри RunInTransaction: либо фиксируется
// всё, что сделала функция, либо ничего. Читатели (View) видят только
// зафиксированное состояние.
package store

import (
	"context"

	"github.com/alem-hub/tutoring-hub/internal/domain/grade"
	"github.com/alem-hub/tutoring-hub/internal/domain/roster"
)

// Tx - открытая транзакция хранилища.
type Tx interface {
	Roster() roster.Repository
	Grades() grade.Repository
}

// TxFunc выполняется внутри транзакции.
type TxFunc func(ctx context.Context, tx Tx) error

// Store - явный дескриптор хранилища.
type Store interface {
	// RunInTransaction выполняет fn в транзакции.
	// Ошибка fn откатывает транзакцию и возвращается без изменений.
	RunInTransaction(ctx context.Context, fn TxFunc) error

	// View выполняет fn над зафиксированным состоянием только для чтения.
	View(ctx context.Context, fn TxFunc) error
}

// Totals - сводные счётчики хранилища.
type Totals struct {
	Identities   int `json:"identities"`
	Instructors  int `json:"instructors"`
	Learners     int `json:"learners"`
	Subjects     int `json:"subjects"`
	Measurements int `json:"measurements"`
}

// CountAll собирает Totals внутри транзакции.
func CountAll(ctx context.Context, tx Tx) (Totals, error) {
	counts, err := tx.Roster().Counts(ctx)
	if err != nil {
		return Totals{}, err
	}
	measurements, err := tx.Grades().Count(ctx)
	if err != nil {
		return Totals{}, err
	}
	return Totals{
		Identities:   counts.Identities,
		Instructors:  counts.Instructors,
		Learners:     counts.Learners,
		Subjects:     counts.Subjects,
		Measurements: measurements,
	}, nil
}
