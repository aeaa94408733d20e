package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
)

// SQLSTATE codes the repositories react to.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports a unique constraint violation.
func IsUniqueViolation(err error) bool { return pgCode(err) == codeUniqueViolation }

// IsForeignKeyViolation reports a foreign key violation.
func IsForeignKeyViolation(err error) bool { return pgCode(err) == codeForeignKeyViolation }

// classify maps a driver error onto a domain error of the given operation.
// notFound replaces pgx.ErrNoRows and conflict a unique violation. Domain
// errors pass through unchanged.
func classify(op string, err error, notFound, conflict error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows) && notFound != nil:
		return notFound
	case IsUniqueViolation(err) && conflict != nil:
		return conflict
	case IsForeignKeyViolation(err):
		return shared.WrapError("postgres", op, shared.ErrValidation, "reference to a missing row", err)
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.StorageError("postgres", op, err)
}
