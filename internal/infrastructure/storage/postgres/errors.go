package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"crm/internal/core/apperror"
)

const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// MapError converts driver errors the core cares about into AppErrors and
// wraps everything else with op. entity and key name the row for NotFound.
// Serialization failures pass through untouched so the TxManager can retry.
func MapError(err error, op, entity string, key any) error {
	if err == nil {
		return nil
	}
	if apperror.IsAppError(err) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NewNotFound(entity, key)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return apperror.NewConflict(fmt.Sprintf("%s already exists", entity)).
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		case codeForeignKeyViolation:
			return apperror.NewValidation(fmt.Sprintf("%s references a missing row", entity)).
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		case codeCheckViolation:
			return apperror.NewValidation(fmt.Sprintf("%s violates a constraint", entity)).
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// UniqueViolation returns the constraint name of a unique violation.
func UniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
