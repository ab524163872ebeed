package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the stores react to.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

var (
	ErrUniqueViolation     = errors.New("unique constraint violation")
	ErrForeignKeyViolation = errors.New("foreign key violation")
)

// ConstraintError is a classified integrity violation. It matches
// ErrUniqueViolation or ErrForeignKeyViolation with errors.Is and unwraps to
// the driver error.
type ConstraintError struct {
	Constraint string
	kind       error
	err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%v (%s)", e.kind, e.Constraint)
}

func (e *ConstraintError) Is(target error) bool { return target == e.kind }

func (e *ConstraintError) Unwrap() error { return e.err }

// Classify turns integrity violations reported by Postgres into a
// ConstraintError. Any other error is returned unchanged.
func Classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return &ConstraintError{Constraint: pgErr.ConstraintName, kind: ErrUniqueViolation, err: err}
	case codeForeignKeyViolation:
		return &ConstraintError{Constraint: pgErr.ConstraintName, kind: ErrForeignKeyViolation, err: err}
	}
	return err
}

// ConstraintName returns the violated constraint, or "" for other errors.
func ConstraintName(err error) string {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Constraint
	}
	return ""
}

// IsNoRows reports whether err means a single-row query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
