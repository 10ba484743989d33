package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Error kinds. Every error returned by this package matches exactly one of
// them with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrForeignKeyViolation = errors.New("foreign key violation")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrStore               = errors.New("store error")
)

// Error is a normalized persistence failure. Unwrap exposes only the kind,
// so driver errors never leak past the gateway; Cause keeps the original
// for logs.
type Error struct {
	Op    string
	Kind  error
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Translate classifies err and wraps it in *Error. nil stays nil and an
// error that is already normalized is returned unchanged.
func Translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var normalized *Error
	if errors.As(err, &normalized) {
		return err
	}
	return &Error{Op: op, Kind: classify(err), Cause: err}
}

// NewError builds an *Error without a driver cause.
func NewError(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Cause: fmt.Errorf(format, args...)}
}

func classify(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateKey
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrForeignKeyViolation
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicateKey
		case "23503":
			return ErrForeignKeyViolation
		case "42501":
			return ErrPermissionDenied
		case "P0002", "02000":
			return ErrNotFound
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint failed"),
		strings.Contains(msg, "duplicate key"):
		return ErrDuplicateKey
	case strings.Contains(msg, "foreign key constraint"):
		return ErrForeignKeyViolation
	case strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "row-level security"):
		return ErrPermissionDenied
	case strings.Contains(msg, "no rows in result set"):
		return ErrNotFound
	}
	return ErrStore
}
