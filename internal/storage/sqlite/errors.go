package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common database conditions.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a unique or foreign-key constraint violation.
	ErrConflict = errors.New("conflict")

	// ErrInvalidTime indicates a zero or malformed timestamp.
	ErrInvalidTime = errors.New("invalid timestamp")
)

// wrapDBError wraps a database error with operation context, converting
// sql.ErrNoRows to ErrNotFound and constraint failures to ErrConflict so
// callers can branch on errors.Is without driver knowledge.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if isConstraintError(err) {
		return fmt.Errorf("%s: %s: %w", op, constraintDetail(err), ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isConstraintError checks for UNIQUE or FOREIGN KEY constraint violations.
// The driver reports these as plain error strings.
func isConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "FOREIGN KEY constraint failed") ||
		strings.Contains(msg, "CHECK constraint failed")
}

func constraintDetail(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, "constraint failed"); i >= 0 {
		return msg[:i+len("constraint failed")]
	}
	return "constraint failed"
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is or wraps ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
