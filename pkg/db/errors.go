package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether the provided error is a unique
// constraint violation. When constraintName is given it must match the
// violated constraint; this is how the ledger detects a lost
// sequence-number race. SQLite errors are matched on message text since
// the driver does not expose structured constraint data.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != uniqueViolationCode {
			return false
		}
		if constraintName == "" {
			return true
		}
		return pgErr.ConstraintName == constraintName
	}

	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") &&
		!strings.Contains(msg, "duplicate key value") {
		return false
	}
	if constraintName == "" {
		return true
	}
	return strings.Contains(msg, constraintName) || strings.Contains(msg, "UNIQUE constraint failed")
}
