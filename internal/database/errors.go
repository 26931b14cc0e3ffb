package database

import (
	"errors"

	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// Sentinel errors surfaced by the repositories.
var (
	// ErrQuizNotFound means no quiz exists with the requested id.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrDuplicateID means a quiz with the same id already exists.
	ErrDuplicateID = errors.New("duplicate quiz id")
	// ErrInvalidConfig means the quiz violates a creation-time constraint,
	// e.g. time per question outside the allowed range.
	ErrInvalidConfig = errors.New("invalid quiz configuration")
)

// isUniqueViolation recognizes duplicate-key errors for both drivers.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" // unique_violation
	}
	return false
}
