package repo

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound so callers can match either.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrNotOwner is returned when a write names a user other than the owner of
// the target session.
var ErrNotOwner = errors.New("not the session owner")

// ErrDuplicate indicates that a row violating a unique index was rejected.
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation recognizes UNIQUE failures; glebarez/sqlite often returns
// plain-text errors rather than gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
