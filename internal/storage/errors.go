package storage

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var uniqueViolationMarkers = []string{
	"unique constraint failed",
	"duplicate key value violates unique constraint",
	"sqlstate 23505",
}

// IsUniqueViolation reports whether err was caused by a unique index rejecting a write.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	lowered := strings.ToLower(err.Error())
	for _, marker := range uniqueViolationMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err signals a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
