package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// uniqueViolationMarkers are the driver messages for a unique index conflict
// on postgres (23505), mysql (1062) and sqlite (2067).
var uniqueViolationMarkers = []string{
	"duplicate key value violates unique constraint",
	"Error 1062",
	"UNIQUE constraint failed",
}

// IsDuplicateKeyErr reports whether err is a unique index conflict. Child rows
// of a business are keyed so that two racing replaces surface here.
func IsDuplicateKeyErr(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	}
	msg := err.Error()
	for _, marker := range uniqueViolationMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
