package validation

import (
	"strings"

	"github.com/smallbiznis/directory/internal/business/domain"
)

// FieldError describes one offending input field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Errors lists every offending field of one payload.
type Errors struct {
	Fields []FieldError
}

func (e *Errors) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return domain.ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *Errors) Is(target error) bool {
	return target == domain.ErrValidation
}

func (e *Errors) add(field, code, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Code: code, Message: message})
}

// Has reports whether field is listed.
func (e *Errors) Has(field string) bool {
	if e == nil {
		return false
	}
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}
