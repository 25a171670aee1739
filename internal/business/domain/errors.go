package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation             = errors.New("validation_error")
	ErrAuthenticationRequired = errors.New("authentication_required")
	ErrPermissionDenied       = errors.New("permission_denied")
	ErrNotFound               = errors.New("not_found")
	ErrDatabase               = errors.New("database_error")
	ErrUnsupportedFormat      = errors.New("unsupported_format")
	ErrStorage                = errors.New("storage_error")
	ErrInvalidID              = errors.New("invalid_id")
	ErrConcurrentUpdate       = errors.New("concurrent_update")
)

// Write stages, in execution order.
const (
	StageValidate    = "validate"
	StageOwnership   = "ownership"
	StageLock        = "lock"
	StageProfile     = "profile"
	StageHours       = "hours"
	StageSocialLinks = "social_links"
	StageAttributes  = "attributes"
	StageImages      = "images"
	StageImageRows   = "image_rows"
	StageCommit      = "commit"
)

// StageError names the step of a write that failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// DatabaseError wraps a relational failure so it matches ErrDatabase.
func DatabaseError(stage string, err error) error {
	return &StageError{Stage: stage, Err: fmt.Errorf("%w: %w", ErrDatabase, err)}
}

// AtStage attaches stage to err unless it already carries one.
func AtStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the stage recorded on err, or "".
func StageOf(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}
