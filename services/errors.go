package services

import (
	"errors"
	"fmt"
)

var (
	// ErrActivityRecordingFailed is returned when an activity could not be
	// committed. The caller must not assume any XP was granted.
	ErrActivityRecordingFailed = errors.New("activity recording failed")
	ErrResetFailed             = errors.New("track reset failed")
)

// ValidationError rejects a request before anything touches the store.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
