package review

import (
	"errors"
	"fmt"
)

var (
	// ErrVerdictRecorded is returned when a reviewer already has a verdict for the PR.
	ErrVerdictRecorded = errors.New("verdict already recorded")
	// ErrNoContext is returned for a PR number with no review context.
	ErrNoContext = errors.New("no review context")
)

// ValidationError rejects a malformed review request at the call site.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid review request: %s %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
