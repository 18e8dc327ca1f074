package annotatrix

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Each typed error below matches its kind through errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrSessionState = errors.New("unexpected session state")
	ErrExternalTool = errors.New("external tool failed")
)

// ValidationError reports malformed input: a bad save payload, a disallowed
// upload, an unusable treebank id.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports an absent store or record. It is an expected
// condition and callers should treat it as recoverable.
type NotFoundError struct {
	What string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.What, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// SessionStateError reports an OAuth callback that arrived without the
// session state set up by BeginLogin.
type SessionStateError struct {
	Reason string
}

func (e *SessionStateError) Error() string {
	return "session state: " + e.Reason
}

func (e *SessionStateError) Is(target error) bool { return target == ErrSessionState }

// ExternalToolError reports a converter run that exited non-zero or timed out.
// Output holds the tool's diagnostic text.
type ExternalToolError struct {
	ExitCode int
	TimedOut bool
	Output   string
}

func (e *ExternalToolError) Error() string {
	if e.TimedOut {
		return "converter timed out"
	}
	if e.Output == "" {
		return fmt.Sprintf("converter exited with status %d", e.ExitCode)
	}
	return fmt.Sprintf("converter exited with status %d: %s", e.ExitCode, e.Output)
}

func (e *ExternalToolError) Is(target error) bool { return target == ErrExternalTool }

func validationErrorf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
