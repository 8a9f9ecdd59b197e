package tools

import (
	"errors"
	"fmt"
	"strings"
)

// Tool registry errors.
var (
	// ErrToolNotFound is returned when a tool is not registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolNameEmpty is returned when a tool has no name.
	ErrToolNameEmpty = errors.New("tool name cannot be empty")

	// ErrToolExecuteNil is returned when a tool has no execute function.
	ErrToolExecuteNil = errors.New("tool execute function cannot be nil")

	// ErrToolAlreadyRegistered is returned when registering a duplicate.
	ErrToolAlreadyRegistered = errors.New("tool already registered")

	// ErrMissingRequiredArg is returned when a required argument is missing.
	ErrMissingRequiredArg = errors.New("missing required argument")

	// ErrInvalidArgType is returned when an argument has the wrong type.
	ErrInvalidArgType = errors.New("invalid argument type")
)

// ToolError is a user-facing tool failure caused by bad or unmatched input
// rather than a programming bug. The research loop surfaces its message to
// the model as an observation so the model can correct itself and retry.
type ToolError struct {
	// Message describes the problem in plain language.
	Message string

	// Suggestions holds close matches when an argument almost matched a
	// known value, best first.
	Suggestions []string
}

func (e *ToolError) Error() string {
	if len(e.Suggestions) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s Did you mean: %s?", e.Message, strings.Join(e.Suggestions, ", "))
}

// NewToolError builds a ToolError with optional suggestions.
func NewToolError(message string, suggestions ...string) *ToolError {
	return &ToolError{Message: message, Suggestions: suggestions}
}

// IsToolError reports whether err is (or wraps) a ToolError, the class of
// failures the research loop treats as recoverable observations.
func IsToolError(err error) bool {
	var te *ToolError
	return errors.As(err, &te)
}
