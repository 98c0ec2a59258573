package model

import "fmt"

// ErrorKind classifies failures raised by the battery core.
type ErrorKind int

const (
	// KindInvalidInput is a malformed or out of range numeric input.
	KindInvalidInput ErrorKind = iota + 1
	// KindInvalidTransition is an operation requested from an incompatible phase.
	KindInvalidTransition
	// KindConfiguration is a missing or unusable cell/pack configuration.
	KindConfiguration
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindInvalidTransition:
		return "invalid transition"
	case KindConfiguration:
		return "configuration error"
	default:
		return "unknown error"
	}
}

// Error is returned by every core operation that rejects a request. None of
// these errors are retried by the core itself.
type Error struct {
	Kind   ErrorKind
	Reason string
	// Phase is the phase the battery was in when a transition was rejected.
	Phase Phase
}

func (e *Error) Error() string {
	if e.Kind == KindInvalidTransition {
		return fmt.Sprintf("%s: %s (phase %s)", e.Kind, e.Reason, e.Phase)
	}
	if e.Reason == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Is matches any Error of the same kind so callers can use errors.Is with
// the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrConfiguration     = &Error{Kind: KindConfiguration}
)

// InvalidInput builds a KindInvalidInput error.
func InvalidInput(format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Reason: fmt.Sprintf(format, args...)}
}

// InvalidTransition builds a KindInvalidTransition error reporting the current phase.
func InvalidTransition(phase Phase, format string, args ...any) error {
	return &Error{Kind: KindInvalidTransition, Reason: fmt.Sprintf(format, args...), Phase: phase}
}

// ConfigError builds a KindConfiguration error.
func ConfigError(format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Reason: fmt.Sprintf(format, args...)}
}
