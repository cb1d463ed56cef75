package moderation

import (
	"errors"
	"fmt"
)

// Kind classifies a command failure so the command boundary can pick the
// right reply without inspecting error text.
type Kind int

const (
	KindUnknown Kind = iota
	// KindUnauthorized - caller lacks admin rights or is not the operator
	KindUnauthorized
	// KindMalformedCommand - argument count or type is wrong
	KindMalformedCommand
	// KindTargetNotMember - target resolved to someone outside the chat
	KindTargetNotMember
	// KindPlatformCallFailed - the Telegram call itself failed
	KindPlatformCallFailed
	// KindStorageFailure - a persistence call failed
	KindStorageFailure
)

// Error is a tagged command error
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("moderation error (kind %d)", e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from an error, KindUnknown if it is not tagged
func KindOf(err error) Kind {
	var modErr *Error
	if errors.As(err, &modErr) {
		return modErr.Kind
	}
	return KindUnknown
}
