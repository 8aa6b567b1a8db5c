// Package apperr holds the error taxonomy shared by the domain packages.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindAuthenticationRequired Kind = "authentication_required"
	KindPermissionDenied       Kind = "permission_denied"
	KindInvalidInput           Kind = "invalid_input"
	KindNotFound               Kind = "not_found"
	KindUnlinkBlocked          Kind = "unlink_blocked"
	KindStore                  Kind = "store_error"
)

// Sentinels for errors.Is checks against a kind.
var (
	ErrAuthenticationRequired = &Error{Kind: KindAuthenticationRequired, Message: "authentication required"}
	ErrPermissionDenied       = &Error{Kind: KindPermissionDenied, Message: "permission denied"}
	ErrInvalidInput           = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrNotFound               = &Error{Kind: KindNotFound, Message: "not found"}
	ErrUnlinkBlocked          = &Error{Kind: KindUnlinkBlocked, Message: "couple has linked entries"}
	ErrStore                  = &Error{Kind: KindStore, Message: "store error"}
)

var sentinels = map[Kind]*Error{
	KindAuthenticationRequired: ErrAuthenticationRequired,
	KindPermissionDenied:       ErrPermissionDenied,
	KindInvalidInput:           ErrInvalidInput,
	KindNotFound:               ErrNotFound,
	KindUnlinkBlocked:          ErrUnlinkBlocked,
	KindStore:                  ErrStore,
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinel of e, so errors.Is(err, ErrNotFound) holds for
// every not-found error. Other targets compare by identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return sentinels[e.Kind] == t
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func InvalidInput(format string, args ...any) *Error {
	return New(KindInvalidInput, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func PermissionDenied(format string, args ...any) *Error {
	return New(KindPermissionDenied, format, args...)
}

// Store wraps a repository failure, preserving its message. Errors that already
// carry a kind pass through unchanged.
func Store(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindStore, Err: err}
}

// KindOf reports the kind of err, or KindStore for untyped errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindStore
}
