// Package apperr is the error taxonomy shared by stores, services and handlers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind groups errors by how a caller should react.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindInvalid
	KindPermissionDenied
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalid:
		return "invalid"
	case KindPermissionDenied:
		return "permission_denied"
	}
	return "internal"
}

// Stable machine-readable codes.
const (
	CodeNotFound        = "not_found"
	CodeSlugTaken       = "slug_taken"
	CodeDuplicateName   = "duplicate_name"
	CodeEmailTaken      = "email_taken"
	CodeAlreadyMember   = "already_member"
	CodeInvalidFormat   = "invalid_format"
	CodeInvalidInput    = "invalid_input"
	CodeConsentRequired = "consent_required"
	CodeForbidden       = "forbidden"
	CodeInternal        = "internal"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrNotFound        = &Error{Kind: KindNotFound, Code: CodeNotFound, Message: "not found"}
	ErrSlugTaken       = &Error{Kind: KindConflict, Code: CodeSlugTaken, Message: "slug already taken"}
	ErrDuplicateName   = &Error{Kind: KindConflict, Code: CodeDuplicateName, Message: "an organization with this name already exists"}
	ErrEmailTaken      = &Error{Kind: KindConflict, Code: CodeEmailTaken, Message: "email already registered"}
	ErrAlreadyMember   = &Error{Kind: KindConflict, Code: CodeAlreadyMember, Message: "individual already belongs to an organization"}
	ErrInvalidFormat   = &Error{Kind: KindInvalid, Code: CodeInvalidFormat, Message: "invalid slug format"}
	ErrConsentRequired = &Error{Kind: KindPermissionDenied, Code: CodeConsentRequired, Message: "individual has not consented to join an organization"}
	ErrForbidden       = &Error{Kind: KindPermissionDenied, Code: CodeForbidden, Message: "insufficient permissions"}
)

// NotFound returns a NotFound error naming the missing entity.
func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: what + " not found"}
}

// Invalid returns an Invalid error for malformed input.
func Invalid(msg string) *Error {
	return &Error{Kind: KindInvalid, Code: CodeInvalidInput, Message: msg}
}

// Internal wraps a storage or transaction failure.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: msg, Err: err}
}

// KindOf classifies err. Unclassified errors are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, or CodeInternal when unclassified.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Retryable reports whether the caller may retry the same request.
func Retryable(err error) bool {
	return KindOf(err) == KindInternal
}
