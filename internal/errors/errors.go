// Package errors provides the classified error types used across pkgexpand.
// Every failure surfaced to the CLI carries a Kind so main can map it to the
// right exit status and log line.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an extraction failure.
type Kind int

const (
	// KindUnknown is the zero value for errors that were never classified.
	KindUnknown Kind = iota
	// KindUsage marks a bad invocation (flags, arguments, patterns).
	KindUsage
	// KindFormat marks a malformed pbzx or container structure.
	KindFormat
	// KindPathSecurity marks an entry pathname that could escape the
	// output tree (absolute path or ".." segment).
	KindPathSecurity
	// KindResource marks an OS-level failure (mkdir, open, write).
	KindResource
	// KindCollaborator marks a failure reported by an archive reader or
	// disk writer library.
	KindCollaborator
)

// String returns a short label for the kind, used in log output.
func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindFormat:
		return "format"
	case KindPathSecurity:
		return "path-security"
	case KindResource:
		return "resource"
	case KindCollaborator:
		return "collaborator"
	default:
		return "unknown"
	}
}

// Error is a classified error with an optional underlying cause.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Kind returns the error's classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// NewUsageError creates an error for a malformed invocation.
func NewUsageError(msg string) *Error {
	return &Error{kind: KindUsage, msg: msg}
}

// NewFormatError creates an error for malformed container framing.
func NewFormatError(msg string, cause error) *Error {
	return &Error{kind: KindFormat, msg: msg, cause: cause}
}

// NewPathSecurityError creates an error for a suspicious entry pathname.
// These are always fatal; a suspicious path is never silently skipped.
func NewPathSecurityError(msg string) *Error {
	return &Error{kind: KindPathSecurity, msg: msg}
}

// NewResourceError creates an error for an OS-level failure, keeping the
// OS-reported cause in the message chain.
func NewResourceError(msg string, cause error) *Error {
	return &Error{kind: KindResource, msg: msg, cause: cause}
}

// NewCollaboratorError creates an error carrying a library's diagnostic.
func NewCollaboratorError(msg string, cause error) *Error {
	return &Error{kind: KindCollaborator, msg: msg, cause: cause}
}

// KindOf walks the error chain and returns the first classification found,
// or KindUnknown when the chain carries none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}
