package errors

import stderrors "errors"

// Error is the domain error type.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Internal message (for logs/telemetry)
	Cause   error  // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message + ": " + e.Cause.Error()
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// CodeOf returns the code of the first domain error in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var domainErr *Error
	if stderrors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeUnknown
}

// Sentinels for errors.Is matching by code.
var (
	ErrBind             = New(CodeBind, "bind")
	ErrListen           = New(CodeListen, "listen")
	ErrLogOpen          = New(CodeLogOpen, "open log")
	ErrAccept           = New(CodeAccept, "accept")
	ErrConnectionRead   = New(CodeConnectionRead, "connection read")
	ErrConnectionClosed = New(CodeConnectionClosed, "connection closed")
	ErrLogWrite         = New(CodeLogWrite, "log write")
	ErrArchive          = New(CodeArchive, "archive")
	ErrInvalidState     = New(CodeInvalidState, "invalid state")
)
