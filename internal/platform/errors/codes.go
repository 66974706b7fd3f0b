// Package errors provides the coded error taxonomy shared by the log server,
// its clients and the command entrypoints.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Startup errors
	CodeBind    Code = "BIND"
	CodeListen  Code = "LISTEN"
	CodeLogOpen Code = "LOG_OPEN"

	// Connection errors
	CodeAccept           Code = "ACCEPT"
	CodeConnectionRead   Code = "CONNECTION_READ"
	CodeConnectionClosed Code = "CONNECTION_CLOSED"

	// Sink errors
	CodeLogWrite Code = "LOG_WRITE"
	CodeArchive  Code = "ARCHIVE"

	// Lifecycle errors
	CodeInvalidState Code = "INVALID_STATE"
)

// Fatal reports whether errors with this code abort the server at startup.
func (c Code) Fatal() bool {
	switch c {
	case CodeBind, CodeListen, CodeLogOpen:
		return true
	default:
		return false
	}
}
