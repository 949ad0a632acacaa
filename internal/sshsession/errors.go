package sshsession

import (
	"errors"
	"fmt"
)

// Kind is an enumerated error identifier, matching the failure modes named
// throughout the design rather than ad-hoc error strings.
type Kind string

const (
	// Validation
	InvalidName                     Kind = "InvalidName"
	InvalidDimensions                Kind = "InvalidDimensions"
	InvalidSource                    Kind = "InvalidSource"
	InvalidPath                      Kind = "InvalidPath"
	ShellTerminatingCommandRejected Kind = "ShellTerminatingCommandRejected"

	// Resource
	NameTaken       Kind = "NameTaken"
	QueueFull       Kind = "QueueFull"
	SessionNotFound Kind = "SessionNotFound"
	SessionNotReady Kind = "SessionNotReady"

	// Transport / auth
	KeyFileInaccessible     Kind = "KeyFileInaccessible"
	KeyEncryptedNoPassphrase Kind = "KeyEncryptedNoPassphrase"
	TransportAuthFailed     Kind = "TransportAuthFailed"
	ConnectTimedOut         Kind = "ConnectTimeout"

	// Execution
	CommandTimedOut    Kind = "CommandTimedOut"
	CommandStale       Kind = "CommandStale"
	SessionDisconnected Kind = "SessionDisconnected"
	UnsupportedSignal  Kind = "UnsupportedSignal"
	ResizeFailed       Kind = "ResizeFailed"
)

// Error is the error type every exported operation returns, carrying a Kind
// callers can switch on without parsing message text.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error, or an
// empty Kind otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
