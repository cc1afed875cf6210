package protocol

import (
	"errors"
	"fmt"
)

// ErrUnexpectedStanza is returned when the peer sends an element the current
// exchange does not expect.
var ErrUnexpectedStanza = errors.New("protocol: unexpected stanza")

// UpdateParseError reports a malformed incremental update fragment
type UpdateParseError struct {
	Message string
	Err     error
}

// Error implements the error interface
func (e *UpdateParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("update parse error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("update parse error: %s", e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *UpdateParseError) Unwrap() error {
	return e.Err
}

func newUpdateParseError(message string, err error) *UpdateParseError {
	return &UpdateParseError{Message: message, Err: err}
}

// IsUpdateParseError reports whether err is or wraps an *UpdateParseError
func IsUpdateParseError(err error) bool {
	var pe *UpdateParseError
	return errors.As(err, &pe)
}

// Fault is an XML-RPC fault returned by the SysAP
type Fault struct {
	Code    int
	Message string
}

// Error implements the error interface
func (f *Fault) Error() string {
	return fmt.Sprintf("rpc fault %d: %s", f.Code, f.Message)
}

// StanzaError is an <iq type="error"> answer
type StanzaError struct {
	ID        string
	Type      string // cancel, modify, auth, wait
	Condition string // e.g. item-not-found
}

// Error implements the error interface
func (e *StanzaError) Error() string {
	return fmt.Sprintf("stanza error (id=%s, type=%s): %s", e.ID, e.Type, e.Condition)
}
