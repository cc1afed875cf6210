package project

import (
	"errors"
	"fmt"
)

// ConfigParseError reports a configuration document that could not be turned
// into a consistent Project.
type ConfigParseError struct {
	Message string // What was wrong
	Serial  string // Device serial number, when the problem is device-scoped
	Channel string // Channel id, when the problem is channel-scoped
	Err     error  // Underlying decoder error (if any)
}

// Error implements the error interface
func (e *ConfigParseError) Error() string {
	var where string
	switch {
	case e.Serial != "" && e.Channel != "":
		where = fmt.Sprintf(" (device %s, channel %s)", e.Serial, e.Channel)
	case e.Serial != "":
		where = fmt.Sprintf(" (device %s)", e.Serial)
	}
	if e.Err != nil {
		return fmt.Sprintf("config parse error: %s%s: %v", e.Message, where, e.Err)
	}
	return fmt.Sprintf("config parse error: %s%s", e.Message, where)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ConfigParseError) Unwrap() error {
	return e.Err
}

func newParseError(message string, err error) *ConfigParseError {
	return &ConfigParseError{Message: message, Err: err}
}

// IsConfigParseError reports whether err is or wraps a *ConfigParseError
func IsConfigParseError(err error) bool {
	var pe *ConfigParseError
	return errors.As(err, &pe)
}
