package emaprotocol

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the controller protocol.
var (
	// ErrTimeout indicates an exchange did not complete within its timeout.
	ErrTimeout = errors.New("timed out")

	// ErrConfiguration indicates the peer address is missing or invalid.
	ErrConfiguration = errors.New("configuration error")

	// ErrMessageFormat indicates a reply that does not match the grammar.
	ErrMessageFormat = errors.New("malformed message")

	// ErrConnection indicates the stream could not be opened or failed.
	ErrConnection = errors.New("connection failed")
)

// TimeoutError is returned when the send or the receive half of an exchange
// exceeds its timeout. Any partially received reply is discarded.
type TimeoutError struct {
	Op    string // OpSend or OpReceive
	Limit time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	switch e.Op {
	case OpSend:
		return fmt.Sprintf("message not sent before timeout (%s)", e.Limit)
	case OpReceive:
		return fmt.Sprintf("no message delimiter received before timeout (%s)", e.Limit)
	default:
		return fmt.Sprintf("%s timed out after %s", e.Op, e.Limit)
	}
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Timeout reports true, matching net.Error.
func (e *TimeoutError) Timeout() bool { return true }

// ConfigurationError represents a missing or invalid host, port or
// configuration file.
type ConfigurationError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(message string, cause error) error {
	return &ConfigurationError{Message: message, Cause: cause}
}

// MessageFormatError represents a reply that could not be parsed. It carries
// the raw offending text.
type MessageFormatError struct {
	Raw    string
	Reason string
}

// Error implements the error interface.
func (e *MessageFormatError) Error() string {
	return fmt.Sprintf("malformed message %q: %s", e.Raw, e.Reason)
}

// Is reports whether target is ErrMessageFormat.
func (e *MessageFormatError) Is(target error) bool {
	return target == ErrMessageFormat
}

func newFormatError(raw, format string, args ...any) error {
	return &MessageFormatError{Raw: raw, Reason: fmt.Sprintf(format, args...)}
}

// ConnectionError represents a connection-related error.
type ConnectionError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("connection failed: %s", e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrConnection.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}

// NewConnectionError creates a new connection error.
func NewConnectionError(message string, cause error) error {
	return &ConnectionError{Message: message, Cause: cause}
}
