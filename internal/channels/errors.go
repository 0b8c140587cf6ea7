package channels

import (
	"fmt"
)

// ErrorCode classifies transport failures for logging and retry decisions.
type ErrorCode string

const (
	// ErrCodeConfig indicates invalid adapter configuration.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"

	// ErrCodeConnection indicates a network or connection failure.
	ErrCodeConnection ErrorCode = "CONNECTION_ERROR"

	// ErrCodeSend indicates an outbound delivery failure.
	ErrCodeSend ErrorCode = "SEND_ERROR"
)

// Error is a structured transport error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrConfig creates a configuration error.
func ErrConfig(message string, err error) *Error {
	return &Error{Code: ErrCodeConfig, Message: message, Err: err}
}

// ErrConnection creates a connection error.
func ErrConnection(message string, err error) *Error {
	return &Error{Code: ErrCodeConnection, Message: message, Err: err}
}

// ErrSend creates a delivery error.
func ErrSend(message string, err error) *Error {
	return &Error{Code: ErrCodeSend, Message: message, Err: err}
}
