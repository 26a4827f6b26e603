// Package errors defines custom error types for frouter
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ConfigError indicates a missing or malformed configuration
	ConfigError ErrorType = "config"
	// WatchError indicates a directory could not be watched
	WatchError ErrorType = "watch"
	// UnwatchError indicates a watch handle could not be released
	UnwatchError ErrorType = "unwatch"
	// FileSystemError indicates file system related issues
	FileSystemError ErrorType = "filesystem"
	// MoveError indicates a copy-then-delete failed
	MoveError ErrorType = "move"
	// HashError indicates a content digest could not be computed
	HashError ErrorType = "hash"
	// SinkError indicates the event log rejected a begin, append or commit
	SinkError ErrorType = "sink"
	// ChannelError indicates the notification stream failed
	ChannelError ErrorType = "channel"
	// ValidationError indicates input validation issues
	ValidationError ErrorType = "validation"
	// UnknownError is reported for errors that carry no category
	UnknownError ErrorType = "unknown"
)

// RouterError is the base error type for all frouter errors
type RouterError struct {
	Type    ErrorType
	Message string
	Err     error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *RouterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *RouterError) Unwrap() error {
	return e.Err
}

// WithContext adds context to the error
func (e *RouterError) WithContext(key string, value interface{}) *RouterError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new RouterError
func New(errType ErrorType, message string, err error) *RouterError {
	return &RouterError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// TypeOf returns the category of err, or UnknownError when err is not a
// RouterError anywhere in its chain.
func TypeOf(err error) ErrorType {
	var re *RouterError
	if stderrors.As(err, &re) {
		return re.Type
	}
	return UnknownError
}

func isType(err error, t ErrorType) bool {
	var re *RouterError
	return stderrors.As(err, &re) && re.Type == t
}

// IsConfigError checks if the error is a configuration error
func IsConfigError(err error) bool { return isType(err, ConfigError) }

// IsWatchError checks if the error is a watch error
func IsWatchError(err error) bool { return isType(err, WatchError) }

// IsUnwatchError checks if the error is an unwatch error
func IsUnwatchError(err error) bool { return isType(err, UnwatchError) }

// IsFileSystemError checks if the error is a file system error
func IsFileSystemError(err error) bool { return isType(err, FileSystemError) }

// IsMoveError checks if the error is a move error
func IsMoveError(err error) bool { return isType(err, MoveError) }

// IsHashError checks if the error is a hash error
func IsHashError(err error) bool { return isType(err, HashError) }

// IsSinkError checks if the error is an event log error
func IsSinkError(err error) bool { return isType(err, SinkError) }

// IsChannelError checks if the error is a notification channel error
func IsChannelError(err error) bool { return isType(err, ChannelError) }

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool { return isType(err, ValidationError) }

// Constructor functions for each error type

// NewConfigError creates a new configuration error
func NewConfigError(message string, err error) *RouterError {
	return New(ConfigError, message, err)
}

// NewWatchError creates a new watch error
func NewWatchError(message string, err error) *RouterError {
	return New(WatchError, message, err)
}

// NewUnwatchError creates a new unwatch error
func NewUnwatchError(message string, err error) *RouterError {
	return New(UnwatchError, message, err)
}

// NewFileSystemError creates a new file system error
func NewFileSystemError(message string, err error) *RouterError {
	return New(FileSystemError, message, err)
}

// NewMoveError creates a new move error
func NewMoveError(message string, err error) *RouterError {
	return New(MoveError, message, err)
}

// NewHashError creates a new hash error
func NewHashError(message string, err error) *RouterError {
	return New(HashError, message, err)
}

// NewSinkError creates a new event log error
func NewSinkError(message string, err error) *RouterError {
	return New(SinkError, message, err)
}

// NewChannelError creates a new notification channel error
func NewChannelError(message string, err error) *RouterError {
	return New(ChannelError, message, err)
}

// NewValidationError creates a new validation error
func NewValidationError(message string, err error) *RouterError {
	return New(ValidationError, message, err)
}
