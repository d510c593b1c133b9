package model

import (
	"errors"
	"fmt"
)

// ErrorCode classifies errors returned by the core.
type ErrorCode string

const (
	ErrCodeFetch      ErrorCode = "FETCH_FAILURE"
	ErrCodeScript     ErrorCode = "SCRIPT_FAILURE"
	ErrCodeIntegrity  ErrorCode = "INTEGRITY_VIOLATION"
	ErrCodeImport     ErrorCode = "IMPORT_FAILURE"
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeStorage    ErrorCode = "STORAGE_ERROR"
)

// Error is a structured error carrying a code.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new coded error.
func NewError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func NewFetchFailure(message string, err error) *Error {
	return NewError(ErrCodeFetch, message, err)
}

func NewScriptFailure(message string, err error) *Error {
	return NewError(ErrCodeScript, message, err)
}

func NewImportFailure(message string, err error) *Error {
	return NewError(ErrCodeImport, message, err)
}

func NewValidationError(message string, err error) *Error {
	return NewError(ErrCodeValidation, message, err)
}

func NewStorageError(message string, err error) *Error {
	return NewError(ErrCodeStorage, message, err)
}

// Integrityf builds an integrity violation with a formatted message.
func Integrityf(format string, args ...any) *Error {
	return NewError(ErrCodeIntegrity, fmt.Sprintf(format, args...), nil)
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
