package apperr

import (
	"errors"
	"fmt"
	"strings"
)

type Code string

const (
	CodeValidation         Code = "VALIDATION"
	CodeBackendUnavailable Code = "BACKEND_UNAVAILABLE"
	CodeQuotaExceeded      Code = "QUOTA_EXCEEDED"
	CodePartialFailure     Code = "PARTIAL_FAILURE"
	CodeNotFound           Code = "NOT_FOUND"
	CodeForbidden          Code = "FORBIDDEN"
	CodeInternal           Code = "INTERNAL"
)

// Error carries a code plus the item (file name, message id) that failed so
// callers can report it without guessing.
type Error struct {
	Code    Code   `json:"code"`
	Item    string `json:"item,omitempty"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Item != "" {
		b.WriteString(e.Item)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, item, message string) error {
	return &Error{Code: code, Item: item, Message: message}
}

func Wrap(code Code, item, message string, cause error) error {
	return &Error{Code: code, Item: item, Message: message, Cause: cause}
}

func Validation(item, message string) error {
	return New(CodeValidation, item, message)
}

func NotFound(item, message string) error {
	return New(CodeNotFound, item, message)
}

// Forbidden marks an existing item the caller may not change.
func Forbidden(item, message string) error {
	return New(CodeForbidden, item, message)
}

func QuotaExceeded(item string, cause error) error {
	return Wrap(CodeQuotaExceeded, item, "local storage quota exceeded", cause)
}

// Unavailable reports a remote failure that cannot be served locally, such as
// a write the remote had already started.
func Unavailable(item, message string, cause error) error {
	return Wrap(CodeBackendUnavailable, item, message, cause)
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		return CodePartialFailure
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// ItemOf returns the failing item recorded on err, if any.
func ItemOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Item
	}
	return ""
}
