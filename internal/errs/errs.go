// Package errs defines the error kinds shared by the storage packages.
package errs

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure.
type Code string

const (
	// CodeNotFound is returned when the backing file does not exist
	CodeNotFound Code = "NOT_FOUND"
	// CodeCipherInit is returned when a cipher key has an invalid length
	CodeCipherInit Code = "CIPHER_INIT"
	// CodeCipher is returned when ciphertext cannot be decrypted
	CodeCipher Code = "CIPHER"
	// CodeSerialization is returned when a document cannot be encoded or decoded
	CodeSerialization Code = "SERIALIZATION"
	// CodeCoercion is returned when a value cannot be converted to the requested type
	CodeCoercion Code = "COERCION"
	// CodePermission is returned when the file cannot be accessed
	CodePermission Code = "PERMISSION"
	// CodeLocked is returned when the file is held by another process
	CodeLocked Code = "LOCKED"
	// CodeUninitialized is returned when a store is used before Initialize
	CodeUninitialized Code = "UNINITIALIZED"
)

// Sentinels usable with errors.Is. Every *Error matches the sentinel of its
// code.
var (
	ErrNotFound      = &Error{code: CodeNotFound, message: "not found"}
	ErrCipherInit    = &Error{code: CodeCipherInit, message: "invalid cipher key"}
	ErrCipher        = &Error{code: CodeCipher, message: "decryption failed"}
	ErrSerialization = &Error{code: CodeSerialization, message: "serialization failed"}
	ErrCoercion      = &Error{code: CodeCoercion, message: "coercion failed"}
	ErrPermission    = &Error{code: CodePermission, message: "permission denied"}
	ErrLocked        = &Error{code: CodeLocked, message: "file is locked"}
	ErrUninitialized = &Error{code: CodeUninitialized, message: "store is not initialized"}
)

// Error is a coded error with optional operation and path context.
type Error struct {
	code       Code
	message    string
	op         string
	path       string
	wrappedErr error
}

// New creates a new Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// WithOp records the operation that failed.
func (e *Error) WithOp(op string) *Error {
	e.op = op
	return e
}

// WithPath records the file the operation was acting on.
func (e *Error) WithPath(path string) *Error {
	e.path = path
	return e
}

// Wrap wraps an underlying error.
func (e *Error) Wrap(err error) *Error {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.message
	if e.op != "" {
		msg = e.op + ": " + msg
	}
	if e.path != "" {
		msg += " (" + e.path + ")"
	}
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", msg, e.wrappedErr)
	}
	return msg
}

// Code returns the error code.
func (e *Error) Code() Code {
	return e.code
}

// Op returns the failed operation, if recorded.
func (e *Error) Op() string {
	return e.op
}

// Path returns the file path, if recorded.
func (e *Error) Path() string {
	return e.path
}

// Unwrap returns the wrapped error if any.
func (e *Error) Unwrap() error {
	return e.wrappedErr
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.code == e.code
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return ""
}

// NotFound creates a not-found error for path.
func NotFound(op, path string) *Error {
	return New(CodeNotFound, "file not found").WithOp(op).WithPath(path)
}

// Serialization wraps an encoding or decoding failure.
func Serialization(op string, err error) *Error {
	return New(CodeSerialization, "serialization failed").WithOp(op).Wrap(err)
}

// Coercion reports that v could not be converted to want.
func Coercion(v any, want string) *Error {
	return Newf(CodeCoercion, "cannot convert %v to %s", v, want)
}

// Uninitialized reports that op was called on an unbound store.
func Uninitialized(op string) *Error {
	return New(CodeUninitialized, "store is not initialized").WithOp(op)
}
