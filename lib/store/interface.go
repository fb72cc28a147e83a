package store

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the interface of a store handle: a key–value store on top of one
// object store of a datastore.Factory.
// Errors of the underlying datastore are returned unchanged, errors of the
// store itself are of type *Error.
type IStore interface {
	// SetItem inserts or updates a key–value pair and returns the written value.
	SetItem(key string, value []byte) (written []byte, err error)
	// GetItem returns the value for a key. The boolean return value indicates whether a value for the key was found.
	// An absent key is not an error.
	GetItem(key string) (value []byte, found bool, err error)
	// RemoveItem deletes a key–value pair. Removing an absent key succeeds.
	RemoveItem(key string) (err error)
	// Clear removes all key–value pairs.
	Clear() (err error)
	// Length returns the number of key–value pairs.
	Length() (n int, err error)
	// DeleteDatabase deletes the whole named database. The next operation creates it again.
	DeleteDatabase() (err error)
	// Supports returns whether a datastore is available.
	Supports() bool
	// Close closes the current connection, the next operation opens a new one.
	Close()
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and optionally the error that caused it.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	Err  error   // The cause (may be nil)
}

// Error implements the error interface.
func (e *Error) Error() string {
	errorCode := ""
	switch e.Code {
	case RetCInternalError:
		errorCode = "InternalError"
	case RetCUnsupportedOperation:
		errorCode = "UnsupportedOperation"
	case RetCInvalidOperation:
		errorCode = "InvalidOperation"
	default:
		errorCode = "Unknown"
	}

	if e.Err != nil {
		return fmt.Sprintf("StoreError (code %s): %s: %v", errorCode, e.Msg, e.Err)
	}
	return fmt.Sprintf("StoreError (code %s): %s", errorCode, e.Msg)
}

// Unwrap returns the cause, so errors.Is and errors.As see it.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new store error with the given code and message caused by err.
func WrapError(code RetCode, msg string, err error) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
		Err:  err,
	}
}

// IsCode reports whether err is a store error with the given code.
func IsCode(err error, code RetCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: No datastore available.
	RetCInvalidOperation                    // 3: Invalid operation (e.g. a value the codec can not handle).
)
