package store

import (
	"fmt"

	"github.com/ValentinKolb/paperKV/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() (db.KVDB, error)

// IStore is the synchronous storage capability a book works on.
// All methods return a *Error (nil on success) and must be safe for concurrent use:
// callers never lock around them.
type IStore interface {
	// Set inserts or updates a key–value pair.
	Set(key string, value []byte) (err error)
	// Get return the value for a key. The boolean return value indicates whether a value for the key was found.
	// A missing key is not an error.
	Get(key string) (value []byte, loaded bool, err error)
	// Has returns whether a key exists in the store.
	Has(key string) (loaded bool, err error)
	// Delete deletes a key–value pair. Deleting a missing key is not an error.
	Delete(key string) (err error)
	// Clear deletes all key–value pairs. Clearing an empty store is not an error.
	Clear() (err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
	// Close releases the resources held by the store. The store must not be used afterward.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and optionally the error that caused it.
type Error struct {
	Code  RetCode // The return code
	Msg   string  // The error message.
	Cause error   // The underlying error (may be nil)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("StoreError (code %s): %s: %v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the underlying error so errors.Is and errors.As see through an *Error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new store Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new store Error with the given code and message around cause.
// It returns nil if cause is nil.
func WrapError(code RetCode, msg string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{
		Code:  code,
		Msg:   msg,
		Cause: cause,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCIOError                             // 4: The storage medium failed.
	RetCSerializationError                  // 5: A value could not be encoded or decoded.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCIOError:
		return "IOError"
	case RetCSerializationError:
		return "SerializationError"
	default:
		return fmt.Sprintf("Unknown(%d)", uint64(c))
	}
}
