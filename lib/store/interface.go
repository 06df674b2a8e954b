package store

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Factory is a function type that opens a store.
// It lets components create their backing store without knowing the implementation.
type Factory func() (IStore, error)

// IStore is the generic interface of a persisted record collection.
// Every root key of a stats tree is stored as one record, keyed by the root key.
// Implementations must be safe for concurrent use and reads/writes of the
// same key must be linearizable.
type IStore interface {
	// Set inserts or replaces the record for key.
	Set(key string, value []byte) (err error)
	// Get returns the record for key. The boolean return value indicates whether a record was found.
	// The returned slice is owned by the caller.
	Get(key string) (value []byte, loaded bool, err error)
	// Has returns whether a record exists for key.
	Has(key string) (loaded bool, err error)
	// Delete removes the record for key. Deleting a missing key is not an error.
	Delete(key string) (err error)
	// Keys returns the keys of all records in no particular order.
	Keys() (keys []string, err error)
	// Close releases the resources of the store. Further calls return RetCClosed.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Is makes errors.Is match any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code && (t.Msg == "" || t.Msg == e.Msg)
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new store error with a formatted message.
func Errorf(code RetCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// ErrClosed matches (via errors.Is) every error returned by a closed store.
var ErrClosed = &Error{Code: RetCClosed}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the store.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCClosed                              // 4: The store was closed.
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
	case RetCClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
