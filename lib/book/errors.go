package book

import (
	"errors"
	"fmt"
)

// ErrClosed is reported by every operation issued after Close
var ErrClosed = errors.New("book is closed")

// PanicError is the failure of a task whose operation panicked
type PanicError struct {
	Value any    // The value passed to panic
	Stack []byte // Stack of the panicking goroutine
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("operation panicked: %v", e.Value)
}

// Unwrap returns the panic value if it is an error
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
