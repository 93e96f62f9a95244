// Package pv describes the process variables the device binds to and
// provides in-memory implementations of them. The in-memory variables are
// what the session runs against when no control-system binding is wired in,
// and what the tests drive.
package pv

import (
	"context"
	"errors"
)

var ErrTooLong = errors.New("pv: array longer than max_len")

// Variable is a scalar process variable with change notification.
type Variable[T any] interface {
	// Wait blocks until the value changes and returns the new value.
	Wait(ctx context.Context) (T, error)
	Read() T
	Subscribe(ctx context.Context) <-chan T
}

// Array is a flow-controlled array process variable. The slice returned by
// Wait stays valid until Accept is called, and the writer is held until then.
type Array[T any] interface {
	MaxLen() int
	Wait(ctx context.Context) ([]T, error)
	Accept()
}

// ArraySink is the device-to-control-system direction of an array variable.
type ArraySink[T any] interface {
	MaxLen() int
	// TryPut publishes vals unless the previous value is still unaccepted.
	TryPut(vals []T) (bool, error)
}
