package objectstore

import (
	"errors"
	"fmt"
)

var (
	// ErrObjectNotFound is returned when the bucket or the object
	// does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrTransport is returned for connectivity, authentication and
	// any other failure talking to the object store.
	ErrTransport = errors.New("object store transport error")
)

// Error describes a failed object store operation.
type Error struct {
	// Op is the operation that failed, e.g. "get".
	Op string

	// Location is the object the operation was applied to.
	Location Location

	// Kind is ErrObjectNotFound or ErrTransport.
	Kind error

	// Err is the underlying client error.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Location, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func newError(op string, loc Location, notFound bool, err error) *Error {
	kind := ErrTransport
	if notFound {
		kind = ErrObjectNotFound
	}
	return &Error{Op: op, Location: loc, Kind: kind, Err: err}
}
