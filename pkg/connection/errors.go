package connection

import "errors"

// ErrClosed is returned by sends on a destroyed connection, and reported to
// sends that were still queued when it was destroyed.
var ErrClosed = errors.New("connection closed")

// ErrAlreadyServing is returned when Serve is called more than once.
var ErrAlreadyServing = errors.New("connection already serving")

// TransportError reports a failed read or write on the underlying transport.
type TransportError struct {
	Op  string // "read" or "write"
	Err error
}

func (e *TransportError) Error() string {
	return "transport " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
