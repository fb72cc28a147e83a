package datastore

import "errors"

// Errors reported by datastore implementations.
// Implementations may wrap them; use errors.Is to check for them.
var (
	// ErrInvalidState is returned when an operation is called on a closed or broken connection or transaction.
	ErrInvalidState = errors.New("datastore: invalid state")
	// ErrNotFound is returned when a requested object store does not exist.
	ErrNotFound = errors.New("datastore: object store not found")
	// ErrVersion is returned when a database is opened with a version lower than the stored one (or zero).
	ErrVersion = errors.New("datastore: version error")
	// ErrAborted is returned for requests of an aborted transaction.
	ErrAborted = errors.New("datastore: transaction aborted")
	// ErrConstraint is returned when an object store is created twice.
	ErrConstraint = errors.New("datastore: constraint error")
	// ErrData is returned when a request has invalid input, for example an empty key.
	ErrData = errors.New("datastore: data error")
	// ErrReadOnly is returned when a write request is issued on a read-only transaction.
	ErrReadOnly = errors.New("datastore: transaction is read-only")
	// ErrClosed is returned when the datastore itself was shut down.
	ErrClosed = errors.New("datastore: closed")
)
