package datastore

import "context"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// Mode is the access mode of a transaction.
type Mode string

const (
	ModeReadOnly  Mode = "readonly"
	ModeReadWrite Mode = "readwrite"
)

// UpgradeFunc is called by Factory.Open when the requested version is higher than the stored one.
// Every object store created through the Upgrader and the new version are committed together:
// if the function returns an error, nothing of the upgrade is persisted and Open fails with that error.
type UpgradeFunc func(u Upgrader, oldVersion, newVersion uint64) error

// Upgrader is the handle passed to an UpgradeFunc.
type Upgrader interface {
	// CreateObjectStore creates a new, empty object store.
	// It returns ErrConstraint if a store with this name already exists.
	CreateObjectStore(name string) error
	// ObjectStoreNames returns the names of all object stores of the database.
	ObjectStoreNames() []string
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Factory is the entry point into an asynchronous key-value datastore.
// Databases are addressed by name and carry a schema version.
type Factory interface {
	// Supported reports whether the datastore is available in this process.
	Supported() bool

	// Open opens a connection to the named database at the given version.
	// If the database does not exist yet or its version is lower than the requested one,
	// upgrade is called before the connection is returned.
	// Opening a database at a lower version than the stored one fails with ErrVersion.
	Open(ctx context.Context, name string, version uint64, upgrade UpgradeFunc) (Connection, error)

	// DeleteDatabase deletes the named database. All open connections receive a version change
	// notification first; the call waits until every connection to the database is closed.
	// Deleting a database that does not exist succeeds.
	DeleteDatabase(ctx context.Context, name string) error
}

// Connection is a live session to one database.
type Connection interface {
	// Name returns the name of the database.
	Name() string

	// Version returns the version the connection was opened with.
	Version() uint64

	// Transaction creates a new transaction scoped to the given object store.
	// Creation is synchronous. A closed or otherwise broken connection returns ErrInvalidState,
	// an unknown object store returns ErrNotFound.
	Transaction(store string, mode Mode) (Transaction, error)

	// OnVersionChange registers a callback that is called when another party tries to upgrade
	// or delete the database. The callback should close the connection, otherwise the other
	// party is blocked.
	OnVersionChange(fn func())

	// Close closes the connection. Transactions that were already created still complete.
	// Calling Close more than once is a no-op.
	Close()
}

// Transaction is one atomic unit of work against an object store.
// Requests issued on the transaction are executed once the transaction is committed
// and every transaction created before it on the same database has finished.
type Transaction interface {
	// Mode returns the access mode of the transaction.
	Mode() Mode

	// ObjectStore returns the object store with the given name.
	// The name must be the one the transaction was created for.
	ObjectStore(name string) (ObjectStore, error)

	// Commit signals that no more requests will be issued.
	Commit()

	// Abort aborts the transaction. All issued requests fail with ErrAborted.
	Abort()

	// Done returns a channel that is closed once the transaction completed, failed or was aborted.
	Done() <-chan struct{}

	// Err returns nil if the transaction completed, otherwise the reason it failed.
	// It is only meaningful after Done is closed.
	Err() error
}

// ObjectStore issues requests against one object store of a transaction.
// Every request is settled when the owning transaction finishes.
type ObjectStore interface {
	// Put inserts or updates the value for a key.
	Put(key string, value []byte) *Request
	// Get reads the value for a key. The request reports whether the key was found.
	Get(key string) *Request
	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key string) *Request
	// Clear removes every key of the store.
	Clear() *Request
	// Count counts the keys of the store.
	Count() *Request
}
