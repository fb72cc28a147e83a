package engine

import "github.com/ValentinKolb/sKV/lib/datastore"

// --------------------------------------------------------------------------
// Storage abstraction implemented by the engines
// --------------------------------------------------------------------------

// Driver creates the storage of named databases.
type Driver interface {
	// Name returns the name of the engine (used for logging).
	Name() string
	// Exists reports whether persisted data for the database exists.
	Exists(name string) (bool, error)
	// Load opens the storage of a database, creating an empty one (version 0) if necessary.
	Load(name string) (Backend, error)
}

// Backend stores the data of one database.
// Run is only ever called by the scheduler goroutine of the database, one transaction at a time.
type Backend interface {
	// Version returns the stored schema version (0 for a new database).
	Version() uint64
	// HasStore reports whether an object store exists.
	HasStore(name string) bool
	// StoreNames returns the names of all object stores.
	StoreNames() []string
	// Upgrade calls fn and stores the new version. Either all changes of the upgrade
	// are persisted or none of them.
	Upgrade(version uint64, fn func(datastore.Upgrader) error) error
	// Run executes fn atomically. If fn returns an error, every change it made is rolled back.
	Run(write bool, fn func(Stores) error) error
	// Close releases the resources of the backend.
	Close() error
	// Destroy removes all persisted data. It is called after Close.
	Destroy() error
}

// Stores gives access to the object stores within Backend.Run.
type Stores interface {
	Store(name string) (Store, error)
}

// Store is one object store within Backend.Run.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Clear() error
	Count() (int, error)
}
