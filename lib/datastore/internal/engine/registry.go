package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/ValentinKolb/sKV/lib/datastore"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	log = logger.GetLogger("datastore")
)

// Registry implements datastore.Factory on top of a Driver.
// It keeps one database (backend + scheduler) per name for the lifetime of the registry,
// so every connection to the same name shares the same transaction order.
type Registry struct {
	driver Driver

	mu     sync.Mutex
	dbs    map[string]*database
	closed bool
}

// NewRegistry creates a new registry for the given driver.
func NewRegistry(driver Driver) *Registry {
	return &Registry{
		driver: driver,
		dbs:    make(map[string]*database),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see datastore.Factory)
// --------------------------------------------------------------------------

func (r *Registry) Supported() bool {
	return true
}

func (r *Registry) Open(ctx context.Context, name string, version uint64, upgrade datastore.UpgradeFunc) (datastore.Connection, error) {
	if version == 0 {
		return nil, fmt.Errorf("%w: version must be greater than 0", datastore.ErrVersion)
	}

	for {
		db, err := r.database(name, true)
		if err != nil {
			return nil, err
		}

		db.versionMu.Lock()
		if db.deleted.Load() {
			// lost the race against DeleteDatabase, the next lookup creates a fresh database
			db.versionMu.Unlock()
			continue
		}

		conn, err := r.openLocked(ctx, db, version, upgrade)
		db.versionMu.Unlock()
		return conn, err
	}
}

// openLocked opens a connection to db. The caller holds db.versionMu.
func (r *Registry) openLocked(ctx context.Context, db *database, version uint64, upgrade datastore.UpgradeFunc) (datastore.Connection, error) {
	current := db.backend.Version()
	if version < current {
		return nil, fmt.Errorf("%w: requested version %d is lower than the stored version %d of %q", datastore.ErrVersion, version, current, db.name)
	}

	if version > current {
		log.Debugf("upgrading %s database %q from version %d to %d", r.driver.Name(), db.name, current, version)

		db.fireVersionChange()
		if err := db.waitUntilClosed(ctx); err != nil {
			return nil, err
		}

		err := db.backend.Upgrade(version, func(u datastore.Upgrader) error {
			if upgrade == nil {
				return nil
			}
			return upgrade(u, current, version)
		})
		if err != nil {
			log.Debugf("upgrade of %s database %q failed: %v", r.driver.Name(), db.name, err)
			if current == 0 {
				// the failed upgrade would have created the database, so it must not exist afterward
				r.drop(db)
			}
			return nil, err
		}
	}

	return db.connect(version), nil
}

func (r *Registry) DeleteDatabase(ctx context.Context, name string) error {
	for {
		db, err := r.database(name, false)
		if err != nil {
			return err
		}
		if db == nil {
			return nil
		}

		db.versionMu.Lock()
		if db.deleted.Load() {
			db.versionMu.Unlock()
			continue
		}

		db.fireVersionChange()
		if err := db.waitUntilClosed(ctx); err != nil {
			db.versionMu.Unlock()
			return err
		}

		r.drop(db)
		db.versionMu.Unlock()
		log.Debugf("deleted %s database %q", r.driver.Name(), name)
		return nil
	}
}

// Close shuts down every database of the registry. Further calls to Open fail with datastore.ErrClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	dbs := r.dbs
	r.dbs = make(map[string]*database)
	r.mu.Unlock()

	var firstErr error
	for _, db := range dbs {
		db.closeAll()
		if err := db.shutdown(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// database returns the database for name. If it is not loaded yet, it is loaded when
// create is true or persisted data exists; otherwise nil is returned.
func (r *Registry) database(name string, create bool) (*database, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, datastore.ErrClosed
	}

	if db, ok := r.dbs[name]; ok {
		return db, nil
	}

	if !create {
		exists, err := r.driver.Exists(name)
		if err != nil || !exists {
			return nil, err
		}
	}

	backend, err := r.driver.Load(name)
	if err != nil {
		return nil, err
	}

	db := newDatabase(name, backend)
	r.dbs[name] = db
	return db, nil
}

// drop removes the database from the registry and destroys its data
func (r *Registry) drop(db *database) {
	db.deleted.Store(true)

	r.mu.Lock()
	if r.dbs[db.name] == db {
		delete(r.dbs, db.name)
	}
	r.mu.Unlock()

	if err := db.shutdown(); err != nil {
		log.Warningf("closing %s database %q failed: %v", r.driver.Name(), db.name, err)
	}
	if err := db.backend.Destroy(); err != nil {
		log.Warningf("destroying %s database %q failed: %v", r.driver.Name(), db.name, err)
	}
}
