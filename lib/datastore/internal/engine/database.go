package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/sKV/lib/datastore/internal/util"
	"github.com/google/uuid"
)

// database is the shared state of every connection to one named database
type database struct {
	name    string
	backend Backend

	// serializes upgrades and deletion of the database
	versionMu sync.Mutex
	deleted   atomic.Bool

	// transactions are executed by a single goroutine in creation order
	queue   *util.FIFO[Tx]
	stopped chan struct{}

	mu      sync.Mutex
	conns   map[*Conn]struct{}
	changed chan struct{} // closed and replaced whenever a connection closes
}

func newDatabase(name string, backend Backend) *database {
	db := &database{
		name:    name,
		backend: backend,
		queue:   util.NewFIFO[Tx](),
		stopped: make(chan struct{}),
		conns:   make(map[*Conn]struct{}),
		changed: make(chan struct{}),
	}
	go db.schedule()
	return db
}

// schedule executes the transactions of the database one after another
func (db *database) schedule() {
	defer close(db.stopped)
	for tx := range db.queue.Recv() {
		tx.execute(db.backend)
	}
}

// enqueue hands a new transaction to the scheduler.
// Returns false if the database is shut down.
func (db *database) enqueue(tx *Tx) bool {
	return db.queue.Push(tx)
}

// shutdown stops the scheduler after all queued transactions finished and closes the backend
func (db *database) shutdown() error {
	db.queue.Close()
	<-db.stopped
	return db.backend.Close()
}

// --------------------------------------------------------------------------
// Connection bookkeeping
// --------------------------------------------------------------------------

// connect registers a new connection
func (db *database) connect(version uint64) *Conn {
	c := &Conn{
		id:      uuid.NewString(),
		db:      db,
		version: version,
	}

	db.mu.Lock()
	db.conns[c] = struct{}{}
	db.mu.Unlock()

	log.Debugf("opened connection %s to %q (version %d)", c.id, db.name, version)
	return c
}

// disconnect unregisters a connection and wakes everyone waiting in waitUntilClosed
func (db *database) disconnect(c *Conn) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.conns[c]; !ok {
		return
	}
	delete(db.conns, c)
	close(db.changed)
	db.changed = make(chan struct{})
}

// fireVersionChange calls the version change callbacks of all open connections.
// The callbacks run without any lock of the database held, so they may close their connection.
func (db *database) fireVersionChange() {
	db.mu.Lock()
	conns := make([]*Conn, 0, len(db.conns))
	for c := range db.conns {
		conns = append(conns, c)
	}
	db.mu.Unlock()

	for _, c := range conns {
		if c.closed.Load() {
			continue
		}
		for _, fn := range c.versionChangeHandlers() {
			fn()
		}
	}
}

// waitUntilClosed blocks until no connection to the database is open or ctx is done
func (db *database) waitUntilClosed(ctx context.Context) error {
	for {
		db.mu.Lock()
		open := len(db.conns)
		changed := db.changed
		db.mu.Unlock()

		if open == 0 {
			return nil
		}

		log.Debugf("waiting for %d open connection(s) to %q", open, db.name)
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// closeAll closes every open connection
func (db *database) closeAll() {
	db.mu.Lock()
	conns := make([]*Conn, 0, len(db.conns))
	for c := range db.conns {
		conns = append(conns, c)
	}
	db.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
