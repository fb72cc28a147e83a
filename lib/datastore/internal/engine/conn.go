package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/sKV/lib/datastore"
)

// Conn implements datastore.Connection
type Conn struct {
	id      string
	db      *database
	version uint64
	closed  atomic.Bool

	mu       sync.Mutex
	handlers []func()
	missed   bool // a version change fired before any handler was registered
}

// ID returns the unique id of the connection
func (c *Conn) ID() string {
	return c.id
}

// --------------------------------------------------------------------------
// Interface Methods (docu see datastore.Connection)
// --------------------------------------------------------------------------

func (c *Conn) Name() string {
	return c.db.name
}

func (c *Conn) Version() uint64 {
	return c.version
}

func (c *Conn) Transaction(store string, mode datastore.Mode) (datastore.Transaction, error) {
	if c.closed.Load() || c.db.deleted.Load() {
		return nil, fmt.Errorf("%w: connection %s to %q is closed", datastore.ErrInvalidState, c.id, c.db.name)
	}
	if mode != datastore.ModeReadOnly && mode != datastore.ModeReadWrite {
		return nil, fmt.Errorf("%w: invalid transaction mode %q", datastore.ErrData, mode)
	}
	if !c.db.backend.HasStore(store) {
		return nil, fmt.Errorf("%w: %q in database %q", datastore.ErrNotFound, store, c.db.name)
	}

	tx := newTx(store, mode)
	if !c.db.enqueue(tx) {
		return nil, fmt.Errorf("%w: database %q is shut down", datastore.ErrInvalidState, c.db.name)
	}
	return tx, nil
}

func (c *Conn) OnVersionChange(fn func()) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.handlers = append(c.handlers, fn)
	missed := c.missed
	c.missed = false
	c.mu.Unlock()

	// deliver a version change that happened between Open and this registration
	if missed && !c.closed.Load() {
		fn()
	}
}

func (c *Conn) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.db.disconnect(c)
	log.Debugf("closed connection %s to %q", c.id, c.db.name)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// versionChangeHandlers returns a copy of the registered callbacks.
// Without callbacks the change is remembered for the first OnVersionChange call.
func (c *Conn) versionChangeHandlers() []func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.handlers) == 0 {
		c.missed = true
		return nil
	}
	handlers := make([]func(), len(c.handlers))
	copy(handlers, c.handlers)
	return handlers
}
