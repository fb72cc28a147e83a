package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/sKV/lib/datastore"
	"github.com/ValentinKolb/sKV/lib/datastore/memory"
)

// TransactionHook is called before every Connection.Transaction call with the
// number of the call (starting at 1, counted over all connections of the factory).
// A non nil error is returned instead of creating the transaction.
type TransactionHook func(call int, mode datastore.Mode) error

// Factory is a scriptable datastore.Factory for tests. It wraps an in-memory
// factory and can inject failures into opening and transaction creation.
type Factory struct {
	inner *memory.Factory

	mu          sync.Mutex
	unsupported bool
	openErr     error
	openPanic   any
	openGate    chan struct{}
	deleteErr   error
	txHook      TransactionHook
	conns       map[*conn]struct{}

	opens        atomic.Int64
	transactions atomic.Int64
}

var _ datastore.Factory = (*Factory)(nil)

// NewFactory creates a new mock factory without any injected failures
func NewFactory() *Factory {
	return &Factory{
		inner: memory.NewFactory(),
		conns: make(map[*conn]struct{}),
	}
}

// --------------------------------------------------------------------------
// Scripting
// --------------------------------------------------------------------------

// SetSupported controls the result of Supported
func (f *Factory) SetSupported(supported bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsupported = !supported
}

// SetOpenErr makes every following Open fail with err (nil to reset)
func (f *Factory) SetOpenErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErr = err
}

// SetOpenPanic makes every following Open panic with v (nil to reset)
func (f *Factory) SetOpenPanic(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openPanic = v
}

// SetOpenGate makes every following Open block until gate is closed or receives a value (nil to reset)
func (f *Factory) SetOpenGate(gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openGate = gate
}

// SetDeleteErr makes every following DeleteDatabase fail with err (nil to reset)
func (f *Factory) SetDeleteErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteErr = err
}

// SetTransactionHook installs a hook that is called before every transaction is created (nil to reset)
func (f *Factory) SetTransactionHook(hook TransactionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txHook = hook
}

// Opens returns how often Open was called
func (f *Factory) Opens() int {
	return int(f.opens.Load())
}

// Transactions returns how often Connection.Transaction was called
func (f *Factory) Transactions() int {
	return int(f.transactions.Load())
}

// Connections returns all connections that are not closed yet
func (f *Factory) Connections() []datastore.Connection {
	f.mu.Lock()
	defer f.mu.Unlock()
	conns := make([]datastore.Connection, 0, len(f.conns))
	for c := range f.conns {
		conns = append(conns, c)
	}
	return conns
}

// CloseConnections closes all open connections, like a browser would when the
// database is closed externally. It returns the number of closed connections.
func (f *Factory) CloseConnections() int {
	conns := f.Connections()
	for _, c := range conns {
		c.Close()
	}
	return len(conns)
}

// Close shuts down the wrapped in-memory factory
func (f *Factory) Close() error {
	return f.inner.Close()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see datastore.Factory)
// --------------------------------------------------------------------------

func (f *Factory) Supported() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.unsupported && f.inner.Supported()
}

func (f *Factory) Open(ctx context.Context, name string, version uint64, upgrade datastore.UpgradeFunc) (datastore.Connection, error) {
	f.opens.Add(1)

	f.mu.Lock()
	gate, openPanic, openErr := f.openGate, f.openPanic, f.openErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if openPanic != nil {
		panic(openPanic)
	}
	if openErr != nil {
		return nil, openErr
	}

	inner, err := f.inner.Open(ctx, name, version, upgrade)
	if err != nil {
		return nil, err
	}

	c := &conn{Connection: inner, factory: f}
	f.mu.Lock()
	f.conns[c] = struct{}{}
	f.mu.Unlock()
	return c, nil
}

func (f *Factory) DeleteDatabase(ctx context.Context, name string) error {
	f.mu.Lock()
	deleteErr := f.deleteErr
	f.mu.Unlock()

	if deleteErr != nil {
		return deleteErr
	}
	return f.inner.DeleteDatabase(ctx, name)
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// conn wraps a connection of the in-memory factory
type conn struct {
	datastore.Connection
	factory *Factory
}

func (c *conn) Transaction(store string, mode datastore.Mode) (datastore.Transaction, error) {
	call := c.factory.transactions.Add(1)

	c.factory.mu.Lock()
	hook := c.factory.txHook
	c.factory.mu.Unlock()

	if hook != nil {
		if err := hook(int(call), mode); err != nil {
			return nil, err
		}
	}
	return c.Connection.Transaction(store, mode)
}

func (c *conn) Close() {
	c.factory.mu.Lock()
	delete(c.factory.conns, c)
	c.factory.mu.Unlock()
	c.Connection.Close()
}
