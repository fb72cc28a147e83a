package engine

import (
	"fmt"
	"sync"

	"github.com/ValentinKolb/sKV/lib/datastore"
)

// --------------------------------------------------------------------------
// Operations recorded on a transaction
// --------------------------------------------------------------------------

type opKind int

const (
	opPut opKind = iota
	opGet
	opDelete
	opClear
	opCount
)

func (k opKind) String() string {
	switch k {
	case opPut:
		return "Put"
	case opGet:
		return "Get"
	case opDelete:
		return "Delete"
	case opClear:
		return "Clear"
	case opCount:
		return "Count"
	default:
		return "Unknown"
	}
}

func (k opKind) writes() bool {
	return k == opPut || k == opDelete || k == opClear
}

type op struct {
	kind  opKind
	key   string
	value []byte
	req   *datastore.Request
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

type txState int

const (
	txActive txState = iota
	txCommitted
	txAborted
	txFinished
)

// Tx implements datastore.Transaction.
// Requests are recorded while the transaction is active and executed by the scheduler
// once the transaction was committed and all earlier transactions of the database finished.
type Tx struct {
	store string
	mode  datastore.Mode

	mu       sync.Mutex
	state    txState
	ops      []op
	firstErr error // first request that failed while being recorded

	ready chan struct{} // closed by Commit or Abort
	done  chan struct{} // closed when the transaction finished
	err   error
}

func newTx(store string, mode datastore.Mode) *Tx {
	return &Tx{
		store: store,
		mode:  mode,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see datastore.Transaction)
// --------------------------------------------------------------------------

func (t *Tx) Mode() datastore.Mode {
	return t.mode
}

func (t *Tx) ObjectStore(name string) (datastore.ObjectStore, error) {
	if name != t.store {
		return nil, fmt.Errorf("%w: %q is not in the scope of the transaction", datastore.ErrNotFound, name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == txFinished {
		return nil, fmt.Errorf("%w: transaction already finished", datastore.ErrInvalidState)
	}
	return &objectStore{tx: t}, nil
}

func (t *Tx) Commit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != txActive {
		return
	}
	t.state = txCommitted
	close(t.ready)
}

func (t *Tx) Abort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != txActive {
		return
	}
	t.state = txAborted
	close(t.ready)
}

func (t *Tx) Done() <-chan struct{} {
	return t.done
}

func (t *Tx) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// --------------------------------------------------------------------------
// Recording and execution
// --------------------------------------------------------------------------

// record adds a request to the transaction, or fails it right away if it is invalid
func (t *Tx) record(o op) *datastore.Request {
	o.req = datastore.NewRequest()

	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	switch {
	case t.state != txActive:
		err = fmt.Errorf("%w: transaction is not active", datastore.ErrInvalidState)
	case o.kind.writes() && t.mode == datastore.ModeReadOnly:
		err = fmt.Errorf("%w: %s on store %q", datastore.ErrReadOnly, o.kind, t.store)
	case (o.kind == opPut || o.kind == opGet || o.kind == opDelete) && o.key == "":
		err = fmt.Errorf("%w: key must not be empty", datastore.ErrData)
	}

	if err != nil {
		o.req.Fail(err)
		// a failed request aborts an active transaction
		if t.state == txActive && t.firstErr == nil {
			t.firstErr = err
		}
		return o.req
	}

	if o.kind == opPut {
		valueCopy := make([]byte, len(o.value))
		copy(valueCopy, o.value)
		o.value = valueCopy
	}
	t.ops = append(t.ops, o)
	return o.req
}

// execute waits until the transaction is committed or aborted and runs it against the backend.
// Only called by the scheduler goroutine.
func (t *Tx) execute(backend Backend) {
	<-t.ready

	t.mu.Lock()
	state := t.state
	ops := t.ops
	firstErr := t.firstErr
	t.mu.Unlock()

	var err error
	switch {
	case state == txAborted:
		err = datastore.ErrAborted
	case firstErr != nil:
		err = firstErr
	default:
		err = backend.Run(t.mode == datastore.ModeReadWrite, func(stores Stores) error {
			store, err := stores.Store(t.store)
			if err != nil {
				return err
			}
			for _, o := range ops {
				if err := apply(store, o); err != nil {
					o.req.Fail(err)
					return err
				}
			}
			return nil
		})
	}

	if err != nil {
		for _, o := range ops {
			o.req.Fail(datastore.ErrAborted)
		}
	}

	t.mu.Lock()
	t.state = txFinished
	t.err = err
	t.mu.Unlock()
	close(t.done)
}

// apply runs one recorded request and settles it
func apply(store Store, o op) error {
	switch o.kind {
	case opPut:
		if err := store.Put(o.key, o.value); err != nil {
			return err
		}
		o.req.Settle(nil, false, 0, nil)
	case opGet:
		value, found, err := store.Get(o.key)
		if err != nil {
			return err
		}
		o.req.Settle(value, found, 0, nil)
	case opDelete:
		if err := store.Delete(o.key); err != nil {
			return err
		}
		o.req.Settle(nil, false, 0, nil)
	case opClear:
		if err := store.Clear(); err != nil {
			return err
		}
		o.req.Settle(nil, false, 0, nil)
	case opCount:
		n, err := store.Count()
		if err != nil {
			return err
		}
		o.req.Settle(nil, false, n, nil)
	default:
		return fmt.Errorf("%w: unknown request %s", datastore.ErrData, o.kind)
	}
	return nil
}

// --------------------------------------------------------------------------
// ObjectStore
// --------------------------------------------------------------------------

// objectStore implements datastore.ObjectStore by recording requests on its transaction
type objectStore struct {
	tx *Tx
}

func (s *objectStore) Put(key string, value []byte) *datastore.Request {
	return s.tx.record(op{kind: opPut, key: key, value: value})
}

func (s *objectStore) Get(key string) *datastore.Request {
	return s.tx.record(op{kind: opGet, key: key})
}

func (s *objectStore) Delete(key string) *datastore.Request {
	return s.tx.record(op{kind: opDelete, key: key})
}

func (s *objectStore) Clear() *datastore.Request {
	return s.tx.record(op{kind: opClear})
}

func (s *objectStore) Count() *datastore.Request {
	return s.tx.record(op{kind: opCount})
}
