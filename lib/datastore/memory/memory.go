package memory

import (
	"fmt"
	"sync"

	"github.com/ValentinKolb/sKV/lib/datastore"
	"github.com/ValentinKolb/sKV/lib/datastore/internal/engine"
	"github.com/puzpuzpuz/xsync/v3"
)

// NewFactory creates a new in-memory datastore.
// Databases live as long as the returned factory; they are independent from other factories.
func NewFactory() *Factory {
	return &Factory{Registry: engine.NewRegistry(driver{})}
}

// Factory is the in-memory datastore.Factory
type Factory struct {
	*engine.Registry
}

var _ datastore.Factory = (*Factory)(nil)

// --------------------------------------------------------------------------
// Driver
// --------------------------------------------------------------------------

type driver struct{}

func (driver) Name() string {
	return "memory"
}

// Exists is always false, loaded databases are kept by the registry
func (driver) Exists(string) (bool, error) {
	return false, nil
}

func (driver) Load(string) (engine.Backend, error) {
	return &backend{
		stores: xsync.NewMapOf[string, *xsync.MapOf[string, []byte]](),
	}, nil
}

// --------------------------------------------------------------------------
// Backend
// --------------------------------------------------------------------------

// backend keeps every object store in its own concurrent map
type backend struct {
	mu      sync.RWMutex // Run and Upgrade are exclusive
	version uint64
	stores  *xsync.MapOf[string, *xsync.MapOf[string, []byte]]
}

func (b *backend) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

func (b *backend) HasStore(name string) bool {
	_, ok := b.stores.Load(name)
	return ok
}

func (b *backend) StoreNames() []string {
	names := make([]string, 0, b.stores.Size())
	b.stores.Range(func(name string, _ *xsync.MapOf[string, []byte]) bool {
		names = append(names, name)
		return true
	})
	return names
}

func (b *backend) Upgrade(version uint64, fn func(datastore.Upgrader) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	u := &upgrader{backend: b}
	if err := fn(u); err != nil {
		for _, name := range u.created {
			b.stores.Delete(name)
		}
		return err
	}
	b.version = version
	return nil
}

func (b *backend) Run(write bool, fn func(engine.Stores) error) error {
	if !write {
		b.mu.RLock()
		defer b.mu.RUnlock()
		return fn(&txStores{backend: b})
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	stores := &txStores{backend: b, write: true}
	if err := fn(stores); err != nil {
		stores.rollback()
		return err
	}
	return nil
}

func (b *backend) Close() error {
	return nil
}

func (b *backend) Destroy() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stores.Clear()
	b.version = 0
	return nil
}

// --------------------------------------------------------------------------
// Upgrader
// --------------------------------------------------------------------------

type upgrader struct {
	backend *backend
	created []string
}

func (u *upgrader) CreateObjectStore(name string) error {
	if name == "" {
		return fmt.Errorf("%w: object store name must not be empty", datastore.ErrData)
	}
	_, loaded := u.backend.stores.LoadOrStore(name, xsync.NewMapOf[string, []byte]())
	if loaded {
		return fmt.Errorf("%w: object store %q already exists", datastore.ErrConstraint, name)
	}
	u.created = append(u.created, name)
	return nil
}

func (u *upgrader) ObjectStoreNames() []string {
	return u.backend.StoreNames()
}

// --------------------------------------------------------------------------
// Transaction view with undo log
// --------------------------------------------------------------------------

type txStores struct {
	backend *backend
	write   bool
	undo    []func()
}

func (s *txStores) Store(name string) (engine.Store, error) {
	data, ok := s.backend.stores.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", datastore.ErrNotFound, name)
	}
	return &store{data: data, tx: s}, nil
}

// rollback reverts every change in reverse order
func (s *txStores) rollback() {
	for i := len(s.undo) - 1; i >= 0; i-- {
		s.undo[i]()
	}
	s.undo = nil
}

type store struct {
	data *xsync.MapOf[string, []byte]
	tx   *txStores
}

// remember records how to restore the current state of key
func (s *store) remember(key string) {
	old, existed := s.data.Load(key)
	s.tx.undo = append(s.tx.undo, func() {
		if existed {
			s.data.Store(key, old)
		} else {
			s.data.Delete(key)
		}
	})
}

func (s *store) Get(key string) ([]byte, bool, error) {
	value, ok := s.data.Load(key)
	if !ok {
		return nil, false, nil
	}
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	return valueCopy, true, nil
}

func (s *store) Put(key string, value []byte) error {
	if !s.tx.write {
		return datastore.ErrReadOnly
	}
	s.remember(key)
	s.data.Store(key, value)
	return nil
}

func (s *store) Delete(key string) error {
	if !s.tx.write {
		return datastore.ErrReadOnly
	}
	s.remember(key)
	s.data.Delete(key)
	return nil
}

func (s *store) Clear() error {
	if !s.tx.write {
		return datastore.ErrReadOnly
	}
	snapshot := make(map[string][]byte, s.data.Size())
	s.data.Range(func(key string, value []byte) bool {
		snapshot[key] = value
		return true
	})
	s.tx.undo = append(s.tx.undo, func() {
		s.data.Clear()
		for key, value := range snapshot {
			s.data.Store(key, value)
		}
	})
	s.data.Clear()
	return nil
}

func (s *store) Count() (int, error) {
	return s.data.Size(), nil
}
