package bolt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ValentinKolb/sKV/lib/datastore"
	"github.com/ValentinKolb/sKV/lib/datastore/internal/engine"
	"go.etcd.io/bbolt"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	fileSuffix     = ".db"
	metaBucket     = "__meta"
	versionKey     = "version"
	defaultTimeout = 10 * time.Second
)

// Options configures the bolt datastore
type Options struct {
	Dir      string        // Directory for the database files (created if missing)
	Timeout  time.Duration // How long to wait for the file lock of a database (0 = use default: 10 sec)
	FileMode os.FileMode   // File mode for new database files (0 = use default: 0600)
	NoSync   bool          // Skip fsync after each commit (faster, not crash safe)
}

// DefaultOptions returns the default options for the given directory
func DefaultOptions(dir string) *Options {
	return &Options{
		Dir:      dir,
		Timeout:  defaultTimeout,
		FileMode: 0600,
	}
}

// Factory is the persistent datastore.Factory. Every database is stored in its own bbolt file,
// every object store in its own bucket.
type Factory struct {
	*engine.Registry
}

var _ datastore.Factory = (*Factory)(nil)

// NewFactory creates a new bolt datastore (options are optional, but Dir must be set then)
func NewFactory(opts *Options) (*Factory, error) {
	if opts == nil {
		opts = DefaultOptions(".")
	}
	if opts.Dir == "" {
		return nil, errors.New("bolt datastore: directory must not be empty")
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0600
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("bolt datastore: failed to create directory: %w", err)
	}
	return &Factory{Registry: engine.NewRegistry(&driver{opts: *opts})}, nil
}

// --------------------------------------------------------------------------
// Driver
// --------------------------------------------------------------------------

type driver struct {
	opts Options
}

func (d *driver) Name() string {
	return "bolt"
}

// path returns the file of a database, the name is escaped so every name maps to one file in Dir
func (d *driver) path(name string) string {
	return filepath.Join(d.opts.Dir, url.PathEscape(name)+fileSuffix)
}

func (d *driver) Exists(name string) (bool, error) {
	_, err := os.Stat(d.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (d *driver) Load(name string) (engine.Backend, error) {
	path := d.path(name)
	db, err := bbolt.Open(path, d.opts.FileMode, &bbolt.Options{Timeout: d.opts.Timeout, NoSync: d.opts.NoSync})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %q: %w", name, err)
	}

	b := &backend{db: db, path: path}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize bolt database %q: %w", name, err)
	}
	if err := b.loadVersion(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// --------------------------------------------------------------------------
// Backend
// --------------------------------------------------------------------------

type backend struct {
	db      *bbolt.DB
	path    string
	version uint64 // cached, only changed by Upgrade
}

func (b *backend) loadVersion() error {
	return b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(metaBucket)).Get([]byte(versionKey))
		if raw == nil {
			b.version = 0
			return nil
		}
		if len(raw) != 8 {
			return fmt.Errorf("corrupt version in %s", b.path)
		}
		b.version = binary.BigEndian.Uint64(raw)
		return nil
	})
}

func (b *backend) Version() uint64 {
	return b.version
}

func (b *backend) HasStore(name string) bool {
	if name == metaBucket {
		return false
	}
	found := false
	_ = b.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket([]byte(name)) != nil
		return nil
	})
	return found
}

func (b *backend) StoreNames() []string {
	var names []string
	_ = b.db.View(func(tx *bbolt.Tx) error {
		names = storeNames(tx)
		return nil
	})
	return names
}

func (b *backend) Upgrade(version uint64, fn func(datastore.Upgrader) error) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		if err := fn(&upgrader{tx: tx}); err != nil {
			return err
		}
		raw := make([]byte, 8)
		binary.BigEndian.PutUint64(raw, version)
		return tx.Bucket([]byte(metaBucket)).Put([]byte(versionKey), raw)
	})
	if err != nil {
		return err
	}
	b.version = version
	return nil
}

func (b *backend) Run(write bool, fn func(engine.Stores) error) error {
	if write {
		return b.db.Update(func(tx *bbolt.Tx) error {
			return fn(&txStores{tx: tx})
		})
	}
	return b.db.View(func(tx *bbolt.Tx) error {
		return fn(&txStores{tx: tx})
	})
}

func (b *backend) Close() error {
	return b.db.Close()
}

func (b *backend) Destroy() error {
	err := os.Remove(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// --------------------------------------------------------------------------
// Upgrader
// --------------------------------------------------------------------------

type upgrader struct {
	tx *bbolt.Tx
}

func (u *upgrader) CreateObjectStore(name string) error {
	if name == "" || name == metaBucket {
		return fmt.Errorf("%w: invalid object store name %q", datastore.ErrData, name)
	}
	_, err := u.tx.CreateBucket([]byte(name))
	if errors.Is(err, bbolt.ErrBucketExists) {
		return fmt.Errorf("%w: object store %q already exists", datastore.ErrConstraint, name)
	}
	return err
}

func (u *upgrader) ObjectStoreNames() []string {
	return storeNames(u.tx)
}

func storeNames(tx *bbolt.Tx) []string {
	var names []string
	_ = tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
		if string(name) != metaBucket {
			names = append(names, string(name))
		}
		return nil
	})
	return names
}

// --------------------------------------------------------------------------
// Transaction view
// --------------------------------------------------------------------------

type txStores struct {
	tx *bbolt.Tx
}

func (s *txStores) Store(name string) (engine.Store, error) {
	if name == metaBucket {
		return nil, fmt.Errorf("%w: %q", datastore.ErrNotFound, name)
	}
	bucket := s.tx.Bucket([]byte(name))
	if bucket == nil {
		return nil, fmt.Errorf("%w: %q", datastore.ErrNotFound, name)
	}
	return &store{tx: s.tx, name: name, bucket: bucket}, nil
}

type store struct {
	tx     *bbolt.Tx
	name   string
	bucket *bbolt.Bucket
}

func (s *store) Get(key string) ([]byte, bool, error) {
	value := s.bucket.Get([]byte(key))
	if value == nil {
		return nil, false, nil
	}
	// bolt values are only valid during the transaction
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	return valueCopy, true, nil
}

func (s *store) Put(key string, value []byte) error {
	if value == nil {
		// bolt stores nil as an empty value, keep the key findable
		value = []byte{}
	}
	return mapTxErr(s.bucket.Put([]byte(key), value))
}

func (s *store) Delete(key string) error {
	return mapTxErr(s.bucket.Delete([]byte(key)))
}

func (s *store) Clear() error {
	if !s.tx.Writable() {
		return datastore.ErrReadOnly
	}
	if err := s.tx.DeleteBucket([]byte(s.name)); err != nil {
		return err
	}
	bucket, err := s.tx.CreateBucket([]byte(s.name))
	if err != nil {
		return err
	}
	s.bucket = bucket
	return nil
}

func (s *store) Count() (int, error) {
	n := 0
	err := s.bucket.ForEach(func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

// mapTxErr converts bolt errors to datastore errors
func mapTxErr(err error) error {
	switch {
	case errors.Is(err, bbolt.ErrTxNotWritable):
		return datastore.ErrReadOnly
	case errors.Is(err, bbolt.ErrKeyRequired), errors.Is(err, bbolt.ErrKeyTooLarge), errors.Is(err, bbolt.ErrValueTooLarge):
		return fmt.Errorf("%w: %v", datastore.ErrData, err)
	default:
		return err
	}
}
