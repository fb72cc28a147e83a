package store

import (
	"context"
	"sync"
	"time"

	"github.com/ValentinKolb/sKV/lib/datastore"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	log = logger.GetLogger("store")
)

const (
	DefaultName      = "sKV"
	DefaultStoreName = "keyvalue"
	DefaultVersion   = 1
)

// Options configures a Handle
type Options struct {
	Name      string        // Name of the database (default: "sKV")
	StoreName string        // Name of the object store inside the database (default: "keyvalue")
	Version   uint64        // Schema version the database is opened with (default: 1)
	Timeout   time.Duration // Bounds opening and deleting the database (0 = no timeout)
}

// DefaultOptions returns the default options
func DefaultOptions() *Options {
	return &Options{
		Name:      DefaultName,
		StoreName: DefaultStoreName,
		Version:   DefaultVersion,
	}
}

// connState is the state of the connection of a Handle
type connState int

const (
	stateClosed connState = iota
	stateOpening
	stateOpen
)

func (s connState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpening:
		return "opening"
	case stateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Handle is a key-value store on top of one object store of a datastore.
//
// The connection to the datastore is opened lazily by the first operation and
// reopened transparently when it breaks. Requests for transactions that arrive
// while the connection is being opened are queued and granted in call order.
// A Handle is safe for concurrent use.
type Handle struct {
	factory datastore.Factory
	opts    Options
	metrics *handleMetrics

	mu      sync.Mutex
	state   connState
	conn    datastore.Connection
	pending []*pendingRequest
}

var _ IStore = (*Handle)(nil)

// New creates a new store handle for the given datastore (options are optional).
// No connection is opened until the first operation.
// factory may be nil, then Supports reports false and every operation fails.
func New(factory datastore.Factory, opts *Options) *Handle {
	o := DefaultOptions()
	if opts != nil {
		if opts.Name != "" {
			o.Name = opts.Name
		}
		if opts.StoreName != "" {
			o.StoreName = opts.StoreName
		}
		if opts.Version != 0 {
			o.Version = opts.Version
		}
		o.Timeout = opts.Timeout
	}

	return &Handle{
		factory: factory,
		opts:    *o,
		metrics: newHandleMetrics(o.Name),
	}
}

// Name returns the name of the database
func (h *Handle) Name() string {
	return h.opts.Name
}

// Options returns a copy of the options the handle was created with (defaults applied)
func (h *Handle) Options() Options {
	return h.opts
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (h *Handle) Supports() bool {
	return h.factory != nil && h.factory.Supported()
}

func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeLocked()
}

func (h *Handle) DeleteDatabase() error {
	if h.factory == nil {
		return errNoDatastore
	}

	ctx, cancel := h.context()
	defer cancel()

	// open connections (including our own) are closed by their version change handlers
	if err := h.factory.DeleteDatabase(ctx, h.opts.Name); err != nil {
		log.Warningf("deleting database %q failed: %v", h.opts.Name, err)
		return err
	}
	log.Infof("deleted database %q", h.opts.Name)
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

var errNoDatastore = NewError(RetCUnsupportedOperation, "no datastore available")

// context returns the context for calls that are bounded by the timeout
func (h *Handle) context() (context.Context, context.CancelFunc) {
	if h.opts.Timeout > 0 {
		return context.WithTimeout(context.Background(), h.opts.Timeout)
	}
	return context.WithCancel(context.Background())
}
