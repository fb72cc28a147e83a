package store

import (
	"fmt"
	"slices"

	"github.com/ValentinKolb/sKV/lib/datastore"
)

// --------------------------------------------------------------------------
// Connection Manager
// --------------------------------------------------------------------------

// ensureConnectionLocked starts opening a connection, unless one is open or being opened.
// The caller holds h.mu.
func (h *Handle) ensureConnectionLocked() {
	if h.state != stateClosed {
		return
	}
	h.state = stateOpening
	go h.open()
}

// open opens a connection and drains the pending requests with its outcome.
// Exactly one open runs at a time (guarded by stateOpening).
func (h *Handle) open() {
	log.Debugf("opening database %q (version %d)", h.opts.Name, h.opts.Version)
	h.metrics.opens.Inc()

	conn, err := h.openConnection()

	h.mu.Lock()
	if err != nil {
		h.metrics.openErrors.Inc()
		log.Warningf("opening database %q failed: %v", h.opts.Name, err)
		h.state = stateClosed
		h.drainLocked(err)
		h.mu.Unlock()
		return
	}

	h.conn = conn
	h.state = stateOpen
	h.drainLocked(nil)
	h.mu.Unlock()

	// registered without h.mu held, the handler locks it itself
	conn.OnVersionChange(func() {
		h.onVersionChange(conn)
	})
}

// openConnection asks the datastore for a connection. A panic of the datastore is returned as error.
func (h *Handle) openConnection() (conn datastore.Connection, err error) {
	defer func() {
		if r := recover(); r != nil {
			if rErr, ok := r.(error); ok {
				err = rErr
			} else {
				err = NewError(RetCInternalError, fmt.Sprintf("opening database %q panicked: %v", h.opts.Name, r))
			}
			conn = nil
		}
	}()

	ctx, cancel := h.context()
	defer cancel()
	return h.factory.Open(ctx, h.opts.Name, h.opts.Version, h.upgrade)
}

// upgrade creates the object store of the handle when the datastore is created or upgraded
func (h *Handle) upgrade(u datastore.Upgrader, oldVersion, newVersion uint64) error {
	log.Infof("upgrading database %q from version %d to %d", h.opts.Name, oldVersion, newVersion)
	if slices.Contains(u.ObjectStoreNames(), h.opts.StoreName) {
		return nil
	}
	return u.CreateObjectStore(h.opts.StoreName)
}

// onVersionChange closes conn because another connection wants to upgrade or delete the database
func (h *Handle) onVersionChange(conn datastore.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn != conn {
		// already replaced, make sure it does not block the other side
		conn.Close()
		return
	}
	log.Infof("closing connection to %q because of a version change", h.opts.Name)
	h.closeLocked()
}

// closeLocked closes the current connection. The caller holds h.mu.
func (h *Handle) closeLocked() {
	if h.conn == nil {
		return
	}
	h.conn.Close()
	h.conn = nil
	h.state = stateClosed
}
