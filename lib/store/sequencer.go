package store

import (
	"github.com/ValentinKolb/sKV/lib/datastore"
)

// --------------------------------------------------------------------------
// Transaction Sequencer
// --------------------------------------------------------------------------

// pendingRequest is a request for a transaction that waits for a connection
type pendingRequest struct {
	mode   datastore.Mode
	result chan txResult // buffered, receives exactly one result
}

type txResult struct {
	tx  datastore.Transaction
	err error
}

// requestTransaction returns a new transaction on the object store of the handle.
//
// With an open connection the transaction is created right away. Otherwise the
// request is queued until the connection is opened. A connection that fails to
// create a transaction is considered broken: it is closed and the request is
// queued for the next connection.
func (h *Handle) requestTransaction(mode datastore.Mode) (datastore.Transaction, error) {
	if h.factory == nil {
		return nil, errNoDatastore
	}

	h.mu.Lock()
	if h.state == stateOpen {
		tx, err := h.conn.Transaction(h.opts.StoreName, mode)
		if err == nil {
			h.mu.Unlock()
			return tx, nil
		}
		log.Infof("connection to %q is broken (%v), reconnecting", h.opts.Name, err)
		h.metrics.reconnects.Inc()
		h.closeLocked()
	}

	req := &pendingRequest{
		mode:   mode,
		result: make(chan txResult, 1),
	}
	h.pending = append(h.pending, req)
	h.metrics.queued.Inc()
	h.ensureConnectionLocked()
	h.mu.Unlock()

	res := <-req.result
	return res.tx, res.err
}

// drainLocked grants the pending requests in the order they were queued.
// openErr is the outcome of the open that just finished: on failure every request fails with it.
// On success the first failing transaction fails every later request with the same error,
// and the connection is closed afterward. The caller holds h.mu.
func (h *Handle) drainLocked(openErr error) {
	pending := h.pending
	h.pending = nil

	batchErr := openErr
	for _, req := range pending {
		if batchErr != nil {
			req.result <- txResult{err: batchErr}
			continue
		}

		tx, err := h.conn.Transaction(h.opts.StoreName, req.mode)
		if err != nil {
			log.Warningf("creating transaction on %q failed, failing %d queued request(s): %v", h.opts.Name, len(pending), err)
			batchErr = err
			req.result <- txResult{err: err}
			continue
		}
		req.result <- txResult{tx: tx}
	}

	if openErr == nil && batchErr != nil {
		h.closeLocked()
	}
}
