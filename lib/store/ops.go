package store

import (
	"github.com/ValentinKolb/sKV/lib/datastore"
)

// --------------------------------------------------------------------------
// Operation Executors
// --------------------------------------------------------------------------

func (h *Handle) SetItem(key string, value []byte) ([]byte, error) {
	_, err := h.execute("set", datastore.ModeReadWrite, func(s datastore.ObjectStore) *datastore.Request {
		return s.Put(key, value)
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (h *Handle) GetItem(key string) ([]byte, bool, error) {
	req, err := h.execute("get", datastore.ModeReadOnly, func(s datastore.ObjectStore) *datastore.Request {
		return s.Get(key)
	})
	if err != nil {
		return nil, false, err
	}
	value, found := req.Value()
	return value, found, nil
}

func (h *Handle) RemoveItem(key string) error {
	_, err := h.execute("remove", datastore.ModeReadWrite, func(s datastore.ObjectStore) *datastore.Request {
		return s.Delete(key)
	})
	return err
}

func (h *Handle) Clear() error {
	_, err := h.execute("clear", datastore.ModeReadWrite, func(s datastore.ObjectStore) *datastore.Request {
		return s.Clear()
	})
	return err
}

func (h *Handle) Length() (int, error) {
	req, err := h.execute("length", datastore.ModeReadOnly, func(s datastore.ObjectStore) *datastore.Request {
		return s.Count()
	})
	if err != nil {
		return 0, err
	}
	return req.Count(), nil
}

// execute runs one request in its own transaction and waits for the transaction to finish.
// On failure the error of the request is returned, or the error of the transaction if the request has none.
func (h *Handle) execute(op string, mode datastore.Mode, issue func(s datastore.ObjectStore) *datastore.Request) (*datastore.Request, error) {
	h.metrics.operation(op)

	tx, err := h.requestTransaction(mode)
	if err != nil {
		h.metrics.operationError(op)
		return nil, err
	}

	s, err := tx.ObjectStore(h.opts.StoreName)
	if err != nil {
		tx.Abort()
		h.metrics.operationError(op)
		return nil, err
	}

	req := issue(s)
	tx.Commit()
	<-tx.Done()

	if err := req.Err(); err != nil {
		h.metrics.operationError(op)
		return nil, err
	}
	if err := tx.Err(); err != nil {
		h.metrics.operationError(op)
		return nil, err
	}
	return req, nil
}
