package datastore

import "sync"

// Request is the result of one operation issued on an ObjectStore.
// It is settled by the datastore when the owning transaction runs;
// the getters are only meaningful after the transaction's Done channel is closed.
type Request struct {
	mu      sync.Mutex
	settled bool
	value   []byte
	found   bool
	count   int
	err     error
}

// NewRequest creates an unsettled request. Used by datastore implementations.
func NewRequest() *Request {
	return &Request{}
}

// Settle stores the outcome of the request. Only the first call has an effect.
func (r *Request) Settle(value []byte, found bool, count int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settled {
		return
	}
	r.settled = true
	r.value = value
	r.found = found
	r.count = count
	r.err = err
}

// Fail settles the request with an error.
func (r *Request) Fail(err error) {
	r.Settle(nil, false, 0, err)
}

// Value returns the value read by a Get request and whether the key was found.
func (r *Request) Value() ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value, r.found
}

// Count returns the result of a Count request.
func (r *Request) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Err returns the error of the request, nil if it succeeded or is not settled yet.
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Settled reports whether the request has an outcome.
func (r *Request) Settled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settled
}
