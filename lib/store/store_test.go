package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/datastore"
	"github.com/ValentinKolb/sKV/lib/datastore/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func newTestHandle(t *testing.T, opts *Options) (*Handle, *mock.Factory) {
	t.Helper()
	f := mock.NewFactory()
	h := New(f, opts)
	t.Cleanup(func() {
		h.Close()
		_ = f.Close()
	})
	return h, f
}

// pendingLen returns the number of queued transaction requests
func pendingLen(h *Handle) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

func currentState(h *Handle) connState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// waitPending waits until n requests are queued
func waitPending(t *testing.T, h *Handle, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return pendingLen(h) == n
	}, 2*time.Second, time.Millisecond, "expected %d pending requests", n)
}

// --------------------------------------------------------------------------
// Operations
// --------------------------------------------------------------------------

func TestOptionsDefaults(t *testing.T) {
	h := New(nil, nil)
	assert.Equal(t, Options{Name: "sKV", StoreName: "keyvalue", Version: 1}, h.Options())

	h = New(nil, &Options{Name: "other", Timeout: time.Second})
	assert.Equal(t, "other", h.Name())
	assert.Equal(t, "keyvalue", h.Options().StoreName)
	assert.Equal(t, uint64(1), h.Options().Version)
	assert.Equal(t, time.Second, h.Options().Timeout)
}

func TestSetGet(t *testing.T) {
	h, f := newTestHandle(t, nil)

	written, err := h.SetItem("key", []byte("value"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), written)

	value, found, err := h.GetItem("key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("value"), value)

	_, err = h.SetItem("key", []byte("other"))
	require.NoError(t, err)
	value, _, err = h.GetItem("key")
	require.NoError(t, err)
	assert.Equal(t, []byte("other"), value)

	// the connection is opened once and reused
	assert.Equal(t, 1, f.Opens())
	assert.Equal(t, stateOpen, currentState(h))
}

func TestGetAbsentKey(t *testing.T) {
	h, _ := newTestHandle(t, nil)

	value, found, err := h.GetItem("nonexistent-key")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)
}

func TestRemoveItem(t *testing.T) {
	h, _ := newTestHandle(t, nil)

	require.NoError(t, h.RemoveItem("nonexistent-key"))

	_, err := h.SetItem("key", []byte("value"))
	require.NoError(t, err)
	require.NoError(t, h.RemoveItem("key"))

	_, found, err := h.GetItem("key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLengthAndClear(t *testing.T) {
	h, _ := newTestHandle(t, nil)

	n, err := h.Length()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for i := 0; i < 10; i++ {
		_, err := h.SetItem(fmt.Sprintf("key-%d", i), []byte("v"))
		require.NoError(t, err)

		n, err := h.Length()
		require.NoError(t, err)
		assert.Equal(t, i+1, n)
	}

	// overwriting does not change the length
	_, err = h.SetItem("key-0", []byte("w"))
	require.NoError(t, err)
	require.NoError(t, h.RemoveItem("key-1"))
	n, err = h.Length()
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	require.NoError(t, h.Clear())
	n, err = h.Length()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, found, err := h.GetItem("key-2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRequestErrorIsReturned(t *testing.T) {
	h, f := newTestHandle(t, nil)

	_, err := h.SetItem("", []byte("value"))
	assert.ErrorIs(t, err, datastore.ErrData)

	// operation errors do not reconnect
	_, err = h.SetItem("key", []byte("value"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.Opens())
}

func TestConcurrentOperations(t *testing.T) {
	h, _ := newTestHandle(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i)
			_, err := h.SetItem(key, []byte(key))
			assert.NoError(t, err)
			value, found, err := h.GetItem(key)
			assert.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, key, string(value))
		}(i)
	}
	wg.Wait()

	n, err := h.Length()
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}

// --------------------------------------------------------------------------
// Sequencing
// --------------------------------------------------------------------------

func TestQueuedRequestsKeepCallOrder(t *testing.T) {
	h, f := newTestHandle(t, nil)

	gate := make(chan struct{})
	f.SetOpenGate(gate)

	var modes []datastore.Mode
	f.SetTransactionHook(func(call int, mode datastore.Mode) error {
		modes = append(modes, mode)
		return nil
	})

	// issue the calls one after another, each one is queued before the next one starts
	const n = 100
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			_, err := h.SetItem("k", []byte(fmt.Sprintf("%d", i)))
			errs <- err
		}(i)
		waitPending(t, h, i+1)
	}
	assert.Equal(t, stateOpening, currentState(h))
	assert.Equal(t, 0, f.Transactions())

	close(gate)
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}

	// one open for the whole batch, one transaction per call
	assert.Equal(t, 1, f.Opens())
	assert.Equal(t, n, f.Transactions())
	assert.Len(t, modes, n)

	value, found, err := h.GetItem("k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "99", string(value))
}

func TestFastPathAfterOpen(t *testing.T) {
	h, f := newTestHandle(t, nil)

	_, err := h.SetItem("a", []byte("1"))
	require.NoError(t, err)

	_, err = h.SetItem("b", []byte("2"))
	require.NoError(t, err)
	assert.Equal(t, 0, pendingLen(h))
	assert.Equal(t, 1, f.Opens())
	assert.Equal(t, 2, f.Transactions())
}

func TestPoisonedBatch(t *testing.T) {
	h, f := newTestHandle(t, nil)

	gate := make(chan struct{})
	f.SetOpenGate(gate)

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := h.SetItem("k", []byte("v"))
			errs <- err
		}()
		waitPending(t, h, i+1)
	}

	txErr := errors.New("transaction refused")
	f.SetTransactionHook(func(call int, _ datastore.Mode) error {
		if call == 1 {
			return txErr
		}
		return nil
	})
	close(gate)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, <-errs, txErr)
	}
	// only the first request tried to create a transaction
	assert.Equal(t, 1, f.Transactions())

	// the connection of the poisoned batch was closed
	assert.Equal(t, stateClosed, currentState(h))
	assert.Empty(t, f.Connections())

	_, err := h.SetItem("k", []byte("v"))
	require.NoError(t, err)
	assert.Equal(t, 2, f.Opens())
}

// --------------------------------------------------------------------------
// Connection failures
// --------------------------------------------------------------------------

func TestOpenError(t *testing.T) {
	h, f := newTestHandle(t, nil)

	gate := make(chan struct{})
	f.SetOpenGate(gate)
	openErr := errors.New("open failed")
	f.SetOpenErr(openErr)

	errs := make(chan error, 2)
	go func() {
		_, err := h.SetItem("k", []byte("v"))
		errs <- err
	}()
	waitPending(t, h, 1)
	go func() {
		_, _, err := h.GetItem("k")
		errs <- err
	}()
	waitPending(t, h, 2)
	close(gate)

	// every queued request sees the exact error
	assert.Same(t, openErr, <-errs)
	assert.Same(t, openErr, <-errs)
	assert.Equal(t, stateClosed, currentState(h))

	// the next operation opens from scratch
	f.SetOpenErr(nil)
	_, err := h.SetItem("k", []byte("v"))
	require.NoError(t, err)
	assert.Equal(t, 2, f.Opens())
}

func TestOpenPanic(t *testing.T) {
	h, f := newTestHandle(t, nil)

	panicErr := errors.New("open panicked")
	f.SetOpenPanic(panicErr)
	_, err := h.SetItem("k", []byte("v"))
	assert.Same(t, panicErr, err)

	f.SetOpenPanic("not an error")
	_, err = h.SetItem("k", []byte("v"))
	assert.True(t, IsCode(err, RetCInternalError), "expected internal error, got %v", err)

	f.SetOpenPanic(nil)
	_, err = h.SetItem("k", []byte("v"))
	require.NoError(t, err)
}

func TestOpenTimeout(t *testing.T) {
	h, f := newTestHandle(t, &Options{Timeout: 20 * time.Millisecond})

	f.SetOpenGate(make(chan struct{}))
	_, err := h.SetItem("k", []byte("v"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	f.SetOpenGate(nil)
	_, err = h.SetItem("k", []byte("v"))
	require.NoError(t, err)
}

func TestExternalCloseRecovers(t *testing.T) {
	h, f := newTestHandle(t, nil)

	_, err := h.SetItem("k", []byte("v"))
	require.NoError(t, err)

	require.Equal(t, 1, f.CloseConnections())

	// the broken connection is replaced without the caller noticing
	value, found, err := h.GetItem("k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), value)
	assert.Equal(t, 2, f.Opens())

	n, err := h.Length()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, f.Opens())
}

func TestExternalCloseWithFailingReopen(t *testing.T) {
	h, f := newTestHandle(t, nil)

	_, err := h.SetItem("k", []byte("v"))
	require.NoError(t, err)

	f.CloseConnections()
	openErr := errors.New("reopen failed")
	f.SetOpenErr(openErr)

	// exactly one operation fails
	_, _, err = h.GetItem("k")
	assert.Same(t, openErr, err)

	f.SetOpenErr(nil)
	value, found, err := h.GetItem("k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), value)
}

func TestStaleConnectionRidesOneReopen(t *testing.T) {
	h, f := newTestHandle(t, nil)

	_, err := h.SetItem("k", []byte("v"))
	require.NoError(t, err)

	// every transaction fails: the request is retried once on a new connection, then fails
	f.SetTransactionHook(func(int, datastore.Mode) error {
		return datastore.ErrInvalidState
	})
	_, err = h.SetItem("k", []byte("w"))
	assert.ErrorIs(t, err, datastore.ErrInvalidState)
	assert.Equal(t, 2, f.Opens())
	assert.Equal(t, 3, f.Transactions())

	f.SetTransactionHook(nil)
	value, _, err := h.GetItem("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)
}

// --------------------------------------------------------------------------
// Database lifecycle
// --------------------------------------------------------------------------

func TestDeleteDatabase(t *testing.T) {
	h, f := newTestHandle(t, nil)

	_, err := h.SetItem("k", []byte("v"))
	require.NoError(t, err)

	require.NoError(t, h.DeleteDatabase())
	// our own connection was closed by the version change
	assert.Equal(t, stateClosed, currentState(h))
	assert.Empty(t, f.Connections())

	_, found, err := h.GetItem("k")
	require.NoError(t, err)
	assert.False(t, found)

	n, err := h.Length()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// deleting without an open connection works too
	h.Close()
	require.NoError(t, h.DeleteDatabase())

	deleteErr := errors.New("delete failed")
	f.SetDeleteErr(deleteErr)
	assert.Same(t, deleteErr, h.DeleteDatabase())
}

func TestVersionChangeClosesConnection(t *testing.T) {
	f := mock.NewFactory()
	defer f.Close()

	h1 := New(f, &Options{Name: "shared"})
	defer h1.Close()
	_, err := h1.SetItem("k", []byte("v"))
	require.NoError(t, err)

	// a handle with a newer schema upgrades the database, the old handle lets go
	h2 := New(f, &Options{Name: "shared", Version: 2})
	defer h2.Close()
	value, found, err := h2.GetItem("k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), value)

	assert.Equal(t, stateClosed, currentState(h1))

	// the old handle can not open the database at its old version anymore
	_, _, err = h1.GetItem("k")
	assert.ErrorIs(t, err, datastore.ErrVersion)
}

func TestHandlesAreIndependent(t *testing.T) {
	f := mock.NewFactory()
	defer f.Close()

	h1 := New(f, &Options{Name: "shared"})
	h2 := New(f, &Options{Name: "shared"})
	defer h2.Close()

	_, err := h1.SetItem("k", []byte("v"))
	require.NoError(t, err)

	value, found, err := h2.GetItem("k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), value)
	assert.Len(t, f.Connections(), 2)

	h1.Close()
	assert.Equal(t, stateClosed, currentState(h1))
	assert.Equal(t, stateOpen, currentState(h2))

	_, _, err = h2.GetItem("k")
	require.NoError(t, err)
}

func TestCloseReopensLazily(t *testing.T) {
	h, f := newTestHandle(t, nil)

	h.Close() // no connection yet
	assert.Equal(t, 0, f.Opens())

	_, err := h.SetItem("k", []byte("v"))
	require.NoError(t, err)
	h.Close()
	assert.Equal(t, stateClosed, currentState(h))
	assert.Empty(t, f.Connections())

	_, found, err := h.GetItem("k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, f.Opens())
}

func TestSupports(t *testing.T) {
	h, f := newTestHandle(t, nil)
	assert.True(t, h.Supports())
	f.SetSupported(false)
	assert.False(t, h.Supports())

	none := New(nil, nil)
	assert.False(t, none.Supports())

	_, err := none.SetItem("k", []byte("v"))
	assert.True(t, IsCode(err, RetCUnsupportedOperation))
	_, _, err = none.GetItem("k")
	assert.True(t, IsCode(err, RetCUnsupportedOperation))
	assert.True(t, IsCode(none.DeleteDatabase(), RetCUnsupportedOperation))
	none.Close()
}

func TestCustomStoreName(t *testing.T) {
	h, _ := newTestHandle(t, &Options{Name: "custom", StoreName: "items", Version: 3})

	_, err := h.SetItem("k", []byte("v"))
	require.NoError(t, err)

	n, err := h.Length()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

func TestError(t *testing.T) {
	cause := errors.New("cause")
	err := WrapError(RetCInternalError, "something failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsCode(err, RetCInternalError))
	assert.False(t, IsCode(err, RetCInvalidOperation))
	assert.Equal(t, "StoreError (code InternalError): something failed: cause", err.Error())

	assert.Equal(t, "StoreError (code UnsupportedOperation): no datastore", NewError(RetCUnsupportedOperation, "no datastore").Error())
	assert.False(t, IsCode(cause, RetCInternalError))
}
