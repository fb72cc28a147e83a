package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/datastore"
	dstesting "github.com/ValentinKolb/sKV/lib/datastore/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFactory(tb testing.TB) datastore.Factory {
	f := NewFactory()
	tb.Cleanup(func() { _ = f.Close() })
	return f
}

// without scripted failures the mock behaves like any other engine
func Test(t *testing.T) {
	dstesting.RunDatastoreTests(t, "Mock", newTestFactory)
}

func createStore(u datastore.Upgrader, _, _ uint64) error {
	return u.CreateObjectStore("s")
}

func TestOpenFailures(t *testing.T) {
	f := NewFactory()
	defer f.Close()
	ctx := context.Background()

	openErr := errors.New("open failed")
	f.SetOpenErr(openErr)
	_, err := f.Open(ctx, "db", 1, createStore)
	assert.ErrorIs(t, err, openErr)

	f.SetOpenErr(nil)
	f.SetOpenPanic("boom")
	assert.PanicsWithValue(t, "boom", func() {
		_, _ = f.Open(ctx, "db", 1, createStore)
	})

	f.SetOpenPanic(nil)
	conn, err := f.Open(ctx, "db", 1, createStore)
	require.NoError(t, err)
	conn.Close()

	assert.Equal(t, 3, f.Opens())
}

func TestOpenGate(t *testing.T) {
	f := NewFactory()
	defer f.Close()

	gate := make(chan struct{})
	f.SetOpenGate(gate)

	opened := make(chan error, 1)
	go func() {
		conn, err := f.Open(context.Background(), "db", 1, createStore)
		if err == nil {
			conn.Close()
		}
		opened <- err
	}()

	select {
	case <-opened:
		t.Fatal("Open returned before the gate was released")
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)
	select {
	case err := <-opened:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Open still blocked after the gate was released")
	}

	// a blocked open respects the context
	f.SetOpenGate(make(chan struct{}))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Open(ctx, "db", 1, createStore)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransactionHook(t *testing.T) {
	f := NewFactory()
	defer f.Close()

	conn, err := f.Open(context.Background(), "db", 1, createStore)
	require.NoError(t, err)
	defer conn.Close()

	var calls []int
	f.SetTransactionHook(func(call int, mode datastore.Mode) error {
		calls = append(calls, call)
		if call == 2 {
			return datastore.ErrInvalidState
		}
		return nil
	})

	tx, err := conn.Transaction("s", datastore.ModeReadOnly)
	require.NoError(t, err)
	tx.Commit()

	_, err = conn.Transaction("s", datastore.ModeReadWrite)
	assert.ErrorIs(t, err, datastore.ErrInvalidState)

	assert.Equal(t, []int{1, 2}, calls)
	assert.Equal(t, 2, f.Transactions())
}

func TestConnectionsAndClose(t *testing.T) {
	f := NewFactory()
	defer f.Close()

	a, err := f.Open(context.Background(), "db", 1, createStore)
	require.NoError(t, err)
	_, err = f.Open(context.Background(), "db", 1, createStore)
	require.NoError(t, err)
	assert.Len(t, f.Connections(), 2)

	a.Close()
	assert.Len(t, f.Connections(), 1)

	assert.Equal(t, 1, f.CloseConnections())
	assert.Empty(t, f.Connections())
}

func TestSupportedAndDelete(t *testing.T) {
	f := NewFactory()
	defer f.Close()

	assert.True(t, f.Supported())
	f.SetSupported(false)
	assert.False(t, f.Supported())

	deleteErr := errors.New("delete failed")
	f.SetDeleteErr(deleteErr)
	assert.ErrorIs(t, f.DeleteDatabase(context.Background(), "db"), deleteErr)
	f.SetDeleteErr(nil)
	assert.NoError(t, f.DeleteDatabase(context.Background(), "db"))
}
