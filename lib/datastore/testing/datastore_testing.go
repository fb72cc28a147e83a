package testing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/datastore"
)

// FactoryFactory is a function that creates a new, empty datastore.Factory.
// Implementations register their own cleanup with tb.Cleanup.
type FactoryFactory func(tb testing.TB) datastore.Factory

const (
	testStore   = "keyvalue"
	waitTimeout = 5 * time.Second
)

// RunDatastoreTests runs a comprehensive test suite for a datastore.Factory implementation.
func RunDatastoreTests(t *testing.T, name string, factory FactoryFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("OpenUpgrade", func(t *testing.T) {
			testOpenUpgrade(t, factory(t))
		})

		t.Run("OpenVersion", func(t *testing.T) {
			testOpenVersion(t, factory(t))
		})

		t.Run("FailedUpgrade", func(t *testing.T) {
			testFailedUpgrade(t, factory(t))
		})

		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory(t))
		})

		t.Run("DeleteClearCount", func(t *testing.T) {
			testDeleteClearCount(t, factory(t))
		})

		t.Run("ReadOnly", func(t *testing.T) {
			testReadOnly(t, factory(t))
		})

		t.Run("InvalidRequests", func(t *testing.T) {
			testInvalidRequests(t, factory(t))
		})

		t.Run("Abort", func(t *testing.T) {
			testAbort(t, factory(t))
		})

		t.Run("TransactionOrder", func(t *testing.T) {
			testTransactionOrder(t, factory(t))
		})

		t.Run("ClosedConnection", func(t *testing.T) {
			testClosedConnection(t, factory(t))
		})

		t.Run("VersionChange", func(t *testing.T) {
			testVersionChange(t, factory(t))
		})

		t.Run("VersionChangeBeforeHandler", func(t *testing.T) {
			testVersionChangeBeforeHandler(t, factory(t))
		})

		t.Run("DeleteDatabase", func(t *testing.T) {
			testDeleteDatabase(t, factory(t))
		})

		t.Run("DeleteDatabaseBlocked", func(t *testing.T) {
			testDeleteDatabaseBlocked(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// createStore is an upgrade function that creates the test store
func createStore(u datastore.Upgrader, _, _ uint64) error {
	return u.CreateObjectStore(testStore)
}

// open opens the database and fails the test on error
func open(t testing.TB, f datastore.Factory, name string) datastore.Connection {
	t.Helper()
	conn, err := f.Open(context.Background(), name, 1, createStore)
	if err != nil {
		t.Fatalf("Open(%q) failed: %v", name, err)
	}
	t.Cleanup(conn.Close)
	return conn
}

// run creates a transaction, issues the requests and waits for the transaction to finish
func run(t testing.TB, conn datastore.Connection, mode datastore.Mode, issue func(s datastore.ObjectStore) *datastore.Request) (*datastore.Request, error) {
	t.Helper()
	tx, err := conn.Transaction(testStore, mode)
	if err != nil {
		t.Fatalf("Transaction() failed: %v", err)
	}
	s, err := tx.ObjectStore(testStore)
	if err != nil {
		t.Fatalf("ObjectStore() failed: %v", err)
	}
	req := issue(s)
	tx.Commit()
	wait(t, tx)
	return req, tx.Err()
}

// wait waits for a transaction to finish
func wait(t testing.TB, tx datastore.Transaction) {
	t.Helper()
	select {
	case <-tx.Done():
	case <-time.After(waitTimeout):
		t.Fatalf("timeout waiting for transaction")
	}
}

func mustPut(t testing.TB, conn datastore.Connection, key string, value []byte) {
	t.Helper()
	if _, err := run(t, conn, datastore.ModeReadWrite, func(s datastore.ObjectStore) *datastore.Request {
		return s.Put(key, value)
	}); err != nil {
		t.Fatalf("Put(%q) failed: %v", key, err)
	}
}

func mustGet(t testing.TB, conn datastore.Connection, key string) ([]byte, bool) {
	t.Helper()
	req, err := run(t, conn, datastore.ModeReadOnly, func(s datastore.ObjectStore) *datastore.Request {
		return s.Get(key)
	})
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	return req.Value()
}

func mustCount(t testing.TB, conn datastore.Connection) int {
	t.Helper()
	req, err := run(t, conn, datastore.ModeReadOnly, func(s datastore.ObjectStore) *datastore.Request {
		return s.Count()
	})
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	return req.Count()
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testOpenUpgrade(t *testing.T, f datastore.Factory) {
	if !f.Supported() {
		t.Fatalf("Expected factory to be supported")
	}

	calls := 0
	upgrade := func(u datastore.Upgrader, oldVersion, newVersion uint64) error {
		calls++
		if oldVersion != 0 || newVersion != 1 {
			t.Errorf("Expected upgrade 0 -> 1, got %d -> %d", oldVersion, newVersion)
		}
		return u.CreateObjectStore(testStore)
	}

	conn, err := f.Open(context.Background(), "upgrade", 1, upgrade)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if conn.Name() != "upgrade" || conn.Version() != 1 {
		t.Errorf("Unexpected connection name=%s version=%d", conn.Name(), conn.Version())
	}
	conn.Close()

	// reopening at the same version must not upgrade again
	conn, err = f.Open(context.Background(), "upgrade", 1, upgrade)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer conn.Close()
	if calls != 1 {
		t.Errorf("Expected upgrade to be called once, got %d", calls)
	}

	// the store exists
	if _, err := conn.Transaction(testStore, datastore.ModeReadOnly); err != nil {
		t.Errorf("Transaction() on created store failed: %v", err)
	}
	if _, err := conn.Transaction("missing", datastore.ModeReadOnly); !errors.Is(err, datastore.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing store, got %v", err)
	}
}

func testOpenVersion(t *testing.T, f datastore.Factory) {
	if _, err := f.Open(context.Background(), "version", 0, createStore); !errors.Is(err, datastore.ErrVersion) {
		t.Errorf("Expected ErrVersion for version 0, got %v", err)
	}

	conn, err := f.Open(context.Background(), "version", 2, createStore)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	conn.Close()

	if _, err := f.Open(context.Background(), "version", 1, createStore); !errors.Is(err, datastore.ErrVersion) {
		t.Errorf("Expected ErrVersion when opening with a lower version, got %v", err)
	}

	// an upgrade to version 3 sees the old version and can add stores
	conn, err = f.Open(context.Background(), "version", 3, func(u datastore.Upgrader, oldVersion, newVersion uint64) error {
		if oldVersion != 2 || newVersion != 3 {
			t.Errorf("Expected upgrade 2 -> 3, got %d -> %d", oldVersion, newVersion)
		}
		if err := u.CreateObjectStore(testStore); !errors.Is(err, datastore.ErrConstraint) {
			t.Errorf("Expected ErrConstraint when creating an existing store, got %v", err)
		}
		return u.CreateObjectStore("second")
	})
	if err != nil {
		t.Fatalf("Open() with upgrade failed: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Transaction("second", datastore.ModeReadWrite); err != nil {
		t.Errorf("Transaction() on store created by second upgrade failed: %v", err)
	}
}

func testFailedUpgrade(t *testing.T, f datastore.Factory) {
	upgradeErr := errors.New("upgrade failed")

	_, err := f.Open(context.Background(), "failed", 1, func(u datastore.Upgrader, _, _ uint64) error {
		if err := u.CreateObjectStore(testStore); err != nil {
			return err
		}
		return upgradeErr
	})
	if !errors.Is(err, upgradeErr) {
		t.Fatalf("Expected the upgrade error, got %v", err)
	}

	// nothing of the failed upgrade was kept: the store can be created again
	conn := open(t, f, "failed")
	mustPut(t, conn, "key", []byte("value"))
	if n := mustCount(t, conn); n != 1 {
		t.Errorf("Expected 1 entry, got %d", n)
	}
}

func testPutGet(t *testing.T, f datastore.Factory) {
	conn := open(t, f, "putget")

	if _, found := mustGet(t, conn, "nonexistent-key"); found {
		t.Errorf("Expected nonexistent key to return found=false")
	}

	value := []byte("value-1")
	mustPut(t, conn, "key", value)

	// the datastore keeps its own copy
	value[0] = 'X'
	result, found := mustGet(t, conn, "key")
	if !found || !bytes.Equal(result, []byte("value-1")) {
		t.Errorf("Expected value-1, got %q (found=%v)", result, found)
	}

	// the returned value is a copy
	result[0] = 'Y'
	again, _ := mustGet(t, conn, "key")
	if !bytes.Equal(again, []byte("value-1")) {
		t.Errorf("Get should return a copy, got %q", again)
	}

	mustPut(t, conn, "key", []byte("value-2"))
	result, _ = mustGet(t, conn, "key")
	if !bytes.Equal(result, []byte("value-2")) {
		t.Errorf("Expected value-2 after overwrite, got %q", result)
	}

	mustPut(t, conn, "empty", []byte{})
	if _, found := mustGet(t, conn, "empty"); !found {
		t.Errorf("Expected empty value to be found")
	}
}

func testDeleteClearCount(t *testing.T, f datastore.Factory) {
	conn := open(t, f, "count")

	if n := mustCount(t, conn); n != 0 {
		t.Errorf("Expected 0 entries, got %d", n)
	}

	for i := 0; i < 10; i++ {
		mustPut(t, conn, fmt.Sprintf("key-%d", i), []byte("v"))
	}
	if n := mustCount(t, conn); n != 10 {
		t.Errorf("Expected 10 entries, got %d", n)
	}

	if _, err := run(t, conn, datastore.ModeReadWrite, func(s datastore.ObjectStore) *datastore.Request {
		return s.Delete("key-0")
	}); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := run(t, conn, datastore.ModeReadWrite, func(s datastore.ObjectStore) *datastore.Request {
		return s.Delete("nonexistent-key")
	}); err != nil {
		t.Fatalf("Delete() of nonexistent key failed: %v", err)
	}
	if n := mustCount(t, conn); n != 9 {
		t.Errorf("Expected 9 entries, got %d", n)
	}

	if _, err := run(t, conn, datastore.ModeReadWrite, func(s datastore.ObjectStore) *datastore.Request {
		return s.Clear()
	}); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	if n := mustCount(t, conn); n != 0 {
		t.Errorf("Expected 0 entries after Clear, got %d", n)
	}
	if _, found := mustGet(t, conn, "key-1"); found {
		t.Errorf("Expected key-1 to be gone after Clear")
	}
}

func testReadOnly(t *testing.T, f datastore.Factory) {
	conn := open(t, f, "readonly")

	req, err := run(t, conn, datastore.ModeReadOnly, func(s datastore.ObjectStore) *datastore.Request {
		return s.Put("key", []byte("value"))
	})
	if !errors.Is(req.Err(), datastore.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly on request, got %v", req.Err())
	}
	if !errors.Is(err, datastore.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly on transaction, got %v", err)
	}
	if _, found := mustGet(t, conn, "key"); found {
		t.Errorf("Write of read-only transaction must not be visible")
	}
}

func testInvalidRequests(t *testing.T, f datastore.Factory) {
	conn := open(t, f, "invalid")

	req, err := run(t, conn, datastore.ModeReadWrite, func(s datastore.ObjectStore) *datastore.Request {
		return s.Put("", []byte("value"))
	})
	if !errors.Is(req.Err(), datastore.ErrData) || !errors.Is(err, datastore.ErrData) {
		t.Errorf("Expected ErrData for empty key, got request=%v transaction=%v", req.Err(), err)
	}

	tx, err := conn.Transaction(testStore, datastore.ModeReadWrite)
	if err != nil {
		t.Fatalf("Transaction() failed: %v", err)
	}
	if _, err := tx.ObjectStore("other"); !errors.Is(err, datastore.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for store outside of scope, got %v", err)
	}
	s, _ := tx.ObjectStore(testStore)
	tx.Commit()
	late := s.Put("key", []byte("value"))
	if !errors.Is(late.Err(), datastore.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState for request after commit, got %v", late.Err())
	}
	wait(t, tx)

	if _, err := conn.Transaction(testStore, datastore.Mode("bogus")); err == nil {
		t.Errorf("Expected error for invalid mode")
	}
}

func testAbort(t *testing.T, f datastore.Factory) {
	conn := open(t, f, "abort")

	tx, err := conn.Transaction(testStore, datastore.ModeReadWrite)
	if err != nil {
		t.Fatalf("Transaction() failed: %v", err)
	}
	s, _ := tx.ObjectStore(testStore)
	req := s.Put("key", []byte("value"))
	tx.Abort()
	wait(t, tx)

	if !errors.Is(tx.Err(), datastore.ErrAborted) {
		t.Errorf("Expected ErrAborted on transaction, got %v", tx.Err())
	}
	if !errors.Is(req.Err(), datastore.ErrAborted) {
		t.Errorf("Expected ErrAborted on request, got %v", req.Err())
	}
	if _, found := mustGet(t, conn, "key"); found {
		t.Errorf("Write of aborted transaction must not be visible")
	}
}

func testTransactionOrder(t *testing.T, f datastore.Factory) {
	conn := open(t, f, "order")

	// create all transactions first, commit them in reverse order:
	// they must still run in creation order, so the last created one wins
	const n = 50
	txs := make([]datastore.Transaction, n)
	for i := 0; i < n; i++ {
		tx, err := conn.Transaction(testStore, datastore.ModeReadWrite)
		if err != nil {
			t.Fatalf("Transaction() %d failed: %v", i, err)
		}
		s, _ := tx.ObjectStore(testStore)
		s.Put("key", []byte(fmt.Sprintf("%d", i)))
		txs[i] = tx
	}

	var wg sync.WaitGroup
	for i := n - 1; i >= 0; i-- {
		wg.Add(1)
		go func(tx datastore.Transaction) {
			defer wg.Done()
			tx.Commit()
		}(txs[i])
	}
	wg.Wait()
	for _, tx := range txs {
		wait(t, tx)
		if tx.Err() != nil {
			t.Errorf("Transaction failed: %v", tx.Err())
		}
	}

	result, _ := mustGet(t, conn, "key")
	if string(result) != fmt.Sprintf("%d", n-1) {
		t.Errorf("Expected %d, got %s", n-1, result)
	}
}

func testClosedConnection(t *testing.T, f datastore.Factory) {
	conn := open(t, f, "closed")

	// a transaction created before close still completes
	tx, err := conn.Transaction(testStore, datastore.ModeReadWrite)
	if err != nil {
		t.Fatalf("Transaction() failed: %v", err)
	}
	s, _ := tx.ObjectStore(testStore)
	s.Put("key", []byte("value"))

	conn.Close()
	conn.Close()

	tx.Commit()
	wait(t, tx)
	if tx.Err() != nil {
		t.Errorf("Transaction created before close failed: %v", tx.Err())
	}

	if _, err := conn.Transaction(testStore, datastore.ModeReadOnly); !errors.Is(err, datastore.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState on closed connection, got %v", err)
	}

	conn2 := open(t, f, "closed")
	if _, found := mustGet(t, conn2, "key"); !found {
		t.Errorf("Expected data written before close to be persisted")
	}
}

func testVersionChange(t *testing.T, f datastore.Factory) {
	conn := open(t, f, "versionchange")

	fired := make(chan struct{}, 1)
	conn.OnVersionChange(func() {
		fired <- struct{}{}
		conn.Close()
	})

	upgraded, err := f.Open(context.Background(), "versionchange", 2, nil)
	if err != nil {
		t.Fatalf("Open() with higher version failed: %v", err)
	}
	defer upgraded.Close()

	select {
	case <-fired:
	default:
		t.Errorf("Expected version change callback to be called")
	}
	if _, err := conn.Transaction(testStore, datastore.ModeReadOnly); !errors.Is(err, datastore.ErrInvalidState) {
		t.Errorf("Expected old connection to be closed, got %v", err)
	}
}

func testVersionChangeBeforeHandler(t *testing.T, f datastore.Factory) {
	conn := open(t, f, "late-handler")

	done := make(chan error, 1)
	go func() {
		done <- f.DeleteDatabase(context.Background(), "late-handler")
	}()

	// the deletion is waiting for the connection, nobody listened to the version change yet
	select {
	case err := <-done:
		t.Fatalf("DeleteDatabase() returned before the connection was closed: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	// the missed version change is delivered on registration
	conn.OnVersionChange(conn.Close)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("DeleteDatabase() failed: %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("version change was not delivered to the late handler")
	}
}

func testDeleteDatabase(t *testing.T, f datastore.Factory) {
	if err := f.DeleteDatabase(context.Background(), "never-created"); err != nil {
		t.Errorf("DeleteDatabase() of an absent database failed: %v", err)
	}

	conn := open(t, f, "delete")
	conn.OnVersionChange(conn.Close)
	mustPut(t, conn, "key", []byte("value"))

	if err := f.DeleteDatabase(context.Background(), "delete"); err != nil {
		t.Fatalf("DeleteDatabase() failed: %v", err)
	}
	if _, err := conn.Transaction(testStore, datastore.ModeReadOnly); !errors.Is(err, datastore.ErrInvalidState) {
		t.Errorf("Expected connection to be closed after delete, got %v", err)
	}

	upgraded := false
	conn2, err := f.Open(context.Background(), "delete", 1, func(u datastore.Upgrader, oldVersion, _ uint64) error {
		upgraded = true
		if oldVersion != 0 {
			t.Errorf("Expected a fresh database, got old version %d", oldVersion)
		}
		return u.CreateObjectStore(testStore)
	})
	if err != nil {
		t.Fatalf("Open() after delete failed: %v", err)
	}
	defer conn2.Close()

	if !upgraded {
		t.Errorf("Expected the deleted database to be created again")
	}
	if n := mustCount(t, conn2); n != 0 {
		t.Errorf("Expected empty store after delete, got %d entries", n)
	}
}

func testDeleteDatabaseBlocked(t *testing.T, f datastore.Factory) {
	conn := open(t, f, "blocked")

	// the connection ignores the version change, so the deletion waits for it
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := f.DeleteDatabase(ctx, "blocked"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected DeleteDatabase() to be blocked, got %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- f.DeleteDatabase(context.Background(), "blocked")
	}()

	time.Sleep(20 * time.Millisecond)
	conn.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("DeleteDatabase() failed after close: %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("DeleteDatabase() still blocked after the connection was closed")
	}
}
