package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/ValentinKolb/sKV/lib/datastore"
	dstesting "github.com/ValentinKolb/sKV/lib/datastore/testing"
)

func newTestFactory(tb testing.TB) datastore.Factory {
	f := NewFactory()
	tb.Cleanup(func() { _ = f.Close() })
	return f
}

func Test(t *testing.T) {
	dstesting.RunDatastoreTests(t, "Memory", newTestFactory)
}

func Benchmark(b *testing.B) {
	dstesting.RunDatastoreBenchmarks(b, "Memory", newTestFactory)
}

func TestFactoriesAreIndependent(t *testing.T) {
	create := func(u datastore.Upgrader, _, _ uint64) error {
		return u.CreateObjectStore("s")
	}

	a, b := NewFactory(), NewFactory()
	defer a.Close()
	defer b.Close()

	conn, err := a.Open(context.Background(), "db", 2, create)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer conn.Close()

	// the second factory does not know the database, so version 1 is fine there
	other, err := b.Open(context.Background(), "db", 1, create)
	if err != nil {
		t.Fatalf("Open() on second factory failed: %v", err)
	}
	other.Close()
}

func TestClosedFactory(t *testing.T) {
	f := NewFactory()
	conn, err := f.Open(context.Background(), "db", 1, nil)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if _, err := conn.Transaction("s", datastore.ModeReadOnly); !errors.Is(err, datastore.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState after factory close, got %v", err)
	}
	if _, err := f.Open(context.Background(), "db", 1, nil); !errors.Is(err, datastore.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
