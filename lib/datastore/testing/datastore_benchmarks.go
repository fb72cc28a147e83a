package testing

import (
	"context"
	"fmt"
	"testing"

	"github.com/ValentinKolb/sKV/lib/datastore"
)

// RunDatastoreBenchmarks runs all benchmarks for a datastore.Factory implementation
func RunDatastoreBenchmarks(b *testing.B, name string, factory FactoryFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Put", func(b *testing.B) {
			benchmarkPut(b, factory(b))
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory(b))
		})

		b.Run("BatchPut", func(b *testing.B) {
			benchmarkBatchPut(b, factory(b))
		})

		b.Run("Open", func(b *testing.B) {
			benchmarkOpen(b, factory(b))
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for one put per transaction
func benchmarkPut(b *testing.B, f datastore.Factory) {
	conn := open(b, f, "bench-put")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter)
			value := []byte(fmt.Sprintf("test-value-%d", counter))
			if _, err := run(b, conn, datastore.ModeReadWrite, func(s datastore.ObjectStore) *datastore.Request {
				return s.Put(key, value)
			}); err != nil {
				b.Errorf("Put failed: %v", err)
			}
			counter++
		}
	})
}

// Benchmark for one get per transaction
func benchmarkGet(b *testing.B, f datastore.Factory) {
	conn := open(b, f, "bench-get")

	const numKeys = 1000
	for i := 0; i < numKeys; i++ {
		mustPut(b, conn, fmt.Sprintf("test-key-%d", i), []byte(fmt.Sprintf("test-value-%d", i)))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter%numKeys)
			if _, err := run(b, conn, datastore.ModeReadOnly, func(s datastore.ObjectStore) *datastore.Request {
				return s.Get(key)
			}); err != nil {
				b.Errorf("Get failed: %v", err)
			}
			counter++
		}
	})
}

// Benchmark for many puts in a single transaction
func benchmarkBatchPut(b *testing.B, f datastore.Factory) {
	conn := open(b, f, "bench-batch")

	b.ResetTimer()
	tx, err := conn.Transaction(testStore, datastore.ModeReadWrite)
	if err != nil {
		b.Fatalf("Transaction() failed: %v", err)
	}
	s, _ := tx.ObjectStore(testStore)
	for i := 0; i < b.N; i++ {
		s.Put(fmt.Sprintf("test-key-%d", i), []byte("test-value"))
	}
	tx.Commit()
	wait(b, tx)
	if tx.Err() != nil {
		b.Fatalf("batch failed: %v", tx.Err())
	}
}

// Benchmark for opening and closing a connection to an existing database
func benchmarkOpen(b *testing.B, f datastore.Factory) {
	open(b, f, "bench-open")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		conn, err := f.Open(context.Background(), "bench-open", 1, createStore)
		if err != nil {
			b.Fatalf("Open() failed: %v", err)
		}
		conn.Close()
	}
}
