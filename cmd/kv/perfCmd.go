package kv

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/lib/common"
	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for sKV datastores",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
	key = "metrics"
	perfTestCmd.Flags().Bool(key, true, util.WrapString("Print the store metrics in Prometheus text format after the tests"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfKeySpread <= 0 || perfNumThreads <= 0 {
		return fmt.Errorf("keys and threads must be greater than 0")
	}
	return nil
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for sKV datastores")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(kvConfig.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)

	results["set"] = benchmark("set", func(b *testing.B) {
		getKey, iter := getKeys("set")
		b.Cleanup(func() { cleanup("set", iter) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := kvStore.SetItem(getKey(counter), []byte("test")); err != nil {
					log.Warningf("(set) - error setting key: %v", err)
				}
				counter++
			}
		})
	})

	results["set-large"] = benchmark("set-large", func(b *testing.B) {
		largeValue := make([]byte, perfLargeValueSizeKB*1024)
		getKey, iter := getKeys("set-large")
		b.Cleanup(func() { cleanup("set-large", iter) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := kvStore.SetItem(getKey(counter), largeValue); err != nil {
					log.Warningf("(set-large) - error setting key: %v", err)
				}
				counter++
			}
		})
	})

	results["get"] = benchmark("get", func(b *testing.B) {
		getKey, iter := getKeys("get")
		iter(func(k string) {
			if _, err := kvStore.SetItem(k, []byte("test")); err != nil {
				log.Warningf("(get) - error preparing key: %v", err)
			}
		})
		b.Cleanup(func() { cleanup("get", iter) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, _, err := kvStore.GetItem(getKey(counter)); err != nil {
					log.Warningf("(get) - error getting key: %v", err)
				}
				counter++
			}
		})
	})

	results["delete"] = benchmark("delete", func(b *testing.B) {
		getKey, _ := getKeys("delete")

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if err := kvStore.RemoveItem(getKey(counter)); err != nil {
					log.Warningf("(delete) - error deleting key: %v", err)
				}
				counter++
			}
		})
	})

	results["length"] = benchmark("length", func(b *testing.B) {
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				if _, err := kvStore.Length(); err != nil {
					log.Warningf("(length) - error counting keys: %v", err)
				}
			}
		})
	})

	results["mixed"] = benchmark("mixed", func(b *testing.B) {
		getKey, iter := getKeys("mixed")
		b.Cleanup(func() { cleanup("mixed", iter) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				key := getKey(counter)
				var err error
				switch counter % 10 {
				case 0, 1, 2: // 30% writes
					_, err = kvStore.SetItem(key, []byte("test"))
				case 3: // 10% deletes
					err = kvStore.RemoveItem(key)
				default: // 60% reads
					_, _, err = kvStore.GetItem(key)
				}
				if err != nil {
					log.Warningf("(mixed) - error: %v", err)
				}
				counter++
			}
		})
	})

	fmt.Println()
	if !shouldSkip("order") {
		if err := checkOrder(); err != nil {
			return err
		}
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, kvConfig); err != nil {
			return fmt.Errorf("error writing CSV: %w", err)
		}
		fmt.Println("CSV export completed successfully")
	}

	if viper.GetBool("metrics") {
		fmt.Println()
		fmt.Println("Metrics:")
		metrics.WritePrometheus(os.Stdout, false)
	}

	return nil
}

// checkOrder closes the connection and issues concurrent writes to one key while it is reopened.
// Afterward the key must hold a value that was written and the entry count must be unchanged.
func checkOrder() error {
	key := perfKeyPrefix + "-order"
	before, err := kvStore.Length()
	if err != nil {
		return err
	}

	kvStore.Close()

	var wg sync.WaitGroup
	errs := make(chan error, perfNumThreads)
	for i := 0; i < perfNumThreads; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := kvStore.SetItem(key, []byte(strconv.Itoa(i))); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	if err, ok := <-errs; ok {
		return fmt.Errorf("order check failed: %w", err)
	}

	// a single writer always sees its last write
	for i := 0; i < perfNumThreads; i++ {
		if _, err := kvStore.SetItem(key, []byte(strconv.Itoa(i))); err != nil {
			return fmt.Errorf("order check failed: %w", err)
		}
	}
	value, found, err := kvStore.GetItem(key)
	if err != nil {
		return err
	}
	if !found || string(value) != strconv.Itoa(perfNumThreads-1) {
		return fmt.Errorf("order check failed: expected %d, got %q (found=%v)", perfNumThreads-1, value, found)
	}

	if err := kvStore.RemoveItem(key); err != nil {
		return err
	}
	after, err := kvStore.Length()
	if err != nil {
		return err
	}
	if after != before {
		return fmt.Errorf("order check failed: expected %d entries, got %d", before, after)
	}

	fmt.Printf("%-20sok\n", "order")
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// benchmark runs fn unless the test is skipped and prints the result
func benchmark(test string, fn func(b *testing.B)) testing.BenchmarkResult {
	var result testing.BenchmarkResult
	if !shouldSkip(test) {
		result = testing.Benchmark(fn)
	}
	printResult(test, result)
	return result
}

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// cleanup removes all test keys
func cleanup(test string, iter func(func(string))) {
	iter(func(k string) {
		if err := kvStore.RemoveItem(k); err != nil {
			log.Warningf("(%s) - error deleting key: %v", test, err)
		}
	})
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.StoreConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Engine", "Name", "Store", "SchemaVersion",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			string(config.Engine),
			config.Name,
			config.StoreName,
			strconv.FormatUint(config.Version, 10),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
