package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/wbKV/cmd/util"
	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
	"github.com/google/uuid"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for wbKV servers",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfOps              = 10_000
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfBulkSize         = 16
	perfSkip             = make([]string, 0)

	// perfTests is the order in which the tests run
	perfTests = []string{"write", "write-large", "write-all", "load", "load-all", "delete", "mixed", "flush"}

	// percentiles printed for every test
	perfPercentiles = []float64{0.5, 0.95, 0.99}
)

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. write,load)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "ops"
	perfTestCmd.Flags().Int(key, 10_000, util.WrapString("Number of operations per test"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the write-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "bulk-size"
	perfTestCmd.Flags().Int(key, 16, util.WrapString("Number of keys per write-all and load-all call"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfOps = viper.GetInt("ops")
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfBulkSize = viper.GetInt("bulk-size")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfOps < 1 || perfKeySpread < 1 || perfNumThreads < 1 || perfBulkSize < 1 {
		return fmt.Errorf("ops, keys, threads and bulk-size must be at least 1")
	}
	return nil
}

// perfResult is the outcome of a single test
type perfResult struct {
	timer  metrics.Timer
	errors int64
	total  time.Duration
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for wbKV servers")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d, Ops per test: %d\n", perfNumThreads, perfOps)
	fmt.Println()

	// every run uses its own keys so parallel runs do not interfere
	prefix := "__perf-" + uuid.NewString()
	keys := make([]string, perfKeySpread)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s-%d", prefix, i)
	}
	key := func(i int) string { return keys[i%len(keys)] }
	bulk := func(i int) []string {
		out := make([]string, perfBulkSize)
		for j := range out {
			out[j] = key(i*perfBulkSize + j)
		}
		return out
	}

	smallValue := []byte("test")
	largeValue := make([]byte, perfLargeValueSizeKB*1024)

	ops := map[string]func(i int) error{
		"write": func(i int) error {
			return rpcClient.Write(key(i), smallValue)
		},
		"write-large": func(i int) error {
			return rpcClient.Write(key(i), largeValue)
		},
		"write-all": func(i int) error {
			entries := make([]loaderwriter.Entry[string, []byte], 0, perfBulkSize)
			for _, k := range bulk(i) {
				entries = append(entries, loaderwriter.Entry[string, []byte]{Key: k, Value: smallValue})
			}
			return rpcClient.WriteAll(entries)
		},
		"load": func(i int) error {
			_, _, err := rpcClient.Load(key(i))
			return err
		},
		"load-all": func(i int) error {
			_, err := rpcClient.LoadAll(bulk(i))
			return err
		},
		"delete": func(i int) error {
			return rpcClient.Delete(key(i))
		},
		"mixed": func(i int) error {
			switch i % 3 {
			case 0:
				return rpcClient.Write(key(i), smallValue)
			case 1:
				_, _, err := rpcClient.Load(key(i))
				return err
			default:
				return rpcClient.Delete(key(i))
			}
		},
		"flush": func(int) error {
			return rpcClient.Flush()
		},
	}

	fmt.Println("starting tests...")
	fmt.Printf("%-14s%12s%12s%12s%12s%14s%8s\n", "test", "mean", "p50", "p95", "p99", "ops/sec", "errors")

	registry := metrics.NewRegistry()
	results := make(map[string]*perfResult)
	for _, name := range perfTests {
		if slices.Contains(perfSkip, name) {
			fmt.Printf("%-14sskipped\n", name)
			continue
		}
		result := runPerfTest(metrics.GetOrRegisterTimer(name, registry), ops[name])
		results[name] = result
		printPerfResult(name, result)
	}

	// remove the test keys again
	if err := rpcClient.DeleteAll(keys); err != nil {
		log.Printf("error deleting test keys: %v\n", err)
	} else if err := rpcClient.Flush(); err != nil {
		log.Printf("error flushing deletes of test keys: %v\n", err)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// runPerfTest runs perfOps calls of op on perfNumThreads goroutines
func runPerfTest(timer metrics.Timer, op func(int) error) *perfResult {
	result := &perfResult{timer: timer}
	var next atomic.Int64
	var errCount atomic.Int64
	var wg sync.WaitGroup

	start := time.Now()
	for range perfNumThreads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1) - 1)
				if i >= perfOps {
					return
				}
				opStart := time.Now()
				err := op(i)
				timer.UpdateSince(opStart)
				if err != nil {
					if errCount.Add(1) == 1 {
						log.Printf("error during test: %v\n", err)
					}
				}
			}
		}()
	}
	wg.Wait()

	result.total = time.Since(start)
	result.errors = errCount.Load()
	return result
}

func (r *perfResult) opsPerSec() float64 {
	if r.total <= 0 {
		return 0
	}
	return float64(r.timer.Count()) / r.total.Seconds()
}

// printPerfResult prints the result of a test in a formatted way
func printPerfResult(test string, r *perfResult) {
	snap := r.timer.Snapshot()
	ps := snap.Percentiles(perfPercentiles)
	fmt.Printf("%-14s%12s%12s%12s%12s%14.0f%8d\n",
		test,
		time.Duration(snap.Mean()).Round(time.Microsecond),
		time.Duration(ps[0]).Round(time.Microsecond),
		time.Duration(ps[1]).Round(time.Microsecond),
		time.Duration(ps[2]).Round(time.Microsecond),
		r.opsPerSec(),
		r.errors,
	)
}

// writeResultsToCSV writes the results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]*perfResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	config := util.GetClientConfig()
	header := []string{
		"Test", "Ops", "Errors", "MeanNs", "P50Ns", "P95Ns", "P99Ns", "OpsPerSec",
		"Endpoints", "TimeoutSec", "RetryCount", "ShardID", "Serializer",
		"Threads", "LargeValueSizeKB", "Keys Count", "BulkSize",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, test := range perfTests {
		r, ok := results[test]
		if !ok {
			continue
		}
		snap := r.timer.Snapshot()
		ps := snap.Percentiles(perfPercentiles)
		row := []string{
			test,
			strconv.FormatInt(snap.Count(), 10),
			strconv.FormatInt(r.errors, 10),
			fmt.Sprintf("%.0f", snap.Mean()),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			fmt.Sprintf("%.0f", ps[2]),
			fmt.Sprintf("%.0f", r.opsPerSec()),
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfBulkSize),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}
	return nil
}
