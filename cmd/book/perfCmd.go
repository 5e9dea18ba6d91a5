package book

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/paperKV/cmd/util"
	"github.com/ValentinKolb/paperKV/lib/book"
	"github.com/ValentinKolb/paperKV/lib/codec"
	"github.com/ValentinKolb/paperKV/lib/common"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for books",
		Long:    "Runs every operation asynchronously against a scratch book (<book>.perf) and reports throughput and latency. The scratch book is destroyed afterwards.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfOps       = 10000
	perfKeySpread = 100
	perfValueSize = 256
	perfSkip      = make([]string, 0)
)

// perfRecord is the value written by the perf tool
type perfRecord struct {
	ID      int       `json:"id" yaml:"id"`
	Payload string    `json:"payload" yaml:"payload"`
	Written time.Time `json:"written" yaml:"written"`
}

// phaseResult is the outcome of one perf phase
type phaseResult struct {
	Ops      int
	Failures int64
	Duration time.Duration
	Skipped  bool
}

func (r phaseResult) nsPerOp() float64 {
	if r.Ops == 0 {
		return 0
	}
	return math.Max(float64(r.Duration.Nanoseconds())/float64(r.Ops), 1) // prevent division by zero
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Phases to skip (comma separated - e.g. write,read)"))
	key = "ops"
	perfTestCmd.Flags().Int(key, 10000, util.WrapString("Number of operations per phase"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "value-size"
	perfTestCmd.Flags().Int(key, 256, util.WrapString("Size of the payload of every written value (in bytes)"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfOps = max(viper.GetInt("ops"), 1)
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfValueSize = max(viper.GetInt("value-size"), 0)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if c := viper.GetString("codec"); strings.HasPrefix(strings.ToLower(c), codec.Proto.Name()) {
		return fmt.Errorf("codec %s needs protobuf messages and cannot be used by the perf tool", c)
	}
	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {
	conf := *bookConf
	conf.Name = bookConf.Name + ".perf"

	registry := gometrics.NewRegistry()
	b, err := util.OpenBook[perfRecord](&conf, book.WithMetricsRegistry(registry))
	if err != nil {
		return err
	}
	defer b.Close()

	fmt.Println("Performance testing tool for books")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Print(conf.String())
	fmt.Printf("  %-22s: %d\n", "Operations", perfOps)
	fmt.Printf("  %-22s: %d\n", "Keys", perfKeySpread)
	fmt.Printf("  %-22s: %d bytes\n", "Value Size", perfValueSize)
	fmt.Println()

	fmt.Println("starting tests...")

	payload := strings.Repeat("x", perfValueSize)
	getKey, iter := getKeys()
	fill := func() {
		iter(func(i int, k string) {
			if _, err := b.Write(k, perfRecord{ID: i, Payload: payload, Written: time.Now()}); err != nil {
				log.Printf("(prepare) - error writing key: %v\n", err)
			}
		})
	}

	// Create results map
	results := make(map[string]phaseResult)
	var order []string
	record := func(name string, res phaseResult) {
		order = append(order, name)
		results[name] = res
		printResult(name, res)
	}

	record("write", runPhase("write", registry, func(i int, done func(error)) {
		b.WriteAsync(getKey(i), perfRecord{ID: i, Payload: payload, Written: time.Now()}, func(res book.Result[*book.Book[perfRecord]]) {
			done(res.Err)
		})
	}))

	fill()
	record("read", runPhase("read", registry, func(i int, done func(error)) {
		b.ReadAsync(getKey(i), func(res book.Result[book.Entry[perfRecord]]) {
			if res.Err == nil && !res.Value.Found {
				done(fmt.Errorf("key %s not found", getKey(i)))
				return
			}
			done(res.Err)
		})
	}))

	record("read-or", runPhase("read-or", registry, func(i int, done func(error)) {
		b.ReadOrAsync(fmt.Sprintf("missing-%d", i%perfKeySpread), perfRecord{ID: -1}, func(res book.Result[perfRecord]) {
			done(res.Err)
		})
	}))

	record("exist", runPhase("exist", registry, func(i int, done func(error)) {
		b.ExistAsync(getKey(i), func(res book.Result[bool]) {
			done(res.Err)
		})
	}))

	// alternating write and read of the same keys
	record("mixed", runPhase("mixed", registry, func(i int, done func(error)) {
		key := getKey(i / 2)
		if i%2 == 0 {
			b.WriteAsync(key, perfRecord{ID: i, Payload: payload, Written: time.Now()}, func(res book.Result[*book.Book[perfRecord]]) {
				done(res.Err)
			})
			return
		}
		b.ReadAsync(key, func(res book.Result[book.Entry[perfRecord]]) {
			done(res.Err)
		})
	}))

	fill()
	record("delete", runPhase("delete", registry, func(i int, done func(error)) {
		b.DeleteAsync(getKey(i), func(res book.Result[book.Void]) {
			done(res.Err)
		})
	}))

	// cleanup
	if err := b.Destroy(); err != nil {
		log.Printf("(cleanup) - error destroying book: %v\n", err)
	}

	fmt.Println()
	fmt.Println("Metrics:")
	gometrics.WriteOnce(registry, os.Stdout)

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, order, results, &conf); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// runPhase submits perfOps operations and waits until every callback has run.
// submit must call done exactly once per operation, from the callback.
func runPhase(name string, registry gometrics.Registry, submit func(i int, done func(error))) phaseResult {
	if shouldSkip(name) {
		return phaseResult{Skipped: true}
	}

	latency := gometrics.GetOrRegisterTimer("perf."+name+".latency", registry)
	var (
		wg       sync.WaitGroup
		failures atomic.Int64
	)

	wg.Add(perfOps)
	start := time.Now()
	for i := 0; i < perfOps; i++ {
		submitted := time.Now()
		submit(i, func(err error) {
			latency.UpdateSince(submitted)
			if err != nil && failures.Add(1) == 1 {
				log.Printf("(%s) - error: %v\n", name, err)
			}
			wg.Done()
		})
	}
	wg.Wait()

	return phaseResult{
		Ops:      perfOps,
		Failures: failures.Load(),
		Duration: time.Since(start),
	}
}

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys() (func(int) string, func(func(int, string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("key-%d", i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(int, string)) {
		for i, key := range keys {
			fn(i, key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a phase in a formatted way
func printResult(test string, result phaseResult) {
	if result.Skipped {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := result.nsPerOp()
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\t%d failed\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec, result.Failures)
}

// writeResultsToCSV writes the phase results to a CSV file
func writeResultsToCSV(csvPath string, order []string, results map[string]phaseResult, conf *common.BookConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "Ops", "Failures", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Engine", "Codec", "Workers", "Keys Count", "ValueSizeBytes",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for _, test := range order {
		result := results[test]

		var nsPerOp, opsPerSec float64
		if !result.Skipped {
			nsPerOp = result.nsPerOp()
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			strconv.Itoa(result.Ops),
			strconv.FormatInt(result.Failures, 10),
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			strconv.FormatBool(result.Skipped),
			string(conf.Engine),
			conf.Codec,
			strconv.Itoa(conf.Workers),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfValueSize),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
