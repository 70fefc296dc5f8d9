package perf

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	cmdUtil "github.com/ValentinKolb/kvmod/cmd/util"
	"github.com/ValentinKolb/kvmod/lib/common"
	"github.com/ValentinKolb/kvmod/lib/host"
	"github.com/ValentinKolb/kvmod/lib/raw"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	PerfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the embedded host and its modules",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix  = "__test"
	perfNumThreads = 10
	perfKeySpread  = 100
	perfSkip       = make([]string, 0)
)

func init() {
	key := "skip"
	PerfCmd.Flags().String(key, "", cmdUtil.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, cmdUtil.WrapString("Number of goroutines to use for the benchmark"))
	key = "keys"
	PerfCmd.Flags().Int(key, 100, cmdUtil.WrapString("How many different keys to use for the tests"))
	key = "csv"
	PerfCmd.Flags().String(key, "", cmdUtil.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	return nil
}

// benchmark is one test case. Commands returned by next are issued in a
// parallel loop, setup runs once per key before the timer starts.
type benchmark struct {
	name   string
	module string // module that has to be loaded, empty for builtins
	setup  func(key string) []string
	next   func(key string, i int) []string
}

var benchmarks = []benchmark{
	{
		name: "set",
		next: func(key string, _ int) []string { return []string{"SET", key, "test"} },
	},
	{
		name:  "get",
		setup: func(key string) []string { return []string{"SET", key, "test"} },
		next:  func(key string, _ int) []string { return []string{"GET", key} },
	},
	{
		name: "incr",
		next: func(key string, _ int) []string { return []string{"INCR", key} },
	},
	{
		name: "mixed",
		next: func(key string, i int) []string {
			switch i % 4 {
			case 0:
				return []string{"SET", key, "test"}
			case 1:
				return []string{"GET", key}
			case 2:
				return []string{"DEL", key}
			default:
				return []string{"EXISTS", key}
			}
		},
	},
	{
		name:   "project",
		module: "inspect",
		setup:  func(key string) []string { return []string{"HSET", key, "a", "1", "b", "2"} },
		next:   func(key string, _ int) []string { return []string{"CALL.PROJECT", "HGETALL", key} },
	},
	{
		name:   "keyapi",
		module: "keys",
		next: func(key string, i int) []string {
			if i%2 == 0 {
				return []string{"KEY.SET", key, "test"}
			}
			return []string{"KEY.GET", key}
		},
	},
	{
		name:   "lock",
		module: "lockmgr",
		next:   func(key string, _ int) []string { return []string{"LOCK.ACQUIRE", key} },
	},
	{
		name:   "block",
		module: "blocking",
		next:   func(string, int) []string { return []string{"BLOCK.SLEEP", "0"} },
	},
}

func run(cmd *cobra.Command, _ []string) error {
	h, err := cmdUtil.StartHost()
	if err != nil {
		return err
	}
	defer h.Close()

	conf := h.Config()

	fmt.Println("Performance testing tool for the embedded host")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(conf.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()
	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)
	for _, bm := range benchmarks {
		if shouldSkip(bm.name) || (bm.module != "" && !slices.Contains(h.Modules(), bm.module)) {
			results[bm.name] = testing.BenchmarkResult{}
			printResult(bm.name, results[bm.name])
			continue
		}
		results[bm.name] = runBenchmark(h, bm)
		printResult(bm.name, results[bm.name])
	}

	fmt.Println()
	fmt.Println(h.Stats().String())

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, conf); err != nil {
			return fmt.Errorf("failed to export results to CSV: %w", err)
		}
		fmt.Println("Export complete")
	}
	return nil
}

func runBenchmark(h *host.Host, bm benchmark) testing.BenchmarkResult {
	return testing.Benchmark(func(b *testing.B) {
		getKey, iter := getKeys(bm.name)
		c := h.NewClient()

		if bm.setup != nil {
			iter(func(k string) { do(c, bm.name, bm.setup(k)) })
		}

		b.Cleanup(func() {
			iter(func(k string) { do(c, bm.name, []string{"DEL", k}) })
		})

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			client := h.NewClient()
			counter := 0
			for pb.Next() {
				do(client, bm.name, bm.next(getKey(counter), counter))
				counter++
			}
		})
	})
}

// do runs a command and logs error replies
func do(c *host.Client, test string, args []string) {
	r := <-c.DoAsync(args...)
	if r.Type == raw.ReplyError {
		cmdUtil.Logger.Warningf("(%s) - error reply for %v: %s", test, args, r.Str)
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
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
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, conf common.HostConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Protocol", "Modules", "Threads", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, bm := range benchmarks {
		result, ok := results[bm.name]
		if !ok {
			continue
		}

		var nsPerOp, opsPerSec float64
		skipped := "true"
		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			bm.name,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strconv.Itoa(conf.DefaultProtocol),
			strings.Join(conf.Modules, ";"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfKeySpread),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %w", bm.name, err)
		}
	}
	return nil
}
