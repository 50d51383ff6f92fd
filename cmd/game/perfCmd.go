package game

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/gamelink/cmd/util"
	"github.com/ValentinKolb/gamelink/rpc/common"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Measures request round trips against the game",
		Long:    "Sends the configured request from several goroutines over the one connection and prints latency percentiles.",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfRequests   = 1000
	perfNumThreads = 10
	perfMethod     = "get_state"
	perfParams     json.RawMessage
)

// perfPercentiles are the reported latency percentiles
var perfPercentiles = []float64{0.5, 0.9, 0.95, 0.99}

// perfResult is the outcome of one benchmark run
type perfResult struct {
	Requests int64
	Errors   int64
	Timeouts int64
	Elapsed  time.Duration
	Latency  metrics.Histogram
}

func init() {
	// add flags
	key := "requests"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("Total number of requests to send"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines sending requests concurrently"))
	key = "method"
	perfTestCmd.Flags().String(key, "get_state", util.WrapString("Method to call"))
	key = "params"
	perfTestCmd.Flags().String(key, `{"depth":"minimal"}`, util.WrapString("Params of the method as JSON"))
	key = "prometheus"
	perfTestCmd.Flags().Bool(key, false, util.WrapString("Print the client metrics in Prometheus text format afterwards"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfRequests = viper.GetInt("requests")
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfMethod = viper.GetString("method")
	perfParams = json.RawMessage(viper.GetString("params"))

	if perfRequests <= 0 {
		return fmt.Errorf("requests must be positive")
	}
	if len(perfParams) > 0 && !json.Valid(perfParams) {
		return fmt.Errorf("params must be valid JSON")
	}
	return nil
}

func run(cmd *cobra.Command, _ []string) error {

	fmt.Println("Round trip benchmark")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	config := util.GetClientConfig()
	fmt.Println(config.String())
	fmt.Printf("Method: %s %s\n", perfMethod, perfParams)
	fmt.Printf("Requests: %d, Threads: %d\n", perfRequests, perfNumThreads)
	fmt.Println()

	if ack, ok := gameClient.Handshake(); ok {
		fmt.Printf("Connected to %s (mode %s)\n\n", ack.Game, ack.Mode)
	}

	result := benchmark(cmd)
	printResult(perfMethod, result)

	if viper.GetBool("prometheus") {
		fmt.Println()
		gameClient.Transport().WriteMetrics(os.Stdout)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, result, config); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// benchmark sends perfRequests requests from perfNumThreads goroutines
func benchmark(cmd *cobra.Command) perfResult {
	ctx := commandContext(cmd)
	res := perfResult{
		Latency: metrics.NewHistogram(metrics.NewUniformSample(perfRequests)),
	}

	var (
		next     atomic.Int64
		errCount atomic.Int64
		timeouts atomic.Int64
		wg       sync.WaitGroup
	)

	start := time.Now()
	for i := 0; i < perfNumThreads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for next.Add(1) <= int64(perfRequests) {
				reqStart := time.Now()
				_, err := gameClient.Call(ctx, perfMethod, perfParams)
				res.Latency.Update(int64(time.Since(reqStart)))
				if err != nil {
					errCount.Add(1)
					if errors.Is(err, common.ErrRequestTimeout) {
						timeouts.Add(1)
					}
					Logger.Debugf("(%s) - request failed: %v", perfMethod, err)
				}
			}
		}()
	}
	wg.Wait()

	res.Elapsed = time.Since(start)
	res.Requests = int64(perfRequests)
	res.Errors = errCount.Load()
	res.Timeouts = timeouts.Load()
	return res
}

// printResult prints the result of a benchmark in a formatted way
func printResult(test string, result perfResult) {
	opsPerSec := float64(result.Requests) / max(result.Elapsed.Seconds(), 1e-9)
	ps := result.Latency.Percentiles(perfPercentiles)

	fmt.Printf("%-20s%d requests in %s\t%.0f ops/sec\t%d errors (%d timeouts)\n",
		test, result.Requests, util.FormatDuration(result.Elapsed), opsPerSec, result.Errors, result.Timeouts)
	fmt.Printf("%-20smin %s  mean %s  max %s\n", "",
		util.FormatDuration(time.Duration(result.Latency.Min())),
		util.FormatDuration(time.Duration(result.Latency.Mean())),
		util.FormatDuration(time.Duration(result.Latency.Max())))

	parts := make([]string, len(perfPercentiles))
	for i, p := range perfPercentiles {
		parts[i] = fmt.Sprintf("p%g %s", p*100, util.FormatDuration(time.Duration(ps[i])))
	}
	fmt.Printf("%-20s%s\n", "", strings.Join(parts, "  "))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, result perfResult, config common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Method", "Requests", "Errors", "Timeouts", "ElapsedNs", "OpsPerSec",
		"MeanNs", "P50Ns", "P90Ns", "P95Ns", "P99Ns", "MaxNs",
		"Endpoint", "Transport", "Threads", "RequestTimeout",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	ps := result.Latency.Percentiles(perfPercentiles)
	opsPerSec := float64(result.Requests) / max(result.Elapsed.Seconds(), 1e-9)

	row := []string{
		perfMethod,
		strconv.FormatInt(result.Requests, 10),
		strconv.FormatInt(result.Errors, 10),
		strconv.FormatInt(result.Timeouts, 10),
		strconv.FormatInt(result.Elapsed.Nanoseconds(), 10),
		fmt.Sprintf("%.0f", opsPerSec),
		fmt.Sprintf("%.0f", result.Latency.Mean()),
		fmt.Sprintf("%.0f", ps[0]),
		fmt.Sprintf("%.0f", ps[1]),
		fmt.Sprintf("%.0f", ps[2]),
		fmt.Sprintf("%.0f", ps[3]),
		strconv.FormatInt(result.Latency.Max(), 10),
		config.Transport.Endpoint,
		viper.GetString("transport"),
		strconv.Itoa(perfNumThreads),
		config.RequestTimeout.String(),
	}

	if err := writer.Write(row); err != nil {
		return fmt.Errorf("failed to write row for %s: %v", perfMethod, err)
	}

	return nil
}
