package connect

import (
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dNet/cmd/util"
	"github.com/ValentinKolb/dNet/net/common"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for dNet echo servers",
		Long:    "Measures the time per echoed message for every delivery class. A message counts once its echo arrived.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfBatch       = 32
	perfMessageSize = 64
	perfLargeSizeKB = 16
	perfTimeout     = 10 * time.Second
	perfSkip        = make([]string, 0)

	// perfRun tags the messages of one benchmark run, late echoes of a previous run are ignored
	perfRun uint32
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. unreliable,mixed)"))
	key = "batch"
	perfTestCmd.Flags().Int(key, 32, util.WrapString("Messages enqueued per tick"))
	key = "message-bytes"
	perfTestCmd.Flags().Int(key, 64, util.WrapString("Payload size of the small messages in bytes"))
	key = "large-size"
	perfTestCmd.Flags().Int(key, 16, util.WrapString("Payload size of the fragmented messages in KB"))
	key = "run-timeout"
	perfTestCmd.Flags().Duration(key, 10*time.Second, util.WrapString("How long one run waits for its echoes"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfBatch = max(viper.GetInt("batch"), 1)
	perfMessageSize = max(viper.GetInt("message-bytes"), 8)
	perfLargeSizeKB = max(viper.GetInt("large-size"), 1)
	perfTimeout = viper.GetDuration("run-timeout")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// perfMessage is one message of a benchmark run
type perfMessage struct {
	rel  common.Reliability
	size int
}

// perfCase describes the traffic of a benchmark
type perfCase struct {
	name string
	// next returns the i-th message of a run
	next func(i int) perfMessage
	// lossy cases accept missing echoes once the run timed out
	lossy bool
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for dNet echo servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(connectCmdConfig.String())
	fmt.Printf("Batch: %d messages/tick\n", perfBatch)
	fmt.Println()

	sess, err := dial()
	if err != nil {
		return err
	}
	defer sess.close()

	large := perfLargeSizeKB * 1024
	cases := []perfCase{
		{name: "reliable", next: func(int) perfMessage { return perfMessage{common.Reliable, perfMessageSize} }},
		{name: "unreliable", next: func(int) perfMessage { return perfMessage{common.Unreliable, perfMessageSize} }, lossy: true},
		{name: "fragmented", next: func(int) perfMessage { return perfMessage{common.Reliable, large} }},
		{name: "mixed", next: func(i int) perfMessage {
			switch i % 8 {
			case 0:
				return perfMessage{common.Reliable, large}
			case 1, 2, 3:
				return perfMessage{common.Unreliable, perfMessageSize}
			default:
				return perfMessage{common.Reliable, perfMessageSize}
			}
		}, lossy: true},
	}

	fmt.Println("starting tests...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	for _, c := range cases {
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(c.name) {
				return
			}
			if err := sess.run(b, c); err != nil {
				pterm.Warning.Printfln("(%s) - %v", c.name, err)
			}
		})
		results[c.name] = result
		printResult(c.name, result)
	}

	conn := sess.client.Connection()
	pterm.DefaultSection.Println("Connection")
	pterm.Println(conn.Stats().Snapshot().String())

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// run sends b.N messages of a case, perfBatch per tick, and waits for their echoes
func (s *session) run(b *testing.B, c perfCase) error {
	perfRun++
	run := perfRun
	echoed := 0
	s.onDelivered = func(e common.Event) {
		if len(e.Message.Payload) >= 4 && binary.BigEndian.Uint32(e.Message.Payload) == run {
			echoed++
		}
	}
	defer func() { s.onDelivered = nil }()

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m := c.next(i)
		p := make([]byte, m.size)
		binary.BigEndian.PutUint32(p, run)
		if _, err := s.client.Send(m.rel, 0, msgTypeEcho, p); err != nil {
			return err
		}
		if (i+1)%perfBatch == 0 {
			s.tick()
		}
	}

	if !s.until(func() bool { return echoed == b.N }, perfTimeout) && !c.lossy {
		return fmt.Errorf("only %d of %d echoes arrived", echoed, b.N)
	}
	b.ReportMetric(float64(b.N-echoed), "lost")
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f msgs/sec\t%.0f lost\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec, result.Extra["lost"])
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "MsgsPerSec", "Lost", "Skipped",
		"Endpoint", "Serializer", "TickRate", "PacketSize",
		"Batch", "MessageBytes", "LargeSizeKB",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
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
			fmt.Sprintf("%.0f", result.Extra["lost"]),
			skipped,
			connectCmdConfig.Endpoint,
			viper.GetString("serializer"),
			strconv.Itoa(connectCmdConfig.TicksPerSecond),
			strconv.Itoa(connectCmdConfig.MaxPacketSize),
			strconv.Itoa(perfBatch),
			strconv.Itoa(perfMessageSize),
			strconv.Itoa(perfLargeSizeKB),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
