// Package report formats a completed run's results in both the
// human-readable table format and the machine-readable raw-sample format.
package report

import (
	"fmt"
	"io"

	"github.com/scslab/mutated/internal/stats"
)

// Run carries everything a report needs beyond the sample accumulators.
type Run struct {
	Label            string
	Throughput       float64 // requests/sec over the measurement window
	RunningSeconds   float64
	RxBytes          int64
	TxBytes          int64
	MissedSendWindow int
}

// PrintHuman writes the summary-table report: one line per section with
// min/avg/std/p99/p99.9/max columns, followed by throughput bytes and the
// missed-send-window diagnostic.
func PrintHuman(w io.Writer, run Run, results *stats.Results) {
	fmt.Fprintf(w, "#reqs/s %.2f\n", run.Throughput)
	printSection(w, "service", results.Service())
	if results.Queue().Size() > 0 {
		printSection(w, "buffer", results.Queue())
	}
	if results.Wait().Size() > 0 {
		printSection(w, "wait", results.Wait())
	}
	if run.RunningSeconds > 0 {
		fmt.Fprintf(w, "rx %.3f MB/s (%d bytes total)\n", float64(run.RxBytes)/1e6/run.RunningSeconds, run.RxBytes)
		fmt.Fprintf(w, "tx %.3f MB/s (%d bytes total)\n", float64(run.TxBytes)/1e6/run.RunningSeconds, run.TxBytes)
	}
	fmt.Fprintf(w, "missed_send_window %d\n", run.MissedSendWindow)
}

func printSection(w io.Writer, name string, a *stats.Accum) {
	if a.Size() == 0 {
		fmt.Fprintf(w, "%-8s (no samples)\n", name)
		return
	}
	fmt.Fprintf(w, "%-8s min=%.1f avg=%.1f std=%.1f p99=%.1f p99.9=%.1f max=%.1f\n",
		name,
		float64(a.Min()), a.Mean(), a.Stddev(),
		float64(a.Percentile(0.99)), float64(a.Percentile(0.999)), float64(a.Max()))
}

// PrintMachine writes one line per measurement sample (raw service time in
// microseconds, in arrival order), preceded by the achieved throughput
// line. Earlier Percentile/Min/Max calls on results.Service() do not change
// that order.
func PrintMachine(w io.Writer, run Run, results *stats.Results) {
	samples := results.Service().Raw()
	fmt.Fprintf(w, "%s\t%f\t%d\n", run.Label, run.Throughput, len(samples))
	for _, s := range samples {
		fmt.Fprintf(w, "%d\n", s)
	}
}
