// Package report records, renders, and stores the outcomes
// of pipeline runs.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/unixpickle/dist-reduce/partition"
	"github.com/unixpickle/dist-reduce/pipeline"
	"github.com/unixpickle/dist-reduce/transform"
	"github.com/unixpickle/essentials"
)

// A Report describes one finished run.
type Report struct {
	ID      string
	Created time.Time

	N            int
	Workers      int
	Policy       string
	Distribution string
	Reducer      string
	Kernel       string
	Network      string
	Latency      float64
	Rate         float64

	Plan     partition.Plan
	Partials []float64
	Global   float64

	// ConsistencyWarning is set when the reduced sum
	// disagreed with the sum of the gathered partials.
	ConsistencyWarning bool

	// Timings are in virtual seconds.
	Timings pipeline.Timings

	// Wall is the real time the simulation took.
	Wall time.Duration
}

// New creates a report for a run outcome.
func New(out *pipeline.Outcome) *Report {
	kernel := out.Config.Kernel.Name
	if kernel == "" {
		kernel = transform.Default.Name
	}
	network := out.Cluster.Network
	if network == "" {
		network = "switched"
	}
	return &Report{
		ID:                 uuid.New().String(),
		Created:            time.Now(),
		N:                  out.Config.N,
		Workers:            out.Cluster.Workers,
		Policy:             out.Config.Policy.String(),
		Distribution:       out.Config.Distribution.String(),
		Reducer:            pipeline.ReducerName(out.Config.Reducer),
		Kernel:             kernel,
		Network:            network,
		Latency:            out.Cluster.Latency,
		Rate:               out.Cluster.Rate,
		Plan:               out.Plan,
		Partials:           append([]float64(nil), out.Partials...),
		Global:             out.Global,
		ConsistencyWarning: out.Inconsistent,
		Timings:            out.Timings,
		Wall:               out.Wall,
	}
}

// WriteTo renders the report as human-readable text.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "run %s: %d elements on %d workers\n", r.ID, r.N, r.Workers)
	if r.Workers > 1 {
		fmt.Fprintf(&buf, "  %s policy, %s distribution, %s reduction over a %s network\n",
			r.Policy, r.Distribution, r.Reducer, r.Network)
	}
	for i, line := range r.Plan.Describe() {
		if i < len(r.Partials) {
			line = fmt.Sprintf("%s, partial sum %.6f", line, r.Partials[i])
		}
		fmt.Fprintf(&buf, "  %s\n", line)
	}
	fmt.Fprintf(&buf, "  global sum: %.6f\n", r.Global)
	if r.ConsistencyWarning {
		buf.WriteString("  WARNING: reduced sum disagrees with gathered partials\n")
	}
	fmt.Fprintf(&buf, "  virtual time: %s (distribute %s, compute %s, combine %s)\n",
		formatSeconds(r.Timings.Total), formatSeconds(r.Timings.Distribute),
		formatSeconds(r.Timings.Compute), formatSeconds(r.Timings.Combine))
	fmt.Fprintf(&buf, "  wall time: %s\n", r.Wall)
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// A Comparison relates a parallel run to a single-worker
// run of the same input.
//
// The figures come from the simulator's cost model and are
// only illustrative.
type Comparison struct {
	Workers int

	// Speedup is the ratio of virtual run times.
	Speedup float64

	// Efficiency is Speedup divided by Workers.
	Efficiency float64

	// Difference is the absolute difference between the
	// two global sums.
	Difference float64
}

// Compare compares a parallel run against a single-worker
// baseline.
func Compare(mono, parallel *Report) Comparison {
	c := Comparison{Workers: parallel.Workers}
	if parallel.Timings.Total > 0 {
		c.Speedup = mono.Timings.Total / parallel.Timings.Total
		c.Efficiency = c.Speedup / float64(essentials.MaxInt(1, parallel.Workers))
	}
	c.Difference = parallel.Global - mono.Global
	if c.Difference < 0 {
		c.Difference = -c.Difference
	}
	return c
}

// WriteTable renders a markdown table of reports.
//
// If one of the reports ran on a single worker, the table
// includes speedups relative to it.
func WriteTable(w io.Writer, reports []*Report) error {
	var mono *Report
	for _, r := range reports {
		if r.Workers == 1 {
			mono = r
			break
		}
	}

	columns := []string{"Workers", "Policy", "Distribution", "Global sum", "Virtual time", "Wall time"}
	if mono != nil {
		columns = append(columns, "Speedup", "Efficiency")
	}
	var buf bytes.Buffer
	buf.WriteString("| " + strings.Join(columns, " | ") + " |\n")
	buf.WriteString(strings.Repeat("|:--", len(columns)) + "|\n")
	for _, r := range reports {
		fmt.Fprintf(&buf, "| %d | %s | %s | %.6f | %s | %s ",
			r.Workers, r.Policy, r.Distribution, r.Global, formatSeconds(r.Timings.Total), r.Wall)
		if mono != nil {
			c := Compare(mono, r)
			fmt.Fprintf(&buf, "| %.2f | %.2f ", c.Speedup, c.Efficiency)
		}
		buf.WriteString("|\n")
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'g', 6, 64) + "s"
}
