// Command reduce_bench compares a single-worker reduction
// against parallel runs on simulated clusters.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/unixpickle/dist-reduce/datagen"
	"github.com/unixpickle/dist-reduce/partition"
	"github.com/unixpickle/dist-reduce/pipeline"
	"github.com/unixpickle/dist-reduce/report"
	"github.com/unixpickle/dist-reduce/transform"
	"github.com/unixpickle/essentials"
)

func main() {
	var (
		n            = flag.Int("n", datagen.DefaultSize, "number of input elements")
		seed         = flag.Int64("seed", datagen.DefaultSeed, "seed for the input values")
		workers      = flag.String("workers", defaultWorkers(), "comma-separated worker counts")
		policy       = flag.String("policy", "leading", "remainder policy: leading or trailing")
		distribution = flag.String("distribution", "scatterv", "distribution: scatterv or fixed-stride")
		reducer      = flag.String("reducer", "tree", "reduction: tree or linear")
		kernel       = flag.String("kernel", transform.Default.Name, "per-element kernel: bounded or smooth")
		iterations   = flag.Int("iterations", 0, "override the kernel's number of passes")
		network      = flag.String("network", "switched", "network model: switched, random, or ordered")
		latency      = flag.Float64("latency", 1e-4, "per-message latency in seconds")
		rate         = flag.Float64("rate", 1e9, "network interface rate in bytes per second")
		diagnostics  = flag.Bool("diagnostics", false, "gather partial sums and cross-check the reduction")
		dbPath       = flag.String("db", "", "bbolt database to record reports in")
	)
	log.AddFlags()
	flag.Parse()

	cfg := pipeline.Config{N: *n, Diagnostics: *diagnostics}
	var err error
	if cfg.Policy, err = partition.ParsePolicy(*policy); err != nil {
		log.Fatal(err)
	}
	if cfg.Distribution, err = pipeline.ParseDistribution(*distribution); err != nil {
		log.Fatal(err)
	}
	if cfg.Reducer, err = pipeline.ParseReducer(*reducer); err != nil {
		log.Fatal(err)
	}
	k, ok := transform.ByName(*kernel)
	if !ok {
		log.Fatalf("unknown kernel %q", *kernel)
	}
	if *iterations > 0 {
		k = k.WithIterations(*iterations)
	}
	cfg.Kernel = k

	counts, err := parseWorkers(*workers)
	if err != nil {
		log.Fatal(err)
	}
	clusters := make([]pipeline.Cluster, len(counts))
	for i, w := range counts {
		clusters[i] = pipeline.Cluster{
			Workers: w,
			Network: *network,
			Latency: *latency,
			Rate:    *rate,
			Seed:    int64(i) + 1,
		}
	}

	input, err := datagen.Generate(*n, *seed)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("generated %d values with seed %d", len(input), *seed)

	outcomes, err := pipeline.RunAll(clusters, cfg, input)
	if err != nil {
		log.Fatal(err)
	}

	store, err := openStore(*dbPath)
	if err != nil {
		log.Fatal(err)
	}
	err = record(os.Stdout, store, outcomes)
	if closeErr := store.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		log.Fatal(err)
	}
}

func openStore(path string) (report.Store, error) {
	if path == "" {
		return report.NewMemoryStore(), nil
	}
	return report.OpenBoltStore(path)
}

// record writes a report for every outcome to w and to the
// store, followed by a comparison table.
func record(w io.Writer, store report.Store, outcomes []*pipeline.Outcome) error {
	reports := make([]*report.Report, len(outcomes))
	for i, out := range outcomes {
		reports[i] = report.New(out)
		if _, err := reports[i].WriteTo(w); err != nil {
			return err
		}
		if err := store.Save(reports[i]); err != nil {
			return err
		}
		if reports[i].ConsistencyWarning {
			log.Error.Printf("run %s on %d workers failed its consistency check",
				reports[i].ID, reports[i].Workers)
		}
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	return report.WriteTable(w, reports)
}

// defaultWorkers is the single-worker baseline plus one
// parallel run sized by $REDUCE_WORKERS or the CPU count.
func defaultWorkers() string {
	w := runtime.NumCPU()
	if s := os.Getenv("REDUCE_WORKERS"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			w = parsed
		}
	}
	return fmt.Sprintf("1,%d", essentials.MaxInt(2, w))
}

// parseWorkers parses a list of worker counts, always
// including a single-worker baseline first.
func parseWorkers(list string) ([]int, error) {
	counts := []int{1}
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		w, err := strconv.Atoi(field)
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("invalid worker count %q", field), err)
		}
		if w < 1 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("invalid worker count %d", w))
		}
		if !essentials.Contains(counts, w) {
			counts = append(counts, w)
		}
	}
	sort.Ints(counts)
	return counts, nil
}
