package report

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/unixpickle/dist-reduce/collcomm"
	"github.com/unixpickle/dist-reduce/datagen"
	"github.com/unixpickle/dist-reduce/partition"
	"github.com/unixpickle/dist-reduce/pipeline"
	"github.com/unixpickle/dist-reduce/transform"
)

func testReports(t *testing.T) []*Report {
	input, err := datagen.Generate(60, datagen.DefaultSeed)
	assert.NoError(t, err)
	cfg := pipeline.Config{
		N:            60,
		Policy:       partition.Leading,
		Distribution: pipeline.Scatterv,
		Kernel:       transform.Default.WithIterations(20),
	}
	var reports []*Report
	for _, workers := range []int{1, 4} {
		out, err := pipeline.Run(pipeline.DefaultCluster(workers), cfg, input)
		assert.NoError(t, err)
		reports = append(reports, New(out))
	}
	return reports
}

func TestReportWriteTo(t *testing.T) {
	reports := testReports(t)
	var buf bytes.Buffer
	_, err := reports[1].WriteTo(&buf)
	assert.NoError(t, err)
	text := buf.String()
	for _, expected := range []string{
		"60 elements on 4 workers",
		"leading policy, scatterv distribution, tree reduction",
		"rank 0: 15 elements (indices 0 to 14)",
		"rank 3: 15 elements (indices 45 to 59)",
		"global sum:",
	} {
		if !strings.Contains(text, expected) {
			t.Errorf("missing %q in:\n%s", expected, text)
		}
	}
	if strings.Contains(text, "WARNING") {
		t.Errorf("unexpected warning in:\n%s", text)
	}
}

func TestCompare(t *testing.T) {
	mono := &Report{Workers: 1, Global: 10, Timings: pipeline.Timings{Total: 8}}
	parallel := &Report{Workers: 4, Global: 10.5, Timings: pipeline.Timings{Total: 4}}
	c := Compare(mono, parallel)
	expect.EQ(t, c.Workers, 4)
	expect.EQ(t, c.Speedup, 2.0)
	expect.EQ(t, c.Efficiency, 0.5)
	expect.EQ(t, c.Difference, 0.5)

	expect.EQ(t, Compare(mono, &Report{Workers: 2}).Speedup, 0.0)
}

func TestWriteTable(t *testing.T) {
	reports := testReports(t)
	var buf bytes.Buffer
	assert.NoError(t, WriteTable(&buf, reports))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.EQ(t, len(lines), 2+len(reports))
	expect.EQ(t, strings.Contains(lines[0], "Speedup"), true)
	expect.EQ(t, strings.HasPrefix(lines[2], "| 1 | leading | scatterv "), true)
	expect.EQ(t, strings.HasPrefix(lines[3], "| 4 | leading | scatterv "), true)
}

func testStore(t *testing.T, store Store) {
	reports := testReports(t)
	reports[0].Created = time.Unix(1000, 0)
	reports[1].Created = time.Unix(2000, 0)
	for _, r := range reports {
		assert.NoError(t, store.Save(r))
	}

	loaded, err := store.Load(reports[1].ID)
	assert.NoError(t, err)
	expect.EQ(t, loaded.Workers, 4)
	expect.EQ(t, loaded.Global, reports[1].Global)
	expect.EQ(t, loaded.Plan, reports[1].Plan)
	expect.EQ(t, loaded.Partials, reports[1].Partials)
	expect.EQ(t, loaded.Timings, reports[1].Timings)

	list, err := store.List()
	assert.NoError(t, err)
	assert.EQ(t, len(list), 2)
	expect.EQ(t, list[0].ID, reports[1].ID)
	expect.EQ(t, list[1].ID, reports[0].ID)

	if _, err := store.Load("missing"); !errors.Is(errors.NotExist, err) {
		t.Errorf("expected a not-exist error but got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	testStore(t, store)
}

func TestBoltStore(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "reports")
	defer cleanup()
	path := filepath.Join(dir, "reports.db")

	store, err := OpenBoltStore(path)
	assert.NoError(t, err)
	testStore(t, store)
	assert.NoError(t, store.Close())

	// Reports survive reopening the database.
	store, err = OpenBoltStore(path)
	assert.NoError(t, err)
	defer store.Close()
	list, err := store.List()
	assert.NoError(t, err)
	expect.EQ(t, len(list), 2)
}

type skewedReducer struct{}

func (skewedReducer) Reduce(c *collcomm.Comms, root int, data []float64,
	fn collcomm.ReduceFn) ([]float64, error) {
	res, err := collcomm.TreeReducer{}.Reduce(c, root, data, fn)
	if res != nil {
		res[0]++
	}
	return res, err
}

func TestReportConsistencyWarning(t *testing.T) {
	input, err := datagen.Generate(40, datagen.DefaultSeed)
	assert.NoError(t, err)
	cfg := pipeline.Config{
		N:            40,
		Policy:       partition.Trailing,
		Distribution: pipeline.Scatterv,
		Reducer:      skewedReducer{},
		Diagnostics:  true,
		Kernel:       transform.Default.WithIterations(20),
	}
	out, err := pipeline.Run(pipeline.DefaultCluster(3), cfg, input)
	assert.NoError(t, err)

	r := New(out)
	expect.EQ(t, r.ConsistencyWarning, true)
	var buf bytes.Buffer
	_, err = r.WriteTo(&buf)
	assert.NoError(t, err)
	if !strings.Contains(buf.String(), "WARNING: reduced sum disagrees with gathered partials") {
		t.Errorf("missing warning in:\n%s", buf.String())
	}
}
