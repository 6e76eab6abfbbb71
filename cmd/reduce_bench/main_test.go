package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/unixpickle/dist-reduce/datagen"
	"github.com/unixpickle/dist-reduce/partition"
	"github.com/unixpickle/dist-reduce/pipeline"
	"github.com/unixpickle/dist-reduce/report"
	"github.com/unixpickle/dist-reduce/transform"
)

func TestParseWorkers(t *testing.T) {
	counts, err := parseWorkers("8, 2,8")
	assert.NoError(t, err)
	expect.EQ(t, counts, []int{1, 2, 8})

	counts, err = parseWorkers("")
	assert.NoError(t, err)
	expect.EQ(t, counts, []int{1})

	for _, list := range []string{"4,x", "0", "2,-3"} {
		if _, err := parseWorkers(list); !errors.Is(errors.Invalid, err) {
			t.Errorf("%q: expected invalid error but got %v", list, err)
		}
	}
}

func TestRecord(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "reduce_bench")
	defer cleanup()
	path := filepath.Join(dir, "reports.db")

	input, err := datagen.Generate(30, datagen.DefaultSeed)
	assert.NoError(t, err)
	cfg := pipeline.Config{
		N:            30,
		Policy:       partition.Leading,
		Distribution: pipeline.Scatterv,
		Kernel:       transform.Default.WithIterations(10),
	}
	clusters := []pipeline.Cluster{pipeline.DefaultCluster(1), pipeline.DefaultCluster(4)}
	outcomes, err := pipeline.RunAll(clusters, cfg, input)
	assert.NoError(t, err)

	store, err := openStore(path)
	assert.NoError(t, err)
	var buf bytes.Buffer
	assert.NoError(t, record(&buf, store, outcomes))
	assert.NoError(t, store.Close())
	expect.EQ(t, strings.Contains(buf.String(), "| Workers |"), true)

	store, err = report.OpenBoltStore(path)
	assert.NoError(t, err)
	defer store.Close()
	list, err := store.List()
	assert.NoError(t, err)
	expect.EQ(t, len(list), 2)
}
