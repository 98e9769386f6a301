package stats

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparqlbench/internal/allocation"
)

func testTables(t *testing.T) (*allocation.Table, *allocation.Table) {
	t.Helper()
	writes, err := allocation.NewTable(allocation.RoleWrite, []string{"insert.txt", "update.txt", "delete.txt"}, []float64{0.8, 0.1, 0.1})
	require.NoError(t, err)
	reads, err := allocation.NewTable(allocation.RoleRead, []string{"query1.txt", "query2.txt"}, []float64{0.5, 0.5})
	require.NoError(t, err)
	return writes, reads
}

func TestRegistry_EmptySnapshot(t *testing.T) {
	writes, reads := testTables(t)
	r := NewRegistry(writes, reads)

	snap := r.Snapshot(reads.Kinds()[0])
	assert.Equal(t, int64(0), snap.Runs)
	assert.Equal(t, int64(0), snap.MinMs)
	assert.Equal(t, int64(0), snap.MaxMs)
	assert.Equal(t, int64(0), snap.AvgMs)
	assert.Len(t, r.Snapshots(), 5)
}

func TestRegistry_ConcurrentTotalsMatchSerialReplay(t *testing.T) {
	writes, reads := testTables(t)
	kind := reads.Kinds()[1]

	const workers = 16
	const perWorker = 2000

	type call struct {
		success bool
		ms      int64
	}
	plans := make([][]call, workers)
	for w := range plans {
		r := rand.New(rand.NewSource(int64(w)))
		for i := 0; i < perWorker; i++ {
			plans[w] = append(plans[w], call{success: r.Intn(4) != 0, ms: int64(r.Intn(5000))})
		}
	}

	concurrent := NewRegistry(writes, reads)
	var wg sync.WaitGroup
	for _, plan := range plans {
		wg.Add(1)
		go func(plan []call) {
			defer wg.Done()
			for _, c := range plan {
				if c.success {
					concurrent.ReportSuccess(kind, c.ms)
				} else {
					concurrent.ReportFailure(kind)
				}
			}
		}(plan)
	}
	wg.Wait()

	serial := NewRegistry(writes, reads)
	var wantRuns, wantFailures int64
	for w := workers - 1; w >= 0; w-- {
		for _, c := range plans[w] {
			if c.success {
				wantRuns++
				serial.ReportSuccess(kind, c.ms)
			} else {
				wantFailures++
				serial.ReportFailure(kind)
			}
		}
	}

	got := concurrent.Snapshot(kind)
	assert.Equal(t, wantRuns, got.Runs)
	assert.Equal(t, wantFailures, got.Failures)
	assert.Equal(t, serial.Snapshot(kind), got)
}

func TestRegistry_MinMaxAvg(t *testing.T) {
	writes, reads := testTables(t)
	r := NewRegistry(writes, reads)
	k := writes.Kinds()[0]

	for _, ms := range []int64{30, 10, 50} {
		r.ReportSuccess(k, ms)
	}
	r.ReportFailure(k)

	snap := r.Snapshot(k)
	assert.Equal(t, int64(3), snap.Runs)
	assert.Equal(t, int64(1), snap.Failures)
	assert.Equal(t, int64(10), snap.MinMs)
	assert.Equal(t, int64(50), snap.MaxMs)
	assert.Equal(t, int64(30), snap.AvgMs)
}

func TestRegistry_SnapshotIdempotent(t *testing.T) {
	writes, reads := testTables(t)
	r := NewRegistry(writes, reads)
	r.ReportSuccess(reads.Kinds()[0], 12)
	r.ReportFailure(writes.Kinds()[2])

	assert.Equal(t, r.Snapshots(), r.Snapshots())
}

func TestRegistry_NextIDMonotonicPerKind(t *testing.T) {
	writes, reads := testTables(t)
	r := NewRegistry(writes, reads)

	assert.Equal(t, int64(1), r.NextID(reads.Kinds()[0]))
	assert.Equal(t, int64(2), r.NextID(reads.Kinds()[0]))
	assert.Equal(t, int64(1), r.NextID(reads.Kinds()[1]))
}

func TestRegistry_Totals(t *testing.T) {
	writes, reads := testTables(t)
	r := NewRegistry(writes, reads)
	for _, k := range writes.Kinds() {
		r.ReportSuccess(k, 10)
	}
	r.ReportSuccess(reads.Kinds()[0], 100)

	w := r.Totals(allocation.RoleWrite)
	assert.Equal(t, int64(3), w.Runs)
	assert.Equal(t, int64(10), w.AvgMs())
	assert.Equal(t, int64(1), r.Totals(allocation.RoleRead).Runs)
}

func TestRegistry_UnknownKindPanics(t *testing.T) {
	writes, reads := testTables(t)
	r := NewRegistry(writes, reads)
	assert.Panics(t, func() {
		r.ReportFailure(allocation.Kind{Name: "nope.txt"})
	})
}

func TestLatencySet_MergeAndPercentiles(t *testing.T) {
	a := NewLatencySet()
	b := NewLatencySet()
	for i := 1; i <= 100; i++ {
		a.Record("q", time.Duration(i)*time.Millisecond)
	}
	b.Record("q", 500*time.Millisecond)
	b.Record("other", time.Millisecond)

	a.Merge(b)

	p := a.Percentiles("q")
	assert.Equal(t, int64(101), p.Count)
	assert.InDelta(t, 50, p.P50, 2)
	assert.InDelta(t, 500, p.Max, 2)
	assert.Equal(t, int64(1), a.Percentiles("other").Count)
	assert.Equal(t, Percentiles{}, a.Percentiles("missing"))
}
