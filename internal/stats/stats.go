package stats

import (
	"fmt"
	"math"
	"sync/atomic"

	"sparqlbench/internal/allocation"
)

// OperationStatistics aggregates the executions of one operation kind.
// Every field is updated with atomics; writers never block each other.
type OperationStatistics struct {
	kind allocation.Kind

	runs     atomic.Int64
	failures atomic.Int64
	sumMs    atomic.Int64
	minMs    atomic.Int64
	maxMs    atomic.Int64
	nextID   atomic.Int64
}

func newOperationStatistics(kind allocation.Kind) *OperationStatistics {
	s := &OperationStatistics{kind: kind}
	s.minMs.Store(math.MaxInt64)
	return s
}

func (s *OperationStatistics) reportSuccess(elapsedMs int64) {
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	s.sumMs.Add(elapsedMs)
	for {
		cur := s.minMs.Load()
		if elapsedMs >= cur || s.minMs.CompareAndSwap(cur, elapsedMs) {
			break
		}
	}
	for {
		cur := s.maxMs.Load()
		if elapsedMs <= cur || s.maxMs.CompareAndSwap(cur, elapsedMs) {
			break
		}
	}
	// runs is published last so a reader that sees it also sees the timings above
	s.runs.Add(1)
}

func (s *OperationStatistics) snapshot() Snapshot {
	runs := s.runs.Load()
	snap := Snapshot{
		Kind:     s.kind,
		Runs:     runs,
		Failures: s.failures.Load(),
		SumMs:    s.sumMs.Load(),
		MaxMs:    s.maxMs.Load(),
	}
	if runs > 0 {
		snap.AvgMs = snap.SumMs / runs
		if m := s.minMs.Load(); m != math.MaxInt64 {
			snap.MinMs = m
		}
	}
	return snap
}

// Snapshot is a point-in-time copy of one kind's statistics.
type Snapshot struct {
	Kind     allocation.Kind `json:"kind"`
	Runs     int64           `json:"runs"`
	Failures int64           `json:"failures"`
	SumMs    int64           `json:"sum_ms"`
	AvgMs    int64           `json:"avg_ms"`
	MinMs    int64           `json:"min_ms"`
	MaxMs    int64           `json:"max_ms"`
}

// Totals sums the counters of every kind sharing a role.
type Totals struct {
	Runs     int64
	Failures int64
	SumMs    int64
}

// AvgMs returns the average latency over all runs of the role.
func (t Totals) AvgMs() int64 {
	if t.Runs == 0 {
		return 0
	}
	return t.SumMs / t.Runs
}

type key struct {
	role allocation.Role
	name string
}

// Registry holds the statistics of every configured operation kind.
// The set of kinds is fixed at construction, so lookups need no locking.
type Registry struct {
	byKey map[key]*OperationStatistics
	order []*OperationStatistics
}

// NewRegistry creates statistics for every kind of the given tables, in order.
func NewRegistry(tables ...*allocation.Table) *Registry {
	r := &Registry{byKey: make(map[key]*OperationStatistics)}
	for _, t := range tables {
		for _, k := range t.Kinds() {
			s := newOperationStatistics(k)
			r.byKey[key{k.Role, k.Name}] = s
			r.order = append(r.order, s)
		}
	}
	return r
}

func (r *Registry) stat(k allocation.Kind) *OperationStatistics {
	s, ok := r.byKey[key{k.Role, k.Name}]
	if !ok {
		panic(fmt.Sprintf("stats: unknown %s operation kind %q", k.Role, k.Name))
	}
	return s
}

// ReportSuccess records a successful execution that took elapsedMs.
func (r *Registry) ReportSuccess(k allocation.Kind, elapsedMs int64) {
	r.stat(k).reportSuccess(elapsedMs)
}

// ReportFailure records a failed execution. Its elapsed time is not counted.
func (r *Registry) ReportFailure(k allocation.Kind) {
	r.stat(k).failures.Add(1)
}

// NextID returns the next sequence id for tagging an execution of k. Ids start at 1.
func (r *Registry) NextID(k allocation.Kind) int64 {
	return r.stat(k).nextID.Add(1)
}

// Snapshot returns the current statistics of k.
func (r *Registry) Snapshot(k allocation.Kind) Snapshot {
	return r.stat(k).snapshot()
}

// Snapshots returns the statistics of every kind in registration order.
func (r *Registry) Snapshots() []Snapshot {
	out := make([]Snapshot, len(r.order))
	for i, s := range r.order {
		out[i] = s.snapshot()
	}
	return out
}

// Aggregate sums the snapshots of one role.
func Aggregate(snaps []Snapshot, role allocation.Role) Totals {
	var t Totals
	for _, s := range snaps {
		if s.Kind.Role != role {
			continue
		}
		t.Runs += s.Runs
		t.Failures += s.Failures
		t.SumMs += s.SumMs
	}
	return t
}

// Totals aggregates the current statistics of one role.
func (r *Registry) Totals(role allocation.Role) Totals {
	return Aggregate(r.Snapshots(), role)
}
