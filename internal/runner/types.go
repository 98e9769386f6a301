package runner

import (
	"sync/atomic"
	"time"

	"sparqlbench/internal/allocation"
	"sparqlbench/internal/stats"
)

type Config struct {
	QueryURL           string
	UpdateURL          string
	InsecureSkipVerify bool

	AggregationAgents int
	EditorialAgents   int

	QueryTimeout time.Duration
	Warmup       time.Duration
	RunPeriod    time.Duration
	// ByQueryRuns ends the benchmark phase after this many aggregation
	// executions instead of after RunPeriod. Zero disables it.
	ByQueryRuns int64

	// Write rate window in operations per second; zero disables a bound.
	MinUpdateRate float64
	MaxUpdateRate float64
	ReachFraction float64
	// ThrottleInterval is how long editorial agents pause while the maximum
	// update rate is exceeded.
	ThrottleInterval time.Duration

	QueriesPath           string
	EditorialAllocation   string
	AggregationAllocation string
	// DrillDown maps aggregation template names to a drill-down strategy.
	DrillDown map[string]string

	Verbose bool
	Seed    int64

	LogDir      string
	HistoryPath string
	MetricsAddr string
	OutPrefix   string
}

// RunState holds the flags shared between the runner, the agents and the observer.
type RunState struct {
	benchmarkActive      atomic.Bool
	keepAlive            atomic.Bool
	resultValid          atomic.Bool
	maxUpdateRateReached atomic.Bool
	executions           atomic.Int64
}

func (s *RunState) BenchmarkActive() bool          { return s.benchmarkActive.Load() }
func (s *RunState) SetBenchmarkActive(v bool)      { s.benchmarkActive.Store(v) }
func (s *RunState) KeepAlive() bool                { return s.keepAlive.Load() }
func (s *RunState) SetKeepAlive(v bool)            { s.keepAlive.Store(v) }
func (s *RunState) ResultValid() bool              { return s.resultValid.Load() }
func (s *RunState) SetResultValid(v bool)          { s.resultValid.Store(v) }
func (s *RunState) MaxUpdateRateReached() bool     { return s.maxUpdateRateReached.Load() }
func (s *RunState) SetMaxUpdateRateReached(v bool) { s.maxUpdateRateReached.Store(v) }

// QueryExecutions counts aggregation executions of the benchmark phase.
func (s *RunState) QueryExecutions() int64 { return s.executions.Load() }

func (s *RunState) addExecution() int64 { return s.executions.Add(1) }

// Outcome describes how a run ended.
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeInvalid     Outcome = "invalid"
	OutcomeInterrupted Outcome = "interrupted"
)

// Result is the final view of a run.
type Result struct {
	Started     time.Time                    `json:"started"`
	Duration    time.Duration                `json:"duration"`
	Seconds     int64                        `json:"seconds"`
	Executions  int64                        `json:"query_executions"`
	Snapshots   []stats.Snapshot             `json:"snapshots"`
	Percentiles map[string]stats.Percentiles `json:"percentiles"`
	Valid       bool                         `json:"valid"`
	Outcome     Outcome                      `json:"outcome"`
	Config      Config                       `json:"config"`
}

// WriteRate is the average editorial operations per second of the benchmark phase.
func (r Result) WriteRate() float64 {
	return r.rate(stats.Aggregate(r.Snapshots, allocation.RoleWrite).Runs)
}

// ReadRate is the average aggregation queries per second of the benchmark phase.
func (r Result) ReadRate() float64 {
	return r.rate(stats.Aggregate(r.Snapshots, allocation.RoleRead).Runs)
}

func (r Result) rate(runs int64) float64 {
	if r.Seconds <= 0 {
		return 0
	}
	return float64(runs) / float64(r.Seconds)
}
