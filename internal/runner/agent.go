package runner

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"sparqlbench/internal/allocation"
	"sparqlbench/internal/endpoint"
	"sparqlbench/internal/stats"
)

// AgentState is the lifecycle stage of an agent.
type AgentState int32

const (
	StateCreated AgentState = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s AgentState) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("AgentState(%d)", int32(s))
	}
}

const (
	reconnectAttempts = 5
	reconnectDelay    = 100 * time.Millisecond
)

// AgentDeps are the collaborators shared by or owned by one agent.
type AgentDeps struct {
	Table    *allocation.Table
	Registry *stats.Registry
	Exec     Executor
	Dialer   endpoint.Dialer
	Gen      Generator
	State    *RunState
	Rng      *rand.Rand
	// DrillDown is optional.
	DrillDown *DrillDownController
	Log       *logrus.Logger
	Brief     *logrus.Logger
}

// Agent repeatedly executes operations of one role until the run stops.
// An agent owns its connection, random source and latency recorder.
type Agent struct {
	name     string
	role     allocation.Role
	deps     AgentDeps
	throttle time.Duration
	verbose  bool

	status  atomic.Int32
	conn    endpoint.Connection
	latency *stats.LatencySet
	log     *logrus.Entry
	brief   *logrus.Entry
}

func NewAgent(name string, deps AgentDeps, throttle time.Duration, verbose bool) *Agent {
	return &Agent{
		name:     name,
		role:     deps.Table.Role(),
		deps:     deps,
		throttle: throttle,
		verbose:  verbose,
		latency:  stats.NewLatencySet(),
		log:      deps.Log.WithField("agent", name),
		brief:    deps.Brief.WithField("agent", name),
	}
}

func (a *Agent) Name() string {
	return a.name
}

func (a *Agent) State() AgentState {
	return AgentState(a.status.Load())
}

// Latencies returns the agent's recorder. Read it only after Run returned.
func (a *Agent) Latencies() *stats.LatencySet {
	return a.latency
}

// Run loops until keep-alive is cleared or ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	if !a.status.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return errors.Errorf("agent %s: cannot start from state %s", a.name, a.State())
	}
	defer a.finalize()

	a.reconnect(ctx)
	for a.deps.State.KeepAlive() && ctx.Err() == nil {
		a.iterate(ctx)
	}
	a.status.Store(int32(StateStopping))
	return nil
}

func (a *Agent) finalize() {
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.log.WithError(err).Debug("closing connection")
		}
		a.conn = nil
	}
	a.status.Store(int32(StateStopped))
}

func (a *Agent) iterate(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Errorf("BUG: agent iteration panicked: %v\n%s", r, debug.Stack())
			a.reconnect(ctx)
		}
	}()

	if a.role == allocation.RoleWrite && a.deps.State.MaxUpdateRateReached() {
		a.pause(ctx)
		return
	}
	if a.conn == nil && !a.reconnect(ctx) {
		return
	}

	kind := a.deps.Table.AllocateWith(a.deps.Rng)
	id := a.deps.Registry.NextID(kind)
	inBenchmark := a.deps.State.BenchmarkActive()

	q, err := a.deps.Gen.Generate(kind, nil)
	if err != nil {
		a.log.WithError(err).WithField("kind", kind.Name).Error("generating query")
		if inBenchmark {
			a.deps.Registry.ReportFailure(kind)
		}
		return
	}

	start := time.Now()
	result, err := a.deps.Exec.Execute(ctx, a.conn, kind, q)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if inBenchmark && a.deps.State.BenchmarkActive() {
			a.deps.Registry.ReportFailure(kind)
		}
		a.log.WithError(err).WithFields(logrus.Fields{"kind": kind.Name, "id": id}).Warn("execution failed, recreating connection")
		a.brief.WithFields(logrus.Fields{"kind": kind.Name, "id": id}).Warn(err.Error())
		a.reconnect(ctx)
		return
	}

	counted := inBenchmark && a.deps.State.BenchmarkActive()
	if counted {
		a.deps.Registry.ReportSuccess(kind, elapsed.Milliseconds())
		a.latency.Record(kind.Name, elapsed)
		if a.role == allocation.RoleRead {
			a.deps.State.addExecution()
		}
	}

	msg := fmt.Sprintf("%s, id %d, executed in %d ms", kind.Name, id, elapsed.Milliseconds())
	if !inBenchmark {
		msg += ", ignored in the benchmark result (warm-up)"
	}
	a.brief.Info(msg)
	if a.verbose {
		a.log.Infof("%s\n%s\n\n%s", msg, q.Text, result)
	}

	if a.deps.DrillDown != nil && a.deps.DrillDown.Handles(kind) {
		if _, err := a.deps.DrillDown.Run(ctx, a.conn, kind, result); err != nil && ctx.Err() == nil {
			a.log.WithError(err).WithField("kind", kind.Name).Warn("drill-down failed, recreating connection")
			a.reconnect(ctx)
		}
	}
}

func (a *Agent) pause(ctx context.Context) {
	t := time.NewTimer(a.throttle)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// reconnect replaces the agent's connection with a fresh one.
func (a *Agent) reconnect(ctx context.Context) bool {
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
	err := retry.Do(
		func() error {
			conn, err := a.deps.Dialer.Dial(ctx)
			if err != nil {
				return err
			}
			a.conn = conn
			return nil
		},
		retry.Attempts(reconnectAttempts),
		retry.Delay(reconnectDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if ctx.Err() == nil {
			a.log.WithError(err).Error("cannot connect to endpoint")
		}
		return false
	}
	return true
}
