package runner

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"sparqlbench/internal/allocation"
	"sparqlbench/internal/endpoint"
	"sparqlbench/internal/observer"
	"sparqlbench/internal/query"
	"sparqlbench/internal/stats"
)

// ErrResultInvalid is returned by Run when the write rate floor was violated.
var ErrResultInvalid = observer.ErrResultInvalid

const defaultThrottle = 100 * time.Millisecond

type Option func(*Runner)

// WithTemplates uses an already loaded template set instead of QueriesPath.
func WithTemplates(t *query.TemplateSet) Option {
	return func(r *Runner) { r.templates = t }
}

// WithDialer replaces the HTTP dialer built from the endpoint URLs.
func WithDialer(d endpoint.Dialer) Option {
	return func(r *Runner) { r.dialer = d }
}

// WithOutput sets where console summaries go. io.Discard silences them.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithLoggers sets the run logger and the per-execution brief logger.
func WithLoggers(run, brief *logrus.Logger) Option {
	return func(r *Runner) {
		r.log = run
		r.brief = brief
	}
}

// WithObserverClock replaces the observer's sleep and time source.
func WithObserverClock(sleep func(context.Context, time.Duration) error, now func() time.Time) Option {
	return func(r *Runner) { r.observerOpts = append(r.observerOpts, observer.WithClock(sleep, now)) }
}

type Runner struct {
	cfg       Config
	templates *query.TemplateSet
	dialer    endpoint.Dialer
	out       io.Writer
	log       *logrus.Logger
	brief     *logrus.Logger

	state    *RunState
	registry *stats.Registry
	tables   map[allocation.Role]*allocation.Table
	observer *observer.Observer
	agents   []*Agent

	observerOpts []observer.Option
}

// NewRunner wires the tables, registry, agents and observer of one run.
func NewRunner(cfg Config, opts ...Option) (*Runner, error) {
	r := &Runner{
		cfg:    cfg,
		out:    os.Stdout,
		log:    logrus.StandardLogger(),
		brief:  logrus.StandardLogger(),
		state:  &RunState{},
		tables: make(map[allocation.Role]*allocation.Table, 2),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cfg.ThrottleInterval <= 0 {
		r.cfg.ThrottleInterval = defaultThrottle
	}
	if r.cfg.Seed == 0 {
		r.cfg.Seed = time.Now().UnixNano()
	}

	if r.templates == nil {
		set, err := query.LoadDir(cfg.QueriesPath)
		if err != nil {
			return nil, err
		}
		r.templates = set
	}
	if r.dialer == nil {
		d, err := endpoint.NewHTTPDialer(cfg.QueryURL, cfg.UpdateURL, cfg.InsecureSkipVerify)
		if err != nil {
			return nil, err
		}
		r.dialer = d
	}

	var tables []*allocation.Table
	for _, role := range []struct {
		role    allocation.Role
		agents  int
		weights string
	}{
		{allocation.RoleWrite, cfg.EditorialAgents, cfg.EditorialAllocation},
		{allocation.RoleRead, cfg.AggregationAgents, cfg.AggregationAllocation},
	} {
		if role.agents <= 0 {
			continue
		}
		t, err := allocation.Parse(role.role, r.templates.Names(role.role), role.weights)
		if err != nil {
			return nil, errors.WithMessagef(err, "%s operations allocation", role.role)
		}
		r.tables[role.role] = t
		tables = append(tables, t)
	}
	if len(tables) == 0 {
		return nil, errors.New("no agents configured")
	}
	r.registry = stats.NewRegistry(tables...)

	drill, err := query.ResolveDrillDowns(cfg.DrillDown)
	if err != nil {
		return nil, err
	}
	if t, ok := r.tables[allocation.RoleRead]; ok {
		for name := range drill {
			if _, ok := t.Lookup(name); !ok {
				r.log.Debugf("drill-down template %s is not part of the query mix", name)
			}
		}
	}

	manager := endpoint.NewManager(cfg.QueryTimeout)
	if err := r.buildAgents(manager, drill); err != nil {
		return nil, err
	}

	r.observer = observer.New(observer.Config{
		MinUpdateRate:     cfg.MinUpdateRate,
		MaxUpdateRate:     cfg.MaxUpdateRate,
		ReachFraction:     cfg.ReachFraction,
		RunPeriod:         cfg.RunPeriod,
		ByQueryRuns:       cfg.ByQueryRuns,
		EditorialAgents:   r.agentCount(allocation.RoleWrite),
		AggregationAgents: r.agentCount(allocation.RoleRead),
		Verbose:           cfg.Verbose,
	}, r.registry, r.state, append([]observer.Option{observer.WithLogger(r.log), observer.WithOutput(r.out)}, r.observerOpts...)...)

	return r, nil
}

func (r *Runner) agentCount(role allocation.Role) int {
	if _, ok := r.tables[role]; !ok {
		return 0
	}
	if role == allocation.RoleWrite {
		return r.cfg.EditorialAgents
	}
	return r.cfg.AggregationAgents
}

func (r *Runner) buildAgents(exec Executor, drill map[string]query.DrillDown) error {
	n := 0
	for _, role := range []allocation.Role{allocation.RoleWrite, allocation.RoleRead} {
		table, ok := r.tables[role]
		if !ok {
			continue
		}
		for i := 0; i < r.agentCount(role); i++ {
			n++
			rng := rand.New(rand.NewSource(r.cfg.Seed + int64(n)))
			gen, err := r.templates.NewGenerator(rng)
			if err != nil {
				return err
			}
			name := fmt.Sprintf("%s-%d", role, i+1)
			deps := AgentDeps{
				Table:    table,
				Registry: r.registry,
				Exec:     exec,
				Dialer:   r.dialer,
				Gen:      gen,
				State:    r.state,
				Rng:      rng,
				Log:      r.log,
				Brief:    r.brief,
			}
			if role == allocation.RoleRead && len(drill) > 0 {
				deps.DrillDown = NewDrillDownController(drill, gen, exec, rng, r.log.WithField("agent", name))
			}
			r.agents = append(r.agents, NewAgent(name, deps, r.cfg.ThrottleInterval, r.cfg.Verbose))
		}
	}
	return nil
}

// Subscribe forwards the observer's per-second reports. Call it before Run.
func (r *Runner) Subscribe() <-chan observer.Report {
	return r.observer.Subscribe()
}

func (r *Runner) Config() Config {
	return r.cfg
}

func (r *Runner) State() *RunState {
	return r.state
}

func (r *Runner) Registry() *stats.Registry {
	return r.registry
}

func (r *Runner) Agents() []*Agent {
	return r.agents
}

// Run executes warm-up and benchmark phases. It returns ErrResultInvalid when
// the write rate floor was violated; the partial result is returned as well.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	started := time.Now()
	r.state.SetKeepAlive(true)

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range r.agents {
		a := a
		g.Go(func() error { return a.Run(gctx) })
	}

	r.log.Infof("starting %d agents against %s", len(r.agents), r.cfg.QueryURL)
	if r.cfg.Warmup > 0 {
		fmt.Fprintf(r.out, "Warming up for %s...\n", r.cfg.Warmup)
		r.log.Infof("warm-up for %s", r.cfg.Warmup)
		_ = sleepCtx(gctx, r.cfg.Warmup)
	}

	if gctx.Err() == nil {
		r.state.SetBenchmarkActive(true)
		g.Go(func() error { return r.observer.Run(gctx) })
		fmt.Fprintln(r.out, "Benchmark phase started")
		r.log.Info("benchmark phase started")
		r.awaitEnd(gctx)
	}

	r.state.SetBenchmarkActive(false)
	r.state.SetKeepAlive(false)
	err := g.Wait()

	merged := stats.NewLatencySet()
	for _, a := range r.agents {
		merged.Merge(a.Latencies())
	}
	res := Result{
		Started:     started,
		Duration:    time.Since(started),
		Seconds:     r.observer.Seconds(),
		Executions:  r.state.QueryExecutions(),
		Snapshots:   r.registry.Snapshots(),
		Percentiles: make(map[string]stats.Percentiles),
		Valid:       r.observer.Valid(),
		Outcome:     OutcomeCompleted,
		Config:      r.cfg,
	}
	for _, s := range res.Snapshots {
		res.Percentiles[s.Kind.Name] = merged.Percentiles(s.Kind.Name)
	}

	switch {
	case errors.Is(err, ErrResultInvalid):
		res.Outcome = OutcomeInvalid
		res.Valid = false
		r.log.Warn("benchmark stopped, results are not valid")
		return res, err
	case err != nil:
		return res, errors.Wrap(err, "running benchmark")
	case ctx.Err() != nil:
		res.Outcome = OutcomeInterrupted
		r.log.Info("benchmark interrupted")
	default:
		r.log.Info("benchmark finished")
	}
	return res, nil
}

// awaitEnd blocks until the run period elapsed, the execution bound was hit,
// or ctx is done.
func (r *Runner) awaitEnd(ctx context.Context) {
	if r.cfg.ByQueryRuns <= 0 {
		_ = sleepCtx(ctx, r.cfg.RunPeriod)
		return
	}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for r.state.QueryExecutions() < r.cfg.ByQueryRuns {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
