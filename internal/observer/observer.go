package observer

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"sparqlbench/internal/allocation"
	"sparqlbench/internal/stats"
)

// ErrResultInvalid is returned when the write rate floor was never reached
// in time or was not held afterwards.
var ErrResultInvalid = errors.New("update operations rate has not reached or has dropped below the minimum threshold, benchmark results are not valid")

// Flags is the shared run state the observer reads and drives.
type Flags interface {
	BenchmarkActive() bool
	KeepAlive() bool
	QueryExecutions() int64
	SetResultValid(bool)
	SetMaxUpdateRateReached(bool)
}

// Source provides statistics snapshots.
type Source interface {
	Snapshots() []stats.Snapshot
}

type Config struct {
	MinUpdateRate     float64
	MaxUpdateRate     float64
	ReachFraction     float64
	RunPeriod         time.Duration
	ByQueryRuns       int64
	EditorialAgents   int
	AggregationAgents int
	Verbose           bool
}

// Report is the per-second view of the run.
type Report struct {
	Seconds         int64
	QueryExecutions int64
	ByQueryRuns     bool
	WriteAgents     int
	ReadAgents      int
	Snapshots       []stats.Snapshot
	Write           stats.Totals
	Read            stats.Totals
	WriteRate       float64
	ReadRate        float64
	Valid           bool
	Waiting         bool
	Fatal           bool
	Throttled       bool
	Final           bool
}

type Option func(*Observer)

func WithLogger(l *logrus.Logger) Option {
	return func(o *Observer) { o.log = l }
}

// WithOutput redirects the console summary.
func WithOutput(w io.Writer) Option {
	return func(o *Observer) { o.out = w }
}

// WithClock replaces the tick sleep and the time source.
func WithClock(sleep func(context.Context, time.Duration) error, now func() time.Time) Option {
	return func(o *Observer) {
		o.sleep = sleep
		o.now = now
	}
}

// Observer prints a summary once per second and maintains the validity and
// throttle flags from the write rate.
type Observer struct {
	cfg   Config
	src   Source
	flags Flags
	gate  *Gate
	log   *logrus.Logger
	out   io.Writer
	sleep func(context.Context, time.Duration) error
	now   func() time.Time

	seconds   int64
	throttled bool

	// subs is fixed once Run starts.
	subs    []chan Report
	started atomic.Bool
}

func New(cfg Config, src Source, flags Flags, opts ...Option) *Observer {
	o := &Observer{
		cfg:   cfg,
		src:   src,
		flags: flags,
		gate:  NewGate(cfg.MinUpdateRate, cfg.RunPeriod, cfg.ReachFraction),
		log:   logrus.StandardLogger(),
		out:   os.Stdout,
		sleep: sleepCtx,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
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

// Subscribe returns a channel receiving every report. Slow subscribers miss
// reports rather than stall the observer. The channel is closed when Run returns.
// Subscribe must be called before Run; later calls get an already closed channel.
func (o *Observer) Subscribe() <-chan Report {
	ch := make(chan Report, 16)
	if o.started.Load() {
		close(ch)
		return ch
	}
	o.subs = append(o.subs, ch)
	return ch
}

func (o *Observer) publish(r Report) {
	for _, ch := range o.subs {
		select {
		case ch <- r:
		default:
			if !r.Final {
				continue
			}
			// The final report replaces the oldest pending one.
			select {
			case <-ch:
			default:
			}
			ch <- r
		}
	}
}

func (o *Observer) closeSubscribers() {
	for _, ch := range o.subs {
		close(ch)
	}
	o.subs = nil
}

// Seconds returns the number of observed seconds. Only meaningful after Run returned.
func (o *Observer) Seconds() int64 {
	return o.seconds
}

// Valid reports the validity of the run as decided by the rate floor. A run
// without a floor is always valid. Only meaningful after Run returned.
func (o *Observer) Valid() bool {
	return o.gateValid()
}

// Run ticks until both the benchmark phase and keep-alive are off, the context
// is cancelled, or the run turns invalid, in which case ErrResultInvalid is returned.
func (o *Observer) Run(ctx context.Context) error {
	o.started.Store(true)
	defer o.closeSubscribers()

	var correction time.Duration
	for o.flags.BenchmarkActive() || o.flags.KeepAlive() {
		d := time.Second - correction
		if d < 0 {
			d = -d
		}
		if err := o.sleep(ctx, d); err != nil {
			break
		}
		// Only seconds actually slept through are counted.
		o.seconds++
		start := o.now()
		if err := o.tick(); err != nil {
			return err
		}
		correction = o.now().Sub(start)
	}

	final := o.collect()
	final.Final = true
	final.Valid, final.Throttled = o.gateValid(), o.throttled
	o.log.Info(FormatReport(final, o.cfg.Verbose))
	o.publish(final)
	return nil
}

func (o *Observer) gateValid() bool {
	return o.gate.valid || !o.gate.Enabled()
}

func (o *Observer) collect() Report {
	snaps := o.src.Snapshots()
	r := Report{
		Seconds:         o.seconds,
		QueryExecutions: o.flags.QueryExecutions(),
		ByQueryRuns:     o.cfg.ByQueryRuns > 0,
		WriteAgents:     o.cfg.EditorialAgents,
		ReadAgents:      o.cfg.AggregationAgents,
		Snapshots:       snaps,
		Write:           stats.Aggregate(snaps, allocation.RoleWrite),
		Read:            stats.Aggregate(snaps, allocation.RoleRead),
	}
	if o.seconds > 0 {
		r.WriteRate = float64(r.Write.Runs) / float64(o.seconds)
		r.ReadRate = float64(r.Read.Runs) / float64(o.seconds)
	}
	return r
}

func (o *Observer) tick() error {
	r := o.collect()

	if o.cfg.MaxUpdateRate > 0 {
		reached := r.WriteRate > o.cfg.MaxUpdateRate
		if reached != o.throttled {
			o.throttled = reached
			o.flags.SetMaxUpdateRateReached(reached)
			if reached {
				o.log.Infof("update operations rate %.1f ops exceeds maximum %.1f ops, throttling editorial agents", r.WriteRate, o.cfg.MaxUpdateRate)
			} else {
				o.log.Infof("update operations rate %.1f ops is back under maximum %.1f ops", r.WriteRate, o.cfg.MaxUpdateRate)
			}
		}
	}
	r.Throttled = o.throttled

	v := o.gate.Observe(o.seconds, r.WriteRate)
	o.flags.SetResultValid(v.Valid)
	r.Valid, r.Waiting, r.Fatal = v.Valid, v.Waiting, v.Fatal

	switch v.Event {
	case EventReached:
		o.say(logrus.InfoLevel, fmt.Sprintf("Threshold %.1f ops (current update operations rate value : %.1f) has been reached at second %d", o.cfg.MinUpdateRate, r.WriteRate, o.seconds))
	case EventDropped:
		o.say(logrus.WarnLevel, fmt.Sprintf("Warning : Current update operations rate : %.1f ops has dropped below minimum threshold %.1f at second : %d", r.WriteRate, o.cfg.MinUpdateRate, o.seconds))
	}

	o.publish(r)

	switch {
	case v.Fatal:
		o.say(logrus.WarnLevel, fmt.Sprintf("Warning : Update operations rate has not reached or has dropped below minimum threshold of %.1f ops, benchmark results are not valid!", o.cfg.MinUpdateRate))
		return ErrResultInvalid
	case v.Waiting:
		o.say(logrus.InfoLevel, fmt.Sprintf("Waiting for update operations rate (current rate : %.1f ops) to reach minimum threshold of %.1f ops in %d second(s)", r.WriteRate, o.cfg.MinUpdateRate, o.gate.ReachSeconds()-o.seconds))
		return nil
	}

	summary := FormatReport(r, o.cfg.Verbose)
	o.log.Info(summary)
	fmt.Fprintln(o.out, summary)
	return nil
}

func (o *Observer) say(level logrus.Level, msg string) {
	o.log.Log(level, msg)
	fmt.Fprintln(o.out, msg)
}

// FormatReport renders a report in the console summary layout.
func FormatReport(r Report, verbose bool) string {
	var sb strings.Builder
	sb.WriteString("\n")
	if r.ByQueryRuns {
		fmt.Fprintf(&sb, "Query executions : %d\n", r.QueryExecutions)
	} else {
		fmt.Fprintf(&sb, "Seconds run : %d\n", r.Seconds)
	}

	var writes, reads []stats.Snapshot
	for _, s := range r.Snapshots {
		if s.Kind.Role == allocation.RoleWrite {
			writes = append(writes, s)
		} else {
			reads = append(reads, s)
		}
	}

	sb.WriteString("\tEditorial:\n")
	fmt.Fprintf(&sb, "\t\t%d agents\n\n", r.WriteAgents)
	for _, s := range writes {
		if verbose {
			fmt.Fprintf(&sb, "\t\t%-5d %-14s (avg : %-7d ms, min : %-7d ms, max : %-7d ms, %d failed)\n", s.Runs, s.Kind.Name, s.AvgMs, s.MinMs, s.MaxMs, s.Failures)
		} else {
			fmt.Fprintf(&sb, "\t\t%-5d %s\n", s.Runs, s.Kind.Name)
		}
	}
	fmt.Fprintf(&sb, "\t\t%d operations (%d failed)\n", r.Write.Runs, r.Write.Failures)
	fmt.Fprintf(&sb, "\t\t%.4f average operations per second\n", r.WriteRate)

	sb.WriteString("\n\tAggregation:\n")
	fmt.Fprintf(&sb, "\t\t%d agents\n\n", r.ReadAgents)
	for _, s := range reads {
		if verbose {
			fmt.Fprintf(&sb, "\t\t%-5d %-14s queries (avg : %-7d ms, min : %-7d ms, max : %-7d ms, %d failed)\n", s.Runs, s.Kind.Name, s.AvgMs, s.MinMs, s.MaxMs, s.Failures)
		} else {
			fmt.Fprintf(&sb, "\t\t%-5d %s queries\n", s.Runs, s.Kind.Name)
		}
	}
	fmt.Fprintf(&sb, "\n\t\t%d total retrieval queries (%d failed)\n", r.Read.Runs, r.Read.Failures)
	fmt.Fprintf(&sb, "\t\t%.4f average queries per second\n", r.ReadRate)
	if r.Throttled {
		sb.WriteString("\t\teditorial agents throttled (maximum update rate reached)\n")
	}
	return sb.String()
}
