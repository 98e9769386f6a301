package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"sparqlbench/internal/allocation"
	"sparqlbench/internal/logging"
	"sparqlbench/internal/metrics"
	"sparqlbench/internal/report"
	"sparqlbench/internal/runner"
	"sparqlbench/internal/storage"
)

const rule = "======================================================================"

// Session bundles a runner with its loggers, exporter and post-run outputs.
// The headless front-end and the dashboard share it.
type Session struct {
	Cfg    runner.Config
	Runner *runner.Runner

	loggers  *logging.Loggers
	exporter *metrics.Exporter
	out      io.Writer
}

// NewSession opens the log files and builds the runner. Console summaries go
// to out; pass io.Discard when another front-end owns the terminal.
func NewSession(cfg runner.Config, out io.Writer, opts ...runner.Option) (*Session, error) {
	loggers, err := logging.New(cfg.LogDir, cfg.Verbose)
	if err != nil {
		return nil, err
	}
	opts = append([]runner.Option{
		runner.WithLoggers(loggers.Run, loggers.Brief),
		runner.WithOutput(out),
	}, opts...)
	r, err := runner.NewRunner(cfg, opts...)
	if err != nil {
		loggers.Close()
		return nil, err
	}

	s := &Session{Cfg: r.Config(), Runner: r, loggers: loggers, out: out}
	if cfg.MetricsAddr != "" {
		s.exporter = metrics.NewExporter()
	}
	return s, nil
}

// Run starts the optional metrics endpoint and executes the benchmark.
func (s *Session) Run(ctx context.Context) (runner.Result, error) {
	if s.exporter != nil {
		mctx, cancel := context.WithCancel(ctx)
		defer cancel()
		reports := s.Runner.Subscribe()
		go s.exporter.Consume(mctx, reports)
		go func() {
			if err := s.exporter.Serve(mctx, s.Cfg.MetricsAddr); err != nil {
				s.loggers.Run.WithError(err).Error("metrics endpoint stopped")
			}
		}()
		s.loggers.Run.Infof("serving metrics on %s/metrics", s.Cfg.MetricsAddr)
	}
	return s.Runner.Run(ctx)
}

// Finish writes the configured reports and stores the run in the history.
func (s *Session) Finish(res runner.Result) error {
	var result error
	if s.Cfg.OutPrefix != "" {
		files, err := report.Export(res, s.Cfg.OutPrefix)
		if err != nil {
			result = multierror.Append(result, err)
		} else {
			fmt.Fprintf(s.out, "\n💾 Reports saved to %s\n", strings.Join(files, ", "))
		}
	}
	if s.Cfg.HistoryPath != "" {
		if id, err := SaveHistory(s.Cfg.HistoryPath, res); err != nil {
			result = multierror.Append(result, err)
		} else {
			fmt.Fprintf(s.out, "📚 Run saved to history as %s\n", id)
		}
	}
	if result != nil {
		s.loggers.Run.WithError(result).Error("finishing run")
	}
	return result
}

func (s *Session) Close() error {
	return s.loggers.Close()
}

// SaveHistory appends res to the history file and returns its id.
func SaveHistory(path string, res runner.Result) (string, error) {
	store, err := storage.Open(path)
	if err != nil {
		return "", err
	}
	defer store.Close()
	rec, err := storage.NewRecord(res)
	if err != nil {
		return "", err
	}
	return rec.ID, store.Save(rec)
}

// Start runs the benchmark headless and prints the summaries to out.
func Start(ctx context.Context, cfg runner.Config, out io.Writer) error {
	s, err := NewSession(cfg, out)
	if err != nil {
		return err
	}
	defer s.Close()

	PrintHeader(out, s.Cfg)
	res, runErr := s.Run(ctx)
	PrintSummary(out, res)
	if err := s.Finish(res); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func PrintHeader(out io.Writer, cfg runner.Config) {
	fmt.Fprintf(out, "\n🚀 STARTING SPARQLBENCH\n")
	fmt.Fprintf(out, "%s\n", rule)
	fmt.Fprintf(out, "Endpoint   : %s\n", cfg.QueryURL)
	if cfg.UpdateURL != "" && cfg.UpdateURL != cfg.QueryURL {
		fmt.Fprintf(out, "Updates    : %s\n", cfg.UpdateURL)
	}
	fmt.Fprintf(out, "Agents     : %d aggregation / %d editorial\n", cfg.AggregationAgents, cfg.EditorialAgents)
	if cfg.ByQueryRuns > 0 {
		fmt.Fprintf(out, "Duration   : %s warm-up + %d query executions\n", cfg.Warmup, cfg.ByQueryRuns)
	} else {
		fmt.Fprintf(out, "Duration   : %s warm-up + %s benchmark\n", cfg.Warmup, cfg.RunPeriod)
	}
	fmt.Fprintf(out, "Timeout    : %s\n", cfg.QueryTimeout)
	if cfg.MinUpdateRate > 0 || cfg.MaxUpdateRate > 0 {
		fmt.Fprintf(out, "Write rate : min %.1f / max %.1f ops (reach within %.0f%%)\n", cfg.MinUpdateRate, cfg.MaxUpdateRate, cfg.ReachFraction*100)
	}
	fmt.Fprintf(out, "%s\n\n", rule)
}

func PrintSummary(out io.Writer, res runner.Result) {
	fmt.Fprintf(out, "\n\n📊 BENCHMARK RESULTS\n")
	fmt.Fprintf(out, "%s\n", rule)
	fmt.Fprintf(out, "Outcome        : %s (valid: %t)\n", res.Outcome, res.Valid)
	fmt.Fprintf(out, "Total Duration : %s\n", res.Duration.Round(time.Second))
	fmt.Fprintf(out, "Seconds run    : %d\n", res.Seconds)
	fmt.Fprintf(out, "Write rate     : %.4f ops/s\n", res.WriteRate())
	fmt.Fprintf(out, "Read rate      : %.4f queries/s\n", res.ReadRate())

	for _, role := range []allocation.Role{allocation.RoleWrite, allocation.RoleRead} {
		var lines []string
		for _, s := range res.Snapshots {
			if s.Kind.Role != role {
				continue
			}
			p := res.Percentiles[s.Kind.Name]
			lines = append(lines, fmt.Sprintf("   %-16s runs %-7d fail %-5d avg %-6d P50 %-8.2f P90 %-8.2f P99 %-8.2f max %d",
				s.Kind.Name, s.Runs, s.Failures, s.AvgMs, p.P50, p.P90, p.P99, s.MaxMs))
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n⏱️  %s (ms)\n", strings.ToUpper(role.String()))
		fmt.Fprintln(out, strings.Join(lines, "\n"))
	}

	failures := failureCounts(res)
	if len(failures) > 0 {
		fmt.Fprintf(out, "\n❌ FAILURE SUMMARY\n")
		for _, f := range failures {
			fmt.Fprintf(out, "   %d x %s\n", f.count, f.name)
		}
	}
	fmt.Fprintf(out, "%s\n", rule)
}

type failure struct {
	name  string
	count int64
}

func failureCounts(res runner.Result) []failure {
	var out []failure
	for _, s := range res.Snapshots {
		if s.Failures > 0 {
			out = append(out, failure{s.Kind.Name, s.Failures})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].count > out[j].count })
	return out
}
