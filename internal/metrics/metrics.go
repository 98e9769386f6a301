package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sparqlbench/internal/observer"
)

const prefix = "sparqlbench_"

var kindLabels = []string{"role", "kind"}

// Exporter publishes observer reports as Prometheus gauges. It is fed from
// reports only and never touches the agents' hot path.
type Exporter struct {
	registry *prometheus.Registry

	runs      *prometheus.GaugeVec
	failures  *prometheus.GaugeVec
	avgMs     *prometheus.GaugeVec
	minMs     *prometheus.GaugeVec
	maxMs     *prometheus.GaugeVec
	writeRate prometheus.Gauge
	readRate  prometheus.Gauge
	valid     prometheus.Gauge
	elapsed   prometheus.Gauge
}

func NewExporter() *Exporter {
	gaugeVec := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: prefix + name, Help: help}, kindLabels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: prefix + name, Help: help})
	}
	e := &Exporter{
		registry:  prometheus.NewRegistry(),
		runs:      gaugeVec("operation_runs", "Successful benchmark phase executions per operation kind"),
		failures:  gaugeVec("operation_failures", "Failed benchmark phase executions per operation kind"),
		avgMs:     gaugeVec("operation_latency_avg_ms", "Average execution time in milliseconds"),
		minMs:     gaugeVec("operation_latency_min_ms", "Minimum execution time in milliseconds"),
		maxMs:     gaugeVec("operation_latency_max_ms", "Maximum execution time in milliseconds"),
		writeRate: gauge("write_ops_per_second", "Average editorial operations per second"),
		readRate:  gauge("read_ops_per_second", "Average aggregation queries per second"),
		valid:     gauge("result_valid", "1 while the benchmark result is valid"),
		elapsed:   gauge("elapsed_seconds", "Seconds of benchmark phase observed"),
	}
	e.registry.MustRegister(e.runs, e.failures, e.avgMs, e.minMs, e.maxMs, e.writeRate, e.readRate, e.valid, e.elapsed)
	return e
}

func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Observe updates every gauge from one report.
func (e *Exporter) Observe(r observer.Report) {
	for _, s := range r.Snapshots {
		labels := prometheus.Labels{"role": s.Kind.Role.String(), "kind": s.Kind.Name}
		e.runs.With(labels).Set(float64(s.Runs))
		e.failures.With(labels).Set(float64(s.Failures))
		e.avgMs.With(labels).Set(float64(s.AvgMs))
		e.minMs.With(labels).Set(float64(s.MinMs))
		e.maxMs.With(labels).Set(float64(s.MaxMs))
	}
	e.writeRate.Set(r.WriteRate)
	e.readRate.Set(r.ReadRate)
	e.elapsed.Set(float64(r.Seconds))
	if r.Valid {
		e.valid.Set(1)
	} else {
		e.valid.Set(0)
	}
}

// Consume observes reports until the channel is closed or ctx is done.
func (e *Exporter) Consume(ctx context.Context, reports <-chan observer.Report) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-reports:
			if !ok {
				return
			}
			e.Observe(r)
		}
	}
}

func (e *Exporter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	return mux
}

// Serve exposes /metrics on addr until ctx is done.
func (e *Exporter) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: e.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return errors.Wrapf(err, "serving metrics on %s", addr)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
