package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sparqlbench/internal/dummy"
	"sparqlbench/internal/logging"
)

var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Run a fake SPARQL endpoint for local runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := dummy.DefaultConfig()
		f := cmd.Flags()
		cfg.Port, _ = f.GetInt("port")
		cfg.MinLatency, _ = f.GetDuration("min-latency")
		cfg.MaxLatency, _ = f.GetDuration("max-latency")
		cfg.SpikeRate, _ = f.GetFloat64("spike-rate")
		cfg.ErrorRate, _ = f.GetFloat64("error-rate")
		cfg.Results, _ = f.GetInt("results")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return dummy.Start(ctx, cfg, logging.NewLogger(os.Stderr, false))
	},
}

func init() {
	d := dummy.DefaultConfig()
	f := dummyCmd.Flags()
	f.IntP("port", "p", d.Port, "Port to run dummy server on")
	f.Duration("min-latency", d.MinLatency, "minimum response latency")
	f.Duration("max-latency", d.MaxLatency, "maximum response latency")
	f.Float64("spike-rate", d.SpikeRate, "share of requests answered after a 2s spike")
	f.Float64("error-rate", d.ErrorRate, "share of requests answered with 500 or 429")
	f.Int("results", d.Results, "result rows per query answer")
}
