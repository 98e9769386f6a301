package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sparqlbench/internal/banner"
	"sparqlbench/internal/cli"
	"sparqlbench/internal/config"
	"sparqlbench/internal/runner"
	"sparqlbench/internal/tui"
)

// ExitInvalid is the exit status of a run whose update rate left the valid band.
const ExitInvalid = 2

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sparqlbench",
	Short: "sparqlbench - SPARQL endpoint benchmark driver",
	Long: `
sparqlbench measures a SPARQL endpoint under a mixed workload of editorial
(insert/update/delete) and aggregation (read) agents.

It supports two front-ends:
1. CLI Mode (Default): per-second summaries on stdout, for CI usage
2. TUI Mode (--tui): live dashboard`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the benchmark",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if useTUI, _ := cmd.Flags().GetBool("tui"); useTUI {
			return runDashboard(ctx, cfg)
		}
		return cli.Start(ctx, cfg, os.Stdout)
	},
}

// Execute runs the command line and exits with its status.
func Execute() {
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	err := rootCmd.Execute()
	switch {
	case err == nil:
	case errors.Is(err, runner.ErrResultInvalid):
		os.Exit(ExitInvalid)
	default:
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd, dummyCmd, historyCmd)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./sparqlbench.yaml)")

	d := viper.New()
	config.SetDefaults(d)

	f := runCmd.Flags()
	f.StringP(config.KeyEndpointURL, "u", d.GetString(config.KeyEndpointURL), "SPARQL query endpoint URL")
	f.String(config.KeyEndpointUpdateURL, d.GetString(config.KeyEndpointUpdateURL), "SPARQL update endpoint URL (defaults to the query endpoint)")
	f.Bool(config.KeyInsecureSkipVerify, d.GetBool(config.KeyInsecureSkipVerify), "skip TLS certificate verification")
	f.IntP(config.KeyAggregationAgents, "a", d.GetInt(config.KeyAggregationAgents), "number of aggregation (read) agents")
	f.IntP(config.KeyEditorialAgents, "e", d.GetInt(config.KeyEditorialAgents), "number of editorial (write) agents")
	f.Float64(config.KeyQueryTimeoutSeconds, d.GetFloat64(config.KeyQueryTimeoutSeconds), "per query timeout in seconds")
	f.Float64(config.KeyWarmupPeriodSeconds, d.GetFloat64(config.KeyWarmupPeriodSeconds), "warm-up period in seconds")
	f.Float64P(config.KeyRunPeriodSeconds, "d", d.GetFloat64(config.KeyRunPeriodSeconds), "benchmark period in seconds")
	f.Int64(config.KeyByQueryRuns, d.GetInt64(config.KeyByQueryRuns), "stop after this many aggregation query executions instead of a period")
	f.Float64(config.KeyMinUpdateRate, d.GetFloat64(config.KeyMinUpdateRate), "minimum editorial operations per second for a valid run")
	f.Float64(config.KeyMaxUpdateRate, d.GetFloat64(config.KeyMaxUpdateRate), "editorial operations per second above which writers pause")
	f.Float64(config.KeyReachTimePercent, d.GetFloat64(config.KeyReachTimePercent), "share of the run period allowed to reach the minimum update rate")
	f.Int64(config.KeyThrottleMillis, d.GetInt64(config.KeyThrottleMillis), "pause of a throttled editorial agent in milliseconds")
	f.StringP(config.KeyQueriesPath, "q", d.GetString(config.KeyQueriesPath), "directory holding aggregation/ and editorial/ templates")
	f.String(config.KeyEditorialAllocation, d.GetString(config.KeyEditorialAllocation), "insert,update,delete weights")
	f.String(config.KeyAggregationAllocation, d.GetString(config.KeyAggregationAllocation), "one weight per aggregation template")
	f.BoolP(config.KeyVerbose, "v", d.GetBool(config.KeyVerbose), "log every query and result")
	f.Int64(config.KeySeed, d.GetInt64(config.KeySeed), "random seed (0 picks one from the clock)")
	f.String(config.KeyLogDir, d.GetString(config.KeyLogDir), "directory of the run and brief logs")
	f.String(config.KeyHistoryPath, d.GetString(config.KeyHistoryPath), "run history database (empty disables it)")
	f.String(config.KeyMetricsAddr, d.GetString(config.KeyMetricsAddr), "serve Prometheus metrics on this address, e.g. :9100")
	f.StringP(config.KeyOut, "o", d.GetString(config.KeyOut), "output filename prefix for CSV/JSON reports")
	f.Bool("tui", false, "show the live dashboard")
}

func loadConfig(cmd *cobra.Command) (runner.Config, error) {
	v, err := config.New(cfgFile)
	if err != nil {
		return runner.Config{}, err
	}
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return runner.Config{}, errors.Wrap(err, "binding flags")
	}
	return config.Load(v)
}

func runDashboard(ctx context.Context, cfg runner.Config) error {
	s, err := cli.NewSession(cfg, io.Discard)
	if err != nil {
		return err
	}
	defer s.Close()

	res, runErr := tui.Run(ctx, s)
	cli.PrintSummary(os.Stdout, res)
	if err := s.Finish(res); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  %v\n", err)
	}
	return runErr
}
