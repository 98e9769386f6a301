package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"sparqlbench/internal/query"
	"sparqlbench/internal/runner"
)

// EnvPrefix prefixes every environment variable override, e.g. SPARQLBENCH_ENDPOINTURL.
const EnvPrefix = "SPARQLBENCH"

// Configuration keys.
const (
	KeyEndpointURL           = "endpointURL"
	KeyEndpointUpdateURL     = "endpointUpdateURL"
	KeyInsecureSkipVerify    = "insecureSkipVerify"
	KeyAggregationAgents     = "aggregationAgents"
	KeyEditorialAgents       = "editorialAgents"
	KeyQueryTimeoutSeconds   = "queryTimeoutSeconds"
	KeyWarmupPeriodSeconds   = "warmupPeriodSeconds"
	KeyRunPeriodSeconds      = "benchmarkRunPeriodSeconds"
	KeyByQueryRuns           = "benchmarkByQueryRuns"
	KeyMinUpdateRate         = "minUpdateRateThresholdOps"
	KeyMaxUpdateRate         = "maxUpdateRateThresholdOps"
	KeyReachTimePercent      = "updateRateThresholdReachTimePercent"
	KeyThrottleMillis        = "editorialThrottleMillis"
	KeyQueriesPath           = "queriesPath"
	KeyVerbose               = "verbose"
	KeySeed                  = "seed"
	KeyLogDir                = "logDir"
	KeyHistoryPath           = "historyPath"
	KeyMetricsAddr           = "metricsAddr"
	KeyOut                   = "out"
	KeyEditorialAllocation   = "editorialOperationsAllocation"
	KeyAggregationAllocation = "aggregationOperationsAllocation"
	KeyDrillDown             = "drillDown"
)

// DefaultHistoryPath is $HOME/.sparqlbench/history.db, or a relative path when
// the home directory is unknown.
func DefaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".sparqlbench", "history.db")
	}
	return filepath.Join(home, ".sparqlbench", "history.db")
}

// SetDefaults registers the default of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyEndpointURL, "")
	v.SetDefault(KeyEndpointUpdateURL, "")
	v.SetDefault(KeyInsecureSkipVerify, false)
	v.SetDefault(KeyAggregationAgents, 16)
	v.SetDefault(KeyEditorialAgents, 2)
	v.SetDefault(KeyQueryTimeoutSeconds, 90)
	v.SetDefault(KeyWarmupPeriodSeconds, 30)
	v.SetDefault(KeyRunPeriodSeconds, 60)
	v.SetDefault(KeyByQueryRuns, 0)
	v.SetDefault(KeyMinUpdateRate, 0.0)
	v.SetDefault(KeyMaxUpdateRate, 0.0)
	v.SetDefault(KeyReachTimePercent, 0.1)
	v.SetDefault(KeyThrottleMillis, 100)
	v.SetDefault(KeyQueriesPath, "./queries")
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeySeed, 0)
	v.SetDefault(KeyLogDir, "./logs")
	v.SetDefault(KeyHistoryPath, DefaultHistoryPath())
	v.SetDefault(KeyMetricsAddr, "")
	v.SetDefault(KeyOut, "")
	v.SetDefault(KeyEditorialAllocation, "0.8,0.1,0.1")
	v.SetDefault(KeyAggregationAllocation, "")
	v.SetDefault(KeyDrillDown, query.DefaultDrillDowns())
}

// New returns a viper instance with defaults and environment overrides.
// When file is empty, ./sparqlbench.yaml is read if present.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config %s", file)
		}
		return v, nil
	}

	v.SetConfigName("sparqlbench")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "reading config")
		}
	}
	return v, nil
}

// BindFlags binds command line flags whose names match configuration keys.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var result error
	flags.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			result = multierror.Append(result, err)
		}
	})
	return result
}

// Load reads and validates a run configuration.
func Load(v *viper.Viper) (runner.Config, error) {
	cfg := runner.Config{
		QueryURL:              strings.TrimSpace(v.GetString(KeyEndpointURL)),
		UpdateURL:             strings.TrimSpace(v.GetString(KeyEndpointUpdateURL)),
		InsecureSkipVerify:    v.GetBool(KeyInsecureSkipVerify),
		AggregationAgents:     v.GetInt(KeyAggregationAgents),
		EditorialAgents:       v.GetInt(KeyEditorialAgents),
		QueryTimeout:          seconds(v.GetFloat64(KeyQueryTimeoutSeconds)),
		Warmup:                seconds(v.GetFloat64(KeyWarmupPeriodSeconds)),
		RunPeriod:             seconds(v.GetFloat64(KeyRunPeriodSeconds)),
		ByQueryRuns:           v.GetInt64(KeyByQueryRuns),
		MinUpdateRate:         v.GetFloat64(KeyMinUpdateRate),
		MaxUpdateRate:         v.GetFloat64(KeyMaxUpdateRate),
		ReachFraction:         v.GetFloat64(KeyReachTimePercent),
		ThrottleInterval:      time.Duration(v.GetInt64(KeyThrottleMillis)) * time.Millisecond,
		QueriesPath:           v.GetString(KeyQueriesPath),
		EditorialAllocation:   v.GetString(KeyEditorialAllocation),
		AggregationAllocation: v.GetString(KeyAggregationAllocation),
		DrillDown:             v.GetStringMapString(KeyDrillDown),
		Verbose:               v.GetBool(KeyVerbose),
		Seed:                  v.GetInt64(KeySeed),
		LogDir:                v.GetString(KeyLogDir),
		HistoryPath:           v.GetString(KeyHistoryPath),
		MetricsAddr:           v.GetString(KeyMetricsAddr),
		OutPrefix:             v.GetString(KeyOut),
	}
	return cfg, Validate(cfg)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Validate reports every problem of cfg at once.
func Validate(cfg runner.Config) error {
	var result *multierror.Error
	add := func(format string, args ...interface{}) {
		result = multierror.Append(result, errors.Errorf(format, args...))
	}

	if cfg.QueryURL == "" {
		add("%s is required", KeyEndpointURL)
	}
	if cfg.AggregationAgents < 0 {
		add("%s must not be negative", KeyAggregationAgents)
	}
	if cfg.EditorialAgents < 0 {
		add("%s must not be negative", KeyEditorialAgents)
	}
	if cfg.AggregationAgents+cfg.EditorialAgents == 0 {
		add("at least one agent is required")
	}
	if cfg.QueryTimeout <= 0 {
		add("%s must be positive", KeyQueryTimeoutSeconds)
	}
	if cfg.Warmup < 0 {
		add("%s must not be negative", KeyWarmupPeriodSeconds)
	}
	if cfg.ByQueryRuns < 0 {
		add("%s must not be negative", KeyByQueryRuns)
	}
	if cfg.ByQueryRuns == 0 && cfg.RunPeriod <= 0 {
		add("%s must be positive", KeyRunPeriodSeconds)
	}
	if cfg.ByQueryRuns > 0 && cfg.AggregationAgents == 0 {
		add("%s requires aggregation agents", KeyByQueryRuns)
	}
	if cfg.MinUpdateRate < 0 || cfg.MaxUpdateRate < 0 {
		add("update rate thresholds must not be negative")
	}
	if cfg.MinUpdateRate > 0 && cfg.MaxUpdateRate > 0 && cfg.MaxUpdateRate < cfg.MinUpdateRate {
		add("%s (%.1f) is below %s (%.1f)", KeyMaxUpdateRate, cfg.MaxUpdateRate, KeyMinUpdateRate, cfg.MinUpdateRate)
	}
	if cfg.ReachFraction < 0 || cfg.ReachFraction > 1 {
		add("%s must be within [0, 1]", KeyReachTimePercent)
	}
	if cfg.AggregationAgents > 0 && strings.TrimSpace(cfg.AggregationAllocation) == "" {
		add("%s is required when aggregation agents are configured", KeyAggregationAllocation)
	}
	if cfg.EditorialAgents > 0 && strings.TrimSpace(cfg.EditorialAllocation) == "" {
		add("%s is required when editorial agents are configured", KeyEditorialAllocation)
	}
	if _, err := query.ResolveDrillDowns(cfg.DrillDown); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
