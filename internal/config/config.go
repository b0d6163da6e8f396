// Package config handles configuration loading for strategylab. It
// supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration.
type Config struct {
	Backtest Backtest `mapstructure:"backtest" yaml:"backtest" json:"backtest"`
	Costs    Costs    `mapstructure:"costs"    yaml:"costs"    json:"costs"`
	Factor   Factor   `mapstructure:"factor"   yaml:"factor"   json:"factor"`
	Executor Executor `mapstructure:"executor" yaml:"executor" json:"executor"`
	Sandbox  Sandbox  `mapstructure:"sandbox"  yaml:"sandbox"  json:"sandbox"`
	Logging  Logging  `mapstructure:"logging"  yaml:"logging"  json:"logging"`
}

// Backtest holds default backtest-engine parameters.
type Backtest struct {
	InitialCapital float64 `mapstructure:"initial_capital" yaml:"initial_capital" json:"initial_capital"`
	TopN           int     `mapstructure:"top_n"           yaml:"top_n"           json:"top_n"`
	HoldingPeriod  int     `mapstructure:"holding_period"  yaml:"holding_period"  json:"holding_period"`
	RebalanceFreq  string  `mapstructure:"rebalance_freq"  yaml:"rebalance_freq"  json:"rebalance_freq"`
	MarketNeutral  bool    `mapstructure:"market_neutral"  yaml:"market_neutral"  json:"market_neutral"`
	ShortTopN      int     `mapstructure:"short_top_n"     yaml:"short_top_n"     json:"short_top_n"`
	ChunkSize      int     `mapstructure:"chunk_size"      yaml:"chunk_size"      json:"chunk_size"`
}

// Costs holds commission/stamp/slippage/margin-ratio defaults.
type Costs struct {
	CommissionRate float64 `mapstructure:"commission_rate" yaml:"commission_rate" json:"commission_rate"`
	MinCommission  float64 `mapstructure:"min_commission"  yaml:"min_commission"  json:"min_commission"`
	StampTaxRate   float64 `mapstructure:"stamp_tax_rate"  yaml:"stamp_tax_rate"  json:"stamp_tax_rate"`
	SlippageModel  string  `mapstructure:"slippage_model"  yaml:"slippage_model"  json:"slippage_model"`
	MarginRatio    float64 `mapstructure:"margin_ratio"    yaml:"margin_ratio"    json:"margin_ratio"`
}

// Factor holds factor-analyzer defaults.
type Factor struct {
	Horizon         int    `mapstructure:"horizon"         yaml:"horizon"         json:"horizon"`
	MinSamples      int    `mapstructure:"min_samples"     yaml:"min_samples"     json:"min_samples"`
	NumLayers       int    `mapstructure:"num_layers"      yaml:"num_layers"      json:"num_layers"`
	CorrelationMode string `mapstructure:"correlation_mode" yaml:"correlation_mode" json:"correlation_mode"`
	CombineMethod   string `mapstructure:"combine_method"  yaml:"combine_method"  json:"combine_method"`
}

// Executor holds parallel-executor defaults.
type Executor struct {
	Backend          string `mapstructure:"backend"            yaml:"backend"            json:"backend"`
	Workers          int    `mapstructure:"workers"            yaml:"workers"            json:"workers"`
	MinParallelTasks int    `mapstructure:"min_parallel_tasks" yaml:"min_parallel_tasks" json:"min_parallel_tasks"`
	TaskTimeoutSec   int    `mapstructure:"task_timeout_sec"   yaml:"task_timeout_sec"   json:"task_timeout_sec"`
	IgnoreErrors     bool   `mapstructure:"ignore_errors"      yaml:"ignore_errors"      json:"ignore_errors"`
}

// Sandbox holds dynamic-strategy-loader defaults.
type Sandbox struct {
	StrictMode     bool   `mapstructure:"strict_mode"        yaml:"strict_mode"        json:"strict_mode"`
	AuditDir       string `mapstructure:"audit_dir"          yaml:"audit_dir"          json:"audit_dir"`
	DeadlineMillis int    `mapstructure:"deadline_millis"    yaml:"deadline_millis"    json:"deadline_millis"`
	CPUTimeSec     int    `mapstructure:"cpu_time_sec"       yaml:"cpu_time_sec"       json:"cpu_time_sec"`
	AddressSpaceMB int    `mapstructure:"address_space_mb"   yaml:"address_space_mb"   json:"address_space_mb"`
}

// Logging holds logging settings.
type Logging struct {
	Level  string `mapstructure:"level"  yaml:"level"  json:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format" json:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.strategylab/config.yaml (home directory)
//  3. /etc/strategylab/config.yaml (system)
//
// Environment variables override config file values.
// Format: STRATEGYLAB_<SECTION>_<KEY>, e.g. STRATEGYLAB_EXECUTOR_WORKERS
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".strategylab"))
	v.AddConfigPath("/etc/strategylab")

	v.SetEnvPrefix("STRATEGYLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("STRATEGYLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("backtest.initial_capital", 100000.0)
	v.SetDefault("backtest.top_n", 10)
	v.SetDefault("backtest.holding_period", 3)
	v.SetDefault("backtest.rebalance_freq", "D")
	v.SetDefault("backtest.market_neutral", false)
	v.SetDefault("backtest.short_top_n", 0)
	v.SetDefault("backtest.chunk_size", 0)

	v.SetDefault("costs.commission_rate", 0.0003)
	v.SetDefault("costs.min_commission", 5.0)
	v.SetDefault("costs.stamp_tax_rate", 0.001)
	v.SetDefault("costs.slippage_model", "fixed")
	v.SetDefault("costs.margin_ratio", 0.5)

	v.SetDefault("factor.horizon", 5)
	v.SetDefault("factor.min_samples", 10)
	v.SetDefault("factor.num_layers", 5)
	v.SetDefault("factor.correlation_mode", "concat")
	v.SetDefault("factor.combine_method", "ic_weighted")

	v.SetDefault("executor.backend", "thread")
	v.SetDefault("executor.workers", -1)
	v.SetDefault("executor.min_parallel_tasks", 4)
	v.SetDefault("executor.task_timeout_sec", 30)
	v.SetDefault("executor.ignore_errors", false)

	v.SetDefault("sandbox.strict_mode", true)
	v.SetDefault("sandbox.audit_dir", filepath.Join(".", "data", "audit"))
	v.SetDefault("sandbox.deadline_millis", 5000)
	v.SetDefault("sandbox.cpu_time_sec", 2)
	v.SetDefault("sandbox.address_space_mb", 512)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// SaveToFile writes the current configuration to a YAML file. If path is
// empty, it writes to ./config/config.yaml.
func SaveToFile(cfg *Config, path string) error {
	if path == "" {
		path = filepath.Join(".", "config", "config.yaml")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: cannot create config directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing config file %s: %w", path, err)
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
