// Package config loads process settings from the environment and job
// definitions from YAML files.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/ducminhle1904/strategy-backtester/internal/backtest"
	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
)

// Default values applied when a variable is unset or empty.
const (
	DefaultInitialCapital = 10000.0
	DefaultCommission     = 0.001
	DefaultCacheTTL       = 24 * time.Hour
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
)

// Config holds process-wide settings.
type Config struct {
	InitialCapital float64
	Commission     float64
	MaxParallel    int
	PeriodsPerYear float64
	RiskFreeRate   float64

	// zero disables the per-run timeout
	BacktestTimeout time.Duration
	PositionSizing  string
	EndOfRun        string

	Cache struct {
		TTL  time.Duration
		Path string
	}

	Logging struct {
		Level  string
		Format string
		Dir    string
	}

	Monitoring struct {
		MetricsAddr string
	}
}

// LoadEnvFile loads variables from path when the file exists. A missing
// file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return engineerrors.NewConfigurationError("config", "LoadEnvFile", fmt.Sprintf("could not load %s: %v", path, err))
	}
	return nil
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	l := &loader{}
	cfg := &Config{
		InitialCapital:  l.float("INITIAL_CAPITAL", DefaultInitialCapital),
		Commission:      l.float("COMMISSION", DefaultCommission),
		MaxParallel:     l.integer("MAX_PARALLEL_BACKTESTS", backtest.DefaultMaxWorkers),
		PeriodsPerYear:  l.float("TRADING_PERIODS_PER_YEAR", backtest.DefaultPeriodsPerYear),
		RiskFreeRate:    l.float("RISK_FREE_RATE", backtest.DefaultRiskFreeRate),
		BacktestTimeout: l.duration("BACKTEST_TIMEOUT", 0),
		PositionSizing:  getEnv("POSITION_SIZING", "fixed:1"),
		EndOfRun:        getEnv("END_OF_RUN", string(backtest.ForceClose)),
	}
	cfg.Cache.TTL = l.duration("CACHE_TTL", DefaultCacheTTL)
	cfg.Cache.Path = getEnv("CACHE_PATH", "")
	cfg.Logging.Level = getEnv("LOG_LEVEL", DefaultLogLevel)
	cfg.Logging.Format = getEnv("LOG_FORMAT", DefaultLogFormat)
	cfg.Logging.Dir = getEnv("LOG_DIR", "")
	cfg.Monitoring.MetricsAddr = getEnv("METRICS_ADDR", "")

	if l.err != nil {
		return nil, l.err
	}
	return cfg, cfg.Validate()
}

// Validate checks ranges. Errors are configuration errors.
func (c *Config) Validate() error {
	invalid := func(msg string) error {
		return engineerrors.NewConfigurationError("config", "validate", msg)
	}
	if !(c.InitialCapital > 0) {
		return invalid(fmt.Sprintf("INITIAL_CAPITAL must be positive, got %v", c.InitialCapital))
	}
	if c.Commission < 0 || c.Commission > backtest.MaxCommission {
		return invalid(fmt.Sprintf("COMMISSION must be in [0, %v], got %v", backtest.MaxCommission, c.Commission))
	}
	if c.MaxParallel < 1 {
		return invalid(fmt.Sprintf("MAX_PARALLEL_BACKTESTS must be at least 1, got %d", c.MaxParallel))
	}
	if !(c.PeriodsPerYear > 0) {
		return invalid(fmt.Sprintf("TRADING_PERIODS_PER_YEAR must be positive, got %v", c.PeriodsPerYear))
	}
	if c.BacktestTimeout < 0 || c.Cache.TTL < 0 {
		return invalid("durations must not be negative")
	}
	if _, err := backtest.ParseSizingRule(c.PositionSizing); err != nil {
		return err
	}
	switch backtest.EndOfRunPolicy(c.EndOfRun) {
	case backtest.ForceClose, backtest.LeaveOpen:
	default:
		return invalid(fmt.Sprintf("END_OF_RUN must be %s or %s, got %q", backtest.ForceClose, backtest.LeaveOpen, c.EndOfRun))
	}
	return nil
}

// Workers returns the optimizer pool size for this machine.
func (c *Config) Workers() int {
	return min(c.MaxParallel, runtime.GOMAXPROCS(0))
}

// MetricsConfig returns the metric calculator settings.
func (c *Config) MetricsConfig() backtest.MetricsConfig {
	return backtest.MetricsConfig{PeriodsPerYear: c.PeriodsPerYear, RiskFreeRate: c.RiskFreeRate}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loader keeps the first parse error.
type loader struct {
	err error
}

func (l *loader) fail(key, val string, err error) {
	if l.err == nil {
		l.err = engineerrors.NewConfigurationError("config", "load", fmt.Sprintf("%s=%q: %v", key, val, err))
	}
}

func (l *loader) float(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		l.fail(key, val, err)
		return defaultVal
	}
	return f
}

func (l *loader) integer(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		l.fail(key, val, err)
		return defaultVal
	}
	return i
}

func (l *loader) duration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		l.fail(key, val, err)
		return defaultVal
	}
	return d
}
