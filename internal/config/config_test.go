package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/strategy-backtester/internal/backtest"
	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

var envKeys = []string{
	"INITIAL_CAPITAL", "COMMISSION", "MAX_PARALLEL_BACKTESTS", "TRADING_PERIODS_PER_YEAR",
	"RISK_FREE_RATE", "BACKTEST_TIMEOUT", "POSITION_SIZING", "END_OF_RUN", "CACHE_TTL",
	"CACHE_PATH", "LOG_LEVEL", "LOG_FORMAT", "LOG_DIR", "METRICS_ADDR",
}

func clearEnv(t *testing.T) {
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultInitialCapital, cfg.InitialCapital)
	assert.Equal(t, DefaultCommission, cfg.Commission)
	assert.Equal(t, backtest.DefaultMaxWorkers, cfg.MaxParallel)
	assert.Equal(t, 252.0, cfg.PeriodsPerYear)
	assert.Equal(t, 0.02, cfg.RiskFreeRate)
	assert.Zero(t, cfg.BacktestTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Empty(t, cfg.Cache.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, string(backtest.ForceClose), cfg.EndOfRun)
	assert.LessOrEqual(t, cfg.Workers(), backtest.DefaultMaxWorkers)
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("INITIAL_CAPITAL", "5000")
	t.Setenv("COMMISSION", "0.002")
	t.Setenv("MAX_PARALLEL_BACKTESTS", "4")
	t.Setenv("TRADING_PERIODS_PER_YEAR", "365")
	t.Setenv("BACKTEST_TIMEOUT", "30s")
	t.Setenv("CACHE_PATH", "/tmp/results.db")
	t.Setenv("METRICS_ADDR", ":9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5000.0, cfg.InitialCapital)
	assert.Equal(t, 0.002, cfg.Commission)
	assert.Equal(t, 4, cfg.MaxParallel)
	assert.Equal(t, 30*time.Second, cfg.BacktestTimeout)
	assert.Equal(t, "/tmp/results.db", cfg.Cache.Path)
	assert.Equal(t, ":9090", cfg.Monitoring.MetricsAddr)
	assert.Equal(t, backtest.MetricsConfig{PeriodsPerYear: 365, RiskFreeRate: 0.02}, cfg.MetricsConfig())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, val string
	}{
		{"INITIAL_CAPITAL", "abc"},
		{"INITIAL_CAPITAL", "-1"},
		{"COMMISSION", "0.5"},
		{"MAX_PARALLEL_BACKTESTS", "0"},
		{"TRADING_PERIODS_PER_YEAR", "0"},
		{"BACKTEST_TIMEOUT", "soon"},
		{"POSITION_SIZING", "martingale:2"},
		{"END_OF_RUN", "hold"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.val, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.Error(t, err)
			assert.True(t, engineerrors.IsKind(err, engineerrors.KindConfiguration), err.Error())
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides a variable that is already set
	os.Unsetenv("RISK_FREE_RATE")
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RISK_FREE_RATE=0.05\n"), 0644))
	require.NoError(t, LoadEnvFile(path))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.05, cfg.RiskFreeRate)
}

const jobYAML = `
strategy: rsi
symbol: BTCUSDT
data: data/BTCUSDT_1d.csv
initial_capital: 2500
timeout: 45s
parameters:
  rsi_period: 14
optimize:
  metric: total_return
  grid:
    rsi_period: [10, 14, 20]
    oversold: [25, 30]
walk_forward:
  train_bars: 120
  test_bars: 30
`

func writeJob(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rsi-grid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadJob(t *testing.T) {
	path := writeJob(t, jobYAML)
	job, err := LoadJob(path)
	require.NoError(t, err)

	assert.Equal(t, "rsi-grid", job.Name)
	assert.Equal(t, "rsi", job.Strategy)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "data", "BTCUSDT_1d.csv"), job.DataFile)
	assert.Empty(t, job.BenchmarkFile)
	assert.Equal(t, 45*time.Second, job.Timeout)
	assert.Equal(t, types.ParameterSet{"rsi_period": 14}, job.Parameters)
	require.NotNil(t, job.Optimize)
	assert.Equal(t, []string{"rsi_period", "oversold"}, job.Optimize.Grid.Names())
	assert.Equal(t, 6, job.Optimize.Grid.Size())
	require.NotNil(t, job.WalkForward)
	assert.Equal(t, 120, job.WalkForward.TrainBars)

	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	job.ApplyDefaults(cfg)
	assert.Equal(t, 2500.0, job.InitialCapital)
	require.NotNil(t, job.Commission)
	assert.Equal(t, DefaultCommission, *job.Commission)
	assert.NoError(t, job.Validate())

	rule, err := job.SizingRule()
	require.NoError(t, err)
	assert.Equal(t, backtest.FixedSize(1), rule)
}

func TestLoadJob_Errors(t *testing.T) {
	_, err := LoadJob(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, engineerrors.IsKind(err, engineerrors.KindConfiguration))

	_, err = LoadJob(writeJob(t, "strategy: [unterminated"))
	assert.True(t, engineerrors.IsKind(err, engineerrors.KindConfiguration))
}

func TestJob_Validate(t *testing.T) {
	grid := types.ParameterGrid{{Name: "rsi_period", Values: []any{10}}}
	tests := []struct {
		name string
		job  Job
	}{
		{"no strategy", Job{DataFile: "a.csv"}},
		{"no data", Job{Strategy: "rsi"}},
		{"walk forward without grid", Job{Strategy: "rsi", DataFile: "a.csv", WalkForward: &WalkForwardJob{}}},
		{"empty grid", Job{Strategy: "rsi", DataFile: "a.csv", Optimize: &OptimizeJob{Metric: "sharpe_ratio"}}},
		{"bad metric", Job{Strategy: "rsi", DataFile: "a.csv", Optimize: &OptimizeJob{Metric: "luck", Grid: grid}}},
		{"bad sizing", Job{Strategy: "rsi", DataFile: "a.csv", Sizing: "fraction:2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			require.Error(t, err)
			assert.True(t, engineerrors.IsKind(err, engineerrors.KindConfiguration), err.Error())
		})
	}
}
