// Command backtest runs a single backtest, a parameter grid optimization or
// a walk-forward analysis over historical bars.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ducminhle1904/strategy-backtester/cmd/common"
	"github.com/ducminhle1904/strategy-backtester/internal/backtest"
	"github.com/ducminhle1904/strategy-backtester/internal/config"
	"github.com/ducminhle1904/strategy-backtester/internal/logger"
	"github.com/ducminhle1904/strategy-backtester/internal/strategy"
)

const appName = "backtest"

type cliFlags struct {
	common *common.CommonFlags

	job       *string
	data      *string
	benchmark *string
	strategy  *string
	symbol    *string
	params    *string
	grid      *string
	metric    *string
	period    *string
	top       *int

	wfTrain *int
	wfTest  *int
	wfStep  *int

	purgeCache *bool
	invalidate *string
	noProgress *bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func newFlagSet(stderr io.Writer) (*flag.FlagSet, *cliFlags) {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := &cliFlags{
		common: common.RegisterCommonFlags(fs),

		job:       fs.String("job", "", "YAML job file"),
		data:      fs.String("data", "", "Bar file (.csv or .parquet); overrides the job"),
		benchmark: fs.String("benchmark", "", "Benchmark bar file for alpha, beta and information ratio"),
		strategy:  fs.String("strategy", "", "Strategy: "+strings.Join(strategy.DefaultRegistry().List(), ", ")),
		symbol:    fs.String("symbol", "", "Symbol label for reports and cache keys"),
		params:    fs.String("params", "", "Strategy parameters, e.g. fast_period=10,slow_period=30"),
		grid:      fs.String("grid", "", "Optimization grid, e.g. \"fast_period=5,10;slow_period=20,30\""),
		metric:    fs.String("metric", "", "Ranking metric: "+strings.Join(backtest.MetricNames(), ", ")),
		period:    fs.String("period", "", "Use only the trailing period of data, e.g. 30d or 720h"),
		top:       fs.Int("top", 10, "Number of ranked combinations to print"),

		wfTrain: fs.Int("wf-train", 0, "Walk-forward training window in bars (enables walk-forward)"),
		wfTest:  fs.Int("wf-test", 0, "Walk-forward test window in bars"),
		wfStep:  fs.Int("wf-step", 0, "Walk-forward step in bars (default: test window)"),

		purgeCache: fs.Bool("purge-cache", false, "Remove expired cache entries before running"),
		invalidate: fs.String("invalidate", "", "Drop cached results for this symbol before running"),
		noProgress: fs.Bool("no-progress", false, "Disable the optimization progress bar"),
	}
	return fs, f
}

func usage() *common.UsageFormatter {
	return common.NewUsageFormatter(appName, "Backtest, optimize and walk-forward trading strategies").
		AddExample("backtest -data data/BTCUSDT/1d/candles.csv -strategy rsi -params rsi_period=14", "Single backtest").
		AddExample("backtest -data candles.csv -strategy sma_cross -grid \"fast_period=5,10;slow_period=20,30\" -metric sharpe_ratio", "Grid optimization").
		AddExample("backtest -job jobs/btc_rsi.yaml -wf-train 252 -wf-test 63", "Walk-forward analysis from a job file")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, f := newFlagSet(stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if common.CheckHelpAndVersion(stdout, fs, f.common, usage()) {
		return nil
	}

	if err := config.LoadEnvFile(*f.common.EnvFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *f.common.LogLevel != "" {
		cfg.Logging.Level = *f.common.LogLevel
	}

	log, err := logger.New(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		LogDir: cfg.Logging.Dir,
		Name:   appName,
	})
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := newApp(ctx, cfg, log, appOptions{
		consoleOnly: *f.common.ConsoleOnly,
		outputDir:   *f.common.OutputDir,
		top:         *f.top,
		progress:    !*f.noProgress,
		stdout:      stdout,
		stderr:      stderr,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	maintained, err := a.maintainCache(ctx, *f.purgeCache, *f.invalidate)
	if err != nil {
		return err
	}
	if maintained && *f.job == "" && *f.strategy == "" {
		return nil
	}

	job, err := buildJob(f)
	if err != nil {
		return err
	}
	job.ApplyDefaults(cfg)
	if err := job.Validate(); err != nil {
		return err
	}
	return a.execute(ctx, job, *f.period)
}

// buildJob loads the job file, if any, and applies flag overrides.
func buildJob(f *cliFlags) (*config.Job, error) {
	job := &config.Job{Name: appName}
	if *f.job != "" {
		loaded, err := config.LoadJob(*f.job)
		if err != nil {
			return nil, err
		}
		job = loaded
	}

	if *f.data != "" {
		job.DataFile = *f.data
	}
	if *f.benchmark != "" {
		job.BenchmarkFile = *f.benchmark
	}
	if *f.strategy != "" {
		job.Strategy = *f.strategy
	}
	if *f.symbol != "" {
		job.Symbol = *f.symbol
	}

	params, err := parseParams(*f.params)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		if job.Parameters == nil {
			job.Parameters = params
		} else {
			for k, v := range params {
				job.Parameters[k] = v
			}
		}
	}

	grid, err := parseGrid(*f.grid)
	if err != nil {
		return nil, err
	}
	if len(grid) > 0 {
		if job.Optimize == nil {
			job.Optimize = &config.OptimizeJob{}
		}
		job.Optimize.Grid = grid
	}
	if *f.metric != "" {
		if job.Optimize == nil {
			return nil, fmt.Errorf("-metric needs a grid (-grid or an optimize section)")
		}
		job.Optimize.Metric = *f.metric
	}

	if *f.wfTrain > 0 || *f.wfTest > 0 || *f.wfStep > 0 {
		if job.WalkForward == nil {
			job.WalkForward = &config.WalkForwardJob{}
		}
		if *f.wfTrain > 0 {
			job.WalkForward.TrainBars = *f.wfTrain
		}
		if *f.wfTest > 0 {
			job.WalkForward.TestBars = *f.wfTest
		}
		if *f.wfStep > 0 {
			job.WalkForward.Step = *f.wfStep
		}
	}
	return job, nil
}
