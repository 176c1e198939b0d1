package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ducminhle1904/strategy-backtester/internal/backtest"
	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
	"github.com/ducminhle1904/strategy-backtester/pkg/types"
)

// Job is a backtest, optimisation or walk-forward definition read from YAML.
type Job struct {
	Name           string             `yaml:"name"`
	Strategy       string             `yaml:"strategy"`
	Symbol         string             `yaml:"symbol"`
	DataFile       string             `yaml:"data"`
	BenchmarkFile  string             `yaml:"benchmark"`
	InitialCapital float64            `yaml:"initial_capital"`
	Commission     *float64           `yaml:"commission"`
	Sizing         string             `yaml:"sizing"`
	EndOfRun       string             `yaml:"end_of_run"`
	Timeout        time.Duration      `yaml:"timeout"`
	Parameters     types.ParameterSet `yaml:"parameters"`

	Optimize    *OptimizeJob    `yaml:"optimize"`
	WalkForward *WalkForwardJob `yaml:"walk_forward"`
}

// OptimizeJob is the grid search section of a job.
type OptimizeJob struct {
	Metric string              `yaml:"metric"`
	Grid   types.ParameterGrid `yaml:"grid"`
}

// WalkForwardJob sets the rolling window sizes in bars.
type WalkForwardJob struct {
	TrainBars int `yaml:"train_bars"`
	TestBars  int `yaml:"test_bars"`
	Step      int `yaml:"step"`
}

// LoadJob decodes the YAML job file at path. Relative data paths are
// resolved against the job file's directory.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engineerrors.NewConfigurationError("config", "LoadJob", fmt.Sprintf("failed to read job file: %v", err))
	}
	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, engineerrors.NewConfigurationError("config", "LoadJob", fmt.Sprintf("failed to parse %s: %v", path, err))
	}
	dir := filepath.Dir(path)
	job.DataFile = resolve(dir, job.DataFile)
	job.BenchmarkFile = resolve(dir, job.BenchmarkFile)
	if job.Name == "" {
		job.Name = trimExt(filepath.Base(path))
	}
	return &job, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}

// ApplyDefaults fills unset job fields from cfg.
func (j *Job) ApplyDefaults(cfg *Config) {
	if j.InitialCapital == 0 {
		j.InitialCapital = cfg.InitialCapital
	}
	if j.Commission == nil {
		c := cfg.Commission
		j.Commission = &c
	}
	if j.Sizing == "" {
		j.Sizing = cfg.PositionSizing
	}
	if j.EndOfRun == "" {
		j.EndOfRun = cfg.EndOfRun
	}
	if j.Timeout == 0 {
		j.Timeout = cfg.BacktestTimeout
	}
	if j.Optimize != nil && j.Optimize.Metric == "" {
		j.Optimize.Metric = "sharpe_ratio"
	}
}

// Validate checks the job without loading any data.
func (j *Job) Validate() error {
	invalid := func(msg string) error {
		return engineerrors.NewConfigurationError("config", "validate job", msg).WithContext("job", j.Name)
	}
	if j.Strategy == "" {
		return invalid("strategy is required")
	}
	if j.DataFile == "" {
		return invalid("data file is required")
	}
	if j.WalkForward != nil && j.Optimize == nil {
		return invalid("walk_forward requires an optimize section")
	}
	if j.Optimize != nil {
		if err := backtest.ValidateGrid(j.Optimize.Grid); err != nil {
			return err
		}
		if _, ok := (backtest.PerformanceMetrics{}).Value(j.Optimize.Metric); !ok {
			return invalid(fmt.Sprintf("unknown metric %q", j.Optimize.Metric))
		}
	}
	if j.Sizing != "" {
		if _, err := backtest.ParseSizingRule(j.Sizing); err != nil {
			return err
		}
	}
	return nil
}

// SizingRule parses the job's sizing rule.
func (j *Job) SizingRule() (backtest.SizingRule, error) {
	if j.Sizing == "" {
		return backtest.FixedSize(1), nil
	}
	return backtest.ParseSizingRule(j.Sizing)
}
