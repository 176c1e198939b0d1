package main

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/ducminhle1904/strategy-backtester/internal/backtest"
)

// progressReporter draws one bar per optimization. Walk-forward runs one
// optimization per window, so a new bar starts whenever progress restarts.
type progressReporter struct {
	w           io.Writer
	description string
	bar         *progressbar.ProgressBar
	last        int
}

func newProgressReporter(w io.Writer, description string) *progressReporter {
	return &progressReporter{w: w, description: description}
}

func (p *progressReporter) update(pr backtest.Progress) {
	if p.bar == nil || pr.Done() <= p.last {
		p.bar = newProgressBar(p.w, pr.Total, p.description)
	}
	p.last = pr.Done()
	_ = p.bar.Set(pr.Done())
}

func newProgressBar(w io.Writer, maxTicks int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription(description),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
