package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"patternscope/internal/indicator"
	"patternscope/internal/metrics"
	"patternscope/internal/pattern"
	"patternscope/internal/provider"
	"patternscope/pkg/model"
)

// Options controls which history is swept
type Options struct {
	Range    string
	Interval string
	Window   int
	Stride   int
}

// DefaultOptions sweeps ten years of weekly bars with 50-bar windows
func DefaultOptions() Options {
	return Options{
		Range:    "10y",
		Interval: "1wk",
		Window:   model.WindowSize,
		Stride:   1,
	}
}

// Summary reports one generation run
type Summary struct {
	Symbols  int               `json:"symbols"`
	Samples  int               `json:"samples"`
	Counts   map[string]int    `json:"counts"`
	Failed   map[string]string `json:"failed,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// ProgressCallback is called after each symbol
type ProgressCallback func(symbol string, done, total int)

// Generator fetches history and writes labelled windows to a sink
type Generator struct {
	provider     provider.Provider
	engine       *indicator.Engine
	labeler      *pattern.Labeler
	sink         Sink
	opts         Options
	metrics      *metrics.Metrics
	progressFunc ProgressCallback
}

// NewGenerator creates a generator
func NewGenerator(p provider.Provider, engine *indicator.Engine, labeler *pattern.Labeler, sink Sink, opts Options) *Generator {
	def := DefaultOptions()
	if opts.Range == "" {
		opts.Range = def.Range
	}
	if opts.Interval == "" {
		opts.Interval = def.Interval
	}
	if opts.Window == 0 {
		opts.Window = def.Window
	}
	if opts.Stride == 0 {
		opts.Stride = def.Stride
	}
	return &Generator{
		provider: p,
		engine:   engine,
		labeler:  labeler,
		sink:     sink,
		opts:     opts,
	}
}

// SetMetrics counts written samples per label
func (g *Generator) SetMetrics(m *metrics.Metrics) {
	g.metrics = m
}

// SetProgressCallback sets the progress callback function
func (g *Generator) SetProgressCallback(fn ProgressCallback) {
	g.progressFunc = fn
}

// Run processes symbols one after another. A symbol that cannot be fetched
// or is too short is recorded in Summary.Failed and skipped; a sink failure
// or cancellation aborts the run.
func (g *Generator) Run(ctx context.Context, symbols []string) (*Summary, error) {
	start := time.Now()
	summary := &Summary{
		Counts: make(map[string]int),
		Failed: make(map[string]string),
	}

	for i, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		samples, err := g.symbolSamples(ctx, sym)
		if err != nil {
			slog.WarnContext(ctx, "skipping symbol", "symbol", sym, "error", err)
			summary.Failed[sym] = err.Error()
		} else {
			if err := g.sink.Write(ctx, samples); err != nil {
				return summary, fmt.Errorf("writing %s: %w", sym, err)
			}
			summary.Symbols++
			summary.Samples += len(samples)
			for label, n := range Counts(samples) {
				summary.Counts[label] += n
				g.metrics.AddSamples(label, n)
			}
			slog.InfoContext(ctx, "symbol labelled", "symbol", sym, "samples", len(samples))
		}

		if g.progressFunc != nil {
			g.progressFunc(sym, i+1, len(symbols))
		}
	}

	summary.Duration = time.Since(start)
	return summary, nil
}

func (g *Generator) symbolSamples(ctx context.Context, symbol string) ([]Sample, error) {
	q, err := model.Query{Symbol: symbol, Range: g.opts.Range, Interval: g.opts.Interval}.Normalize()
	if err != nil {
		return nil, err
	}
	series, err := g.provider.GetSeries(ctx, q)
	if err != nil {
		return nil, err
	}
	clean, err := g.engine.Prepare(series, g.opts.Window)
	if err != nil {
		return nil, err
	}
	return Sweep(clean, g.labeler, g.opts.Window, g.opts.Stride)
}
