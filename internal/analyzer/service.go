package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"patternscope/internal/indicator"
	"patternscope/internal/inference"
	"patternscope/internal/metrics"
	"patternscope/internal/pattern"
	"patternscope/internal/provider"
	"patternscope/pkg/model"
)

// trendWindow is the moving average compared against the last close
const trendWindow = 10

// FetchError reports an upstream failure while loading a series
type FetchError struct {
	Symbol string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Config wires the service dependencies
type Config struct {
	Provider        provider.Provider
	Engine          *indicator.Engine
	Labeler         *pattern.Labeler
	Models          *inference.Registry
	Metrics         *metrics.Metrics
	DefaultRange    string
	DefaultInterval string
}

// Service runs fetch, indicator and pattern steps for one request. It keeps
// no per-request state and is safe for concurrent use.
type Service struct {
	provider        provider.Provider
	engine          *indicator.Engine
	labeler         *pattern.Labeler
	models          *inference.Registry
	metrics         *metrics.Metrics
	defaultRange    string
	defaultInterval string
}

// NewService creates an analysis service
func NewService(cfg Config) *Service {
	s := &Service{
		provider:        cfg.Provider,
		engine:          cfg.Engine,
		labeler:         cfg.Labeler,
		models:          cfg.Models,
		metrics:         cfg.Metrics,
		defaultRange:    cfg.DefaultRange,
		defaultInterval: cfg.DefaultInterval,
	}
	if s.defaultRange == "" {
		s.defaultRange = "6mo"
	}
	if s.defaultInterval == "" {
		s.defaultInterval = "1d"
	}
	return s
}

// Models lists the registered models
func (s *Service) Models() []inference.Info {
	if s.models == nil {
		return nil
	}
	return s.models.List()
}

// Query fills unset range and interval with the defaults and validates
func (s *Service) Query(symbol, rng, interval string) (model.Query, error) {
	q := model.Query{Symbol: symbol, Range: rng, Interval: interval}
	if q.Range == "" {
		q.Range = s.defaultRange
	}
	if q.Interval == "" {
		q.Interval = s.defaultInterval
	}
	return q.Normalize()
}

// fetch loads a series. An unknown symbol yields an empty series so the
// engine reports it as a client error.
func (s *Service) fetch(ctx context.Context, q model.Query) (*model.Series, error) {
	series, err := s.provider.GetSeries(ctx, q)
	if errors.Is(err, provider.ErrNoData) {
		slog.DebugContext(ctx, "no data for symbol", "symbol", q.Symbol, "range", q.Range)
		return &model.Series{Symbol: q.Symbol, Range: q.Range, Interval: q.Interval}, nil
	}
	if err != nil {
		return nil, &FetchError{Symbol: q.Symbol, Err: err}
	}
	return series, nil
}

// load fetches a symbol with the default query and keeps complete bars
func (s *Service) load(ctx context.Context, symbol string, minBars int) (*model.Series, error) {
	q, err := s.Query(symbol, "", "")
	if err != nil {
		return nil, err
	}
	series, err := s.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.engine.Prepare(series, minBars)
}

// Indicators fetches a series and derives every configured indicator
func (s *Service) Indicators(ctx context.Context, q model.Query) (*Report, error) {
	q, err := s.Query(q.Symbol, q.Range, q.Interval)
	if err != nil {
		return nil, err
	}
	series, err := s.fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := s.engine.Compute(series)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveCompute(len(rows), time.Since(start))

	return &Report{
		Symbol:   q.Symbol,
		Range:    q.Range,
		Interval: q.Interval,
		Columns:  series.Columns,
		Rows:     rows,
		opts:     s.engine.Options(),
	}, nil
}

// Detection is a model verdict over the trailing window of a symbol
type Detection struct {
	Symbol     string    `json:"symbol"`
	Model      string    `json:"model"`
	Pattern    string    `json:"pattern"`
	Confidence float64   `json:"confidence"`
	EntryPoint float64   `json:"entry_point"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
}

// Detect runs a registered model over the last 50 complete bars. The model
// is resolved before any data is fetched.
func (s *Service) Detect(ctx context.Context, symbol, modelName string) (*Detection, error) {
	if modelName == "" {
		modelName = inference.DefaultModel
	}
	if s.models == nil {
		return nil, fmt.Errorf("%w: no models loaded", inference.ErrModelUnavailable)
	}
	m, err := s.models.Get(modelName)
	if err != nil {
		return nil, err
	}

	series, err := s.load(ctx, symbol, model.WindowSize)
	if err != nil {
		return nil, err
	}
	w := series.Last(model.WindowSize)

	start := time.Now()
	d, err := m.Detect(ctx, w)
	s.metrics.ObserveInference(m.Name, err, time.Since(start))
	if err != nil {
		return nil, err
	}

	return &Detection{
		Symbol:     series.Symbol,
		Model:      d.Model,
		Pattern:    d.Pattern,
		Confidence: d.Confidence,
		EntryPoint: w.LastClose(),
		StartDate:  w.Start(),
		EndDate:    w.End(),
	}, nil
}

// LabelResult is the heuristic verdict over the trailing window of a symbol
type LabelResult struct {
	Symbol string `json:"symbol"`
	Scheme string `json:"scheme"`
	Class  int    `json:"class"`
	pattern.Result
	EntryPoint float64   `json:"entry_point"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
}

// Label runs the heuristic labeler over the last 50 complete bars
func (s *Service) Label(ctx context.Context, symbol string) (*LabelResult, error) {
	series, err := s.load(ctx, symbol, model.WindowSize)
	if err != nil {
		return nil, err
	}
	return s.LabelWindow(series.Last(model.WindowSize)), nil
}

// LabelWindow labels an already loaded window
func (s *Service) LabelWindow(w model.Window) *LabelResult {
	res := s.labeler.Evaluate(w.Closes())
	return &LabelResult{
		Symbol:     w.Symbol,
		Scheme:     string(s.labeler.Scheme()),
		Class:      s.labeler.Scheme().ClassOf(res.Label),
		Result:     res,
		EntryPoint: w.LastClose(),
		StartDate:  w.Start(),
		EndDate:    w.End(),
	}
}
