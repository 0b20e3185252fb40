package scanner

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"patternscope/internal/analyzer"
	"patternscope/internal/metrics"
	"patternscope/internal/pattern"
)

// ProgressCallback is called with progress updates
type ProgressCallback func(scanned, total int)

// Analyzer is the part of the analysis service a scan needs
type Analyzer interface {
	Label(ctx context.Context, symbol string) (*analyzer.LabelResult, error)
	Detect(ctx context.Context, symbol, modelName string) (*analyzer.Detection, error)
}

// Result is the outcome for one symbol
type Result struct {
	Symbol    string                `json:"symbol"`
	Label     *analyzer.LabelResult `json:"label,omitempty"`
	Detection *analyzer.Detection   `json:"detection,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// Matched reports whether the labeler found a pattern
func (r Result) Matched() bool {
	return r.Label != nil && r.Label.Label != pattern.NoPattern
}

// Summary aggregates a scan
type Summary struct {
	TotalScanned  int           `json:"total_scanned"`
	MatchingCount int           `json:"matching_count"`
	FailedCount   int           `json:"failed_count"`
	Results       []Result      `json:"results"`
	ScanTime      time.Duration `json:"scan_time"`
}

// Matches returns the results with a pattern, in input order
func (s *Summary) Matches() []Result {
	var out []Result
	for _, r := range s.Results {
		if r.Matched() {
			out = append(out, r)
		}
	}
	return out
}

// Scanner performs parallel pattern scanning
type Scanner struct {
	analyzer     Analyzer
	workers      int
	timeout      time.Duration
	model        string
	metrics      *metrics.Metrics
	progressFunc ProgressCallback
}

// NewScanner creates a new scanner
func NewScanner(a Analyzer, workers int, timeout time.Duration) *Scanner {
	if workers < 1 {
		workers = 1
	}
	return &Scanner{
		analyzer: a,
		workers:  workers,
		timeout:  timeout,
	}
}

// SetModel enables model detection for every symbol. Empty disables it.
func (s *Scanner) SetModel(name string) {
	s.model = name
}

// SetMetrics records per-symbol outcomes
func (s *Scanner) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetProgressCallback sets the progress callback function
func (s *Scanner) SetProgressCallback(fn ProgressCallback) {
	s.progressFunc = fn
}

// Scan labels every symbol. A failing symbol is reported in its result and
// does not stop the scan. Results keep the order of symbols. When the scan
// timeout expires the partial summary is returned with the context error.
func (s *Scanner) Scan(ctx context.Context, symbols []string) (*Summary, error) {
	startTime := time.Now()

	if len(symbols) == 0 {
		return &Summary{Results: []Result{}, ScanTime: time.Since(startTime)}, nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	jobChan := make(chan int, len(symbols))
	for i := range symbols {
		jobChan <- i
	}
	close(jobChan)

	results := make([]Result, len(symbols))
	var scannedCount int64

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobChan {
				if ctx.Err() != nil {
					results[idx] = Result{Symbol: symbols[idx], Error: ctx.Err().Error()}
					continue
				}
				results[idx] = s.scanOne(ctx, symbols[idx])

				count := atomic.AddInt64(&scannedCount, 1)
				if s.progressFunc != nil {
					s.progressFunc(int(count), len(symbols))
				}
			}
		}()
	}
	wg.Wait()

	summary := &Summary{
		TotalScanned: len(symbols),
		Results:      results,
	}
	for _, r := range results {
		if r.Error != "" {
			summary.FailedCount++
		} else if r.Matched() {
			summary.MatchingCount++
		}
	}
	summary.ScanTime = time.Since(startTime)
	return summary, ctx.Err()
}

func (s *Scanner) scanOne(ctx context.Context, symbol string) Result {
	res := Result{Symbol: symbol}

	label, err := s.analyzer.Label(ctx, symbol)
	if err == nil && s.model != "" {
		var d *analyzer.Detection
		d, err = s.analyzer.Detect(ctx, symbol, s.model)
		res.Detection = d
	}
	s.metrics.ObserveScan(err)
	if err != nil {
		slog.DebugContext(ctx, "scan failed", "symbol", symbol, "error", err)
		res.Error = err.Error()
		return res
	}
	res.Label = label
	return res
}
