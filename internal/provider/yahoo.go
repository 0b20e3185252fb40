package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/guregu/null/v6"

	"patternscope/internal/ratelimit"
	"patternscope/pkg/model"
)

const yahooBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// YahooOptions configures the Yahoo Finance provider
type YahooOptions struct {
	BaseURL   string
	RateLimit int // requests per minute
	Timeout   time.Duration
	Adjusted  bool // scale prices by adjclose/close
}

// YahooProvider implements the Provider interface for Yahoo Finance (unofficial API)
type YahooProvider struct {
	baseURL   string
	client    *http.Client
	limiter   *ratelimit.Limiter
	rateLimit int
	adjusted  bool
}

// NewYahooProvider creates a new Yahoo Finance provider
func NewYahooProvider(opts YahooOptions) *YahooProvider {
	if opts.BaseURL == "" {
		opts.BaseURL = yahooBaseURL
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 30 // Conservative rate limit
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &YahooProvider{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		client:    &http.Client{Timeout: opts.Timeout},
		limiter:   ratelimit.NewLimiter("yahoo", opts.RateLimit),
		rateLimit: opts.RateLimit,
		adjusted:  opts.Adjusted,
	}
}

// Name returns the provider name
func (p *YahooProvider) Name() string {
	return "yahoo"
}

// IsAvailable always returns true (no API key needed)
func (p *YahooProvider) IsAvailable() bool {
	return true
}

// RateLimit returns the rate limit per minute
func (p *YahooProvider) RateLimit() int {
	return p.rateLimit
}

// yahooResponse represents the Yahoo Finance chart response. Quote arrays
// are decoded as nullable columns so absent columns and null cells can be
// told apart.
type yahooResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol string `json:"symbol"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote    []map[string][]*float64 `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

var yahooColumns = map[string]model.Column{
	"open":   model.ColumnOpen,
	"high":   model.ColumnHigh,
	"low":    model.ColumnLow,
	"close":  model.ColumnClose,
	"volume": model.ColumnVolume,
}

// GetSeries fetches bars for the query's range and interval
func (p *YahooProvider) GetSeries(ctx context.Context, q model.Query) (*model.Series, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("range", q.Range)
	params.Set("interval", q.Interval)
	params.Set("includePrePost", "false")
	if p.adjusted {
		params.Set("events", "div,splits")
	}
	reqURL := fmt.Sprintf("%s/%s?%s", p.baseURL, url.PathEscape(q.Symbol), params.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		p.limiter.SignalRateLimited()
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("rate limited"), Retryable: true}
	}

	// unknown symbols come back as 404 with a chart error body
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("status %d", resp.StatusCode), Retryable: resp.StatusCode >= 500}
	}

	p.limiter.ResetBackoff()

	var data yahooResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("decoding response: %w", err)}
	}

	if data.Chart.Error != nil {
		if data.Chart.Error.Code == "Not Found" {
			return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("%w for %s", ErrNoData, q.Symbol)}
		}
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("%s", data.Chart.Error.Description)}
	}

	if len(data.Chart.Result) == 0 || len(data.Chart.Result[0].Timestamp) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("%w for %s", ErrNoData, q.Symbol)}
	}

	result := data.Chart.Result[0]
	quote := map[string][]*float64{}
	if len(result.Indicators.Quote) > 0 {
		quote = result.Indicators.Quote[0]
	}
	var adj []*float64
	if p.adjusted && len(result.Indicators.AdjClose) > 0 {
		adj = result.Indicators.AdjClose[0].AdjClose
	}

	series := &model.Series{
		Symbol:   q.Symbol,
		Range:    q.Range,
		Interval: q.Interval,
	}
	for _, key := range []string{"open", "high", "low", "close", "volume"} {
		if _, ok := quote[key]; ok {
			series.Columns = append(series.Columns, yahooColumns[key])
		}
	}

	bars := make([]model.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		bar := model.Bar{
			Time:  time.Unix(ts, 0).UTC(),
			Open:  cell(quote["open"], i),
			High:  cell(quote["high"], i),
			Low:   cell(quote["low"], i),
			Close: cell(quote["close"], i),
		}
		if v := cell(quote["volume"], i); !math.IsNaN(v) && v >= 0 {
			bar.Volume = null.IntFrom(int64(v))
		}
		if a := cell(adj, i); !math.IsNaN(a) && !math.IsNaN(bar.Close) && bar.Close != 0 {
			f := a / bar.Close
			bar.Open *= f
			bar.High *= f
			bar.Low *= f
			bar.Close = a
		}
		bars = append(bars, bar)
	}
	series.Bars = dedupe(bars)

	return series, nil
}

// cell returns column[i] or NaN when the column, the row or the value is missing
func cell(column []*float64, i int) float64 {
	if i >= len(column) || column[i] == nil {
		return math.NaN()
	}
	return *column[i]
}

// dedupe sorts bars by time and keeps the last bar for each timestamp
func dedupe(bars []model.Bar) []model.Bar {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Time.Before(bars[j].Time)
	})
	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Time.Equal(b.Time) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}
