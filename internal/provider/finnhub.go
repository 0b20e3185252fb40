package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/guregu/null/v6"

	"patternscope/internal/ratelimit"
	"patternscope/pkg/model"
)

const finnhubBaseURL = "https://finnhub.io/api/v1"

// finnhubResolutions maps query intervals to candle resolutions
var finnhubResolutions = map[string]string{
	"1m": "1", "5m": "5", "15m": "15", "30m": "30", "60m": "60", "1h": "60",
	"1d": "D", "1wk": "W", "1mo": "M",
}

// FinnhubProvider implements the Provider interface for Finnhub API
type FinnhubProvider struct {
	apiKey    string
	baseURL   string
	client    *http.Client
	limiter   *ratelimit.Limiter
	rateLimit int
	now       func() time.Time
}

// NewFinnhubProvider creates a new Finnhub provider
func NewFinnhubProvider(apiKey string, rateLimitPerMin int) *FinnhubProvider {
	return &FinnhubProvider{
		apiKey:    apiKey,
		baseURL:   finnhubBaseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   ratelimit.NewLimiter("finnhub", rateLimitPerMin),
		rateLimit: rateLimitPerMin,
		now:       time.Now,
	}
}

// WithBaseURL points the provider at another endpoint
func (p *FinnhubProvider) WithBaseURL(u string) *FinnhubProvider {
	p.baseURL = u
	return p
}

// Name returns the provider name
func (p *FinnhubProvider) Name() string {
	return "finnhub"
}

// IsAvailable checks if the provider has an API key
func (p *FinnhubProvider) IsAvailable() bool {
	return p.apiKey != ""
}

// RateLimit returns the rate limit per minute
func (p *FinnhubProvider) RateLimit() int {
	return p.rateLimit
}

// finnhubCandle represents the Finnhub candle response
type finnhubCandle struct {
	C []float64 `json:"c"` // Close prices
	H []float64 `json:"h"` // High prices
	L []float64 `json:"l"` // Low prices
	O []float64 `json:"o"` // Open prices
	S string    `json:"s"` // Status
	T []int64   `json:"t"` // Timestamps
	V []float64 `json:"v"` // Volumes
}

// GetSeries fetches candles from the start of the range until now
func (p *FinnhubProvider) GetSeries(ctx context.Context, q model.Query) (*model.Series, error) {
	resolution, ok := finnhubResolutions[q.Interval]
	if !ok {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("unsupported interval %q", q.Interval)}
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	now := p.now()
	from, ok := RangeStart(now, q.Range)
	if !ok {
		from = time.Unix(0, 0)
	}

	params := url.Values{}
	params.Set("symbol", q.Symbol)
	params.Set("resolution", resolution)
	params.Set("from", strconv.FormatInt(from.Unix(), 10))
	params.Set("to", strconv.FormatInt(now.Unix(), 10))
	params.Set("token", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/stock/candle?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		p.limiter.SignalRateLimited()
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("rate limited"), Retryable: true}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("status %d", resp.StatusCode), Retryable: resp.StatusCode >= 500}
	}

	p.limiter.ResetBackoff()

	var data finnhubCandle
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("decoding response: %w", err)}
	}

	if data.S == "no_data" || len(data.T) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: ErrNoData}
	}

	bars := make([]model.Bar, 0, len(data.T))
	for i, ts := range data.T {
		bar := model.Bar{
			Time:  time.Unix(ts, 0).UTC(),
			Open:  at(data.O, i),
			High:  at(data.H, i),
			Low:   at(data.L, i),
			Close: at(data.C, i),
		}
		if i < len(data.V) {
			bar.Volume = null.IntFrom(int64(data.V[i]))
		}
		bars = append(bars, bar)
	}

	columns := append([]model.Column(nil), model.PriceColumns...)
	if len(data.V) > 0 {
		columns = append(columns, model.ColumnVolume)
	}

	return &model.Series{
		Symbol:   q.Symbol,
		Range:    q.Range,
		Interval: q.Interval,
		Columns:  columns,
		Bars:     dedupe(bars),
	}, nil
}

// at returns xs[i], or NaN when the array is short
func at(xs []float64, i int) float64 {
	if i < len(xs) {
		return xs[i]
	}
	return math.NaN()
}
