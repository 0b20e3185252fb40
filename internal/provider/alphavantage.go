package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"

	"patternscope/internal/ratelimit"
	"patternscope/pkg/model"
)

const alphaVantageBaseURL = "https://www.alphavantage.co/query"

// alphaVantageFunctions maps supported intervals to the API function and the
// key of its time series object
var alphaVantageFunctions = map[string][2]string{
	"1d":  {"TIME_SERIES_DAILY", "Time Series (Daily)"},
	"1wk": {"TIME_SERIES_WEEKLY", "Weekly Time Series"},
	"1mo": {"TIME_SERIES_MONTHLY", "Monthly Time Series"},
}

// AlphaVantageProvider implements the Provider interface for Alpha Vantage API
type AlphaVantageProvider struct {
	apiKey    string
	baseURL   string
	client    *http.Client
	limiter   *ratelimit.Limiter
	rateLimit int
}

// NewAlphaVantageProvider creates a new Alpha Vantage provider
func NewAlphaVantageProvider(apiKey string, rateLimitPerMin int) *AlphaVantageProvider {
	return &AlphaVantageProvider{
		apiKey:    apiKey,
		baseURL:   alphaVantageBaseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   ratelimit.NewLimiter("alphavantage", rateLimitPerMin),
		rateLimit: rateLimitPerMin,
	}
}

// WithBaseURL points the provider at another endpoint
func (p *AlphaVantageProvider) WithBaseURL(u string) *AlphaVantageProvider {
	p.baseURL = u
	return p
}

// Name returns the provider name
func (p *AlphaVantageProvider) Name() string {
	return "alphavantage"
}

// IsAvailable checks if the provider has an API key
func (p *AlphaVantageProvider) IsAvailable() bool {
	return p.apiKey != ""
}

// RateLimit returns the rate limit per minute
func (p *AlphaVantageProvider) RateLimit() int {
	return p.rateLimit
}

// GetSeries fetches daily, weekly or monthly bars trimmed to the query range
func (p *AlphaVantageProvider) GetSeries(ctx context.Context, q model.Query) (*model.Series, error) {
	fn, ok := alphaVantageFunctions[q.Interval]
	if !ok {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("interval %s not supported", q.Interval), Retryable: true}
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("function", fn[0])
	params.Set("symbol", q.Symbol)
	params.Set("apikey", p.apiKey)
	if q.Interval == "1d" {
		params.Set("outputsize", "full")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"?"+params.Encode(), nil)
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
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("status %d", resp.StatusCode), Retryable: false}
	}

	var data map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("decoding response: %w", err)}
	}

	// Throttling is reported in a 200 body under Note or Information
	for _, key := range []string{"Note", "Information"} {
		if msg, ok := data[key]; ok {
			p.limiter.SignalRateLimited()
			return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("rate limited: %s", unquote(msg)), Retryable: true}
		}
	}
	if _, ok := data["Error Message"]; ok {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("%w for %s", ErrNoData, q.Symbol)}
	}

	p.limiter.ResetBackoff()

	var timeSeries map[string]map[string]string
	if raw, ok := data[fn[1]]; ok {
		if err := json.Unmarshal(raw, &timeSeries); err != nil {
			return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("decoding time series: %w", err)}
		}
	}
	if len(timeSeries) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("%w for %s", ErrNoData, q.Symbol)}
	}

	bars := make([]model.Bar, 0, len(timeSeries))
	for dateStr, values := range timeSeries {
		t, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		bar := model.Bar{
			Time:  t,
			Open:  parsePrice(values["1. open"]),
			High:  parsePrice(values["2. high"]),
			Low:   parsePrice(values["3. low"]),
			Close: parsePrice(values["4. close"]),
		}
		if v, err := strconv.ParseInt(values["5. volume"], 10, 64); err == nil && v >= 0 {
			bar.Volume = null.IntFrom(v)
		}
		bars = append(bars, bar)
	}
	bars = dedupe(bars)

	if len(bars) > 0 {
		if start, ok := RangeStart(bars[len(bars)-1].Time, q.Range); ok {
			i := 0
			for i < len(bars) && bars[i].Time.Before(start) {
				i++
			}
			bars = bars[i:]
		}
	}

	return &model.Series{
		Symbol:   q.Symbol,
		Range:    q.Range,
		Interval: q.Interval,
		Columns:  []model.Column{model.ColumnOpen, model.ColumnHigh, model.ColumnLow, model.ColumnClose, model.ColumnVolume},
		Bars:     bars,
	}, nil
}

func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func unquote(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}

var rangeRe = regexp.MustCompile(`^([1-9][0-9]*)(d|mo|y)$`)

// RangeStart returns the first instant covered by a range such as 60d, 6mo
// or 10y counted back from end. ok is false for max.
func RangeStart(end time.Time, r string) (time.Time, bool) {
	r = strings.ToLower(r)
	if r == "ytd" {
		return time.Date(end.Year(), 1, 1, 0, 0, 0, 0, end.Location()), true
	}
	m := rangeRe.FindStringSubmatch(r)
	if m == nil {
		return time.Time{}, false
	}
	n, _ := strconv.Atoi(m[1])
	switch m[2] {
	case "d":
		return end.AddDate(0, 0, -n), true
	case "mo":
		return end.AddDate(0, -n, 0), true
	default:
		return end.AddDate(-n, 0, 0), true
	}
}
