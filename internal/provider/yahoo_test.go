package provider

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"patternscope/pkg/model"
)

const yahooChart = `{"chart":{"result":[{
	"meta":{"symbol":"AAPL"},
	"timestamp":[1704153600,1704240000,1704326400,1704326400],
	"indicators":{
		"quote":[{
			"open":[10,20,null,40],
			"high":[11,21,31,41],
			"low":[9,19,29,39],
			"close":[10.5,20.5,30.5,40.5],
			"volume":[100,null,300,400]
		}],
		"adjclose":[{"adjclose":[5.25,10.25,15.25,20.25]}]
	}
}],"error":null}}`

const yahooNoLow = `{"chart":{"result":[{
	"meta":{"symbol":"AAPL"},
	"timestamp":[1704153600,1704240000],
	"indicators":{"quote":[{"open":[10,20],"high":[11,21],"close":[10.5,20.5]}]}
}],"error":null}}`

const yahooNotFound = `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`

func yahooServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/AAPL" {
			t.Errorf("Expected path /AAPL, got %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("range") != "60d" || q.Get("interval") != "1d" {
			t.Errorf("Unexpected query %s", r.URL.RawQuery)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

var yahooQuery = model.Query{Symbol: "AAPL", Range: "60d", Interval: "1d"}

func TestYahoo_GetSeries(t *testing.T) {
	srv := yahooServer(t, http.StatusOK, yahooChart)
	defer srv.Close()

	p := NewYahooProvider(YahooOptions{BaseURL: srv.URL, RateLimit: 6000})
	s, err := p.GetSeries(context.Background(), yahooQuery)
	if err != nil {
		t.Fatalf("GetSeries: %v", err)
	}

	if len(s.Columns) != 5 {
		t.Errorf("Expected 5 columns, got %v", s.Columns)
	}
	if s.Len() != 3 {
		t.Fatalf("Expected 3 bars after merging the duplicate timestamp, got %d", s.Len())
	}
	if s.Bars[1].Volume.Valid {
		t.Errorf("Expected null volume on bar 1")
	}
	if s.Bars[2].Open != 40 || s.Bars[2].Volume.Int64 != 400 {
		t.Errorf("Expected the later duplicate to win, got %+v", s.Bars[2])
	}
	if !s.Bars[0].Time.Before(s.Bars[1].Time) {
		t.Errorf("Expected ascending bars")
	}
	if s.Bars[0].Close != 10.5 {
		t.Errorf("Expected unadjusted close 10.5, got %f", s.Bars[0].Close)
	}
}

func TestYahoo_NullPriceIsNaN(t *testing.T) {
	body := `{"chart":{"result":[{"timestamp":[1704153600],"indicators":{"quote":[{"open":[null],"high":[1],"low":[1],"close":[1],"volume":[1]}]}}]}}`
	srv := yahooServer(t, http.StatusOK, body)
	defer srv.Close()

	p := NewYahooProvider(YahooOptions{BaseURL: srv.URL, RateLimit: 6000})
	s, err := p.GetSeries(context.Background(), yahooQuery)
	if err != nil {
		t.Fatalf("GetSeries: %v", err)
	}
	if !math.IsNaN(s.Bars[0].Open) || s.Bars[0].Complete() {
		t.Errorf("Expected NaN open and an incomplete bar, got %+v", s.Bars[0])
	}
}

func TestYahoo_MissingColumn(t *testing.T) {
	srv := yahooServer(t, http.StatusOK, yahooNoLow)
	defer srv.Close()

	p := NewYahooProvider(YahooOptions{BaseURL: srv.URL, RateLimit: 6000})
	s, err := p.GetSeries(context.Background(), yahooQuery)
	if err != nil {
		t.Fatalf("GetSeries: %v", err)
	}
	if s.Has(model.ColumnLow) || s.Has(model.ColumnVolume) {
		t.Errorf("Expected Low and Volume to be absent, got %v", s.Columns)
	}
	if !s.Has(model.ColumnClose) {
		t.Errorf("Expected Close to be present")
	}
	if !math.IsNaN(s.Bars[0].Low) {
		t.Errorf("Expected NaN low, got %f", s.Bars[0].Low)
	}
}

func TestYahoo_Adjusted(t *testing.T) {
	srv := yahooServer(t, http.StatusOK, yahooChart)
	defer srv.Close()

	p := NewYahooProvider(YahooOptions{BaseURL: srv.URL, RateLimit: 6000, Adjusted: true})
	s, err := p.GetSeries(context.Background(), yahooQuery)
	if err != nil {
		t.Fatalf("GetSeries: %v", err)
	}
	b := s.Bars[0]
	if b.Close != 5.25 || math.Abs(b.Open-5) > 1e-9 || math.Abs(b.High-5.5) > 1e-9 {
		t.Errorf("Expected prices scaled by 0.5, got %+v", b)
	}
}

func TestYahoo_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		noData    bool
		retryable bool
	}{
		{"unknown symbol", http.StatusNotFound, yahooNotFound, true, false},
		{"empty result", http.StatusOK, `{"chart":{"result":[],"error":null}}`, true, false},
		{"rate limited", http.StatusTooManyRequests, ``, false, true},
		{"upstream down", http.StatusServiceUnavailable, ``, false, true},
		{"garbage", http.StatusOK, `not json`, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := yahooServer(t, tt.status, tt.body)
			defer srv.Close()

			p := NewYahooProvider(YahooOptions{BaseURL: srv.URL, RateLimit: 6000})
			_, err := p.GetSeries(context.Background(), yahooQuery)

			var pe *ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("Expected ProviderError, got %v", err)
			}
			if errors.Is(err, ErrNoData) != tt.noData {
				t.Errorf("ErrNoData: expected %v, got %v", tt.noData, err)
			}
			if pe.Retryable != tt.retryable {
				t.Errorf("Retryable: expected %v, got %v", tt.retryable, pe.Retryable)
			}
		})
	}
}

func TestYahoo_RateLimitBacksOff(t *testing.T) {
	srv := yahooServer(t, http.StatusTooManyRequests, ``)
	defer srv.Close()

	p := NewYahooProvider(YahooOptions{BaseURL: srv.URL, RateLimit: 6000})
	initial := p.limiter.GetBackoff()
	p.GetSeries(context.Background(), yahooQuery)
	if p.limiter.GetBackoff() <= initial {
		t.Error("Expected backoff to grow after a 429")
	}
}
