package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"patternscope/internal/analyzer"
	"patternscope/internal/config"
	"patternscope/internal/indicator"
	"patternscope/internal/inference"
	"patternscope/internal/metrics"
	"patternscope/internal/pattern"
	"patternscope/internal/provider"
	"patternscope/pkg/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fixedProvider returns the same bars for every symbol
type fixedProvider struct {
	bars int
	err  error
}

func (p fixedProvider) Name() string      { return "fixed" }
func (p fixedProvider) IsAvailable() bool { return true }
func (p fixedProvider) RateLimit() int    { return 0 }

func (p fixedProvider) GetSeries(_ context.Context, q model.Query) (*model.Series, error) {
	if p.err != nil {
		return nil, p.err
	}
	day0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, p.bars)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = model.Bar{Time: day0.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c}
	}
	return &model.Series{Symbol: q.Symbol, Range: q.Range, Interval: q.Interval, Columns: model.PriceColumns, Bars: bars}, nil
}

func newTestServer(t *testing.T, p provider.Provider, secret string) *Server {
	t.Helper()
	engine, err := indicator.NewEngine(indicator.DefaultOptions())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	registry, err := inference.NewRegistry(inference.DefaultSpecs(), pattern.DefaultThresholds())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	m := metrics.New()
	svc := analyzer.NewService(analyzer.Config{
		Provider: p,
		Engine:   engine,
		Labeler:  pattern.NewLabeler(pattern.Geometric, pattern.DefaultThresholds()),
		Models:   registry,
		Metrics:  m,
	})

	cfg := config.DefaultConfig()
	cfg.Server.AuthSecret = secret
	cfg.Scanner.Workers = 2
	s := NewServer(cfg, svc, m)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func do(t *testing.T, s *Server, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[http.CanonicalHeaderKey(k)] = v
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, fixedProvider{bars: 60}, "")
	w := do(t, s, "GET", "/health", "", nil)

	if w.Code != http.StatusOK || w.Body.String() != `{"status":"ok"}` {
		t.Errorf("Expected ok, got %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("Expected a generated request ID")
	}

	w = do(t, s, "GET", "/health", "", http.Header{requestIDHeader: {"abc-123"}})
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Errorf("Expected request ID to be echoed, got %q", got)
	}
}

func TestStock(t *testing.T) {
	s := newTestServer(t, fixedProvider{bars: 60}, "")
	w := do(t, s, "GET", "/stock/aapl?range=1y&interval=1d", "", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d %s", w.Code, w.Body.String())
	}
	var rows []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(rows) != 60 {
		t.Fatalf("Expected 60 rows, got %d", len(rows))
	}
	if rows[0]["Date"] != "2024-01-01" || rows[0]["SMA_14"] != nil || rows[0]["Volume"] != nil {
		t.Errorf("Unexpected first row %v", rows[0])
	}
	if rows[59]["SMA_14"] != 152.5 {
		t.Errorf("Expected SMA_14 152.5, got %v", rows[59]["SMA_14"])
	}
}

func TestEndpoints(t *testing.T) {
	s := newTestServer(t, fixedProvider{bars: 60}, "")

	tests := []struct {
		path string
		want string
	}{
		{"/detect/AAPL", `"model":"head-shoulders"`},
		{"/detect_real/AAPL", `"model":"real"`},
		{"/label/AAPL", `"scheme":`},
		{"/analyze/AAPL", `"signal":"BUY"`},
		{"/signals/AAPL", `"signals":[`},
		{"/models", `"name":"multi"`},
		{"/universes", `"id":"dataset"`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := do(t, s, "GET", tt.path, "", nil)
			if w.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d %s", w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("Expected body to contain %s, got %s", tt.want, w.Body.String())
			}
		})
	}
}

func TestErrorStatus(t *testing.T) {
	upstream := &provider.ProviderError{Provider: "fixed", Err: errors.New("connection reset"), Retryable: true}
	noData := &provider.ProviderError{Provider: "fixed", Err: provider.ErrNoData}

	tests := []struct {
		name string
		p    fixedProvider
		path string
		want int
	}{
		{"short history", fixedProvider{bars: 20}, "/stock/AAPL", http.StatusBadRequest},
		{"unknown symbol", fixedProvider{err: noData}, "/stock/ZZZZ", http.StatusBadRequest},
		{"bad interval", fixedProvider{bars: 60}, "/stock/AAPL?interval=2wk", http.StatusBadRequest},
		{"unknown model", fixedProvider{bars: 60}, "/detect/AAPL?model=nope", http.StatusNotImplemented},
		{"upstream failure", fixedProvider{err: upstream}, "/label/AAPL", http.StatusBadGateway},
		{"trend needs ten bars", fixedProvider{bars: 9}, "/analyze/AAPL", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.p, "")
			w := do(t, s, "GET", tt.path, "", nil)
			if w.Code != tt.want {
				t.Fatalf("Expected %d, got %d %s", tt.want, w.Code, w.Body.String())
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["detail"] == "" {
				t.Errorf("Expected a detail message, got %s", w.Body.String())
			}
			if body["request_id"] != w.Header().Get(requestIDHeader) {
				t.Errorf("Expected request_id %q in body, got %q", w.Header().Get(requestIDHeader), body["request_id"])
			}
		})
	}
}

func TestAuth(t *testing.T) {
	const secret = "test-secret"
	s := newTestServer(t, fixedProvider{bars: 60}, secret)

	sign := func(method jwt.SigningMethod, key any) string {
		tok, err := jwt.NewWithClaims(method, jwt.MapClaims{
			"sub": "tester",
			"exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString(key)
		if err != nil {
			t.Fatalf("SignedString: %v", err)
		}
		return tok
	}

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"health is public", "/health", "", http.StatusOK},
		{"metrics is public", "/metrics", "", http.StatusOK},
		{"missing token", "/models", "", http.StatusUnauthorized},
		{"wrong scheme", "/models", "Token abc", http.StatusUnauthorized},
		{"wrong key", "/models", "Bearer " + sign(jwt.SigningMethodHS256, []byte("other")), http.StatusForbidden},
		{"valid token", "/models", "Bearer " + sign(jwt.SigningMethodHS256, []byte(secret)), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h http.Header
			if tt.header != "" {
				h = http.Header{"Authorization": {tt.header}}
			}
			w := do(t, s, "GET", tt.path, "", h)
			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, fixedProvider{bars: 60}, "")
	w := do(t, s, "OPTIONS", "/stock/AAPL", "", http.Header{
		"Origin":                        {"http://localhost:3000"},
		"Access-Control-Request-Method": {"GET"},
	})

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected wildcard origin, got %q", got)
	}
}

func TestScan(t *testing.T) {
	s := newTestServer(t, fixedProvider{bars: 60}, "")

	w := do(t, s, "POST", "/scan", `{"symbols":["aapl","msft"]}`, http.Header{"Content-Type": {"application/json"}})
	if w.Code != http.StatusAccepted || !strings.Contains(w.Body.String(), `"started"`) {
		t.Fatalf("Expected scan to start, got %d %s", w.Code, w.Body.String())
	}

	var state scanState
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w = do(t, s, "GET", "/scan/status", "", nil)
		if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if state.Status != "running" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if state.Status != "done" {
		t.Fatalf("Expected done, got %+v", state)
	}
	if state.Total != 2 || state.Summary == nil || state.Summary.TotalScanned != 2 {
		t.Errorf("Unexpected scan state %+v", state)
	}
	if state.Summary.Results[0].Symbol != "AAPL" || state.Summary.Results[1].Symbol != "MSFT" {
		t.Errorf("Expected results in request order, got %+v", state.Summary.Results)
	}
}

func TestScan_BadRequest(t *testing.T) {
	s := newTestServer(t, fixedProvider{bars: 60}, "")

	tests := []struct {
		name string
		body string
	}{
		{"unknown universe", `{"universe":"nasdaq"}`},
		{"malformed", `{"symbols":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, "POST", "/scan", tt.body, http.Header{"Content-Type": {"application/json"}})
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d %s", w.Code, w.Body.String())
			}
		})
	}

	w := do(t, s, "GET", "/scan/status", "", nil)
	if !strings.Contains(w.Body.String(), `"status":"idle"`) {
		t.Errorf("Expected idle scan state, got %s", w.Body.String())
	}
}
