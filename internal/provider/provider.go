package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"patternscope/internal/metrics"
	"patternscope/pkg/model"
)

// ErrNoData is returned when a provider knows nothing about a symbol
var ErrNoData = errors.New("no data available")

// Provider defines the interface for market data providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// GetSeries fetches the bars for a symbol over the query's range and interval
	GetSeries(ctx context.Context, q model.Query) (*model.Series, error)

	// IsAvailable checks if the provider is available (has valid API key)
	IsAvailable() bool

	// RateLimit returns the rate limit per minute
	RateLimit() int
}

// ProviderError represents a provider-specific error
type ProviderError struct {
	Provider  string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// FallbackProvider tries multiple providers in order
type FallbackProvider struct {
	providers []Provider
	metrics   *metrics.Metrics
}

// NewFallbackProvider creates a new fallback provider
func NewFallbackProvider(providers ...Provider) *FallbackProvider {
	// Filter to only available providers
	available := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p.IsAvailable() {
			available = append(available, p)
		}
	}
	return &FallbackProvider{providers: available}
}

// SetMetrics records every underlying fetch
func (f *FallbackProvider) SetMetrics(m *metrics.Metrics) {
	f.metrics = m
}

// Name returns the combined provider name
func (f *FallbackProvider) Name() string {
	return "fallback"
}

// GetSeries tries each provider in order until one succeeds. When every
// provider fails and one of them reported an unknown symbol, that error
// wins over later transport or auth failures.
func (f *FallbackProvider) GetSeries(ctx context.Context, q model.Query) (*model.Series, error) {
	if len(f.providers) == 0 {
		return nil, &ProviderError{Provider: f.Name(), Err: errors.New("no providers available")}
	}

	var lastErr, noData error
	for _, p := range f.providers {
		start := time.Now()
		series, err := p.GetSeries(ctx, q)
		f.metrics.ObserveFetch(p.Name(), err, time.Since(start))
		if err == nil {
			return series, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
		if noData == nil && errors.Is(err, ErrNoData) {
			noData = err
		}
		slog.DebugContext(ctx, "provider failed, trying next",
			slog.String("provider", p.Name()),
			slog.String("symbol", q.Symbol),
			slog.Any("error", err))
	}
	if noData != nil {
		return nil, noData
	}
	return nil, lastErr
}

// IsAvailable returns true if any provider is available
func (f *FallbackProvider) IsAvailable() bool {
	return len(f.providers) > 0
}

// RateLimit returns the highest rate limit among providers
func (f *FallbackProvider) RateLimit() int {
	maxRate := 0
	for _, p := range f.providers {
		if p.RateLimit() > maxRate {
			maxRate = p.RateLimit()
		}
	}
	return maxRate
}

// Providers returns the list of underlying providers
func (f *FallbackProvider) Providers() []Provider {
	return f.providers
}
