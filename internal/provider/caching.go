package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/guregu/null/v6"

	"patternscope/internal/metrics"
	"patternscope/pkg/model"
)

// Store is a byte cache with per-entry expiry
type Store interface {
	// Get returns the value and whether it was present
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachingProvider wraps a Provider with a TTL cache keyed by query.
// Scans and dataset runs request the same series repeatedly.
type CachingProvider struct {
	inner   Provider
	store   Store
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewCachingProvider creates a caching wrapper
func NewCachingProvider(inner Provider, store Store, ttl time.Duration, m *metrics.Metrics) *CachingProvider {
	return &CachingProvider{
		inner:   inner,
		store:   store,
		ttl:     ttl,
		metrics: m,
	}
}

func (p *CachingProvider) Name() string      { return p.inner.Name() }
func (p *CachingProvider) IsAvailable() bool { return p.inner.IsAvailable() }
func (p *CachingProvider) RateLimit() int    { return p.inner.RateLimit() }

// GetSeries serves from the store when possible. Store failures fall
// through to the inner provider.
func (p *CachingProvider) GetSeries(ctx context.Context, q model.Query) (*model.Series, error) {
	key := "series:" + q.Key()

	data, ok, err := p.store.Get(ctx, key)
	switch {
	case err != nil:
		p.metrics.CacheResult("error")
		slog.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.Any("error", err))
	case ok:
		if s, err := decodeSeries(data); err == nil {
			p.metrics.CacheResult("hit")
			return s, nil
		}
		p.metrics.CacheResult("error")
	default:
		p.metrics.CacheResult("miss")
	}

	s, err := p.inner.GetSeries(ctx, q)
	if err != nil {
		return nil, err
	}

	if data, err := encodeSeries(s); err == nil {
		if err := p.store.Set(ctx, key, data, p.ttl); err != nil {
			slog.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return s, nil
}

// cachedBar stores missing prices as null since JSON has no NaN
type cachedBar struct {
	T int64      `json:"t"`
	O null.Float `json:"o"`
	H null.Float `json:"h"`
	L null.Float `json:"l"`
	C null.Float `json:"c"`
	V null.Int   `json:"v"`
}

type cachedSeries struct {
	Symbol   string         `json:"symbol"`
	Range    string         `json:"range"`
	Interval string         `json:"interval"`
	Columns  []model.Column `json:"columns"`
	Bars     []cachedBar    `json:"bars"`
}

func price(v float64) null.Float {
	return null.NewFloat(v, !math.IsNaN(v))
}

func unprice(v null.Float) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func encodeSeries(s *model.Series) ([]byte, error) {
	cs := cachedSeries{
		Symbol:   s.Symbol,
		Range:    s.Range,
		Interval: s.Interval,
		Columns:  s.Columns,
		Bars:     make([]cachedBar, len(s.Bars)),
	}
	for i, b := range s.Bars {
		cs.Bars[i] = cachedBar{
			T: b.Time.Unix(),
			O: price(b.Open),
			H: price(b.High),
			L: price(b.Low),
			C: price(b.Close),
			V: b.Volume,
		}
	}
	return json.Marshal(cs)
}

func decodeSeries(data []byte) (*model.Series, error) {
	var cs cachedSeries
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, err
	}
	s := &model.Series{
		Symbol:   cs.Symbol,
		Range:    cs.Range,
		Interval: cs.Interval,
		Columns:  cs.Columns,
		Bars:     make([]model.Bar, len(cs.Bars)),
	}
	for i, b := range cs.Bars {
		s.Bars[i] = model.Bar{
			Time:   time.Unix(b.T, 0).UTC(),
			Open:   unprice(b.O),
			High:   unprice(b.H),
			Low:    unprice(b.L),
			Close:  unprice(b.C),
			Volume: b.V,
		}
	}
	return s, nil
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns a live entry and evicts an expired one
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores a value. A non-positive ttl never expires.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

// Len returns the number of stored entries, expired or not
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
