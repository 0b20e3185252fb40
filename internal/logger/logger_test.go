package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestRequestID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	if id := RequestID(ctx); id != "" {
		t.Errorf("Expected empty request id, got %q", id)
	}

	ctx = WithRequestID(ctx, "req-123")
	if id := RequestID(ctx); id != "req-123" {
		t.Errorf("Expected 'req-123', got %q", id)
	}
}

func TestNew_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "patternscope", "info", "json")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.InfoContext(WithRequestID(context.Background(), "abc"), "fetched", slog.String("symbol", "AAPL"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("Decoding record: %v", err)
	}
	if rec["request_id"] != "abc" {
		t.Errorf("Expected request_id abc, got %v", rec["request_id"])
	}
	if rec["service"] != "patternscope" {
		t.Errorf("Expected service attribute, got %v", rec["service"])
	}
	if rec["symbol"] != "AAPL" {
		t.Errorf("Expected symbol attribute, got %v", rec["symbol"])
	}
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "patternscope", "warn", "text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered at warn level, got %q", buf.String())
	}
	l.Warn("kept")
	if buf.Len() == 0 {
		t.Error("Expected warn record")
	}
}

func TestNew_InvalidSettings(t *testing.T) {
	var buf bytes.Buffer
	if _, err := New(&buf, "x", "loud", "json"); err == nil {
		t.Error("Expected error for unknown level")
	}
	if _, err := New(&buf, "x", "info", "xml"); err == nil {
		t.Error("Expected error for unknown format")
	}
}
