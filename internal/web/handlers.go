package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"patternscope/internal/analyzer"
	"patternscope/internal/indicator"
	"patternscope/internal/inference"
	"patternscope/internal/logger"
	"patternscope/internal/provider"
	"patternscope/internal/scanner"
	"patternscope/pkg/model"
)

// errorBody is the JSON body of every failed request
func errorBody(c *gin.Context, msg string) gin.H {
	return gin.H{"detail": msg, "request_id": logger.RequestID(c.Request.Context())}
}

// statusFor maps an error to the HTTP status reported to the client
func statusFor(err error) int {
	var invalid *model.InvalidQueryError
	var inferErr *inference.InferenceError
	var fetchErr *analyzer.FetchError
	var provErr *provider.ProviderError

	switch {
	case errors.As(err, &invalid), indicator.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, inference.ErrModelUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &inferErr):
		return http.StatusInternalServerError
	case errors.As(err, &fetchErr), errors.As(err, &provErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail reports err once with the mapped status
func fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, errorBody(c, err.Error()))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleStock returns the indicator table as an array of records
func (s *Server) handleStock(c *gin.Context) {
	q := model.Query{
		Symbol:   c.Param("ticker"),
		Range:    c.Query("range"),
		Interval: c.Query("interval"),
	}
	report, err := s.service.Indicators(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report.Records())
}

func (s *Server) handleDetect(c *gin.Context) {
	s.detect(c, c.DefaultQuery("model", inference.DefaultModel))
}

func (s *Server) handleDetectReal(c *gin.Context) {
	s.detect(c, inference.RealModel)
}

func (s *Server) detect(c *gin.Context, modelName string) {
	d, err := s.service.Detect(c.Request.Context(), c.Param("ticker"), modelName)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) handleLabel(c *gin.Context) {
	res, err := s.service.Label(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleAnalyze(c *gin.Context) {
	res, err := s.service.Trend(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleSignals(c *gin.Context) {
	q := model.Query{
		Symbol:   c.Param("ticker"),
		Range:    c.Query("range"),
		Interval: c.Query("interval"),
	}
	res, err := s.service.Signals(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": s.service.Models()})
}

// UniverseInfo contains universe details
type UniverseInfo struct {
	ID      string   `json:"id"`
	Count   int      `json:"count"`
	Symbols []string `json:"symbols"`
}

func (s *Server) handleUniverses(c *gin.Context) {
	ids := []scanner.Universe{scanner.UniverseDataset, scanner.UniverseMega, scanner.UniverseTest}
	infos := make([]UniverseInfo, 0, len(ids))
	for _, id := range ids {
		syms, err := scanner.GetUniverse(id)
		if err != nil {
			continue
		}
		infos = append(infos, UniverseInfo{ID: string(id), Count: len(syms), Symbols: syms})
	}
	c.JSON(http.StatusOK, gin.H{"universes": infos})
}

// ScanRequest selects the symbols of an async scan. Symbols win over Universe.
type ScanRequest struct {
	Symbols  []string `json:"symbols,omitempty"`
	Universe string   `json:"universe,omitempty"`
	Model    string   `json:"model,omitempty"`
}

// scanState tracks the single background scan
type scanState struct {
	Status     string           `json:"status"` // idle, running, done, error
	Message    string           `json:"message,omitempty"`
	Scanned    int              `json:"scanned"`
	Total      int              `json:"total"`
	StartedAt  time.Time        `json:"started_at,omitzero"`
	FinishedAt time.Time        `json:"finished_at,omitzero"`
	Error      string           `json:"error,omitempty"`
	Summary    *scanner.Summary `json:"summary,omitempty"`
}

// handleScan starts an async scan; clients poll /scan/status
func (s *Server) handleScan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(c, "invalid scan request: "+err.Error()))
		return
	}

	symbols := scanner.ParseSymbols(req.Symbols...)
	if len(symbols) == 0 {
		u := req.Universe
		if u == "" {
			u = string(scanner.UniverseDataset)
		}
		var err error
		if symbols, err = scanner.GetUniverse(scanner.Universe(u)); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(c, err.Error()))
			return
		}
	}

	s.scanMu.Lock()
	if s.scan.Status == "running" {
		s.scanMu.Unlock()
		c.JSON(http.StatusOK, gin.H{"status": "already_running"})
		return
	}
	s.scan = scanState{
		Status:    "running",
		Message:   "Starting scan...",
		Total:     len(symbols),
		StartedAt: time.Now(),
	}
	s.scanMu.Unlock()

	slog.InfoContext(c.Request.Context(), "scan starting", "symbols", len(symbols), "model", req.Model)
	go s.runScanAsync(s.newScanner(req.Model), symbols)

	c.JSON(http.StatusAccepted, gin.H{"status": "started", "total": len(symbols)})
}

// runScanAsync runs the scan in background, updating scanState as it goes
func (s *Server) runScanAsync(sc *scanner.Scanner, symbols []string) {
	sc.SetProgressCallback(func(scanned, total int) {
		s.scanMu.Lock()
		s.scan.Scanned = scanned
		s.scan.Message = fmt.Sprintf("Scanning %d/%d symbols...", scanned, total)
		s.scanMu.Unlock()
	})

	summary, err := sc.Scan(s.baseCtx, symbols)

	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	s.scan.FinishedAt = time.Now()
	s.scan.Summary = summary
	if err != nil {
		slog.Error("scan failed", "error", err)
		s.scan.Status = "error"
		s.scan.Error = err.Error()
		return
	}
	s.scan.Status = "done"
	s.scan.Scanned = summary.TotalScanned
	s.scan.Message = "Complete"
	slog.Info("scan complete", "scanned", summary.TotalScanned, "matching", summary.MatchingCount, "failed", summary.FailedCount)
}

func (s *Server) handleScanStatus(c *gin.Context) {
	s.scanMu.RLock()
	state := s.scan
	s.scanMu.RUnlock()
	c.JSON(http.StatusOK, state)
}
