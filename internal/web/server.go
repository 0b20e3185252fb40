package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"patternscope/internal/analyzer"
	"patternscope/internal/config"
	"patternscope/internal/metrics"
	"patternscope/internal/scanner"
)

// Server represents the web server
type Server struct {
	config  config.ServerConfig
	scanCfg config.ScannerConfig
	service *analyzer.Service
	metrics *metrics.Metrics
	router  *gin.Engine
	srv     *http.Server

	// background scans outlive their request and stop on Shutdown
	baseCtx    context.Context
	baseCancel context.CancelFunc
	scanMu     sync.RWMutex
	scan       scanState
}

// NewServer creates a new web server and registers its routes
func NewServer(cfg *config.Config, svc *analyzer.Service, m *metrics.Metrics) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:     cfg.Server,
		scanCfg:    cfg.Scanner,
		service:    svc,
		metrics:    m,
		baseCtx:    ctx,
		baseCancel: cancel,
		scan:       scanState{Status: "idle"},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger())
	r.Use(observe(s.metrics))
	r.Use(cors.New(corsConfig(s.config.CORSOrigins)))

	r.GET("/health", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := r.Group("/")
	if s.config.AuthSecret != "" {
		api.Use(requireAuth(s.config.AuthSecret))
	}
	api.Use(requestTimeout(s.config.RequestTimeout))

	api.GET("/stock/:ticker", s.handleStock)
	api.GET("/detect/:ticker", s.handleDetect)
	api.GET("/detect_real/:ticker", s.handleDetectReal)
	api.GET("/label/:ticker", s.handleLabel)
	api.GET("/analyze/:ticker", s.handleAnalyze)
	api.GET("/signals/:ticker", s.handleSignals)
	api.GET("/models", s.handleModels)
	api.GET("/universes", s.handleUniverses)
	api.POST("/scan", s.handleScan)
	api.GET("/scan/status", s.handleScanStatus)

	return r
}

// corsConfig allows every origin when the list contains "*"
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on the configured port until Shutdown is called
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("http server listening", "addr", s.srv.Addr, "auth", s.config.AuthSecret != "")

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server and cancels a running scan
func (s *Server) Shutdown(ctx context.Context) error {
	s.baseCancel()
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// newScanner builds a scanner bound to the analysis service
func (s *Server) newScanner(model string) *scanner.Scanner {
	sc := scanner.NewScanner(s.service, s.scanCfg.Workers, s.scanCfg.Timeout)
	sc.SetMetrics(s.metrics)
	if model == "" {
		model = s.scanCfg.Model
	}
	sc.SetModel(model)
	return sc
}
