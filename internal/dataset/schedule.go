package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler regenerates the dataset on a cron schedule
type Scheduler struct {
	cron    *cron.Cron
	gen     *Generator
	symbols []string
	ctx     context.Context

	mu      sync.Mutex
	running bool
	last    *Summary
}

// NewScheduler creates a scheduler. Expressions use six fields with seconds.
func NewScheduler(ctx context.Context, gen *Generator, symbols []string) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		gen:     gen,
		symbols: symbols,
		ctx:     ctx,
	}
}

// Register adds the generation task
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.RunNow); err != nil {
		return fmt.Errorf("register dataset task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("dataset scheduler started", "entries", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for a running generation
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("dataset scheduler stopped")
}

// RunNow runs one generation unless one is already in progress
func (s *Scheduler) RunNow() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		slog.Warn("dataset generation still running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	summary, err := s.gen.Run(s.ctx, s.symbols)

	s.mu.Lock()
	s.running = false
	s.last = summary
	s.mu.Unlock()

	if err != nil {
		slog.Error("dataset generation failed", "error", err)
		return
	}
	slog.Info("dataset generated", "symbols", summary.Symbols, "samples", summary.Samples, "duration", summary.Duration)
}

// Last returns the summary of the most recent run, or nil
func (s *Scheduler) Last() *Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
