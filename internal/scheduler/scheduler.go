// Package scheduler runs periodic background jobs for the API.
package scheduler

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"quiz-rewards-api/internal/logging"
	"quiz-rewards-api/internal/models"
)

// CodeSource lists the codes redeemable at a given instant.
type CodeSource interface {
	ActiveCodes(now time.Time) []models.Code
}

// Transition is a code entering or leaving its redemption window.
type Transition struct {
	Code   string
	Active bool
}

// CodeWatcher remembers which codes were active at the previous check and
// reports the changes since.
type CodeWatcher struct {
	source CodeSource
	logger logging.Logger

	mu     sync.Mutex
	active map[string]bool
}

// NewCodeWatcher creates a watcher with no codes seen yet, so the first
// Check reports every active code as opened.
func NewCodeWatcher(source CodeSource, logger logging.Logger) *CodeWatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &CodeWatcher{
		source: source,
		logger: logger,
		active: make(map[string]bool),
	}
}

// Check compares the active set at now with the previous one. Opened codes
// come first, both groups in catalog order.
func (w *CodeWatcher) Check(ctx context.Context, now time.Time) []Transition {
	w.mu.Lock()
	defer w.mu.Unlock()

	current := make(map[string]bool)
	var transitions []Transition
	for _, c := range w.source.ActiveCodes(now) {
		current[c.Code] = true
		if !w.active[c.Code] {
			transitions = append(transitions, Transition{Code: c.Code, Active: true})
			w.logger.Info(ctx, "code window opened", "code", c.Code, "points", c.Points, "valid_to", c.ValidTo)
		}
	}

	var closed []string
	for code := range w.active {
		if !current[code] {
			closed = append(closed, code)
		}
	}
	slices.Sort(closed)
	for _, code := range closed {
		transitions = append(transitions, Transition{Code: code, Active: false})
		w.logger.Info(ctx, "code window closed", "code", code)
	}

	w.active = current
	return transitions
}

// Scheduler owns the gocron scheduler and its jobs.
type Scheduler struct {
	sched  gocron.Scheduler
	logger logging.Logger
}

// New creates a scheduler that runs watcher every interval, starting
// immediately. Jobs do not overlap.
func New(watcher *CodeWatcher, interval time.Duration, logger logging.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive, got %s", interval)
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			watcher.Check(context.Background(), time.Now())
		}),
		gocron.WithName("code-window-watcher"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("failed to schedule code watcher: %w", err)
	}

	return &Scheduler{sched: sched, logger: logger}, nil
}

// Start begins running jobs.
func (s *Scheduler) Start() {
	s.sched.Start()
	s.logger.Info(context.Background(), "scheduler started", "jobs", len(s.sched.Jobs()))
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	return nil
}
