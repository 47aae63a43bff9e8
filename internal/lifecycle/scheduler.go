package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule reports whether spec is a usable cron expression.
func ValidateSchedule(spec string) error {
	if _, err := scheduleParser.Parse(strings.TrimSpace(spec)); err != nil {
		return fmt.Errorf("parse prune schedule %q: %w", spec, err)
	}
	return nil
}

// Scheduler runs Manager.Prune on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	manager *Manager
	logger  *slog.Logger
}

// NewScheduler registers the prune job. Each run gets its own timeout.
func NewScheduler(m *Manager, spec string, timeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	c := cron.New(cron.WithParser(scheduleParser), cron.WithLocation(time.UTC))
	s := &Scheduler{cron: c, manager: m, logger: logger}
	_, err := c.AddFunc(strings.TrimSpace(spec), func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s.runOnce(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("schedule prune job %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.manager.Prune(ctx, false); err != nil {
		s.logger.Error("lifecycle: scheduled prune failed", "error", err)
	}
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running job up to ctx's
// deadline.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
