// Package lifecycle enforces retention on the persisted turn log.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/omalmisr/omal-responder/internal/metrics"
	"github.com/omalmisr/omal-responder/internal/turnlog"
)

// Report summarizes the results of a retention run.
type Report struct {
	Pruned int       `json:"pruned"`
	Cutoff time.Time `json:"cutoff"`
	DryRun bool      `json:"dry_run"`
}

// Manager prunes turns older than the retention window.
type Manager struct {
	store     turnlog.Store
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewManager creates a manager keeping retentionDays of turns.
// retentionDays <= 0 keeps everything.
func NewManager(st turnlog.Store, retentionDays int, logger *slog.Logger) *Manager {
	return &Manager{
		store:     st,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Prune deletes expired turns. With dryRun set it only counts them.
func (m *Manager) Prune(ctx context.Context, dryRun bool) (*Report, error) {
	if m.retention <= 0 {
		return &Report{DryRun: dryRun}, nil
	}
	cutoff := m.now().Add(-m.retention)
	n, err := m.store.DeleteBefore(ctx, cutoff, dryRun)
	if err != nil {
		return nil, fmt.Errorf("pruning turns before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if !dryRun {
		metrics.TurnsPruned.Add(int64(n))
	}
	m.logger.Info("lifecycle: prune complete", "pruned", n, "cutoff", cutoff, "dry_run", dryRun)
	return &Report{Pruned: n, Cutoff: cutoff, DryRun: dryRun}, nil
}
