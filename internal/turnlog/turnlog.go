// Package turnlog persists completed turns for analytics and retention.
package turnlog

import (
	"context"
	"errors"
	"time"

	"github.com/omalmisr/omal-responder/internal/models"
)

// ErrNotFound is returned by Get when the requested turn does not exist.
var ErrNotFound = errors.New("turn not found")

// Store defines the interface for turn persistence.
type Store interface {
	// Append records a turn. Turns with an existing ID are replaced.
	Append(ctx context.Context, turn models.Turn) error

	// Get retrieves a single turn by ID.
	Get(ctx context.Context, id string) (*models.Turn, error)

	// List returns turns matching the filter, newest first. limit <= 0
	// means no limit.
	List(ctx context.Context, filter *Filter, limit int) ([]models.Turn, error)

	// Stats returns summary statistics.
	Stats(ctx context.Context) (*models.TurnStats, error)

	// DeleteBefore removes turns created before cutoff and returns how
	// many were (or, with dryRun, would be) removed.
	DeleteBefore(ctx context.Context, cutoff time.Time, dryRun bool) (int, error)

	// Close cleans up resources.
	Close() error
}

// Filter narrows List results. Nil fields match everything.
type Filter struct {
	SenderID *string         `json:"sender_id,omitempty"`
	Channel  *models.Channel `json:"channel,omitempty"`
	Since    *time.Time      `json:"since,omitempty"`
}

func (f *Filter) matches(t models.Turn) bool {
	if f == nil {
		return true
	}
	if f.SenderID != nil && t.SenderID != *f.SenderID {
		return false
	}
	if f.Channel != nil && t.Channel != *f.Channel {
		return false
	}
	if f.Since != nil && t.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

func newStats() *models.TurnStats {
	return &models.TurnStats{
		ByChannel:  make(map[string]int64),
		BySource:   make(map[string]int64),
		ByCategory: make(map[string]int64),
	}
}
