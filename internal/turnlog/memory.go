package turnlog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/omalmisr/omal-responder/internal/models"
)

// MemoryStore is an in-memory Store used by tests and by the CLI when no
// database path is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	turns map[string]models.Turn
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: make(map[string]models.Turn)}
}

// Append records a turn.
func (m *MemoryStore) Append(_ context.Context, turn models.Turn) error {
	if turn.ID == "" {
		return fmt.Errorf("append turn: empty id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[turn.ID] = turn
	return nil
}

// Get retrieves a single turn by ID.
func (m *MemoryStore) Get(_ context.Context, id string) (*models.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.turns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &t, nil
}

// List returns matching turns, newest first.
func (m *MemoryStore) List(_ context.Context, filter *Filter, limit int) ([]models.Turn, error) {
	m.mu.RLock()
	out := make([]models.Turn, 0, len(m.turns))
	for _, t := range m.turns {
		if filter.matches(t) {
			out = append(out, t)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats returns summary statistics.
func (m *MemoryStore) Stats(_ context.Context) (*models.TurnStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := newStats()
	senders := make(map[string]struct{})
	for _, t := range m.turns {
		stats.TotalTurns++
		countNonEmpty(stats.ByChannel, string(t.Channel))
		countNonEmpty(stats.BySource, string(t.Source))
		countNonEmpty(stats.ByCategory, string(t.Category))
		senders[string(t.Channel)+"/"+t.SenderID] = struct{}{}
		created := t.CreatedAt
		if stats.Oldest == nil || created.Before(*stats.Oldest) {
			stats.Oldest = &created
		}
		if stats.Newest == nil || created.After(*stats.Newest) {
			stats.Newest = &created
		}
	}
	stats.Senders = int64(len(senders))
	return stats, nil
}

func countNonEmpty(m map[string]int64, key string) {
	if key != "" {
		m[key]++
	}
}

// DeleteBefore removes turns created before cutoff.
func (m *MemoryStore) DeleteBefore(_ context.Context, cutoff time.Time, dryRun bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, t := range m.turns {
		if t.CreatedAt.Before(cutoff) {
			n++
			if !dryRun {
				delete(m.turns, id)
			}
		}
	}
	return n, nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}
