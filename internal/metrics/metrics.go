// Package metrics provides application-level counters using stdlib expvar.
// Counters are exported on the /debug/vars HTTP endpoint served by the API.
package metrics

import "expvar"

// Turn counters.
var (
	TurnsTotal         = expvar.NewInt("omal_turns_total")
	TurnsBySource      = expvar.NewMap("omal_turns_by_source")
	CompletionFailures = expvar.NewInt("omal_completion_failures_total")
	DeliveryFailures   = expvar.NewInt("omal_delivery_failures_total")
	PersistFailures    = expvar.NewInt("omal_persist_failures_total")
	SessionsCleared    = expvar.NewInt("omal_sessions_cleared_total")
	TurnsPruned        = expvar.NewInt("omal_turns_pruned_total")
)

// Comment counters.
var (
	CommentsProcessed   = expvar.NewInt("omal_comments_processed_total")
	CommentsIgnored     = expvar.NewInt("omal_comments_ignored_total")
	CommentsRateLimited = expvar.NewInt("omal_comments_rate_limited_total")
	CommentsResponded   = expvar.NewInt("omal_comments_responded_total")
	CommentsByCategory  = expvar.NewMap("omal_comment_responses_by_category")
)

// Inc increments the given counter by 1.
func Inc(counter *expvar.Int) { counter.Add(1) }

// IncKey increments key in m by 1.
func IncKey(m *expvar.Map, key string) { m.Add(key, 1) }

// CommentStats is a point-in-time copy of the comment counters.
type CommentStats struct {
	Processed   int64            `json:"processed"`
	Ignored     int64            `json:"ignored"`
	RateLimited int64            `json:"rate_limited"`
	Responded   int64            `json:"responded"`
	ByCategory  map[string]int64 `json:"by_category"`
}

// Comments snapshots the comment counters.
func Comments() CommentStats {
	return CommentStats{
		Processed:   CommentsProcessed.Value(),
		Ignored:     CommentsIgnored.Value(),
		RateLimited: CommentsRateLimited.Value(),
		Responded:   CommentsResponded.Value(),
		ByCategory:  mapValues(CommentsByCategory),
	}
}

// Sources snapshots the per-source turn counter.
func Sources() map[string]int64 {
	return mapValues(TurnsBySource)
}

func mapValues(m *expvar.Map) map[string]int64 {
	out := make(map[string]int64)
	m.Do(func(kv expvar.KeyValue) {
		if v, ok := kv.Value.(*expvar.Int); ok {
			out[kv.Key] = v.Value()
		}
	})
	return out
}
