// Package knowledge scores inbound text against the curated question set
// using Jaccard similarity over normalized word sets.
package knowledge

import (
	"log/slog"
	"sort"

	"github.com/omalmisr/omal-responder/internal/models"
	"github.com/omalmisr/omal-responder/internal/templates"
	"github.com/omalmisr/omal-responder/pkg/textutil"
)

// DefaultThreshold is the minimum confidence for a direct knowledge answer.
const DefaultThreshold = 0.4

// Match is the best-scoring item for a query. Item is nil when nothing
// overlaps at all; Confidence is always the raw best score.
type Match struct {
	Item       *models.KnowledgeItem `json:"item,omitempty"`
	Confidence float64               `json:"confidence"`
}

// Scored pairs an item with its similarity to a query.
type Scored struct {
	Item  models.KnowledgeItem `json:"item"`
	Score float64              `json:"score"`
}

// Matcher holds the knowledge base with pre-tokenized questions.
type Matcher struct {
	items  []models.KnowledgeItem
	sets   []textutil.WordSet
	logger *slog.Logger
}

// NewMatcher tokenizes every question once.
func NewMatcher(items []models.KnowledgeItem, logger *slog.Logger) *Matcher {
	m := &Matcher{
		items:  items,
		sets:   make([]textutil.WordSet, len(items)),
		logger: logger,
	}
	for i, it := range items {
		m.sets[i] = textutil.NewWordSet(it.Question)
	}
	return m
}

// Len returns the number of items.
func (m *Matcher) Len() int {
	return len(m.items)
}

// Search returns the single best item. Ties keep the earliest item.
func (m *Matcher) Search(text string) Match {
	query := textutil.NewWordSet(text)
	best := -1
	bestScore := 0.0
	for i, set := range m.sets {
		s := textutil.Jaccard(query, set)
		if s > bestScore {
			best = i
			bestScore = s
		}
	}
	if best < 0 {
		return Match{}
	}
	item := m.items[best]
	m.logger.Debug("knowledge match", "item_id", item.ID, "confidence", bestScore)
	return Match{Item: &item, Confidence: bestScore}
}

// Top returns up to k items with a non-zero score, best first.
func (m *Matcher) Top(text string, k int) []Scored {
	query := textutil.NewWordSet(text)
	var out []Scored
	for i, set := range m.sets {
		if s := textutil.Jaccard(query, set); s > 0 {
			out = append(out, Scored{Item: m.items[i], Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// Sample draws k distinct items for use as grounding context.
func (m *Matcher) Sample(sel templates.Selector, k int) []models.KnowledgeItem {
	idx := templates.SampleIndices(sel, "knowledge", len(m.items), k)
	out := make([]models.KnowledgeItem, len(idx))
	for i, j := range idx {
		out[i] = m.items[j]
	}
	return out
}

// Get looks an item up by id.
func (m *Matcher) Get(id string) (models.KnowledgeItem, bool) {
	for _, it := range m.items {
		if it.ID == id {
			return it, true
		}
	}
	return models.KnowledgeItem{}, false
}
