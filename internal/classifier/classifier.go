package classifier

import (
	"log/slog"

	"github.com/omalmisr/omal-responder/internal/catalog"
	"github.com/omalmisr/omal-responder/internal/models"
	"github.com/omalmisr/omal-responder/pkg/textutil"
)

// Classifier places an inbound message in a category.
type Classifier interface {
	// Classify returns the first matching category, or "" if none match.
	Classify(text string) models.Category
}

type rule struct {
	category models.Category
	phrases  []textutil.Phrase
}

// KeywordClassifier checks ordered keyword sets; the first set with a hit
// wins, so overlapping keywords resolve by list order.
type KeywordClassifier struct {
	rules  []rule
	ignore []textutil.Phrase
	logger *slog.Logger
}

// NewClassifier compiles the catalog's category rules.
func NewClassifier(cat *catalog.Catalog, logger *slog.Logger) *KeywordClassifier {
	c := &KeywordClassifier{
		ignore: textutil.CompilePhrases(cat.DetectionIgnore),
		logger: logger,
	}
	for _, r := range cat.Categories {
		c.rules = append(c.rules, rule{category: r.Category, phrases: textutil.CompilePhrases(r.Keywords)})
	}
	return c
}

// Classify determines the category from the message's tokens.
func (c *KeywordClassifier) Classify(text string) models.Category {
	tokens := textutil.StripPhrases(textutil.Tokenize(text), c.ignore)
	for _, r := range c.rules {
		if p, ok := textutil.FirstMatch(tokens, r.phrases); ok {
			c.logger.Debug("classified message", "category", r.category, "keyword", p.Raw, "text_prefix", textutil.Truncate(text, 60))
			return r.category
		}
	}
	return ""
}
