// Package admission decides whether a public comment deserves a reply.
package admission

import (
	"log/slog"
	"strings"

	"github.com/omalmisr/omal-responder/internal/catalog"
	"github.com/omalmisr/omal-responder/internal/models"
	"github.com/omalmisr/omal-responder/pkg/textutil"
)

// Reason explains a filter decision.
type Reason string

const (
	ReasonAccepted   Reason = "accepted"
	ReasonTooShort   Reason = "too_short"
	ReasonUnwanted   Reason = "unwanted"
	ReasonPraise     Reason = "praise"
	ReasonNoInterest Reason = "no_interest"
)

const (
	defaultMinLength       = 3
	defaultPraiseMaxLength = 20
)

// Decision is the outcome for one comment. Category is the interest the
// comment showed, if any.
type Decision struct {
	Respond  bool            `json:"respond"`
	Reason   Reason          `json:"reason"`
	Category models.Category `json:"category,omitempty"`
}

type interest struct {
	category models.Category
	phrases  []textutil.Phrase
}

// Filter is immutable and safe for concurrent use.
type Filter struct {
	minLength       int
	praiseMaxLength int
	ignorePraise    bool
	unwanted        []textutil.Phrase
	praise          []textutil.Phrase
	interests       []interest
	logger          *slog.Logger
}

// NewFilter compiles the comment lexicon. A positive minLength overrides
// the catalog's value.
func NewFilter(lex catalog.CommentLexicon, minLength int, ignorePraise bool, logger *slog.Logger) *Filter {
	f := &Filter{
		minLength:       firstPositive(minLength, lex.MinLength, defaultMinLength),
		praiseMaxLength: firstPositive(lex.PraiseMaxLength, defaultPraiseMaxLength),
		ignorePraise:    ignorePraise,
		unwanted:        textutil.CompilePhrases(lex.Unwanted),
		praise:          textutil.CompilePhrases(lex.Praise),
		interests: []interest{
			{models.CategoryJobSeeker, textutil.CompilePhrases(lex.Job)},
			{models.CategoryInvestor, textutil.CompilePhrases(lex.Investor)},
			{models.CategoryMedia, textutil.CompilePhrases(lex.Media)},
		},
		logger: logger,
	}
	return f
}

// ShouldRespond reports whether the comment passes the filter.
func (f *Filter) ShouldRespond(text string) bool {
	return f.Evaluate(text).Respond
}

// Evaluate applies the rules in order: length, abuse, short praise, then
// interest or an explicit question.
func (f *Filter) Evaluate(text string) Decision {
	text = strings.TrimSpace(text)
	n := textutil.RuneLen(text)
	if n < f.minLength {
		return f.reject(ReasonTooShort)
	}
	tokens := textutil.Tokenize(text)
	if textutil.ContainsAny(tokens, f.unwanted) {
		return f.reject(ReasonUnwanted)
	}
	asks := textutil.HasQuestionMark(text)
	if f.ignorePraise && n < f.praiseMaxLength && !asks && textutil.ContainsAny(tokens, f.praise) {
		return f.reject(ReasonPraise)
	}
	for _, in := range f.interests {
		if textutil.ContainsAny(tokens, in.phrases) {
			return Decision{Respond: true, Reason: ReasonAccepted, Category: in.category}
		}
	}
	if asks {
		return Decision{Respond: true, Reason: ReasonAccepted}
	}
	return f.reject(ReasonNoInterest)
}

func (f *Filter) reject(r Reason) Decision {
	f.logger.Debug("admission: comment rejected", "reason", r)
	return Decision{Reason: r}
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
