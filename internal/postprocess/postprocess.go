// Package postprocess turns raw reply text into the final outbound
// message: persona sanitization, de-duplication, emoji formatting and a
// continuation question.
package postprocess

import (
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/omalmisr/omal-responder/internal/catalog"
	"github.com/omalmisr/omal-responder/internal/models"
	"github.com/omalmisr/omal-responder/internal/templates"
	"github.com/omalmisr/omal-responder/pkg/textutil"
)

// Context carries the per-turn facts the pipeline needs.
type Context struct {
	DisplayName string
	Category    models.Category
	// FollowUp requests a continuation question when the text does not
	// already end with one.
	FollowUp bool
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	sanitize []Rule
	format   []Rule
	lib      *templates.Library
	logger   *slog.Logger
}

// NewPipeline compiles the sanitization rules from cat and the fixed
// formatting rules.
func NewPipeline(cat *catalog.Catalog, lib *templates.Library, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		sanitize: sanitizeRules(cat.Sanitize),
		format:   formatRules(),
		lib:      lib,
		logger:   logger,
	}
}

// Process runs all stages. Process(Process(x)) == Process(x) for a fixed
// Context.
func (p *Pipeline) Process(text string, pc Context) string {
	out := tidy(text)
	out = p.Sanitize(out)
	out = p.dedup(out, pc.DisplayName)
	out = p.Format(out)
	out = tidy(out)
	if pc.FollowUp {
		out = p.continuity(out, pc.Category)
	}
	if out != text {
		p.logger.Debug("postprocess: rewrote reply", "in_len", len(text), "out_len", len(out))
	}
	return out
}

// Sanitize replaces every whole-word persona term with the configured
// replacement.
func (p *Pipeline) Sanitize(text string) string {
	return ApplyAll(p.sanitize, text)
}

// Format applies the list, bullet and contact-icon rules to every line.
func (p *Pipeline) Format(text string) string {
	return ApplyAll(p.format, text)
}

func (p *Pipeline) continuity(text string, cat models.Category) string {
	if textutil.EndsWithQuestion(text) {
		return text
	}
	pool, items := p.lib.FollowUps(cat)
	fresh := make([]string, 0, len(items))
	for _, q := range items {
		if !containsParagraph(text, q) {
			fresh = append(fresh, q)
		}
	}
	q := templates.Choose(p.lib.Selector(), pool, fresh)
	if q == "" {
		return text
	}
	if text == "" {
		return q
	}
	return text + "\n\n" + q
}

func sanitizeRules(s catalog.SanitizeRules) []Rule {
	terms := make([]string, 0, len(s.Terms))
	for _, t := range s.Terms {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	sort.SliceStable(terms, func(i, j int) bool {
		return textutil.RuneLen(terms[i]) > textutil.RuneLen(terms[j])
	})
	rules := make([]Rule, 0, len(terms))
	for _, t := range terms {
		rules = append(rules, Rule{
			Name:        "sanitize:" + t,
			Pattern:     regexp.MustCompile(`(?i)` + regexp.QuoteMeta(t)),
			Replacement: escapeReplacement(s.Replacement),
			WholeWord:   true,
		})
	}
	return rules
}

const (
	iconPhone   = "📞"
	iconEmail   = "✉️"
	iconWeb     = "🌐"
	iconAddress = "📍"
	iconLink    = "🔗"
	bullet      = "•"
)

func formatRules() []Rule {
	return []Rule{
		{
			Name:    "numbered",
			Pattern: regexp.MustCompile(`(?m)^([ \t]*)(\d{1,2})[.)][ \t]+`),
			Func: func(m []string) string {
				n, _ := strconv.Atoi(m[2])
				switch {
				case n >= 1 && n <= 9:
					return m[1] + m[2] + "\uFE0F\u20E3 "
				case n == 10:
					return m[1] + "🔟 "
				}
				return m[0]
			},
		},
		{
			Name:        "bullet",
			Pattern:     regexp.MustCompile(`(?m)^([ \t]*)[-*·▪][ \t]+`),
			Replacement: "${1}" + bullet + " ",
		},
		{
			Name:        "phone",
			Pattern:     regexp.MustCompile(`\+?\d{8,15}`),
			Replacement: iconPhone + " $0",
			WholeWord:   true,
			LineGuard:   lineContains(iconPhone),
			Skip:        insideToken("/", "=", "@", "://", "_"),
		},
		{
			Name:        "email",
			Pattern:     regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
			Replacement: iconEmail + " $0",
			WholeWord:   true,
			LineGuard:   lineContains("✉"),
			Skip:        insideToken("://", "mailto:", "]("),
		},
		{
			Name:        "website",
			Pattern:     regexp.MustCompile(`(?i)www\.[a-z0-9-]+(?:\.[a-z0-9-]+)*\.[a-z]{2,}(?:/[^\s)\]]*)?`),
			Replacement: iconWeb + " $0",
			WholeWord:   true,
			LineGuard:   lineContains(iconWeb),
			Skip:        insideToken("://", "[", "(", "@"),
		},
		{
			Name:        "address",
			Pattern:     regexp.MustCompile(`^(\s*)(العنوان\s*:)`),
			Replacement: "${1}" + iconAddress + " ${2}",
			LineGuard:   lineContains(iconAddress),
		},
	}
}

var blankLines = regexp.MustCompile(`\n{3,}`)

// tidy normalizes line endings, trailing spaces and blank-line runs.
func tidy(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func containsParagraph(text, para string) bool {
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) == para {
			return true
		}
	}
	return false
}
