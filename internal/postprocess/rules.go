package postprocess

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/omalmisr/omal-responder/pkg/textutil"
)

// Rule is one declarative substitution. Every match of Pattern is
// replaced by Replacement (expanded like regexp.Expand) or by the result
// of Func, subject to the optional filters.
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
	Func        func(match []string) string

	// WholeWord requires the match to be bounded by non-word runes. RE2's
	// \b is ASCII-only, so Arabic terms need this instead.
	WholeWord bool
	// LineGuard, when set, makes the rule line-based: lines for which it
	// returns true are left untouched.
	LineGuard func(line string) bool
	// Skip vetoes individual matches given the full input and match span.
	Skip func(s string, start, end int) bool
}

// Apply runs the rule over s.
func (r Rule) Apply(s string) string {
	if r.LineGuard == nil {
		return r.replace(s)
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if r.LineGuard(line) {
			continue
		}
		lines[i] = r.replace(line)
	}
	return strings.Join(lines, "\n")
}

func (r Rule) replace(s string) string {
	matches := r.Pattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if (r.WholeWord && !wordBounded(s, start, end)) || (r.Skip != nil && r.Skip(s, start, end)) {
			continue
		}
		b.WriteString(s[last:start])
		if r.Func != nil {
			groups := make([]string, len(m)/2)
			for g := range groups {
				if m[2*g] >= 0 {
					groups[g] = s[m[2*g]:m[2*g+1]]
				}
			}
			b.WriteString(r.Func(groups))
		} else {
			b.Write(r.Pattern.ExpandString(nil, r.Replacement, s, m))
		}
		last = end
	}
	b.WriteString(s[last:])
	return b.String()
}

// ApplyAll runs rules in order.
func ApplyAll(rules []Rule, s string) string {
	for _, r := range rules {
		s = r.Apply(s)
	}
	return s
}

func wordBounded(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if textutil.IsWordRune(r) {
			return false
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if textutil.IsWordRune(r) {
			return false
		}
	}
	return true
}

// tokenAround returns the whitespace-delimited token containing s[start:end].
func tokenAround(s string, start, end int) string {
	i := strings.LastIndexFunc(s[:start], unicode.IsSpace) + 1
	j := strings.IndexFunc(s[end:], unicode.IsSpace)
	if j < 0 {
		j = len(s)
	} else {
		j += end
	}
	return s[i:j]
}

// insideToken builds a Skip filter that vetoes matches whose surrounding
// token contains any of markers.
func insideToken(markers ...string) func(s string, start, end int) bool {
	return func(s string, start, end int) bool {
		tok := tokenAround(s, start, end)
		for _, m := range markers {
			if strings.Contains(tok, m) {
				return true
			}
		}
		return false
	}
}

func lineContains(marker string) func(string) bool {
	return func(line string) bool {
		return strings.Contains(line, marker)
	}
}

// escapeReplacement protects literal text from regexp.Expand.
func escapeReplacement(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}
