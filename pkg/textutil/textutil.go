// Package textutil holds the lexical helpers shared by the matcher, the
// classifiers and the admission filter: Arabic-aware normalization, word
// tokenization, Jaccard similarity and keyword phrase matching.
package textutil

import (
	"strings"
	"unicode"
)

// alefForms folds the hamza/madda variants of alef to a bare alef so that
// "أحمد" and "احمد" tokenize identically.
var alefForms = strings.NewReplacer("أ", "ا", "إ", "ا", "آ", "ا", "ٱ", "ا")

// Normalize lowercases text, strips Arabic diacritics and tatweel, and
// folds alef variants.
func Normalize(text string) string {
	text = alefForms.Replace(strings.ToLower(text))
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if isDiacritic(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isDiacritic(r rune) bool {
	// U+064B..U+065F harakat, U+0670 superscript alef, U+0640 tatweel.
	return (r >= 0x064B && r <= 0x065F) || r == 0x0670 || r == 0x0640
}

// IsWordRune reports whether r belongs to a word token.
func IsWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_'
}

// Tokenize splits normalized text into word tokens, in order.
func Tokenize(text string) []string {
	return strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !IsWordRune(r)
	})
}

// WordSet is a set of normalized word tokens.
type WordSet map[string]struct{}

// NewWordSet tokenizes text into a set.
func NewWordSet(text string) WordSet {
	set := make(WordSet)
	for _, tok := range Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}

// Jaccard returns |a ∩ b| / |a ∪ b|. Two empty sets score 0.
func Jaccard(a, b WordSet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Phrase is a keyword pre-tokenized for matching against token streams.
// A single-word keyword matches a single token; a multi-word keyword
// matches a contiguous run of tokens.
type Phrase struct {
	Raw    string
	Tokens []string
}

// CompilePhrases tokenizes keywords once. Keywords with no word tokens are
// dropped.
func CompilePhrases(keywords []string) []Phrase {
	out := make([]Phrase, 0, len(keywords))
	for _, kw := range keywords {
		toks := Tokenize(kw)
		if len(toks) == 0 {
			continue
		}
		out = append(out, Phrase{Raw: kw, Tokens: toks})
	}
	return out
}

// MatchPhrase reports whether phrase occurs in the token stream.
func MatchPhrase(tokens []string, p Phrase) bool {
	n := len(p.Tokens)
	if n == 0 || n > len(tokens) {
		return false
	}
	for i := 0; i+n <= len(tokens); i++ {
		match := true
		for j := 0; j < n; j++ {
			if tokens[i+j] != p.Tokens[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// FirstMatch returns the first phrase (in list order) found in tokens.
func FirstMatch(tokens []string, phrases []Phrase) (Phrase, bool) {
	for _, p := range phrases {
		if MatchPhrase(tokens, p) {
			return p, true
		}
	}
	return Phrase{}, false
}

// ContainsAny reports whether any phrase occurs in tokens.
func ContainsAny(tokens []string, phrases []Phrase) bool {
	_, ok := FirstMatch(tokens, phrases)
	return ok
}

// RuneLen counts characters, not bytes.
func RuneLen(s string) int {
	return len([]rune(s))
}

// Truncate shortens s to at most max runes, appending "..." when cut.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// EndsWithQuestion reports whether the last non-space rune is a Latin or
// Arabic question mark.
func EndsWithQuestion(s string) bool {
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	return strings.HasSuffix(s, "?") || strings.HasSuffix(s, "؟")
}

// HasQuestionMark reports whether s contains a Latin or Arabic question mark.
func HasQuestionMark(s string) bool {
	return strings.ContainsAny(s, "?؟")
}

// StripPhrases removes every occurrence of each phrase from tokens.
func StripPhrases(tokens []string, phrases []Phrase) []string {
	if len(phrases) == 0 {
		return tokens
	}
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		skipped := false
		for _, p := range phrases {
			n := len(p.Tokens)
			if n == 0 || i+n > len(tokens) {
				continue
			}
			match := true
			for j := 0; j < n; j++ {
				if tokens[i+j] != p.Tokens[j] {
					match = false
					break
				}
			}
			if match {
				i += n
				skipped = true
				break
			}
		}
		if !skipped {
			out = append(out, tokens[i])
			i++
		}
	}
	return out
}
