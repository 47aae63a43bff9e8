package dialogue

import (
	"sort"
	"strings"
	"unicode"

	"github.com/omalmisr/omal-responder/internal/catalog"
	"github.com/omalmisr/omal-responder/pkg/textutil"
)

// Intent is the reading of a reply to "anything else?".
type Intent string

const (
	IntentContinue  Intent = "continue"
	IntentEnd       Intent = "end"
	IntentAmbiguous Intent = "ambiguous"
)

// maxNameWords bounds how much of a name-submission message is kept.
const maxNameWords = 2

// DefaultPlaceholder names a user who answered the name prompt with cue
// words only.
const DefaultPlaceholder = "عزيزي العميل"

// Lexicon holds the compiled cue words of the state machine.
type Lexicon struct {
	prefixes    []textutil.Phrase
	honorifics  []textutil.Phrase
	cont        []textutil.Phrase
	end         []textutil.Phrase
	placeholder string
}

// NewLexicon compiles the dialogue section of a catalog.
func NewLexicon(d catalog.DialogueLexicon) *Lexicon {
	l := &Lexicon{
		prefixes:    textutil.CompilePhrases(d.NamePrefixes),
		honorifics:  textutil.CompilePhrases(d.Honorifics),
		cont:        textutil.CompilePhrases(d.ContinueCues),
		end:         textutil.CompilePhrases(d.EndCues),
		placeholder: d.NamePlaceholder,
	}
	if l.placeholder == "" {
		l.placeholder = DefaultPlaceholder
	}
	// Longest prefix first so "انا اسمي" wins over "انا".
	sort.SliceStable(l.prefixes, func(i, j int) bool {
		return len(l.prefixes[i].Tokens) > len(l.prefixes[j].Tokens)
	})
	return l
}

// ClassifyContinuation reads a message sent while awaiting continuation.
// A message with both kinds of cue counts as continuation, since it
// usually carries a new question.
func (l *Lexicon) ClassifyContinuation(text string) Intent {
	tokens := textutil.Tokenize(text)
	wantsMore := textutil.ContainsAny(tokens, l.cont)
	wantsEnd := textutil.ContainsAny(tokens, l.end)
	switch {
	case wantsMore:
		return IntentContinue
	case wantsEnd:
		return IntentEnd
	default:
		return IntentAmbiguous
	}
}

// ExtractDisplayName pulls a display name out of a name-submission
// message: introductory phrases and a leading honorific are dropped and
// at most two words are kept, in their original spelling. Words without
// a letter are ignored; a message with nothing left yields the placeholder.
func (l *Lexicon) ExtractDisplayName(text string) string {
	var words, norm []string
	for _, f := range strings.Fields(text) {
		w := strings.TrimFunc(f, func(r rune) bool { return !textutil.IsWordRune(r) })
		if !strings.ContainsFunc(w, unicode.IsLetter) {
			continue
		}
		words = append(words, w)
		norm = append(norm, textutil.Normalize(w))
	}

	i := 0
	for _, p := range l.prefixes {
		if hasPrefixAt(norm, i, p.Tokens) {
			i += len(p.Tokens)
			break
		}
	}
	for _, h := range l.honorifics {
		if len(norm)-i > 1 && hasPrefixAt(norm, i, h.Tokens) {
			i += len(h.Tokens)
			break
		}
	}
	if i >= len(words) {
		return l.placeholder
	}
	end := i + maxNameWords
	if end > len(words) {
		end = len(words)
	}
	return strings.Join(words[i:end], " ")
}

func hasPrefixAt(tokens []string, at int, want []string) bool {
	if at+len(want) > len(tokens) {
		return false
	}
	for j, w := range want {
		if tokens[at+j] != w {
			return false
		}
	}
	return true
}
