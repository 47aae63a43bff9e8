package postprocess

import (
	"regexp"
	"strings"
)

var rawURL = regexp.MustCompile(`https?://[^\s)\]]+`)

// dedup collapses repeated names and removes repeated contact blocks, link
// lists and paragraphs. Blocks are classified on their formatted form so
// the result is stable under a second pass.
func (p *Pipeline) dedup(text, name string) string {
	if name = strings.TrimSpace(name); name != "" {
		text = collapseName(text, name)
	}
	paras := splitParagraphs(text)
	if len(paras) == 0 {
		return ""
	}
	keys := make([]string, len(paras))
	for i, para := range paras {
		keys[i] = p.Format(para)
	}

	drop := make([]bool, len(paras))

	lastContact := -1
	for i, k := range keys {
		if isContactBlock(k) {
			if lastContact >= 0 {
				drop[lastContact] = true
			}
			lastContact = i
		}
	}

	firstLinks := -1
	for i, k := range keys {
		if drop[i] || !isLinkBlock(k) {
			continue
		}
		if firstLinks < 0 {
			firstLinks = i
			continue
		}
		drop[i] = true
	}
	if firstLinks >= 0 && countLinkBlocks(keys) > 1 {
		listed := rawURL.FindAllString(paras[firstLinks], -1)
		for i := range paras {
			if i == firstLinks || drop[i] {
				continue
			}
			if stripped := stripURLs(paras[i], listed); stripped != paras[i] {
				paras[i] = stripped
				keys[i] = p.Format(stripped)
				if strings.TrimSpace(stripped) == "" {
					drop[i] = true
				}
			}
		}
	}

	seen := make(map[string]bool, len(paras))
	out := make([]string, 0, len(paras))
	for i, para := range paras {
		if drop[i] {
			continue
		}
		k := strings.TrimSpace(keys[i])
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, strings.TrimSpace(para))
	}
	return strings.Join(out, "\n\n")
}

func collapseName(text, name string) string {
	q := regexp.QuoteMeta(name)
	r := Rule{
		Pattern:     regexp.MustCompile(q + `(?:[ \t،,]+` + q + `)+`),
		Replacement: escapeReplacement(name),
		WholeWord:   true,
	}
	return r.Apply(text)
}

func splitParagraphs(text string) []string {
	raw := strings.Split(tidy(text), "\n\n")
	out := raw[:0]
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// isContactBlock reports a multi-line paragraph carrying a phone line.
func isContactBlock(para string) bool {
	return strings.Count(para, "\n") >= 1 && strings.Contains(para, iconPhone)
}

// isLinkBlock reports a paragraph with at least one 🔗 list line.
func isLinkBlock(para string) bool {
	for _, line := range strings.Split(para, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), iconLink) {
			return true
		}
	}
	return false
}

func countLinkBlocks(keys []string) int {
	n := 0
	for _, k := range keys {
		if isLinkBlock(k) {
			n++
		}
	}
	return n
}

func stripURLs(para string, urls []string) string {
	if len(urls) == 0 {
		return para
	}
	lines := strings.Split(para, "\n")
	kept := lines[:0]
	for _, line := range lines {
		orig := line
		for _, u := range urls {
			line = strings.ReplaceAll(line, u, "")
		}
		if line != orig {
			line = strings.Join(strings.Fields(line), " ")
			if line == "" {
				continue
			}
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
