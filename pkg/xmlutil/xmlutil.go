// Package xmlutil wraps untrusted text in XML-style tags for prompts sent
// to a completion service, so the text cannot close or open tags itself.
package xmlutil

import "strings"

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Escape neutralizes the characters that delimit tags. Newlines and
// quotes are kept so prompts stay readable.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Tag returns <name>escaped content</name>.
func Tag(name, content string) string {
	var b strings.Builder
	b.Grow(len(content) + 2*len(name) + 5)
	b.WriteString("<")
	b.WriteString(name)
	b.WriteString(">")
	b.WriteString(Escape(content))
	b.WriteString("</")
	b.WriteString(name)
	b.WriteString(">")
	return b.String()
}
