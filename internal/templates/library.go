package templates

import (
	"strings"

	"github.com/omalmisr/omal-responder/internal/catalog"
	"github.com/omalmisr/omal-responder/internal/models"
	"github.com/omalmisr/omal-responder/pkg/textutil"
)

// Template names in the catalog.
const (
	TemplateJobSeeker = "job_seeker"
	TemplateInvestor  = "investor"
	TemplateFounder   = "founder"
	TemplateCompany   = "company"
	TemplateGeneric   = "generic"
)

const genericFollowUps = "generic"

// Library renders catalog text with a Selector.
type Library struct {
	cat      *catalog.Catalog
	sel      Selector
	triggers map[string][]textutil.Phrase
}

// NewLibrary creates a library over cat.
func NewLibrary(cat *catalog.Catalog, sel Selector) *Library {
	if sel == nil {
		sel = RandomSelector{}
	}
	triggers := make(map[string][]textutil.Phrase, len(cat.TemplateTriggers))
	for name, kws := range cat.TemplateTriggers {
		triggers[name] = textutil.CompilePhrases(kws)
	}
	return &Library{cat: cat, sel: sel, triggers: triggers}
}

// Selector exposes the library's selector for callers that sample other
// catalog content.
func (l *Library) Selector() Selector {
	return l.sel
}

// Expression picks one phrase from a named expression pool.
func (l *Library) Expression(pool string) string {
	return Choose(l.sel, pool, l.cat.Expression(pool))
}

// NamePrompt is the first private-channel message asking for a name.
func (l *Library) NamePrompt() string {
	return l.render(l.cat.Dialogue.NamePrompt, map[string]string{
		"greeting": l.Expression(catalog.PoolGreetings),
	})
}

// NameWelcome acknowledges a captured display name.
func (l *Library) NameWelcome(name string) string {
	return l.render(l.cat.Dialogue.NameWelcome, map[string]string{"name": name})
}

// Greeting is the channel-specific opening line.
func (l *Library) Greeting(ch models.Channel) string {
	if ch == models.ChannelPublic {
		return l.cat.Dialogue.PublicGreeting
	}
	return l.render(l.cat.Dialogue.PrivateGreeting, map[string]string{
		"greeting": l.Expression(catalog.PoolGreetings),
	})
}

// StartsWithGreeting reports whether text opens with the first word of
// any greeting in the catalog.
func (l *Library) StartsWithGreeting(text string) bool {
	tokens := textutil.Tokenize(text)
	if len(tokens) == 0 {
		return false
	}
	for _, g := range l.cat.Expression(catalog.PoolGreetings) {
		if gt := textutil.Tokenize(g); len(gt) > 0 && gt[0] == tokens[0] {
			return true
		}
	}
	return false
}

// Farewell closes a conversation.
func (l *Library) Farewell() string {
	if f := l.Expression(catalog.PoolConclusions); f != "" {
		return f
	}
	return "شكرًا لتواصلك مع " + l.cat.Organization + ". نتشرف بخدمتك دائماً!"
}

// FollowUp returns a question inviting the user to continue. Categories
// without their own pool use the generic pool.
func (l *Library) FollowUp(cat models.Category) string {
	pool, items := l.FollowUps(cat)
	return Choose(l.sel, pool, items)
}

// FollowUps returns the selector pool name and candidate questions for cat.
func (l *Library) FollowUps(cat models.Category) (string, []string) {
	pool := string(cat)
	items := l.cat.FollowUps[pool]
	if len(items) == 0 {
		pool = genericFollowUps
		items = l.cat.FollowUps[pool]
	}
	return "follow_up:" + pool, items
}

// HumanContact returns a line pointing the user at a human, with the
// organization's phone number.
func (l *Library) HumanContact() string {
	line := l.Expression(catalog.PoolHumanContact)
	if line == "" {
		line = "للتواصل معنا مباشرة، يُرجى الاتصال على الرقم {phone}"
	}
	return l.render(line, nil)
}

// Positive is a short affirmative opener.
func (l *Library) Positive() string {
	if p := l.Expression(catalog.PoolPositive); p != "" {
		return p
	}
	return "بكل تأكيد!"
}

// ServiceReply renders the message pointing at svc's URL.
func (l *Library) ServiceReply(svc models.ServicePointer) string {
	var b strings.Builder
	b.WriteString(l.Positive())
	b.WriteString(" ")
	if svc.Pitch != "" {
		b.WriteString(svc.Pitch)
	} else {
		b.WriteString("يمكنك زيارة الرابط التالي للاطلاع على ")
		b.WriteString(svc.Title)
	}
	b.WriteString(":\n")
	b.WriteString(svc.URL)
	detail := svc.Details
	if detail == "" {
		detail = svc.Description
	}
	if detail != "" {
		b.WriteString("\n\n")
		b.WriteString(detail)
	}
	return b.String()
}

// Recovery renders the local template best suited to text and category.
// Every recovery template carries the organization's contact block.
func (l *Library) Recovery(text string, cat models.Category, name string) string {
	name = strings.TrimSpace(name)
	nameSuffix := ""
	if name != "" {
		nameSuffix = " يا " + name
	}
	tmplName, expression := l.pickTemplate(text, cat)
	tmpl := l.cat.Templates[tmplName]
	if tmpl == "" {
		tmplName = TemplateGeneric
		tmpl = l.cat.Templates[TemplateGeneric]
	}
	if expression == "" {
		expression = l.Expression(catalog.PoolGreetings)
	}
	out := l.render(tmpl, map[string]string{
		"expression":   expression,
		"name_suffix":  nameSuffix,
		"contact":      l.cat.ContactBlock(),
		"general_info": l.Expression(catalog.PoolGeneralInfo),
	})
	return strings.TrimSpace(out)
}

func (l *Library) pickTemplate(text string, cat models.Category) (name, expression string) {
	switch cat {
	case models.CategoryJobSeeker:
		return TemplateJobSeeker, l.Expression(catalog.PoolJobSeekers)
	case models.CategoryInvestor:
		return TemplateInvestor, l.Expression(catalog.PoolInvestors)
	}
	tokens := textutil.Tokenize(text)
	if textutil.ContainsAny(tokens, l.triggers[TemplateFounder]) {
		return TemplateFounder, ""
	}
	if cat == models.CategoryCompany || textutil.ContainsAny(tokens, l.triggers[TemplateCompany]) {
		return TemplateCompany, ""
	}
	return TemplateGeneric, ""
}

func (l *Library) render(tmpl string, extra map[string]string) string {
	return l.cat.Fill(tmpl, extra)
}
