package orchestrator

import (
	"strings"

	"github.com/omalmisr/omal-responder/internal/models"
	"github.com/omalmisr/omal-responder/pkg/xmlutil"
)

// buildPrompt returns the user prompt and the system context for the
// completion service. User-supplied text is always tag-escaped.
func (e *Engine) buildPrompt(text string, category models.Category, name string) (prompt, system string) {
	var sb strings.Builder
	sb.WriteString("أنت المساعد الرسمي لـ")
	sb.WriteString(e.cat.Organization)
	sb.WriteString(". أجب باللغة العربية بأسلوب ودود ومهني ومختصر، ")
	sb.WriteString("ولا تذكر أبداً أنك نظام آلي. إذا لم تعرف الإجابة فوجّه المستخدم إلى وسائل التواصل.\n")
	sb.WriteString("بيانات التواصل: هاتف ")
	sb.WriteString(e.cat.Contact.Phone)
	sb.WriteString("، بريد إلكتروني ")
	sb.WriteString(e.cat.Contact.Email)
	sb.WriteString("، الموقع ")
	sb.WriteString(e.cat.Contact.Website)
	sb.WriteString(".\n")

	if e.opts.GroundingSamples > 0 {
		samples := e.matcher.Sample(e.lib.Selector(), e.opts.GroundingSamples)
		if len(samples) > 0 {
			sb.WriteString("معلومات مرجعية:\n<knowledge>\n")
			for _, it := range samples {
				sb.WriteString("<entry>")
				sb.WriteString(xmlutil.Tag("question", it.Question))
				sb.WriteString(xmlutil.Tag("answer", it.Answer))
				sb.WriteString("</entry>\n")
			}
			sb.WriteString("</knowledge>\n")
		}
	}

	var pb strings.Builder
	if name != "" {
		pb.WriteString(xmlutil.Tag("user_name", name))
		pb.WriteString("\n")
	}
	if category != "" {
		pb.WriteString(xmlutil.Tag("user_category", category.Label()))
		pb.WriteString("\n")
	}
	pb.WriteString(xmlutil.Tag("user_message", text))
	return pb.String(), sb.String()
}
