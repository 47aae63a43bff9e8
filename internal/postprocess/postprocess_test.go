package postprocess

import (
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalmisr/omal-responder/internal/catalog"
	"github.com/omalmisr/omal-responder/internal/models"
	"github.com/omalmisr/omal-responder/internal/templates"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestPipeline(t *testing.T, sel templates.Selector) (*Pipeline, *templates.Library) {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	lib := templates.NewLibrary(cat, sel)
	return NewPipeline(cat, lib, newTestLogger()), lib
}

func TestSanitizeRemovesPersonaTerms(t *testing.T) {
	p, _ := newTestPipeline(t, templates.FixedSelector{})

	out := p.Sanitize("أنا بوت ذكي. I am an AI assistant, a chatbot.")
	assert.NotContains(t, out, " بوت ")
	assert.NotContains(t, strings.ToLower(out), "chatbot")
	assert.NotContains(t, out, " AI ")
	assert.Contains(t, out, "المساعد الرسمي لمجمع عمال مصر")
}

func TestSanitizeWholeWordOnly(t *testing.T) {
	p, _ := newTestPipeline(t, templates.FixedSelector{})

	// "روبوتات" and "botanical" contain terms but are different words.
	in := "مصنع روبوتات صناعية botanical garden"
	assert.Equal(t, in, p.Sanitize(in))
}

func TestSanitizePrefersLongestTerm(t *testing.T) {
	p, _ := newTestPipeline(t, templates.FixedSelector{})

	out := p.Sanitize("هذا شات بوت")
	assert.Equal(t, "هذا المساعد الرسمي لمجمع عمال مصر", out)
}

func TestFormatNumberedAndBullets(t *testing.T) {
	p, _ := newTestPipeline(t, templates.FixedSelector{})

	out := p.Format("1. الأول\n2) الثاني\n10. العاشر\n- بند\n* بند آخر")
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "1\uFE0F\u20E3 الأول", lines[0])
	assert.Equal(t, "2\uFE0F\u20E3 الثاني", lines[1])
	assert.Equal(t, "🔟 العاشر", lines[2])
	assert.Equal(t, "• بند", lines[3])
	assert.Equal(t, "• بند آخر", lines[4])
}

func TestFormatReachesEveryLine(t *testing.T) {
	p, _ := newTestPipeline(t, templates.FixedSelector{})

	in := "مقدمة\n1. الأول\nنص\n  2) الثاني\n\nفقرة\n- بند\n\t* بند آخر\n3.5 مليون"
	out := p.Format(in)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 9)
	assert.Equal(t, "مقدمة", lines[0])
	assert.Equal(t, "1\uFE0F\u20E3 الأول", lines[1])
	assert.Equal(t, "  2\uFE0F\u20E3 الثاني", lines[3])
	assert.Equal(t, "• بند", lines[6])
	assert.Equal(t, "\t• بند آخر", lines[7])
	assert.Equal(t, "3.5 مليون", lines[8])
	assert.Equal(t, out, p.Format(out))
}

func TestFormatDoesNotJoinLines(t *testing.T) {
	p, _ := newTestPipeline(t, templates.FixedSelector{})

	in := "نص\n-\nبند\n1.\nالتالي"
	assert.Equal(t, in, p.Format(in))
}

func TestProcessFormatsListsAfterFirstLine(t *testing.T) {
	p, _ := newTestPipeline(t, templates.FixedSelector{})
	cat, err := catalog.Default()
	require.NoError(t, err)
	lib := templates.NewLibrary(cat, templates.FixedSelector{})

	generic := lib.Recovery("ما هي أسعار الذهب", "", "")
	require.Contains(t, generic, "\n- ")

	for _, in := range []string{
		"خدماتنا:\n1. التوظيف\n2. الاستثمار\n- الدعم\n- التدريب",
		generic,
	} {
		once := p.Process(in, Context{FollowUp: true})
		assert.NotRegexp(t, `(?m)^[ \t]*[-*][ \t]`, once)
		assert.NotRegexp(t, `(?m)^[ \t]*\d{1,2}[.)][ \t]`, once)
		assert.Equal(t, once, p.Process(once, Context{FollowUp: true}))
	}

	out := p.Process("خدماتنا:\n1. التوظيف\n2. الاستثمار\n- الدعم", Context{})
	assert.Equal(t, "خدماتنا:\n1\uFE0F\u20E3 التوظيف\n2\uFE0F\u20E3 الاستثمار\n• الدعم", out)
}

func TestFormatLeavesDecimalsAndEmphasis(t *testing.T) {
	p, _ := newTestPipeline(t, templates.FixedSelector{})

	in := "1.5 مليار جنيه\n*مجمع عمال مصر* منظومة صناعية"
	assert.Equal(t, in, p.Format(in))
}

func TestFormatContactIcons(t *testing.T) {
	p, _ := newTestPipeline(t, templates.FixedSelector{})

	out := p.Format("اتصل على 01100901200\nراسلنا info@omalmisr.com\nزورونا www.omalmisr.com\nالعنوان: القاهرة")
	assert.Contains(t, out, "📞 01100901200")
	assert.Contains(t, out, "✉️ info@omalmisr.com")
	assert.Contains(t, out, "🌐 www.omalmisr.com")
	assert.Contains(t, out, "📍 العنوان: القاهرة")
}

func TestFormatSkipsIconsAlreadyPresentAndURLs(t *testing.T) {
	p, _ := newTestPipeline(t, templates.FixedSelector{})

	in := "📞 تليفون: 01100901200\nhttps://www.linkedin.com/company/79479037\n[موقعنا](https://www.omalmisr.com)"
	assert.Equal(t, in, p.Format(in))
}

func TestDedupCollapsesRepeatedName(t *testing.T) {
	p, _ := newTestPipeline(t, templates.FixedSelector{})

	out := p.Process("أهلاً يا أحمد أحمد، أحمد!", Context{DisplayName: "أحمد"})
	assert.Equal(t, "أهلاً يا أحمد!", out)
}

func TestDedupKeepsLastContactBlock(t *testing.T) {
	p, _ := newTestPipeline(t, templates.FixedSelector{})

	first := "للتواصل:\n📞 01000000000"
	last := "• *للتواصل المباشر*:\n📞 تليفون/واتساب: 01100901200"
	out := p.Process(first+"\n\nنص\n\n"+last, Context{})
	assert.NotContains(t, out, "01000000000")
	assert.Contains(t, out, "01100901200")
	assert.Equal(t, 1, strings.Count(out, "📞"))
}

func TestDedupKeepsFirstLinkList(t *testing.T) {
	p, _ := newTestPipeline(t, templates.FixedSelector{})

	url := "https://omalmisrservices.com/ar/jobs"
	links := "روابط سريعة:\n🔗 [الوظائف](" + url + ")"
	in := "سجل هنا " + url + "\n\n" + links + "\n\n" + links + "\n\nروابط أخرى:\n🔗 [المستثمرين](https://omalmisrservices.com/ar/companies)"
	out := p.Process(in, Context{})

	assert.Equal(t, 1, strings.Count(out, "🔗"))
	assert.Equal(t, 1, strings.Count(out, url))
	assert.Contains(t, out, "سجل هنا")
}

func TestDedupDropsDuplicateParagraphs(t *testing.T) {
	p, _ := newTestPipeline(t, templates.FixedSelector{})

	out := p.Process("مرحباً\n\nفقرة\n\n- بند\n\n• بند\n\nفقرة", Context{})
	assert.Equal(t, "مرحباً\n\nفقرة\n\n• بند", out)
}

func TestContinuityAppendsQuestion(t *testing.T) {
	p, lib := newTestPipeline(t, templates.FixedSelector{})

	out := p.Process("لدينا وظائف كثيرة.", Context{FollowUp: true, Category: models.CategoryJobSeeker})
	assert.True(t, strings.HasSuffix(out, lib.FollowUp(models.CategoryJobSeeker)))
	assert.True(t, strings.HasPrefix(out, "لدينا وظائف كثيرة.\n\n"))

	asked := "هل تريد التقديم؟"
	assert.Equal(t, asked, p.Process(asked, Context{FollowUp: true}))

	assert.Equal(t, "لا شيء", p.Process("لا شيء", Context{}))
}

func TestContinuityAvoidsRepeatingQuestion(t *testing.T) {
	p, lib := newTestPipeline(t, templates.FixedSelector{})

	q := lib.FollowUp(models.CategoryInvestor)
	in := q + "\n\nتفاصيل الاستثمار متاحة."
	out := p.Process(in, Context{FollowUp: true, Category: models.CategoryInvestor})
	assert.Equal(t, 1, strings.Count(out, q))
	assert.True(t, strings.HasSuffix(out, "؟"))
}

func TestProcessIdempotent(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	fixed := templates.NewLibrary(cat, templates.FixedSelector{})
	jobs, ok := cat.Service("find_job")
	require.True(t, ok)

	inputs := []string{
		"",
		"   ",
		"أنا chatbot ولست إنساناً. اتصل على 01100901200 أو info@omalmisr.com",
		fixed.Recovery("عايز شغل", models.CategoryJobSeeker, "أحمد"),
		fixed.Recovery("استثمار", models.CategoryInvestor, ""),
		fixed.Recovery("من هو المؤسس", "", "منى"),
		fixed.Recovery("ما هي أسعار الذهب", "", ""),
		fixed.ServiceReply(jobs) + "\n\n" + fixed.HumanContact(),
		"1. أولاً\n2. ثانياً\n\n\n\n- بند\n- بند\n\nالعنوان: القاهرة\nwww.omalmisr.com",
		"مقدمة\n1. أولاً\n2) ثانياً\n10. عاشراً\nنص\n- بند\n* بند آخر\n· ثالث",
		fixed.Recovery("x", "", "") + "\n\n" + fixed.Recovery("x", "", ""),
		"أهلاً يا سارة سارة\r\nمرحبا   \n\n\nسارة، سارة",
	}
	contexts := []Context{
		{},
		{FollowUp: true},
		{FollowUp: true, Category: models.CategoryJobSeeker, DisplayName: "أحمد"},
		{DisplayName: "سارة", Category: models.CategoryMedia, FollowUp: true},
	}

	for _, sel := range []templates.Selector{templates.FixedSelector{}, templates.RandomSelector{}} {
		p := NewPipeline(cat, templates.NewLibrary(cat, sel), newTestLogger())
		for _, in := range inputs {
			for _, pc := range contexts {
				once := p.Process(in, pc)
				twice := p.Process(once, pc)
				assert.Equal(t, once, twice, "input %q", in)
			}
		}
	}
}

func TestProcessPreservesServiceURL(t *testing.T) {
	p, lib := newTestPipeline(t, templates.FixedSelector{})
	cat, err := catalog.Default()
	require.NoError(t, err)

	for _, svc := range cat.Services {
		reply := lib.ServiceReply(svc)
		out := p.Process(reply+"\n\n"+lib.Recovery("وظائف", models.CategoryJobSeeker, ""), Context{FollowUp: true})
		assert.Contains(t, out, svc.URL, svc.ID)
	}
}
