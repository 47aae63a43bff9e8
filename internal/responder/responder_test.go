package responder

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalmisr/omal-responder/internal/admission"
	"github.com/omalmisr/omal-responder/internal/catalog"
	"github.com/omalmisr/omal-responder/internal/classifier"
	"github.com/omalmisr/omal-responder/internal/delivery"
	"github.com/omalmisr/omal-responder/internal/dialogue"
	"github.com/omalmisr/omal-responder/internal/knowledge"
	"github.com/omalmisr/omal-responder/internal/metrics"
	"github.com/omalmisr/omal-responder/internal/models"
	"github.com/omalmisr/omal-responder/internal/orchestrator"
	"github.com/omalmisr/omal-responder/internal/postprocess"
	"github.com/omalmisr/omal-responder/internal/services"
	"github.com/omalmisr/omal-responder/internal/templates"
	"github.com/omalmisr/omal-responder/internal/turnlog"
)

const aboutQuestion = "ما هو مجمع عمال مصر؟"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recorder struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (r *recorder) Deliver(_ context.Context, recipientID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = make(map[string][]string)
	}
	r.sent[recipientID] = append(r.sent[recipientID], text)
	return nil
}

func (r *recorder) messages(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent[id]...)
}

type failingDeliverer struct{}

func (failingDeliverer) Deliver(context.Context, string, string) error {
	return delivery.ErrDeliveryFailed
}

type failingStore struct {
	*turnlog.MemoryStore
}

func (failingStore) Append(context.Context, models.Turn) error {
	return errors.New("disk full")
}

type harness struct {
	r        *Responder
	cat      *catalog.Catalog
	lib      *templates.Library
	messages *recorder
	comments *recorder
	turns    turnlog.Store
}

type setup struct {
	nameCollection bool
	noContinuation bool
	perMinute      int
	opts           Options
	messages       delivery.Deliverer
	turns          turnlog.Store
}

func newHarness(t *testing.T, s setup) *harness {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	logger := newTestLogger()
	lib := templates.NewLibrary(cat, templates.FixedSelector{})
	engineOpts := orchestrator.DefaultOptions()
	engineOpts.ContinuationPrompting = !s.noContinuation
	engine := orchestrator.NewEngine(orchestrator.Deps{
		Catalog:    cat,
		Classifier: classifier.NewClassifier(cat, logger),
		Matcher:    knowledge.NewMatcher(cat.Knowledge, logger),
		Detector:   services.NewDetector(cat, logger),
		Lexicon:    dialogue.NewLexicon(cat.Dialogue),
		Library:    lib,
		Logger:     logger,
	}, engineOpts)

	h := &harness{cat: cat, lib: lib, messages: &recorder{}, comments: &recorder{}}
	msgs := s.messages
	if msgs == nil {
		msgs = h.messages
	}
	h.turns = s.turns
	if h.turns == nil {
		h.turns = turnlog.NewMemoryStore()
	}
	h.r = New(Deps{
		Engine:   engine,
		Pipeline: postprocess.NewPipeline(cat, lib, logger),
		Sessions: dialogue.NewStore(s.nameCollection),
		Library:  lib,
		Filter:   admission.NewFilter(cat.Comments, 0, true, logger),
		Limiter:  admission.NewRateLimiter(s.perMinute),
		Messages: msgs,
		Comments: h.comments,
		Turns:    h.turns,
		Logger:   logger,
	}, s.opts)
	return h
}

func TestConversationWithNameCollection(t *testing.T) {
	h := newHarness(t, setup{nameCollection: true})
	ctx := context.Background()

	first, err := h.r.HandleMessage(ctx, "u1", "مرحبا")
	require.NoError(t, err)
	assert.Equal(t, models.SourceNamePrompt, first.Source)
	assert.Equal(t, models.StageAwaitingName, first.Stage)
	assert.True(t, first.Delivered)

	second, err := h.r.HandleMessage(ctx, "u1", "اسمي أحمد")
	require.NoError(t, err)
	assert.Equal(t, models.SourceNameCaptured, second.Source)
	assert.Equal(t, models.StageActive, second.Stage)
	assert.Contains(t, second.Reply, "أحمد")

	third, err := h.r.HandleMessage(ctx, "u1", aboutQuestion)
	require.NoError(t, err)
	assert.Equal(t, models.SourceKnowledge, third.Source)
	assert.Contains(t, third.Reply, "منظومة صناعية واقتصادية")

	st, err := h.r.Session("u1", models.ChannelPrivate)
	require.NoError(t, err)
	assert.Equal(t, "أحمد", st.DisplayName)
	assert.Len(t, st.History, 3)
	assert.Len(t, h.messages.messages("u1"), 3)

	turns, err := h.turns.List(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	for _, turn := range turns {
		assert.NotEmpty(t, turn.ID)
		assert.NotEmpty(t, turn.Inbound)
		assert.NotEmpty(t, turn.Outbound)
	}
}

func TestFirstPrivateReplyIsGreeted(t *testing.T) {
	h := newHarness(t, setup{})
	ctx := context.Background()

	first, err := h.r.HandleMessage(ctx, "u1", aboutQuestion)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.Reply, h.lib.Greeting(models.ChannelPrivate)), first.Reply)

	second, err := h.r.HandleMessage(ctx, "u1", "من هو مؤسس مجمع عمال مصر؟")
	require.NoError(t, err)
	assert.False(t, h.lib.StartsWithGreeting(second.Reply), second.Reply)
	assert.Contains(t, second.Reply, "هيثم حسين")
}

func TestRepliesAreSanitizedAndAskToContinue(t *testing.T) {
	h := newHarness(t, setup{})
	out, err := h.r.HandleMessage(context.Background(), "u1", aboutQuestion)
	require.NoError(t, err)
	assert.Equal(t, models.StageAwaitingContinuation, out.Stage)
	assert.True(t, strings.HasSuffix(out.Reply, "؟") || strings.HasSuffix(out.Reply, "?"), out.Reply)
}

func TestFollowUpAskedWithoutContinuationPrompting(t *testing.T) {
	h := newHarness(t, setup{noContinuation: true})
	out, err := h.r.HandleMessage(context.Background(), "u1", aboutQuestion)
	require.NoError(t, err)
	assert.Equal(t, models.StageActive, out.Stage)
	assert.True(t, strings.HasSuffix(out.Reply, "؟") || strings.HasSuffix(out.Reply, "?"), out.Reply)
}

func TestDeliveryFailureStillCommitsAndPersists(t *testing.T) {
	h := newHarness(t, setup{messages: failingDeliverer{}})
	ctx := context.Background()
	before := metrics.DeliveryFailures.Value()

	out, err := h.r.HandleMessage(ctx, "u1", aboutQuestion)
	require.Error(t, err)
	assert.ErrorIs(t, err, delivery.ErrDeliveryFailed)
	require.NotNil(t, out)
	assert.False(t, out.Delivered)
	assert.NotEmpty(t, out.Reply)
	assert.Equal(t, before+1, metrics.DeliveryFailures.Value())

	st, err := h.r.Session("u1", models.ChannelPrivate)
	require.NoError(t, err)
	assert.Len(t, st.History, 1)

	turns, err := h.turns.List(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestPersistFailureDoesNotFailTurn(t *testing.T) {
	h := newHarness(t, setup{turns: failingStore{turnlog.NewMemoryStore()}})
	before := metrics.PersistFailures.Value()

	out, err := h.r.HandleMessage(context.Background(), "u1", aboutQuestion)
	require.NoError(t, err)
	assert.True(t, out.Delivered)
	assert.Equal(t, before+1, metrics.PersistFailures.Value())
}

func TestFarewellClearsSession(t *testing.T) {
	h := newHarness(t, setup{opts: Options{ClearOnFarewell: true}})
	ctx := context.Background()

	_, err := h.r.HandleMessage(ctx, "u1", aboutQuestion)
	require.NoError(t, err)
	out, err := h.r.HandleMessage(ctx, "u1", "لا شكراً")
	require.NoError(t, err)
	assert.Equal(t, models.SourceFarewell, out.Source)
	assert.True(t, out.SessionCleared)

	_, err = h.r.Session("u1", models.ChannelPrivate)
	assert.True(t, IsSessionNotFound(err))
}

func TestFarewellKeepsSessionByDefault(t *testing.T) {
	h := newHarness(t, setup{})
	ctx := context.Background()

	_, err := h.r.HandleMessage(ctx, "u1", aboutQuestion)
	require.NoError(t, err)
	out, err := h.r.HandleMessage(ctx, "u1", "لا شكراً")
	require.NoError(t, err)
	assert.Equal(t, models.SourceFarewell, out.Source)
	assert.False(t, out.SessionCleared)

	st, err := h.r.Session("u1", models.ChannelPrivate)
	require.NoError(t, err)
	assert.True(t, st.Ended)
}

func TestClearSession(t *testing.T) {
	h := newHarness(t, setup{})
	ctx := context.Background()
	assert.True(t, IsSessionNotFound(h.r.ClearSession("nobody", models.ChannelPrivate)))

	_, err := h.r.HandleMessage(ctx, "u1", aboutQuestion)
	require.NoError(t, err)
	require.NoError(t, h.r.ClearSession("u1", models.ChannelPrivate))
	_, err = h.r.Session("u1", models.ChannelPrivate)
	assert.True(t, IsSessionNotFound(err))
}

func TestHandleCommentRepliesPublicly(t *testing.T) {
	h := newHarness(t, setup{nameCollection: true})
	before := metrics.Comments()

	out, err := h.r.HandleComment(context.Background(), "c1", "عايز شغل في المصنع")
	require.NoError(t, err)
	assert.False(t, out.Skipped)
	assert.Equal(t, models.ChannelPublic, out.Channel)
	assert.NotEqual(t, models.SourceNamePrompt, out.Source)
	assert.True(t, strings.HasPrefix(out.Reply, h.cat.Dialogue.PublicGreeting), out.Reply)
	assert.Len(t, h.comments.messages("c1"), 1)
	assert.Empty(t, h.messages.messages("c1"))

	after := metrics.Comments()
	assert.Equal(t, before.Processed+1, after.Processed)
	assert.Equal(t, before.Responded+1, after.Responded)
	assert.Equal(t, before.ByCategory[string(models.CategoryJobSeeker)]+1, after.ByCategory[string(models.CategoryJobSeeker)])
}

func TestHandleCommentSkipsUnwanted(t *testing.T) {
	h := newHarness(t, setup{})
	tests := []struct {
		text   string
		reason string
	}{
		{"ok", string(admission.ReasonTooShort)},
		{"شركة فاشل ومحتال", string(admission.ReasonUnwanted)},
		{"رائع جداً", string(admission.ReasonPraise)},
		{"صباح الخير يا جماعة", string(admission.ReasonNoInterest)},
	}
	for _, tt := range tests {
		out, err := h.r.HandleComment(context.Background(), "c-"+tt.reason, tt.text)
		require.NoError(t, err)
		assert.True(t, out.Skipped, tt.text)
		assert.Equal(t, tt.reason, out.SkipReason, tt.text)
	}
	assert.Empty(t, h.comments.sent)
}

func TestHandleCommentRateLimited(t *testing.T) {
	h := newHarness(t, setup{perMinute: 1})
	ctx := context.Background()

	first, err := h.r.HandleComment(ctx, "c1", "أين مقركم؟")
	require.NoError(t, err)
	assert.False(t, first.Skipped)

	second, err := h.r.HandleComment(ctx, "c2", "أين مقركم؟")
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, SkipRateLimited, second.SkipReason)
}

func TestProcessCommentsKeepsOrder(t *testing.T) {
	h := newHarness(t, setup{})
	comments := []models.Comment{
		{ID: "c1", Text: "عايز شغل في المصنع"},
		{ID: "", Text: "أين مقركم؟"},
		{ID: "c3", Text: "   "},
		{ID: "c4", Text: "رائع جداً"},
		{ID: "c5", Text: "أريد الاستثمار معكم في مشروع"},
	}
	outs, err := h.r.ProcessComments(context.Background(), comments, 2)
	require.NoError(t, err)
	require.Len(t, outs, len(comments))

	assert.False(t, outs[0].Skipped)
	assert.Equal(t, "c1", outs[0].SenderID)
	assert.Equal(t, SkipEmpty, outs[1].SkipReason)
	assert.Equal(t, SkipEmpty, outs[2].SkipReason)
	assert.True(t, outs[3].Skipped)
	assert.False(t, outs[4].Skipped)
	assert.Equal(t, "c5", outs[4].SenderID)
	assert.Len(t, h.comments.messages("c1"), 1)
	assert.Len(t, h.comments.messages("c5"), 1)
}

func TestConcurrentTurnsForOneSenderAreSerialized(t *testing.T) {
	h := newHarness(t, setup{})
	ctx := context.Background()
	const n = 20

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.r.HandleMessage(ctx, "same", aboutQuestion)
		}()
	}
	wg.Wait()

	st, err := h.r.Session("same", models.ChannelPrivate)
	require.NoError(t, err)
	assert.Len(t, st.History, n)
}

func TestCancelledContextIsReported(t *testing.T) {
	h := newHarness(t, setup{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.r.HandleMessage(ctx, "u1", aboutQuestion)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStats(t *testing.T) {
	h := newHarness(t, setup{})
	ctx := context.Background()
	_, err := h.r.HandleMessage(ctx, "u1", aboutQuestion)
	require.NoError(t, err)
	_, err = h.r.HandleMessage(ctx, "u2", aboutQuestion)
	require.NoError(t, err)

	stats, err := h.r.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Turns.TotalTurns)
	assert.EqualValues(t, 2, stats.Turns.Senders)
	assert.Equal(t, 2, stats.ActiveSessions)
	assert.Positive(t, stats.Sources[string(models.SourceKnowledge)])
}
