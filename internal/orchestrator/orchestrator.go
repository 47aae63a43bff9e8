// Package orchestrator runs the fallback chain that turns one inbound
// message and the sender's dialogue state into a reply.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/omalmisr/omal-responder/internal/catalog"
	"github.com/omalmisr/omal-responder/internal/classifier"
	"github.com/omalmisr/omal-responder/internal/completion"
	"github.com/omalmisr/omal-responder/internal/dialogue"
	"github.com/omalmisr/omal-responder/internal/knowledge"
	"github.com/omalmisr/omal-responder/internal/models"
	"github.com/omalmisr/omal-responder/internal/services"
	"github.com/omalmisr/omal-responder/internal/templates"
	"github.com/omalmisr/omal-responder/pkg/textutil"
)

// logPrefixRunes bounds how much user text reaches the logs.
const logPrefixRunes = 60

// Options tunes the fallback chain.
type Options struct {
	// Threshold is the minimum knowledge confidence for a direct answer.
	Threshold float64
	// RelaxedThreshold is the floor for reusing a weak knowledge match
	// once the completion service has failed. Zero accepts any match that
	// shares at least one word with the message.
	RelaxedThreshold float64
	// ContinuationPrompting moves answered conversations to
	// AWAITING_CONTINUATION.
	ContinuationPrompting bool
	// GroundingSamples is the number of knowledge entries sent to the
	// completion service as context.
	GroundingSamples int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Threshold:             knowledge.DefaultThreshold,
		RelaxedThreshold:      0.3,
		ContinuationPrompting: true,
		GroundingSamples:      3,
	}
}

// Deps are the engine's collaborators. Completer may be nil, in which
// case step 4 always falls through to local recovery.
type Deps struct {
	Catalog    *catalog.Catalog
	Classifier classifier.Classifier
	Matcher    *knowledge.Matcher
	Detector   *services.Detector
	Lexicon    *dialogue.Lexicon
	Library    *templates.Library
	Completer  completion.Completer
	Logger     *slog.Logger
}

// Engine is safe for concurrent use; it holds no per-sender state.
type Engine struct {
	cat          *catalog.Catalog
	classifier   classifier.Classifier
	matcher      *knowledge.Matcher
	detector     *services.Detector
	lexicon      *dialogue.Lexicon
	lib          *templates.Library
	completer    completion.Completer
	humanContact []textutil.Phrase
	opts         Options
	logger       *slog.Logger
	now          func() time.Time
}

// NewEngine wires an engine.
func NewEngine(d Deps, opts Options) *Engine {
	c := d.Completer
	if c == nil {
		c = completion.Disabled{}
	}
	return &Engine{
		cat:          d.Catalog,
		classifier:   d.Classifier,
		matcher:      d.Matcher,
		detector:     d.Detector,
		lexicon:      d.Lexicon,
		lib:          d.Library,
		completer:    c,
		humanContact: textutil.CompilePhrases(d.Catalog.HumanContactKeywords),
		opts:         opts,
		logger:       d.Logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Respond produces the reply for text given the sender's current state.
// It never fails: every path, including a panic, ends in a non-empty
// reply. state is read but not modified; apply the result with Commit.
func (e *Engine) Respond(ctx context.Context, text string, state *models.UserDialogueState) (reply models.Reply) {
	if state == nil {
		state = &models.UserDialogueState{Stage: models.StageActive}
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("orchestrator: recovered panic", "panic", fmt.Sprint(r), "sender", state.SenderID)
			reply = e.recovery(text, state)
		}
	}()

	switch state.Stage {
	case models.StageAwaitingName:
		if state.Channel != models.ChannelPublic {
			return e.collectName(text, state)
		}
	case models.StageAwaitingContinuation:
		if e.lexicon.ClassifyContinuation(text) == dialogue.IntentEnd {
			return e.farewell(state)
		}
	}
	return e.answer(ctx, text, state)
}

func (e *Engine) collectName(text string, state *models.UserDialogueState) models.Reply {
	if !state.NameAsked {
		asked := true
		return models.Reply{
			Text:      e.lib.NamePrompt(),
			NextStage: models.StageAwaitingName,
			Updates:   models.StateUpdates{NameAsked: &asked},
			Source:    models.SourceNamePrompt,
		}
	}
	name := e.lexicon.ExtractDisplayName(text)
	e.logger.Debug("orchestrator: captured display name", "sender", state.SenderID)
	return models.Reply{
		Text:      e.lib.NameWelcome(name),
		NextStage: models.StageActive,
		Updates:   models.StateUpdates{DisplayName: &name},
		Source:    models.SourceNameCaptured,
	}
}

func (e *Engine) farewell(state *models.UserDialogueState) models.Reply {
	ended := true
	return models.Reply{
		Text:      e.lib.Farewell(),
		NextStage: models.StageAwaitingContinuation,
		Updates:   models.StateUpdates{Ended: &ended},
		Source:    models.SourceFarewell,
		Category:  state.DetectedCategory,
	}
}

// answer runs steps 2 to 6 of the chain.
func (e *Engine) answer(ctx context.Context, text string, state *models.UserDialogueState) models.Reply {
	reply := models.Reply{NextStage: e.nextStage()}
	if state.Ended {
		ended := false
		reply.Updates.Ended = &ended
	}

	category := state.DetectedCategory
	if category == "" {
		if detected := e.classifier.Classify(text); detected != "" {
			category = detected
			reply.Updates.DetectedCategory = &detected
		}
	}
	reply.Category = category

	svc := e.detector.Detect(text)
	reply.Service = svc
	match := e.matcher.Search(text)
	reply.Confidence = match.Confidence
	confident := match.Item != nil && match.Confidence >= e.opts.Threshold

	switch {
	case svc != nil:
		reply.Source = models.SourceService
		reply.Text = e.lib.ServiceReply(*svc)
		if confident {
			reply.Text = match.Item.Answer + "\n\n" + reply.Text
			reply.Updates.LastMatchedItemID = &match.Item.ID
		}
	case confident:
		reply.Source = models.SourceKnowledge
		reply.Text = match.Item.Answer
		reply.Updates.LastMatchedItemID = &match.Item.ID
	default:
		out, err := e.complete(ctx, text, category, state.DisplayName)
		if err == nil {
			reply.Source = models.SourceCompletion
			reply.Text = out
			break
		}
		e.logger.Warn("orchestrator: completion failed, using local recovery",
			"error", err, "sender", state.SenderID, "text", textutil.Truncate(text, logPrefixRunes))
		if match.Item != nil && match.Confidence >= e.opts.RelaxedThreshold {
			reply.Source = models.SourceLocalKnowledge
			reply.Text = match.Item.Answer
			reply.Updates.LastMatchedItemID = &match.Item.ID
		} else {
			reply.Source = models.SourceTemplate
			reply.Text = e.lib.Recovery(text, category, state.DisplayName)
		}
	}

	if strings.TrimSpace(reply.Text) == "" {
		reply.Source = models.SourceTemplate
		reply.Text = e.lib.Recovery(text, category, state.DisplayName)
	}
	if svc != nil && !strings.Contains(reply.Text, svc.URL) {
		reply.Text += "\n\nلمزيد من المعلومات: " + svc.URL
	}
	if e.wantsHuman(text) && !strings.Contains(reply.Text, e.cat.Contact.Phone) {
		reply.Text += "\n\n" + e.lib.HumanContact()
	}

	e.logger.Debug("orchestrator: reply chosen",
		"source", reply.Source, "category", category, "confidence", match.Confidence,
		"text", textutil.Truncate(text, logPrefixRunes))
	return reply
}

// complete runs step 4. Any failure, including a panic in the client or
// an empty reply, is reported as an error so the caller falls through.
func (e *Engine) complete(ctx context.Context, text string, category models.Category, name string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("completion panicked: %v: %w", r, completion.ErrUpstreamUnavailable)
		}
	}()
	prompt, system := e.buildPrompt(text, category, name)
	out, err = e.completer.Complete(ctx, prompt, system)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("empty completion: %w", completion.ErrUpstreamRejected)
	}
	return strings.TrimSpace(out), nil
}

// recovery is the reply used after a panic. If the template library
// itself fails, a fixed apology with the phone number is returned.
func (e *Engine) recovery(text string, state *models.UserDialogueState) (out models.Reply) {
	out = models.Reply{
		Text:      "نعتذر، لم نتمكن من معالجة رسالتك الآن. للتواصل معنا: " + e.cat.Contact.Phone,
		NextStage: state.Stage,
		Source:    models.SourceTemplate,
		Category:  state.DetectedCategory,
	}
	if !out.NextStage.IsValid() {
		out.NextStage = models.StageActive
	}
	defer func() { _ = recover() }()
	out.Text = e.lib.Recovery(text, state.DetectedCategory, state.DisplayName)
	return out
}

func (e *Engine) nextStage() models.Stage {
	if e.opts.ContinuationPrompting {
		return models.StageAwaitingContinuation
	}
	return models.StageActive
}

func (e *Engine) wantsHuman(text string) bool {
	return textutil.ContainsAny(textutil.Tokenize(text), e.humanContact)
}
