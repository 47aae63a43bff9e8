// Package responder runs complete turns: admission, dialogue state,
// orchestration, post-processing, delivery and persistence.
package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/omalmisr/omal-responder/internal/admission"
	"github.com/omalmisr/omal-responder/internal/delivery"
	"github.com/omalmisr/omal-responder/internal/dialogue"
	"github.com/omalmisr/omal-responder/internal/metrics"
	"github.com/omalmisr/omal-responder/internal/models"
	"github.com/omalmisr/omal-responder/internal/orchestrator"
	"github.com/omalmisr/omal-responder/internal/postprocess"
	"github.com/omalmisr/omal-responder/internal/templates"
	"github.com/omalmisr/omal-responder/internal/turnlog"
	"github.com/omalmisr/omal-responder/pkg/textutil"
)

// Skip reasons reported for comments that get no reply.
const (
	SkipRateLimited = "rate_limited"
	SkipEmpty       = "empty"
)

// Deps are the responder's collaborators. Messages and Comments default
// to delivery.Nop, Turns to an in-memory store and Limiter to no limit.
type Deps struct {
	Engine   *orchestrator.Engine
	Pipeline *postprocess.Pipeline
	Sessions *dialogue.Store
	Library  *templates.Library
	Filter   *admission.Filter
	Limiter  *admission.RateLimiter
	Messages delivery.Deliverer
	Comments delivery.Deliverer
	Turns    turnlog.Store
	Logger   *slog.Logger
}

// Options tunes turn handling.
type Options struct {
	// ClearOnFarewell drops a session once the user has said goodbye.
	ClearOnFarewell bool
}

// Responder is safe for concurrent use. Turns for one sender are
// serialized by the session store; turns for different senders run in
// parallel.
type Responder struct {
	engine   *orchestrator.Engine
	pipeline *postprocess.Pipeline
	sessions *dialogue.Store
	lib      *templates.Library
	filter   *admission.Filter
	limiter  *admission.RateLimiter
	messages delivery.Deliverer
	comments delivery.Deliverer
	turns    turnlog.Store
	opts     Options
	logger   *slog.Logger
}

// New creates a responder.
func New(d Deps, opts Options) *Responder {
	r := &Responder{
		engine:   d.Engine,
		pipeline: d.Pipeline,
		sessions: d.Sessions,
		lib:      d.Library,
		filter:   d.Filter,
		limiter:  d.Limiter,
		messages: d.Messages,
		comments: d.Comments,
		turns:    d.Turns,
		opts:     opts,
		logger:   d.Logger,
	}
	if r.messages == nil {
		r.messages = delivery.Nop{}
	}
	if r.comments == nil {
		r.comments = delivery.Nop{}
	}
	if r.turns == nil {
		r.turns = turnlog.NewMemoryStore()
	}
	if r.limiter == nil {
		r.limiter = admission.NewRateLimiter(0)
	}
	return r
}

// TurnOutcome describes one handled message.
type TurnOutcome struct {
	TurnID         string                 `json:"turn_id,omitempty"`
	SenderID       string                 `json:"sender_id"`
	Channel        models.Channel         `json:"channel"`
	Reply          string                 `json:"reply,omitempty"`
	Source         models.Source          `json:"source,omitempty"`
	Category       models.Category        `json:"category,omitempty"`
	Stage          models.Stage           `json:"stage,omitempty"`
	Service        *models.ServicePointer `json:"service,omitempty"`
	Confidence     float64                `json:"confidence,omitempty"`
	Delivered      bool                   `json:"delivered"`
	SessionCleared bool                   `json:"session_cleared,omitempty"`
	Skipped        bool                   `json:"skipped,omitempty"`
	SkipReason     string                 `json:"skip_reason,omitempty"`

	inbound string
}

// HandleMessage answers a private message from senderID. The returned
// error reports delivery failure only; the outcome is always populated.
func (r *Responder) HandleMessage(ctx context.Context, senderID, text string) (*TurnOutcome, error) {
	out, err := r.turn(ctx, senderID, models.ChannelPrivate, text, func(reply string, first bool, src models.Source) string {
		if first && src != models.SourceNamePrompt && !r.lib.StartsWithGreeting(reply) {
			return r.lib.Greeting(models.ChannelPrivate) + "\n\n" + reply
		}
		return reply
	})
	if err != nil {
		return out, err
	}
	return out, r.finish(ctx, out, r.messages, senderID)
}

// HandleComment answers a public comment. Each comment gets a
// single-turn session, so comments never wait for a name. Comments rejected by the
// admission filter or the rate limit come back with Skipped set.
func (r *Responder) HandleComment(ctx context.Context, commentID, text string) (*TurnOutcome, error) {
	metrics.Inc(metrics.CommentsProcessed)
	skip := func(reason string) (*TurnOutcome, error) {
		metrics.Inc(metrics.CommentsIgnored)
		r.logger.Debug("responder: comment skipped", "comment_id", commentID, "reason", reason)
		return &TurnOutcome{SenderID: commentID, Channel: models.ChannelPublic, Skipped: true, SkipReason: reason}, nil
	}
	if commentID == "" {
		return skip(SkipEmpty)
	}
	decision := r.filter.Evaluate(text)
	if !decision.Respond {
		return skip(string(decision.Reason))
	}
	if !r.limiter.Allow() {
		metrics.Inc(metrics.CommentsRateLimited)
		return skip(SkipRateLimited)
	}

	out, err := r.turn(ctx, commentID, models.ChannelPublic, text, func(reply string, _ bool, _ models.Source) string {
		return r.lib.Greeting(models.ChannelPublic) + "\n\n" + reply
	})
	// A comment is answered once; its session is not needed afterwards.
	_ = r.sessions.Clear(commentID, models.ChannelPublic)
	if err != nil {
		return out, err
	}
	if err := r.finish(ctx, out, r.comments, commentID); err != nil {
		return out, err
	}
	category := decision.Category
	if category == "" {
		category = out.Category
	}
	key := string(category)
	if key == "" {
		key = "general"
	}
	metrics.Inc(metrics.CommentsResponded)
	metrics.IncKey(metrics.CommentsByCategory, key)
	return out, nil
}

// decorate adds channel framing to the raw reply before post-processing.
type decorate func(reply string, firstTurn bool, src models.Source) string

// turn runs the state-holding part of a turn under the sender's lock.
func (r *Responder) turn(ctx context.Context, senderID string, ch models.Channel, text string, deco decorate) (*TurnOutcome, error) {
	out := &TurnOutcome{SenderID: senderID, Channel: ch, inbound: text}
	err := r.sessions.WithSession(ctx, senderID, ch, func(state *models.UserDialogueState) error {
		first := len(state.History) == 0
		reply := r.engine.Respond(ctx, text, state)

		name := state.DisplayName
		if name == "" && reply.Updates.DisplayName != nil {
			name = *reply.Updates.DisplayName
		}
		final := r.pipeline.Process(deco(reply.Text, first, reply.Source), postprocess.Context{
			DisplayName: name,
			Category:    reply.Category,
			FollowUp:    reply.FollowUp(),
		})
		r.engine.Commit(state, text, final, reply)

		out.Reply = final
		out.Source = reply.Source
		out.Category = state.DetectedCategory
		out.Stage = state.Stage
		out.Service = reply.Service
		out.Confidence = reply.Confidence
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("session %s: %w", senderID, err)
	}

	metrics.Inc(metrics.TurnsTotal)
	metrics.IncKey(metrics.TurnsBySource, string(out.Source))
	if out.Source == models.SourceTemplate || out.Source == models.SourceLocalKnowledge {
		metrics.Inc(metrics.CompletionFailures)
	}
	if out.Source == models.SourceFarewell && r.opts.ClearOnFarewell {
		if err := r.sessions.Clear(senderID, ch); err == nil {
			out.SessionCleared = true
			metrics.Inc(metrics.SessionsCleared)
		}
	}
	r.logger.Info("responder: turn complete",
		"sender", senderID, "channel", ch, "source", out.Source, "stage", out.Stage,
		"text", textutil.Truncate(text, 60))
	return out, nil
}

// finish delivers the reply and then persists the turn. Persistence
// failures are logged and never fail the turn.
func (r *Responder) finish(ctx context.Context, out *TurnOutcome, d delivery.Deliverer, recipientID string) error {
	deliverErr := d.Deliver(ctx, recipientID, out.Reply)
	if deliverErr != nil {
		metrics.Inc(metrics.DeliveryFailures)
		r.logger.Error("responder: delivery failed", "recipient", recipientID, "channel", out.Channel, "error", deliverErr)
	} else {
		out.Delivered = true
	}
	r.persist(ctx, out)
	if deliverErr != nil {
		return fmt.Errorf("deliver to %s: %w", recipientID, deliverErr)
	}
	return nil
}

func (r *Responder) persist(ctx context.Context, out *TurnOutcome) {
	out.TurnID = uuid.New().String()
	turn := models.Turn{
		ID:        out.TurnID,
		SenderID:  out.SenderID,
		Channel:   out.Channel,
		Inbound:   out.inbound,
		Outbound:  out.Reply,
		Source:    out.Source,
		Category:  out.Category,
		Stage:     out.Stage,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.turns.Append(context.WithoutCancel(ctx), turn); err != nil {
		metrics.Inc(metrics.PersistFailures)
		r.logger.Error("responder: persisting turn failed", "turn_id", turn.ID, "error", err)
	}
}

// Session returns a copy of a sender's dialogue state.
func (r *Responder) Session(senderID string, ch models.Channel) (*models.UserDialogueState, error) {
	return r.sessions.Get(senderID, ch)
}

// ClearSession forgets a sender's dialogue state.
func (r *Responder) ClearSession(senderID string, ch models.Channel) error {
	if err := r.sessions.Clear(senderID, ch); err != nil {
		return err
	}
	metrics.Inc(metrics.SessionsCleared)
	return nil
}

// Stats aggregates persisted and in-process counters.
type Stats struct {
	Turns          *models.TurnStats    `json:"turns"`
	Comments       metrics.CommentStats `json:"comments"`
	Sources        map[string]int64     `json:"sources"`
	ActiveSessions int                  `json:"active_sessions"`
}

// Stats reports turn-log statistics with the live counters.
func (r *Responder) Stats(ctx context.Context) (*Stats, error) {
	ts, err := r.turns.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("turn stats: %w", err)
	}
	return &Stats{
		Turns:          ts,
		Comments:       metrics.Comments(),
		Sources:        metrics.Sources(),
		ActiveSessions: r.sessions.Len(),
	}, nil
}

// IsSessionNotFound reports whether err means the session does not exist.
func IsSessionNotFound(err error) bool {
	return errors.Is(err, dialogue.ErrSessionNotFound)
}
