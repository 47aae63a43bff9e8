package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/omalmisr/omal-responder/internal/admission"
	"github.com/omalmisr/omal-responder/internal/catalog"
	"github.com/omalmisr/omal-responder/internal/classifier"
	"github.com/omalmisr/omal-responder/internal/completion"
	"github.com/omalmisr/omal-responder/internal/delivery"
	"github.com/omalmisr/omal-responder/internal/dialogue"
	"github.com/omalmisr/omal-responder/internal/knowledge"
	"github.com/omalmisr/omal-responder/internal/orchestrator"
	"github.com/omalmisr/omal-responder/internal/postprocess"
	"github.com/omalmisr/omal-responder/internal/responder"
	"github.com/omalmisr/omal-responder/internal/services"
	"github.com/omalmisr/omal-responder/internal/templates"
	"github.com/omalmisr/omal-responder/internal/turnlog"
)

// app is the fully wired engine shared by the commands.
type app struct {
	catalog    *catalog.Catalog
	classifier *classifier.KeywordClassifier
	matcher    *knowledge.Matcher
	detector   *services.Detector
	menu       *services.Menu
	filter     *admission.Filter
	completer  completion.Completer
	turns      turnlog.Store
	responder  *responder.Responder
	closers    []io.Closer
}

// appOptions selects the outbound side of the wiring.
type appOptions struct {
	// messages and comments override the configured deliverers.
	messages delivery.Deliverer
	comments delivery.Deliverer
	// memoryTurns keeps the turn log in memory instead of SQLite.
	memoryTurns bool
	// oneShot skips name collection for single-message commands.
	oneShot bool
}

func loadCatalog() (*catalog.Catalog, error) {
	if cfg.Catalog.Path == "" {
		return catalog.Default()
	}
	return catalog.Load(cfg.Catalog.Path)
}

// newCompleter builds the primary provider with retries, plus the
// fallback provider when configured.
func newCompleter(ctx context.Context, logger *slog.Logger) (completion.Completer, []io.Closer, error) {
	var closers []io.Closer
	build := func(s completion.Settings) (completion.Completer, error) {
		c, err := completion.New(ctx, s, logger)
		if err != nil {
			return nil, err
		}
		if cl, ok := c.(io.Closer); ok {
			closers = append(closers, cl)
		}
		return completion.NewRetrying(c, cfg.Completion.Timeout, cfg.Completion.MaxAttempts, cfg.Completion.RetryDelay, logger), nil
	}

	primary, err := build(cfg.Completion.Primary())
	if err != nil {
		return nil, closers, fmt.Errorf("completion provider: %w", err)
	}
	fb, ok := cfg.Completion.Fallback()
	if !ok {
		return primary, closers, nil
	}
	secondary, err := build(fb)
	if err != nil {
		return nil, closers, fmt.Errorf("fallback completion provider: %w", err)
	}
	return completion.NewFailover(primary, secondary, logger), closers, nil
}

func newApp(ctx context.Context, logger *slog.Logger, opts appOptions) (*app, error) {
	cat, err := loadCatalog()
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	a := &app{catalog: cat}
	a.completer, a.closers, err = newCompleter(ctx, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	if opts.memoryTurns {
		a.turns = turnlog.NewMemoryStore()
	} else {
		st, openErr := turnlog.OpenSQLite(ctx, cfg.Storage.DBPath)
		if openErr != nil {
			a.Close()
			return nil, fmt.Errorf("opening turn log: %w", openErr)
		}
		a.turns = st
	}
	a.closers = append(a.closers, a.turns)

	lib := templates.NewLibrary(cat, templates.RandomSelector{})
	a.classifier = classifier.NewClassifier(cat, logger)
	a.matcher = knowledge.NewMatcher(cat.Knowledge, logger)
	a.detector = services.NewDetector(cat, logger)
	a.menu = services.NewMenu(cat)
	a.filter = admission.NewFilter(cat.Comments, cfg.Comments.MinLength, cfg.Comments.IgnorePraise, logger)

	engine := orchestrator.NewEngine(orchestrator.Deps{
		Catalog:    cat,
		Classifier: a.classifier,
		Matcher:    a.matcher,
		Detector:   a.detector,
		Lexicon:    dialogue.NewLexicon(cat.Dialogue),
		Library:    lib,
		Completer:  a.completer,
		Logger:     logger,
	}, orchestrator.Options{
		Threshold:             cfg.Engine.SimilarityThreshold,
		RelaxedThreshold:      cfg.Engine.RelaxedThreshold,
		ContinuationPrompting: cfg.Engine.ContinuationPrompting,
		GroundingSamples:      cfg.Engine.GroundingSamples,
	})

	messages, comments := opts.messages, opts.comments
	if messages == nil {
		messages = graphDeliverer(delivery.KindMessage, logger)
	}
	if comments == nil {
		comments = graphDeliverer(delivery.KindComment, logger)
	}

	a.responder = responder.New(responder.Deps{
		Engine:   engine,
		Pipeline: postprocess.NewPipeline(cat, lib, logger),
		Sessions: dialogue.NewStore(cfg.Engine.NameCollection && !opts.oneShot),
		Library:  lib,
		Filter:   a.filter,
		Limiter:  admission.NewRateLimiter(cfg.Comments.MaxPerMinute),
		Messages: messages,
		Comments: comments,
		Turns:    a.turns,
		Logger:   logger,
	}, responder.Options{ClearOnFarewell: cfg.Engine.ClearOnFarewell})

	return a, nil
}

// graphDeliverer sends through the Graph API when a page token is set
// and discards replies otherwise.
func graphDeliverer(kind delivery.Kind, logger *slog.Logger) delivery.Deliverer {
	if cfg.Delivery.PageToken == "" {
		return delivery.Nop{}
	}
	return delivery.NewGraphSenderWithURL(cfg.Delivery.GraphURL, cfg.Delivery.PageToken, kind, cfg.Delivery.Timeout, logger)
}

// Close releases the turn log and provider clients.
func (a *app) Close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
}
