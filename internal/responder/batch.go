package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/omalmisr/omal-responder/internal/models"
)

// DefaultBatchConcurrency bounds parallel comment turns in a batch.
const DefaultBatchConcurrency = 4

// ProcessComments handles a batch of comments with bounded parallelism.
// Outcomes are returned in input order; comments with an empty id or
// text are skipped. Every comment is attempted, and per-comment errors
// are joined into the returned error.
func (r *Responder) ProcessComments(ctx context.Context, comments []models.Comment, concurrency int) ([]*TurnOutcome, error) {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	outcomes := make([]*TurnOutcome, len(comments))
	errs := make([]error, len(comments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, c := range comments {
		if c.ID == "" || strings.TrimSpace(c.Text) == "" {
			outcomes[i] = &TurnOutcome{SenderID: c.ID, Channel: models.ChannelPublic, Skipped: true, SkipReason: SkipEmpty}
			continue
		}
		g.Go(func() error {
			out, err := r.HandleComment(gctx, c.ID, c.Text)
			outcomes[i] = out
			if err != nil {
				errs[i] = fmt.Errorf("comment %s: %w", c.ID, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, errors.Join(errs...)
}
