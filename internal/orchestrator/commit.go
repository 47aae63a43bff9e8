package orchestrator

import "github.com/omalmisr/omal-responder/internal/models"

// Commit applies a reply to the sender's state and appends the turn to
// its history. outbound is the text actually sent, after
// post-processing. It enforces the state invariants: the display name
// and category are set at most once, public sessions never wait for a
// name, and no session returns to AWAITING_NAME.
func (e *Engine) Commit(state *models.UserDialogueState, inbound, outbound string, reply models.Reply) {
	now := e.now()
	u := reply.Updates
	if u.NameAsked != nil {
		state.NameAsked = *u.NameAsked
	}
	if u.DisplayName != nil && state.DisplayName == "" {
		state.DisplayName = *u.DisplayName
	}
	if u.LastMatchedItemID != nil {
		state.LastMatchedItemID = *u.LastMatchedItemID
	}
	if u.DetectedCategory != nil && state.DetectedCategory == "" {
		state.DetectedCategory = *u.DetectedCategory
	}
	if u.Ended != nil {
		state.Ended = *u.Ended
	}

	next := reply.NextStage
	switch {
	case !next.IsValid():
		next = state.Stage
	case next == models.StageAwaitingName && (state.Channel == models.ChannelPublic || state.Stage != models.StageAwaitingName):
		next = state.Stage
	}
	if next == models.StageAwaitingName && state.Channel == models.ChannelPublic {
		next = models.StageActive
	}
	state.Stage = next

	state.History = append(state.History, models.HistoryEntry{
		Timestamp: now,
		Inbound:   inbound,
		Outbound:  outbound,
		Source:    reply.Source,
	})
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.UpdatedAt = now
}
