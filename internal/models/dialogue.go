package models

import "time"

// Stage is the position of a conversation in the dialogue state machine.
type Stage string

const (
	StageAwaitingName         Stage = "awaiting_name"
	StageActive               Stage = "active"
	StageAwaitingContinuation Stage = "awaiting_continuation"
)

// IsValid returns true if the stage is recognized.
func (s Stage) IsValid() bool {
	switch s {
	case StageAwaitingName, StageActive, StageAwaitingContinuation:
		return true
	}
	return false
}

// HistoryEntry records one completed turn.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Inbound   string    `json:"inbound"`
	Outbound  string    `json:"outbound"`
	Source    Source    `json:"source"`
}

// UserDialogueState is the per-sender conversation state. Empty string
// fields mean "unset".
type UserDialogueState struct {
	SenderID          string         `json:"sender_id"`
	Channel           Channel        `json:"channel"`
	Stage             Stage          `json:"stage"`
	NameAsked         bool           `json:"name_asked"`
	DisplayName       string         `json:"display_name,omitempty"`
	LastMatchedItemID string         `json:"last_matched_item_id,omitempty"`
	DetectedCategory  Category       `json:"detected_category,omitempty"`
	Ended             bool           `json:"ended"`
	History           []HistoryEntry `json:"history"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Clone returns a deep copy.
func (s *UserDialogueState) Clone() *UserDialogueState {
	if s == nil {
		return nil
	}
	cp := *s
	if s.History != nil {
		cp.History = make([]HistoryEntry, len(s.History))
		copy(cp.History, s.History)
	}
	return &cp
}
