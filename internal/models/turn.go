package models

import "time"

// Turn is the persisted record of one processed inbound message.
type Turn struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	Channel   Channel   `json:"channel"`
	Inbound   string    `json:"inbound"`
	Outbound  string    `json:"outbound"`
	Source    Source    `json:"source"`
	Category  Category  `json:"category,omitempty"`
	Stage     Stage     `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
}

// TurnStats holds summary statistics about the turn log.
type TurnStats struct {
	TotalTurns int64            `json:"total_turns"`
	Senders    int64            `json:"senders"`
	ByChannel  map[string]int64 `json:"by_channel"`
	BySource   map[string]int64 `json:"by_source"`
	ByCategory map[string]int64 `json:"by_category"`
	Oldest     *time.Time       `json:"oldest,omitempty"`
	Newest     *time.Time       `json:"newest,omitempty"`
}
