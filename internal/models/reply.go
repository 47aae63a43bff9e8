package models

// Source names the stage of the fallback chain that produced a reply.
type Source string

const (
	SourceNamePrompt     Source = "name_prompt"
	SourceNameCaptured   Source = "name_captured"
	SourceFarewell       Source = "farewell"
	SourceService        Source = "service_link"
	SourceKnowledge      Source = "knowledge"
	SourceCompletion     Source = "completion"
	SourceLocalKnowledge Source = "local_knowledge"
	SourceTemplate       Source = "template"
)

// StateUpdates lists the dialogue fields a reply wants changed. Nil
// pointers leave the field untouched.
type StateUpdates struct {
	NameAsked         *bool     `json:"name_asked,omitempty"`
	DisplayName       *string   `json:"display_name,omitempty"`
	LastMatchedItemID *string   `json:"last_matched_item_id,omitempty"`
	DetectedCategory  *Category `json:"detected_category,omitempty"`
	Ended             *bool     `json:"ended,omitempty"`
}

// Reply is the orchestrator's output for one inbound message, before
// post-processing.
type Reply struct {
	Text       string          `json:"text"`
	NextStage  Stage           `json:"next_stage"`
	Updates    StateUpdates    `json:"updates"`
	Source     Source          `json:"source"`
	Category   Category        `json:"category,omitempty"`
	Service    *ServicePointer `json:"service,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
}

// FollowUp reports whether the reply should close with a follow-up
// question, whatever the next stage. Every answer does; the name exchange
// and the farewell do not.
func (r Reply) FollowUp() bool {
	switch r.Source {
	case "", SourceNamePrompt, SourceNameCaptured, SourceFarewell:
		return false
	}
	return true
}
