package models

// KnowledgeItem is one curated question/answer pair.
type KnowledgeItem struct {
	ID       string `yaml:"id" json:"id"`
	Question string `yaml:"question" json:"question"`
	Answer   string `yaml:"answer" json:"answer"`
}

// ServicePointer is a node of the service catalog. Leaves must carry a URL.
type ServicePointer struct {
	ID          string           `yaml:"id" json:"id"`
	Title       string           `yaml:"title" json:"title"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Pitch       string           `yaml:"pitch,omitempty" json:"pitch,omitempty"`
	Details     string           `yaml:"details,omitempty" json:"details,omitempty"`
	URL         string           `yaml:"url,omitempty" json:"url,omitempty"`
	Icon        string           `yaml:"icon,omitempty" json:"icon,omitempty"`
	Submenu     []ServicePointer `yaml:"submenu,omitempty" json:"submenu,omitempty"`
}

// IsLeaf reports whether the node has no children.
func (s ServicePointer) IsLeaf() bool {
	return len(s.Submenu) == 0
}

// Comment is an inbound public comment.
type Comment struct {
	ID       string `json:"id"`
	SenderID string `json:"sender_id"`
	Text     string `json:"message"`
}
