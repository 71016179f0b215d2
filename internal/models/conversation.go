package models

// MessageRole identifies who authored a chat message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Conversation is a user-owned chat thread, optionally scoped to a podcast
// or a single episode.
type Conversation struct {
	Base
	UserID    string  `json:"user_id" gorm:"not null;index"`
	Title     string  `json:"title"`
	PodcastID *string `json:"podcast_id,omitempty"`
	EpisodeID *string `json:"episode_id,omitempty"`

	Messages []ChatMessage `json:"messages,omitempty" gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

// ChatMessage is one turn in a conversation, with structured citations for
// assistant turns.
type ChatMessage struct {
	Base
	ConversationID string       `json:"conversation_id" gorm:"not null;index"`
	Role           MessageRole  `json:"role" gorm:"not null"`
	Content        string       `json:"content" gorm:"type:text"`
	Citations      CitationList `json:"citations" gorm:"type:text"`
}
