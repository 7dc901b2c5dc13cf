package chat

import "time"

// Conversation is the bulk-save aggregate. The live send/receive path works
// on flat messages; this shape exists for whole-conversation exports.
type Conversation struct {
	ID           string    `json:"id,omitempty"`
	UserID       string    `json:"userId"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	Title        string    `json:"title,omitempty"`
}
