package chat

import "time"

// Kind discriminates who authored a message.
type Kind string

const (
	KindUser      Kind = "user"
	KindAssistant Kind = "assistant"
)

// Status reflects the persistence/delivery state of a message, not a
// delivery guarantee.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusError     Status = "error"
	StatusTemporary Status = "temporary"
)

// Message is a single conversation turn. ID is assigned by the store once
// persisted and stays empty for optimistic, local-only messages.
type Message struct {
	ID      string    `json:"id,omitempty"`
	UserID  string    `json:"userId"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sentAt"`
	Kind    Kind      `json:"kind"`
	Status  Status    `json:"status,omitempty"`
}
