package message

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/elimuconnect/elimu/core"
)

// Message is immutable once sent; only the receiver flips the read flag.
type Message struct {
	ID           string    `json:"id"`
	SenderID     string    `json:"sender_id"`
	SenderName   string    `json:"sender_name"`
	ReceiverID   string    `json:"receiver_id"`
	ReceiverName string    `json:"receiver_name"`
	Content      string    `json:"content"`
	Read         bool      `json:"read"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

// Conversation is a derived aggregate keyed by the other participant; it is
// recomputed from the message stream on every list call, never persisted.
type Conversation struct {
	PartnerID       string    `json:"partner_id"`
	PartnerName     string    `json:"partner_name"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
	UnreadCount     int       `json:"unread_count"`
}

// Inbox is the conversation-list payload.
type Inbox struct {
	Conversations []Conversation `json:"conversations"`
	TotalUnread   int            `json:"total_unread"`
}

// Page is one newest-first slice of a two-party thread.
type Page struct {
	Content []Message `json:"content"`
	Page    int       `json:"page"`
	Size    int       `json:"size"`
	Total   int       `json:"total"`
}

// NewMessage contains information needed to send a Message.
type NewMessage struct {
	ReceiverID string `json:"receiver_id" validate:"required"`
	Content    string `json:"content" validate:"required,max=2000"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.ReceiverID = core.CleanString(nm.ReceiverID)
	nm.Content = core.CleanString(nm.Content)
	return validate.Struct(nm)
}
