package domain

import "time"

// Message is a single direct message between two users. Either Text or
// Image (a durable upload URL) is set; both may be.
type Message struct {
	ID         string    `json:"_id"`
	Seq        int64     `json:"-"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	Seen       bool      `json:"seen"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// HasContent reports whether the message carries a text or image payload.
func (m Message) HasContent() bool {
	return m.Text != "" || m.Image != ""
}
