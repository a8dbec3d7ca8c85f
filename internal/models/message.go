package models

import "time"

// Role tags the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// WelcomeMessageID marks the synthetic greeting that opens every conversation.
const WelcomeMessageID = "welcome"

// Message is a single entry of a conversation. Image carries a data URI when present.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	IsError   bool      `json:"is_error,omitempty"`
}

// CloneMessages returns a shallow copy of the list so callers can not mutate shared state.
func CloneMessages(in []*Message) []*Message {
	if in == nil {
		return nil
	}
	out := make([]*Message, 0, len(in))
	for _, m := range in {
		if m == nil {
			continue
		}
		c := *m
		out = append(out, &c)
	}
	return out
}
