package models

import "time"

// Mode is the patient population a conversation is scoped to.
type Mode string

const (
	ModeAdult     Mode = "adult"
	ModePediatric Mode = "pediatric"
)

// Valid reports whether m is one of the supported modes.
func (m Mode) Valid() bool {
	return m == ModeAdult || m == ModePediatric
}

// Session is a saved conversation the user can resume later.
type Session struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	Mode      Mode       `json:"mode"`
	UpdatedAt time.Time  `json:"updated_at"`
}
