package models

import "time"

type UserStatus string

const (
	StatusPending  UserStatus = "pending"
	StatusApproved UserStatus = "approved"
	StatusRejected UserStatus = "rejected"
)

// Valid reports whether s is a known account status.
func (s UserStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Profile holds the optional professional details collected at signup.
type Profile struct {
	Occupation   string `json:"occupation,omitempty"`
	Introduction string `json:"introduction,omitempty"`
	Purpose      string `json:"purpose,omitempty"`
	Referral     string `json:"referral,omitempty"`
}

// User is a registered account.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"password_hash,omitempty"`
	Status       UserStatus `json:"status"`
	IsAdmin      bool       `json:"is_admin"`
	CreatedAt    time.Time  `json:"created_at"`
	Profile
}

// Public returns a copy without the credential hash, suitable for snapshots and responses.
func (u *User) Public() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.PasswordHash = ""
	return &c
}
