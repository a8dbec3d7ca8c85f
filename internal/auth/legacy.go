package auth

import (
	"encoding/json"
	"fmt"
	"time"

	"pocusai/internal/models"
	"pocusai/internal/storage"
)

// legacyUser is the account shape written by the browser client: camelCase
// keys, millisecond timestamps and a plaintext password.
type legacyUser struct {
	ID           string            `json:"id"`
	Username     string            `json:"username"`
	Email        string            `json:"email"`
	Password     string            `json:"password"`
	Status       models.UserStatus `json:"status"`
	IsAdmin      bool              `json:"isAdmin"`
	CreatedAt    int64             `json:"createdAt"`
	Occupation   string            `json:"occupation"`
	Introduction string            `json:"introduction"`
	Purpose      string            `json:"purpose"`
	Referral     string            `json:"referral"`
}

func (s *Service) registerMigrations() {
	s.records.RegisterMigration(storage.KeyUsers, s.migrateUsers)
	s.records.RegisterMigration(storage.KeyCurrentUser, migrateCurrentUser)
	s.records.RegisterMigration(storage.KeySavedUsername, migrateSavedUsername)
}

func (s *Service) migrateUsers(raw []byte) (json.RawMessage, error) {
	var legacy []legacyUser
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, fmt.Errorf("decode legacy users: %w", err)
	}
	users := make([]*models.User, 0, len(legacy))
	for _, l := range legacy {
		u := l.convert()
		if l.Password != "" {
			hash, err := s.hash(l.Password)
			if err != nil {
				return nil, err
			}
			u.PasswordHash = hash
		}
		users = append(users, u)
	}
	return json.Marshal(users)
}

func migrateCurrentUser(raw []byte) (json.RawMessage, error) {
	var legacy legacyUser
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, fmt.Errorf("decode legacy current user: %w", err)
	}
	return json.Marshal(legacy.convert())
}

// migrateSavedUsername wraps the bare string the browser stored.
func migrateSavedUsername(raw []byte) (json.RawMessage, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return json.Marshal(name)
	}
	return json.Marshal(string(raw))
}

func (l legacyUser) convert() *models.User {
	return &models.User{
		ID:        l.ID,
		Username:  l.Username,
		Email:     l.Email,
		Status:    l.Status,
		IsAdmin:   l.IsAdmin,
		CreatedAt: time.UnixMilli(l.CreatedAt).UTC(),
		Profile: models.Profile{
			Occupation:   l.Occupation,
			Introduction: l.Introduction,
			Purpose:      l.Purpose,
			Referral:     l.Referral,
		},
	}
}
