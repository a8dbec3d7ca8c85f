// Package sessions persists saved conversations.
package sessions

import (
	"context"
	"errors"
	"sync"

	"pocusai/internal/locale"
	"pocusai/internal/models"
	"pocusai/internal/storage"
)

const (
	titleLimit   = 30
	defaultTitle = "New Chat"
)

var ErrNotFound = errors.New("session not found")

// Store keeps the ordered list of saved sessions under a single key.
type Store struct {
	records *storage.Records
	mu      sync.Mutex
}

func NewStore(records *storage.Records) *Store {
	records.RegisterMigration(storage.KeyChatSessions, migrateSessions)
	return &Store{records: records}
}

// List returns every saved session in stored order.
func (s *Store) List(ctx context.Context) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) Get(ctx context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, sess := range list {
		if sess.ID == id {
			return sess, nil
		}
	}
	return nil, ErrNotFound
}

// Upsert replaces the session with the same id in place, or appends it.
func (s *Store) Upsert(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i, sess := range list {
		if sess.ID == session.ID {
			list[i] = session
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, session)
	}
	return s.records.Save(ctx, storage.KeyChatSessions, list)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, sess := range list {
		if sess.ID != id {
			kept = append(kept, sess)
		}
	}
	if len(kept) == len(list) {
		return ErrNotFound
	}
	return s.records.Save(ctx, storage.KeyChatSessions, kept)
}

func (s *Store) load(ctx context.Context) ([]*models.Session, error) {
	list := []*models.Session{}
	if _, err := s.records.Load(ctx, storage.KeyChatSessions, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Eligible reports whether a conversation is worth saving: the welcome
// message alone never is.
func Eligible(messages []*models.Message) bool {
	return len(messages) >= 2
}

// DeriveTitle builds a title from the first user message, truncated to 30
// characters, prefixed with the mode tag.
func DeriveTitle(messages []*models.Message, mode models.Mode) string {
	for _, m := range messages {
		if m.Role != models.RoleUser {
			continue
		}
		text := []rune(m.Text)
		title := string(text)
		if len(text) > titleLimit {
			title = string(text[:titleLimit]) + "..."
		}
		return locale.TitlePrefix(mode) + title
	}
	return defaultTitle
}
