package worker

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"pocusai/internal/service/ai"
	"pocusai/internal/service/assistant"
)

// Factory builds the conversation for a user; generator is already bound to
// that user's dispatch queue.
type Factory func(userID string, generator ai.Generator) *assistant.Conversation

// Manager owns one Conversation per signed-in user and the shared dispatcher
// their model calls go through.
type Manager struct {
	dispatcher *Dispatcher
	factory    Factory

	mu            sync.Mutex
	conversations map[string]*assistant.Conversation
}

func NewManager(dispatcher *Dispatcher, factory Factory) *Manager {
	return &Manager{
		dispatcher:    dispatcher,
		factory:       factory,
		conversations: make(map[string]*assistant.Conversation),
	}
}

// Conversation returns the user's conversation, creating it on first use.
func (m *Manager) Conversation(userID string) *assistant.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conv, ok := m.conversations[userID]; ok {
		return conv
	}
	conv := m.factory(userID, m.dispatcher.ForUser(userID))
	m.conversations[userID] = conv
	return conv
}

func (m *Manager) lookup(userID string) *assistant.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversations[userID]
}

// ResetUser drops the user's conversation and any queued model calls.
func (m *Manager) ResetUser(userID string) {
	m.mu.Lock()
	conv, ok := m.conversations[userID]
	delete(m.conversations, userID)
	m.mu.Unlock()

	if ok {
		conv.Reset()
		log.WithField("user_id", userID).Debug("worker: conversation reset")
	}
	m.dispatcher.CancelUser(userID)
}

// Purge drops every conversation.
func (m *Manager) Purge() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.conversations))
	for id := range m.conversations {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.ResetUser(id)
	}
}

// Active reports how many users hold a conversation.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conversations)
}

// Stop purges all conversations and stops the dispatcher.
func (m *Manager) Stop() {
	m.Purge()
	m.dispatcher.Stop()
}
