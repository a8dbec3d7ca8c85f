package worker

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"pocusai/internal/redis"
)

const redisInvalidateChannel = "pocusai:invalidate"

const (
	scopeUser = "user"
	scopeAll  = "all"
)

type invalidateMessage struct {
	UserID string `json:"user_id,omitempty"`
	Scope  string `json:"scope"`
}

// Invalidator broadcasts account changes made by one process (for example
// the admin CLI) so servers sharing the store drop stale conversations.
type Invalidator struct {
	client *redis.Client
}

func NewInvalidator(client *redis.Client) *Invalidator {
	return &Invalidator{client: client}
}

// PublishUser asks every listener to reset userID's conversation.
func (r *Invalidator) PublishUser(ctx context.Context, userID string) error {
	return r.publish(ctx, invalidateMessage{UserID: userID, Scope: scopeUser})
}

// PublishAll asks every listener to drop all conversations.
func (r *Invalidator) PublishAll(ctx context.Context) error {
	return r.publish(ctx, invalidateMessage{Scope: scopeAll})
}

func (r *Invalidator) publish(ctx context.Context, msg invalidateMessage) error {
	if r == nil || r.client.Raw() == nil {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode invalidation: %w", err)
	}
	if err := r.client.Raw().Publish(ctx, redisInvalidateChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// listen delivers invalidations to handler until ctx is done.
func (r *Invalidator) listen(ctx context.Context, handler func(invalidateMessage)) {
	if r == nil || r.client.Raw() == nil || handler == nil {
		return
	}
	pubsub := r.client.Raw().Subscribe(ctx, redisInvalidateChannel)
	// wait for the subscription so nothing published after listen returns is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		log.WithError(err).Warn("worker: subscribe to invalidations")
		pubsub.Close()
		return
	}
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var inv invalidateMessage
				if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
					log.WithError(err).Warn("worker: decode invalidation")
					continue
				}
				handler(inv)
			}
		}
	}()
}

// Subscribe resets conversations named by invalidations published elsewhere.
func (m *Manager) Subscribe(ctx context.Context, inv *Invalidator) {
	inv.listen(ctx, m.handleInvalidation)
}

func (m *Manager) handleInvalidation(msg invalidateMessage) {
	switch msg.Scope {
	case scopeUser:
		if m.lookup(msg.UserID) != nil {
			m.ResetUser(msg.UserID)
		}
	case scopeAll:
		m.Purge()
	default:
		log.WithField("scope", msg.Scope).Warn("worker: unknown invalidation scope")
	}
}
