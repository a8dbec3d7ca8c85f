package sessions

import (
	"encoding/json"
	"fmt"
	"time"

	"pocusai/internal/models"
)

type legacyMessage struct {
	ID        string      `json:"id"`
	Role      models.Role `json:"role"`
	Text      string      `json:"text"`
	Image     string      `json:"image"`
	Timestamp int64       `json:"timestamp"`
	IsError   bool        `json:"isError"`
}

type legacySession struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Messages  []legacyMessage `json:"messages"`
	Timestamp int64           `json:"timestamp"`
	Mode      models.Mode     `json:"mode"`
}

// migrateSessions converts the browser session list (millisecond timestamps,
// camelCase keys) into the current shape.
func migrateSessions(raw []byte) (json.RawMessage, error) {
	var legacy []legacySession
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, fmt.Errorf("decode legacy sessions: %w", err)
	}
	out := make([]*models.Session, 0, len(legacy))
	for _, ls := range legacy {
		sess := &models.Session{
			ID:        ls.ID,
			Title:     ls.Title,
			Mode:      ls.Mode,
			UpdatedAt: time.UnixMilli(ls.Timestamp).UTC(),
			Messages:  make([]*models.Message, 0, len(ls.Messages)),
		}
		for _, lm := range ls.Messages {
			sess.Messages = append(sess.Messages, &models.Message{
				ID:        lm.ID,
				Role:      lm.Role,
				Text:      lm.Text,
				Image:     lm.Image,
				CreatedAt: time.UnixMilli(lm.Timestamp).UTC(),
				IsError:   lm.IsError,
			})
		}
		out = append(out, sess)
	}
	return json.Marshal(out)
}
