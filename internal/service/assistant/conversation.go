package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"pocusai/internal/locale"
	"pocusai/internal/models"
	"pocusai/internal/service/ai"
	"pocusai/internal/sessions"
)

var (
	ErrNoModeSelected      = errors.New("select a mode first")
	ErrModeAlreadySelected = errors.New("mode already selected; start a new conversation to change it")
	ErrAwaitingResponse    = errors.New("a reply is still pending")
	ErrInvalidMode         = errors.New("invalid mode")
	ErrInvalidLanguage     = errors.New("unsupported language")
	ErrEmptyTurn           = errors.New("message text or image is required")
	// ErrConversationReset is returned when the conversation was torn down
	// while the model call was in flight; the reply is discarded.
	ErrConversationReset = errors.New("conversation was reset before the reply arrived")
)

// State is the orchestrator's position in the conversation flow.
type State int

const (
	NoModeSelected State = iota
	ModeActive
	AwaitingModelResponse
)

func (s State) String() string {
	switch s {
	case ModeActive:
		return "mode_active"
	case AwaitingModelResponse:
		return "awaiting_model_response"
	default:
		return "no_mode_selected"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "no_mode_selected":
		*s = NoModeSelected
	case "mode_active":
		*s = ModeActive
	case "awaiting_model_response":
		*s = AwaitingModelResponse
	default:
		return fmt.Errorf("unknown conversation state %q", text)
	}
	return nil
}

// SessionStore persists conversations the user leaves.
type SessionStore interface {
	Upsert(ctx context.Context, session *models.Session) error
}

// UsageRecorder counts user turns.
type UsageRecorder interface {
	Record(ctx context.Context, topic string) error
}

// IdentityStore tears down the signed-in identity.
type IdentityStore interface {
	Logout(ctx context.Context) error
}

// Options tune a Conversation.
type Options struct {
	Language    string
	Temperature float32
}

// Conversation drives one user's chat: mode selection, turns against the
// model boundary and persistence of finished conversations. Only the model
// call runs outside the lock.
type Conversation struct {
	generator ai.Generator
	sessions  SessionStore
	usage     UsageRecorder
	identity  IdentityStore

	temperature float32
	now         func() time.Time

	mu        sync.Mutex
	state     State
	mode      models.Mode
	language  string
	messages  []*models.Message
	sessionID string
	title     string
	// epoch changes on every reset so late replies can be recognised.
	epoch uint64
}

func NewConversation(opts Options, generator ai.Generator, store SessionStore, usage UsageRecorder, identity IdentityStore) *Conversation {
	if opts.Language == "" {
		opts.Language = locale.Languages[0].Code
	}
	return &Conversation{
		generator:   generator,
		sessions:    store,
		usage:       usage,
		identity:    identity,
		temperature: opts.Temperature,
		now:         time.Now,
		language:    opts.Language,
	}
}

// SelectMode starts a fresh, unsaved conversation in mode.
func (c *Conversation) SelectMode(mode models.Mode) error {
	if !mode.Valid() {
		return ErrInvalidMode
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != NoModeSelected {
		return ErrModeAlreadySelected
	}
	c.mode = mode
	c.messages = []*models.Message{c.welcomeLocked()}
	c.sessionID = ""
	c.title = ""
	c.state = ModeActive
	return nil
}

// SendUserTurn appends the user's message, asks the model and appends its
// reply. Model failures become an error-flagged reply rather than an error.
func (c *Conversation) SendUserTurn(ctx context.Context, text, image string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" && image == "" {
		return nil, ErrEmptyTurn
	}

	c.mu.Lock()
	switch c.state {
	case NoModeSelected:
		c.mu.Unlock()
		return nil, ErrNoModeSelected
	case AwaitingModelResponse:
		c.mu.Unlock()
		return nil, ErrAwaitingResponse
	}
	history := models.CloneMessages(c.messages)
	c.messages = append(c.messages, &models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Text:      text,
		Image:     image,
		CreatedAt: c.now(),
	})
	c.state = AwaitingModelResponse
	epoch := c.epoch
	mode, language := c.mode, c.language
	c.mu.Unlock()

	topic, _ := locale.MatchQuickAction(language, mode, text)
	if err := c.usage.Record(ctx, topic); err != nil {
		log.WithError(err).Warn("assistant: record usage")
	}

	req := ai.BuildRequest(history, text, image, mode, language, c.temperature)
	reply := &models.Message{ID: uuid.NewString(), Role: models.RoleModel}
	out, err := c.generator.Generate(ctx, req)
	switch {
	case err != nil:
		log.WithError(err).Warn("assistant: model request failed")
		reply.Text = ai.FailureMessage(err)
		reply.IsError = true
	case strings.TrimSpace(out) == "":
		reply.Text = ai.ErrEmptyResponse.Error()
		reply.IsError = true
	default:
		reply.Text = out
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return nil, ErrConversationReset
	}
	reply.CreatedAt = c.now()
	c.messages = append(c.messages, reply)
	c.state = ModeActive
	return reply, nil
}

// LoadSession saves the current conversation if worthwhile and resumes session.
func (c *Conversation) LoadSession(ctx context.Context, session *models.Session) error {
	if session == nil || !session.Mode.Valid() {
		return ErrInvalidMode
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == AwaitingModelResponse {
		return ErrAwaitingResponse
	}
	if err := c.persistLocked(ctx); err != nil {
		return err
	}
	// The in-memory copy of the active session is never older than the stored one.
	if c.state != NoModeSelected && c.sessionID != "" && session.ID == c.sessionID {
		return nil
	}
	c.mode = session.Mode
	c.messages = models.CloneMessages(session.Messages)
	c.sessionID = session.ID
	c.title = session.Title
	c.state = ModeActive
	c.epoch++
	return nil
}

// StartNewConversation saves the current conversation if worthwhile and
// returns to mode selection.
func (c *Conversation) StartNewConversation(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == AwaitingModelResponse {
		return ErrAwaitingResponse
	}
	if err := c.persistLocked(ctx); err != nil {
		return err
	}
	c.resetLocked()
	return nil
}

// Logout signs the user out and drops the in-memory conversation unsaved.
func (c *Conversation) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
	return c.identity.Logout(ctx)
}

// Reset drops the in-memory conversation without touching the identity.
func (c *Conversation) Reset() {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
}

// SetLanguage switches the display and model language. A welcome message that
// still opens the conversation is re-localised.
func (c *Conversation) SetLanguage(code string) error {
	if !locale.Supported(code) {
		return ErrInvalidLanguage
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.language = code
	if len(c.messages) > 0 && c.messages[0].ID == models.WelcomeMessageID {
		welcome := *c.messages[0]
		welcome.Text = locale.For(code).Welcome
		c.messages[0] = &welcome
	}
	return nil
}

// View is a read-only copy of the conversation state.
type View struct {
	State     State             `json:"state"`
	Mode      models.Mode       `json:"mode,omitempty"`
	Language  string            `json:"language"`
	SessionID string            `json:"session_id,omitempty"`
	Title     string            `json:"title,omitempty"`
	Messages  []*models.Message `json:"messages"`
}

func (c *Conversation) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages := models.CloneMessages(c.messages)
	if messages == nil {
		messages = []*models.Message{}
	}
	return View{
		State:     c.state,
		Mode:      c.mode,
		Language:  c.language,
		SessionID: c.sessionID,
		Title:     c.title,
		Messages:  messages,
	}
}

// QuickActions lists the shortcuts of the active mode, or nil before a mode is chosen.
func (c *Conversation) QuickActions() []locale.QuickAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == NoModeSelected {
		return nil
	}
	return locale.QuickActions(c.language, c.mode)
}

func (c *Conversation) persistLocked(ctx context.Context) error {
	if c.state == NoModeSelected || !sessions.Eligible(c.messages) {
		return nil
	}
	id, title := c.sessionID, c.title
	if id == "" {
		id = uuid.NewString()
		title = sessions.DeriveTitle(c.messages, c.mode)
	}
	return c.sessions.Upsert(ctx, &models.Session{
		ID:        id,
		Title:     title,
		Messages:  models.CloneMessages(c.messages),
		Mode:      c.mode,
		UpdatedAt: c.now(),
	})
}

func (c *Conversation) resetLocked() {
	c.state = NoModeSelected
	c.mode = ""
	c.messages = nil
	c.sessionID = ""
	c.title = ""
	c.epoch++
}

func (c *Conversation) welcomeLocked() *models.Message {
	return &models.Message{
		ID:        models.WelcomeMessageID,
		Role:      models.RoleModel,
		Text:      locale.For(c.language).Welcome,
		CreatedAt: c.now(),
	}
}
