package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"pocusai/internal/config"
	"pocusai/internal/models"
)

const claudeMaxTokens = 3000

// einoGenerator serves the providers reached through eino chat models.
type einoGenerator struct {
	name     string
	provider config.ProviderConfig

	mu        sync.Mutex
	chatModel model.BaseChatModel
}

func newEinoGenerator(name string, provider config.ProviderConfig) *einoGenerator {
	return &einoGenerator{name: name, provider: provider}
}

func (g *einoGenerator) Generate(ctx context.Context, req Request) (string, error) {
	chatModel, err := g.getModel(ctx)
	if err != nil {
		return "", err
	}
	resp, err := chatModel.Generate(ctx, toEinoMessages(req), model.WithTemperature(req.Temperature))
	if err != nil {
		return "", &ModelRequestError{Provider: g.name, Err: err}
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Content, nil
}

func (g *einoGenerator) getModel(ctx context.Context) (model.BaseChatModel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.chatModel != nil {
		return g.chatModel, nil
	}
	if g.provider.APIKey == "" {
		return nil, ErrMissingConfiguration
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch g.name {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: g.provider.BaseURL,
			Model:   g.provider.Model,
			APIKey:  g.provider.APIKey,
		})
	case "claude":
		var baseURLPtr *string
		if g.provider.BaseURL != "" {
			baseURLPtr = &g.provider.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    g.provider.APIKey,
			Model:     g.provider.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: claudeMaxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", g.name)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s chat model: %w", g.name, err)
	}
	g.chatModel = chatModel
	return chatModel, nil
}

func toEinoMessages(req Request) []*schema.Message {
	messages := make([]*schema.Message, 0, len(req.History)+2)
	messages = append(messages, schema.SystemMessage(req.SystemInstruction))
	for _, turn := range req.History {
		messages = append(messages, toEinoMessage(turn))
	}
	return append(messages, toEinoMessage(req.Turn))
}

func toEinoMessage(turn Turn) *schema.Message {
	if turn.Role == models.RoleModel {
		var text []string
		for _, p := range turn.Parts {
			if p.InlineData == nil {
				text = append(text, p.Text)
			}
		}
		return schema.AssistantMessage(strings.Join(text, "\n"), nil)
	}

	hasMedia := false
	for _, p := range turn.Parts {
		if p.InlineData != nil {
			hasMedia = true
			break
		}
	}
	if !hasMedia {
		var text []string
		for _, p := range turn.Parts {
			text = append(text, p.Text)
		}
		return schema.UserMessage(strings.Join(text, "\n"))
	}

	parts := make([]schema.ChatMessagePart, 0, len(turn.Parts))
	for _, p := range turn.Parts {
		if p.InlineData != nil {
			parts = append(parts, schema.ChatMessagePart{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL:      p.InlineData.DataURI(),
					MIMEType: p.InlineData.MIMEType,
				},
			})
			continue
		}
		parts = append(parts, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: p.Text})
	}
	return &schema.Message{Role: schema.User, MultiContent: parts}
}
