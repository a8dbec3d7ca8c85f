package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"pocusai/internal/config"
	"pocusai/internal/models"
)

type geminiGenerator struct {
	provider config.ProviderConfig

	mu     sync.Mutex
	client *genai.Client
}

func newGeminiGenerator(provider config.ProviderConfig) *geminiGenerator {
	return &geminiGenerator{provider: provider}
}

func (g *geminiGenerator) Generate(ctx context.Context, req Request) (string, error) {
	client, err := g.getClient(ctx)
	if err != nil {
		return "", err
	}
	resp, err := client.Models.GenerateContent(ctx, g.provider.Model, toGeminiContents(req), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: req.SystemInstruction}}},
		Temperature:       genai.Ptr(req.Temperature),
	})
	if err != nil {
		return "", &ModelRequestError{Provider: "gemini", Err: err}
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (g *geminiGenerator) getClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	if g.provider.APIKey == "" {
		return nil, ErrMissingConfiguration
	}
	cc := &genai.ClientConfig{
		APIKey:  g.provider.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.provider.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.provider.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	g.client = client
	return client, nil
}

func toGeminiContents(req Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	turns := make([]Turn, 0, len(req.History)+1)
	turns = append(append(turns, req.History...), req.Turn)
	for _, turn := range turns {
		c := &genai.Content{Role: geminiRole(turn.Role)}
		for _, p := range turn.Parts {
			if p.InlineData != nil {
				data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					log.WithError(err).Warn("ai: dropping undecodable inline image")
					continue
				}
				c.Parts = append(c.Parts, &genai.Part{InlineData: &genai.Blob{MIMEType: p.InlineData.MIMEType, Data: data}})
				continue
			}
			c.Parts = append(c.Parts, &genai.Part{Text: p.Text})
		}
		if len(c.Parts) > 0 {
			contents = append(contents, c)
		}
	}
	return contents
}

func geminiRole(role models.Role) string {
	if role == models.RoleModel {
		return string(genai.RoleModel)
	}
	return string(genai.RoleUser)
}
