package ai

import (
	"regexp"

	"pocusai/internal/locale"
	"pocusai/internal/models"
)

var dataURIPattern = regexp.MustCompile(`^data:(.+);base64,(.+)$`)

// InlineData is a media payload carried in a turn. Data stays base64 encoded.
type InlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Part is either text or inline media.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

// Turn is one role-tagged unit of the conversation sent to the model.
type Turn struct {
	Role  models.Role `json:"role"`
	Parts []Part      `json:"parts"`
}

// Request is everything the model boundary needs for one call.
type Request struct {
	SystemInstruction string  `json:"system_instruction"`
	History           []Turn  `json:"history"`
	Turn              Turn    `json:"turn"`
	Temperature       float32 `json:"temperature"`
}

// BuildRequest turns the conversation so far into a model request. history
// must not contain the message being sent; error-flagged messages are dropped.
func BuildRequest(history []*models.Message, text, image string, mode models.Mode, language string, temperature float32) Request {
	turns := make([]Turn, 0, len(history))
	for _, msg := range history {
		if msg == nil || msg.IsError {
			continue
		}
		turn := Turn{Role: msg.Role}
		if media := parseDataURI(msg.Image); media != nil {
			turn.Parts = append(turn.Parts, Part{InlineData: media})
		}
		if msg.Text != "" {
			turn.Parts = append(turn.Parts, Part{Text: msg.Text})
		}
		if len(turn.Parts) == 0 {
			continue
		}
		turns = append(turns, turn)
	}

	next := Turn{Role: models.RoleUser}
	if image != "" {
		text += locale.DualLayerDirective
		if media := parseDataURI(image); media != nil {
			next.Parts = append(next.Parts, Part{InlineData: media})
		}
	}
	next.Parts = append(next.Parts, Part{Text: text})

	return Request{
		SystemInstruction: locale.Instruction(mode, language),
		History:           turns,
		Turn:              next,
		Temperature:       temperature,
	}
}

// parseDataURI splits a data:<mime>;base64,<payload> URI. Anything else yields nil.
func parseDataURI(uri string) *InlineData {
	if uri == "" {
		return nil
	}
	m := dataURIPattern.FindStringSubmatch(uri)
	if m == nil {
		return nil
	}
	return &InlineData{MIMEType: m[1], Data: m[2]}
}

// DataURI reassembles the inline payload into a data URI.
func (d *InlineData) DataURI() string {
	return "data:" + d.MIMEType + ";base64," + d.Data
}
