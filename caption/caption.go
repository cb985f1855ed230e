// Package caption derives short descriptive captions from images with a
// vision-capable Gemini model.
package caption

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	DefaultModel = "gemini-2.5-flash"

	prompt = "Describe this photo in 3 to 6 words, like a short gallery title. " +
		"No punctuation, no quotes, no leading articles. " +
		"Examples: Golden light on rooftops, Foggy morning harbor, Child chasing pigeons."
)

// Generator produces captions. A nil Generator means captioning is
// unconfigured and every call degrades to no caption.
type Generator struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

// New builds a Generator, or returns (nil, nil) when apiKey is empty so the
// rest of the pipeline can treat captioning as absent.
func New(ctx context.Context, apiKey string, log *zap.Logger) (*Generator, error) {
	if apiKey == "" {
		return nil, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &Generator{client: client, model: DefaultModel, log: log}, nil
}

// Caption returns a short caption for the image, or nil when the generator
// is unconfigured or the model call fails. Captioning is an enrichment and
// never blocks an upload.
func (g *Generator) Caption(ctx context.Context, data []byte, mimeType string) *string {
	if g == nil {
		return nil
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(data, mimeType),
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		g.log.Warn("caption generation failed", zap.Error(err))
		return nil
	}

	text := strings.TrimSpace(strings.Trim(strings.TrimSpace(resp.Text()), `"`))
	if text == "" {
		return nil
	}
	return &text
}
