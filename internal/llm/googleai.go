package llm

import (
	"context"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	perr "querypilot/internal/platform/errors"
)

// GoogleTransport generates via the Gemini API
type GoogleTransport struct {
	client *googleai.GoogleAI
}

// NewGoogle builds a transport with the given API key
func NewGoogle(ctx context.Context, apiKey string) (*GoogleTransport, error) {
	client, err := googleai.New(ctx, googleai.WithAPIKey(apiKey))
	if err != nil {
		return nil, perr.ModelTransportf("init model client: %v", err)
	}
	return &GoogleTransport{client: client}, nil
}

// Generate runs one completion. Provider failures surface as model
// transport errors; an empty response counts as one too since the
// provider occasionally returns nothing on transient overload
func (g *GoogleTransport) Generate(ctx context.Context, model, prompt string, p Params) (*Response, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := g.client.GenerateContent(ctx, content,
		llms.WithModel(model),
		llms.WithTemperature(p.Temperature),
		llms.WithTopP(p.TopP),
		llms.WithTopK(p.TopK),
		llms.WithMaxTokens(p.MaxTokens),
	)
	if err != nil {
		return nil, perr.ModelTransportf("model %s: %v", model, err)
	}

	out := &Response{}
	for _, choice := range resp.Choices {
		if choice == nil {
			continue
		}
		out.Candidates = append(out.Candidates, Candidate{
			Parts: []Part{{Text: choice.Content}},
		})
	}
	if len(out.Candidates) == 0 {
		return nil, perr.ModelTransportf("model %s returned no candidates", model)
	}
	return out, nil
}
