// Package llm is the model transport seam. The planner speaks this
// interface; implementations carry the provider specifics.
package llm

import "context"

// Params are the generation knobs passed on every call
type Params struct {
	Temperature float64
	TopP        float64
	TopK        int
	MaxTokens   int
}

// DefaultParams returns the fixed generation settings plan synthesis
// runs with
func DefaultParams() Params {
	return Params{
		Temperature: 0.1,
		TopP:        0.95,
		TopK:        40,
		MaxTokens:   8192,
	}
}

// Part is one chunk of generated content
type Part struct {
	Text string
}

// Candidate is one generation alternative
type Candidate struct {
	Parts []Part
}

// Response is the provider-neutral generation result
type Response struct {
	Candidates []Candidate
}

// Text concatenates every part of the first candidate
func (r *Response) Text() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	var out string
	for _, p := range r.Candidates[0].Parts {
		out += p.Text
	}
	return out
}

// Transport generates content from one named model. Errors that stem
// from the transport itself carry the model transport error code so
// callers can retry them; everything else is terminal for the call
type Transport interface {
	Generate(ctx context.Context, model, prompt string, p Params) (*Response, error)
}
