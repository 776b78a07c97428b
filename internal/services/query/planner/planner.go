// Package planner turns natural-language intent into validated query
// plans via an LLM, and security-reviews plans before execution.
package planner

import (
	"context"
	"strings"

	"querypilot/internal/adapter"
	perr "querypilot/internal/platform/errors"
	"querypilot/internal/platform/logger"
	"querypilot/internal/platform/retry"
	"querypilot/internal/services/query/domain"

	"querypilot/internal/llm"
)

// Planner synthesizes plans. Models are tried in order; transport
// failures retry within a model before falling back to the next one
type Planner struct {
	transport llm.Transport
	models    []string
	params    llm.Params
	policy    retry.Policy
	log       *logger.Logger
}

// New builds a planner over the given transport. Duplicate model names
// collapse to one attempt
func New(transport llm.Transport, preferred, fallback string) *Planner {
	policy := retry.DefaultPolicy()
	policy.RetryIf = isTransport

	return &Planner{
		transport: transport,
		models:    dedupModels(preferred, fallback),
		params:    llm.DefaultParams(),
		policy:    policy,
		log:       logger.Named("planner"),
	}
}

func dedupModels(names ...string) []string {
	var out []string
	seen := map[string]bool{}
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func isTransport(err error) bool {
	return perr.CodeOf(err) == perr.ErrorCodeModelTransport
}

// Generate produces a plan for the intent. The prompt advertises the
// same row cap the executor enforces. An invalid plan fails immediately
// with no model fallback; transport and JSON problems advance through
// the model list
func (p *Planner) Generate(ctx context.Context, intent string, schemas map[string]*adapter.Database, sec domain.SecurityContext, maxRows int) (*domain.QueryPlan, error) {
	if maxRows <= 0 {
		maxRows = domain.DefaultMaxRows
	}
	prompt := BuildPrompt(intent, schemas, sec, maxRows)

	var lastErr error
	for _, model := range p.models {
		resp, err := retry.Do(ctx, p.policy, func(ctx context.Context) (*llm.Response, error) {
			return p.transport.Generate(ctx, model, prompt, p.params)
		})
		if err != nil {
			p.log.Warn().Str("model", model).Err(err).Msg("model invocation failed, trying next")
			lastErr = err
			continue
		}

		plan, err := p.processResponse(resp)
		if err != nil {
			if perr.CodeOf(err) == perr.ErrorCodeInvalidPlan {
				return nil, err
			}
			p.log.Warn().Str("model", model).Err(err).Msg("model output unusable, trying next")
			lastErr = err
			continue
		}
		return plan, nil
	}

	if lastErr == nil {
		lastErr = perr.ModelTransportf("no models configured")
	}
	return nil, lastErr
}

func (p *Planner) processResponse(resp *llm.Response) (*domain.QueryPlan, error) {
	text := joinParts(resp)
	if strings.TrimSpace(text) == "" {
		return nil, perr.InvalidModelJSONf("model returned no text content")
	}

	clean, thought := StripThought(text)
	if thought != "" {
		p.log.Info().Str("thought", thought).Msg("model reasoning")
	}

	jsonText, err := ExtractJSON(clean)
	if err != nil {
		return nil, err
	}
	return ParsePlan(jsonText)
}

// joinParts flattens the first candidate's parts, newline separated
func joinParts(resp *llm.Response) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	parts := make([]string, 0, len(resp.Candidates[0].Parts))
	for _, p := range resp.Candidates[0].Parts {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n")
}

// invoke runs the retry plus fallback loop and returns the first
// model text that passes accept. Shared with the validator
func (p *Planner) invoke(ctx context.Context, prompt string, accept func(text string) error) (string, error) {
	var lastErr error
	for _, model := range p.models {
		resp, err := retry.Do(ctx, p.policy, func(ctx context.Context) (*llm.Response, error) {
			return p.transport.Generate(ctx, model, prompt, p.params)
		})
		if err != nil {
			lastErr = err
			continue
		}
		text := joinParts(resp)
		if accept != nil {
			if err := accept(text); err != nil {
				lastErr = err
				continue
			}
		}
		return text, nil
	}
	if lastErr == nil {
		lastErr = perr.ModelTransportf("no models configured")
	}
	return "", lastErr
}
