package planner

import (
	"context"
	"encoding/json"
	"strings"

	perr "querypilot/internal/platform/errors"
	"querypilot/internal/platform/logger"
	"querypilot/internal/services/query/domain"

	"querypilot/internal/llm"
)

// Review is the model's verdict on one sub-query
type Review struct {
	Safe        bool     `json:"safe"`
	Issues      []string `json:"issues"`
	Severity    string   `json:"severity"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// failedReview is the verdict when the model's answer cannot be parsed
func failedReview() Review {
	return Review{Safe: false, Issues: []string{"failed to parse validation"}, Severity: "high"}
}

// Validator security-reviews plans with the same retry and model
// fallback policy the planner uses. An unparseable verdict counts as
// unsafe
type Validator struct {
	p   *Planner
	log *logger.Logger
}

// NewValidator builds a validator over the given transport and models
func NewValidator(transport llm.Transport, preferred, fallback string) *Validator {
	return &Validator{
		p:   New(transport, preferred, fallback),
		log: logger.Named("plan_validator"),
	}
}

// Validate reviews every sub-query and fails on the first unsafe
// verdict. Transport exhaustion across all models propagates
func (v *Validator) Validate(ctx context.Context, plan *domain.QueryPlan) error {
	for i, q := range plan.Queries {
		text, err := v.p.invoke(ctx, BuildValidationPrompt(q), nil)
		if err != nil {
			return err
		}
		review := v.parse(text)
		if !review.Safe {
			v.log.Warn().Int("query_index", i).Str("severity", review.Severity).
				Strs("issues", review.Issues).Msg("plan failed security review")
			return perr.Newf(perr.ErrorCodeQueryValidation,
				"query %d failed security review (%s): %s",
				i, review.Severity, strings.Join(review.Issues, "; "))
		}
	}
	return nil
}

func (v *Validator) parse(text string) Review {
	jsonText, err := ExtractJSON(text)
	if err != nil {
		return failedReview()
	}
	var review Review
	if err := json.Unmarshal([]byte(jsonText), &review); err != nil {
		return failedReview()
	}
	return review
}
