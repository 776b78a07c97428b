package domain

import (
	"context"

	"querypilot/internal/adapter"
)

// ServicePort is the interface implemented by the query service
type ServicePort interface {
	Query(ctx context.Context, in QueryRequest) (*QueryResult, error)
	Schemas(ctx context.Context) (map[string]*adapter.Database, error)
	Health(ctx context.Context) (*HealthReport, error)
}

// PlannerPort synthesizes a plan from intent and schemas. The row cap
// passed here is the one the executor will enforce
type PlannerPort interface {
	Generate(ctx context.Context, intent string, schemas map[string]*adapter.Database, sec SecurityContext, maxRows int) (*QueryPlan, error)
}

// ValidatorPort reviews a plan for safety. A nil error means the plan
// may execute
type ValidatorPort interface {
	Validate(ctx context.Context, plan *QueryPlan) error
}
