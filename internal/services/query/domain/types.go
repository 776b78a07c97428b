// Package domain holds the query orchestration types: plans, security
// context, results and the request DTO the HTTP layer binds.
package domain

import "time"

// QueryKind classifies one sub-query
type QueryKind string

const (
	// KindRelational runs a SQL string
	KindRelational QueryKind = "relational"

	// KindDocument runs an aggregation pipeline against a collection
	KindDocument QueryKind = "document"

	// KindCross spans both stores; executed as a fan-out with
	// concatenated results
	KindCross QueryKind = "cross"
)

// MaskedValue replaces every masked field value in emitted rows
const MaskedValue = "***MASKED***"

// SecurityContext is the per-request policy the planner embeds in its
// prompt and the post-processor enforces on results
type SecurityContext struct {
	UserID      string                    `json:"user_id"`
	Role        string                    `json:"role"`
	AccountID   string                    `json:"account_id,omitempty"`
	Permissions []string                  `json:"permissions,omitempty"`
	RowFilters  map[string]map[string]any `json:"row_filters,omitempty"`
	FieldMasks  map[string][]string       `json:"field_masks,omitempty"`
}

// DatabaseQuery is one executable sub-query of a plan. SQL is set for
// relational kinds, Collection and Pipeline for document kinds
type DatabaseQuery struct {
	Database   string           `json:"database"`
	Kind       QueryKind        `json:"kind"`
	SQL        string           `json:"sql,omitempty"`
	Pipeline   []map[string]any `json:"pipeline,omitempty"`
	Parameters []any            `json:"parameters,omitempty"`
	Collection string           `json:"collection,omitempty"`
}

// QueryPlan is the validated output of plan synthesis. Every query's
// database appears in Databases
type QueryPlan struct {
	Databases []string        `json:"databases"`
	Queries   []DatabaseQuery `json:"queries"`
}

// QueryMetadata rides along with every result
type QueryMetadata struct {
	Plan            *QueryPlan `json:"plan"`
	ExecutionTimeMS int64      `json:"execution_time_ms"`
	RowsReturned    int        `json:"rows_returned"`
	TraceID         string     `json:"trace_id"`
	Timestamp       time.Time  `json:"timestamp"`
	Warnings        []string   `json:"warnings,omitempty"`
	DryRun          bool       `json:"dry_run,omitempty"`
}

// QueryResult is the unified tabular response
type QueryResult struct {
	Data     []map[string]any `json:"data"`
	Metadata QueryMetadata    `json:"metadata"`
}
