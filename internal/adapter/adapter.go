// Package adapter defines the database adapter port shared by the
// relational and document backends, plus the schema model the planner
// consumes.
package adapter

import "context"

// Kind discriminates adapter families
type Kind string

const (
	// KindRelational is a SQL-speaking backend
	KindRelational Kind = "relational"

	// KindDocument is an aggregation-pipeline backend
	KindDocument Kind = "document"
)

// Request carries one executable sub-query. Exactly one of SQL or
// Collection+Pipeline is set, matching the adapter's kind
type Request struct {
	SQL        string
	Args       []any
	Collection string
	Pipeline   []map[string]any
	MaxRows    int
}

// Result is the uniform row shape both backends return
type Result struct {
	Rows      []map[string]any
	RowCount  int
	Truncated bool
	Warnings  []string
}

// Adapter is the port every backend implements. Schema is memoized per
// adapter instance; Close releases the underlying pool or client
type Adapter interface {
	Kind() Kind
	Name() string
	Schema(ctx context.Context) (*Database, error)
	Execute(ctx context.Context, req Request) (*Result, error)
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
