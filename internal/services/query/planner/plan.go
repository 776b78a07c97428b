package planner

import (
	"encoding/json"
	"strings"

	"querypilot/internal/adapter/factory"
	perr "querypilot/internal/platform/errors"
	"querypilot/internal/services/query/domain"
)

type rawQuery struct {
	Database   string `json:"database"`
	QueryType  string `json:"query_type"`
	Query      any    `json:"query"`
	Parameters []any  `json:"parameters"`
	Collection string `json:"collection"`
}

// ParsePlan turns extracted JSON into a validated plan. The top level
// must be an object carrying databases and queries arrays; anything
// else, including bare operator snippets, is an invalid plan
func ParsePlan(jsonText string) (*domain.QueryPlan, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonText), &top); err != nil {
		return nil, perr.InvalidPlanf("plan is not a JSON object")
	}

	dbsRaw, ok := top["databases"]
	if !ok || !isJSONArray(dbsRaw) {
		return nil, perr.InvalidPlanf("plan lacks a databases array")
	}
	queriesRaw, ok := top["queries"]
	if !ok || !isJSONArray(queriesRaw) {
		return nil, perr.InvalidPlanf("plan lacks a queries array")
	}

	var databases []string
	if err := json.Unmarshal(dbsRaw, &databases); err != nil {
		return nil, perr.InvalidPlanf("databases entries must be strings")
	}
	if len(databases) == 0 {
		return nil, perr.InvalidPlanf("plan names no databases")
	}

	var raws []rawQuery
	if err := json.Unmarshal(queriesRaw, &raws); err != nil {
		return nil, perr.InvalidPlanf("queries entries are malformed")
	}
	if len(raws) == 0 {
		return nil, perr.InvalidPlanf("plan carries no queries")
	}

	known := map[string]bool{}
	for _, d := range databases {
		known[d] = true
	}

	plan := &domain.QueryPlan{Databases: databases}
	for _, rq := range raws {
		if !known[rq.Database] {
			return nil, perr.InvalidPlanf("query targets database %q outside the plan's databases", rq.Database)
		}
		q, err := normalizeQuery(rq)
		if err != nil {
			return nil, err
		}
		plan.Queries = append(plan.Queries, q)
	}
	return plan, nil
}

func isJSONArray(raw json.RawMessage) bool {
	t := strings.TrimSpace(string(raw))
	return strings.HasPrefix(t, "[")
}

func normalizeQuery(rq rawQuery) (domain.DatabaseQuery, error) {
	kind := NormalizeKind(rq.QueryType, rq.Query, rq.Database)
	q := domain.DatabaseQuery{
		Database:   rq.Database,
		Kind:       kind,
		Parameters: rq.Parameters,
		Collection: rq.Collection,
	}
	switch kind {
	case domain.KindRelational:
		sql, ok := rq.Query.(string)
		if !ok {
			return q, perr.InvalidPlanf("relational query body must be a string")
		}
		q.SQL = sql
	case domain.KindDocument:
		pipeline, err := toPipeline(rq.Query)
		if err != nil {
			return q, err
		}
		q.Pipeline = pipeline
	case domain.KindCross:
		// carried through; dispatch rejects it per sub-query
	}
	return q, nil
}

func toPipeline(body any) ([]map[string]any, error) {
	stages, ok := body.([]any)
	if !ok {
		return nil, perr.InvalidPlanf("document query body must be a pipeline array")
	}
	out := make([]map[string]any, 0, len(stages))
	for _, s := range stages {
		stage, ok := s.(map[string]any)
		if !ok {
			return nil, perr.InvalidPlanf("pipeline stages must be objects")
		}
		out = append(out, stage)
	}
	return out, nil
}

// documentOperators flag a SQL-typed body that is actually a pipeline
var documentOperators = []string{"$match", "$group", "$project", "$limit", "$sort", "$lookup"}

// NormalizeKind maps the model's loose query_type vocabulary onto the
// three canonical kinds, inferring from body shape and database name
// when the type is missing or unknown
func NormalizeKind(explicit string, body any, database string) domain.QueryKind {
	switch strings.ToLower(strings.TrimSpace(explicit)) {
	case "mongodb", "aggregation", "mongo", "nosql", "document":
		return domain.KindDocument
	case "sql", "relational":
		return domain.KindRelational
	case "cross-db", "cross_db", "cross":
		return domain.KindCross
	}

	if _, ok := body.([]any); ok {
		return domain.KindDocument
	}
	if s, ok := body.(string); ok {
		for _, op := range documentOperators {
			if strings.Contains(s, op) {
				return domain.KindDocument
			}
		}
	}
	if database == factory.KeyMongo {
		return domain.KindDocument
	}
	if strings.HasPrefix(database, factory.KeyPostgres) {
		return domain.KindRelational
	}
	if _, ok := body.(string); ok {
		return domain.KindRelational
	}
	return domain.KindDocument
}
