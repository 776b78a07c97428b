package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"querypilot/internal/adapter"
	perr "querypilot/internal/platform/errors"
	"querypilot/internal/services/query/domain"

	"querypilot/internal/llm"
)

// fakeTransport scripts responses per model and counts invocations
type fakeTransport struct {
	calls      map[string]int
	lastPrompt string
	fn         func(model string) (*llm.Response, error)
}

func newFakeTransport(fn func(model string) (*llm.Response, error)) *fakeTransport {
	return &fakeTransport{calls: map[string]int{}, fn: fn}
}

func (f *fakeTransport) Generate(_ context.Context, model, prompt string, _ llm.Params) (*llm.Response, error) {
	f.calls[model]++
	f.lastPrompt = prompt
	return f.fn(model)
}

func textResponse(text string) *llm.Response {
	return &llm.Response{Candidates: []llm.Candidate{{Parts: []llm.Part{{Text: text}}}}}
}

const planJSON = `{"databases":["postgres"],"queries":[{"database":"postgres","query_type":"sql","query":"SELECT id,name FROM users","parameters":[],"collection":null}]}`

func fastPlanner(tr llm.Transport, preferred, fallback string) *Planner {
	p := New(tr, preferred, fallback)
	p.policy.InitialDelay = time.Microsecond
	p.policy.MaxDelay = time.Microsecond
	p.policy.Jitter = false
	return p
}

func testSchemas() map[string]*adapter.Database {
	return map[string]*adapter.Database{
		"postgres": {Name: "postgres", Kind: adapter.KindRelational},
	}
}

func TestGenerate_ParsesPlan(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(func(string) (*llm.Response, error) {
		return textResponse("<thought>simple select</thought>\n```json\n" + planJSON + "\n```"), nil
	})
	p := fastPlanner(tr, "pro", "flash")

	plan, err := p.Generate(context.Background(), "Get all users", testSchemas(), domain.SecurityContext{}, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"postgres"}, plan.Databases)
	require.Len(t, plan.Queries, 1)
	require.Equal(t, domain.KindRelational, plan.Queries[0].Kind)
	require.Equal(t, "SELECT id,name FROM users", plan.Queries[0].SQL)
	require.Equal(t, 1, tr.calls["pro"])
	require.Zero(t, tr.calls["flash"])
}

func TestGenerate_PromptCarriesEffectiveRowCap(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(func(string) (*llm.Response, error) {
		return textResponse("```json\n" + planJSON + "\n```"), nil
	})
	p := fastPlanner(tr, "pro", "flash")

	_, err := p.Generate(context.Background(), "Get all users", testSchemas(), domain.SecurityContext{}, 250)
	require.NoError(t, err)
	require.Contains(t, tr.lastPrompt, "Cap every query at 250 rows")

	// zero falls back to the default cap
	_, err = p.Generate(context.Background(), "Get all users", testSchemas(), domain.SecurityContext{}, 0)
	require.NoError(t, err)
	require.Contains(t, tr.lastPrompt, "Cap every query at 10000 rows")
}

func TestGenerate_FallbackAfterTransportExhaustion(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(func(model string) (*llm.Response, error) {
		if model == "pro" {
			return nil, perr.ModelTransportf("server overloaded")
		}
		return textResponse("```json\n" + planJSON + "\n```"), nil
	})
	p := fastPlanner(tr, "pro", "flash")

	plan, err := p.Generate(context.Background(), "Get all users", testSchemas(), domain.SecurityContext{}, 0)
	require.NoError(t, err)
	require.NotNil(t, plan)

	// preferred exhausts its full retry budget, fallback answers once
	require.Equal(t, p.policy.MaxRetries+1, tr.calls["pro"])
	require.Equal(t, 1, tr.calls["flash"])
}

func TestGenerate_InvalidPlanFailsWithoutFallback(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(func(string) (*llm.Response, error) {
		return textResponse(`{"$sum":1}`), nil
	})
	p := fastPlanner(tr, "pro", "flash")

	_, err := p.Generate(context.Background(), "Count orders", testSchemas(), domain.SecurityContext{}, 0)
	require.Equal(t, perr.ErrorCodeInvalidPlan, perr.CodeOf(err))
	require.Equal(t, 1, tr.calls["pro"])
	require.Zero(t, tr.calls["flash"], "semantic failure must not fall back")
}

func TestGenerate_InvalidJSONAdvancesToFallback(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(func(model string) (*llm.Response, error) {
		if model == "pro" {
			return textResponse("sorry, I cannot answer that"), nil
		}
		return textResponse(planJSON), nil
	})
	p := fastPlanner(tr, "pro", "flash")

	plan, err := p.Generate(context.Background(), "Get all users", testSchemas(), domain.SecurityContext{}, 0)
	require.NoError(t, err)
	require.NotNil(t, plan)
	require.Equal(t, 1, tr.calls["pro"], "garbage output is not a transport error, no retry")
	require.Equal(t, 1, tr.calls["flash"])
}

func TestGenerate_DuplicateModelsCollapse(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(func(string) (*llm.Response, error) {
		return nil, perr.InvalidModelJSONf("nope")
	})
	p := fastPlanner(tr, "pro", "pro")

	_, err := p.Generate(context.Background(), "x", testSchemas(), domain.SecurityContext{}, 0)
	require.Error(t, err)
	require.Equal(t, 1, tr.calls["pro"])
}

func TestParsePlan_Invariants(t *testing.T) {
	t.Parallel()

	bad := []string{
		`[1,2,3]`,
		`{"$sum":1}`,
		`{"databases":"postgres","queries":[]}`,
		`{"databases":[],"queries":[{"database":"postgres","query":"SELECT 1"}]}`,
		`{"databases":["postgres"],"queries":[]}`,
		`{"databases":["postgres"],"queries":[{"database":"mongodb","query":[]}]}`,
		`{"databases":["postgres"],"queries":[{"database":"postgres","query_type":"sql","query":[]}]}`,
	}
	for _, in := range bad {
		_, err := ParsePlan(in)
		require.Error(t, err, in)
		require.Equal(t, perr.ErrorCodeInvalidPlan, perr.CodeOf(err), in)
	}

	plan, err := ParsePlan(`{"databases":["postgres","mongodb"],"queries":[
		{"database":"postgres","query_type":"sql","query":"SELECT 1"},
		{"database":"mongodb","query":[{"$match":{"status":"active"}}],"collection":"orders"}]}`)
	require.NoError(t, err)
	require.Len(t, plan.Queries, 2)
	for _, q := range plan.Queries {
		require.Contains(t, plan.Databases, q.Database)
	}
	require.Equal(t, domain.KindDocument, plan.Queries[1].Kind)
	require.Equal(t, "orders", plan.Queries[1].Collection)
}

func TestNormalizeKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		explicit string
		body     any
		database string
		want     domain.QueryKind
	}{
		{"explicit mongodb", "mongodb", "x", "postgres", domain.KindDocument},
		{"explicit aggregation", "aggregation", nil, "", domain.KindDocument},
		{"explicit mongo", "mongo", nil, "", domain.KindDocument},
		{"explicit nosql", "NoSQL", nil, "", domain.KindDocument},
		{"explicit sql", "sql", []any{}, "mongodb", domain.KindRelational},
		{"explicit cross dash", "cross-db", nil, "", domain.KindCross},
		{"explicit cross underscore", "cross_db", nil, "", domain.KindCross},
		{"array body infers document", "", []any{map[string]any{"$group": 1}}, "postgres", domain.KindDocument},
		{"operator string infers document", "", "$match status", "postgres", domain.KindDocument},
		{"document database name", "", map[string]any{}, "mongodb", domain.KindDocument},
		{"relational database prefix", "", map[string]any{}, "postgres_main", domain.KindRelational},
		{"plain string defaults relational", "", "SELECT 1", "warehouse", domain.KindRelational},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeKind(tt.explicit, tt.body, tt.database)
			require.Equal(t, tt.want, got)
		})
	}
}
