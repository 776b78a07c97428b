package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"querypilot/internal/adapter"
	"querypilot/internal/adapter/factory"
	perr "querypilot/internal/platform/errors"
	"querypilot/internal/services/query/domain"
)

// execute runs the plan. A single sub-query dispatches directly; a
// multi-query plan fans out concurrently, cancels siblings on the
// first failure and merges in plan order
func (s *Svc) execute(ctx context.Context, facct factory.Account, plan *domain.QueryPlan, maxRows int) ([]map[string]any, []string, error) {
	if len(plan.Queries) == 1 {
		res, err := s.runOne(ctx, facct, plan.Queries[0], maxRows)
		if err != nil {
			return nil, nil, err
		}
		return res.Rows, res.Warnings, nil
	}

	results := make([]*adapter.Result, len(plan.Queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range plan.Queries {
		g.Go(func() error {
			res, err := s.runOne(gctx, facct, q, maxRows)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	// plan-order concatenation; completion order is irrelevant
	var rows []map[string]any
	var warnings []string
	for _, res := range results {
		rows = append(rows, res.Rows...)
		warnings = append(warnings, res.Warnings...)
	}
	return rows, warnings, nil
}

func (s *Svc) runOne(ctx context.Context, facct factory.Account, q domain.DatabaseQuery, maxRows int) (*adapter.Result, error) {
	switch q.Kind {
	case domain.KindRelational:
		a, err := s.factory.Get(ctx, facct, q.Database)
		if err != nil {
			return nil, err
		}
		return a.Execute(ctx, adapter.Request{
			SQL:     q.SQL,
			Args:    q.Parameters,
			MaxRows: maxRows,
		})
	case domain.KindDocument:
		if q.Collection == "" {
			return nil, perr.Newf(perr.ErrorCodeMissingCollection,
				"document query against %s names no collection", q.Database)
		}
		a, err := s.factory.Get(ctx, facct, q.Database)
		if err != nil {
			return nil, err
		}
		return a.Execute(ctx, adapter.Request{
			Collection: q.Collection,
			Pipeline:   q.Pipeline,
			MaxRows:    maxRows,
		})
	default:
		return nil, perr.Newf(perr.ErrorCodeUnsupportedQuery, "unsupported query kind %q", q.Kind)
	}
}
