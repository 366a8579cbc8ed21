package models

import (
	"context"

	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
)

// GetResource fetches one row by id. The branch scope of ctx applies.
// (may return gateway.ErrNotFound)
func GetResource[T any](ctx context.Context, id int, associations ...string) (*T, error) {
	g, err := records()
	if err != nil {
		return nil, err
	}
	var result T
	if err := g.First(ctx, gateway.From(&result).Eq("id", id).With(associations...), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListResources returns one page of q plus the total row count matching q's filters.
func ListResources[T any](ctx context.Context, q gateway.Query, params ListParams) (*ListResult[T], error) {
	g, err := records()
	if err != nil {
		return nil, err
	}
	params = params.normalized()
	total, err := g.Count(ctx, q)
	if err != nil {
		return nil, err
	}
	items := make([]*T, 0)
	if total > 0 {
		if err := g.Select(ctx, q.Page(params.Page, params.PageSize), &items); err != nil {
			return nil, err
		}
	}
	return &ListResult[T]{Items: items, Total: total, Page: params.Page, PageSize: params.PageSize}, nil
}

func updateResource[T any](ctx context.Context, id int, values map[string]any) (*T, error) {
	g, err := records()
	if err != nil {
		return nil, err
	}
	if _, err := GetResource[T](ctx, id); err != nil {
		return nil, err
	}
	if err := g.Update(ctx, new(T), id, values); err != nil {
		return nil, err
	}
	return GetResource[T](ctx, id)
}

// DeleteResource removes the row and returns it as it was before deletion.
func DeleteResource[T any](ctx context.Context, id int) (*T, error) {
	g, err := records()
	if err != nil {
		return nil, err
	}
	result, err := GetResource[T](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := g.Delete(ctx, new(T), id); err != nil {
		return nil, err
	}
	return result, nil
}
