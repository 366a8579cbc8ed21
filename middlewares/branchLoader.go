package middlewares

import (
	"context"

	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
	"github.com/DataGeek404/micro-finance-app-sub001/models"
	"github.com/graph-gophers/dataloader/v7"
)

type branchReader struct {
	records gateway.Records
}

func (r *branchReader) getBranches(ctx context.Context, ids []int) []*dataloader.Result[*models.Branch] {
	if r.records == nil {
		return handleError[*models.Branch](len(ids), models.ErrGatewayNotConfigured)
	}
	var results []models.Branch
	if err := r.records.Select(ctx, gateway.From(&models.Branch{}).In("id", ids), &results); err != nil {
		return handleError[*models.Branch](len(ids), err)
	}
	return generateLoaderResults(results, ids)
}

func GetBranch(ctx context.Context, id int) (*models.Branch, error) {
	loaders := For(ctx)
	if loaders == nil {
		return models.GetBranch(ctx, id)
	}
	return loaders.BranchLoader.Load(ctx, id)()
}

// AttachClientBranches fills Client.Branch for every client in one batched lookup.
func AttachClientBranches(ctx context.Context, clients []*models.Client) error {
	loaders := For(ctx)
	thunks := make([]func() (*models.Branch, error), len(clients))
	for i, client := range clients {
		if client == nil {
			continue
		}
		if loaders == nil {
			id := client.BranchId
			thunks[i] = func() (*models.Branch, error) { return models.GetBranch(ctx, id) }
			continue
		}
		thunks[i] = loaders.BranchLoader.Load(ctx, client.BranchId)
	}
	for i, thunk := range thunks {
		if thunk == nil {
			continue
		}
		branch, err := thunk()
		if err != nil {
			return err
		}
		clients[i].Branch = branch
	}
	return nil
}
