package middlewares

import (
	"context"

	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
	"github.com/DataGeek404/micro-finance-app-sub001/models"
	"github.com/graph-gophers/dataloader/v7"
)

type clientReader struct {
	records gateway.Records
}

func (r *clientReader) getClients(ctx context.Context, ids []int) []*dataloader.Result[*models.Client] {
	if r.records == nil {
		return handleError[*models.Client](len(ids), models.ErrGatewayNotConfigured)
	}
	var results []models.Client
	if err := r.records.Select(ctx, gateway.From(&models.Client{}).In("id", ids), &results); err != nil {
		return handleError[*models.Client](len(ids), err)
	}
	return generateLoaderResults(results, ids)
}

func GetClient(ctx context.Context, id int) (*models.Client, error) {
	loaders := For(ctx)
	if loaders == nil {
		return models.GetClient(ctx, id)
	}
	return loaders.ClientLoader.Load(ctx, id)()
}

// AttachLoanClients fills Loan.Client where the list query did not preload it.
func AttachLoanClients(ctx context.Context, loans []*models.Loan) error {
	loaders := For(ctx)
	thunks := make([]func() (*models.Client, error), len(loans))
	for i, loan := range loans {
		if loan == nil || loan.Client != nil {
			continue
		}
		if loaders == nil {
			id := loan.ClientId
			thunks[i] = func() (*models.Client, error) { return models.GetClient(ctx, id) }
			continue
		}
		thunks[i] = loaders.ClientLoader.Load(ctx, loan.ClientId)
	}
	for i, thunk := range thunks {
		if thunk == nil {
			continue
		}
		client, err := thunk()
		if err != nil {
			return err
		}
		loans[i].Client = client
	}
	return nil
}
