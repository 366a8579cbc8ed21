package middlewares

import (
	"context"
	"reflect"
	"time"

	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
	"github.com/DataGeek404/micro-finance-app-sub001/models"
	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// Loaders batch lookups made while building one response.
type Loaders struct {
	BranchLoader *dataloader.Loader[int, *models.Branch]
	ClientLoader *dataloader.Loader[int, *models.Client]
}

// NewLoaders instantiates data loaders reading through records
func NewLoaders(records gateway.Records) *Loaders {
	branchReader := &branchReader{records: records}
	clientReader := &clientReader{records: records}

	return &Loaders{
		BranchLoader: dataloader.NewBatchedLoader(branchReader.getBranches, dataloader.WithWait[int, *models.Branch](time.Millisecond)),
		ClientLoader: dataloader.NewBatchedLoader(clientReader.getClients, dataloader.WithWait[int, *models.Client](time.Millisecond)),
	}
}

// LoaderMiddleware installs fresh loaders per request; records is resolved lazily so the
// middleware can be mounted before the gateway is connected.
func LoaderMiddleware(records func() gateway.Records) gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := NewLoaders(records())
		ctx := WithLoaders(c.Request.Context(), loader)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func WithLoaders(ctx context.Context, loaders *Loaders) context.Context {
	return context.WithValue(ctx, loadersKey, loaders)
}

func For(ctx context.Context) *Loaders {
	loaders, _ := ctx.Value(loadersKey).(*Loaders)
	return loaders
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

// turns results from the gateway into dataloader results
// (T must be a struct)
func generateLoaderResults[T models.Data](results []T, ids []int) []*dataloader.Result[*T] {
	resultMap := make(map[int]T)
	var resultZero T
	resultMap[0] = resultZero.GetDefault(0).(T)
	for _, result := range results {
		resultMap[result.GetId()] = result
	}

	loaderResults := make([]*dataloader.Result[*T], 0, len(ids))
	for _, id := range ids {
		data := resultMap[id]
		if reflect.ValueOf(data).IsZero() {
			data = data.GetDefault(id).(T)
		}
		loaderResults = append(loaderResults, &dataloader.Result[*T]{Data: &data})
	}
	return loaderResults
}
