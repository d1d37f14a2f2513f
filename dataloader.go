package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader/v7"

	"gitea.kood.tech/petrkubec/match-me/engine/graph"
	"gitea.kood.tech/petrkubec/match-me/engine/matching"
)

// DataLoaderContextKey is the key used to store dataloaders in context
type DataLoaderContextKey string

const dataLoaderKey DataLoaderContextKey = "dataloader"

// DataLoaders batches profile lookups made while rendering one response.
type DataLoaders struct {
	ProfileLoader *dataloader.Loader[uuid.UUID, *matching.Profile]
}

func NewDataLoaders(profiles matching.ProfileStore) *DataLoaders {
	return &DataLoaders{
		ProfileLoader: dataloader.NewBatchedLoader(
			profileBatchFn(profiles),
			dataloader.WithWait[uuid.UUID, *matching.Profile](16*time.Millisecond),
		),
	}
}

// GetDataLoadersFromContext retrieves dataloaders from context
func GetDataLoadersFromContext(ctx context.Context) *DataLoaders {
	if dl, ok := ctx.Value(dataLoaderKey).(*DataLoaders); ok {
		return dl
	}
	return nil
}

// WithDataLoaders adds dataloaders to context
func WithDataLoaders(ctx context.Context, dl *DataLoaders) context.Context {
	return context.WithValue(ctx, dataLoaderKey, dl)
}

// profileBatchFn resolves a batch with one GetProfiles call. Unknown ids
// resolve to matching.ErrNotFound.
func profileBatchFn(profiles matching.ProfileStore) dataloader.BatchFunc[uuid.UUID, *matching.Profile] {
	return func(ctx context.Context, keys []uuid.UUID) []*dataloader.Result[*matching.Profile] {
		results := make([]*dataloader.Result[*matching.Profile], len(keys))
		if len(keys) == 0 {
			return results
		}

		found, err := profiles.GetProfiles(ctx, keys)
		for i, key := range keys {
			switch p, ok := found[key]; {
			case err != nil:
				results[i] = &dataloader.Result[*matching.Profile]{Error: err}
			case !ok:
				results[i] = &dataloader.Result[*matching.Profile]{Error: matching.ErrNotFound}
			default:
				results[i] = &dataloader.Result[*matching.Profile]{Data: p}
			}
		}
		return results
	}
}

// profileLoader batches GraphQL profile lookups through the request's
// ProfileLoader. Subscriptions carry no loaders and read the store directly.
func profileLoader(profiles matching.ProfileStore) graph.ProfileLoadFunc {
	return func(ctx context.Context, id uuid.UUID) func() (*matching.Profile, error) {
		if dl := GetDataLoadersFromContext(ctx); dl != nil {
			return dl.ProfileLoader.Load(ctx, id)
		}
		p, err := profiles.GetProfile(ctx, id)
		return func() (*matching.Profile, error) { return p, err }
	}
}
