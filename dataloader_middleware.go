package main

import (
	"net/http"

	"gitea.kood.tech/petrkubec/match-me/engine/matching"
)

// DataLoaderMiddleware creates middleware that injects dataloaders into the request context
func DataLoaderMiddleware(profiles matching.ProfileStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Fresh loaders per request: the cache must not outlive it.
			ctx := WithDataLoaders(r.Context(), NewDataLoaders(profiles))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
