package main

import (
	"net/http"

	"gitea.kood.tech/petrkubec/match-me/engine/matching"
)

// GET /candidates?page=1&page_size=20
func candidatesHandler(eng *matching.Engine) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		userID := userIDFromContext(r.Context())

		page, err := queryInt(r, "page", 1)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		size, err := queryInt(r, "page_size", 0)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		candidates, err := eng.DiscoverCandidates(r.Context(), userID, page, size)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"candidates": candidates,
			"page":       page,
		})
	})
}
