package main

import (
	"net/http"

	"github.com/google/uuid"

	"gitea.kood.tech/petrkubec/match-me/engine/matching"
)

// POST /swipes/{targetId} {"decision": "like" | "pass" | "superlike"}
func swipeHandler(eng *matching.Engine) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		userID := userIDFromContext(r.Context())

		targetID, err := uuid.Parse(r.PathValue("targetId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_target")
			return
		}

		var req swipeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}

		res, err := eng.RecordSwipe(r.Context(), userID, targetID, matching.Decision(req.Decision))
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})
}
