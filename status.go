package main

import (
	"net/http"

	"github.com/google/uuid"

	"gitea.kood.tech/petrkubec/match-me/engine/matching"
)

// GET /me/quota
func quotaHandler(eng *matching.Engine) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		status, err := eng.QuotaStatus(r.Context(), userIDFromContext(r.Context()))
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	})
}

// GET /me/boost
func boostStatusHandler(eng *matching.Engine) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		b, err := eng.BoostStatus(r.Context(), userIDFromContext(r.Context()))
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newBoostView(b))
	})
}

// POST /internal/boosts {"user_id": "...", "boost_type": "boost5"}
// Called by billing after a boost purchase.
func activateBoostHandler(eng *matching.Engine, serviceKeyHash string) http.HandlerFunc {
	return requireServiceKey(serviceKeyHash, func(w http.ResponseWriter, r *http.Request) {
		var req boostRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		b, err := eng.ActivateBoost(r.Context(), uuid.MustParse(req.UserID), req.BoostType)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newBoostView(b))
	})
}

// POST /internal/quota/{userId}/{action}
// Called by the messaging service before it sends a message; a 429 means the
// actor has used the daily budget for action.
func checkQuotaHandler(eng *matching.Engine, serviceKeyHash string) http.HandlerFunc {
	return requireServiceKey(serviceKeyHash, func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.PathValue("userId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		kind, err := matching.ParseActionKind(r.PathValue("action"))
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		if err := eng.CheckQuota(r.Context(), userID, kind); err != nil {
			writeEngineError(w, r, err)
			return
		}
		status, err := eng.QuotaStatus(r.Context(), userID)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	})
}
