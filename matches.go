package main

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader/v7"

	"gitea.kood.tech/petrkubec/match-me/engine/matching"
)

// GET /matches lists the caller's active matches, newest first, with the
// counterpart's summary. Counterparts are loaded in one batch.
func matchesHandler(eng *matching.Engine) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := userIDFromContext(ctx)

		matches, err := eng.ListMatches(ctx, userID)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		loaders := GetDataLoadersFromContext(ctx)
		if loaders == nil {
			writeError(w, http.StatusInternalServerError, "internal_error")
			return
		}

		thunks := make([]dataloader.Thunk[*matching.Profile], len(matches))
		for i, m := range matches {
			thunks[i] = loaders.ProfileLoader.Load(ctx, m.Counterpart(userID))
		}

		now := eng.Now()
		views := make([]MatchView, 0, len(matches))
		for i, m := range matches {
			view := MatchView{ID: m.ID, CreatedAt: m.CreatedAt}
			p, err := thunks[i]()
			switch {
			case err == nil:
				view.With = &ProfileSummary{
					ID:          p.ID,
					DisplayName: p.DisplayName,
					Age:         matching.AgeOn(p.BirthDate, now),
					Gender:      p.Gender,
				}
			case errors.Is(err, matching.ErrNotFound):
				// counterpart deleted; keep the match with no summary
			default:
				writeEngineError(w, r, err)
				return
			}
			views = append(views, view)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"matches": views})
	})
}

// DELETE /matches/{matchId}
func unmatchHandler(eng *matching.Engine) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		matchID, err := uuid.Parse(r.PathValue("matchId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if err := eng.Unmatch(r.Context(), userIDFromContext(r.Context()), matchID); err != nil {
			writeEngineError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
