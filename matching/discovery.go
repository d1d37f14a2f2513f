package matching

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"gitea.kood.tech/petrkubec/match-me/engine/metrics"
)

// DiscoverCandidates returns page (1-based) of profiles the actor may swipe
// on, nearest first with boosted profiles pulled forward.
// A pageSize <= 0 selects the default; larger sizes are clamped.
func (e *Engine) DiscoverCandidates(ctx context.Context, actorID uuid.UUID, page, pageSize int) ([]CandidateSummary, error) {
	if page < 1 {
		return nil, &ValidationError{Field: "page", Reason: "must be >= 1"}
	}
	if pageSize <= 0 {
		pageSize = e.cfg.DefaultPageSize
	}
	if pageSize > e.cfg.MaxPageSize {
		pageSize = e.cfg.MaxPageSize
	}
	if page-1 > math.MaxInt/pageSize {
		return nil, &ValidationError{Field: "page", Reason: "out of range"}
	}

	actor, err := e.activeProfile(ctx, actorID, "actor")
	if err != nil {
		return nil, err
	}

	criteria := NewCandidateCriteria(actor, e.clock(), e.cfg.SymmetricPreferences, (page-1)*pageSize, pageSize)
	out, err := e.store.FindCandidates(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	if out == nil {
		out = []CandidateSummary{}
	}

	metrics.CandidatesServed.Observe(float64(len(out)))
	e.log.Debug().
		Str("actor", actorID.String()).
		Int("page", page).
		Int("returned", len(out)).
		Msg("candidates discovered")
	return out, nil
}
