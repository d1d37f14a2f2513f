package matching

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ListMatches returns the user's active matches, newest first.
func (e *Engine) ListMatches(ctx context.Context, userID uuid.UUID) ([]Match, error) {
	ms, err := e.store.ListMatches(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	if ms == nil {
		ms = []Match{}
	}
	return ms, nil
}

// Unmatch closes a match on behalf of one of its participants. Closing an
// already closed match succeeds. Matches the user is not part of are
// reported as not found.
func (e *Engine) Unmatch(ctx context.Context, userID, matchID uuid.UUID) error {
	m, err := e.store.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if !m.Involves(userID) {
		return notFound("match " + matchID.String())
	}
	if !m.Active {
		return nil
	}

	changed, err := e.store.DeactivateMatch(ctx, matchID, userID, e.clock())
	if err != nil {
		return fmt.Errorf("deactivate match: %w", err)
	}
	if changed {
		e.log.Info().
			Str("match_id", matchID.String()).
			Str("by", userID.String()).
			Msg("match closed")
	}
	return nil
}
