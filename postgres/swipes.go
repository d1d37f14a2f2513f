package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"gitea.kood.tech/petrkubec/match-me/engine/matching"
)

func (s *Store) UpsertSwipe(ctx context.Context, sw matching.SwipeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO swipes (actor_id, target_id, decision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (actor_id, target_id) DO UPDATE
		SET decision = EXCLUDED.decision, updated_at = EXCLUDED.updated_at
	`, sw.ActorID, sw.TargetID, string(sw.Decision), sw.CreatedAt, sw.UpdatedAt)
	return classify(err)
}

func (s *Store) GetSwipe(ctx context.Context, actorID, targetID uuid.UUID) (*matching.SwipeRecord, error) {
	var (
		sw       matching.SwipeRecord
		decision string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT actor_id, target_id, decision, created_at, updated_at
		FROM swipes
		WHERE actor_id = $1 AND target_id = $2
	`, actorID, targetID).Scan(&sw.ActorID, &sw.TargetID, &decision, &sw.CreatedAt, &sw.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("swipe %s -> %s: %w", actorID, targetID, matching.ErrNotFound)
	}
	if err != nil {
		return nil, classify(err)
	}
	sw.Decision = matching.Decision(decision)
	sw.CreatedAt = sw.CreatedAt.UTC()
	sw.UpdatedAt = sw.UpdatedAt.UTC()
	return &sw, nil
}
