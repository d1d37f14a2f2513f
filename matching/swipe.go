package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"gitea.kood.tech/petrkubec/match-me/engine/metrics"
)

// RecordSwipe validates and writes the actor's decision about target, then,
// for likes and superlikes, checks for a reciprocal positive swipe.
//
// Order matters: nothing is written until validation passes, and the quota
// is consumed before the ledger write so a rejected swipe leaves no trace.
// Re-swiping the same target overwrites the previous decision and consumes
// quota again.
func (e *Engine) RecordSwipe(ctx context.Context, actorID, targetID uuid.UUID, decision Decision) (SwipeResult, error) {
	decision, err := ParseDecision(string(decision))
	if err != nil {
		return SwipeResult{}, err
	}
	if actorID == targetID {
		return SwipeResult{}, &ValidationError{Field: "target", Reason: "cannot swipe on yourself"}
	}
	if targetID == uuid.Nil {
		return SwipeResult{}, &ValidationError{Field: "target", Reason: "missing id"}
	}

	actor, err := e.activeProfile(ctx, actorID, "actor")
	if err != nil {
		return SwipeResult{}, err
	}
	if _, err := e.activeProfile(ctx, targetID, "target"); err != nil {
		return SwipeResult{}, err
	}

	if err := e.consumeQuota(ctx, actor, ActionSwipe); err != nil {
		return SwipeResult{}, err
	}

	now := e.clock()
	err = e.store.UpsertSwipe(ctx, SwipeRecord{
		ActorID:   actorID,
		TargetID:  targetID,
		Decision:  decision,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return SwipeResult{}, fmt.Errorf("record swipe: %w", err)
	}
	metrics.RecordSwipe(string(decision))

	if !decision.Positive() {
		return SwipeResult{}, nil
	}

	res, err := e.detectMatch(ctx, actorID, targetID)
	if err != nil {
		return SwipeResult{}, err
	}
	if decision == DecisionSuperlike && !res.Matched {
		e.notify(ctx, NotificationEvent{
			ID:          uuid.New(),
			RecipientID: targetID,
			Kind:        NotifySuperLike,
			Payload:     map[string]string{"from_user_id": actorID.String()},
			CreatedAt:   now,
		})
	}
	return res, nil
}

// detectMatch runs after the actor's positive swipe is stored. The
// reciprocal read happens after our own write committed, so of two racing
// reciprocal swipes at least one sees the other; if both do, the unique
// pair constraint lets only one insert win and the loser reuses its match.
func (e *Engine) detectMatch(ctx context.Context, actorID, targetID uuid.UUID) (SwipeResult, error) {
	reciprocal, err := e.store.GetSwipe(ctx, targetID, actorID)
	if errors.Is(err, ErrNotFound) {
		return SwipeResult{}, nil
	}
	if err != nil {
		return SwipeResult{}, fmt.Errorf("load reciprocal swipe: %w", err)
	}
	if !reciprocal.Decision.Positive() {
		return SwipeResult{}, nil
	}

	pair, err := CanonicalPair(actorID, targetID)
	if err != nil {
		return SwipeResult{}, err
	}
	m := Match{
		ID:        uuid.New(),
		UserLow:   pair.Low,
		UserHigh:  pair.High,
		CreatedAt: e.clock(),
		Active:    true,
	}

	err = e.store.InsertMatch(ctx, m)
	if errors.Is(err, ErrDuplicateMatch) {
		return e.existingMatch(ctx, pair)
	}
	if err != nil {
		return SwipeResult{}, fmt.Errorf("insert match: %w", err)
	}

	metrics.MatchesCreated.Inc()
	e.log.Info().
		Str("match_id", m.ID.String()).
		Str("user_low", m.UserLow.String()).
		Str("user_high", m.UserHigh.String()).
		Msg("match created")
	e.announce(ctx, m)

	id := m.ID
	return SwipeResult{Matched: true, MatchID: &id}, nil
}

// existingMatch resolves a duplicate insert. A match that was unmatched
// stays closed: the pair does not re-match.
func (e *Engine) existingMatch(ctx context.Context, pair Pair) (SwipeResult, error) {
	metrics.MatchRacesAbsorbed.Inc()
	m, err := e.store.FindMatchByPair(ctx, pair)
	if err != nil {
		return SwipeResult{}, fmt.Errorf("load existing match: %w", err)
	}
	if !m.Active {
		return SwipeResult{}, nil
	}
	id := m.ID
	return SwipeResult{Matched: true, MatchID: &id}, nil
}

// announce emits the single onMatchCreated event and one notification per
// participant.
func (e *Engine) announce(ctx context.Context, m Match) {
	if err := e.notifier.MatchCreated(ctx, m); err != nil {
		metrics.NotificationFailures.WithLabelValues("match_created").Inc()
		e.log.Warn().Err(err).Str("match_id", m.ID.String()).Msg("match created event not delivered")
	}
	for _, uid := range m.Participants() {
		e.notify(ctx, NotificationEvent{
			ID:          uuid.New(),
			RecipientID: uid,
			Kind:        NotifyMatch,
			Payload: map[string]string{
				"match_id":     m.ID.String(),
				"with_user_id": m.Counterpart(uid).String(),
			},
			CreatedAt: m.CreatedAt,
		})
	}
}

func (e *Engine) notify(ctx context.Context, evt NotificationEvent) {
	if err := e.notifier.Notify(ctx, evt); err != nil {
		metrics.NotificationFailures.WithLabelValues(string(evt.Kind)).Inc()
		e.log.Warn().
			Err(err).
			Str("recipient", evt.RecipientID.String()).
			Str("kind", string(evt.Kind)).
			Msg("notification not delivered")
	}
}
