package matching

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"gitea.kood.tech/petrkubec/match-me/engine/metrics"
)

// CheckQuota consumes one unit of the actor's daily budget for kind.
// It returns a *QuotaExceededError, leaving the counter untouched, once the
// plan limit is reached. Unlimited plans are allowed without any write.
func (e *Engine) CheckQuota(ctx context.Context, actorID uuid.UUID, kind ActionKind) error {
	if _, err := ParseActionKind(string(kind)); err != nil {
		return err
	}
	actor, err := e.activeProfile(ctx, actorID, "actor")
	if err != nil {
		return err
	}
	return e.consumeQuota(ctx, actor, kind)
}

func (e *Engine) consumeQuota(ctx context.Context, actor *Profile, kind ActionKind) error {
	limit, unlimited := e.cfg.limit(actor.Plan, kind)
	if unlimited {
		return nil
	}

	ok, err := e.store.IncrementCounterIfBelow(ctx, actor.ID, kind, limit)
	if err != nil {
		return fmt.Errorf("increment %s counter: %w", kind, err)
	}
	if !ok {
		metrics.RecordQuotaRejection(string(kind), string(actor.Plan))
		e.log.Info().
			Str("actor", actor.ID.String()).
			Str("action", string(kind)).
			Int("limit", limit).
			Msg("daily quota exhausted")
		return &QuotaExceededError{Action: kind, Limit: limit}
	}
	return nil
}

// QuotaStatus reports the actor's usage without consuming anything.
func (e *Engine) QuotaStatus(ctx context.Context, actorID uuid.UUID) (QuotaStatus, error) {
	p, err := e.store.GetProfile(ctx, actorID)
	if err != nil {
		return QuotaStatus{}, err
	}
	usage := func(kind ActionKind) QuotaUsage {
		limit, unlimited := e.cfg.limit(p.Plan, kind)
		if unlimited {
			return QuotaUsage{Used: p.Counter(kind), Unlimited: true}
		}
		return QuotaUsage{Used: p.Counter(kind), Limit: limit}
	}
	return QuotaStatus{
		Plan:     p.Plan,
		Swipes:   usage(ActionSwipe),
		Messages: usage(ActionMessage),
	}, nil
}
