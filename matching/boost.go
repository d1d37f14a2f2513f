package matching

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ActivateBoost grants the boost product named boostType starting now.
// An already running boost is replaced.
func (e *Engine) ActivateBoost(ctx context.Context, userID uuid.UUID, boostType string) (Boost, error) {
	product, ok := e.cfg.Boosts[boostType]
	if !ok {
		return Boost{}, &ValidationError{Field: "boost_type", Reason: "unknown boost " + boostType}
	}
	if userID == uuid.Nil {
		return Boost{}, &ValidationError{Field: "user_id", Reason: "missing id"}
	}

	now := e.clock()
	b := Boost{
		Active:     true,
		ExpiresAt:  now.Add(product.Duration),
		Multiplier: product.Multiplier,
		Type:       boostType,
	}
	if err := e.store.ActivateBoost(ctx, userID, b); err != nil {
		return Boost{}, fmt.Errorf("activate boost: %w", err)
	}

	e.log.Info().
		Str("user", userID.String()).
		Str("boost", boostType).
		Time("expires_at", b.ExpiresAt).
		Msg("boost activated")
	return b, nil
}

// BoostStatus returns the profile's boost. A boost past its expiry that
// the sweep has not reached yet is reported inactive.
func (e *Engine) BoostStatus(ctx context.Context, userID uuid.UUID) (Boost, error) {
	p, err := e.store.GetProfile(ctx, userID)
	if err != nil {
		return Boost{}, err
	}
	b := p.Boost
	if b.EffectiveMultiplier(e.clock()) == 1 {
		b.Active = false
		b.Multiplier = 1
	}
	return b, nil
}
