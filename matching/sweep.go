package matching

import (
	"context"
	"fmt"
	"time"

	"gitea.kood.tech/petrkubec/match-me/engine/metrics"
)

// SweepBoostExpiry deactivates every boost that expired at or before now
// and returns how many profiles changed. Running it twice is harmless.
func (e *Engine) SweepBoostExpiry(ctx context.Context, now time.Time) (int64, error) {
	n, err := e.store.ExpireBoosts(ctx, now.UTC())
	metrics.RecordSweep("boost_expiry", n, err)
	if err != nil {
		return 0, fmt.Errorf("expire boosts: %w", err)
	}
	if n > 0 {
		e.log.Info().Int64("expired", n).Time("now", now).Msg("boosts expired")
	}
	return n, nil
}

// SweepDailyReset zeroes every daily counter. The caller decides when a
// day boundary passed; the count covers only profiles that had usage.
func (e *Engine) SweepDailyReset(ctx context.Context, now time.Time) (int64, error) {
	n, err := e.store.ResetDailyCounters(ctx)
	metrics.RecordSweep("daily_reset", n, err)
	if err != nil {
		return 0, fmt.Errorf("reset daily counters: %w", err)
	}
	e.log.Info().Int64("reset", n).Time("now", now).Msg("daily limits reset")
	return n, nil
}
