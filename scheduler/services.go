package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"gitea.kood.tech/petrkubec/match-me/engine/logging"
	"gitea.kood.tech/petrkubec/match-me/engine/metrics"
)

// Sweeper is the part of matching.Engine the scheduler drives.
type Sweeper interface {
	SweepBoostExpiry(ctx context.Context, now time.Time) (int64, error)
	SweepDailyReset(ctx context.Context, now time.Time) (int64, error)
}

// BoostExpiryService sweeps expired boosts every interval, starting
// immediately. Sweep failures are logged and retried on the next tick.
type BoostExpiryService struct {
	sweeper  Sweeper
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

func NewBoostExpiryService(s Sweeper, interval, timeout time.Duration) *BoostExpiryService {
	return &BoostExpiryService{
		sweeper:  s,
		interval: interval,
		timeout:  timeout,
		now:      time.Now,
		log:      logging.Component("scheduler"),
	}
}

func (s *BoostExpiryService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one sweep bounded by the sweep timeout.
func (s *BoostExpiryService) Tick(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.sweeper.SweepBoostExpiry(sweepCtx, s.now().UTC()); err != nil {
		s.log.Error().Err(err).Msg("boost expiry sweep failed")
	}
}

func (s *BoostExpiryService) String() string { return "boost-expiry" }

// RunLedger records completed runs of daily jobs durably, so a restarted
// instance can tell whether today's run happened.
type RunLedger interface {
	JobCompleted(ctx context.Context, job string, day time.Time) (bool, error)
	CompleteJob(ctx context.Context, job string, day time.Time) error
}

const dailyResetJob = "daily-reset"

// DailyResetService zeroes daily counters at hour:minute UTC. Only the
// instance that wins the per-day lock runs the reset.
type DailyResetService struct {
	sweeper Sweeper
	locker  Locker
	ledger  RunLedger
	hour    int
	minute  int
	lockTTL time.Duration
	timeout time.Duration

	// A failed reset is retried by the lock holder.
	retries   int
	retryWait time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

func NewDailyResetService(s Sweeper, l Locker, hour, minute int, lockTTL, timeout time.Duration) *DailyResetService {
	return &DailyResetService{
		sweeper:   s,
		locker:    l,
		hour:      hour,
		minute:    minute,
		lockTTL:   lockTTL,
		timeout:   timeout,
		retries:   5,
		retryWait: 30 * time.Second,
		now:       time.Now,
		log:       logging.Component("scheduler"),
	}
}

// WithLedger records completed resets in l and enables the startup catch-up.
func (s *DailyResetService) WithLedger(l RunLedger) *DailyResetService {
	s.ledger = l
	return s
}

// NextReset is the first hour:minute UTC strictly after now.
func NextReset(now time.Time, hour, minute int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// LastReset is the latest hour:minute UTC at or before now.
func LastReset(now time.Time, hour, minute int) time.Time {
	return NextReset(now, hour, minute).AddDate(0, 0, -1)
}

func (s *DailyResetService) Serve(ctx context.Context) error {
	if err := s.catchUp(ctx); errors.Is(err, context.Canceled) {
		return err
	}
	for {
		at := NextReset(s.now(), s.hour, s.minute)
		s.log.Debug().Time("at", at).Msg("next daily reset scheduled")

		timer := time.NewTimer(time.Until(at))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := s.runWithRetry(ctx, at); errors.Is(err, context.Canceled) {
			return err
		}
	}
}

// catchUp runs the most recent reset when no instance recorded it, which
// happens when every instance was down at reset time.
func (s *DailyResetService) catchUp(ctx context.Context) error {
	if s.ledger == nil {
		return nil
	}
	at := LastReset(s.now(), s.hour, s.minute)
	done, err := s.ledger.JobCompleted(ctx, dailyResetJob, at)
	if err != nil {
		s.log.Error().Err(err).Time("at", at).Msg("cannot read daily reset history")
		return err
	}
	if done {
		return nil
	}
	s.log.Warn().Time("at", at).Msg("daily reset was missed, running it now")
	return s.runWithRetry(ctx, at)
}

// runWithRetry runs the reset for at and, as lock holder, retries failed
// sweeps up to s.retries times. It returns the last error.
func (s *DailyResetService) runWithRetry(ctx context.Context, at time.Time) error {
	ran, err := s.RunOnce(ctx, at)
	for attempt := 1; err != nil; attempt++ {
		s.log.Error().Err(err).Time("at", at).Int("attempt", attempt).Msg("daily reset failed")
		if !ran || attempt > s.retries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryWait):
		}
		err = s.reset(ctx, at)
	}
	if ran {
		s.record(ctx, at)
	}
	return nil
}

func (s *DailyResetService) record(ctx context.Context, at time.Time) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.CompleteJob(ctx, dailyResetJob, at); err != nil {
		s.log.Error().Err(err).Time("at", at).Msg("daily reset not recorded")
	}
}

// RunOnce performs the reset scheduled for at if this instance wins the
// lock for that day. ran is false when another instance holds it.
func (s *DailyResetService) RunOnce(ctx context.Context, at time.Time) (ran bool, err error) {
	key := dailyResetJob + ":" + at.UTC().Format(time.DateOnly)
	ok, err := s.locker.TryAcquire(ctx, key, s.lockTTL)
	if err != nil {
		metrics.RecordSweep("daily_reset", 0, err)
		return false, err
	}
	if !ok {
		s.log.Info().Str("key", key).Msg("daily reset claimed by another instance")
		return false, nil
	}

	return true, s.reset(ctx, at)
}

func (s *DailyResetService) reset(ctx context.Context, at time.Time) error {
	sweepCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.sweeper.SweepDailyReset(sweepCtx, at)
	return err
}

func (s *DailyResetService) String() string { return "daily-reset" }
