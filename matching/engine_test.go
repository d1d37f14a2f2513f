package matching_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.kood.tech/petrkubec/match-me/engine/matching"
	"gitea.kood.tech/petrkubec/match-me/engine/matching/matchingtest"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	engine   *matching.Engine
	store    *matchingtest.Store
	notifier *matchingtest.Notifier
	clock    *matchingtest.Clock
}

func newFixture(t *testing.T, mutate ...func(*matching.Config)) *fixture {
	t.Helper()
	cfg := matching.DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	f := &fixture{
		store:    matchingtest.NewStore(),
		notifier: &matchingtest.Notifier{},
		clock:    matchingtest.NewClock(testNow),
	}
	f.engine = matching.New(f.store, f.notifier, cfg,
		matching.WithClock(f.clock.Now),
		matching.WithLogger(zerolog.Nop()),
	)
	return f
}

func (f *fixture) add(name string, gender matching.Gender, edit ...func(*matching.Profile)) matching.Profile {
	p := matchingtest.NewProfile(testNow, name, gender)
	for _, e := range edit {
		e(&p)
	}
	f.store.Put(p)
	return p
}

func (f *fixture) swipes(t *testing.T, id uuid.UUID) int {
	t.Helper()
	p, ok := f.store.Profile(id)
	require.True(t, ok)
	return p.DailySwipes
}

func TestRecordSwipeMutualLike(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.add("Alice", matching.GenderFemale)
	b := f.add("Bob", matching.GenderMale)

	res, err := f.engine.RecordSwipe(ctx, a.ID, b.ID, matching.DecisionLike)
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Nil(t, res.MatchID)

	res, err = f.engine.RecordSwipe(ctx, b.ID, a.ID, matching.DecisionLike)
	require.NoError(t, err)
	require.True(t, res.Matched)
	require.NotNil(t, res.MatchID)

	matches := f.store.Matches()
	require.Len(t, matches, 1)
	m := matches[0]
	assert.Equal(t, *res.MatchID, m.ID)
	assert.True(t, m.Active)

	pair, err := matching.CanonicalPair(a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, pair.Low, m.UserLow)
	assert.Equal(t, pair.High, m.UserHigh)

	require.Len(t, f.notifier.Created(), 1)
	assert.Equal(t, m.ID, f.notifier.Created()[0].ID)

	for _, uid := range []uuid.UUID{a.ID, b.ID} {
		evts := f.notifier.EventsFor(uid)
		require.Len(t, evts, 1)
		assert.Equal(t, matching.NotifyMatch, evts[0].Kind)
		assert.Equal(t, m.ID.String(), evts[0].Payload["match_id"])
	}
}

func TestRecordSwipeDecisions(t *testing.T) {
	ctx := context.Background()

	t.Run("pass never matches", func(t *testing.T) {
		f := newFixture(t)
		a := f.add("A", matching.GenderFemale)
		b := f.add("B", matching.GenderMale)

		_, err := f.engine.RecordSwipe(ctx, a.ID, b.ID, matching.DecisionLike)
		require.NoError(t, err)
		res, err := f.engine.RecordSwipe(ctx, b.ID, a.ID, matching.DecisionPass)
		require.NoError(t, err)

		assert.False(t, res.Matched)
		assert.Empty(t, f.store.Matches())
	})

	t.Run("like after a pass does not match", func(t *testing.T) {
		f := newFixture(t)
		a := f.add("A", matching.GenderFemale)
		b := f.add("B", matching.GenderMale)

		_, err := f.engine.RecordSwipe(ctx, a.ID, b.ID, matching.DecisionPass)
		require.NoError(t, err)
		res, err := f.engine.RecordSwipe(ctx, b.ID, a.ID, matching.DecisionLike)
		require.NoError(t, err)

		assert.False(t, res.Matched)
		assert.Empty(t, f.notifier.Created())
	})

	t.Run("superlike completes a match", func(t *testing.T) {
		f := newFixture(t)
		a := f.add("A", matching.GenderFemale)
		b := f.add("B", matching.GenderMale)

		_, err := f.engine.RecordSwipe(ctx, a.ID, b.ID, matching.DecisionLike)
		require.NoError(t, err)
		res, err := f.engine.RecordSwipe(ctx, b.ID, a.ID, matching.DecisionSuperlike)
		require.NoError(t, err)
		assert.True(t, res.Matched)
	})

	t.Run("superlike notifies the target", func(t *testing.T) {
		f := newFixture(t)
		a := f.add("A", matching.GenderFemale)
		b := f.add("B", matching.GenderMale)

		res, err := f.engine.RecordSwipe(ctx, a.ID, b.ID, matching.DecisionSuperlike)
		require.NoError(t, err)
		assert.False(t, res.Matched)

		evts := f.notifier.EventsFor(b.ID)
		require.Len(t, evts, 1)
		assert.Equal(t, matching.NotifySuperLike, evts[0].Kind)
		assert.Equal(t, a.ID.String(), evts[0].Payload["from_user_id"])
	})

	t.Run("re-swipe overwrites and consumes quota", func(t *testing.T) {
		f := newFixture(t)
		a := f.add("A", matching.GenderFemale)
		b := f.add("B", matching.GenderMale)

		_, err := f.engine.RecordSwipe(ctx, a.ID, b.ID, matching.DecisionPass)
		require.NoError(t, err)
		_, err = f.engine.RecordSwipe(ctx, a.ID, b.ID, matching.DecisionLike)
		require.NoError(t, err)

		assert.Equal(t, 1, f.store.SwipeCount())
		rec, err := f.store.GetSwipe(ctx, a.ID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, matching.DecisionLike, rec.Decision)
		assert.Equal(t, 2, f.swipes(t, a.ID))
	})

	t.Run("liking an existing match again reports it", func(t *testing.T) {
		f := newFixture(t)
		a := f.add("A", matching.GenderFemale)
		b := f.add("B", matching.GenderMale)

		_, err := f.engine.RecordSwipe(ctx, a.ID, b.ID, matching.DecisionLike)
		require.NoError(t, err)
		first, err := f.engine.RecordSwipe(ctx, b.ID, a.ID, matching.DecisionLike)
		require.NoError(t, err)
		again, err := f.engine.RecordSwipe(ctx, a.ID, b.ID, matching.DecisionLike)
		require.NoError(t, err)

		assert.True(t, again.Matched)
		assert.Equal(t, *first.MatchID, *again.MatchID)
		assert.Len(t, f.store.Matches(), 1)
		assert.Len(t, f.notifier.Created(), 1)
	})
}

func TestRecordSwipeValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.add("A", matching.GenderFemale)
	b := f.add("B", matching.GenderMale)
	banned := f.add("Banned", matching.GenderMale, func(p *matching.Profile) {
		p.Status = matching.StatusBanned
	})

	cases := []struct {
		name     string
		actor    uuid.UUID
		target   uuid.UUID
		decision matching.Decision
		want     error
	}{
		{"self swipe", a.ID, a.ID, matching.DecisionLike, matching.ErrValidation},
		{"unknown decision", a.ID, b.ID, matching.Decision("maybe"), matching.ErrValidation},
		{"nil target", a.ID, uuid.Nil, matching.DecisionLike, matching.ErrValidation},
		{"missing target", a.ID, uuid.New(), matching.DecisionLike, matching.ErrNotFound},
		{"missing actor", uuid.New(), b.ID, matching.DecisionLike, matching.ErrNotFound},
		{"banned target", a.ID, banned.ID, matching.DecisionLike, matching.ErrValidation},
		{"banned actor", banned.ID, a.ID, matching.DecisionLike, matching.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.RecordSwipe(ctx, tc.actor, tc.target, tc.decision)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	assert.Equal(t, 0, f.store.SwipeCount())
	assert.Equal(t, 0, f.swipes(t, a.ID))
}

func TestConcurrentReciprocalSwipes(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		f := newFixture(t)
		a := f.add("A", matching.GenderFemale)
		b := f.add("B", matching.GenderMale)

		var wg sync.WaitGroup
		results := make([]matching.SwipeResult, 2)
		errs := make([]error, 2)
		start := make(chan struct{})
		for j, pair := range [][2]uuid.UUID{{a.ID, b.ID}, {b.ID, a.ID}} {
			wg.Add(1)
			go func(j int, actor, target uuid.UUID) {
				defer wg.Done()
				<-start
				results[j], errs[j] = f.engine.RecordSwipe(ctx, actor, target, matching.DecisionLike)
			}(j, pair[0], pair[1])
		}
		close(start)
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		require.Len(t, f.store.Matches(), 1, "iteration %d", i)
		require.Len(t, f.notifier.Created(), 1, "iteration %d", i)

		matchID := f.store.Matches()[0].ID
		matched := 0
		for _, r := range results {
			if r.Matched {
				matched++
				assert.Equal(t, matchID, *r.MatchID)
			}
		}
		assert.GreaterOrEqual(t, matched, 1)
	}
}

func TestNotificationFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.notifier.Err = errors.New("bus down")
	a := f.add("A", matching.GenderFemale)
	b := f.add("B", matching.GenderMale)

	_, err := f.engine.RecordSwipe(ctx, a.ID, b.ID, matching.DecisionLike)
	require.NoError(t, err)
	res, err := f.engine.RecordSwipe(ctx, b.ID, a.ID, matching.DecisionLike)
	require.NoError(t, err)

	assert.True(t, res.Matched)
	assert.Len(t, f.store.Matches(), 1)
}

func TestStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.add("A", matching.GenderFemale)
	b := f.add("B", matching.GenderMale)
	f.store.Err = fmt.Errorf("dial tcp: %w", matching.ErrStoreUnavailable)

	_, err := f.engine.RecordSwipe(ctx, a.ID, b.ID, matching.DecisionLike)
	assert.ErrorIs(t, err, matching.ErrStoreUnavailable)

	_, err = f.engine.DiscoverCandidates(ctx, a.ID, 1, 10)
	assert.ErrorIs(t, err, matching.ErrStoreUnavailable)

	_, err = f.engine.SweepBoostExpiry(ctx, testNow)
	assert.ErrorIs(t, err, matching.ErrStoreUnavailable)
}

func TestCheckQuota(t *testing.T) {
	ctx := context.Background()

	t.Run("free plan rejects the eleventh swipe", func(t *testing.T) {
		f := newFixture(t)
		a := f.add("A", matching.GenderFemale, func(p *matching.Profile) { p.DailySwipes = 10 })

		err := f.engine.CheckQuota(ctx, a.ID, matching.ActionSwipe)
		var qe *matching.QuotaExceededError
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, 10, qe.Limit)
		assert.ErrorIs(t, err, matching.ErrQuotaExceeded)
		assert.Equal(t, 10, f.swipes(t, a.ID))

		n, err := f.engine.SweepDailyReset(ctx, testNow)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		require.NoError(t, f.engine.CheckQuota(ctx, a.ID, matching.ActionSwipe))
		assert.Equal(t, 1, f.swipes(t, a.ID))
	})

	t.Run("rejected swipe writes nothing", func(t *testing.T) {
		f := newFixture(t)
		a := f.add("A", matching.GenderFemale, func(p *matching.Profile) { p.DailySwipes = 10 })
		b := f.add("B", matching.GenderMale)

		_, err := f.engine.RecordSwipe(ctx, a.ID, b.ID, matching.DecisionLike)
		assert.ErrorIs(t, err, matching.ErrQuotaExceeded)
		assert.Equal(t, 0, f.store.SwipeCount())
	})

	t.Run("premium never increments", func(t *testing.T) {
		f := newFixture(t)
		a := f.add("A", matching.GenderFemale, func(p *matching.Profile) { p.Plan = matching.PlanPremium })

		for i := 0; i < 500; i++ {
			require.NoError(t, f.engine.CheckQuota(ctx, a.ID, matching.ActionSwipe))
		}
		assert.Equal(t, 0, f.swipes(t, a.ID))
	})

	t.Run("zero limit rejects everything", func(t *testing.T) {
		f := newFixture(t, func(c *matching.Config) {
			c.Limits[matching.PlanFree] = matching.PlanLimits{Swipes: 0, Messages: 0}
		})
		a := f.add("A", matching.GenderFemale)

		assert.ErrorIs(t, f.engine.CheckQuota(ctx, a.ID, matching.ActionSwipe), matching.ErrQuotaExceeded)
		assert.ErrorIs(t, f.engine.CheckQuota(ctx, a.ID, matching.ActionMessage), matching.ErrQuotaExceeded)
	})

	t.Run("messages have their own budget", func(t *testing.T) {
		f := newFixture(t)
		a := f.add("A", matching.GenderFemale, func(p *matching.Profile) { p.DailySwipes = 10 })

		for i := 0; i < 5; i++ {
			require.NoError(t, f.engine.CheckQuota(ctx, a.ID, matching.ActionMessage))
		}
		assert.ErrorIs(t, f.engine.CheckQuota(ctx, a.ID, matching.ActionMessage), matching.ErrQuotaExceeded)
	})

	t.Run("concurrent checks never overshoot", func(t *testing.T) {
		f := newFixture(t)
		a := f.add("A", matching.GenderFemale, func(p *matching.Profile) { p.Plan = matching.PlanBasic })

		var wg sync.WaitGroup
		var mu sync.Mutex
		allowed := 0
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if f.engine.CheckQuota(ctx, a.ID, matching.ActionSwipe) == nil {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 40, allowed)
		assert.Equal(t, 40, f.swipes(t, a.ID))
	})

	t.Run("unknown action", func(t *testing.T) {
		f := newFixture(t)
		a := f.add("A", matching.GenderFemale)
		assert.ErrorIs(t, f.engine.CheckQuota(ctx, a.ID, matching.ActionKind("wink")), matching.ErrValidation)
	})
}

func TestQuotaStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.add("A", matching.GenderFemale, func(p *matching.Profile) {
		p.Plan = matching.PlanBasic
		p.DailySwipes = 7
	})
	p := f.add("P", matching.GenderMale, func(p *matching.Profile) { p.Plan = matching.PlanPremium })

	st, err := f.engine.QuotaStatus(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, matching.PlanBasic, st.Plan)
	assert.Equal(t, matching.QuotaUsage{Used: 7, Limit: 40}, st.Swipes)
	assert.Equal(t, matching.QuotaUsage{Used: 0, Limit: 10}, st.Messages)

	st, err = f.engine.QuotaStatus(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, st.Swipes.Unlimited)
}

func TestSweeps(t *testing.T) {
	ctx := context.Background()

	t.Run("boost expiry is idempotent", func(t *testing.T) {
		f := newFixture(t)
		expired := f.add("Expired", matching.GenderFemale, func(p *matching.Profile) {
			p.Boost = matching.Boost{Active: true, ExpiresAt: testNow.Add(-time.Second), Multiplier: 2, Type: "boost5"}
		})
		atNow := f.add("AtNow", matching.GenderFemale, func(p *matching.Profile) {
			p.Boost = matching.Boost{Active: true, ExpiresAt: testNow, Multiplier: 2}
		})
		live := f.add("Live", matching.GenderMale, func(p *matching.Profile) {
			p.Boost = matching.Boost{Active: true, ExpiresAt: testNow.Add(time.Hour), Multiplier: 3}
		})

		n, err := f.engine.SweepBoostExpiry(ctx, testNow)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		n, err = f.engine.SweepBoostExpiry(ctx, testNow)
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)

		for _, id := range []uuid.UUID{expired.ID, atNow.ID} {
			p, _ := f.store.Profile(id)
			assert.False(t, p.Boost.Active)
			assert.Equal(t, 1.0, p.Boost.Multiplier)
		}
		p, _ := f.store.Profile(live.ID)
		assert.True(t, p.Boost.Active)
		assert.Equal(t, 3.0, p.Boost.Multiplier)
	})

	t.Run("daily reset counts only profiles with usage", func(t *testing.T) {
		f := newFixture(t)
		f.add("Used", matching.GenderFemale, func(p *matching.Profile) { p.DailySwipes = 3 })
		f.add("Messaged", matching.GenderFemale, func(p *matching.Profile) { p.DailyMessages = 1 })
		f.add("Idle", matching.GenderMale)

		n, err := f.engine.SweepDailyReset(ctx, testNow)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		n, err = f.engine.SweepDailyReset(ctx, testNow)
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)
	})
}

func TestBoosts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.add("A", matching.GenderFemale)

	b, err := f.engine.ActivateBoost(ctx, a.ID, "boost5")
	require.NoError(t, err)
	assert.True(t, b.Active)
	assert.Equal(t, 2.0, b.Multiplier)
	assert.Equal(t, testNow.Add(time.Hour), b.ExpiresAt)

	status, err := f.engine.BoostStatus(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, status.Active)

	f.clock.Advance(time.Hour)
	status, err = f.engine.BoostStatus(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, status.Active)
	assert.Equal(t, 1.0, status.Multiplier)

	_, err = f.engine.ActivateBoost(ctx, a.ID, "boost99")
	assert.ErrorIs(t, err, matching.ErrValidation)

	_, err = f.engine.ActivateBoost(ctx, uuid.New(), "boost1")
	assert.ErrorIs(t, err, matching.ErrNotFound)
}

func TestUnmatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.add("A", matching.GenderFemale)
	b := f.add("B", matching.GenderMale)
	stranger := f.add("C", matching.GenderMale)

	_, err := f.engine.RecordSwipe(ctx, a.ID, b.ID, matching.DecisionLike)
	require.NoError(t, err)
	res, err := f.engine.RecordSwipe(ctx, b.ID, a.ID, matching.DecisionLike)
	require.NoError(t, err)
	matchID := *res.MatchID

	list, err := f.engine.ListMatches(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	assert.ErrorIs(t, f.engine.Unmatch(ctx, stranger.ID, matchID), matching.ErrNotFound)
	assert.ErrorIs(t, f.engine.Unmatch(ctx, a.ID, uuid.New()), matching.ErrNotFound)

	require.NoError(t, f.engine.Unmatch(ctx, a.ID, matchID))
	require.NoError(t, f.engine.Unmatch(ctx, b.ID, matchID))

	list, err = f.engine.ListMatches(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	again, err := f.engine.RecordSwipe(ctx, a.ID, b.ID, matching.DecisionLike)
	require.NoError(t, err)
	assert.False(t, again.Matched)
	assert.Len(t, f.store.Matches(), 1)
	assert.Len(t, f.notifier.Created(), 1)
}
