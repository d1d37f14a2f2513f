package matching

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ProfileStore owns profiles, their daily counters and boost state.
// Counter and boost mutations must be single conditional updates.
type ProfileStore interface {
	// GetProfile returns ErrNotFound for unknown ids.
	GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error)
	// GetProfiles returns the subset of ids that exist.
	GetProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Profile, error)
	// IncrementCounterIfBelow adds one to the kind counter only while it is
	// below limit. It reports false, without mutating, when the limit is hit.
	IncrementCounterIfBelow(ctx context.Context, id uuid.UUID, kind ActionKind, limit int) (bool, error)
	ActivateBoost(ctx context.Context, id uuid.UUID, boost Boost) error
	// ExpireBoosts deactivates every active boost with expiresAt <= now.
	ExpireBoosts(ctx context.Context, now time.Time) (int64, error)
	// ResetDailyCounters zeroes the daily counters of every profile that has
	// a non-zero counter and reports how many profiles changed.
	ResetDailyCounters(ctx context.Context) (int64, error)
	// FindCandidates applies c, excludes every target the actor has swiped,
	// and returns one page ordered by (RankKey, ID).
	FindCandidates(ctx context.Context, c CandidateCriteria) ([]CandidateSummary, error)
}

// SwipeStore holds at most one record per (actor, target).
type SwipeStore interface {
	// UpsertSwipe inserts or overwrites decision and UpdatedAt; CreatedAt is
	// kept from the first write.
	UpsertSwipe(ctx context.Context, s SwipeRecord) error
	// GetSwipe returns ErrNotFound when actor never swiped target.
	GetSwipe(ctx context.Context, actorID, targetID uuid.UUID) (*SwipeRecord, error)
}

// MatchStore enforces one match per canonical pair.
type MatchStore interface {
	// InsertMatch returns ErrDuplicateMatch when the pair already has a match.
	InsertMatch(ctx context.Context, m Match) error
	FindMatchByPair(ctx context.Context, p Pair) (*Match, error)
	GetMatch(ctx context.Context, id uuid.UUID) (*Match, error)
	// ListMatches returns the active matches of userID, newest first.
	ListMatches(ctx context.Context, userID uuid.UUID) ([]Match, error)
	// DeactivateMatch flips an active match to inactive; false when it was
	// already inactive.
	DeactivateMatch(ctx context.Context, id, by uuid.UUID, at time.Time) (bool, error)
}

type Store interface {
	ProfileStore
	SwipeStore
	MatchStore
}

// CandidateCriteria is the typed filter handed to ProfileStore.FindCandidates.
type CandidateCriteria struct {
	ActorID       uuid.UUID
	Origin        Point
	MaxDistanceKm float64

	// bornAfter < birth_date <= bornOnOrBefore
	BornAfter      time.Time
	BornOnOrBefore time.Time
	Genders        []Gender

	// When Symmetric is set the candidate's own preferences must accept
	// ActorAge and ActorGender.
	Symmetric   bool
	ActorAge    int
	ActorGender Gender

	// Boosts count only when they expire after Now.
	Now    time.Time
	Offset int
	Limit  int
}

// NewCandidateCriteria builds the criteria for actor at now.
func NewCandidateCriteria(actor *Profile, now time.Time, symmetric bool, offset, limit int) CandidateCriteria {
	after, onOrBefore := BirthBounds(now, actor.Preferences.MinAge, actor.Preferences.MaxAge)
	return CandidateCriteria{
		ActorID:        actor.ID,
		Origin:         actor.Location,
		MaxDistanceKm:  actor.Preferences.MaxDistanceKm,
		BornAfter:      after,
		BornOnOrBefore: onOrBefore,
		Genders:        actor.Preferences.InterestedIn.Genders(),
		Symmetric:      symmetric,
		ActorAge:       AgeOn(actor.BirthDate, now),
		ActorGender:    actor.Gender,
		Now:            now,
		Offset:         offset,
		Limit:          limit,
	}
}

// Evaluate applies every filter except swipe exclusion to p. Stores that
// cannot push the filter down (tests, caches) use it directly.
func (c CandidateCriteria) Evaluate(p *Profile) (CandidateSummary, bool) {
	if p.ID == c.ActorID || !p.Active() {
		return CandidateSummary{}, false
	}
	if !p.BirthDate.After(c.BornAfter) || p.BirthDate.After(c.BornOnOrBefore) {
		return CandidateSummary{}, false
	}
	if !containsGender(c.Genders, p.Gender) {
		return CandidateSummary{}, false
	}
	if c.Symmetric {
		prefs := p.Preferences
		if c.ActorAge < prefs.MinAge || c.ActorAge > prefs.MaxAge || !prefs.InterestedIn.Accepts(c.ActorGender) {
			return CandidateSummary{}, false
		}
	}

	dist := HaversineKm(c.Origin, p.Location)
	if dist > c.MaxDistanceKm {
		return CandidateSummary{}, false
	}
	mult := p.Boost.EffectiveMultiplier(c.Now)
	return CandidateSummary{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Age:         AgeOn(p.BirthDate, c.Now),
		Gender:      p.Gender,
		DistanceKm:  dist,
		Boosted:     mult > 1,
		RankKey:     dist / mult,
	}, true
}

func containsGender(gs []Gender, g Gender) bool {
	for _, x := range gs {
		if x == g {
			return true
		}
	}
	return false
}

// SortCandidates orders by RankKey ascending, then id.
func SortCandidates(cs []CandidateSummary) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].RankKey != cs[j].RankKey {
			return cs[i].RankKey < cs[j].RankKey
		}
		return bytes.Compare(cs[i].ID[:], cs[j].ID[:]) < 0
	})
}

// Page slices an ordered result the way OFFSET/LIMIT would. A negative
// offset counts as zero.
func Page[T any](all []T, offset, limit int) []T {
	offset = max(offset, 0)
	if offset >= len(all) {
		return []T{}
	}
	end := len(all)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	return all[offset:end]
}
