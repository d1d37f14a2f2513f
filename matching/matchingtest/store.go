// Package matchingtest provides in-memory collaborators for tests.
package matchingtest

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitea.kood.tech/petrkubec/match-me/engine/matching"
)

type swipeKey struct {
	actor, target uuid.UUID
}

// Store is a mutex-guarded matching.Store. Every method is atomic, which
// gives the same per-statement guarantees the SQL store relies on.
type Store struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*matching.Profile
	swipes   map[swipeKey]matching.SwipeRecord
	matches  map[uuid.UUID]*matching.Match
	byPair   map[matching.Pair]uuid.UUID

	// Err, when set, is returned by every call. Tests use it to simulate an
	// unavailable database.
	Err error
}

var _ matching.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		profiles: make(map[uuid.UUID]*matching.Profile),
		swipes:   make(map[swipeKey]matching.SwipeRecord),
		matches:  make(map[uuid.UUID]*matching.Match),
		byPair:   make(map[matching.Pair]uuid.UUID),
	}
}

// Put inserts or replaces a profile.
func (s *Store) Put(p matching.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.profiles[p.ID] = &cp
}

// Profile returns a copy of the stored profile.
func (s *Store) Profile(id uuid.UUID) (matching.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return matching.Profile{}, false
	}
	return *p, true
}

// Matches returns every stored match, active or not.
func (s *Store) Matches() []matching.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]matching.Match, 0, len(s.matches))
	for _, m := range s.matches {
		out = append(out, *m)
	}
	return out
}

// SwipeCount returns the number of ledger rows.
func (s *Store) SwipeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.swipes)
}

func (s *Store) GetProfile(_ context.Context, id uuid.UUID) (*matching.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.profiles[id]
	if !ok {
		return nil, matching.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetProfiles(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*matching.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make(map[uuid.UUID]*matching.Profile, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *Store) IncrementCounterIfBelow(_ context.Context, id uuid.UUID, kind matching.ActionKind, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	p, ok := s.profiles[id]
	if !ok {
		return false, matching.ErrNotFound
	}
	counter := &p.DailySwipes
	if kind == matching.ActionMessage {
		counter = &p.DailyMessages
	}
	if *counter >= limit {
		return false, nil
	}
	*counter++
	return true, nil
}

func (s *Store) ActivateBoost(_ context.Context, id uuid.UUID, b matching.Boost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	p, ok := s.profiles[id]
	if !ok {
		return matching.ErrNotFound
	}
	p.Boost = b
	return nil
}

func (s *Store) ExpireBoosts(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	var n int64
	for _, p := range s.profiles {
		if p.Boost.Active && !p.Boost.ExpiresAt.After(now) {
			p.Boost.Active = false
			p.Boost.Multiplier = 1
			n++
		}
	}
	return n, nil
}

func (s *Store) ResetDailyCounters(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	var n int64
	for _, p := range s.profiles {
		if p.DailySwipes != 0 || p.DailyMessages != 0 {
			p.DailySwipes, p.DailyMessages = 0, 0
			n++
		}
	}
	return n, nil
}

func (s *Store) FindCandidates(_ context.Context, c matching.CandidateCriteria) ([]matching.CandidateSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var all []matching.CandidateSummary
	for _, p := range s.profiles {
		if _, swiped := s.swipes[swipeKey{c.ActorID, p.ID}]; swiped {
			continue
		}
		if cs, ok := c.Evaluate(p); ok {
			all = append(all, cs)
		}
	}
	matching.SortCandidates(all)
	return matching.Page(all, c.Offset, c.Limit), nil
}

func (s *Store) UpsertSwipe(_ context.Context, rec matching.SwipeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	key := swipeKey{rec.ActorID, rec.TargetID}
	if prev, ok := s.swipes[key]; ok {
		rec.CreatedAt = prev.CreatedAt
	}
	s.swipes[key] = rec
	return nil
}

func (s *Store) GetSwipe(_ context.Context, actorID, targetID uuid.UUID) (*matching.SwipeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	rec, ok := s.swipes[swipeKey{actorID, targetID}]
	if !ok {
		return nil, matching.ErrNotFound
	}
	return &rec, nil
}

func (s *Store) InsertMatch(_ context.Context, m matching.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	pair := matching.Pair{Low: m.UserLow, High: m.UserHigh}
	if _, exists := s.byPair[pair]; exists {
		return matching.ErrDuplicateMatch
	}
	cp := m
	s.matches[m.ID] = &cp
	s.byPair[pair] = m.ID
	return nil
}

func (s *Store) FindMatchByPair(_ context.Context, p matching.Pair) (*matching.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	id, ok := s.byPair[p]
	if !ok {
		return nil, matching.ErrNotFound
	}
	cp := *s.matches[id]
	return &cp, nil
}

func (s *Store) GetMatch(_ context.Context, id uuid.UUID) (*matching.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	m, ok := s.matches[id]
	if !ok {
		return nil, matching.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Store) ListMatches(_ context.Context, userID uuid.UUID) ([]matching.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []matching.Match
	for _, m := range s.matches {
		if m.Active && m.Involves(userID) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

func (s *Store) DeactivateMatch(_ context.Context, id, by uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	m, ok := s.matches[id]
	if !ok {
		return false, matching.ErrNotFound
	}
	if !m.Active {
		return false, nil
	}
	m.Active = false
	m.UnmatchedAt = &at
	m.UnmatchedBy = &by
	return true, nil
}
