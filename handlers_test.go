package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.kood.tech/petrkubec/match-me/engine/matching"
	"gitea.kood.tech/petrkubec/match-me/engine/matching/matchingtest"
)

type candidatesResponse struct {
	Candidates []matching.CandidateSummary `json:"candidates"`
	Page       int                         `json:"page"`
}

type matchesResponse struct {
	Matches []MatchView `json:"matches"`
}

func TestCandidatesHandler(t *testing.T) {
	ts := newTestServer(t)
	actor := ts.addProfile("actor", matching.GenderMale)
	far := ts.addProfile("far", matching.GenderFemale, func(p *matching.Profile) {
		p.Location = matchingtest.NorthOf(matchingtest.Tallinn, 20)
	})
	near := ts.addProfile("near", matching.GenderFemale, func(p *matching.Profile) {
		p.Location = matchingtest.NorthOf(matchingtest.Tallinn, 2)
	})
	ts.addProfile("too far", matching.GenderFemale, func(p *matching.Profile) {
		p.Location = matchingtest.NorthOf(matchingtest.Tallinn, 80)
	})

	t.Run("Nearest first", func(t *testing.T) {
		rr := ts.do(t, http.MethodGet, "/candidates", actor.ID, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		res := decodeBody[candidatesResponse](t, rr)
		assert.Equal(t, 1, res.Page)
		require.Len(t, res.Candidates, 2)
		assert.Equal(t, near.ID, res.Candidates[0].ID)
		assert.Equal(t, far.ID, res.Candidates[1].ID)
		assert.Equal(t, 30, res.Candidates[0].Age)
	})

	t.Run("Paging", func(t *testing.T) {
		rr := ts.do(t, http.MethodGet, "/candidates?page=2&page_size=1", actor.ID, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		res := decodeBody[candidatesResponse](t, rr)
		require.Len(t, res.Candidates, 1)
		assert.Equal(t, far.ID, res.Candidates[0].ID)

		rr = ts.do(t, http.MethodGet, "/candidates?page=3&page_size=1", actor.ID, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, decodeBody[candidatesResponse](t, rr).Candidates)
	})

	t.Run("Swiped profiles are excluded", func(t *testing.T) {
		rr := ts.do(t, http.MethodPost, "/swipes/"+near.ID.String(), actor.ID, map[string]string{"decision": "pass"})
		require.Equal(t, http.StatusOK, rr.Code)

		rr = ts.do(t, http.MethodGet, "/candidates", actor.ID, nil)
		res := decodeBody[candidatesResponse](t, rr)
		require.Len(t, res.Candidates, 1)
		assert.Equal(t, far.ID, res.Candidates[0].ID)
	})

	t.Run("Invalid paging", func(t *testing.T) {
		for _, q := range []string{"page=0", "page=abc", "page_size=x", "page=922337203685477580&page_size=20"} {
			rr := ts.do(t, http.MethodGet, "/candidates?"+q, actor.ID, nil)
			assert.Equal(t, http.StatusBadRequest, rr.Code, q)
			assert.Equal(t, "invalid_request", decodeBody[map[string]string](t, rr)["error"], q)
		}
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		rr := ts.do(t, http.MethodGet, "/candidates", uuid.Nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("Unknown actor", func(t *testing.T) {
		rr := ts.do(t, http.MethodGet, "/candidates", uuid.New(), nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Store unavailable", func(t *testing.T) {
		ts.store.Err = fmt.Errorf("dial: %w", matching.ErrStoreUnavailable)
		defer func() { ts.store.Err = nil }()

		rr := ts.do(t, http.MethodGet, "/candidates", actor.ID, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	})
}

func TestSwipeHandlerMatchFlow(t *testing.T) {
	ts := newTestServer(t)
	a := ts.addProfile("a", matching.GenderMale)
	b := ts.addProfile("b", matching.GenderFemale)

	rr := ts.do(t, http.MethodPost, "/swipes/"+b.ID.String(), a.ID, map[string]string{"decision": "like"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	first := decodeBody[matching.SwipeResult](t, rr)
	assert.False(t, first.Matched)
	assert.Nil(t, first.MatchID)

	rr = ts.do(t, http.MethodPost, "/swipes/"+a.ID.String(), b.ID, map[string]string{"decision": "superlike"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	second := decodeBody[matching.SwipeResult](t, rr)
	assert.True(t, second.Matched)
	require.NotNil(t, second.MatchID)

	created := ts.notifier.Created()
	require.Len(t, created, 1)
	assert.Equal(t, *second.MatchID, created[0].ID)
	assert.Len(t, ts.notifier.EventsFor(a.ID), 1)
	assert.Len(t, ts.notifier.EventsFor(b.ID), 1)

	// Re-liking an existing match reports the same match and no new event
	rr = ts.do(t, http.MethodPost, "/swipes/"+b.ID.String(), a.ID, map[string]string{"decision": "like"})
	require.Equal(t, http.StatusOK, rr.Code)
	again := decodeBody[matching.SwipeResult](t, rr)
	assert.True(t, again.Matched)
	assert.Equal(t, second.MatchID, again.MatchID)
	assert.Len(t, ts.notifier.Created(), 1)
}

func TestSwipeHandlerErrors(t *testing.T) {
	ts := newTestServer(t)
	actor := ts.addProfile("actor", matching.GenderMale)
	target := ts.addProfile("target", matching.GenderFemale)

	tests := []struct {
		name       string
		target     string
		body       any
		wantStatus int
		wantError  string
	}{
		{"Malformed target", "not-a-uuid", map[string]string{"decision": "like"}, http.StatusBadRequest, "invalid_target"},
		{"Self swipe", actor.ID.String(), map[string]string{"decision": "like"}, http.StatusBadRequest, "invalid_target"},
		{"Unknown decision", target.ID.String(), map[string]string{"decision": "maybe"}, http.StatusBadRequest, "invalid_decision"},
		{"Missing decision", target.ID.String(), map[string]string{}, http.StatusBadRequest, "invalid_request"},
		{"Unknown target", uuid.NewString(), map[string]string{"decision": "like"}, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, "/swipes/"+tt.target, actor.ID, tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			assert.Equal(t, tt.wantError, decodeBody[map[string]any](t, rr)["error"])
		})
	}

	assert.Zero(t, ts.store.SwipeCount(), "rejected swipes must not reach the ledger")
}

func TestSwipeHandlerQuotaExceeded(t *testing.T) {
	ts := newTestServer(t)
	actor := ts.addProfile("actor", matching.GenderMale, func(p *matching.Profile) {
		p.DailySwipes = 10
	})
	target := ts.addProfile("target", matching.GenderFemale)

	rr := ts.do(t, http.MethodPost, "/swipes/"+target.ID.String(), actor.ID, map[string]string{"decision": "like"})
	require.Equal(t, http.StatusTooManyRequests, rr.Code)

	body := decodeBody[map[string]any](t, rr)
	assert.Equal(t, "quota_exceeded", body["error"])
	assert.Equal(t, "swipe", body["action"])
	assert.EqualValues(t, 10, body["limit"])

	retry, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.True(t, retry > 0 && retry <= 86400)
	assert.Zero(t, ts.store.SwipeCount())
}

func TestSwipeHandlerPremiumUnlimited(t *testing.T) {
	ts := newTestServer(t)
	actor := ts.addProfile("actor", matching.GenderMale, func(p *matching.Profile) {
		p.Plan = matching.PlanPremium
		p.DailySwipes = 500
	})
	target := ts.addProfile("target", matching.GenderFemale)

	rr := ts.do(t, http.MethodPost, "/swipes/"+target.ID.String(), actor.ID, map[string]string{"decision": "pass"})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestSwipeRateLimit(t *testing.T) {
	ts := newTestServer(t, func(d *routeDeps) { d.swipeRateLimit = 2 })
	actor := ts.addProfile("actor", matching.GenderMale, func(p *matching.Profile) {
		p.Plan = matching.PlanPremium
	})
	target := ts.addProfile("target", matching.GenderFemale)

	for i := 0; i < 2; i++ {
		rr := ts.do(t, http.MethodPost, "/swipes/"+target.ID.String(), actor.ID, map[string]string{"decision": "pass"})
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := ts.do(t, http.MethodPost, "/swipes/"+target.ID.String(), actor.ID, map[string]string{"decision": "pass"})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestMatchesAndUnmatch(t *testing.T) {
	ts := newTestServer(t)
	a := ts.addProfile("Alice", matching.GenderFemale)
	b := ts.addProfile("Bob", matching.GenderMale)
	c := ts.addProfile("Carl", matching.GenderMale)

	like := func(from, to matching.Profile) {
		rr := ts.do(t, http.MethodPost, "/swipes/"+to.ID.String(), from.ID, map[string]string{"decision": "like"})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}
	like(a, b)
	like(b, a)
	like(a, c)
	like(c, a)

	rr := ts.do(t, http.MethodGet, "/matches", a.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decodeBody[matchesResponse](t, rr)
	require.Len(t, res.Matches, 2)

	names := map[uuid.UUID]string{}
	for _, m := range res.Matches {
		require.NotNil(t, m.With)
		names[m.With.ID] = m.With.DisplayName
		assert.Equal(t, 30, m.With.Age)
	}
	assert.Equal(t, map[uuid.UUID]string{b.ID: "Bob", c.ID: "Carl"}, names)

	var withBob uuid.UUID
	for _, m := range res.Matches {
		if m.With.ID == b.ID {
			withBob = m.ID
		}
	}

	t.Run("Outsider cannot unmatch", func(t *testing.T) {
		rr := ts.do(t, http.MethodDelete, "/matches/"+withBob.String(), c.ID, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Unmatch", func(t *testing.T) {
		rr := ts.do(t, http.MethodDelete, "/matches/"+withBob.String(), b.ID, nil)
		assert.Equal(t, http.StatusNoContent, rr.Code)

		rr = ts.do(t, http.MethodDelete, "/matches/"+withBob.String(), a.ID, nil)
		assert.Equal(t, http.StatusNoContent, rr.Code, "closing twice succeeds")

		rr = ts.do(t, http.MethodGet, "/matches", a.ID, nil)
		res := decodeBody[matchesResponse](t, rr)
		require.Len(t, res.Matches, 1)
		assert.Equal(t, c.ID, res.Matches[0].With.ID)
	})

	t.Run("Malformed id", func(t *testing.T) {
		rr := ts.do(t, http.MethodDelete, "/matches/nope", a.ID, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Empty list", func(t *testing.T) {
		loner := ts.addProfile("loner", matching.GenderOthers)
		rr := ts.do(t, http.MethodGet, "/matches", loner.ID, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"matches":[]}`, rr.Body.String())
	})
}

func TestQuotaAndBoostEndpoints(t *testing.T) {
	ts := newTestServer(t)
	u := ts.addProfile("u", matching.GenderFemale, func(p *matching.Profile) {
		p.DailySwipes = 3
	})

	rr := ts.do(t, http.MethodGet, "/me/quota", u.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	quota := decodeBody[matching.QuotaStatus](t, rr)
	assert.Equal(t, matching.PlanFree, quota.Plan)
	assert.Equal(t, matching.QuotaUsage{Used: 3, Limit: 10}, quota.Swipes)

	rr = ts.do(t, http.MethodGet, "/me/boost", u.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decodeBody[BoostView](t, rr).Active)

	activate := func(key string, body any) int {
		req := newJSONRequest(t, http.MethodPost, "/internal/boosts", body)
		if key != "" {
			req.Header.Set(serviceKeyHeader, key)
		}
		rec := serve(ts.handler, req)
		return rec.Code
	}
	boost := map[string]string{"user_id": u.ID.String(), "boost_type": "boost5"}

	assert.Equal(t, http.StatusUnauthorized, activate("", boost))
	assert.Equal(t, http.StatusUnauthorized, activate("wrong", boost))
	assert.Equal(t, http.StatusBadRequest, activate(testServiceKey, map[string]string{"user_id": "x", "boost_type": "boost5"}))
	assert.Equal(t, http.StatusBadRequest, activate(testServiceKey, map[string]string{"user_id": u.ID.String(), "boost_type": "boost99"}))
	assert.Equal(t, http.StatusNotFound, activate(testServiceKey, map[string]string{"user_id": uuid.NewString(), "boost_type": "boost5"}))
	require.Equal(t, http.StatusOK, activate(testServiceKey, boost))

	rr = ts.do(t, http.MethodGet, "/me/boost", u.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	view := decodeBody[BoostView](t, rr)
	assert.True(t, view.Active)
	assert.Equal(t, "boost5", view.Type)
	assert.Equal(t, 2.0, view.Multiplier)
	require.NotNil(t, view.ExpiresAt)
	assert.True(t, view.ExpiresAt.Equal(testNow.Add(time.Hour)))
}

func TestInternalQuotaCheck(t *testing.T) {
	ts := newTestServer(t)
	u := ts.addProfile("u", matching.GenderMale)
	premium := ts.addProfile("p", matching.GenderFemale, func(p *matching.Profile) {
		p.Plan = matching.PlanPremium
	})

	check := func(key, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		if key != "" {
			req.Header.Set(serviceKeyHeader, key)
		}
		return serve(ts.handler, req)
	}
	messagePath := "/internal/quota/" + u.ID.String() + "/message"

	for i := 1; i <= 5; i++ {
		rr := check(testServiceKey, messagePath)
		require.Equal(t, http.StatusOK, rr.Code, "message %d", i)
		assert.Equal(t, matching.QuotaUsage{Used: i, Limit: 5}, decodeBody[matching.QuotaStatus](t, rr).Messages)
	}

	rr := check(testServiceKey, messagePath)
	require.Equal(t, http.StatusTooManyRequests, rr.Code, "sixth message on the free plan")
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	body := decodeBody[map[string]any](t, rr)
	assert.Equal(t, "quota_exceeded", body["error"])
	assert.Equal(t, "message", body["action"])
	assert.Equal(t, float64(5), body["limit"])

	rr = ts.do(t, http.MethodGet, "/me/quota", u.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	quota := decodeBody[matching.QuotaStatus](t, rr)
	assert.Equal(t, matching.QuotaUsage{Used: 5, Limit: 5}, quota.Messages)
	assert.Equal(t, matching.QuotaUsage{Used: 0, Limit: 10}, quota.Swipes, "message checks leave swipes alone")

	for i := 0; i < 8; i++ {
		require.Equal(t, http.StatusOK, check(testServiceKey, "/internal/quota/"+premium.ID.String()+"/message").Code)
	}

	assert.Equal(t, http.StatusUnauthorized, check("", messagePath).Code)
	assert.Equal(t, http.StatusUnauthorized, check("wrong", messagePath).Code)
	assert.Equal(t, http.StatusBadRequest, check(testServiceKey, "/internal/quota/not-a-uuid/message").Code)
	assert.Equal(t, http.StatusBadRequest, check(testServiceKey, "/internal/quota/"+u.ID.String()+"/poke").Code)
	assert.Equal(t, http.StatusNotFound, check(testServiceKey, "/internal/quota/"+uuid.NewString()+"/message").Code)
}
