// Package matching implements candidate discovery, the swipe ledger,
// mutual-match detection, daily quotas and boost expiry.
//
// Storage lives behind the Store interface; the postgres package is the
// production implementation and matchingtest provides an in-memory one.
package matching

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Decision string

const (
	DecisionLike      Decision = "like"
	DecisionPass      Decision = "pass"
	DecisionSuperlike Decision = "superlike"
)

// ParseDecision accepts "like", "pass" and "superlike", case-insensitively.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "like":
		return DecisionLike, nil
	case "pass":
		return DecisionPass, nil
	case "superlike":
		return DecisionSuperlike, nil
	}
	return "", &ValidationError{Field: "decision", Reason: "unknown decision " + s}
}

// Positive reports whether the decision can complete a match.
func (d Decision) Positive() bool {
	return d == DecisionLike || d == DecisionSuperlike
}

type Plan string

const (
	PlanFree    Plan = "free"
	PlanBasic   Plan = "basic"
	PlanBudget  Plan = "budget"
	PlanPremium Plan = "premium"
)

// ParsePlan maps stored plan names; "subscribed" is the legacy name of premium.
func ParsePlan(s string) Plan {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic":
		return PlanBasic
	case "budget":
		return PlanBudget
	case "premium", "subscribed":
		return PlanPremium
	default:
		return PlanFree
	}
}

type ActionKind string

const (
	ActionSwipe   ActionKind = "swipe"
	ActionMessage ActionKind = "message"
)

func ParseActionKind(s string) (ActionKind, error) {
	switch ActionKind(strings.ToLower(s)) {
	case ActionSwipe:
		return ActionSwipe, nil
	case ActionMessage:
		return ActionMessage, nil
	}
	return "", &ValidationError{Field: "action", Reason: "unknown action " + s}
}

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusBanned   Status = "banned"
	StatusBlocked  Status = "blocked"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOthers Gender = "others"
)

// Interest is what a profile wants to see: a gender, or "both" for male and female.
type Interest string

const (
	InterestMale   Interest = "male"
	InterestFemale Interest = "female"
	InterestBoth   Interest = "both"
	InterestOthers Interest = "others"
)

// Genders expands an interest into the genders it accepts.
func (i Interest) Genders() []Gender {
	switch i {
	case InterestMale:
		return []Gender{GenderMale}
	case InterestFemale:
		return []Gender{GenderFemale}
	case InterestOthers:
		return []Gender{GenderOthers}
	default:
		return []Gender{GenderMale, GenderFemale}
	}
}

// Accepts reports whether g falls inside the interest.
func (i Interest) Accepts(g Gender) bool {
	for _, want := range i.Genders() {
		if want == g {
			return true
		}
	}
	return false
}

// InterestsAccepting lists the interests that include g.
func InterestsAccepting(g Gender) []Interest {
	var out []Interest
	for _, i := range []Interest{InterestMale, InterestFemale, InterestBoth, InterestOthers} {
		if i.Accepts(g) {
			out = append(out, i)
		}
	}
	return out
}

// Point is a WGS84 coordinate.
type Point struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

type Preferences struct {
	MinAge        int      `json:"min_age"`
	MaxAge        int      `json:"max_age"`
	MaxDistanceKm float64  `json:"max_distance_km"`
	InterestedIn  Interest `json:"interested_in"`
}

// DefaultPreferences mirror what a freshly created profile gets.
func DefaultPreferences() Preferences {
	return Preferences{MinAge: 18, MaxAge: 50, MaxDistanceKm: 50, InterestedIn: InterestBoth}
}

type Boost struct {
	Active     bool      `json:"active"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	Multiplier float64   `json:"multiplier"`
	Type       string    `json:"type,omitempty"`
}

// EffectiveMultiplier is the ranking weight at now: the boost multiplier
// while the boost is live, otherwise 1.
func (b Boost) EffectiveMultiplier(now time.Time) float64 {
	if b.Active && b.ExpiresAt.After(now) && b.Multiplier > 0 {
		return b.Multiplier
	}
	return 1
}

type Profile struct {
	ID            uuid.UUID
	DisplayName   string
	BirthDate     time.Time
	Gender        Gender
	Location      Point
	Preferences   Preferences
	Plan          Plan
	DailySwipes   int
	DailyMessages int
	Boost         Boost
	Status        Status
}

func (p *Profile) Active() bool { return p.Status == StatusActive }

// Counter returns the daily counter tracked for kind.
func (p *Profile) Counter(kind ActionKind) int {
	if kind == ActionMessage {
		return p.DailyMessages
	}
	return p.DailySwipes
}

// CandidateSummary is one discovery result.
type CandidateSummary struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Age         int       `json:"age"`
	Gender      Gender    `json:"gender"`
	DistanceKm  float64   `json:"distance_km"`
	Boosted     bool      `json:"boosted"`
	RankKey     float64   `json:"-"`
}

type SwipeRecord struct {
	ActorID   uuid.UUID
	TargetID  uuid.UUID
	Decision  Decision
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Match struct {
	ID          uuid.UUID
	UserLow     uuid.UUID
	UserHigh    uuid.UUID
	CreatedAt   time.Time
	Active      bool
	UnmatchedAt *time.Time
	UnmatchedBy *uuid.UUID
}

// Participants returns both sides of the match.
func (m Match) Participants() [2]uuid.UUID {
	return [2]uuid.UUID{m.UserLow, m.UserHigh}
}

// Involves reports whether id is one of the participants.
func (m Match) Involves(id uuid.UUID) bool {
	return m.UserLow == id || m.UserHigh == id
}

// Counterpart returns the participant that is not id.
func (m Match) Counterpart(id uuid.UUID) uuid.UUID {
	if m.UserLow == id {
		return m.UserHigh
	}
	return m.UserLow
}

type NotificationKind string

const (
	NotifyMatch     NotificationKind = "match"
	NotifySuperLike NotificationKind = "super_like"
)

type NotificationEvent struct {
	ID          uuid.UUID         `json:"id"`
	RecipientID uuid.UUID         `json:"recipient_id"`
	Kind        NotificationKind  `json:"kind"`
	Payload     map[string]string `json:"payload,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// SwipeResult is returned by RecordSwipe. MatchID is set only when Matched.
type SwipeResult struct {
	Matched bool       `json:"matched"`
	MatchID *uuid.UUID `json:"match_id,omitempty"`
}

// QuotaUsage describes one counter against its plan limit.
type QuotaUsage struct {
	Used      int  `json:"used"`
	Limit     int  `json:"limit"`
	Unlimited bool `json:"unlimited"`
}

type QuotaStatus struct {
	Plan     Plan       `json:"plan"`
	Swipes   QuotaUsage `json:"swipes"`
	Messages QuotaUsage `json:"messages"`
}
