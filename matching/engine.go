package matching

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gitea.kood.tech/petrkubec/match-me/engine/logging"
)

// Notifier receives match events. Failures are logged by the engine and
// never undo a recorded swipe or match.
type Notifier interface {
	MatchCreated(ctx context.Context, m Match) error
	Notify(ctx context.Context, evt NotificationEvent) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) MatchCreated(context.Context, Match) error        { return nil }
func (NopNotifier) Notify(context.Context, NotificationEvent) error { return nil }

// PlanLimits caps daily actions. A negative limit is unlimited.
type PlanLimits struct {
	Swipes   int
	Messages int
}

// BoostProduct is what a purchased boost grants.
type BoostProduct struct {
	Duration   time.Duration
	Multiplier float64
}

type Config struct {
	Limits          map[Plan]PlanLimits
	Boosts          map[string]BoostProduct
	DefaultPageSize int
	MaxPageSize     int
	// Require the candidate's preferences to accept the actor too.
	SymmetricPreferences bool
}

// DefaultConfig is the product's stock configuration.
func DefaultConfig() Config {
	return Config{
		Limits: map[Plan]PlanLimits{
			PlanFree:    {Swipes: 10, Messages: 5},
			PlanBasic:   {Swipes: 40, Messages: 10},
			PlanBudget:  {Swipes: 100, Messages: 20},
			PlanPremium: {Swipes: -1, Messages: -1},
		},
		Boosts: map[string]BoostProduct{
			"boost1":  {Duration: 30 * time.Minute, Multiplier: 1.5},
			"boost5":  {Duration: time.Hour, Multiplier: 2},
			"boost10": {Duration: 3 * time.Hour, Multiplier: 3},
		},
		DefaultPageSize:      20,
		MaxPageSize:          100,
		SymmetricPreferences: true,
	}
}

// limit returns the cap for plan and kind; unlimited is true for negative
// limits. Plans missing from the table fall back to free.
func (c Config) limit(plan Plan, kind ActionKind) (limit int, unlimited bool) {
	l, ok := c.Limits[plan]
	if !ok {
		l = c.Limits[PlanFree]
	}
	limit = l.Swipes
	if kind == ActionMessage {
		limit = l.Messages
	}
	return limit, limit < 0
}

type Engine struct {
	store    Store
	notifier Notifier
	cfg      Config
	now      func() time.Time
	log      zerolog.Logger
}

type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func New(store Store, notifier Notifier, cfg Config, opts ...Option) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	if cfg.DefaultPageSize <= 0 || cfg.DefaultPageSize > cfg.MaxPageSize {
		cfg.DefaultPageSize = min(20, cfg.MaxPageSize)
	}
	e := &Engine{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		log:      logging.Component("matching"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) clock() time.Time { return e.now().UTC() }

// Now is the engine's clock in UTC.
func (e *Engine) Now() time.Time { return e.clock() }

// activeProfile loads id and rejects inactive profiles. role names the
// profile in errors ("actor", "target").
func (e *Engine) activeProfile(ctx context.Context, id uuid.UUID, role string) (*Profile, error) {
	if id == uuid.Nil {
		return nil, &ValidationError{Field: role, Reason: "missing id"}
	}
	p, err := e.store.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Active() {
		return nil, &ValidationError{Field: role, Reason: "profile is " + string(p.Status)}
	}
	return p, nil
}
