package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httprate"

	"gitea.kood.tech/petrkubec/match-me/engine/config"
	"gitea.kood.tech/petrkubec/match-me/engine/events"
	"gitea.kood.tech/petrkubec/match-me/engine/graph"
	"gitea.kood.tech/petrkubec/match-me/engine/logging"
	"gitea.kood.tech/petrkubec/match-me/engine/matching"
	"gitea.kood.tech/petrkubec/match-me/engine/metrics"
	"gitea.kood.tech/petrkubec/match-me/engine/scheduler"
	"gitea.kood.tech/petrkubec/match-me/engine/supervisor"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("matching engine stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	jwtSecret = []byte(cfg.Auth.JWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeDB, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeDB()

	bus, err := newBus(cfg.NATS)
	if err != nil {
		return err
	}
	defer bus.Close()

	engine := matching.New(store, events.NewPublisher(bus.Publisher, events.DefaultBreakerConfig()), engineConfig(cfg.Matching))

	locker, err := newLocker(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	hour, minute, err := cfg.Scheduler.ResetClock()
	if err != nil {
		return err
	}

	hub := newHub(cfg.Server.CORSOrigins)
	subs := graph.NewSubscriptionManager()
	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: routes(routeDeps{
			engine:         engine,
			profiles:       store,
			hub:            hub,
			subs:           subs,
			health:         store.Ping,
			serviceKeyHash: cfg.Auth.ServiceKeyHash,
			swipeRateLimit: cfg.Server.SwipeRateLimit,
			complexity:     cfg.Server.GraphQLComplexityLimit,
			corsOrigins:    cfg.Server.CORSOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	tree.AddSchedulerService(scheduler.NewBoostExpiryService(engine, cfg.Scheduler.BoostSweepInterval, cfg.Scheduler.SweepTimeout))
	tree.AddSchedulerService(scheduler.NewDailyResetService(engine, locker, hour, minute, cfg.Scheduler.LockTTL, cfg.Scheduler.SweepTimeout).WithLedger(store))
	tree.AddMessagingService(hub)
	tree.AddMessagingService(events.NewDeliveryService(bus.Subscriber, events.Sinks{hub, subs}))
	tree.AddAPIService(supervisor.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))

	logging.Info().
		Str("addr", cfg.Server.Addr).
		Str("environment", cfg.Server.Environment).
		Str("events", bus.Transport).
		Msg("starting matching engine")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("matching engine stopped")
	return nil
}

func newBus(cfg config.NATSConfig) (*events.Bus, error) {
	if cfg.URL == "" {
		return events.NewInProcessBus(logging.NewWatermillAdapter()), nil
	}
	return events.NewNATSBus(events.NATSOptions{
		URL:              cfg.URL,
		SubscribersCount: cfg.SubscribersCount,
		MaxReconnects:    cfg.MaxReconnects,
		ReconnectWait:    cfg.ReconnectWait,
	}, logging.NewWatermillAdapter())
}

// newLocker elects the daily reset runner through Redis when configured.
func newLocker(ctx context.Context, cfg config.RedisConfig) (scheduler.Locker, error) {
	if cfg.Addr == "" {
		logging.Warn().Msg("redis not configured, daily reset lock is process-local")
		return scheduler.NewLocalLocker(), nil
	}
	rdb, err := scheduler.NewRedisClient(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return nil, err
	}
	return scheduler.NewRedisLocker(rdb), nil
}

func engineConfig(c config.MatchingConfig) matching.Config {
	limits := func(l config.PlanLimits) matching.PlanLimits {
		return matching.PlanLimits{Swipes: l.Swipes, Messages: l.Messages}
	}
	boost := func(b config.BoostProduct) matching.BoostProduct {
		return matching.BoostProduct{Duration: b.Duration, Multiplier: b.Multiplier}
	}
	return matching.Config{
		Limits: map[matching.Plan]matching.PlanLimits{
			matching.PlanFree:    limits(c.Plans.Free),
			matching.PlanBasic:   limits(c.Plans.Basic),
			matching.PlanBudget:  limits(c.Plans.Budget),
			matching.PlanPremium: limits(c.Plans.Premium),
		},
		Boosts: map[string]matching.BoostProduct{
			"boost1":  boost(c.Boosts.Boost1),
			"boost5":  boost(c.Boosts.Boost5),
			"boost10": boost(c.Boosts.Boost10),
		},
		DefaultPageSize:      c.DefaultPageSize,
		MaxPageSize:          c.MaxPageSize,
		SymmetricPreferences: c.SymmetricPreferences,
	}
}

type routeDeps struct {
	engine         *matching.Engine
	profiles       matching.ProfileStore
	hub            *Hub
	subs           *graph.SubscriptionManager
	health         func(context.Context) error
	serviceKeyHash string
	swipeRateLimit int
	complexity     int
	corsOrigins    []string
}

func routes(d routeDeps) http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern, route string, h http.Handler) {
		mux.Handle(pattern, instrument(route, h))
	}

	// Discovery & swipes
	handle("GET /candidates", "/candidates", candidatesHandler(d.engine))
	var swipe http.Handler = swipeHandler(d.engine)
	if d.swipeRateLimit > 0 {
		swipe = httprate.LimitByIP(d.swipeRateLimit, time.Minute)(swipe)
	}
	handle("POST /swipes/{targetId}", "/swipes/{targetId}", swipe)

	// Matches
	handle("GET /matches", "/matches", DataLoaderMiddleware(d.profiles)(matchesHandler(d.engine)))
	handle("DELETE /matches/{matchId}", "/matches/{matchId}", unmatchHandler(d.engine))

	// Quota & boosts
	handle("GET /me/quota", "/me/quota", quotaHandler(d.engine))
	handle("GET /me/boost", "/me/boost", boostStatusHandler(d.engine))
	handle("POST /internal/boosts", "/internal/boosts", activateBoostHandler(d.engine, d.serviceKeyHash))
	handle("POST /internal/quota/{userId}/{action}", "/internal/quota/{userId}/{action}", checkQuotaHandler(d.engine, d.serviceKeyHash))

	// Match notifications feed; not instrumented, the upgrade hijacks the writer
	mux.Handle("GET /ws/matches", wsMatchesHandler(d.hub))

	// GraphQL: queries over POST, subscriptions over the GET upgrade
	gql := graph.NewHandler(
		graph.NewResolver(d.engine, d.subs, profileLoader(d.profiles)),
		graph.HandlerConfig{
			UserFromRequest: getUserIDFromRequest,
			UserFromToken:   parseUserIDFromJWT,
			CheckOrigin:     allowedOrigin(d.corsOrigins),
			ComplexityLimit: d.complexity,
		},
	)
	handle("POST /graphql", "/graphql", DataLoaderMiddleware(d.profiles)(gql))
	mux.Handle("GET /graphql", gql)

	mux.HandleFunc("GET /health", healthHandler(d.health))
	mux.Handle("GET /metrics", metrics.Handler())

	return withCORS(d.corsOrigins, mux)
}

// Health check endpoint for Docker
func healthHandler(ping func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if ping != nil {
			if err := ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unreachable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
