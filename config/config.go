// Package config loads service configuration.
//
// Layers, lowest priority first: built-in defaults, an optional YAML file
// (CONFIG_PATH, ./config.yaml or ./config.yml), and MATCH_* environment
// variables where a double underscore separates nesting levels:
//
//	MATCH_DATABASE__URL=postgres://...      -> database.url
//	MATCH_SCHEDULER__DAILY_RESET_AT=00:00   -> scheduler.daily_reset_at
package config

import (
	"time"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	NATS      NATSConfig      `koanf:"nats"`
	Auth      AuthConfig      `koanf:"auth"`
	Matching  MatchingConfig  `koanf:"matching"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	Environment     string        `koanf:"environment" validate:"oneof=development production test"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	// Requests per minute per client IP on the swipe endpoint; 0 disables.
	SwipeRateLimit int `koanf:"swipe_rate_limit" validate:"gte=0"`
	// Upper bound on GraphQL operation complexity; 0 disables the check.
	GraphQLComplexityLimit int `koanf:"graphql_complexity_limit" validate:"gte=0"`
}

type DatabaseConfig struct {
	URL          string `koanf:"url" validate:"required"`
	MaxOpenConns int    `koanf:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `koanf:"max_idle_conns" validate:"gte=0"`
	// Apply the embedded schema on startup.
	Migrate bool `koanf:"migrate"`
}

// RedisConfig is optional; without an address the daily reset lock is process-local.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"gte=0"`
}

// NATSConfig is optional; without a URL events stay in process.
type NATSConfig struct {
	URL              string        `koanf:"url" validate:"omitempty,url"`
	SubscribersCount int           `koanf:"subscribers_count" validate:"gte=1"`
	MaxReconnects    int           `koanf:"max_reconnects" validate:"gte=-1"`
	ReconnectWait    time.Duration `koanf:"reconnect_wait" validate:"gte=0"`
}

type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret" validate:"required,min=16"`
	// bcrypt hash of the key the billing service presents on /internal endpoints.
	ServiceKeyHash string `koanf:"service_key_hash"`
}

type MatchingConfig struct {
	DefaultPageSize      int          `koanf:"default_page_size" validate:"gte=1"`
	MaxPageSize          int          `koanf:"max_page_size" validate:"gte=1"`
	SymmetricPreferences bool         `koanf:"symmetric_preferences"`
	Plans                PlansConfig  `koanf:"plans"`
	Boosts               BoostsConfig `koanf:"boosts"`
}

type PlansConfig struct {
	Free    PlanLimits `koanf:"free"`
	Basic   PlanLimits `koanf:"basic"`
	Budget  PlanLimits `koanf:"budget"`
	Premium PlanLimits `koanf:"premium"`
}

type BoostsConfig struct {
	Boost1  BoostProduct `koanf:"boost1"`
	Boost5  BoostProduct `koanf:"boost5"`
	Boost10 BoostProduct `koanf:"boost10"`
}

// PlanLimits caps daily actions; a negative value means unlimited.
type PlanLimits struct {
	Swipes   int `koanf:"swipes"`
	Messages int `koanf:"messages"`
}

type BoostProduct struct {
	Duration   time.Duration `koanf:"duration" validate:"gt=0"`
	Multiplier float64       `koanf:"multiplier" validate:"gt=1"`
}

type SchedulerConfig struct {
	BoostSweepInterval time.Duration `koanf:"boost_sweep_interval" validate:"gt=0"`
	DailyResetAt       string        `koanf:"daily_reset_at" validate:"required"`
	LockTTL            time.Duration `koanf:"lock_ttl" validate:"gt=0"`
	SweepTimeout       time.Duration `koanf:"sweep_timeout" validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// IsProduction reports whether the server runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
