package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"gitea.kood.tech/petrkubec/match-me/engine/logging"
	"gitea.kood.tech/petrkubec/match-me/engine/matching"
	"gitea.kood.tech/petrkubec/match-me/engine/metrics"
)

// BreakerConfig tunes the circuit breaker around the bus.
type BreakerConfig struct {
	FailureThreshold uint32
	// Time the breaker stays open before letting a trial request through.
	OpenTimeout time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, OpenTimeout: 30 * time.Second}
}

// Publisher implements matching.Notifier on top of a watermill publisher.
// While the breaker is open publishes fail fast with gobreaker.ErrOpenState.
type Publisher struct {
	pub     message.Publisher
	breaker *gobreaker.CircuitBreaker[any]
	log     zerolog.Logger
}

var _ matching.Notifier = (*Publisher)(nil)

func NewPublisher(pub message.Publisher, cfg BreakerConfig) *Publisher {
	log := logging.Component("events")
	if cfg.FailureThreshold == 0 {
		cfg = DefaultBreakerConfig()
	}
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "event-publisher",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	return &Publisher{pub: pub, breaker: breaker, log: log}
}

func (p *Publisher) MatchCreated(ctx context.Context, m matching.Match) error {
	return p.publish(ctx, TopicMatchCreated, m.ID.String(), NewMatchCreated(m), map[string]string{
		MetaKind: string(matching.NotifyMatch),
	})
}

func (p *Publisher) Notify(ctx context.Context, evt matching.NotificationEvent) error {
	return p.publish(ctx, TopicNotifications, evt.ID.String(), evt, map[string]string{
		MetaKind:      string(evt.Kind),
		MetaRecipient: evt.RecipientID.String(),
	})
}

// BreakerState reports "closed", "half-open" or "open".
func (p *Publisher) BreakerState() string {
	return p.breaker.State().String()
}

func (p *Publisher) publish(ctx context.Context, topic, id string, payload any, meta map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}
	msg := message.NewMessage(id, body)
	for k, v := range meta {
		msg.Metadata.Set(k, v)
	}
	msg.SetContext(ctx)

	_, err = p.breaker.Execute(func() (any, error) {
		return nil, p.pub.Publish(topic, msg)
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	metrics.EventsPublished.WithLabelValues(topic).Inc()
	p.log.Debug().Str("topic", topic).Str("event_id", id).Msg("event published")
	return nil
}
