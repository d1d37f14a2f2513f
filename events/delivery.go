package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/rs/zerolog"

	"gitea.kood.tech/petrkubec/match-me/engine/logging"
	"gitea.kood.tech/petrkubec/match-me/engine/matching"
)

// Sink receives notifications for local delivery and reports how many
// connections got the event.
type Sink interface {
	Deliver(evt matching.NotificationEvent) int
}

// Sinks delivers to each sink in turn and sums their counts.
type Sinks []Sink

func (s Sinks) Deliver(evt matching.NotificationEvent) int {
	n := 0
	for _, sink := range s {
		n += sink.Deliver(evt)
	}
	return n
}

// DeliveryService consumes the notifications topic and forwards events to
// a Sink. It is a suture service: each Serve builds a fresh router.
type DeliveryService struct {
	sub     message.Subscriber
	sink    Sink
	adapter watermill.LoggerAdapter
	log     zerolog.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

func NewDeliveryService(sub message.Subscriber, sink Sink) *DeliveryService {
	return &DeliveryService{
		sub:     sub,
		sink:    sink,
		adapter: logging.NewWatermillAdapter(),
		log:     logging.Component("events"),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the first router is subscribed and running.
func (s *DeliveryService) Ready() <-chan struct{} { return s.ready }

func (s *DeliveryService) String() string { return "notification-delivery" }

func (s *DeliveryService) Serve(ctx context.Context) error {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, s.adapter)
	if err != nil {
		return fmt.Errorf("create router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)
	retry := middleware.Retry{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
		Logger:          s.adapter,
	}
	router.AddMiddleware(retry.Middleware)
	router.AddConsumerHandler("deliver_notifications", TopicNotifications, s.sub, s.handle)

	go func() {
		select {
		case <-router.Running():
			s.readyOnce.Do(func() { close(s.ready) })
		case <-ctx.Done():
		}
	}()

	return router.Run(ctx)
}

func (s *DeliveryService) handle(msg *message.Message) error {
	evt, err := DecodeNotification(msg)
	if err != nil {
		// retrying cannot fix a malformed payload
		s.log.Warn().Err(err).Msg("dropping notification")
		return nil
	}
	n := s.sink.Deliver(evt)
	s.log.Debug().
		Str("recipient", evt.RecipientID.String()).
		Str("kind", string(evt.Kind)).
		Int("connections", n).
		Msg("notification delivered")
	return nil
}
