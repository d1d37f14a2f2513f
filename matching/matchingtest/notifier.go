package matchingtest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitea.kood.tech/petrkubec/match-me/engine/matching"
)

// Notifier records every event it receives. Err makes every call fail
// after recording.
type Notifier struct {
	mu      sync.Mutex
	created []matching.Match
	events  []matching.NotificationEvent
	Err     error
}

var _ matching.Notifier = (*Notifier)(nil)

func (n *Notifier) MatchCreated(_ context.Context, m matching.Match) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, m)
	return n.Err
}

func (n *Notifier) Notify(_ context.Context, evt matching.NotificationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return n.Err
}

func (n *Notifier) Created() []matching.Match {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]matching.Match(nil), n.created...)
}

func (n *Notifier) Events() []matching.NotificationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]matching.NotificationEvent(nil), n.events...)
}

// EventsFor filters recorded notifications by recipient.
func (n *Notifier) EventsFor(id uuid.UUID) []matching.NotificationEvent {
	var out []matching.NotificationEvent
	for _, e := range n.Events() {
		if e.RecipientID == id {
			out = append(out, e)
		}
	}
	return out
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
