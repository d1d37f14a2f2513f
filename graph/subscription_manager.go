package graph

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"gitea.kood.tech/petrkubec/match-me/engine/events"
	"gitea.kood.tech/petrkubec/match-me/engine/matching"
)

// MatchEvent is one matchCreated payload, addressed to a single participant.
type MatchEvent struct {
	MatchID     uuid.UUID
	RecipientID uuid.UUID
	PartnerID   uuid.UUID
	CreatedAt   time.Time
}

// SubscriptionManager fans match notifications out to GraphQL subscribers.
type SubscriptionManager struct {
	// Match subscriptions: userID -> subscribers
	matchSubscribers map[uuid.UUID]map[chan *MatchEvent]bool
	matchMutex       sync.RWMutex
}

var _ events.Sink = (*SubscriptionManager)(nil)

func NewSubscriptionManager() *SubscriptionManager {
	return &SubscriptionManager{
		matchSubscribers: make(map[uuid.UUID]map[chan *MatchEvent]bool),
	}
}

// SubscribeToMatches subscribes to new matches of userID. The cleanup func
// is safe to call more than once.
func (sm *SubscriptionManager) SubscribeToMatches(userID uuid.UUID) (<-chan *MatchEvent, func()) {
	sm.matchMutex.Lock()
	defer sm.matchMutex.Unlock()

	ch := make(chan *MatchEvent, 10) // Buffered channel to prevent blocking

	if sm.matchSubscribers[userID] == nil {
		sm.matchSubscribers[userID] = make(map[chan *MatchEvent]bool)
	}
	sm.matchSubscribers[userID][ch] = true

	var once sync.Once
	cleanup := func() {
		once.Do(func() { sm.UnsubscribeFromMatches(userID, ch) })
	}
	return ch, cleanup
}

// UnsubscribeFromMatches removes a subscription and closes its channel.
func (sm *SubscriptionManager) UnsubscribeFromMatches(userID uuid.UUID, ch chan *MatchEvent) {
	sm.matchMutex.Lock()
	defer sm.matchMutex.Unlock()

	if subscribers, ok := sm.matchSubscribers[userID]; ok {
		delete(subscribers, ch)
		if len(subscribers) == 0 {
			delete(sm.matchSubscribers, userID)
		}
	}
	close(ch)
}

// BroadcastMatch sends evt to every subscriber of its recipient and reports
// how many took it. Full subscribers are skipped.
func (sm *SubscriptionManager) BroadcastMatch(evt *MatchEvent) int {
	sm.matchMutex.RLock()
	defer sm.matchMutex.RUnlock()

	sent := 0
	for ch := range sm.matchSubscribers[evt.RecipientID] {
		select {
		case ch <- evt:
			sent++
		default:
			// Channel is full, skip this subscriber
		}
	}
	return sent
}

// Deliver implements events.Sink. Only match notifications have a
// subscription; other kinds are ignored.
func (sm *SubscriptionManager) Deliver(evt matching.NotificationEvent) int {
	if evt.Kind != matching.NotifyMatch {
		return 0
	}
	matchID, err := uuid.Parse(evt.Payload["match_id"])
	if err != nil {
		return 0
	}
	partnerID, err := uuid.Parse(evt.Payload["with_user_id"])
	if err != nil {
		return 0
	}
	return sm.BroadcastMatch(&MatchEvent{
		MatchID:     matchID,
		RecipientID: evt.RecipientID,
		PartnerID:   partnerID,
		CreatedAt:   evt.CreatedAt,
	})
}

// Subscribers reports how many subscriptions userID holds.
func (sm *SubscriptionManager) Subscribers(userID uuid.UUID) int {
	sm.matchMutex.RLock()
	defer sm.matchMutex.RUnlock()
	return len(sm.matchSubscribers[userID])
}
