// Package events moves match and notification events over watermill.
//
// Publishing goes through Publisher, which implements matching.Notifier.
// Delivery to connected clients is a DeliveryService that consumes the
// notifications topic and hands every event to a Sink. The bus is an
// in-process gochannel by default and core NATS when a URL is configured.
package events

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"gitea.kood.tech/petrkubec/match-me/engine/matching"
)

const (
	TopicMatchCreated  = "match.created"
	TopicNotifications = "notifications"
)

// Metadata keys set on every published message.
const (
	MetaKind      = "kind"
	MetaRecipient = "recipient_id"
)

// MatchCreated is the onMatchCreated payload.
type MatchCreated struct {
	MatchID   uuid.UUID    `json:"match_id"`
	Users     [2]uuid.UUID `json:"users"`
	CreatedAt time.Time    `json:"created_at"`
}

func NewMatchCreated(m matching.Match) MatchCreated {
	return MatchCreated{
		MatchID:   m.ID,
		Users:     m.Participants(),
		CreatedAt: m.CreatedAt,
	}
}

func DecodeNotification(msg *message.Message) (matching.NotificationEvent, error) {
	var evt matching.NotificationEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return evt, fmt.Errorf("decode notification %s: %w", msg.UUID, err)
	}
	if evt.RecipientID == uuid.Nil {
		return evt, fmt.Errorf("decode notification %s: missing recipient", msg.UUID)
	}
	return evt, nil
}

func DecodeMatchCreated(msg *message.Message) (MatchCreated, error) {
	var mc MatchCreated
	if err := json.Unmarshal(msg.Payload, &mc); err != nil {
		return mc, fmt.Errorf("decode match created %s: %w", msg.UUID, err)
	}
	return mc, nil
}
