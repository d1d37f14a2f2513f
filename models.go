package main

import (
	"time"

	"github.com/google/uuid"

	"gitea.kood.tech/petrkubec/match-me/engine/matching"
)

type swipeRequest struct {
	Decision string `json:"decision" validate:"required"`
}

type boostRequest struct {
	UserID    string `json:"user_id" validate:"required,uuid"`
	BoostType string `json:"boost_type" validate:"required"`
}

// ProfileSummary is the public view of a match counterpart.
type ProfileSummary struct {
	ID          uuid.UUID       `json:"id"`
	DisplayName string          `json:"display_name"`
	Age         int             `json:"age"`
	Gender      matching.Gender `json:"gender"`
}

type MatchView struct {
	ID        uuid.UUID       `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	With      *ProfileSummary `json:"with"`
}

type BoostView struct {
	Active     bool       `json:"active"`
	Type       string     `json:"type,omitempty"`
	Multiplier float64    `json:"multiplier"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

func newBoostView(b matching.Boost) BoostView {
	v := BoostView{Active: b.Active, Multiplier: b.Multiplier}
	if b.Active {
		v.Type = b.Type
		at := b.ExpiresAt
		v.ExpiresAt = &at
	}
	return v
}
