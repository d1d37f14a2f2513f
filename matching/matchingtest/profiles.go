package matchingtest

import (
	"time"

	"github.com/google/uuid"

	"gitea.kood.tech/petrkubec/match-me/engine/matching"
)

// Tallinn is the default location for fixtures.
var Tallinn = matching.Point{Longitude: 24.7536, Latitude: 59.4370}

// NewProfile returns an active free-plan profile aged 30 at now, located in
// Tallinn and open to both genders between 18 and 50 within 50 km.
func NewProfile(now time.Time, name string, gender matching.Gender) matching.Profile {
	return matching.Profile{
		ID:          uuid.New(),
		DisplayName: name,
		BirthDate:   now.AddDate(-30, 0, -1),
		Gender:      gender,
		Location:    Tallinn,
		Preferences: matching.DefaultPreferences(),
		Plan:        matching.PlanFree,
		Boost:       matching.Boost{Multiplier: 1},
		Status:      matching.StatusActive,
	}
}

// NorthOf shifts p by km kilometres due north.
func NorthOf(p matching.Point, km float64) matching.Point {
	return matching.Point{Longitude: p.Longitude, Latitude: p.Latitude + km/111.195}
}
