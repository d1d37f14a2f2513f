package matching

import (
	"bytes"
	"math"
	"time"

	"github.com/google/uuid"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// AgeOn returns the age in whole years at now.
func AgeOn(birth, now time.Time) int {
	now = now.UTC()
	birth = birth.UTC()
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}

// BirthBounds converts an inclusive age window into birth dates: a profile
// is inside the window when bornAfter < birthDate <= bornOnOrBefore.
func BirthBounds(now time.Time, minAge, maxAge int) (bornAfter, bornOnOrBefore time.Time) {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(-(maxAge + 1), 0, 0), day.AddDate(-minAge, 0, 0)
}

// Pair is an unordered pair of profiles stored in canonical order.
type Pair struct {
	Low  uuid.UUID
	High uuid.UUID
}

// CanonicalPair orders a and b by their byte representation, which is also
// how Postgres compares uuid values.
func CanonicalPair(a, b uuid.UUID) (Pair, error) {
	switch c := bytes.Compare(a[:], b[:]); {
	case c < 0:
		return Pair{Low: a, High: b}, nil
	case c > 0:
		return Pair{Low: b, High: a}, nil
	}
	return Pair{}, &ValidationError{Field: "target", Reason: "cannot pair a profile with itself"}
}
