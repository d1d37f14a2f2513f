package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"

	"gitea.kood.tech/petrkubec/match-me/engine/matching"
)

// kmPerDegreeLat is the length of one degree of latitude on the haversine sphere.
const kmPerDegreeLat = 111.195

// candidatesQuery filters, ranks and pages in one round trip. The latitude
// band only prunes rows for the index; the haversine distance decides.
const candidatesQuery = `
WITH scored AS (
	SELECT
		p.id, p.display_name, p.birth_date, p.gender,
		6371.0 * 2 * asin(sqrt(LEAST(1.0,
			power(sin(radians(p.latitude - $2) / 2), 2) +
			cos(radians($2)) * cos(radians(p.latitude)) *
			power(sin(radians(p.longitude - $3) / 2), 2)
		))) AS distance_km,
		CASE
			WHEN p.boost_active AND p.boost_expires_at > $8 AND p.boost_multiplier > 0
			THEN p.boost_multiplier
			ELSE 1.0
		END AS multiplier
	FROM profiles p
	WHERE p.id <> $1
	  AND p.status = 'active'
	  AND p.latitude BETWEEN $2 - $12 AND $2 + $12
	  AND p.birth_date > $5::date
	  AND p.birth_date <= $6::date
	  AND p.gender = ANY($7::text[])
	  AND (NOT $9 OR (
		$10 BETWEEN p.pref_min_age AND p.pref_max_age
		AND p.pref_interested_in = ANY($11::text[])
	  ))
	  AND NOT EXISTS (
		SELECT 1 FROM swipes s WHERE s.actor_id = $1 AND s.target_id = p.id
	  )
)
SELECT id, display_name, birth_date, gender, distance_km, multiplier
FROM scored
WHERE distance_km <= $4
ORDER BY distance_km / multiplier, id
OFFSET $13
LIMIT $14
`

func (s *Store) FindCandidates(ctx context.Context, c matching.CandidateCriteria) ([]matching.CandidateSummary, error) {
	genders := make([]string, len(c.Genders))
	for i, g := range c.Genders {
		genders[i] = string(g)
	}
	var accepting []string
	for _, in := range matching.InterestsAccepting(c.ActorGender) {
		accepting = append(accepting, string(in))
	}

	var limit any
	if c.Limit > 0 {
		limit = c.Limit
	}

	rows, err := s.db.QueryContext(ctx, candidatesQuery,
		c.ActorID,
		c.Origin.Latitude,
		c.Origin.Longitude,
		c.MaxDistanceKm,
		c.BornAfter.Format(time.DateOnly),
		c.BornOnOrBefore.Format(time.DateOnly),
		pq.Array(genders),
		c.Now,
		c.Symmetric,
		c.ActorAge,
		pq.Array(accepting),
		latitudeBand(c.MaxDistanceKm),
		c.Offset,
		limit,
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []matching.CandidateSummary{}
	for rows.Next() {
		var (
			cs     matching.CandidateSummary
			birth  time.Time
			gender string
			mult   float64
		)
		if err := rows.Scan(&cs.ID, &cs.DisplayName, &birth, &gender, &cs.DistanceKm, &mult); err != nil {
			return nil, classify(err)
		}
		cs.Gender = matching.Gender(gender)
		cs.Age = matching.AgeOn(birth.UTC(), c.Now)
		cs.Boosted = mult > 1
		cs.RankKey = cs.DistanceKm / mult
		out = append(out, cs)
	}
	return out, classify(rows.Err())
}

// latitudeBand is the half height, in degrees, of the band that can hold
// points within km of the origin. Slightly padded for float rounding.
func latitudeBand(km float64) float64 {
	if km < 0 {
		km = 0
	}
	return km/kmPerDegreeLat + 0.01
}
