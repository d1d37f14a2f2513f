package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"gitea.kood.tech/petrkubec/match-me/engine/matching"
)

const profileColumns = `
	id, display_name, birth_date, gender, longitude, latitude,
	pref_min_age, pref_max_age, pref_max_distance_km, pref_interested_in,
	plan, daily_swipes, daily_messages,
	boost_active, boost_expires_at, boost_multiplier, boost_type,
	status`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*matching.Profile, error) {
	var (
		p           matching.Profile
		gender      string
		interest    string
		plan        string
		status      string
		boostExpiry sql.NullTime
		boostType   sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.DisplayName, &p.BirthDate, &gender, &p.Location.Longitude, &p.Location.Latitude,
		&p.Preferences.MinAge, &p.Preferences.MaxAge, &p.Preferences.MaxDistanceKm, &interest,
		&plan, &p.DailySwipes, &p.DailyMessages,
		&p.Boost.Active, &boostExpiry, &p.Boost.Multiplier, &boostType,
		&status,
	)
	if err != nil {
		return nil, err
	}
	p.BirthDate = p.BirthDate.UTC()
	p.Gender = matching.Gender(gender)
	p.Preferences.InterestedIn = matching.Interest(interest)
	p.Plan = matching.ParsePlan(plan)
	p.Status = matching.Status(status)
	if boostExpiry.Valid {
		p.Boost.ExpiresAt = boostExpiry.Time.UTC()
	}
	p.Boost.Type = boostType.String
	return &p, nil
}

func (s *Store) GetProfile(ctx context.Context, id uuid.UUID) (*matching.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", id, matching.ErrNotFound)
	}
	if err != nil {
		return nil, classify(err)
	}
	return p, nil
}

func (s *Store) GetProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*matching.Profile, error) {
	out := make(map[uuid.UUID]*matching.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ANY($1::uuid[])`,
		pq.Array(uuidStrings(ids)),
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, classify(err)
		}
		out[p.ID] = p
	}
	return out, classify(rows.Err())
}

// counterColumn whitelists the column touched by IncrementCounterIfBelow.
func counterColumn(kind matching.ActionKind) (string, error) {
	switch kind {
	case matching.ActionSwipe:
		return "daily_swipes", nil
	case matching.ActionMessage:
		return "daily_messages", nil
	}
	return "", &matching.ValidationError{Field: "action", Reason: "unknown action " + string(kind)}
}

func (s *Store) IncrementCounterIfBelow(ctx context.Context, id uuid.UUID, kind matching.ActionKind, limit int) (bool, error) {
	col, err := counterColumn(kind)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE profiles
		SET %[1]s = %[1]s + 1, updated_at = NOW()
		WHERE id = $1 AND %[1]s < $2
	`, col), id, limit)
	if err != nil {
		return false, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify(err)
	}
	if n == 1 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, classify(err)
	}
	if !exists {
		return false, fmt.Errorf("profile %s: %w", id, matching.ErrNotFound)
	}
	return false, nil
}

func (s *Store) ActivateBoost(ctx context.Context, id uuid.UUID, b matching.Boost) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET boost_active = TRUE,
		    boost_expires_at = $2,
		    boost_multiplier = $3,
		    boost_type = $4,
		    updated_at = NOW()
		WHERE id = $1
	`, id, b.ExpiresAt, b.Multiplier, b.Type)
	if err != nil {
		return classify(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return classify(err)
	} else if n == 0 {
		return fmt.Errorf("profile %s: %w", id, matching.ErrNotFound)
	}
	return nil
}

func (s *Store) ExpireBoosts(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET boost_active = FALSE, boost_multiplier = 1.0, updated_at = NOW()
		WHERE boost_active AND boost_expires_at <= $1
	`, now)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	return n, classify(err)
}

func (s *Store) ResetDailyCounters(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET daily_swipes = 0, daily_messages = 0, updated_at = NOW()
		WHERE daily_swipes <> 0 OR daily_messages <> 0
	`)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	return n, classify(err)
}

// SaveProfile inserts or fully replaces a profile. Used by fixtures and
// account provisioning; the matching engine never calls it.
func (s *Store) SaveProfile(ctx context.Context, p matching.Profile) error {
	var expires any
	if !p.Boost.ExpiresAt.IsZero() {
		expires = p.Boost.ExpiresAt
	}
	mult := p.Boost.Multiplier
	if mult <= 0 {
		mult = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NULLIF($17, ''), $18)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			birth_date = EXCLUDED.birth_date,
			gender = EXCLUDED.gender,
			longitude = EXCLUDED.longitude,
			latitude = EXCLUDED.latitude,
			pref_min_age = EXCLUDED.pref_min_age,
			pref_max_age = EXCLUDED.pref_max_age,
			pref_max_distance_km = EXCLUDED.pref_max_distance_km,
			pref_interested_in = EXCLUDED.pref_interested_in,
			plan = EXCLUDED.plan,
			daily_swipes = EXCLUDED.daily_swipes,
			daily_messages = EXCLUDED.daily_messages,
			boost_active = EXCLUDED.boost_active,
			boost_expires_at = EXCLUDED.boost_expires_at,
			boost_multiplier = EXCLUDED.boost_multiplier,
			boost_type = EXCLUDED.boost_type,
			status = EXCLUDED.status,
			updated_at = NOW()
	`,
		p.ID, p.DisplayName, p.BirthDate.Format(time.DateOnly), string(p.Gender), p.Location.Longitude, p.Location.Latitude,
		p.Preferences.MinAge, p.Preferences.MaxAge, p.Preferences.MaxDistanceKm, string(p.Preferences.InterestedIn),
		string(p.Plan), p.DailySwipes, p.DailyMessages,
		p.Boost.Active, expires, mult, p.Boost.Type,
		string(p.Status),
	)
	return classify(err)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
