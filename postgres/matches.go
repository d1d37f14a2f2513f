package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gitea.kood.tech/petrkubec/match-me/engine/matching"
)

const matchColumns = `id, user_low, user_high, created_at, is_active, unmatched_at, unmatched_by`

func scanMatch(row rowScanner) (*matching.Match, error) {
	var (
		m  matching.Match
		at sql.NullTime
		by uuid.NullUUID
	)
	if err := row.Scan(&m.ID, &m.UserLow, &m.UserHigh, &m.CreatedAt, &m.Active, &at, &by); err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	if at.Valid {
		t := at.Time.UTC()
		m.UnmatchedAt = &t
	}
	if by.Valid {
		id := by.UUID
		m.UnmatchedBy = &id
	}
	return &m, nil
}

// InsertMatch relies on matches_pair_key: the losing writer of a race sees
// zero rows and gets matching.ErrDuplicateMatch.
func (s *Store) InsertMatch(ctx context.Context, m matching.Match) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (id, user_low, user_high, created_at, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT ON CONSTRAINT matches_pair_key DO NOTHING
	`, m.ID, m.UserLow, m.UserHigh, m.CreatedAt)
	if isUniqueViolation(err) {
		return matching.ErrDuplicateMatch
	}
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return matching.ErrDuplicateMatch
	}
	return nil
}

func (s *Store) FindMatchByPair(ctx context.Context, p matching.Pair) (*matching.Match, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE user_low = $1 AND user_high = $2`,
		p.Low, p.High,
	)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match %s/%s: %w", p.Low, p.High, matching.ErrNotFound)
	}
	if err != nil {
		return nil, classify(err)
	}
	return m, nil
}

func (s *Store) GetMatch(ctx context.Context, id uuid.UUID) (*matching.Match, error) {
	m, err := scanMatch(s.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match %s: %w", id, matching.ErrNotFound)
	}
	if err != nil {
		return nil, classify(err)
	}
	return m, nil
}

func (s *Store) ListMatches(ctx context.Context, userID uuid.UUID) ([]matching.Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+matchColumns+`
		FROM matches
		WHERE (user_low = $1 OR user_high = $1) AND is_active
		ORDER BY created_at DESC, id
	`, userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []matching.Match{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *m)
	}
	return out, classify(rows.Err())
}

func (s *Store) DeactivateMatch(ctx context.Context, id, by uuid.UUID, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE matches
		SET is_active = FALSE, unmatched_at = $3, unmatched_by = $2
		WHERE id = $1 AND is_active
	`, id, by, at)
	if err != nil {
		return false, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify(err)
	}
	return n == 1, nil
}
