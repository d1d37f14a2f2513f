package postgres

import (
	"context"
	"time"
)

// JobCompleted reports whether job has a recorded run for the UTC date of day.
func (s *Store) JobCompleted(ctx context.Context, job string, day time.Time) (bool, error) {
	var done bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM job_runs WHERE job = $1 AND run_date = $2::date)
	`, job, day.UTC().Format(time.DateOnly)).Scan(&done)
	if err != nil {
		return false, classify(err)
	}
	return done, nil
}

// CompleteJob records a run of job for the UTC date of day. Recording twice is a no-op.
func (s *Store) CompleteJob(ctx context.Context, job string, day time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_runs (job, run_date, completed_at)
		VALUES ($1, $2::date, NOW())
		ON CONFLICT (job, run_date) DO NOTHING
	`, job, day.UTC().Format(time.DateOnly))
	return classify(err)
}
