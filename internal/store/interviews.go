package store

import (
	"context"
	"fmt"

	"github.com/MikeSquared-Agency/interviewer/internal/interview"
)

func (s *Store) GetInterview(ctx context.Context, id int64) (*interview.Interview, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, company, position, description, status
		FROM interviews WHERE id = $1`, id)

	var iv interview.Interview
	err := row.Scan(&iv.ID, &iv.UserID, &iv.Company, &iv.Position, &iv.Description, &iv.Status)
	if err != nil {
		return nil, notFound(err, "interview", id)
	}
	return &iv, nil
}

func (s *Store) GetRound(ctx context.Context, id int64) (*interview.Round, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, interview_id, round_number, COALESCE(session_id, ''), status, COALESCE(result, ''), notes, updated_at
		FROM interview_rounds WHERE id = $1`, id)

	var r interview.Round
	err := row.Scan(&r.ID, &r.InterviewID, &r.RoundNumber, &r.SessionID, &r.Status, &r.Result, &r.Notes, &r.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "round", id)
	}
	return &r, nil
}

func (s *Store) UpdateRound(ctx context.Context, r *interview.Round) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE interview_rounds
		SET session_id = NULLIF($2, ''), status = $3, result = NULLIF($4, ''), notes = $5, updated_at = $6
		WHERE id = $1`,
		r.ID, r.SessionID, string(r.Status), string(r.Result), r.Notes, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update round: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("round %d: %w", r.ID, interview.ErrNotFound)
	}
	return nil
}

// CreateInterview inserts iv and returns its id. Interview records are
// normally owned by the upstream application; this is used for seeding.
func (s *Store) CreateInterview(ctx context.Context, iv *interview.Interview) (int64, error) {
	status := iv.Status
	if status == "" {
		status = interview.StatusPending
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO interviews (user_id, company, position, description, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		iv.UserID, iv.Company, iv.Position, iv.Description, string(status),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert interview: %w", err)
	}
	return id, nil
}

func (s *Store) CreateRound(ctx context.Context, r *interview.Round) (int64, error) {
	status := r.Status
	if status == "" {
		status = interview.StatusPending
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO interview_rounds (interview_id, round_number, status, notes)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		r.InterviewID, r.RoundNumber, string(status), r.Notes,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert round: %w", err)
	}
	return id, nil
}
