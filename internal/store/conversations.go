package store

import (
	"context"
	"fmt"

	"github.com/MikeSquared-Agency/interviewer/internal/interview"
)

func (s *Store) LoadBySessionID(ctx context.Context, sessionID string) (*interview.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, session_id, interview_id, round_id, conversation_text, created_at
		FROM interview_conversations WHERE session_id = $1`, sessionID)

	var r interview.Record
	err := row.Scan(&r.ID, &r.SessionID, &r.InterviewID, &r.RoundID, &r.History, &r.CreatedAt)
	if err != nil {
		return nil, notFound(err, "conversation", sessionID)
	}
	return &r, nil
}

func (s *Store) Create(ctx context.Context, rec *interview.Record) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO interview_conversations (session_id, interview_id, round_id, conversation_text, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		rec.SessionID, rec.InterviewID, rec.RoundID, rec.History, rec.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert conversation: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateHistory(ctx context.Context, sessionID, history string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE interview_conversations SET conversation_text = $2 WHERE session_id = $1`,
		sessionID, history,
	)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", sessionID, interview.ErrNotFound)
	}
	return nil
}
