package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/interviewer/internal/conversation"
	"github.com/MikeSquared-Agency/interviewer/internal/prompt"
	"github.com/MikeSquared-Agency/interviewer/internal/session"
)

// Seeder rebuilds evicted session contexts from persisted records. It
// satisfies session.Source.
type Seeder struct {
	convs  Conversations
	rounds Rounds
	codec  *conversation.Codec
	logger *slog.Logger
}

func NewSeeder(convs Conversations, rounds Rounds, codec *conversation.Codec, logger *slog.Logger) *Seeder {
	return &Seeder{convs: convs, rounds: rounds, codec: codec, logger: logger}
}

func (s *Seeder) Seed(ctx context.Context, sessionID string) (*session.Seed, error) {
	rec, err := s.convs.LoadBySessionID(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	seed := &session.Seed{History: s.codec.Decode(rec.History)}

	iv, err := s.rounds.GetInterview(ctx, rec.InterviewID)
	if err == nil {
		var round *Round
		round, err = s.rounds.GetRound(ctx, rec.RoundID)
		if err == nil {
			seed.SystemPrompt = prompt.SystemPrompt(metadata(iv), round.RoundNumber)
		}
	}
	switch {
	case errors.Is(err, ErrNotFound):
		s.logger.Warn("interview or round missing, rebuilding without system prompt",
			"session_id", sessionID, "interview_id", rec.InterviewID, "round_id", rec.RoundID)
	case err != nil:
		return nil, fmt.Errorf("load round context: %w", err)
	}
	return seed, nil
}

func metadata(iv *Interview) prompt.Metadata {
	return prompt.Metadata{
		Company:     iv.Company,
		Position:    iv.Position,
		Description: iv.Description,
	}
}
