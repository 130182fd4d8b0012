package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/interviewer/internal/conversation"
	"github.com/MikeSquared-Agency/interviewer/internal/llm"
	"github.com/MikeSquared-Agency/interviewer/internal/prompt"
	"github.com/MikeSquared-Agency/interviewer/internal/session"
)

// DefaultTurnTimeout bounds one provider call, streamed or not.
const DefaultTurnTimeout = 120 * time.Second

type Config struct {
	Conversations Conversations
	Rounds        Rounds
	Cache         *session.Cache
	Provider      llm.Provider
	Codec         *conversation.Codec
	Events        Events // optional
	TurnTimeout   time.Duration
	Logger        *slog.Logger
}

type Service struct {
	convs       Conversations
	rounds      Rounds
	cache       *session.Cache
	provider    llm.Provider
	codec       *conversation.Codec
	events      Events
	turnTimeout time.Duration
	logger      *slog.Logger

	now   func() time.Time
	newID func() string
}

func NewService(cfg Config) *Service {
	s := &Service{
		convs:       cfg.Conversations,
		rounds:      cfg.Rounds,
		cache:       cfg.Cache,
		provider:    cfg.Provider,
		codec:       cfg.Codec,
		events:      cfg.Events,
		turnTimeout: cfg.TurnTimeout,
		logger:      cfg.Logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	if s.events == nil {
		s.events = noopEvents{}
	}
	if s.turnTimeout <= 0 {
		s.turnTimeout = DefaultTurnTimeout
	}
	return s
}

// CreateSession opens the conversation of a round: it persists an empty
// record, marks the round ongoing and seeds the live context with the
// round's system prompt.
func (s *Service) CreateSession(ctx context.Context, userID string, interviewID, roundID int64) (string, error) {
	iv, err := s.authorizeInterview(ctx, userID, interviewID)
	if err != nil {
		return "", err
	}
	round, err := s.rounds.GetRound(ctx, roundID)
	if err != nil {
		return "", fmt.Errorf("get round %d: %w", roundID, err)
	}
	if round.InterviewID != iv.ID {
		return "", fmt.Errorf("%w: round %d does not belong to interview %d", ErrInvalidRequest, roundID, interviewID)
	}

	sessionID := s.newID()
	now := s.now().UTC()

	rec := &Record{
		SessionID:   sessionID,
		InterviewID: iv.ID,
		RoundID:     round.ID,
		History:     s.codec.Encode(nil),
		CreatedAt:   now,
	}
	if _, err := s.convs.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("create conversation record: %w", err)
	}

	round.SessionID = sessionID
	round.Status = StatusOngoing
	round.UpdatedAt = now
	if err := s.rounds.UpdateRound(ctx, round); err != nil {
		return "", fmt.Errorf("update round %d: %w", round.ID, err)
	}

	s.cache.Create(sessionID, prompt.SystemPrompt(metadata(iv), round.RoundNumber))

	s.logger.Info("session created", "session_id", sessionID, "interview_id", iv.ID, "round_id", round.ID)
	s.publish(SubjectSessionCreated, SessionCreatedEvent{
		SessionID:   sessionID,
		UserID:      userID,
		InterviewID: iv.ID,
		RoundID:     round.ID,
		RoundNumber: round.RoundNumber,
		CreatedAt:   now,
	})
	return sessionID, nil
}

// SendMessage runs one synchronous turn. The reply is kept in the live
// context only. On provider failure the user message stays in context.
func (s *Service) SendMessage(ctx context.Context, userID, sessionID, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: message is empty", ErrInvalidRequest)
	}
	if _, _, err := s.authorizeSession(ctx, userID, sessionID); err != nil {
		return "", err
	}

	if err := s.cache.Append(ctx, sessionID, conversation.Message{Role: conversation.RoleUser, Content: text}); err != nil {
		return "", fmt.Errorf("append user message: %w", err)
	}
	msgs, err := s.cache.GetOrCreate(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load session context: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.turnTimeout)
	defer cancel()

	reply, err := s.provider.Complete(callCtx, toProvider(msgs))
	if err != nil {
		s.logger.Warn("turn failed", "session_id", sessionID, "error", err)
		return "", fmt.Errorf("complete turn: %w", err)
	}

	if err := s.cache.Append(context.WithoutCancel(ctx), sessionID, conversation.Message{Role: conversation.RoleAssistant, Content: reply}); err != nil {
		return "", fmt.Errorf("append reply: %w", err)
	}
	return reply, nil
}

// History returns the persisted conversation of a session. Turns that were
// never saved are not part of it.
func (s *Service) History(ctx context.Context, userID, sessionID string) ([]conversation.Message, error) {
	rec, _, err := s.authorizeSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.codec.Decode(rec.History), nil
}

// SaveRequest carries the optional parts of a save. Nil fields are left
// unchanged; a nil Conversations leaves the persisted history unchanged.
type SaveRequest struct {
	Status         *Status
	Result         *Result
	Notes          *string
	Conversations  []conversation.Message
	RequestSummary bool
}

func (r SaveRequest) validate() error {
	if r.Status != nil && !r.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, *r.Status)
	}
	if r.Result != nil && *r.Result != "" && !r.Result.Valid() {
		return fmt.Errorf("%w: unknown result %q", ErrInvalidRequest, *r.Result)
	}
	return nil
}

// applyTo copies the provided fields onto round and reports whether
// anything changed.
func (r SaveRequest) applyTo(round *Round) bool {
	changed := false
	if r.Status != nil && *r.Status != round.Status {
		round.Status = *r.Status
		changed = true
	}
	if r.Result != nil && *r.Result != round.Result {
		round.Result = *r.Result
		changed = true
	}
	if r.Notes != nil && *r.Notes != round.Notes {
		round.Notes = *r.Notes
		changed = true
	}
	return changed
}

// SummaryOutcome is the optional part of a save. Err is set when the
// summary was requested but could not be produced.
type SummaryOutcome struct {
	Text string
	Err  error
}

// SaveOutcome reports a completed save. The save itself succeeded whenever
// a SaveOutcome is returned; Summary is nil when none was requested.
type SaveOutcome struct {
	InterviewID int64
	RoundID     int64
	Status      Status
	Result      Result
	Summary     *SummaryOutcome
}

// SummaryText returns the summary when one was produced.
func (o *SaveOutcome) SummaryText() (string, bool) {
	if o.Summary == nil || o.Summary.Err != nil {
		return "", false
	}
	return o.Summary.Text, true
}

// Save finalizes a session. It is the only operation that writes
// conversation content durably. The live context is evicted afterwards.
//
// A history that fails to encode aborts the save and leaves the persisted
// record untouched.
func (s *Service) Save(ctx context.Context, userID, sessionID string, req SaveRequest) (*SaveOutcome, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	rec, iv, err := s.authorizeSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	round, err := s.rounds.GetRound(ctx, rec.RoundID)
	if err != nil {
		return nil, fmt.Errorf("get round %d: %w", rec.RoundID, err)
	}

	now := s.now().UTC()

	// An empty submission carries nothing to persist and must not
	// overwrite a history saved earlier.
	var history []conversation.Message
	if len(req.Conversations) > 0 {
		history = make([]conversation.Message, len(req.Conversations))
		copy(history, req.Conversations)
		conversation.Normalize(history, now)

		data, err := s.codec.Marshal(history)
		if err != nil {
			return nil, fmt.Errorf("encode history: %w", err)
		}
		if err := s.convs.UpdateHistory(ctx, sessionID, string(data)); err != nil {
			return nil, fmt.Errorf("update history: %w", err)
		}
	}

	if req.applyTo(round) {
		round.UpdatedAt = now
		if err := s.rounds.UpdateRound(ctx, round); err != nil {
			return nil, fmt.Errorf("update round %d: %w", round.ID, err)
		}
	}

	out := &SaveOutcome{
		InterviewID: iv.ID,
		RoundID:     round.ID,
		Status:      round.Status,
		Result:      round.Result,
	}
	if req.RequestSummary {
		transcript := history
		if len(transcript) == 0 {
			transcript = s.currentTranscript(sessionID, rec)
		}
		out.Summary = s.summarize(ctx, iv, round, transcript)
	}

	s.cache.Evict(sessionID)

	s.logger.Info("conversation saved", "session_id", sessionID, "interview_id", iv.ID, "round_id", round.ID,
		"status", round.Status, "messages", len(history))
	_, summarized := out.SummaryText()
	s.publish(SubjectConversationSaved, ConversationSavedEvent{
		SessionID:   sessionID,
		InterviewID: iv.ID,
		RoundID:     round.ID,
		Status:      round.Status,
		Result:      round.Result,
		Messages:    len(history),
		Summarized:  summarized,
		SavedAt:     now,
	})
	return out, nil
}

// currentTranscript is what a summary covers when the save carried no
// history: the live context if cached, else the persisted history.
func (s *Service) currentTranscript(sessionID string, rec *Record) []conversation.Message {
	if live, ok := s.cache.Peek(sessionID); ok {
		return live
	}
	return s.codec.Decode(rec.History)
}

func (s *Service) summarize(ctx context.Context, iv *Interview, round *Round, history []conversation.Message) *SummaryOutcome {
	if !hasTurns(history) {
		return &SummaryOutcome{Err: errors.New("no conversation to summarize")}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.turnTimeout)
	defer cancel()

	text, err := s.provider.Complete(callCtx, []llm.Message{
		{Role: string(conversation.RoleSystem), Content: prompt.SummarySystemPrompt},
		{Role: string(conversation.RoleUser), Content: prompt.SummaryPrompt(metadata(iv), round.RoundNumber, history)},
	})
	if err != nil {
		s.logger.Warn("summary generation failed", "interview_id", iv.ID, "round_id", round.ID, "error", err)
		return &SummaryOutcome{Err: err}
	}
	return &SummaryOutcome{Text: text}
}

func hasTurns(history []conversation.Message) bool {
	for _, m := range history {
		if m.Role != conversation.RoleSystem {
			return true
		}
	}
	return false
}

// authorizeSession resolves the record and interview behind sessionID and
// checks the caller owns it. Nothing is mutated before this passes.
func (s *Service) authorizeSession(ctx context.Context, userID, sessionID string) (*Record, *Interview, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, nil, fmt.Errorf("%w: session id is required", ErrInvalidRequest)
	}
	rec, err := s.convs.LoadBySessionID(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	iv, err := s.authorizeInterview(ctx, userID, rec.InterviewID)
	if err != nil {
		return nil, nil, err
	}
	return rec, iv, nil
}

func (s *Service) authorizeInterview(ctx context.Context, userID string, interviewID int64) (*Interview, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: caller identity missing", ErrForbidden)
	}
	iv, err := s.rounds.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("get interview %d: %w", interviewID, err)
	}
	if iv.UserID != userID {
		return nil, fmt.Errorf("%w: interview %d", ErrForbidden, interviewID)
	}
	return iv, nil
}

func (s *Service) publish(subject string, data any) {
	if err := s.events.Publish(subject, data); err != nil {
		s.logger.Warn("publish event failed", "subject", subject, "error", err)
	}
}

func toProvider(msgs []conversation.Message) []llm.Message {
	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		out[i] = llm.Message{Role: string(m.Role), Content: m.Content}
	}
	return out
}
