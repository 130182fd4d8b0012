// Package interview runs interview conversations: session creation,
// synchronous and streamed turns, history retrieval and the save operation
// that persists a round's conversation.
package interview

import (
	"context"
	"time"
)

// Status is the lifecycle state of a round.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusOngoing   Status = "ONGOING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusOngoing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Result is the outcome recorded for a finished round.
type Result string

const (
	ResultPass Result = "PASS"
	ResultFail Result = "FAIL"
)

func (r Result) Valid() bool {
	return r == ResultPass || r == ResultFail
}

type Interview struct {
	ID          int64
	UserID      string
	Company     string
	Position    string
	Description string
	Status      Status
}

type Round struct {
	ID          int64
	InterviewID int64
	RoundNumber int
	SessionID   string
	Status      Status
	Result      Result
	Notes       string
	UpdatedAt   time.Time
}

// Record is the persisted conversation of one session. History holds the
// encoded message history.
type Record struct {
	ID          int64
	SessionID   string
	InterviewID int64
	RoundID     int64
	History     string
	CreatedAt   time.Time
}

// Conversations is the durable store of conversation records, keyed by
// session id. LoadBySessionID returns ErrNotFound when no record exists.
type Conversations interface {
	LoadBySessionID(ctx context.Context, sessionID string) (*Record, error)
	Create(ctx context.Context, rec *Record) (int64, error)
	UpdateHistory(ctx context.Context, sessionID, history string) error
}

// Rounds looks up the interview and round records a session belongs to.
// Getters return ErrNotFound for missing ids.
type Rounds interface {
	GetInterview(ctx context.Context, id int64) (*Interview, error)
	GetRound(ctx context.Context, id int64) (*Round, error)
	UpdateRound(ctx context.Context, round *Round) error
}

// Events publishes lifecycle notifications. Publication is best effort.
type Events interface {
	Publish(subject string, data any) error
}

const (
	SubjectSessionCreated    = "interview.session.created"
	SubjectConversationSaved = "interview.conversation.saved"
)

type SessionCreatedEvent struct {
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	InterviewID int64     `json:"interview_id"`
	RoundID     int64     `json:"round_id"`
	RoundNumber int       `json:"round_number"`
	CreatedAt   time.Time `json:"created_at"`
}

type ConversationSavedEvent struct {
	SessionID   string    `json:"session_id"`
	InterviewID int64     `json:"interview_id"`
	RoundID     int64     `json:"round_id"`
	Status      Status    `json:"status"`
	Result      Result    `json:"result,omitempty"`
	Messages    int       `json:"messages"`
	Summarized  bool      `json:"summarized"`
	SavedAt     time.Time `json:"saved_at"`
}

type noopEvents struct{}

func (noopEvents) Publish(string, any) error { return nil }
