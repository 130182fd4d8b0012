package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/interviewer/internal/conversation"
	"github.com/MikeSquared-Agency/interviewer/internal/llm"
)

type EventType string

const (
	EventMessage EventType = "message"
	EventError   EventType = "error"
)

// Event is one caller-facing element of a streamed turn. Finished marks
// the terminal event of a completed turn.
type Event struct {
	Type     EventType `json:"type"`
	Content  string    `json:"content"`
	Finished bool      `json:"finished"`
}

type TurnState int

const (
	TurnInit TurnState = iota
	TurnSending
	TurnStreaming
	TurnCompleted
	TurnFailed
)

func (s TurnState) String() string {
	switch s {
	case TurnInit:
		return "init"
	case TurnSending:
		return "sending"
	case TurnStreaming:
		return "streaming"
	case TurnCompleted:
		return "completed"
	case TurnFailed:
		return "failed"
	default:
		return fmt.Sprintf("TurnState(%d)", int(s))
	}
}

var errNoFinish = errors.New("provider stream ended without finish signal")

// StreamChat runs one streamed turn and returns its events. Fragments are
// forwarded in arrival order; the channel closes after a finished event or
// an error event. The caller must drain the channel or cancel ctx.
//
// Ownership is checked before anything else; on rejection the returned
// channel already holds the error event and no provider call is made.
func (s *Service) StreamChat(ctx context.Context, userID, sessionID, message string) <-chan Event {
	t := &turn{
		svc:       s,
		sessionID: sessionID,
		logger:    s.logger.With("session_id", sessionID),
	}

	if err := s.initTurn(ctx, userID, sessionID, message); err != nil {
		t.state = TurnFailed
		t.logger.Info("stream turn rejected", "error", err)
		out := make(chan Event, 1)
		out <- errorEvent(err)
		close(out)
		return out
	}

	out := make(chan Event)
	go t.run(ctx, message, out)
	return out
}

func (s *Service) initTurn(ctx context.Context, userID, sessionID, message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: message is empty", ErrInvalidRequest)
	}
	_, _, err := s.authorizeSession(ctx, userID, sessionID)
	return err
}

// turn is the state of one streamed exchange. It is owned by one goroutine.
type turn struct {
	svc       *Service
	sessionID string
	logger    *slog.Logger

	state TurnState
	reply strings.Builder
}

func (t *turn) run(parent context.Context, message string, out chan<- Event) {
	defer close(out)

	ctx, cancel := context.WithTimeout(parent, t.svc.turnTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			t.fail(parent, out, fmt.Errorf("stream turn panic: %v", r))
		}
	}()

	if err := t.execute(ctx, parent, message, out); err != nil {
		t.fail(parent, out, err)
	}
}

func (t *turn) execute(ctx, parent context.Context, message string, out chan<- Event) error {
	t.state = TurnSending
	cache := t.svc.cache

	if err := cache.Append(ctx, t.sessionID, conversation.Message{Role: conversation.RoleUser, Content: message}); err != nil {
		return fmt.Errorf("append user message: %w", err)
	}
	msgs, err := cache.GetOrCreate(ctx, t.sessionID)
	if err != nil {
		return fmt.Errorf("load session context: %w", err)
	}

	var final *Event
	err = t.svc.provider.Stream(ctx, toProvider(msgs), func(ch llm.Chunk) error {
		t.state = TurnStreaming
		t.reply.WriteString(ch.Delta)
		if ch.Final {
			final = &Event{Type: EventMessage, Content: ch.Delta, Finished: true}
			return nil
		}
		if ch.Delta == "" {
			return nil
		}
		return send(ctx, out, Event{Type: EventMessage, Content: ch.Delta})
	})
	if err != nil {
		return fmt.Errorf("stream reply: %w", err)
	}
	if final == nil {
		return errNoFinish
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("stream reply: %w", err)
	}

	// The reply is complete; a caller leaving now must not lose it.
	reply := conversation.Message{Role: conversation.RoleAssistant, Content: t.reply.String()}
	if err := cache.Append(context.WithoutCancel(parent), t.sessionID, reply); err != nil {
		return fmt.Errorf("append reply: %w", err)
	}
	t.state = TurnCompleted
	t.logger.Debug("stream turn completed", "reply_len", len(reply.Content))

	if err := send(ctx, out, *final); err != nil {
		t.logger.Info("caller left before the finished event", "error", err)
	}
	return nil
}

// fail discards the partial reply and reports err to the caller if it is
// still listening.
func (t *turn) fail(parent context.Context, out chan<- Event, err error) {
	from := t.state
	t.state = TurnFailed
	t.reply.Reset()
	t.logger.Warn("stream turn failed", "state", from.String(), "error", err)

	if parent.Err() != nil {
		return
	}
	select {
	case out <- errorEvent(err):
	case <-parent.Done():
	}
}

// send gives cancellation priority over delivery.
func send(ctx context.Context, out chan<- Event, ev Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("deliver event: %w", err)
	}
	select {
	case out <- ev:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("deliver event: %w", ctx.Err())
	}
}

func errorEvent(err error) Event {
	return Event{Type: EventError, Content: publicMessage(err)}
}

// publicMessage is the error text shown to callers. Upstream detail stays
// in the logs.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden), errors.Is(err, ErrInvalidRequest):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "the interviewer took too long to respond"
	default:
		return "the interviewer failed to respond"
	}
}
