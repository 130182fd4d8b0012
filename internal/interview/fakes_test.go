package interview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MikeSquared-Agency/interviewer/internal/conversation"
	"github.com/MikeSquared-Agency/interviewer/internal/llm"
	"github.com/MikeSquared-Agency/interviewer/internal/prompt"
	"github.com/MikeSquared-Agency/interviewer/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore implements Conversations and Rounds in memory.
type memStore struct {
	mu         sync.Mutex
	interviews map[int64]*Interview
	rounds     map[int64]*Round
	records    map[string]*Record
	nextID     int64
	updates    int // UpdateHistory calls
}

func newMemStore() *memStore {
	return &memStore{
		interviews: make(map[int64]*Interview),
		rounds:     make(map[int64]*Round),
		records:    make(map[string]*Record),
	}
}

func (m *memStore) addInterview(iv Interview) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interviews[iv.ID] = &iv
}

func (m *memStore) addRound(r Round) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[r.ID] = &r
}

func (m *memStore) LoadBySessionID(_ context.Context, sessionID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) Create(_ context.Context, rec *Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cp := *rec
	cp.ID = m.nextID
	m.records[rec.SessionID] = &cp
	return cp.ID, nil
}

func (m *memStore) UpdateHistory(_ context.Context, sessionID, history string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[sessionID]
	if !ok {
		return ErrNotFound
	}
	rec.History = history
	m.updates++
	return nil
}

func (m *memStore) GetInterview(_ context.Context, id int64) (*Interview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	iv, ok := m.interviews[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *iv
	return &cp, nil
}

func (m *memStore) GetRound(_ context.Context, id int64) (*Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) UpdateRound(_ context.Context, r *Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rounds[r.ID]; !ok {
		return ErrNotFound
	}
	cp := *r
	m.rounds[r.ID] = &cp
	return nil
}

func (m *memStore) round(id int64) Round {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rounds[id]
}

func (m *memStore) history(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[sessionID].History
}

// fakeProvider replies with fixed text or streams fixed chunks.
type fakeProvider struct {
	reply        string
	completeErr  error
	summary      string
	summaryErr   error
	chunks       []string
	streamErr    error // returned after chunks are delivered
	noFinish     bool
	blockStream  bool // wait for ctx after chunks
	panicStream  bool
	completeHits atomic.Int32
	streamHits   atomic.Int32

	mu       sync.Mutex
	lastSent []llm.Message
}

func (p *fakeProvider) Complete(_ context.Context, messages []llm.Message) (string, error) {
	p.completeHits.Add(1)
	p.mu.Lock()
	p.lastSent = messages
	p.mu.Unlock()
	if len(messages) > 0 && messages[0].Content == prompt.SummarySystemPrompt {
		return p.summary, p.summaryErr
	}
	return p.reply, p.completeErr
}

func (p *fakeProvider) Stream(ctx context.Context, messages []llm.Message, onChunk func(llm.Chunk) error) error {
	p.streamHits.Add(1)
	p.mu.Lock()
	p.lastSent = messages
	p.mu.Unlock()
	for _, c := range p.chunks {
		if err := onChunk(llm.Chunk{Delta: c}); err != nil {
			return err
		}
	}
	if p.panicStream {
		panic("provider exploded")
	}
	if p.blockStream {
		<-ctx.Done()
		return ctx.Err()
	}
	if p.streamErr != nil {
		return p.streamErr
	}
	if p.noFinish {
		return nil
	}
	return onChunk(llm.Chunk{Final: true})
}

func (p *fakeProvider) sent() []llm.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSent
}

type recordedEvent struct {
	subject string
	data    any
}

type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (f *fakeEvents) Publish(subject string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{subject: subject, data: data})
	return f.err
}

func (f *fakeEvents) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.subject
	}
	return out
}

var errProvider = errors.New("provider unavailable")

var fixedNow = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

const (
	owner        = "user-1"
	acmeID int64 = 1
	round1 int64 = 11
)

// fixture wires a Service over in-memory collaborators with one Acme
// interview and its first round.
type fixture struct {
	store    *memStore
	provider *fakeProvider
	events   *fakeEvents
	cache    *session.Cache
	codec    *conversation.Codec
	svc      *Service
}

func newFixture(provider *fakeProvider) *fixture {
	store := newMemStore()
	store.addInterview(Interview{ID: acmeID, UserID: owner, Company: "Acme", Position: "Backend Engineer", Status: StatusOngoing})
	store.addRound(Round{ID: round1, InterviewID: acmeID, RoundNumber: 1, Status: StatusPending})

	logger := discardLogger()
	codec := conversation.NewCodec(logger)
	cache := session.NewCache(NewSeeder(store, store, codec, logger), session.DefaultCapacity, logger)
	events := &fakeEvents{}

	svc := NewService(Config{
		Conversations: store,
		Rounds:        store,
		Cache:         cache,
		Provider:      provider,
		Codec:         codec,
		Events:        events,
		TurnTimeout:   2 * time.Second,
		Logger:        logger,
	})
	svc.now = func() time.Time { return fixedNow }
	ids := 0
	svc.newID = func() string {
		ids++
		return fmt.Sprintf("session-%d", ids)
	}

	return &fixture{store: store, provider: provider, events: events, cache: cache, codec: codec, svc: svc}
}

func statusPtr(s Status) *Status { return &s }
func resultPtr(r Result) *Result { return &r }
func strPtr(s string) *string    { return &s }
