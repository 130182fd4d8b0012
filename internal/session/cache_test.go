package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/interviewer/internal/conversation"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	seeds map[string]*Seed
	err   error
	calls atomic.Int32
	gate  chan struct{} // when set, Seed blocks until closed
}

func (f *fakeSource) Seed(ctx context.Context, sessionID string) (*Seed, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.seeds[sessionID], nil
}

func user(content string) conversation.Message {
	return conversation.Message{Role: conversation.RoleUser, Content: content}
}

func assistant(content string) conversation.Message {
	return conversation.Message{Role: conversation.RoleAssistant, Content: content}
}

func TestGetOrCreate_SameContextWithoutReseeding(t *testing.T) {
	src := &fakeSource{seeds: map[string]*Seed{
		"s1": {SystemPrompt: "interview rules", History: []conversation.Message{user("hi"), assistant("hello")}},
	}}
	c := NewCache(src, DefaultCapacity, discardLogger())
	ctx := context.Background()

	first, err := c.GetOrCreate(ctx, "s1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if err := c.Append(ctx, "s1", user("next question please")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	second, err := c.GetOrCreate(ctx, "s1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if len(first) != 3 {
		t.Fatalf("expected system + 2 history messages, got %d", len(first))
	}
	if len(second) != 4 {
		t.Fatalf("expected appended message to persist in context, got %d", len(second))
	}
	systems := 0
	for _, m := range second {
		if m.Role == conversation.RoleSystem {
			systems++
		}
	}
	if systems != 1 {
		t.Errorf("expected exactly one system prompt, got %d", systems)
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("expected one rebuild, got %d", n)
	}
}

func TestRebuild_SkipsPersistedSystemMessages(t *testing.T) {
	src := &fakeSource{seeds: map[string]*Seed{
		"s1": {SystemPrompt: "fresh rules", History: []conversation.Message{
			{Role: conversation.RoleSystem, Content: "stale rules"},
			user("hi"),
		}},
	}}
	c := NewCache(src, DefaultCapacity, discardLogger())

	got, err := c.GetOrCreate(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if len(got) != 2 || got[0].Content != "fresh rules" || got[1].Content != "hi" {
		t.Errorf("unexpected rebuilt context: %+v", got)
	}
}

func TestGetOrCreate_NoRecordStartsEmpty(t *testing.T) {
	c := NewCache(&fakeSource{}, DefaultCapacity, discardLogger())

	got, err := c.GetOrCreate(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty context, got %d messages", len(got))
	}
	if c.Len() != 1 {
		t.Errorf("expected empty context to be cached, got %d entries", c.Len())
	}
}

func TestGetOrCreate_SourceErrorNotCached(t *testing.T) {
	src := &fakeSource{err: errors.New("db down")}
	c := NewCache(src, DefaultCapacity, discardLogger())

	if _, err := c.GetOrCreate(context.Background(), "s1"); err == nil {
		t.Fatal("expected rebuild error")
	}
	if c.Len() != 0 {
		t.Errorf("expected nothing cached after failed rebuild, got %d", c.Len())
	}
}

func TestAppend_BoundNeverEvictsSystemPrompt(t *testing.T) {
	c := NewCache(&fakeSource{}, 20, discardLogger())
	ctx := context.Background()
	c.Create("s1", "interview rules")

	for i := 0; i < 25; i++ {
		if err := c.Append(ctx, "s1", user(fmt.Sprintf("q%d", i))); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if err := c.Append(ctx, "s1", assistant(fmt.Sprintf("a%d", i))); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		got, _ := c.Peek("s1")
		if len(got) > 20 {
			t.Fatalf("buffer exceeded bound: %d", len(got))
		}
	}

	got, _ := c.Peek("s1")
	if len(got) != 20 {
		t.Fatalf("expected full buffer of 20, got %d", len(got))
	}
	if got[0].Role != conversation.RoleSystem || got[0].Content != "interview rules" {
		t.Errorf("system prompt evicted: %+v", got[0])
	}
	// 50 turn messages, 19 slots: the oldest kept is a15 followed by q16.
	if got[1].Content != "a15" || got[19].Content != "a24" {
		t.Errorf("unexpected window: first=%q last=%q", got[1].Content, got[19].Content)
	}
}

func TestAppend_AssignsTimestamp(t *testing.T) {
	c := NewCache(&fakeSource{}, DefaultCapacity, discardLogger())
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if err := c.Append(context.Background(), "s1", user("hi")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	got, _ := c.Peek("s1")
	if !got[0].Timestamp.Equal(now) {
		t.Errorf("expected timestamp %v, got %v", now, got[0].Timestamp)
	}
}

func TestEvict_Idempotent(t *testing.T) {
	src := &fakeSource{}
	c := NewCache(src, DefaultCapacity, discardLogger())
	c.Create("s1", "rules")

	c.Evict("s1")
	c.Evict("s1")
	c.Evict("never-existed")

	if _, ok := c.Peek("s1"); ok {
		t.Error("expected s1 evicted")
	}
	if src.calls.Load() != 0 {
		t.Error("evict must not touch the source")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	c := NewCache(&fakeSource{}, DefaultCapacity, discardLogger())
	c.Create("s1", "rules")

	got, _ := c.GetOrCreate(context.Background(), "s1")
	got[0].Content = "tampered"

	again, _ := c.Peek("s1")
	if again[0].Content != "rules" {
		t.Error("snapshot mutation leaked into the cache")
	}
}

func TestConcurrentMissesShareOneRebuild(t *testing.T) {
	src := &fakeSource{
		seeds: map[string]*Seed{"s1": {SystemPrompt: "rules"}},
		gate:  make(chan struct{}),
	}
	c := NewCache(src, DefaultCapacity, discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetOrCreate(context.Background(), "s1"); err != nil {
				t.Errorf("GetOrCreate failed: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	if n := src.calls.Load(); n != 1 {
		t.Errorf("expected a single rebuild, got %d", n)
	}
	got, _ := c.Peek("s1")
	if len(got) != 1 {
		t.Errorf("expected one system prompt, got %d messages", len(got))
	}
}

// blockingSource holds the rebuild until release is closed and records
// whether its context was still live at that point.
type blockingSource struct {
	started chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func (b *blockingSource) Seed(ctx context.Context, _ string) (*Seed, error) {
	close(b.started)
	<-b.release
	b.ctxErr <- ctx.Err()
	return &Seed{SystemPrompt: "rules"}, nil
}

func TestRebuildSurvivesFirstCallerLeaving(t *testing.T) {
	src := &blockingSource{
		started: make(chan struct{}),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 1),
	}
	c := NewCache(src, DefaultCapacity, discardLogger())

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.GetOrCreate(ctxA, "s1")
		errA <- err
	}()
	<-src.started

	errB := make(chan error, 1)
	go func() {
		_, err := c.GetOrCreate(context.Background(), "s1")
		errB <- err
	}()

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the leaving caller to see context.Canceled, got %v", err)
	}

	close(src.release)
	if err := <-src.ctxErr; err != nil {
		t.Errorf("rebuild context was cancelled with its first caller: %v", err)
	}
	if err := <-errB; err != nil {
		t.Fatalf("live caller failed: %v", err)
	}
	got, ok := c.Peek("s1")
	if !ok || len(got) != 1 || got[0].Content != "rules" {
		t.Errorf("expected rebuilt context to be cached, got %+v", got)
	}
}

func TestConcurrentSessionsAreIndependent(t *testing.T) {
	c := NewCache(&fakeSource{}, 50, discardLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	for s := 0; s < 8; s++ {
		id := fmt.Sprintf("session-%d", s)
		c.Create(id, "rules")
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if err := c.Append(ctx, id, user(fmt.Sprintf("%s-%d", id, i))); err != nil {
					t.Errorf("Append failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	for s := 0; s < 8; s++ {
		id := fmt.Sprintf("session-%d", s)
		got, _ := c.Peek(id)
		if len(got) != 21 {
			t.Errorf("%s: expected 21 messages, got %d", id, len(got))
		}
		for i, m := range got[1:] {
			if m.Content != fmt.Sprintf("%s-%d", id, i) {
				t.Errorf("%s: message %d = %q", id, i, m.Content)
				break
			}
		}
	}
}
