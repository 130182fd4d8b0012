package session

import (
	"sync"

	"github.com/MikeSquared-Agency/interviewer/internal/conversation"
)

// minCapacity leaves room for the system prompt plus one turn message.
const minCapacity = 2

// buffer is one session's bounded conversation. Its mutex linearises all
// operations on the session.
type buffer struct {
	capacity int

	mu       sync.Mutex
	messages []conversation.Message
}

func newBuffer(capacity int) *buffer {
	if capacity < minCapacity {
		capacity = minCapacity
	}
	return &buffer{capacity: capacity, messages: make([]conversation.Message, 0, capacity)}
}

func (b *buffer) append(msg conversation.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.add(msg)
}

// add appends msg and evicts the oldest non-system messages until the
// buffer is back within capacity. Caller must hold b.mu.
func (b *buffer) add(msg conversation.Message) {
	b.messages = append(b.messages, msg)
	for len(b.messages) > b.capacity {
		i := b.oldestEvictable()
		b.messages = append(b.messages[:i], b.messages[i+1:]...)
	}
}

// oldestEvictable never returns the leading system prompt.
func (b *buffer) oldestEvictable() int {
	for i, m := range b.messages {
		if m.Role != conversation.RoleSystem {
			return i
		}
	}
	return 1
}

func (b *buffer) snapshot() []conversation.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]conversation.Message, len(b.messages))
	copy(out, b.messages)
	return out
}
