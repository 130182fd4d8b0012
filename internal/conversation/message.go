package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the persisted timestamp form, always written in UTC.
const TimestampLayout = "2006-01-02T15:04:05"

// Role is the closed set of speakers in an interview conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole maps a wire role onto the closed Role set. Matching is case
// insensitive and accepts the aliases older clients wrote.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "system":
		return RoleSystem, true
	case "user", "human", "candidate":
		return RoleUser, true
	case "assistant", "ai", "bot", "interviewer":
		return RoleAssistant, true
	default:
		return "", false
	}
}

// Message is one utterance in a conversation.
type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time // zero when the sender did not supply one
}

// wireMessage is the persisted and HTTP shape of a Message.
type wireMessage struct {
	Role      string  `json:"role"`
	Content   *string `json:"content"`
	Timestamp *string `json:"timestamp,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	content := m.Content
	w := wireMessage{Role: string(m.Role), Content: &content}
	if !m.Timestamp.IsZero() {
		ts := m.Timestamp.UTC().Format(TimestampLayout)
		w.Timestamp = &ts
	}
	return json.Marshal(w)
}

// UnmarshalJSON is strict: unknown roles and unparseable timestamps are
// errors. A missing or null timestamp leaves Timestamp zero.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	msg, err := w.message()
	if err != nil {
		return err
	}
	*m = msg
	return nil
}

func (w wireMessage) message() (Message, error) {
	role, ok := ParseRole(w.Role)
	if !ok {
		return Message{}, fmt.Errorf("unknown role %q", w.Role)
	}
	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return Message{}, err
	}
	var content string
	if w.Content != nil {
		content = *w.Content
	}
	return Message{Role: role, Content: content, Timestamp: ts}, nil
}

var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
}

func parseTimestamp(s *string) (time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return time.Time{}, nil
	}
	v := strings.TrimSpace(*s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", v)
}
