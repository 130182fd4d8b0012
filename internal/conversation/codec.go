package conversation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// emptyHistory is the canonical encoding of a history with no messages.
const emptyHistory = "[]"

// Codec converts message histories to and from their persisted text form.
// Decode never fails: unreadable input degrades to whatever can be
// recovered, or to an empty history.
type Codec struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewCodec(logger *slog.Logger) *Codec {
	return &Codec{logger: logger, now: time.Now}
}

// Marshal encodes history as a JSON array in message order.
func (c *Codec) Marshal(history []Message) ([]byte, error) {
	if history == nil {
		history = []Message{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}
	return data, nil
}

// Encode is Marshal for callers that cannot act on a failure. It logs and
// returns the empty array instead.
func (c *Codec) Encode(history []Message) string {
	data, err := c.Marshal(history)
	if err != nil {
		c.logger.Error("history encode failed, writing empty history", "error", err, "messages", len(history))
		return emptyHistory
	}
	return string(data)
}

// decodeStrategy returns ok=false when the input is not in its shape.
type decodeStrategy struct {
	name   string
	decode func(c *Codec, data []byte) ([]Message, bool)
}

var decodeStrategies = []decodeStrategy{
	{name: "canonical", decode: decodeCanonical},
	{name: "single", decode: decodeSingle},
	{name: "loose", decode: decodeLoose},
}

// Decode parses a persisted history. Strategies are tried in order; the
// first that recognises the input wins. Messages without a timestamp are
// given synthetic ones and the result is sorted by time.
func (c *Codec) Decode(text string) []Message {
	data := bytes.TrimSpace([]byte(text))
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []Message{}
	}

	for i, s := range decodeStrategies {
		msgs, ok := s.decode(c, data)
		if !ok {
			continue
		}
		if i > 0 {
			c.logger.Warn("history decoded with fallback", "strategy", s.name, "messages", len(msgs))
		}
		Normalize(msgs, c.now())
		return msgs
	}

	c.logger.Warn("history unreadable, using empty history", "length", len(data))
	return []Message{}
}

func decodeCanonical(c *Codec, data []byte) ([]Message, bool) {
	if data[0] != '[' {
		return nil, false
	}
	var wire []wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, false
	}
	msgs := make([]Message, 0, len(wire))
	for _, w := range wire {
		role, ok := ParseRole(w.Role)
		if !ok {
			c.logger.Warn("dropping message with unknown role", "role", w.Role)
			continue
		}
		ts, err := parseTimestamp(w.Timestamp)
		if err != nil {
			return nil, false
		}
		var content string
		if w.Content != nil {
			content = *w.Content
		}
		msgs = append(msgs, Message{Role: role, Content: content, Timestamp: ts})
	}
	return msgs, true
}

// decodeSingle accepts a lone message object where an array was expected.
func decodeSingle(c *Codec, data []byte) ([]Message, bool) {
	if data[0] != '{' {
		return nil, false
	}
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, false
	}
	msg, err := w.message()
	if err != nil {
		return nil, false
	}
	return []Message{msg}, true
}

// decodeLoose keeps only role/content pairs and discards everything else,
// including timestamps in shapes the canonical pass rejected.
func decodeLoose(c *Codec, data []byte) ([]Message, bool) {
	if !bytes.Contains(data, []byte(`"role"`)) || !bytes.Contains(data, []byte(`"content"`)) {
		return nil, false
	}
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false
	}
	msgs := make([]Message, 0, len(raw))
	for _, fields := range raw {
		var roleText, content string
		if json.Unmarshal(fields["role"], &roleText) != nil || json.Unmarshal(fields["content"], &content) != nil {
			continue
		}
		role, ok := ParseRole(roleText)
		if !ok {
			c.logger.Warn("dropping message with unknown role", "role", roleText)
			continue
		}
		msgs = append(msgs, Message{Role: role, Content: content})
	}
	return msgs, true
}
