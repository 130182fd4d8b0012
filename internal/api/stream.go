package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/interviewer/internal/interview"
)

// streamConversation relays one streamed turn as server-sent events. Once
// the stream is committed every failure arrives as an error event.
func (s *Server) streamConversation(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, fmt.Errorf("response writer does not support streaming"))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sessionID := chi.URLParam(r, "sessionId")
	events := s.svc.StreamChat(ctx, userID(ctx), sessionID, req.Message)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		if err := writeEvent(w, ev); err != nil {
			s.logger.Info("stream client gone", "session_id", sessionID, "error", err)
			cancel()
			for range events {
			}
			return
		}
		flusher.Flush()
	}
}

func writeEvent(w io.Writer, ev interview.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}
