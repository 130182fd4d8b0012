package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/interviewer/internal/conversation"
	"github.com/MikeSquared-Agency/interviewer/internal/interview"
)

// Interviews is the conversation service behind the HTTP surface.
type Interviews interface {
	CreateSession(ctx context.Context, userID string, interviewID, roundID int64) (string, error)
	SendMessage(ctx context.Context, userID, sessionID, text string) (string, error)
	History(ctx context.Context, userID, sessionID string) ([]conversation.Message, error)
	Save(ctx context.Context, userID, sessionID string, req interview.SaveRequest) (*interview.SaveOutcome, error)
	StreamChat(ctx context.Context, userID, sessionID, message string) <-chan interview.Event
}

type Server struct {
	router *chi.Mux
	port   int
	svc    Interviews
	logger *slog.Logger
}

func NewServer(port int, apiToken string, svc Interviews, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		svc:    svc,
		logger: logger,
	}

	if apiToken == "" {
		logger.Warn("API token not set, caller identity in " + UserIDHeader + " is trusted without authentication")
	}

	router.Get("/health", s.health)

	router.Route("/api/ai", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Use(CallerMiddleware)
		r.Post("/session/create", s.createSession)
		r.Post("/message/send", s.sendMessage)
		r.Get("/conversation/{sessionId}", s.history)
		r.Post("/conversation/{sessionId}/stream", s.streamConversation)
		r.Post("/conversation/{sessionId}/save", s.saveConversation)
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto status codes. Internal detail is
// logged, not returned.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, interview.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, interview.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, interview.ErrNotFound):
		status = http.StatusNotFound
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
