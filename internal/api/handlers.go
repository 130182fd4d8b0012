package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/interviewer/internal/conversation"
	"github.com/MikeSquared-Agency/interviewer/internal/interview"
)

type createSessionRequest struct {
	InterviewID int64 `json:"interviewId"`
	RoundID     int64 `json:"roundId"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type sendMessageRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type sendMessageResponse struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
}

type streamRequest struct {
	Message string `json:"message"`
}

type saveRequest struct {
	Status         *string                `json:"status,omitempty"`
	Result         *string                `json:"result,omitempty"`
	Notes          *string                `json:"notes,omitempty"`
	Conversations  []conversation.Message `json:"conversations,omitempty"`
	RequestSummary bool                   `json:"requestSummary"`
}

type saveResponse struct {
	InterviewID int64   `json:"interviewId"`
	RoundID     int64   `json:"roundId"`
	Status      string  `json:"status"`
	Result      string  `json:"result,omitempty"`
	Summary     *string `json:"summary,omitempty"`
}

// MaxBodyBytes bounds a request body. A saved transcript is the largest
// body a caller sends.
const MaxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body exceeds %d bytes", interview.ErrInvalidRequest, tooLarge.Limit)
		}
		return fmt.Errorf("%w: invalid JSON: %v", interview.ErrInvalidRequest, err)
	}
	return nil
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.InterviewID <= 0 || req.RoundID <= 0 {
		s.writeError(w, r, fmt.Errorf("%w: interviewId and roundId are required", interview.ErrInvalidRequest))
		return
	}

	sessionID, err := s.svc.CreateSession(r.Context(), userID(r.Context()), req.InterviewID, req.RoundID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: sessionID})
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	reply, err := s.svc.SendMessage(r.Context(), userID(r.Context()), req.SessionID, req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sendMessageResponse{SessionID: req.SessionID, Content: reply})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	history, err := s.svc.History(r.Context(), userID(r.Context()), chi.URLParam(r, "sessionId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if history == nil {
		history = []conversation.Message{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) saveConversation(w http.ResponseWriter, r *http.Request) {
	var body saveRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	req := interview.SaveRequest{
		Notes:          body.Notes,
		Conversations:  body.Conversations,
		RequestSummary: body.RequestSummary,
	}
	if body.Status != nil {
		st := interview.Status(*body.Status)
		req.Status = &st
	}
	if body.Result != nil {
		res := interview.Result(*body.Result)
		req.Result = &res
	}

	sessionID := chi.URLParam(r, "sessionId")
	out, err := s.svc.Save(r.Context(), userID(r.Context()), sessionID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := saveResponse{
		InterviewID: out.InterviewID,
		RoundID:     out.RoundID,
		Status:      string(out.Status),
		Result:      string(out.Result),
	}
	if text, ok := out.SummaryText(); ok {
		resp.Summary = &text
	} else if out.Summary != nil {
		s.logger.Info("save completed without summary", "session_id", sessionID,
			"request_id", middleware.GetReqID(r.Context()), "error", out.Summary.Err)
	}
	writeJSON(w, http.StatusOK, resp)
}
