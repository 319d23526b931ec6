package server

import (
	"errors"
	"net/http"

	"namecard/internal/app"
	"namecard/pkg/store"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.chatLimiter, "too many messages, slow down") {
		return
	}
	var req app.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	reply, err := s.app.Chat(r.Context(), req)
	if err != nil {
		// The chat UI renders reply text, so gateway failures stay in that shape.
		switch {
		case errors.Is(err, app.ErrServiceUnavailable):
			writeJSON(w, http.StatusServiceUnavailable, app.ChatReply{Reply: app.ErrServiceUnavailable.Error()})
		case errors.Is(err, app.ErrUpstream):
			s.audit(r, "ai.upstream", "fail", "username", req.Username)
			writeJSON(w, http.StatusOK, app.ChatReply{Reply: app.ErrUpstream.Error()})
		case errors.Is(err, store.ErrInsufficientBalance):
			writeJSON(w, http.StatusPaymentRequired, app.ChatReply{Reply: app.LimitReachedMessage})
		default:
			writeAppError(w, r, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleCardByID serves /api/cards/{id} and its AI and guestbook subroutes.
func (s *Server) handleCardByID(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/cards/")
	if len(parts) == 0 || len(parts) > 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		card, err := s.app.GetPublicCard(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, card)
		return
	}
	switch parts[1] {
	case "quiz":
		s.handleQuiz(w, r, id)
	case "synergy":
		s.handleSynergy(w, r, id)
	case "translate":
		s.handleTranslate(w, r, id)
	case "guestbook":
		s.handleGuestbook(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.aiLimiter, "too many requests") {
		return
	}
	quiz, err := s.app.Quiz(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (s *Server) handleSynergy(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.aiLimiter, "too many requests") {
		return
	}
	var visitor app.Visitor
	if err := decodeJSON(r, &visitor); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	result, err := s.app.Synergy(r.Context(), id, visitor)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.aiLimiter, "too many requests") {
		return
	}
	var req struct {
		TargetLang string `json:"targetLang"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	card, err := s.app.Translate(r.Context(), id, req.TargetLang)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleQuizGrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Answers []int `json:"answers"`
		Key     []int `json:"key"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	grade, err := app.GradeQuiz(req.Answers, req.Key)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grade)
}

func (s *Server) handleGuestbook(w http.ResponseWriter, r *http.Request, cardID string) {
	switch r.Method {
	case http.MethodGet:
		entries, err := s.app.ListGuestbook(r.Context(), cardID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
	case http.MethodPost:
		if !s.allowRate(w, r, s.guestbookLimiter, "too many guestbook posts") {
			return
		}
		var in app.GuestbookInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		entry, err := s.app.AddGuestbookEntry(r.Context(), cardID, in)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleGuestbookEntry(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/guestbook/")
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.app.DeleteGuestbookEntry(r.Context(), parts[0], req.Password); err != nil {
		if errors.Is(err, app.ErrForbidden) {
			s.audit(r, "guestbook.delete", "fail", "entry_id", parts[0], "reason", "wrong_password")
		}
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
