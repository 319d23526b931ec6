package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"namecard/internal/app"
	"namecard/internal/usertoken"
	"namecard/pkg/domain"
	"namecard/pkg/store"
)

// owner console

func (s *Server) handleOwnerCard(w http.ResponseWriter, r *http.Request, identity usertoken.Identity) {
	switch r.Method {
	case http.MethodGet:
		card, err := s.app.GetOwnerCard(r.Context(), identity.Email)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, card)
	case http.MethodPut:
		var content domain.CardContent
		if err := decodeJSON(r, &content); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		card, err := s.app.UpdateCard(r.Context(), identity.Email, content)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "card.update", "success", "card_id", card.ID)
		writeJSON(w, http.StatusOK, card)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleOwnerLedger(w http.ResponseWriter, r *http.Request, identity usertoken.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	kind := store.LedgerKind(strings.TrimSpace(r.URL.Query().Get("type")))
	entries, balance, err := s.app.Ledger(r.Context(), identity.Email, kind, limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "balance": balance})
}

func (s *Server) handleOwnerImage(w http.ResponseWriter, r *http.Request, identity usertoken.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	// Multipart framing needs some room beyond the image itself.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxImageBytes+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()
	url, err := s.app.UploadProfileImage(r.Context(), identity.Email, file, header.Size)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "card.image_upload", "success", "email", identity.Email, "bytes", header.Size)
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// super-admin console

func (s *Server) handleMasterCards(w http.ResponseWriter, r *http.Request, _ usertoken.Identity) {
	switch r.Method {
	case http.MethodGet:
		cards, err := s.app.ListCards(r.Context())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cards": cards})
	case http.MethodPost:
		var in app.CreateCardInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		card, err := s.app.CreateCard(r.Context(), in)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "card.create", "success", "card_id", card.ID, "owner", card.OwnerEmail)
		writeJSON(w, http.StatusCreated, card)
	default:
		methodNotAllowed(w)
	}
}

// handleMasterCardByID serves /api/master/cards/{id}/credits and /ai.
func (s *Server) handleMasterCardByID(w http.ResponseWriter, r *http.Request, _ usertoken.Identity) {
	parts := pathParts(r.URL.Path, "/api/master/cards/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id := parts[0]
	switch parts[1] {
	case "credits":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var req struct {
			Amount int64  `json:"amount"`
			Reason string `json:"reason"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		entry, balance, err := s.app.AdjustCredits(r.Context(), id, req.Amount, req.Reason)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "credits.adjust", "success", "card_id", id, "amount", req.Amount)
		writeJSON(w, http.StatusOK, map[string]any{"entry": entry, "balance": balance})
	case "ai":
		if r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if err := s.app.SetCardAI(r.Context(), id, req.Enabled); err != nil {
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "card.ai_toggle", "success", "card_id", id, "enabled", req.Enabled)
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "enable_ai": req.Enabled})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleMasterEvent(w http.ResponseWriter, r *http.Request, _ usertoken.Identity) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.app.GetEventConfig(r.Context())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	case http.MethodPut:
		var in app.EventConfigInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		cfg, err := s.app.SaveEventConfig(r.Context(), in)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "event.config", "success", "active", cfg.IsActive)
		writeJSON(w, http.StatusOK, cfg)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleMasterClaims(w http.ResponseWriter, r *http.Request, _ usertoken.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	claims, err := s.app.ListClaims(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"claims": claims})
}

// handleMasterClaimByID serves GET /api/master/claims/{id} and POST
// /api/master/claims/{id}/approve or /reject.
func (s *Server) handleMasterClaimByID(w http.ResponseWriter, r *http.Request, _ usertoken.Identity) {
	parts := pathParts(r.URL.Path, "/api/master/claims/")
	switch len(parts) {
	case 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		claim, err := s.app.GetClaim(r.Context(), parts[0])
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, claim)
		return
	case 2:
	default:
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id := parts[0]
	switch parts[1] {
	case "approve":
		claim, balance, err := s.app.ApproveClaim(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "claim.approve", "success", "claim_id", id, "card_id", claim.UserID, "amount", claim.Amount)
		writeJSON(w, http.StatusOK, map[string]any{"claim": claim, "balance": balance})
	case "reject":
		claim, err := s.app.RejectClaim(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "claim.reject", "success", "claim_id", id, "card_id", claim.UserID)
		writeJSON(w, http.StatusOK, map[string]any{"claim": claim})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}
