package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"namecard/internal/app"
	"namecard/internal/ratelimit"
	"namecard/internal/usertoken"
	"namecard/internal/util"
	"namecard/pkg/store"
)

const maxJSONBody = 1 << 20

// IdentityVerifier checks caller ID tokens.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (usertoken.Identity, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	TokenVerifier  IdentityVerifier
	Redis          *redis.Client
	TrustedProxies *util.TrustedProxies
	AllowedOrigins []string
	// UploadDir is served under /uploads/ when profile images live on local disk.
	UploadDir string

	ChatRateLimitPerMinute      int
	AIRateLimitPerMinute        int
	GuestbookRateLimitPerMinute int
	MaxImageBytes               int64
}

// Server exposes HTTP endpoints for the card backend.
type Server struct {
	app            *app.App
	tokenVerifier  IdentityVerifier
	trustedProxies *util.TrustedProxies
	allowedOrigins []string
	mux            *http.ServeMux
	maxImageBytes  int64

	chatLimiter      *ratelimit.FixedWindowLimiter
	aiLimiter        *ratelimit.FixedWindowLimiter
	guestbookLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires app")
	}
	if cfg.TokenVerifier == nil {
		return nil, errors.New("server requires token verifier")
	}
	chatLimit := cfg.ChatRateLimitPerMinute
	if chatLimit <= 0 {
		chatLimit = 20
	}
	aiLimit := cfg.AIRateLimitPerMinute
	if aiLimit <= 0 {
		aiLimit = 5
	}
	guestbookLimit := cfg.GuestbookRateLimitPerMinute
	if guestbookLimit <= 0 {
		guestbookLimit = 5
	}
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		limiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, "namecard:ratelimit", name, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	chatLimiter, err := newLimiter("chat", chatLimit)
	if err != nil {
		return nil, err
	}
	aiLimiter, err := newLimiter("ai", aiLimit)
	if err != nil {
		return nil, err
	}
	guestbookLimiter, err := newLimiter("guestbook", guestbookLimit)
	if err != nil {
		return nil, err
	}
	maxImageBytes := cfg.MaxImageBytes
	if maxImageBytes <= 0 {
		maxImageBytes = 5 << 20
	}
	s := &Server{
		app:              cfg.App,
		tokenVerifier:    cfg.TokenVerifier,
		trustedProxies:   cfg.TrustedProxies,
		allowedOrigins:   cfg.AllowedOrigins,
		mux:              http.NewServeMux(),
		maxImageBytes:    maxImageBytes,
		chatLimiter:      chatLimiter,
		aiLimiter:        aiLimiter,
		guestbookLimiter: guestbookLimiter,
	}
	s.routes(strings.TrimSpace(cfg.UploadDir))
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithCORS(s.allowedOrigins)(h)
	h = util.WithSecurityHeaders(h)
	h = util.WithRequestLog("namecard", h)
	return util.WithRequestID(h)
}

func (s *Server) routes(uploadDir string) {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// visitors
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/api/cards/", s.handleCardByID)
	s.mux.HandleFunc("/api/quiz/grade", s.handleQuizGrade)
	s.mux.HandleFunc("/api/guestbook/", s.handleGuestbookEntry)

	// card owner
	s.mux.Handle("/api/admin/card", s.authenticated(s.handleOwnerCard))
	s.mux.Handle("/api/admin/card/image", s.authenticated(s.handleOwnerImage))
	s.mux.Handle("/api/admin/ledger", s.authenticated(s.handleOwnerLedger))

	// super-admin
	s.mux.Handle("/api/master/cards", s.superAdminOnly(s.handleMasterCards))
	s.mux.Handle("/api/master/cards/", s.superAdminOnly(s.handleMasterCardByID))
	s.mux.Handle("/api/master/event", s.superAdminOnly(s.handleMasterEvent))
	s.mux.Handle("/api/master/claims", s.superAdminOnly(s.handleMasterClaims))
	s.mux.Handle("/api/master/claims/", s.superAdminOnly(s.handleMasterClaimByID))

	if uploadDir != "" {
		s.mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(uploadDir))))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ai": s.app.AIEnabled()})
}

// auth wrappers
type identityHandler func(http.ResponseWriter, *http.Request, usertoken.Identity)

func (s *Server) authenticated(next identityHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, identity)
	})
}

func (s *Server) superAdminOnly(next identityHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !s.app.IsSuperAdmin(identity.Email) {
			s.audit(r, "master.authorize", "fail", "email", identity.Email, "reason", "forbidden")
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		s.audit(r, "master.authorize", "success", "email", identity.Email)
		next(w, r, identity)
	})
}

func (s *Server) authorize(r *http.Request) (usertoken.Identity, bool) {
	token, ok := bearerToken(r)
	if !ok {
		s.audit(r, "token.verify", "fail", "reason", "missing_token")
		return usertoken.Identity{}, false
	}
	identity, err := s.tokenVerifier.Verify(r.Context(), token)
	if err != nil {
		reason := "invalid_signature_or_claims"
		switch {
		case errors.Is(err, usertoken.ErrEmailMissing):
			reason = "email_missing"
		case errors.Is(err, usertoken.ErrEmailUnverified):
			reason = "email_unverified"
		}
		s.audit(r, "token.verify", "fail", "reason", reason)
		return usertoken.Identity{}, false
	}
	return identity, true
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

// allowRate applies limiter to the caller IP. Limiter failures reject the
// request.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	ip := util.ClientIP(r, s.trustedProxies)
	decision, err := limiter.Allow(r.Context(), ip)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("rate limiter unavailable", "limiter", limiter.Name(), "err", err)
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
		return false
	}
	if decision.Allowed {
		return true
	}
	retry := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	s.audit(r, "ratelimit."+limiter.Name(), "rate_limited")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	return dec.Decode(dst)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps domain errors to HTTP responses.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := appErrorStatus(err)
	if status >= http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeError(w, status, msg)
}

func appErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrInvalidMode), errors.Is(err, store.ErrInvalidAmount):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrInsufficientBalance):
		return http.StatusPaymentRequired, app.LimitReachedMessage
	case errors.Is(err, app.ErrForbidden), errors.Is(err, app.ErrAIDisabled):
		return http.StatusForbidden, rootMessage(err)
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, store.ErrCardExists):
		return http.StatusConflict, store.ErrCardExists.Error()
	case errors.Is(err, store.ErrClaimNotPending):
		return http.StatusConflict, store.ErrClaimNotPending.Error()
	case errors.Is(err, app.ErrMalformedModelOutput):
		return http.StatusBadGateway, "please try again"
	case errors.Is(err, app.ErrUpstream):
		return http.StatusBadGateway, app.ErrUpstream.Error()
	case errors.Is(err, app.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, app.ErrServiceUnavailable.Error()
	case errors.Is(err, app.ErrUploadsUnavailable):
		return http.StatusServiceUnavailable, app.ErrUploadsUnavailable.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// rootMessage drops the "get card: " style prefixes added while wrapping.
func rootMessage(err error) string {
	for _, sentinel := range []error{app.ErrForbidden, app.ErrAIDisabled} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func pathParts(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}
