package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/staynest/gatekeep"
	"github.com/staynest/gatekeep/metrics/export/prometheus"
	"github.com/staynest/gatekeep/middleware"
	"github.com/staynest/gatekeep/ratelimit"
)

type server struct {
	engine         *gatekeep.Engine
	accounts       *accountStore
	logger         *slog.Logger
	trustForwarded bool
	resetTTL       time.Duration
	health         func(*http.Request) error
}

func (s *server) routes() http.Handler {
	byIP := middleware.ClientIP(s.trustForwarded)
	admit := func(op string) func(http.Handler) http.Handler {
		return middleware.Admission(s.engine, op, byIP)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /v1/check-email", admit(gatekeep.OperationCheckEmail)(http.HandlerFunc(s.checkEmail)))
	mux.Handle("POST /v1/accounts", admit(gatekeep.OperationSignup)(http.HandlerFunc(s.createAccount)))
	mux.HandleFunc("POST /v1/login", s.login)
	mux.Handle("POST /v1/password", middleware.Guard(s.engine)(http.HandlerFunc(s.changePassword)))
	mux.Handle("POST /v1/password/reset-token", admit(gatekeep.OperationPasswordReset)(http.HandlerFunc(s.requestReset)))
	mux.Handle("POST /v1/password/reset", admit(gatekeep.OperationPasswordReset)(http.HandlerFunc(s.confirmReset)))
	mux.Handle("DELETE /v1/admin/rate-limits/{operation}/{key}",
		middleware.RequireRole(s.engine, "admin")(http.HandlerFunc(s.resetRateLimit)))
	mux.Handle("GET /metrics", prometheus.NewExporter(s.engine).Handler())
	mux.HandleFunc("GET /healthz", s.healthz)
	return mux
}

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *server) checkEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Email == "" {
		http.Error(w, "email required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": !s.accounts.Exists(body.Email)})
}

func (s *server) createAccount(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if !decode(w, r, &body) {
		return
	}
	if body.Email == "" {
		http.Error(w, "email required", http.StatusBadRequest)
		return
	}

	rec, err := s.engine.DeriveSecret(body.Password)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	userID, err := s.accounts.Create(body.Email, rec)
	if errors.Is(err, errAccountExists) {
		http.Error(w, "account exists", http.StatusConflict)
		return
	}
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"user_id": userID})
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if !decode(w, r, &body) {
		return
	}

	_, r = middleware.ClientIP(s.trustForwarded)(r)
	res, err := s.engine.Authenticate(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":      res.UserID,
		"session_id":   res.SessionID,
		"access_token": res.AccessToken,
		"expires_at":   res.ExpiresAt,
	})
}

func (s *server) changePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var body struct {
		Current string `json:"current_password"`
		Next    string `json:"new_password"`
	}
	if !decode(w, r, &body) {
		return
	}

	identifier, ok := s.accounts.IdentifierFor(claims.UID)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := s.engine.ChangeSecret(r.Context(), identifier, body.Current, body.Next); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) requestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &body) {
		return
	}

	token, err := s.engine.GenerateToken(0)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.accounts.GrantReset(body.Email, token, s.resetTTL)

	// Delivery is out of band; the response is identical for unknown emails.
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) confirmReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"new_password"`
	}
	if !decode(w, r, &body) {
		return
	}

	rec, err := s.engine.DeriveSecret(body.Password)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	userID, err := s.accounts.ConsumeReset(body.Token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusBadRequest)
		return
	}
	if err := s.accounts.UpdateCredential(r.Context(), userID, rec); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) resetRateLimit(w http.ResponseWriter, r *http.Request) {
	op, key := r.PathValue("operation"), r.PathValue("key")
	if err := s.engine.ResetAdmission(r.Context(), op, key); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "admission counter reset", slog.String("operation", op))
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r); err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (s *server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var exceeded *ratelimit.ExceededError

	switch {
	case errors.As(err, &exceeded):
		w.Header().Set("Retry-After", strconv.Itoa(exceeded.RetryAfterSeconds()))
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	case errors.Is(err, gatekeep.ErrInvalidCredentials):
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	case errors.Is(err, gatekeep.ErrSecretPolicy), errors.Is(err, gatekeep.ErrSecretReuse):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, gatekeep.ErrUnknownOperation):
		http.Error(w, "unknown operation", http.StatusNotFound)
	case errors.Is(err, gatekeep.ErrStoreUnavailable):
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	default:
		s.logger.ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
