package http

import (
	"errors"
	"log/slog"
	"net/http"

	"grc-core/internal/domain"
	"grc-core/internal/httpx"
	"grc-core/internal/observability/middleware"
)

// errorKinds is checked in order; the first match decides the response.
// An empty message means the error text itself is safe to return.
var errorKinds = []struct {
	err    error
	status int
	code   string
	msg    string
}{
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input", ""},
	{domain.ErrPasswordPolicy, http.StatusBadRequest, "password_policy", ""},
	{domain.ErrMaxAttemptsExceeded, http.StatusTooManyRequests, "max_attempts_exceeded", "too many attempts, request a new code"},
	{domain.ErrAccountLocked, http.StatusTooManyRequests, "account_locked", "too many failed attempts, try again later"},
	{domain.ErrChallengeActive, http.StatusTooManyRequests, "challenge_active", "a code was already sent, check your email"},
	{domain.ErrAuthenticationFailed, http.StatusUnauthorized, "authentication_failed", "invalid credentials"},
	{domain.ErrMfaChallengeInvalid, http.StatusUnauthorized, "mfa_challenge_invalid", "code is invalid or expired"},
	{domain.ErrTokenInvalid, http.StatusUnauthorized, "token_invalid", "token invalid"},
	{domain.ErrTenantRequired, http.StatusForbidden, "tenant_required", "tenant required"},
	{domain.ErrTenantMismatch, http.StatusForbidden, "tenant_mismatch", "tenant mismatch"},
	{domain.ErrPasswordReused, http.StatusUnprocessableEntity, "password_reused", ""},
	{domain.ErrUserNotFound, http.StatusNotFound, "user_not_found", "user not found"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found", "not found"},
	{domain.ErrMfaDisabled, http.StatusNotFound, "mfa_disabled", "mfa is disabled"},
}

// writeError maps an error kind to its status and JSON body. Anything
// unclassified is logged and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	for _, k := range errorKinds {
		if !errors.Is(err, k.err) {
			continue
		}
		body := httpx.ErrorBody{Error: k.code, Message: k.msg}
		if body.Message == "" {
			body.Message = err.Error()
		}
		var mm *domain.OTPMismatchError
		if errors.As(err, &mm) {
			remaining := mm.Remaining
			body.RemainingAttempts = &remaining
		}
		if k.status == http.StatusForbidden || k.status == http.StatusUnauthorized {
			log.Info("request rejected",
				"request_id", middleware.RequestIDFromContext(r.Context()),
				"status", k.status,
				"error", err,
			)
		}
		httpx.WriteJSON(w, k.status, body)
		return
	}

	log.Error("request failed",
		"request_id", middleware.RequestIDFromContext(r.Context()),
		"trace_id", middleware.TraceIDFromContext(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

func badRequest(w http.ResponseWriter, err error) {
	httpx.WriteError(w, http.StatusBadRequest, "invalid_input", err.Error())
}
