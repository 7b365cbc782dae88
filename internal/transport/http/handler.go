package http

import (
	"log/slog"
	"net/http"

	"grc-core/internal/dto"
	"grc-core/internal/httpx"
	"grc-core/internal/netutil"
	"grc-core/internal/service"
)

type Handler struct {
	auth     service.AuthService
	policies service.PolicyService
	proxies  netutil.TrustedProxies
	log      *slog.Logger
}

func (h *Handler) clientMeta(r *http.Request) (ip, ua string) {
	return h.proxies.ClientIP(r), netutil.TruncateUserAgent(r.UserAgent())
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	ip, ua := h.clientMeta(r)
	res, err := h.auth.Login(r.Context(), req, ip, ua)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyOTPRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	ip, ua := h.clientMeta(r)
	res, err := h.auth.VerifyOTP(r.Context(), req, ip, ua)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) resendOTP(w http.ResponseWriter, r *http.Request) {
	var req dto.ResendOTPRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	ip, ua := h.clientMeta(r)
	if err := h.auth.ResendOTP(r.Context(), req, ip, ua); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.StatusResponse{Status: "ok", Message: "a new code was sent"})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	ip, ua := h.clientMeta(r)
	res, err := h.auth.Refresh(r.Context(), req, ip, ua)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	ip, ua := h.clientMeta(r)
	if err := h.auth.ForgotPassword(r.Context(), req, ip, ua); err != nil {
		// The caller learns nothing about the account either way.
		h.log.Error("forgot password failed", "error", err)
	}
	httpx.WriteJSON(w, http.StatusOK, dto.StatusResponse{
		Status:  "ok",
		Message: "if the account exists, a reset code was sent",
	})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	ip, ua := h.clientMeta(r)
	if err := h.auth.ResetPassword(r.Context(), req, ip, ua); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.StatusResponse{Status: "ok", Message: "password updated"})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	ip, ua := h.clientMeta(r)
	if err := h.auth.Logout(r.Context(), mustPrincipal(r), ip, ua); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.StatusResponse{Status: "ok", Message: "logged out"})
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	httpx.WriteJSON(w, http.StatusOK, dto.ValidateResponse{User: dto.NewUserView(p.User)})
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ChangePasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	ip, ua := h.clientMeta(r)
	if err := h.auth.ChangePassword(r.Context(), mustPrincipal(r), req, ip, ua); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.StatusResponse{Status: "ok", Message: "password updated"})
}

func (h *Handler) passwordStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.auth.PasswordStatus(r.Context(), mustPrincipal(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}
