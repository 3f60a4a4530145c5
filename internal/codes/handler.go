package codes

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// TokenValidator resolves a bearer token to an account.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, error)
}

type Handler struct {
	svc     *Service
	authSvc TokenValidator
	log     *slog.Logger
}

func NewHandler(svc *Service, authSvc TokenValidator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, authSvc: authSvc, log: log}
}

type redeemVerificationRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type requestResetRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type redeemPromoRequest struct {
	Code string `json:"code"`
}

type redeemPromoResponse struct {
	CreditsGranted int `json:"credits_granted"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// RedeemVerification handles POST /codes/verify-email.
func (h *Handler) RedeemVerification(w http.ResponseWriter, r *http.Request) {
	var req redeemVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Code == "" {
		http.Error(w, "missing email or code", http.StatusBadRequest)
		return
	}
	if err := h.svc.RedeemVerification(r.Context(), req.Code, req.Email); err != nil {
		h.writeRedeemError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "email verified"})
}

// RequestPasswordReset handles POST /codes/password-reset.
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req requestResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Email == "" {
		http.Error(w, "missing email", http.StatusBadRequest)
		return
	}
	if _, err := h.svc.IssuePasswordReset(r.Context(), req.Email); err != nil {
		// Do not leak whether the email exists.
		h.log.Warn("password reset request failed", "error", err)
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "if the address is registered, a code was sent"})
}

// ResetPassword handles POST /codes/password-reset/confirm.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Code == "" || req.NewPassword == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Code, req.Email, req.NewPassword); err != nil {
		if errors.Is(err, ErrInvalidCode) || errors.Is(err, ErrExpiredCode) {
			h.writeRedeemError(w, err)
			return
		}
		h.log.Error("password reset failed", "error", err)
		http.Error(w, "password reset failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "password reset"})
}

// RedeemPromo handles POST /codes/promo for the authenticated account.
func (h *Handler) RedeemPromo(w http.ResponseWriter, r *http.Request) {
	accountID, err := h.accountIDFromRequest(r)
	if err != nil || accountID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req redeemPromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	granted, err := h.svc.RedeemPromo(r.Context(), req.Code, accountID)
	if err != nil {
		h.writeRedeemError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redeemPromoResponse{CreditsGranted: granted})
}

func (h *Handler) writeRedeemError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCode):
		http.Error(w, "invalid code", http.StatusBadRequest)
	case errors.Is(err, ErrExpiredCode):
		http.Error(w, "expired code", http.StatusBadRequest)
	default:
		h.log.Error("code redemption failed", "error", err)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}
}

func (h *Handler) accountIDFromRequest(r *http.Request) (uuid.UUID, error) {
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return uuid.Nil, nil
	}
	token := strings.TrimSpace(authz[len(prefix):])
	if token == "" {
		return uuid.Nil, nil
	}
	return h.authSvc.ValidateToken(r.Context(), token)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
