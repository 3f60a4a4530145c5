package router

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/rs/cors"

	"github.com/lumiprint/backend/internal/auth"
	"github.com/lumiprint/backend/internal/codes"
	"github.com/lumiprint/backend/internal/dashboard"
	"github.com/lumiprint/backend/internal/middleware"
	"github.com/lumiprint/backend/internal/photos"
)

// New returns an http.Handler serving the API under /api/v1.
func New(
	authHandler *auth.Handler,
	codesHandler *codes.Handler,
	photosHandler *photos.Handler,
	dashHandler *dashboard.Handler,
	log *slog.Logger,
) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.HandleFunc(base+"/auth/register", authHandler.Register)
	mux.HandleFunc(base+"/auth/login", authHandler.Login)

	mux.HandleFunc(base+"/codes/verify-email", methodPOST(codesHandler.RedeemVerification))
	mux.HandleFunc(base+"/codes/password-reset", methodPOST(codesHandler.RequestPasswordReset))
	mux.HandleFunc(base+"/codes/password-reset/confirm", methodPOST(codesHandler.ResetPassword))
	mux.HandleFunc(base+"/codes/promo", methodPOST(codesHandler.RedeemPromo))

	mux.HandleFunc(base+"/runs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			photosHandler.SubmitRun(w, r)
		case http.MethodGet:
			photosHandler.ListRuns(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc(base+"/runs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && strings.Count(r.URL.Path, "/") >= 4 {
			stripAPIPrefix(photosHandler.GetRun).ServeHTTP(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc(base+"/account/me", methodGET(dashHandler.GetMe))
	mux.HandleFunc(base+"/credit-ledger", methodGET(dashHandler.ListCreditLedger))

	handler := middleware.RequestLog(log)(mux)
	handler = middleware.Recover(log)(handler)
	return cors.AllowAll().Handler(handler)
}

// stripAPIPrefix removes /api/v1 so handlers can parse resource ids from
// stable paths.
func stripAPIPrefix(h http.HandlerFunc) http.Handler {
	return http.StripPrefix("/api/v1", h)
}

func methodGET(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func methodPOST(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}
