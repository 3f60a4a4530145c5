package photos

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lumiprint/backend/internal/models"
)

// TokenValidator resolves a bearer token to an account.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, error)
}

type RunResponse struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Total       int             `json:"total"`
	Processed   int             `json:"processed"`
	LastBalance *int            `json:"last_balance,omitempty"`
	Results     json.RawMessage `json:"results,omitempty"`
	Failures    json.RawMessage `json:"failures,omitempty"`
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

// SubmitRun accepts a batch of jobs and returns the queued run.
func (h *Handler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	accountID, ok := h.accountIDFromRequest(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
		return
	}
	jobs, err := ValidateSubmission(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	run, err := h.svc.SubmitRun(r.Context(), accountID, jobs)
	if err != nil {
		h.log.Error("submit run failed", "error", err)
		http.Error(w, "submit failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(runToResponse(run))
}

// GetRun returns one run. The run id comes from the path, /runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	accountID, ok := h.accountIDFromRequest(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	idStr := strings.TrimPrefix(r.URL.Path, "/runs/")
	runID, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}
	run, err := h.svc.GetRun(r.Context(), accountID, runID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		h.log.Error("get run failed", "error", err)
		http.Error(w, "get run failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(runToResponse(run))
}

// ListRuns returns the account's runs, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	accountID, ok := h.accountIDFromRequest(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.svc.ListRuns(r.Context(), accountID)
	if err != nil {
		h.log.Error("list runs failed", "error", err)
		http.Error(w, "list runs failed", http.StatusInternalServerError)
		return
	}
	resp := make([]RunResponse, 0, len(list))
	for _, run := range list {
		resp = append(resp, runToResponse(run))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) accountIDFromRequest(r *http.Request) (uuid.UUID, bool) {
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return uuid.Nil, false
	}
	token := strings.TrimSpace(authz[len(prefix):])
	if token == "" {
		return uuid.Nil, false
	}
	id, err := h.authSvc.ValidateToken(r.Context(), token)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func runToResponse(run *models.ProcessingRun) RunResponse {
	return RunResponse{
		ID:          run.ID.String(),
		Status:      run.Status,
		Total:       run.Total,
		Processed:   run.Processed,
		LastBalance: run.LastBalance,
		Results:     run.Results,
		Failures:    run.Failures,
	}
}
