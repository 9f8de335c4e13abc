package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"incentive-ledger-go/internal/models"

	"github.com/go-chi/chi/v5"
)

type registerUserRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	InviteCode string `json:"invite_code,omitempty"`
}

type registerUserResponse struct {
	User   *models.User       `json:"user"`
	Invite *models.InviteEdge `json:"invite,omitempty"`
}

func (h *ApiHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, edge, err := h.Ledger.RegisterUser(r.Context(), req.Name, req.Email, req.InviteCode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerUserResponse{User: user, Invite: edge})
}

func (h *ApiHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.Ledger.GetBalance(r.Context(), chi.URLParam(r, "userId"))
	respond(w, r, http.StatusOK, balance, err)
}

// GetTransactionHistory accepts page, page_size, kind, since and until (RFC 3339) query parameters
func (h *ApiHandler) GetTransactionHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, err := intParam(query.Get("page"), 1)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	pageSize, err := intParam(query.Get("page_size"), 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var filter models.HistoryFilter
	if kind := strings.TrimSpace(query.Get("kind")); kind != "" {
		filter.Kind = models.EntryKind(kind)
		if !filter.Kind.Valid() {
			http.Error(w, fmt.Sprintf("unknown entry kind %q", kind), http.StatusBadRequest)
			return
		}
	}
	if filter.Since, err = timeParam(query.Get("since")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if filter.Until, err = timeParam(query.Get("until")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	history, err := h.Ledger.GetTransactionHistory(r.Context(), chi.URLParam(r, "userId"), page, pageSize, filter)
	respond(w, r, http.StatusOK, history, err)
}

func (h *ApiHandler) ReconcileAccount(w http.ResponseWriter, r *http.Request) {
	userId := chi.URLParam(r, "userId")
	if err := h.Ledger.ReconcileAccount(r.Context(), userId); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": userId, "status": "consistent"})
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return v, nil
}

func timeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q, want RFC 3339", raw)
	}
	return t.UTC(), nil
}
