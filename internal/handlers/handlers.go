package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"incentive-ledger-go/internal/api"
	"incentive-ledger-go/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ApiHandler adapts the ledger workflows to JSON over HTTP.
// User identity is taken from the path; authentication happens upstream.
type ApiHandler struct {
	Ledger *api.LedgerService
}

func NewApiHandler(ledger *api.LedgerService) *ApiHandler {
	return &ApiHandler{Ledger: ledger}
}

// Routes builds the chi router with logging, metrics and panic recovery
func (h *ApiHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(Metrics)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/users", h.RegisterUser)
	r.Route("/users/{userId}", func(r chi.Router) {
		r.Get("/balance", h.GetBalance)
		r.Get("/transactions", h.GetTransactionHistory)

		r.Post("/orders", h.CreateOrder)
		r.Post("/orders/{orderId}/start", h.StartOrder)
		r.Post("/orders/{orderId}/complete", h.CompleteOrder)
		r.Post("/orders/{orderId}/cancel", h.CancelOrder)

		r.Post("/withdraws", h.CreateWithdraw)
		r.Post("/withdraws/{withdrawId}/cancel", h.CancelWithdraw)

		r.Post("/recharges", h.CreateRecharge)
		r.Post("/recharges/{rechargeId}/confirm", h.ConfirmRecharge)

		r.Post("/invites", h.RegisterInvite)
		r.Get("/invites/stats", h.GetInviteStats)

		r.Get("/vip", h.GetVipStatus)
		r.Post("/vip", h.UpgradeVip)
	})

	r.Get("/orders/{orderId}", h.GetOrder)
	r.Get("/withdraws/{withdrawId}", h.GetWithdraw)
	r.Get("/recharges/{rechargeId}", h.GetRecharge)
	r.Get("/invites/{edgeId}", h.GetInviteEdge)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/withdraws", h.ListWithdraws)
		r.Post("/withdraws/{withdrawId}/approve", h.ApproveWithdraw)
		r.Post("/withdraws/{withdrawId}/reject", h.RejectWithdraw)
		r.Post("/recharges/{rechargeId}/approve", h.ApproveRecharge)
		r.Post("/recharges/{rechargeId}/reject", h.RejectRecharge)
		r.Post("/invites/{edgeId}/validate", h.ValidateInvite)
		r.Post("/users/{userId}/reconcile", h.ReconcileAccount)
	})

	return r
}

func (h *ApiHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.HealthCheck(r.Context()); err != nil {
		zap.L().Error("Health check failed", zap.Error(err))
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeBody rejects unknown fields so a typo in an amount key is not read as zero
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("Failed to write response", zap.Error(err))
	}
}

// respond writes the record of a workflow call. A retried transition that
// already happened answers 200 with the stored record.
func respond(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil {
		if errors.Is(err, store.ErrAlreadyProcessed) && v != nil {
			writeJSON(w, http.StatusOK, v)
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("Request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		http.Error(w, "Internal server error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrExpired):
		return http.StatusGone
	case errors.Is(err, store.ErrLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, store.ErrInvalidAmount),
		errors.Is(err, store.ErrInvalidTarget),
		errors.Is(err, store.ErrInvalidInviteCode),
		errors.Is(err, store.ErrSelfInvite):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrInvalidState),
		errors.Is(err, store.ErrAlreadyProcessed),
		errors.Is(err, store.ErrAlreadyInvited),
		errors.Is(err, store.ErrUserExists),
		errors.Is(err, store.ErrDuplicateEntry),
		errors.Is(err, store.ErrConcurrentModification):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// nilIfEmpty turns a typed nil record into an untyped nil so respond can tell
// a retried transition with a stored record from a plain failure
func nilIfEmpty[T any](v *T) any {
	if v == nil {
		return nil
	}
	return v
}
