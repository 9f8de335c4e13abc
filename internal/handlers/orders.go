package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type createOrderRequest struct {
	Id         string          `json:"id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Commission decimal.Decimal `json:"commission"`
}

func (h *ApiHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := h.Ledger.CreateOrder(r.Context(), chi.URLParam(r, "userId"), req.Id, req.Amount, req.Commission)
	respond(w, r, http.StatusCreated, nilIfEmpty(order), err)
}

func (h *ApiHandler) StartOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Ledger.StartOrder(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "orderId"))
	respond(w, r, http.StatusOK, nilIfEmpty(order), err)
}

func (h *ApiHandler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Ledger.CompleteOrder(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "orderId"))
	respond(w, r, http.StatusOK, nilIfEmpty(order), err)
}

func (h *ApiHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Ledger.CancelOrder(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "orderId"))
	respond(w, r, http.StatusOK, nilIfEmpty(order), err)
}

func (h *ApiHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Ledger.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	respond(w, r, http.StatusOK, nilIfEmpty(order), err)
}
