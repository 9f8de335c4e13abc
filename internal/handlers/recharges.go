package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type createRechargeRequest struct {
	Id       string          `json:"id,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	MethodId string          `json:"method_id"`
}

type confirmRechargeRequest struct {
	Proof string `json:"proof"`
}

func (h *ApiHandler) CreateRecharge(w http.ResponseWriter, r *http.Request) {
	var req createRechargeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	recharge, err := h.Ledger.CreateRecharge(r.Context(), chi.URLParam(r, "userId"), req.Id, req.Amount, req.MethodId)
	respond(w, r, http.StatusCreated, nilIfEmpty(recharge), err)
}

func (h *ApiHandler) ConfirmRecharge(w http.ResponseWriter, r *http.Request) {
	var req confirmRechargeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	recharge, err := h.Ledger.ConfirmRecharge(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "rechargeId"), req.Proof)
	respond(w, r, http.StatusOK, nilIfEmpty(recharge), err)
}

func (h *ApiHandler) GetRecharge(w http.ResponseWriter, r *http.Request) {
	recharge, err := h.Ledger.GetRecharge(r.Context(), chi.URLParam(r, "rechargeId"))
	respond(w, r, http.StatusOK, nilIfEmpty(recharge), err)
}

func (h *ApiHandler) ApproveRecharge(w http.ResponseWriter, r *http.Request) {
	var req remarkRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	recharge, err := h.Ledger.ApproveRecharge(r.Context(), chi.URLParam(r, "rechargeId"), req.Remark)
	respond(w, r, http.StatusOK, nilIfEmpty(recharge), err)
}

func (h *ApiHandler) RejectRecharge(w http.ResponseWriter, r *http.Request) {
	var req remarkRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	recharge, err := h.Ledger.RejectRecharge(r.Context(), chi.URLParam(r, "rechargeId"), req.Remark)
	respond(w, r, http.StatusOK, nilIfEmpty(recharge), err)
}
