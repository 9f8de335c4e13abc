package handlers

import (
	"net/http"

	"incentive-ledger-go/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type createWithdrawRequest struct {
	Id      string          `json:"id,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
	BankRef string          `json:"bank_ref"`
}

type remarkRequest struct {
	Remark string `json:"remark,omitempty"`
}

func (h *ApiHandler) CreateWithdraw(w http.ResponseWriter, r *http.Request) {
	var req createWithdrawRequest
	if !decodeBody(w, r, &req) {
		return
	}

	withdraw, err := h.Ledger.CreateWithdraw(r.Context(), chi.URLParam(r, "userId"), req.Id, req.Amount, req.BankRef)
	respond(w, r, http.StatusCreated, nilIfEmpty(withdraw), err)
}

func (h *ApiHandler) CancelWithdraw(w http.ResponseWriter, r *http.Request) {
	withdraw, err := h.Ledger.CancelWithdraw(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "withdrawId"))
	respond(w, r, http.StatusOK, nilIfEmpty(withdraw), err)
}

func (h *ApiHandler) GetWithdraw(w http.ResponseWriter, r *http.Request) {
	withdraw, err := h.Ledger.GetWithdraw(r.Context(), chi.URLParam(r, "withdrawId"))
	respond(w, r, http.StatusOK, nilIfEmpty(withdraw), err)
}

// ListWithdraws defaults to the pending queue
func (h *ApiHandler) ListWithdraws(w http.ResponseWriter, r *http.Request) {
	status := models.WithdrawStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.WithdrawPending
	}
	limit, err := intParam(r.URL.Query().Get("limit"), 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	withdraws, err := h.Ledger.ListWithdraws(r.Context(), status, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if withdraws == nil {
		withdraws = []models.WithdrawOrder{}
	}
	writeJSON(w, http.StatusOK, withdraws)
}

func (h *ApiHandler) ApproveWithdraw(w http.ResponseWriter, r *http.Request) {
	var req remarkRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	withdraw, err := h.Ledger.ApproveWithdraw(r.Context(), chi.URLParam(r, "withdrawId"), req.Remark)
	respond(w, r, http.StatusOK, nilIfEmpty(withdraw), err)
}

func (h *ApiHandler) RejectWithdraw(w http.ResponseWriter, r *http.Request) {
	var req remarkRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	withdraw, err := h.Ledger.RejectWithdraw(r.Context(), chi.URLParam(r, "withdrawId"), req.Remark)
	respond(w, r, http.StatusOK, nilIfEmpty(withdraw), err)
}
