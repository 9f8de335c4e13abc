package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type registerInviteRequest struct {
	InviteCode string `json:"invite_code"`
}

type upgradeVipRequest struct {
	Level int `json:"level"`
}

func (h *ApiHandler) RegisterInvite(w http.ResponseWriter, r *http.Request) {
	var req registerInviteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	edge, err := h.Ledger.RegisterInvite(r.Context(), chi.URLParam(r, "userId"), req.InviteCode)
	respond(w, r, http.StatusCreated, nilIfEmpty(edge), err)
}

func (h *ApiHandler) ValidateInvite(w http.ResponseWriter, r *http.Request) {
	edge, err := h.Ledger.ValidateInvite(r.Context(), chi.URLParam(r, "edgeId"))
	respond(w, r, http.StatusOK, nilIfEmpty(edge), err)
}

func (h *ApiHandler) GetInviteEdge(w http.ResponseWriter, r *http.Request) {
	edge, err := h.Ledger.GetInviteEdge(r.Context(), chi.URLParam(r, "edgeId"))
	respond(w, r, http.StatusOK, nilIfEmpty(edge), err)
}

func (h *ApiHandler) GetInviteStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Ledger.GetInviteStats(r.Context(), chi.URLParam(r, "userId"))
	respond(w, r, http.StatusOK, nilIfEmpty(stats), err)
}

func (h *ApiHandler) GetVipStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.Ledger.GetVipStatus(r.Context(), chi.URLParam(r, "userId"))
	respond(w, r, http.StatusOK, nilIfEmpty(view), err)
}

func (h *ApiHandler) UpgradeVip(w http.ResponseWriter, r *http.Request) {
	var req upgradeVipRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := h.Ledger.UpgradeVip(r.Context(), chi.URLParam(r, "userId"), req.Level)
	respond(w, r, http.StatusOK, nilIfEmpty(view), err)
}
