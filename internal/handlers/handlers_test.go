package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"incentive-ledger-go/internal/api"
	"incentive-ledger-go/internal/config"
	"incentive-ledger-go/internal/database"
	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) http.Handler {
	t.Helper()

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  time.Second,
		BusyTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	ledger := api.NewLedgerService(db, config.DefaultRules())
	return NewApiHandler(ledger).Routes()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}

func registerUser(t *testing.T, h http.Handler, name, inviteCode string) registerUserResponse {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/users", registerUserRequest{Name: name, Email: name + "@example.com", InviteCode: inviteCode})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[registerUserResponse](t, rr)
}

func fund(t *testing.T, h http.Handler, userId, amount string) {
	t.Helper()

	rr := do(t, h, http.MethodPost, "/users/"+userId+"/recharges", createRechargeRequest{Amount: decimal.RequireFromString(amount), MethodId: "usdt"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	recharge := decode[models.RechargeOrder](t, rr)

	rr = do(t, h, http.MethodPost, "/users/"+userId+"/recharges/"+recharge.Id+"/confirm", confirmRechargeRequest{Proof: "tx-hash"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodPost, "/admin/recharges/"+recharge.Id+"/approve", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func balanceOf(t *testing.T, h http.Handler, userId string) models.Balance {
	t.Helper()
	rr := do(t, h, http.MethodGet, "/users/"+userId+"/balance", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decode[models.Balance](t, rr)
}

func TestHealthAndMetrics(t *testing.T) {
	h := setupRouter(t)

	rr := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "http_requests_total")
}

func TestRegisterUser(t *testing.T) {
	h := setupRouter(t)

	alice := registerUser(t, h, "alice", "")
	assert.Nil(t, alice.Invite)
	assert.Len(t, alice.User.InviteCode, 8)

	bob := registerUser(t, h, "bob", alice.User.InviteCode)
	require.NotNil(t, bob.Invite)
	assert.Equal(t, alice.User.Id, bob.Invite.InviterId)
	assert.False(t, bob.Invite.IsValid)

	t.Run("DuplicateEmail", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/users", registerUserRequest{Name: "alice", Email: "alice@example.com"})
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("UnknownInviteCode", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/users", registerUserRequest{Name: "carol", Email: "carol@example.com", InviteCode: "NOPE0000"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("MissingEmail", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/users", registerUserRequest{Name: "dave"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("UnknownField", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/users", map[string]string{"name": "erin", "mail": "erin@example.com"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestOrderFlow(t *testing.T) {
	h := setupRouter(t)
	alice := registerUser(t, h, "alice", "").User
	fund(t, h, alice.Id, "200")

	rr := do(t, h, http.MethodPost, "/users/"+alice.Id+"/orders", createOrderRequest{
		Id:         "order-1",
		Amount:     decimal.RequireFromString("100"),
		Commission: decimal.RequireFromString("10"),
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	balance := balanceOf(t, h, alice.Id)
	assert.True(t, balance.Available.Equal(decimal.RequireFromString("100")))
	assert.True(t, balance.Frozen.Equal(decimal.RequireFromString("100")))

	rr = do(t, h, http.MethodPost, "/users/"+alice.Id+"/orders/order-1/start", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodPost, "/users/"+alice.Id+"/orders/order-1/complete", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	order := decode[models.Order](t, rr)
	assert.Equal(t, models.OrderCompleted, order.Status)

	// a retried completion answers with the stored order and pays nothing twice
	rr = do(t, h, http.MethodPost, "/users/"+alice.Id+"/orders/order-1/complete", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	balance = balanceOf(t, h, alice.Id)
	assert.True(t, balance.Available.Equal(decimal.RequireFromString("210")), balance.Available.String())
	assert.True(t, balance.Frozen.IsZero())

	rr = do(t, h, http.MethodPost, "/users/"+alice.Id+"/orders/order-1/cancel", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodGet, "/orders/order-1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodGet, "/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodPost, "/users/"+alice.Id+"/orders", createOrderRequest{
		Amount:     decimal.RequireFromString("1000"),
		Commission: decimal.RequireFromString("1"),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestWithdrawFlow(t *testing.T) {
	h := setupRouter(t)
	alice := registerUser(t, h, "alice", "").User
	bob := registerUser(t, h, "bob", "").User
	fund(t, h, alice.Id, "100")

	rr := do(t, h, http.MethodPost, "/users/"+alice.Id+"/withdraws", createWithdrawRequest{Amount: decimal.RequireFromString("5"), BankRef: "IBAN-1"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/users/"+alice.Id+"/withdraws", createWithdrawRequest{Amount: decimal.RequireFromString("500"), BankRef: "IBAN-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, h, http.MethodPost, "/users/"+alice.Id+"/withdraws", createWithdrawRequest{Id: "wd-1", Amount: decimal.RequireFromString("40"), BankRef: "IBAN-1"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/admin/withdraws", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	pending := decode[[]models.WithdrawOrder](t, rr)
	require.Len(t, pending, 1)
	assert.Equal(t, "wd-1", pending[0].Id)

	rr = do(t, h, http.MethodPost, "/users/"+bob.Id+"/withdraws/wd-1/cancel", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, h, http.MethodPost, "/admin/withdraws/wd-1/approve", remarkRequest{Remark: "paid"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	withdraw := decode[models.WithdrawOrder](t, rr)
	assert.Equal(t, models.WithdrawApproved, withdraw.Status)

	rr = do(t, h, http.MethodPost, "/admin/withdraws/wd-1/reject", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	balance := balanceOf(t, h, alice.Id)
	assert.True(t, balance.Available.Equal(decimal.RequireFromString("60")), balance.Available.String())
	assert.True(t, balance.Frozen.IsZero())

	rr = do(t, h, http.MethodPost, "/admin/users/"+alice.Id+"/reconcile", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestInviteAndVip(t *testing.T) {
	h := setupRouter(t)
	alice := registerUser(t, h, "alice", "").User
	bob := registerUser(t, h, "bob", "").User

	rr := do(t, h, http.MethodPost, "/users/"+alice.Id+"/invites", registerInviteRequest{InviteCode: alice.InviteCode})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/users/"+bob.Id+"/invites", registerInviteRequest{InviteCode: alice.InviteCode})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	edge := decode[models.InviteEdge](t, rr)

	rr = do(t, h, http.MethodPost, "/users/"+bob.Id+"/invites", registerInviteRequest{InviteCode: alice.InviteCode})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodPost, "/admin/invites/"+edge.Id+"/validate", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodPost, "/admin/invites/"+edge.Id+"/validate", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodGet, "/users/"+alice.Id+"/invites/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decode[models.InviteStats](t, rr)
	assert.Equal(t, 1, stats.ValidInvites)
	assert.True(t, stats.RewardEarned.Equal(decimal.RequireFromString("10")), stats.RewardEarned.String())

	rr = do(t, h, http.MethodPost, "/users/"+alice.Id+"/vip", upgradeVipRequest{Level: 1})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	fund(t, h, alice.Id, "100")
	rr = do(t, h, http.MethodPost, "/users/"+alice.Id+"/vip", upgradeVipRequest{Level: 1})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/users/"+alice.Id+"/vip", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	view := decode[models.VipView](t, rr)
	assert.Equal(t, 1, view.Level)
	assert.True(t, view.Active)

	rr = do(t, h, http.MethodPost, "/users/"+alice.Id+"/vip", upgradeVipRequest{Level: 9})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTransactionHistory(t *testing.T) {
	h := setupRouter(t)
	alice := registerUser(t, h, "alice", "").User
	fund(t, h, alice.Id, "50")
	fund(t, h, alice.Id, "70")

	rr := do(t, h, http.MethodGet, "/users/"+alice.Id+"/transactions?page=1&page_size=1&kind=recharge", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	page := decode[models.HistoryPage](t, rr)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Entries, 1)
	assert.True(t, page.Entries[0].Amount.Equal(decimal.RequireFromString("70")))

	rr = do(t, h, http.MethodGet, "/users/"+alice.Id+"/transactions?kind=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/users/"+alice.Id+"/transactions?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/users/nobody/transactions", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
	assert.Equal(t, http.StatusNotFound, statusFor(store.ErrUserNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(store.ErrAlreadyValidated))
	assert.Equal(t, http.StatusTooManyRequests, statusFor(store.ErrLimitExceeded))
	assert.Equal(t, http.StatusGone, statusFor(fmt.Errorf("recharge r-1: %w", store.ErrExpired)))
}
