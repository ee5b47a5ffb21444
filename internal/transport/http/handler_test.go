package http

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/soyHouston256/stream-sales-sub004/internal/apperr"
	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/service/servicetest"
)

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	RequestID string          `json:"request_id"`
}

func do(t *testing.T, app *fiber.App, method, path, body string, headers map[string]string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return resp.StatusCode, env
}

func as(user uuid.UUID, role string) map[string]string {
	return map[string]string{headerUserID: user.String(), headerUserRole: role}
}

func TestPurchaseCreated(t *testing.T) {
	svc := new(servicetest.Market)
	app := NewApp(svc, nil)
	buyer, variant := uuid.New(), uuid.New()

	svc.On("Purchase", mock.Anything, model.PurchaseRequest{BuyerID: buyer, VariantID: variant, IdempotencyKey: "k1"}).
		Return(&model.Receipt{
			Purchase:   model.Purchase{ID: uuid.New(), Status: model.PurchaseCompleted, Amount: decimal.NewFromInt(30)},
			NewBalance: decimal.NewFromInt(20),
		}, nil)

	headers := as(buyer, RoleBuyer)
	headers[headerIdemKey] = "k1"
	headers[headerRequestID] = "req-1"
	status, env := do(t, app, "POST", "/purchase", `{"variantId":"`+variant.String()+`"}`, headers)

	assert.Equal(t, fiber.StatusCreated, status)
	assert.True(t, env.Success)
	assert.Equal(t, "req-1", env.RequestID)

	var data struct {
		Status     string          `json:"status"`
		NewBalance decimal.Decimal `json:"newBalance"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "completed", data.Status)
	assert.True(t, data.NewBalance.Equal(decimal.NewFromInt(20)))
	svc.AssertExpectations(t)
}

func TestPurchaseReplayKeepsCreatedStatus(t *testing.T) {
	svc := new(servicetest.Market)
	app := NewApp(svc, nil)
	buyer, variant, purchaseID := uuid.New(), uuid.New(), uuid.New()

	svc.On("Purchase", mock.Anything, mock.Anything).Return(&model.Receipt{
		Purchase:   model.Purchase{ID: purchaseID, Status: model.PurchaseCompleted, Amount: decimal.NewFromInt(30)},
		NewBalance: decimal.NewFromInt(20),
		Replayed:   true,
	}, nil)

	headers := as(buyer, RoleBuyer)
	headers[headerIdemKey] = "k1"
	status, env := do(t, app, "POST", "/purchase", `{"variantId":"`+variant.String()+`"}`, headers)

	assert.Equal(t, fiber.StatusCreated, status)
	var data struct {
		PurchaseID uuid.UUID `json:"purchaseId"`
		Replayed   bool      `json:"replayed"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, purchaseID, data.PurchaseID)
	assert.True(t, data.Replayed)
}

func TestPurchaseErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{apperr.ErrInsufficientFunds, fiber.StatusPaymentRequired},
		{apperr.ErrOutOfStock, fiber.StatusConflict},
		{apperr.ErrProductNotFound, fiber.StatusNotFound},
		{apperr.NewTransient("test", io.ErrUnexpectedEOF), fiber.StatusServiceUnavailable},
		{io.ErrUnexpectedEOF, fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(apperr.KindOf(tc.err)), func(t *testing.T) {
			svc := new(servicetest.Market)
			svc.On("Purchase", mock.Anything, mock.Anything).Return(nil, tc.err)
			app := NewApp(svc, nil)

			headers := as(uuid.New(), RoleBuyer)
			headers[headerIdemKey] = "k1"
			status, env := do(t, app, "POST", "/purchase", `{"variantId":"`+uuid.NewString()+`"}`, headers)

			assert.Equal(t, tc.status, status)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, string(apperr.KindOf(tc.err)), env.Error.Code)
		})
	}
}

func TestPurchaseRequiresIdempotencyKey(t *testing.T) {
	svc := new(servicetest.Market)
	app := NewApp(svc, nil)

	status, env := do(t, app, "POST", "/purchase", `{"variantId":"`+uuid.NewString()+`"}`, as(uuid.New(), RoleBuyer))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.False(t, env.Success)
	svc.AssertNotCalled(t, "Purchase", mock.Anything, mock.Anything)
}

func TestIdentityIsRequired(t *testing.T) {
	svc := new(servicetest.Market)
	app := NewApp(svc, nil)

	status, _ := do(t, app, "GET", "/wallets/me", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestHealthSkipsIdentity(t *testing.T) {
	svc := new(servicetest.Market)
	svc.On("Ping", mock.Anything).Return(nil)
	app := NewApp(svc, nil)

	status, env := do(t, app, "GET", "/health", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.RequestID)
}

func TestResolveDisputeRequiresStaff(t *testing.T) {
	svc := new(servicetest.Market)
	app := NewApp(svc, nil)
	body := `{"resolutionType":"refund_seller"}`

	status, _ := do(t, app, "PUT", "/disputes/"+uuid.NewString()+"/resolve", body, as(uuid.New(), RoleBuyer))
	assert.Equal(t, fiber.StatusForbidden, status)
	svc.AssertNotCalled(t, "ResolveDispute", mock.Anything, mock.Anything)
}

func TestResolvePartialRefund(t *testing.T) {
	svc := new(servicetest.Market)
	app := NewApp(svc, nil)
	disputeID, conciliator := uuid.New(), uuid.New()

	svc.On("ResolveDispute", mock.Anything, mock.MatchedBy(func(r model.ResolveRequest) bool {
		return r.DisputeID == disputeID &&
			r.ResolverID == conciliator &&
			r.Type == model.ResolutionPartialRefund &&
			r.Percentage != nil && r.Percentage.Equal(decimal.NewFromInt(50))
	})).Return(&model.Outcome{Dispute: model.Dispute{ID: disputeID, Status: model.DisputeResolved}}, nil)

	body := `{"resolutionType":"partial_refund","partialRefundPercentage":50}`
	status, env := do(t, app, "PUT", "/disputes/"+disputeID.String()+"/resolve", body, as(conciliator, RoleConciliator))

	assert.Equal(t, fiber.StatusOK, status)
	assert.True(t, env.Success)
	svc.AssertExpectations(t)
}

func TestResolveInvalidTransition(t *testing.T) {
	svc := new(servicetest.Market)
	svc.On("ResolveDispute", mock.Anything, mock.Anything).Return(nil, apperr.ErrInvalidDisputeTransition)
	app := NewApp(svc, nil)

	status, env := do(t, app, "PUT", "/disputes/"+uuid.NewString()+"/resolve", `{"resolutionType":"no_refund"}`, as(uuid.New(), RoleAdmin))
	assert.Equal(t, fiber.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(apperr.InvalidDisputeTransition), env.Error.Code)
}

func TestGetDisputeHiddenFromOtherBuyers(t *testing.T) {
	svc := new(servicetest.Market)
	id, owner := uuid.New(), uuid.New()
	svc.On("GetDispute", mock.Anything, id).Return(&model.Dispute{ID: id, OpenedBy: owner}, nil)
	app := NewApp(svc, nil)

	status, _ := do(t, app, "GET", "/disputes/"+id.String(), "", as(uuid.New(), RoleBuyer))
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = do(t, app, "GET", "/disputes/"+id.String(), "", as(owner, RoleBuyer))
	assert.Equal(t, fiber.StatusOK, status)
}

func TestDepositIsAdminOnly(t *testing.T) {
	svc := new(servicetest.Market)
	app := NewApp(svc, nil)
	walletID := uuid.New()

	headers := as(uuid.New(), RoleBuyer)
	headers[headerIdemKey] = "dep-1"
	status, _ := do(t, app, "POST", "/wallets/"+walletID.String()+"/deposit", `{"amount":"10.00"}`, headers)
	assert.Equal(t, fiber.StatusForbidden, status)

	svc.On("Deposit", mock.Anything, mock.MatchedBy(func(r model.DepositRequest) bool {
		return r.WalletID == walletID && r.IdempotencyKey == "dep-1" && r.Amount.Equal(decimal.NewFromInt(10))
	})).Return(nil, nil)
	headers[headerUserRole] = RoleAdmin
	status, _ = do(t, app, "POST", "/wallets/"+walletID.String()+"/deposit", `{"amount":"10.00"}`, headers)
	assert.Equal(t, fiber.StatusOK, status)
	svc.AssertExpectations(t)
}
