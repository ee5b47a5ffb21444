package nats

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/soyHouston256/stream-sales-sub004/internal/apperr"
	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/service/servicetest"
)

func TestHandlePurchase(t *testing.T) {
	svc := new(servicetest.Market)
	h := NewHandler(svc, nil, nil)
	req := model.PurchaseRequest{BuyerID: uuid.New(), VariantID: uuid.New(), IdempotencyKey: "cmd-1"}
	purchaseID := uuid.New()

	svc.On("Purchase", mock.Anything, req).Return(&model.Receipt{Purchase: model.Purchase{ID: purchaseID}}, nil)

	data, err := json.Marshal(req)
	require.NoError(t, err)
	reply := h.handlePurchase(context.Background(), data)

	require.NotNil(t, reply.Receipt)
	assert.Equal(t, purchaseID, reply.Receipt.Purchase.ID)
	assert.Empty(t, reply.Code)
	svc.AssertExpectations(t)
}

func TestHandlePurchaseReportsKind(t *testing.T) {
	svc := new(servicetest.Market)
	h := NewHandler(svc, nil, nil)
	svc.On("Purchase", mock.Anything, mock.Anything).Return(nil, apperr.ErrInsufficientFunds)

	reply := h.handlePurchase(context.Background(), []byte(`{"buyer_id":"`+uuid.NewString()+`"}`))
	assert.Nil(t, reply.Receipt)
	assert.Equal(t, string(apperr.InsufficientFunds), reply.Code)

	reply = h.handlePurchase(context.Background(), []byte(`{not json`))
	assert.Equal(t, string(apperr.InvalidRequest), reply.Code)
}
