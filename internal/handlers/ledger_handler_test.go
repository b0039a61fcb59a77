package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/internal/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) GetBalance(ctx context.Context, merchantID int64) (decimal.Decimal, error) {
	args := m.Called(ctx, merchantID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockLedgerService) ListTransactions(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Transaction), args.Get(1).(int64), args.Error(2)
}

func (m *MockLedgerService) Recharge(ctx context.Context, merchantID int64, amount decimal.Decimal, reference string) (*model.Transaction, error) {
	args := m.Called(ctx, merchantID, amount, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockLedgerService) VerifyLedger(ctx context.Context, merchantID int64) (bool, error) {
	args := m.Called(ctx, merchantID)
	return args.Bool(0), args.Error(1)
}

func TestLedgerHandler_GetBalance(t *testing.T) {
	svc := new(MockLedgerService)
	handler := NewLedgerHandler(svc, testAuth())

	svc.On("GetBalance", mock.Anything, int64(7)).Return(decimal.RequireFromString("12.50"), nil)

	ctx := authedContext("GET", "/api/v1/balance", nil)
	handler.auth.Wrap(handler.GetBalance)(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	var resp balanceResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	assert.Equal(t, int64(7), resp.MerchantID)
	assert.True(t, resp.Balance.Equal(decimal.RequireFromString("12.50")))
	assert.Equal(t, "USD", resp.Currency)
}

func TestLedgerHandler_Recharge(t *testing.T) {
	t.Run("recharge creates a credit", func(t *testing.T) {
		svc := new(MockLedgerService)
		handler := NewLedgerHandler(svc, testAuth())

		amount := decimal.RequireFromString("50")
		svc.On("Recharge", mock.Anything, int64(7), amount, "invoice-88").
			Return(&model.Transaction{ID: 3, MerchantID: 7, Type: model.TransactionTypeRecharge, Amount: amount}, nil)

		body, _ := json.Marshal(rechargeRequest{Amount: amount, Reference: "invoice-88"})
		ctx := authedContext("POST", "/api/v1/recharge", body)
		handler.auth.Wrap(handler.Recharge)(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("non-positive amount is 400", func(t *testing.T) {
		svc := new(MockLedgerService)
		handler := NewLedgerHandler(svc, testAuth())

		svc.On("Recharge", mock.Anything, int64(7), mock.Anything, "").
			Return(nil, services.ErrInvalidAmount)

		body, _ := json.Marshal(rechargeRequest{Amount: decimal.Zero})
		ctx := authedContext("POST", "/api/v1/recharge", body)
		handler.auth.Wrap(handler.Recharge)(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}

func TestLedgerHandler_ListTransactions(t *testing.T) {
	svc := new(MockLedgerService)
	handler := NewLedgerHandler(svc, testAuth())

	svc.On("ListTransactions", mock.Anything, mock.MatchedBy(func(f model.TransactionFilter) bool {
		return f.MerchantID != nil && *f.MerchantID == 7 &&
			len(f.Types) == 1 && f.Types[0] == model.TransactionTypeRefund
	})).Return([]*model.Transaction{{ID: 1, MerchantID: 7, Type: model.TransactionTypeRefund}}, int64(1), nil)

	ctx := authedContext("GET", "/api/v1/transactions?type=refund", nil)
	handler.auth.Wrap(handler.ListTransactions)(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	var resp transactionListResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	assert.Equal(t, int64(1), resp.Total)
}

func TestLedgerHandler_VerifyLedger(t *testing.T) {
	svc := new(MockLedgerService)
	handler := NewLedgerHandler(svc, testAuth())

	svc.On("VerifyLedger", mock.Anything, int64(7)).Return(false, nil)

	ctx := authedContext("GET", "/api/v1/ledger/verify", nil)
	handler.auth.Wrap(handler.VerifyLedger)(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	var resp ledgerVerifyResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	assert.False(t, resp.Consistent)
}
