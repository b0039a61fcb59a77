package repository

import (
	"context"
	"testing"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMerchant(t *testing.T, repo *MerchantRepository, balance, creditLimit string, status model.MerchantStatus) *model.Merchant {
	t.Helper()
	m, err := repo.Create(context.Background(), &model.Merchant{
		Name:        "Acme",
		APIKey:      "key-" + balance + "-" + string(status),
		Balance:     decimal.RequireFromString(balance),
		CreditLimit: decimal.RequireFromString(creditLimit),
		Currency:    "USD",
		Status:      status,
	})
	require.NoError(t, err)
	return m
}

func TestMerchantRepository_DebitBalance(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMerchantRepository(db)
	ctx := context.Background()

	t.Run("debit reduces balance", func(t *testing.T) {
		m := seedMerchant(t, repo, "1.00", "0", model.MerchantStatusActive)

		after, err := repo.DebitBalance(ctx, m.ID, decimal.RequireFromString("0.05"))
		require.NoError(t, err)
		assert.True(t, after.Equal(decimal.RequireFromString("0.95")), "got %s", after)

		balance, err := repo.GetBalance(ctx, m.ID)
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.RequireFromString("0.95")))
	})

	t.Run("insufficient balance leaves row untouched", func(t *testing.T) {
		m := seedMerchant(t, repo, "0.04", "0", model.MerchantStatusActive)

		_, err := repo.DebitBalance(ctx, m.ID, decimal.RequireFromString("0.05"))
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		balance, err := repo.GetBalance(ctx, m.ID)
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.RequireFromString("0.04")))
	})

	t.Run("credit limit extends available funds", func(t *testing.T) {
		m := seedMerchant(t, repo, "0.00", "1.00", model.MerchantStatusActive)

		after, err := repo.DebitBalance(ctx, m.ID, decimal.RequireFromString("0.60"))
		require.NoError(t, err)
		assert.True(t, after.Equal(decimal.RequireFromString("-0.60")))

		// next debit would take balance below -creditLimit
		_, err = repo.DebitBalance(ctx, m.ID, decimal.RequireFromString("0.60"))
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})

	t.Run("suspended merchant cannot be debited", func(t *testing.T) {
		m := seedMerchant(t, repo, "10.00", "0", model.MerchantStatusSuspended)

		_, err := repo.DebitBalance(ctx, m.ID, decimal.RequireFromString("0.05"))
		assert.ErrorIs(t, err, ErrMerchantNotActive)
	})

	t.Run("unknown merchant", func(t *testing.T) {
		_, err := repo.DebitBalance(ctx, 99999, decimal.RequireFromString("0.05"))
		assert.ErrorIs(t, err, ErrMerchantNotFound)
	})
}

func TestMerchantRepository_CreditBalance(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMerchantRepository(db)
	ctx := context.Background()

	t.Run("credit raises balance", func(t *testing.T) {
		m := seedMerchant(t, repo, "0.95", "0", model.MerchantStatusActive)

		after, err := repo.CreditBalance(ctx, m.ID, decimal.RequireFromString("0.05"))
		require.NoError(t, err)
		assert.True(t, after.Equal(decimal.RequireFromString("1.00")))
	})

	t.Run("suspended merchant still receives refunds", func(t *testing.T) {
		m := seedMerchant(t, repo, "0.50", "0", model.MerchantStatusSuspended)

		after, err := repo.CreditBalance(ctx, m.ID, decimal.RequireFromString("0.25"))
		require.NoError(t, err)
		assert.True(t, after.Equal(decimal.RequireFromString("0.75")))
	})
}

func TestMerchantRepository_GetByAPIKey(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMerchantRepository(db)
	ctx := context.Background()

	m := seedMerchant(t, repo, "5.00", "0", model.MerchantStatusActive)

	found, err := repo.GetByAPIKey(ctx, m.APIKey)
	require.NoError(t, err)
	assert.Equal(t, m.ID, found.ID)

	_, err = repo.GetByAPIKey(ctx, "missing")
	assert.ErrorIs(t, err, ErrMerchantNotFound)
}
