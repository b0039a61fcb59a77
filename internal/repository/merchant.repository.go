package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/pkg/pg"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrMerchantNotFound    = errors.New("merchant not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMerchantNotActive   = errors.New("merchant account is not active")
	ErrConcurrentUpdate    = errors.New("concurrent update detected")
	ErrMaxRetriesExceeded  = errors.New("max retries exceeded")
)

type MerchantRepository struct {
	*pg.DB
}

func NewMerchantRepository(db *pg.DB) *MerchantRepository {
	return &MerchantRepository{
		db,
	}
}

func (r *MerchantRepository) GetByID(ctx context.Context, id int64) (*model.Merchant, error) {
	var entity MerchantEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMerchantNotFound
		}
		return nil, err
	}
	return toMerchantModel(&entity), nil
}

func (r *MerchantRepository) GetByAPIKey(ctx context.Context, apiKey string) (*model.Merchant, error) {
	var entity MerchantEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("api_key = ?", apiKey).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMerchantNotFound
		}
		return nil, err
	}
	return toMerchantModel(&entity), nil
}

func (r *MerchantRepository) Create(ctx context.Context, m *model.Merchant) (*model.Merchant, error) {
	entity := toMerchantEntity(m)
	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toMerchantModel(entity), nil
}

// DebitBalance atomically deducts amount from the merchant balance with
// automatic retry on transient failures. The check-then-write sequence
// runs under SELECT FOR UPDATE so concurrent sends from the same merchant
// cannot race past the available-funds check. The balance may go negative
// up to the credit limit; attempts beyond that fail with
// ErrInsufficientBalance before any row is written.
//
// Returns the balance snapshot after the deduction for the ledger entry.
func (r *MerchantRepository) DebitBalance(ctx context.Context, merchantID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	const maxRetries = 3
	const baseDelay = 2 * time.Millisecond

	for attempt := 0; attempt <= maxRetries; attempt++ {
		balanceAfter, err := r.debitBalanceAttempt(ctx, merchantID, amount)

		if err == nil {
			return balanceAfter, nil
		}

		// Don't retry on permanent errors
		if errors.Is(err, ErrMerchantNotFound) ||
			errors.Is(err, ErrInsufficientBalance) ||
			errors.Is(err, ErrMerchantNotActive) {
			return decimal.Zero, err
		}

		if attempt < maxRetries {
			delay := baseDelay * time.Duration(1<<attempt) // 2ms, 4ms, 8ms
			select {
			case <-ctx.Done():
				return decimal.Zero, ctx.Err()
			case <-time.After(delay):
				continue
			}
		}
	}

	return decimal.Zero, fmt.Errorf("%w: failed after %d attempts", ErrMaxRetriesExceeded, maxRetries+1)
}

func (r *MerchantRepository) debitBalanceAttempt(ctx context.Context, merchantID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var entity MerchantEntity

	err := r.Write(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", merchantID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrMerchantNotFound
		}
		return decimal.Zero, err
	}

	if entity.Status != string(model.MerchantStatusActive) {
		return decimal.Zero, ErrMerchantNotActive
	}

	// available = balance + creditLimit must not go below zero
	if entity.Balance.Add(entity.CreditLimit).LessThan(amount) {
		return decimal.Zero, ErrInsufficientBalance
	}

	newBalance := entity.Balance.Sub(amount)
	result := r.Write(ctx).WithContext(ctx).
		Model(&MerchantEntity{}).
		Where("id = ?", merchantID).
		Update("balance", newBalance)

	if result.Error != nil {
		return decimal.Zero, result.Error
	}
	if result.RowsAffected == 0 {
		return decimal.Zero, ErrConcurrentUpdate
	}

	return newBalance, nil
}

// CreditBalance atomically adds amount to the merchant balance under the
// same row lock as DebitBalance. Used for refunds, recharges and
// adjustments; credits are allowed on non-active accounts so a suspended
// merchant still gets refunded for failed messages.
func (r *MerchantRepository) CreditBalance(ctx context.Context, merchantID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	const maxRetries = 3
	const baseDelay = 2 * time.Millisecond

	for attempt := 0; attempt <= maxRetries; attempt++ {
		balanceAfter, err := r.creditBalanceAttempt(ctx, merchantID, amount)

		if err == nil {
			return balanceAfter, nil
		}

		if errors.Is(err, ErrMerchantNotFound) {
			return decimal.Zero, err
		}

		if attempt < maxRetries {
			delay := baseDelay * time.Duration(1<<attempt)
			select {
			case <-ctx.Done():
				return decimal.Zero, ctx.Err()
			case <-time.After(delay):
				continue
			}
		}
	}

	return decimal.Zero, fmt.Errorf("%w: failed after %d attempts", ErrMaxRetriesExceeded, maxRetries+1)
}

func (r *MerchantRepository) creditBalanceAttempt(ctx context.Context, merchantID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var entity MerchantEntity

	err := r.Write(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", merchantID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrMerchantNotFound
		}
		return decimal.Zero, err
	}

	newBalance := entity.Balance.Add(amount)
	result := r.Write(ctx).WithContext(ctx).
		Model(&MerchantEntity{}).
		Where("id = ?", merchantID).
		Update("balance", newBalance)

	if result.Error != nil {
		return decimal.Zero, result.Error
	}
	if result.RowsAffected == 0 {
		return decimal.Zero, ErrMerchantNotFound
	}

	return newBalance, nil
}

func (r *MerchantRepository) GetBalance(ctx context.Context, merchantID int64) (decimal.Decimal, error) {
	var entity MerchantEntity
	err := r.Read(ctx).WithContext(ctx).
		Select("balance").
		Where("id = ?", merchantID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrMerchantNotFound
		}
		return decimal.Zero, err
	}
	return entity.Balance, nil
}

// ListBelowBalance returns active merchants whose balance is under the
// given threshold. Used by the monitoring sweep for low-balance alerts.
func (r *MerchantRepository) ListBelowBalance(ctx context.Context, threshold decimal.Decimal) ([]*model.Merchant, error) {
	var entities []*MerchantEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("status = ?", string(model.MerchantStatusActive)).
		Where("balance < ?", threshold).
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toMerchantModels(entities), nil
}
