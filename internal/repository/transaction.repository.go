package repository

import (
	"context"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/pkg/pg"
	"github.com/shopspring/decimal"
)

type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(txn)
	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toTransactionModel(entity), nil
}

// HasRefundForMessage reports whether a refund entry already references
// the message. This is the exactly-once guard for the refund path; it
// must be evaluated inside the same transaction as the credit.
func (r *TransactionRepository) HasRefundForMessage(ctx context.Context, messageID string) (bool, error) {
	var count int64
	err := r.Write(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("reference_id = ? AND type = ?", messageID, string(model.TransactionTypeRefund)).
		Count(&count).
		Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *TransactionRepository) List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&TransactionEntity{})

	if f.MerchantID != nil {
		q = q.Where("merchant_id = ?", *f.MerchantID)
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		q = q.Where("type IN ?", types)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at"
	if f.Desc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*TransactionEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toTransactionModels(entities), total, nil
}

// SumForMerchant totals all ledger entries for a merchant. The ledger
// invariant says this equals the current balance.
func (r *TransactionRepository) SumForMerchant(ctx context.Context, merchantID int64) (decimal.Decimal, error) {
	var entities []*TransactionEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Find(&entities).
		Error
	if err != nil {
		return decimal.Zero, err
	}

	sum := decimal.Zero
	for _, e := range entities {
		sum = sum.Add(e.Amount)
	}
	return sum, nil
}
