package repository

import (
	"time"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/shopspring/decimal"
)

type TransactionEntity struct {
	ID           int64           `db:"id"            gorm:"primaryKey;autoIncrement;column:id"`
	MerchantID   int64           `db:"merchant_id"   gorm:"column:merchant_id;not null;index"`
	Type         string          `db:"type"          gorm:"column:type;not null;index"`
	Amount       decimal.Decimal `db:"amount"        gorm:"column:amount;type:numeric(18,6);not null"`
	BalanceAfter decimal.Decimal `db:"balance_after" gorm:"column:balance_after;type:numeric(18,6);not null"`
	ReferenceID  string          `db:"reference_id"  gorm:"column:reference_id;index"`
	Description  string          `db:"description"   gorm:"column:description"`
	CreatedAt    time.Time       `db:"created_at"    gorm:"column:created_at;autoCreateTime;index"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	return &TransactionEntity{
		ID:           m.ID,
		MerchantID:   m.MerchantID,
		Type:         string(m.Type),
		Amount:       m.Amount,
		BalanceAfter: m.BalanceAfter,
		ReferenceID:  m.ReferenceID,
		Description:  m.Description,
		CreatedAt:    m.CreatedAt,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	return &model.Transaction{
		ID:           e.ID,
		MerchantID:   e.MerchantID,
		Type:         model.TransactionType(e.Type),
		Amount:       e.Amount,
		BalanceAfter: e.BalanceAfter,
		ReferenceID:  e.ReferenceID,
		Description:  e.Description,
		CreatedAt:    e.CreatedAt,
	}
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	if entities == nil {
		return nil
	}
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}
