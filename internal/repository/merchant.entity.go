package repository

import (
	"time"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/shopspring/decimal"
)

type MerchantEntity struct {
	ID          int64           `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	Name        string          `db:"name"         gorm:"column:name;not null"`
	APIKey      string          `db:"api_key"      gorm:"column:api_key;not null;unique"`
	Balance     decimal.Decimal `db:"balance"      gorm:"column:balance;type:numeric(18,6);not null;default:0"`
	CreditLimit decimal.Decimal `db:"credit_limit" gorm:"column:credit_limit;type:numeric(18,6);not null;default:0"`
	Currency    string          `db:"currency"     gorm:"column:currency;not null;default:USD"`
	Status      string          `db:"status"       gorm:"column:status;not null;default:pending;index"`
	CallbackURL string          `db:"callback_url" gorm:"column:callback_url"`
	CreatedAt   time.Time       `db:"created_at"   gorm:"column:created_at;autoCreateTime"`
}

func (MerchantEntity) TableName() string {
	return "merchants"
}

func toMerchantEntity(m *model.Merchant) *MerchantEntity {
	if m == nil {
		return nil
	}
	return &MerchantEntity{
		ID:          m.ID,
		Name:        m.Name,
		APIKey:      m.APIKey,
		Balance:     m.Balance,
		CreditLimit: m.CreditLimit,
		Currency:    m.Currency,
		Status:      string(m.Status),
		CallbackURL: m.CallbackURL,
		CreatedAt:   m.CreatedAt,
	}
}

func toMerchantModel(e *MerchantEntity) *model.Merchant {
	if e == nil {
		return nil
	}
	return &model.Merchant{
		ID:          e.ID,
		Name:        e.Name,
		APIKey:      e.APIKey,
		Balance:     e.Balance,
		CreditLimit: e.CreditLimit,
		Currency:    e.Currency,
		Status:      model.MerchantStatus(e.Status),
		CallbackURL: e.CallbackURL,
		CreatedAt:   e.CreatedAt,
	}
}

func toMerchantModels(entities []*MerchantEntity) []*model.Merchant {
	if entities == nil {
		return nil
	}
	models := make([]*model.Merchant, len(entities))
	for i, e := range entities {
		models[i] = toMerchantModel(e)
	}
	return models
}
