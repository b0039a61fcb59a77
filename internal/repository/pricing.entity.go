package repository

import (
	"time"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/shopspring/decimal"
)

type PricingPlanEntity struct {
	ID          int64           `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	MerchantID  *int64          `db:"merchant_id"  gorm:"column:merchant_id;index"` // NULL = platform default
	CountryCode string          `db:"country_code" gorm:"column:country_code;not null;index"`
	ChannelType string          `db:"channel_type" gorm:"column:channel_type;not null"`
	UnitPrice   decimal.Decimal `db:"unit_price"   gorm:"column:unit_price;type:numeric(18,6);not null"`
	Currency    string          `db:"currency"     gorm:"column:currency;not null;default:USD"`
	EffectiveAt time.Time       `db:"effective_at" gorm:"column:effective_at;not null"`
	CreatedAt   time.Time       `db:"created_at"   gorm:"column:created_at;autoCreateTime"`
}

func (PricingPlanEntity) TableName() string {
	return "pricing_plans"
}

func toPricingPlanEntity(m *model.PricingPlan) *PricingPlanEntity {
	if m == nil {
		return nil
	}
	return &PricingPlanEntity{
		ID:          m.ID,
		MerchantID:  m.MerchantID,
		CountryCode: m.CountryCode,
		ChannelType: string(m.ChannelType),
		UnitPrice:   m.UnitPrice,
		Currency:    m.Currency,
		EffectiveAt: m.EffectiveAt,
		CreatedAt:   m.CreatedAt,
	}
}

func toPricingPlanModel(e *PricingPlanEntity) *model.PricingPlan {
	if e == nil {
		return nil
	}
	return &model.PricingPlan{
		ID:          e.ID,
		MerchantID:  e.MerchantID,
		CountryCode: e.CountryCode,
		ChannelType: model.ChannelType(e.ChannelType),
		UnitPrice:   e.UnitPrice,
		Currency:    e.Currency,
		EffectiveAt: e.EffectiveAt,
		CreatedAt:   e.CreatedAt,
	}
}
