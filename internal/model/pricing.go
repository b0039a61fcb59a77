package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricingPlan is one per-segment rate for a (country, channel type) pair.
// A nil MerchantID marks a platform default plan; merchant-specific plans
// take precedence. Plans become effective at EffectiveAt and the most
// recently effective one wins.
type PricingPlan struct {
	ID          int64           `json:"id"`
	MerchantID  *int64          `json:"merchant_id,omitempty"`
	CountryCode string          `json:"country_code"`
	ChannelType ChannelType     `json:"channel_type"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Currency    string          `json:"currency"`
	EffectiveAt time.Time       `json:"effective_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (PricingPlan) TableName() string { return "pricing_plans" }

// CostQuote is the deterministic price of one message.
type CostQuote struct {
	CountryCode string          `json:"country_code"`
	Segments    int             `json:"segments"`
	Encoding    Encoding        `json:"encoding"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	Currency    string          `json:"currency"`
}
