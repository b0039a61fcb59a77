package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MerchantStatus is the account state of a merchant.
type MerchantStatus string

const (
	MerchantStatusActive    MerchantStatus = "active"
	MerchantStatusSuspended MerchantStatus = "suspended"
	MerchantStatusPending   MerchantStatus = "pending"
	MerchantStatusInactive  MerchantStatus = "inactive"
)

type Merchant struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	APIKey      string          `json:"api_key"`
	Balance     decimal.Decimal `json:"balance"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
	Currency    string          `json:"currency"`
	Status      MerchantStatus  `json:"status"`
	CallbackURL string          `json:"callback_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (Merchant) TableName() string { return "merchants" }

// Available is the spendable amount: balance may go negative up to the
// credit limit, so available = balance + creditLimit.
func (m *Merchant) Available() decimal.Decimal {
	return m.Balance.Add(m.CreditLimit)
}

func (m *Merchant) IsActive() bool {
	return m.Status == MerchantStatusActive
}
