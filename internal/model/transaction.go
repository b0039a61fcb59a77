package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionTypeRecharge   TransactionType = "recharge"
	TransactionTypeDebit      TransactionType = "debit"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeAdjustment TransactionType = "adjustment"
	TransactionTypeBonus      TransactionType = "bonus"
)

// Transaction is an append-only ledger entry. Balance changes are never
// made by mutating a prior record, only by appending an offsetting entry.
// Amount is signed: debits are negative, credits positive. BalanceAfter
// is a snapshot taken inside the same atomic unit as the balance write.
type Transaction struct {
	ID           int64           `json:"id"`
	MerchantID   int64           `json:"merchant_id"`
	Type         TransactionType `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	ReferenceID  string          `json:"reference_id,omitempty"` // usually a Message id
	Description  string          `json:"description,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (Transaction) TableName() string { return "transactions" }

// TransactionFilter controls ledger listing.
type TransactionFilter struct {
	MerchantID *int64
	Types      []TransactionType
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
	Desc       bool
}
