package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/internal/repository"
	"github.com/sakaloan5-create/sms-platform/pkg/logger"
	"github.com/sakaloan5-create/sms-platform/pkg/prom"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMerchantNotActive   = errors.New("merchant account is not active")
	ErrMerchantNotFound    = errors.New("merchant not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// TxRunner executes fn inside one database transaction. The ctx passed
// to fn carries the transaction; repository calls made with it join it.
type TxRunner interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type MerchantLedger interface {
	GetByID(ctx context.Context, id int64) (*model.Merchant, error)
	DebitBalance(ctx context.Context, merchantID int64, amount decimal.Decimal) (decimal.Decimal, error)
	CreditBalance(ctx context.Context, merchantID int64, amount decimal.Decimal) (decimal.Decimal, error)
	GetBalance(ctx context.Context, merchantID int64) (decimal.Decimal, error)
}

type TransactionStore interface {
	Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	HasRefundForMessage(ctx context.Context, messageID string) (bool, error)
	List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error)
	SumForMerchant(ctx context.Context, merchantID int64) (decimal.Decimal, error)
}

// LedgerService owns every balance movement. Each movement pairs a
// balance write with an append-only transaction row inside one database
// transaction, so the ledger always explains the balance.
type LedgerService struct {
	tx           TxRunner
	merchants    MerchantLedger
	transactions TransactionStore
}

func NewLedgerService(tx TxRunner, merchants MerchantLedger, transactions TransactionStore) *LedgerService {
	return &LedgerService{tx: tx, merchants: merchants, transactions: transactions}
}

// DebitForMessage charges a message's cost and records the debit entry.
// Callers run it inside an outer transaction that also creates the
// message row; the ctx must carry that transaction.
func (s *LedgerService) DebitForMessage(ctx context.Context, merchantID int64, messageID string, cost decimal.Decimal) (*model.Transaction, error) {
	balanceAfter, err := s.merchants.DebitBalance(ctx, merchantID, cost)
	if err != nil {
		return nil, mapLedgerErr(err)
	}

	txn := &model.Transaction{
		MerchantID:   merchantID,
		Type:         model.TransactionTypeDebit,
		Amount:       cost.Neg(),
		BalanceAfter: balanceAfter,
		ReferenceID:  messageID,
	}
	created, err := s.transactions.Create(ctx, txn)
	if err != nil {
		return nil, fmt.Errorf("record debit: %w", err)
	}
	prom.IncDebit()
	return created, nil
}

// RefundMessage returns a failed or cancelled message's cost. Exactly
// once per message: a prior refund entry for the same message makes this
// a no-op, checked inside the same transaction that writes the refund.
func (s *LedgerService) RefundMessage(ctx context.Context, msg *model.Message, reason string) error {
	if msg.Cost.IsZero() {
		return nil
	}
	return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		refunded, err := s.transactions.HasRefundForMessage(ctx, msg.ID)
		if err != nil {
			return fmt.Errorf("check prior refund: %w", err)
		}
		if refunded {
			logger.Debug("refund already recorded", "message_id", msg.ID)
			return nil
		}

		balanceAfter, err := s.merchants.CreditBalance(ctx, msg.MerchantID, msg.Cost)
		if err != nil {
			return mapLedgerErr(err)
		}

		_, err = s.transactions.Create(ctx, &model.Transaction{
			MerchantID:   msg.MerchantID,
			Type:         model.TransactionTypeRefund,
			Amount:       msg.Cost,
			BalanceAfter: balanceAfter,
			ReferenceID:  msg.ID,
			Description:  reason,
		})
		if err != nil {
			return fmt.Errorf("record refund: %w", err)
		}
		prom.IncRefund()
		return nil
	})
}

// Recharge credits a top-up.
func (s *LedgerService) Recharge(ctx context.Context, merchantID int64, amount decimal.Decimal, reference string) (*model.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	return s.credit(ctx, merchantID, amount, model.TransactionTypeRecharge, reference, "")
}

// Adjust applies a signed operator correction.
func (s *LedgerService) Adjust(ctx context.Context, merchantID int64, amount decimal.Decimal, description string) (*model.Transaction, error) {
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	var out *model.Transaction
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var balanceAfter decimal.Decimal
		var err error
		if amount.IsPositive() {
			balanceAfter, err = s.merchants.CreditBalance(ctx, merchantID, amount)
		} else {
			balanceAfter, err = s.merchants.DebitBalance(ctx, merchantID, amount.Neg())
		}
		if err != nil {
			return mapLedgerErr(err)
		}
		out, err = s.transactions.Create(ctx, &model.Transaction{
			MerchantID:   merchantID,
			Type:         model.TransactionTypeAdjustment,
			Amount:       amount,
			BalanceAfter: balanceAfter,
			Description:  description,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *LedgerService) credit(ctx context.Context, merchantID int64, amount decimal.Decimal, txnType model.TransactionType, reference, description string) (*model.Transaction, error) {
	var out *model.Transaction
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		balanceAfter, err := s.merchants.CreditBalance(ctx, merchantID, amount)
		if err != nil {
			return mapLedgerErr(err)
		}
		out, err = s.transactions.Create(ctx, &model.Transaction{
			MerchantID:   merchantID,
			Type:         txnType,
			Amount:       amount,
			BalanceAfter: balanceAfter,
			ReferenceID:  reference,
			Description:  description,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetBalance returns the current balance.
func (s *LedgerService) GetBalance(ctx context.Context, merchantID int64) (decimal.Decimal, error) {
	bal, err := s.merchants.GetBalance(ctx, merchantID)
	if err != nil {
		return decimal.Zero, mapLedgerErr(err)
	}
	return bal, nil
}

// ListTransactions pages through a merchant's ledger history.
func (s *LedgerService) ListTransactions(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error) {
	return s.transactions.List(ctx, f)
}

// VerifyLedger checks the append-only invariant for one merchant: the
// sum of entries must equal the current balance. A mismatch means a
// balance write escaped the ledger and is worth an alert.
func (s *LedgerService) VerifyLedger(ctx context.Context, merchantID int64) (bool, error) {
	balance, err := s.merchants.GetBalance(ctx, merchantID)
	if err != nil {
		return false, mapLedgerErr(err)
	}
	sum, err := s.transactions.SumForMerchant(ctx, merchantID)
	if err != nil {
		return false, err
	}
	return balance.Equal(sum), nil
}

func mapLedgerErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrInsufficientBalance):
		return ErrInsufficientBalance
	case errors.Is(err, repository.ErrMerchantNotActive):
		return ErrMerchantNotActive
	case errors.Is(err, repository.ErrMerchantNotFound):
		return ErrMerchantNotFound
	default:
		return err
	}
}
