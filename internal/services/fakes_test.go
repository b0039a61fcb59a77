package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/internal/repository"
	"github.com/shopspring/decimal"
)

// noopTx runs fn directly; the fakes below are individually atomic.
type noopTx struct{}

func (noopTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakePricing struct {
	plans []*model.PricingPlan
}

func (f *fakePricing) Resolve(ctx context.Context, merchantID int64, countryCode string, chType model.ChannelType, at time.Time) (*model.PricingPlan, error) {
	var best *model.PricingPlan
	for _, p := range f.plans {
		if p.CountryCode != countryCode || p.ChannelType != chType || p.EffectiveAt.After(at) {
			continue
		}
		if p.MerchantID != nil && *p.MerchantID != merchantID {
			continue
		}
		if best == nil {
			best = p
			continue
		}
		// merchant plan beats platform default
		if best.MerchantID == nil && p.MerchantID != nil {
			best = p
		}
	}
	if best == nil {
		return nil, repository.ErrNoPlanFound
	}
	return best, nil
}

type fakeChannels struct {
	channels []*model.Channel
}

func (f *fakeChannels) ListActive(ctx context.Context, chType model.ChannelType) ([]*model.Channel, error) {
	var out []*model.Channel
	for _, ch := range f.channels {
		if ch.Type == chType && ch.Status == model.ChannelStatusActive {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *fakeChannels) GetByID(ctx context.Context, id int64) (*model.Channel, error) {
	for _, ch := range f.channels {
		if ch.ID == id {
			return ch, nil
		}
	}
	return nil, errors.New("channel not found")
}

func (f *fakeChannels) UpdateStatus(ctx context.Context, id int64, status model.ChannelStatus) error {
	ch, err := f.GetByID(ctx, id)
	if err != nil {
		return err
	}
	ch.Status = status
	return nil
}

func (f *fakeChannels) UpdateSuccessRate(ctx context.Context, id int64, rate float64) error {
	ch, err := f.GetByID(ctx, id)
	if err != nil {
		return err
	}
	ch.SuccessRate = rate
	return nil
}

// fakeLedgerStore backs both the merchant balance and the transaction
// log behind one mutex, which makes concurrent sends exercisable
// without a real database.
type fakeLedgerStore struct {
	mu           sync.Mutex
	merchants    map[int64]*model.Merchant
	transactions []*model.Transaction
	nextTxnID    int64
}

func newFakeLedgerStore(merchants ...*model.Merchant) *fakeLedgerStore {
	s := &fakeLedgerStore{merchants: make(map[int64]*model.Merchant)}
	for _, m := range merchants {
		s.merchants[m.ID] = m
	}
	return s
}

func (f *fakeLedgerStore) GetByID(ctx context.Context, id int64) (*model.Merchant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.merchants[id]
	if !ok {
		return nil, repository.ErrMerchantNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeLedgerStore) DebitBalance(ctx context.Context, merchantID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.merchants[merchantID]
	if !ok {
		return decimal.Zero, repository.ErrMerchantNotFound
	}
	if m.Status != model.MerchantStatusActive {
		return decimal.Zero, repository.ErrMerchantNotActive
	}
	if m.Available().LessThan(amount) {
		return decimal.Zero, repository.ErrInsufficientBalance
	}
	m.Balance = m.Balance.Sub(amount)
	return m.Balance, nil
}

func (f *fakeLedgerStore) CreditBalance(ctx context.Context, merchantID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.merchants[merchantID]
	if !ok {
		return decimal.Zero, repository.ErrMerchantNotFound
	}
	m.Balance = m.Balance.Add(amount)
	return m.Balance, nil
}

func (f *fakeLedgerStore) GetBalance(ctx context.Context, merchantID int64) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.merchants[merchantID]
	if !ok {
		return decimal.Zero, repository.ErrMerchantNotFound
	}
	return m.Balance, nil
}

func (f *fakeLedgerStore) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTxnID++
	txn.ID = f.nextTxnID
	txn.CreatedAt = time.Now().UTC()
	f.transactions = append(f.transactions, txn)
	return txn, nil
}

func (f *fakeLedgerStore) HasRefundForMessage(ctx context.Context, messageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.transactions {
		if t.Type == model.TransactionTypeRefund && t.ReferenceID == messageID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedgerStore) List(ctx context.Context, filter model.TransactionFilter) ([]*model.Transaction, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Transaction
	for _, t := range f.transactions {
		if filter.MerchantID != nil && t.MerchantID != *filter.MerchantID {
			continue
		}
		out = append(out, t)
	}
	return out, int64(len(out)), nil
}

func (f *fakeLedgerStore) SumForMerchant(ctx context.Context, merchantID int64) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := decimal.Zero
	for _, t := range f.transactions {
		if t.MerchantID == merchantID {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func (f *fakeLedgerStore) countByType(txnType model.TransactionType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.transactions {
		if t.Type == txnType {
			n++
		}
	}
	return n
}

// fakeMessages implements MessageStore and ReconcileStore in memory
// with the same guarded-transition semantics as the real repository.
type fakeMessages struct {
	mu       sync.Mutex
	messages map[string]*model.Message
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{messages: make(map[string]*model.Message)}
}

func (f *fakeMessages) Create(ctx context.Context, msg *model.Message) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.CreatedAt = time.Now().UTC()
	cp := *msg
	f.messages[msg.ID] = &cp
	return msg, nil
}

func (f *fakeMessages) GetByID(ctx context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMessages) GetForMerchant(ctx context.Context, id string, merchantID int64) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok || m.MerchantID != merchantID {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMessages) GetByExternalID(ctx context.Context, externalID string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ExternalID == externalID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeMessages) MarkSent(ctx context.Context, id string, externalID string, sentAt time.Time) (bool, error) {
	return f.TransitionStatus(ctx, id,
		[]model.MessageStatus{model.MessageStatusQueued}, model.MessageStatusSent,
		map[string]interface{}{"external_id": externalID, "sent_at": sentAt})
}

func (f *fakeMessages) TransitionStatus(ctx context.Context, id string, from []model.MessageStatus, to model.MessageStatus, fields map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, s := range from {
		if m.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	m.Status = to
	for k, v := range fields {
		switch k {
		case "external_id":
			m.ExternalID = v.(string)
		case "error_code":
			m.ErrorCode = v.(string)
		case "error_message":
			m.ErrorMessage = v.(string)
		case "sent_at":
			t := v.(time.Time)
			m.SentAt = &t
		case "delivered_at":
			t := v.(time.Time)
			m.DeliveredAt = &t
		}
	}
	return true, nil
}

func (f *fakeMessages) List(ctx context.Context, filter model.MessageFilter) ([]*model.Message, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Message
	for _, m := range f.messages {
		if filter.MerchantID != nil && m.MerchantID != *filter.MerchantID {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func (f *fakeMessages) statusOf(id string) model.MessageStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[id].Status
}

type fakePublisher struct {
	mu        sync.Mutex
	published []DispatchJob
	fail      bool
}

func (f *fakePublisher) PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error) {
	if f.fail {
		return "", errors.New("stream unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, data.(DispatchJob))
	return "stream-id", nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type fakeRichChecker struct {
	compatible bool
	err        error
}

func (f *fakeRichChecker) IsCompatible(ctx context.Context, countryCode, phoneNumber string) (bool, error) {
	return f.compatible, f.err
}
