package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/internal/processor"
	"github.com/sakaloan5-create/sms-platform/internal/providers"
	"github.com/sakaloan5-create/sms-platform/internal/queue"
	"github.com/sakaloan5-create/sms-platform/internal/repository"
	"github.com/sakaloan5-create/sms-platform/internal/services"
	"github.com/sakaloan5-create/sms-platform/pkg/pg"
	"github.com/sakaloan5-create/sms-platform/pkg/redis"
	"github.com/sakaloan5-create/sms-platform/test/fixtures"
	"github.com/sakaloan5-create/sms-platform/test/helpers"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestEnvironment struct {
	DB              *pg.DB
	Redis           *miniredis.Miniredis
	RedisAdapter    redis.RedisAdapter
	Queue           *queue.Queue
	MerchantRepo    *repository.MerchantRepository
	MessageRepo     *repository.MessageRepository
	TransactionRepo *repository.TransactionRepository
	ChannelRepo     *repository.ChannelRepository
	Registry        *providers.Registry
	LedgerService   *services.LedgerService
	DispatchService *services.DispatchService
	Reconcile       *services.ReconcileService
	Processor       *processor.DispatchProcessor
}

// setupE2EEnvironment builds the whole dispatch path on sqlite and
// miniredis with a mock carrier wired into reconciliation, so a send
// can be followed from debit to delivery receipt in-process.
func setupE2EEnvironment(t *testing.T, mockFailureRate float64) *TestEnvironment {
	db := helpers.SetupTestDB(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)

	// Use unique connection name per test to avoid global adapter caching issues
	connName := fmt.Sprintf("test-%d", time.Now().UnixNano())
	redisAdapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	q, err := queue.NewQueue(redisAdapter, queue.QueueConfig{
		Name:              "test:dispatch",
		ConsumerGroup:     "test-group",
		ConsumerName:      "test-consumer",
		MaxRetries:        3,
		VisibilityTimeout: 5 * time.Second,
		PollInterval:      100 * time.Millisecond,
		BatchSize:         10,
		MaxLen:            1000,
		EnableDLQ:         true,
	})
	require.NoError(t, err)

	merchantRepo := repository.NewMerchantRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	channelRepo := repository.NewChannelRepository(db)
	pricingRepo := repository.NewPricingRepository(db)

	ledgerService := services.NewLedgerService(db, merchantRepo, transactionRepo)
	reconcileService := services.NewReconcileService(messageRepo, ledgerService)

	registry := providers.NewRegistry()
	registry.Register(providers.NewMock(providers.MockConfig{
		Name:          "mock",
		ChannelType:   model.ChannelTypeSMS,
		FailureRate:   mockFailureRate,
		DeliveryDelay: 20 * time.Millisecond,
		WebhookToken:  "test-hook",
	}, func(event model.ProviderEvent) {
		_ = reconcileService.ApplyProviderEvent(context.Background(), event)
	}))

	quoteService := services.NewQuoteService(pricingRepo, services.QuoteConfig{
		DefaultSMSPrice: decimal.RequireFromString("0.01"),
	})
	channelService := services.NewChannelService(channelRepo)
	dispatchService := services.NewDispatchService(db, quoteService, channelService, ledgerService,
		messageRepo, providers.NewRichCompatibility(registry), q)

	idempotency := processor.NewIdempotencyService(redisAdapter, processor.DefaultIdempotencyConfig())
	proc := processor.NewDispatchProcessor(messageRepo, channelRepo, registry, ledgerService, idempotency)

	return &TestEnvironment{
		DB:              db,
		Redis:           mr,
		RedisAdapter:    redisAdapter,
		Queue:           q,
		MerchantRepo:    merchantRepo,
		MessageRepo:     messageRepo,
		TransactionRepo: transactionRepo,
		ChannelRepo:     channelRepo,
		Registry:        registry,
		LedgerService:   ledgerService,
		DispatchService: dispatchService,
		Reconcile:       reconcileService,
		Processor:       proc,
	}
}

func (env *TestEnvironment) Cleanup() {
	if env.Queue != nil {
		_ = env.Queue.Stop(5 * time.Second)
	}
	time.Sleep(100 * time.Millisecond)
	if env.Redis != nil {
		env.Redis.Close()
	}
}

func (env *TestEnvironment) seedMerchantAndChannel(t *testing.T) *model.Merchant {
	merchant := helpers.CreateTestMerchant(t, env.DB, fixtures.TestMerchantFunded)
	helpers.CreateTestChannel(t, env.DB, fixtures.NewTestChannel(0, "mock", model.ChannelTypeSMS, 1))
	return merchant
}

func (env *TestEnvironment) startConsuming(t *testing.T) {
	err := env.Queue.Consume(func(ctx context.Context, qMsg *queue.Message) error {
		return env.Processor.Process(ctx, qMsg)
	})
	require.NoError(t, err)
}

func TestE2E_SendDebitsAndEnqueues(t *testing.T) {
	env := setupE2EEnvironment(t, 0)
	defer env.Cleanup()

	ctx := context.Background()
	merchant := env.seedMerchantAndChannel(t)

	receipt, err := env.DispatchService.Send(ctx, fixtures.NewTestSendRequest(merchant.ID, "+14155550100", "e2e hello"))
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusQueued, receipt.Status)
	assert.True(t, receipt.Cost.Equal(decimal.RequireFromString("0.01")))

	balance, err := env.LedgerService.GetBalance(ctx, merchant.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("99.99")), "got %s", balance)

	stats, err := env.Queue.GetStats()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.TotalMessages, int64(1))
}

func TestE2E_InsufficientBalance(t *testing.T) {
	env := setupE2EEnvironment(t, 0)
	defer env.Cleanup()

	ctx := context.Background()
	broke := fixtures.TestMerchantLowBalance
	broke.Balance = decimal.Zero
	merchant := helpers.CreateTestMerchant(t, env.DB, broke)
	helpers.CreateTestChannel(t, env.DB, fixtures.NewTestChannel(0, "mock", model.ChannelTypeSMS, 1))

	receipt, err := env.DispatchService.Send(ctx, fixtures.NewTestSendRequest(merchant.ID, "+14155550100", "no funds"))
	assert.ErrorIs(t, err, services.ErrInsufficientBalance)
	assert.Nil(t, receipt)

	_, total, err := env.MessageRepo.List(ctx, model.MessageFilter{MerchantID: &merchant.ID})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestE2E_DeliveryLifecycle(t *testing.T) {
	env := setupE2EEnvironment(t, 0)
	defer env.Cleanup()

	ctx := context.Background()
	merchant := env.seedMerchantAndChannel(t)
	env.startConsuming(t)

	receipt, err := env.DispatchService.Send(ctx, fixtures.NewTestSendRequest(merchant.ID, "+14155550100", "lifecycle"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msg, err := env.MessageRepo.GetByID(ctx, receipt.MessageID)
		return err == nil && msg.Status == model.MessageStatusDelivered
	}, 5*time.Second, 50*time.Millisecond, "message never reached delivered")

	msg, err := env.MessageRepo.GetByID(ctx, receipt.MessageID)
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ExternalID)
	assert.NotNil(t, msg.DeliveredAt)

	// Delivery costs exactly one debit, never a refund.
	balance, err := env.LedgerService.GetBalance(ctx, merchant.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("99.99")), "got %s", balance)

	txns, _, err := env.TransactionRepo.List(ctx, model.TransactionFilter{
		MerchantID: &merchant.ID,
		Types:      []model.TransactionType{model.TransactionTypeRefund},
	})
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestE2E_FailedDeliveryRefundsNetZero(t *testing.T) {
	env := setupE2EEnvironment(t, 1.0)
	defer env.Cleanup()

	ctx := context.Background()
	merchant := env.seedMerchantAndChannel(t)
	env.startConsuming(t)

	receipt, err := env.DispatchService.Send(ctx, fixtures.NewTestSendRequest(merchant.ID, "+14155550100", "doomed"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msg, err := env.MessageRepo.GetByID(ctx, receipt.MessageID)
		return err == nil && msg.Status == model.MessageStatusFailed
	}, 5*time.Second, 50*time.Millisecond, "message never failed")

	// Debit and refund cancel out.
	require.Eventually(t, func() bool {
		balance, err := env.LedgerService.GetBalance(ctx, merchant.ID)
		return err == nil && balance.Equal(fixtures.TestMerchantFunded.Balance)
	}, 5*time.Second, 50*time.Millisecond, "balance never restored")

	txns, _, err := env.TransactionRepo.List(ctx, model.TransactionFilter{MerchantID: &merchant.ID})
	require.NoError(t, err)
	assert.Len(t, txns, 2)

	consistent, err := env.LedgerService.VerifyLedger(ctx, merchant.ID)
	require.NoError(t, err)
	assert.True(t, consistent)
}

func TestE2E_CancelBeforeDispatchRefunds(t *testing.T) {
	env := setupE2EEnvironment(t, 0)
	defer env.Cleanup()

	ctx := context.Background()
	merchant := env.seedMerchantAndChannel(t)
	// No consumer running, the message stays queued.

	receipt, err := env.DispatchService.Send(ctx, fixtures.NewTestSendRequest(merchant.ID, "+14155550100", "changed my mind"))
	require.NoError(t, err)

	cancelled, err := env.DispatchService.Cancel(ctx, merchant.ID, receipt.MessageID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusCancelled, cancelled.Status)

	balance, err := env.LedgerService.GetBalance(ctx, merchant.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(fixtures.TestMerchantFunded.Balance), "got %s", balance)

	// The stale queue entry must not dispatch a cancelled message.
	env.startConsuming(t)
	time.Sleep(500 * time.Millisecond)

	msg, err := env.MessageRepo.GetByID(ctx, receipt.MessageID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusCancelled, msg.Status)
}

func TestE2E_WebhookReconciliation(t *testing.T) {
	env := setupE2EEnvironment(t, 0)
	defer env.Cleanup()

	ctx := context.Background()
	merchant := env.seedMerchantAndChannel(t)

	receipt, err := env.DispatchService.Send(ctx, fixtures.NewTestSendRequest(merchant.ID, "+14155550100", "webhook path"))
	require.NoError(t, err)

	// Simulate the dispatcher having handed the message to a carrier.
	moved, err := env.MessageRepo.MarkSent(ctx, receipt.MessageID, "ext-e2e-1", time.Now())
	require.NoError(t, err)
	require.True(t, moved)

	err = env.Reconcile.ApplyProviderEvent(ctx, model.ProviderEvent{
		Provider:   "mock",
		ExternalID: "ext-e2e-1",
		Status:     model.MessageStatusDelivered,
		OccurredAt: time.Now(),
	})
	require.NoError(t, err)

	msg, err := env.MessageRepo.GetByID(ctx, receipt.MessageID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusDelivered, msg.Status)

	// Replay is a silent no-op.
	err = env.Reconcile.ApplyProviderEvent(ctx, model.ProviderEvent{
		Provider:   "mock",
		ExternalID: "ext-e2e-1",
		Status:     model.MessageStatusDelivered,
		OccurredAt: time.Now(),
	})
	require.NoError(t, err)
}

func TestE2E_UnknownMessageLookupsReturnNotFound(t *testing.T) {
	env := setupE2EEnvironment(t, 0)
	defer env.Cleanup()

	ctx := context.Background()
	merchant := env.seedMerchantAndChannel(t)

	_, err := env.DispatchService.GetStatus(ctx, merchant.ID, "no-such-message")
	assert.ErrorIs(t, err, services.ErrMessageNotFound)

	_, err = env.DispatchService.Cancel(ctx, merchant.ID, "no-such-message")
	assert.ErrorIs(t, err, services.ErrMessageNotFound)

	err = env.Reconcile.ApplyProviderEvent(ctx, model.ProviderEvent{
		Provider:   "mock",
		ExternalID: "no-such-external-id",
		Status:     model.MessageStatusDelivered,
		OccurredAt: time.Now(),
	})
	assert.ErrorIs(t, err, services.ErrMessageNotFound)

	// A message belonging to another tenant is indistinguishable from a
	// missing one.
	receipt, err := env.DispatchService.Send(ctx, fixtures.NewTestSendRequest(merchant.ID, "+14155550100", "scoped"))
	require.NoError(t, err)
	_, err = env.DispatchService.GetStatus(ctx, merchant.ID+1, receipt.MessageID)
	assert.ErrorIs(t, err, services.ErrMessageNotFound)
}
