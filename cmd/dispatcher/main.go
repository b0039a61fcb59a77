package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sakaloan5-create/sms-platform/internal/config"
	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/internal/monitoring"
	"github.com/sakaloan5-create/sms-platform/internal/processor"
	"github.com/sakaloan5-create/sms-platform/internal/providers"
	"github.com/sakaloan5-create/sms-platform/internal/queue"
	"github.com/sakaloan5-create/sms-platform/internal/repository"
	"github.com/sakaloan5-create/sms-platform/internal/services"
	"github.com/sakaloan5-create/sms-platform/pkg/logger"
	"github.com/sakaloan5-create/sms-platform/pkg/pg"
	"github.com/sakaloan5-create/sms-platform/pkg/prom"
	"github.com/sakaloan5-create/sms-platform/pkg/redis"
	"github.com/shopspring/decimal"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	messageRepo := repository.NewMessageRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	merchantRepo := repository.NewMerchantRepository(db)
	channelRepo := repository.NewChannelRepository(db)

	ledgerService := services.NewLedgerService(db, merchantRepo, transactionRepo)
	reconcileService := services.NewReconcileService(messageRepo, ledgerService)

	// Mock providers deliver their simulated receipts straight into
	// reconciliation instead of over the wire.
	sink := func(event model.ProviderEvent) {
		if err := reconcileService.ApplyProviderEvent(context.Background(), event); err != nil {
			logger.Warn("mock delivery event dropped", "external_id", event.ExternalID, "error", err)
		}
	}
	registry := providers.NewRegistryFromConfig(config.Get(), sink)

	idempotencyConfig := processor.DefaultIdempotencyConfig()
	idempotencyService := processor.NewIdempotencyService(redisAdap, idempotencyConfig)

	service, err := processor.NewProcessorService(redisAdap)
	if err != nil {
		logger.Error("failed to create the processor", "error", err)
		return
	}
	service.RegisterProcessor(processor.NewDispatchProcessor(messageRepo, channelRepo, registry, ledgerService, idempotencyService))

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	go func() {
		prom.ListenAndServer(":9100", "/metrics")
	}()

	dispatchQueue, err := queue.NewQueue(redisAdap, queue.QueueConfig{
		Name:              config.Get().QueueName,
		ConsumerGroup:     config.Get().QueueConsumerGroup,
		ConsumerName:      config.Get().QueueConsumerName + "-monitor",
		MaxRetries:        config.Get().QueueMaxRetries,
		VisibilityTimeout: config.Get().QueueVisibilityTimeout,
		PollInterval:      config.Get().QueuePollInterval,
		BatchSize:         config.Get().QueueBatchSize,
		MaxLen:            config.Get().QueueMaxLen,
		EnableDLQ:         config.Get().QueueEnableDLQ,
	})
	if err != nil {
		logger.Error("failed creating queue", "error", err)
		return
	}

	monitor := monitoring.NewMonitor(monitoring.MonitorConfig{
		LowBalanceThreshold: mustDecimal(config.Get().BillingLowBalanceAlert),
	}, messageRepo, channelRepo, merchantRepo, dispatchQueue)
	monitor.Start()

	go func() {
		err := service.Start()
		if err != nil {
			logger.Error("failed to start processor", "error", err)
		}
	}()

	select {
	case <-c:
		monitor.Stop()
		service.Stop()
	}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		logger.Panic("invalid decimal in config", "value", s, "error", err)
	}
	return d
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
