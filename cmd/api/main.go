package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sakaloan5-create/sms-platform/internal/config"
	"github.com/sakaloan5-create/sms-platform/internal/handlers"
	"github.com/sakaloan5-create/sms-platform/internal/providers"
	"github.com/sakaloan5-create/sms-platform/internal/queue"
	"github.com/sakaloan5-create/sms-platform/internal/repository"
	"github.com/sakaloan5-create/sms-platform/internal/services"
	xhttp "github.com/sakaloan5-create/sms-platform/pkg/http"
	"github.com/sakaloan5-create/sms-platform/pkg/logger"
	"github.com/sakaloan5-create/sms-platform/pkg/pg"
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

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 5))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

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

	dispatchQueue, err := queue.NewQueue(redisAdap, queue.QueueConfig{
		Name:              config.Get().QueueName,
		ConsumerGroup:     config.Get().QueueConsumerGroup,
		ConsumerName:      config.Get().QueueConsumerName,
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

	messageRepo := repository.NewMessageRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	merchantRepo := repository.NewMerchantRepository(db)
	channelRepo := repository.NewChannelRepository(db)
	pricingRepo := repository.NewPricingRepository(db)

	registry := providers.NewRegistryFromConfig(config.Get(), nil)

	// services
	quoteService := services.NewQuoteService(pricingRepo, services.QuoteConfig{
		DefaultSMSPrice: mustDecimal(config.Get().BillingDefaultSMSPrice),
		RCSMultiplier:   mustDecimal(config.Get().BillingRCSMultiplier),
		DefaultCurrency: config.Get().BillingCurrency,
	})
	channelService := services.NewChannelService(channelRepo)
	ledgerService := services.NewLedgerService(db, merchantRepo, transactionRepo)
	dispatchService := services.NewDispatchService(db, quoteService, channelService, ledgerService,
		messageRepo, providers.NewRichCompatibility(registry), dispatchQueue)
	reconcileService := services.NewReconcileService(messageRepo, ledgerService)

	// v1 handlers
	auth := handlers.NewMerchantAuth(merchantRepo)
	dispatchHandler := handlers.NewDispatchHandler(dispatchService, auth)
	ledgerHandler := handlers.NewLedgerHandler(ledgerService, auth)
	webhookHandler := handlers.NewWebhookHandler(registry, reconcileService)
	numberHandler := handlers.NewNumberHandler(quoteService, providers.NewNumberValidation(registry), auth)
	healthHandler := handlers.NewHealthHandler()

	g := s.Router.Group("/api/v1")
	handlers.RegisterDispatchRoutes(g, dispatchHandler)
	handlers.RegisterLedgerRoutes(g, ledgerHandler)
	handlers.RegisterWebhookRoutes(g, webhookHandler)
	handlers.RegisterNumberRoutes(g, numberHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	select {
	case <-c:
		s.Shutdown()
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
