package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DeliveryStatus is the carrier-side state of an accepted message.
type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
	StatusPending   DeliveryStatus = "pending"
)

// SendRequest is what the platform's mock adapter posts to us.
type SendRequest struct {
	MessageID   string `json:"message_id" binding:"required"`
	Destination string `json:"destination" binding:"required"`
	Content     string `json:"content" binding:"required"`
}

// SendResponse acknowledges acceptance; delivery comes later over the
// webhook, like a real carrier.
type SendResponse struct {
	ExternalID string         `json:"external_id"`
	Status     DeliveryStatus `json:"status"`
	CarrierID  string         `json:"carrier_id"`
	AcceptedAt time.Time      `json:"accepted_at"`
}

// StatusResponse answers polled status checks.
type StatusResponse struct {
	ExternalID  string         `json:"external_id"`
	Status      DeliveryStatus `json:"status"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
	ErrorCode   string         `json:"error_code,omitempty"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status       string    `json:"status"`
	CarrierID    string    `json:"carrier_id"`
	Timestamp    time.Time `json:"timestamp"`
	DeliveryRate float64   `json:"delivery_rate"`
}

type callbackPayload struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	ErrorCode  string `json:"error_code,omitempty"`
}

// SandboxCarrier simulates an upstream carrier: it accepts sends,
// waits a randomized latency and posts a signed delivery receipt back
// to the platform webhook.
type SandboxCarrier struct {
	mu           sync.Mutex
	deliveryRate float64
	minDelay     time.Duration
	maxDelay     time.Duration
	carrierID    string
	webhookURL   string
	webhookToken string
	rng          *rand.Rand
	statuses     map[string]*StatusResponse
	client       *http.Client
}

func NewSandboxCarrier(deliveryRate float64, minDelay, maxDelay time.Duration, webhookURL, webhookToken string) *SandboxCarrier {
	return &SandboxCarrier{
		deliveryRate: deliveryRate,
		minDelay:     minDelay,
		maxDelay:     maxDelay,
		carrierID:    "SANDBOX_" + uuid.New().String()[:8],
		webhookURL:   webhookURL,
		webhookToken: webhookToken,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		statuses:     make(map[string]*StatusResponse),
		client:       &http.Client{Timeout: 5 * time.Second},
	}
}

// Accept registers the message and schedules its delivery receipt.
func (s *SandboxCarrier) Accept(req *SendRequest) *SendResponse {
	externalID := uuid.New().String()

	s.mu.Lock()
	s.statuses[externalID] = &StatusResponse{ExternalID: externalID, Status: StatusPending}
	s.mu.Unlock()

	go s.deliverLater(externalID, req)

	return &SendResponse{
		ExternalID: externalID,
		Status:     StatusPending,
		CarrierID:  s.carrierID,
		AcceptedAt: time.Now(),
	}
}

func (s *SandboxCarrier) deliverLater(externalID string, req *SendRequest) {
	time.Sleep(s.randomDelay())

	payload := callbackPayload{ExternalID: externalID}

	s.mu.Lock()
	status := s.statuses[externalID]
	if s.rng.Float64() < s.deliveryRate {
		now := time.Now()
		status.Status = StatusDelivered
		status.DeliveredAt = &now
		payload.Status = string(StatusDelivered)
	} else {
		status.Status = StatusFailed
		status.ErrorCode = s.randomErrorCode()
		payload.Status = string(StatusFailed)
		payload.ErrorCode = status.ErrorCode
	}
	s.mu.Unlock()

	if payload.Status == string(StatusDelivered) {
		log.Info().
			Str("external_id", externalID).
			Str("destination", req.Destination).
			Msg("message delivered")
	} else {
		log.Warn().
			Str("external_id", externalID).
			Str("destination", req.Destination).
			Str("error_code", payload.ErrorCode).
			Msg("message delivery failed")
	}

	s.postReceipt(payload)
}

// postReceipt sends the delivery receipt to the platform, retrying a
// couple of times the way carriers redeliver webhooks.
func (s *SandboxCarrier) postReceipt(payload callbackPayload) {
	if s.webhookURL == "" {
		return
	}

	body, _ := json.Marshal(payload)
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			log.Error().Err(err).Msg("failed building receipt request")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Mock-Token", s.webhookToken)

		resp, err := s.client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < 500 {
				log.Info().
					Str("external_id", payload.ExternalID).
					Int("status", resp.StatusCode).
					Msg("receipt posted")
				return
			}
		}

		log.Warn().
			Str("external_id", payload.ExternalID).
			Int("attempt", attempt).
			Msg("receipt post failed, retrying")
		time.Sleep(time.Duration(attempt) * time.Second)
	}
}

func (s *SandboxCarrier) randomDelay() time.Duration {
	delta := s.maxDelay - s.minDelay
	if delta <= 0 {
		return s.minDelay
	}
	return s.minDelay + time.Duration(s.rng.Int63n(int64(delta)))
}

func (s *SandboxCarrier) randomErrorCode() string {
	errorCodes := []string{
		"INVALID_NUMBER",
		"NETWORK_ERROR",
		"TIMEOUT",
		"BLOCKED",
		"CARRIER_REJECTED",
	}
	return errorCodes[s.rng.Intn(len(errorCodes))]
}

// Handler wires the sandbox carrier into gin routes.
type Handler struct {
	carrier *SandboxCarrier
}

func NewHandler(carrier *SandboxCarrier) *Handler {
	return &Handler{carrier: carrier}
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	log.Info().
		Str("message_id", req.MessageID).
		Str("destination", req.Destination).
		Msg("Received send request")

	c.JSON(http.StatusAccepted, h.carrier.Accept(&req))
}

func (h *Handler) GetStatus(c *gin.Context) {
	externalID := c.Param("external_id")

	h.carrier.mu.Lock()
	status, ok := h.carrier.statuses[externalID]
	h.carrier.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown external_id"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:       "healthy",
		CarrierID:    h.carrier.carrierID,
		Timestamp:    time.Now(),
		DeliveryRate: h.carrier.deliveryRate,
	})
}

// UpdateConfig changes the delivery rate at runtime so failure and
// refund paths can be exercised without restarting.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var cfg struct {
		DeliveryRate *float64 `json:"delivery_rate"`
	}

	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if cfg.DeliveryRate != nil && *cfg.DeliveryRate >= 0 && *cfg.DeliveryRate <= 1.0 {
		h.carrier.mu.Lock()
		h.carrier.deliveryRate = *cfg.DeliveryRate
		h.carrier.mu.Unlock()
		log.Info().Float64("rate", *cfg.DeliveryRate).Msg("Updated delivery rate")
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Configuration updated",
		"delivery_rate": h.carrier.deliveryRate,
	})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/messages", handler.SendMessage)
		v1.GET("/messages/:external_id/status", handler.GetStatus)
		v1.GET("/health", handler.HealthCheck)
		v1.PUT("/config", handler.UpdateConfig)
	}

	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8081")
	deliveryRate := getEnvFloat("DELIVERY_RATE", 1)
	minDelay := getEnvDuration("MIN_DELAY", 500*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 3*time.Second)
	webhookURL := getEnv("PLATFORM_WEBHOOK_URL", "http://localhost:8080/api/v1/webhooks/mock")
	webhookToken := getEnv("MOCK_WEBHOOK_TOKEN", "mock-secret")

	log.Info().
		Str("port", port).
		Float64("delivery_rate", deliveryRate).
		Str("webhook_url", webhookURL).
		Msg("Starting sandbox carrier")

	carrier := NewSandboxCarrier(deliveryRate, minDelay, maxDelay, webhookURL, webhookToken)
	handler := NewHandler(carrier)
	router := SetupRouter(handler)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
