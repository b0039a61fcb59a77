package providers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sakaloan5-create/sms-platform/internal/model"
)

// MockConfig tunes the mock's behavior. FailureRate is the fraction of
// sends rejected up front; DeliveryDelay is how long after a successful
// send the delivered event fires.
type MockConfig struct {
	Name          string
	ChannelType   model.ChannelType
	FailureRate   float64
	DeliveryDelay time.Duration
	WebhookToken  string
}

// EventSink receives the simulated delivery receipts. Wired to the same
// reconciliation entry point real webhooks hit, so the full lifecycle is
// exercisable without an upstream account.
type EventSink func(event model.ProviderEvent)

// Mock simulates a carrier in tests and local runs. Accepted messages
// transition to delivered after the configured delay via the sink.
type Mock struct {
	cfg  MockConfig
	sink EventSink

	mu   sync.Mutex
	rng  *rand.Rand
	sent map[string]model.MessageStatus
}

func NewMock(cfg MockConfig, sink EventSink) *Mock {
	if cfg.Name == "" {
		cfg.Name = "mock"
	}
	if cfg.ChannelType == "" {
		cfg.ChannelType = model.ChannelTypeSMS
	}
	if cfg.DeliveryDelay <= 0 {
		cfg.DeliveryDelay = 50 * time.Millisecond
	}
	return &Mock{
		cfg:  cfg,
		sink: sink,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		sent: make(map[string]model.MessageStatus),
	}
}

func (m *Mock) Name() string            { return m.cfg.Name }
func (m *Mock) Type() model.ChannelType { return m.cfg.ChannelType }

func (m *Mock) Send(ctx context.Context, destination, content string, opts SendOptions) (*SendResult, error) {
	if destination == "" || content == "" {
		return &SendResult{
			Success:      false,
			Status:       model.MessageStatusFailed,
			ErrorCode:    "INVALID_REQUEST",
			ErrorMessage: "destination and content are required",
		}, nil
	}

	m.mu.Lock()
	fail := m.rng.Float64() < m.cfg.FailureRate
	m.mu.Unlock()
	if fail {
		return &SendResult{
			Success:      false,
			Status:       model.MessageStatusFailed,
			ErrorCode:    "CARRIER_REJECTED",
			ErrorMessage: "simulated carrier rejection",
		}, nil
	}

	externalID := uuid.NewString()
	m.mu.Lock()
	m.sent[externalID] = model.MessageStatusSent
	m.mu.Unlock()

	if m.sink != nil {
		delay := m.cfg.DeliveryDelay
		go func() {
			time.Sleep(delay)
			m.mu.Lock()
			m.sent[externalID] = model.MessageStatusDelivered
			m.mu.Unlock()
			m.sink(model.ProviderEvent{
				Provider:   m.cfg.Name,
				ExternalID: externalID,
				Status:     model.MessageStatusDelivered,
				OccurredAt: time.Now().UTC(),
			})
		}()
	}

	return &SendResult{Success: true, ExternalID: externalID, Status: model.MessageStatusSent}, nil
}

func (m *Mock) SendBulk(ctx context.Context, items []BulkItem) []*SendResult {
	return sequentialBulk(ctx, m, items)
}

func (m *Mock) GetStatus(ctx context.Context, externalID string) (*StatusResult, error) {
	m.mu.Lock()
	status, ok := m.sent[externalID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown external id %s", externalID)
	}
	return &StatusResult{Status: status}, nil
}

func (m *Mock) ValidateNumber(ctx context.Context, phoneNumber string) (*NumberInfo, error) {
	return syntacticNumberCheck(phoneNumber), nil
}

func (m *Mock) GetBalance(ctx context.Context) (*Balance, error) {
	return &Balance{Amount: "9999.00", Currency: "USD"}, nil
}

func (m *Mock) IsCompatible(ctx context.Context, phoneNumber string) (bool, error) {
	return m.cfg.ChannelType == model.ChannelTypeRCS, nil
}

func (m *Mock) GetCapabilities(ctx context.Context, phoneNumber string) (*Capabilities, error) {
	if m.cfg.ChannelType != model.ChannelTypeRCS {
		return &Capabilities{RCSEnabled: false}, nil
	}
	return &Capabilities{RCSEnabled: true, Features: []string{"richCard", "carousel"}}, nil
}

func (m *Mock) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	return "mock-media-" + uuid.NewString(), nil
}

func (m *Mock) SendRich(ctx context.Context, destination string, msg model.RichMessage, opts SendOptions) (*SendResult, error) {
	return m.Send(ctx, destination, msg.PlainText(), opts)
}

type mockCallback struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	ErrorCode  string `json:"error_code"`
}

// ParseCallback accepts JSON bodies authenticated by a static token in
// the X-Mock-Token header, mirroring how the sandbox posts receipts.
func (m *Mock) ParseCallback(body []byte, headers map[string]string) (*model.ProviderEvent, error) {
	token := headerValue(headers, "X-Mock-Token")
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(m.cfg.WebhookToken)) != 1 {
		return nil, ErrInvalidSignature
	}

	var cb mockCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("parse mock callback: %w", err)
	}
	if cb.ExternalID == "" {
		return nil, fmt.Errorf("mock callback missing external_id")
	}
	return &model.ProviderEvent{
		Provider:   m.cfg.Name,
		ExternalID: cb.ExternalID,
		Status:     model.MessageStatus(cb.Status),
		ErrorCode:  cb.ErrorCode,
		OccurredAt: time.Now().UTC(),
	}, nil
}
