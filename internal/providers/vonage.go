package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/pkg/logger"
)

// VonageConfig holds credentials for the Vonage adapter.
type VonageConfig struct {
	APIKey        string
	APISecret     string
	SignatureKey  string // shared secret for webhook signatures
	From          string
	BaseURL       string // default https://rest.nexmo.com
	Timeout       time.Duration
}

// Vonage is the preferred route for European destinations. JSON REST
// API; delivery receipts arrive as JSON bodies carrying a hex
// HMAC-SHA256 of the raw body in the X-Vonage-Signature header.
type Vonage struct {
	cfg  VonageConfig
	rest *restClient
}

func NewVonage(cfg VonageConfig) *Vonage {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://rest.nexmo.com"
	}
	return &Vonage{cfg: cfg, rest: newRESTClient(cfg.Timeout)}
}

func (v *Vonage) Name() string            { return "vonage" }
func (v *Vonage) Type() model.ChannelType { return model.ChannelTypeSMS }

type vonageSendResponse struct {
	Messages []struct {
		MessageID string `json:"message-id"`
		Status    string `json:"status"`
		ErrorText string `json:"error-text"`
	} `json:"messages"`
}

func (v *Vonage) Send(ctx context.Context, destination, content string, opts SendOptions) (*SendResult, error) {
	from := opts.From
	if from == "" {
		from = v.cfg.From
	}
	payload, err := json.Marshal(map[string]string{
		"api_key":           v.cfg.APIKey,
		"api_secret":        v.cfg.APISecret,
		"from":              from,
		"to":                destination,
		"text":              content,
		"client-ref":        opts.MessageID,
		"callback":          opts.CallbackURL,
		"status-report-req": "1",
	})
	if err != nil {
		return nil, fmt.Errorf("encode vonage request: %w", err)
	}

	status, body, err := v.rest.do(ctx, "POST", v.cfg.BaseURL+"/sms/json", "application/json", payload)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("vonage returned %d", status)
	}

	var resp vonageSendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode vonage response: %w", err)
	}
	if len(resp.Messages) == 0 {
		return nil, fmt.Errorf("vonage response had no message parts")
	}

	// Status "0" means accepted; anything else is a documented reject.
	part := resp.Messages[0]
	if part.Status != "0" {
		logger.Warn("vonage rejected send", "code", part.Status, "error", part.ErrorText)
		return &SendResult{
			Success:      false,
			Status:       model.MessageStatusFailed,
			ErrorCode:    part.Status,
			ErrorMessage: part.ErrorText,
		}, nil
	}

	return &SendResult{
		Success:    true,
		ExternalID: part.MessageID,
		Status:     model.MessageStatusSent,
	}, nil
}

func (v *Vonage) SendBulk(ctx context.Context, items []BulkItem) []*SendResult {
	return sequentialBulk(ctx, v, items)
}

// GetStatus is webhook-only on this upstream; there is no poll API for
// individual message state.
func (v *Vonage) GetStatus(ctx context.Context, externalID string) (*StatusResult, error) {
	return nil, ErrUnsupportedOperation
}

func (v *Vonage) ValidateNumber(ctx context.Context, phoneNumber string) (*NumberInfo, error) {
	endpoint := fmt.Sprintf("%s/ni/basic/json?api_key=%s&api_secret=%s&number=%s",
		v.cfg.BaseURL, v.cfg.APIKey, v.cfg.APISecret, phoneNumber)
	status, body, err := v.rest.do(ctx, "GET", endpoint, "", nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("vonage number insight returned %d", status)
	}

	var resp struct {
		Status      int    `json:"status"`
		CountryCode string `json:"country_code"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode vonage number insight: %w", err)
	}
	return &NumberInfo{
		Valid:       resp.Status == 0,
		CountryCode: resp.CountryCode,
	}, nil
}

func (v *Vonage) GetBalance(ctx context.Context) (*Balance, error) {
	endpoint := fmt.Sprintf("%s/account/get-balance?api_key=%s&api_secret=%s", v.cfg.BaseURL, v.cfg.APIKey, v.cfg.APISecret)
	status, body, err := v.rest.do(ctx, "GET", endpoint, "", nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("vonage balance lookup returned %d", status)
	}
	var resp struct {
		Value float64 `json:"value"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode vonage balance: %w", err)
	}
	return &Balance{Amount: fmt.Sprintf("%.4f", resp.Value), Currency: "EUR"}, nil
}

type vonageCallback struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	ErrCode   string `json:"err-code"`
	Timestamp string `json:"message-timestamp"`
}

// ParseCallback checks the X-Vonage-Signature header, a hex HMAC-SHA256
// of the raw request body keyed by the shared signature secret.
func (v *Vonage) ParseCallback(body []byte, headers map[string]string) (*model.ProviderEvent, error) {
	sig := headerValue(headers, "X-Vonage-Signature")
	if sig == "" {
		return nil, ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(v.cfg.SignatureKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) != 1 {
		return nil, ErrInvalidSignature
	}

	var cb vonageCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("parse vonage callback: %w", err)
	}
	if cb.MessageID == "" {
		return nil, fmt.Errorf("vonage callback missing messageId")
	}

	occurred := time.Now().UTC()
	if ts, err := time.Parse("2006-01-02 15:04:05", cb.Timestamp); err == nil {
		occurred = ts
	}

	return &model.ProviderEvent{
		Provider:   v.Name(),
		ExternalID: cb.MessageID,
		Status:     vonageStatus(cb.Status),
		ErrorCode:  cb.ErrCode,
		OccurredAt: occurred,
	}, nil
}

func vonageStatus(s string) model.MessageStatus {
	switch s {
	case "delivered":
		return model.MessageStatusDelivered
	case "accepted", "buffered", "submitted":
		return model.MessageStatusSent
	case "expired", "failed", "rejected", "unknown":
		return model.MessageStatusFailed
	default:
		return model.MessageStatusSent
	}
}
