package providers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/pkg/logger"
)

// ZenviaConfig holds credentials for the Zenvia adapter.
type ZenviaConfig struct {
	APIToken     string
	WebhookToken string // static token Zenvia echoes on callbacks
	From         string
	BaseURL      string // default https://api.zenvia.com
	Timeout      time.Duration
}

// Zenvia is the preferred route for Brazilian destinations. JSON REST
// API with a static API token header; callbacks carry the same style of
// static token rather than a computed signature.
type Zenvia struct {
	cfg  ZenviaConfig
	rest *restClient
}

func NewZenvia(cfg ZenviaConfig) *Zenvia {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.zenvia.com"
	}
	return &Zenvia{cfg: cfg, rest: newRESTClient(cfg.Timeout)}
}

func (z *Zenvia) Name() string            { return "zenvia" }
func (z *Zenvia) Type() model.ChannelType { return model.ChannelTypeSMS }

type zenviaSendRequest struct {
	From     string             `json:"from"`
	To       string             `json:"to"`
	Contents []zenviaContent    `json:"contents"`
}

type zenviaContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type zenviaSendResponse struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (z *Zenvia) Send(ctx context.Context, destination, content string, opts SendOptions) (*SendResult, error) {
	from := opts.From
	if from == "" {
		from = z.cfg.From
	}
	payload, err := json.Marshal(zenviaSendRequest{
		From: from,
		To:   destination,
		Contents: []zenviaContent{
			{Type: "text", Text: content},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode zenvia request: %w", err)
	}

	status, body, err := z.rest.do(ctx, "POST", z.cfg.BaseURL+"/v2/channels/sms/messages",
		"application/json", payload, header{"X-API-TOKEN", z.cfg.APIToken})
	if err != nil {
		return nil, err
	}

	var resp zenviaSendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode zenvia response: %w", err)
	}

	if status >= 400 {
		logger.Warn("zenvia rejected send", "status", status, "code", resp.Code, "message", resp.Message)
		return &SendResult{
			Success:      false,
			Status:       model.MessageStatusFailed,
			ErrorCode:    resp.Code,
			ErrorMessage: resp.Message,
		}, nil
	}

	return &SendResult{
		Success:    true,
		ExternalID: resp.ID,
		Status:     model.MessageStatusSent,
	}, nil
}

func (z *Zenvia) SendBulk(ctx context.Context, items []BulkItem) []*SendResult {
	return sequentialBulk(ctx, z, items)
}

func (z *Zenvia) GetStatus(ctx context.Context, externalID string) (*StatusResult, error) {
	endpoint := fmt.Sprintf("%s/v2/channels/sms/messages/%s", z.cfg.BaseURL, externalID)
	status, body, err := z.rest.do(ctx, "GET", endpoint, "", nil, header{"X-API-TOKEN", z.cfg.APIToken})
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("zenvia status lookup returned %d", status)
	}

	var resp struct {
		MessageStatus struct {
			Code string `json:"code"`
		} `json:"messageStatus"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode zenvia status: %w", err)
	}
	return &StatusResult{Status: zenviaStatus(resp.MessageStatus.Code)}, nil
}

func (z *Zenvia) ValidateNumber(ctx context.Context, phoneNumber string) (*NumberInfo, error) {
	return syntacticNumberCheck(phoneNumber), nil
}

// GetBalance is not exposed by this upstream.
func (z *Zenvia) GetBalance(ctx context.Context) (*Balance, error) {
	return nil, ErrUnsupportedOperation
}

type zenviaCallback struct {
	MessageID     string `json:"messageId"`
	MessageStatus struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Timestamp   string `json:"timestamp"`
	} `json:"messageStatus"`
}

// ParseCallback requires the X-Zenvia-Token header to match the
// configured webhook token.
func (z *Zenvia) ParseCallback(body []byte, headers map[string]string) (*model.ProviderEvent, error) {
	token := headerValue(headers, "X-Zenvia-Token")
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(z.cfg.WebhookToken)) != 1 {
		return nil, ErrInvalidSignature
	}

	var cb zenviaCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("parse zenvia callback: %w", err)
	}
	if cb.MessageID == "" {
		return nil, fmt.Errorf("zenvia callback missing messageId")
	}

	occurred := time.Now().UTC()
	if ts, err := time.Parse(time.RFC3339, cb.MessageStatus.Timestamp); err == nil {
		occurred = ts
	}

	event := &model.ProviderEvent{
		Provider:     z.Name(),
		ExternalID:   cb.MessageID,
		Status:       zenviaStatus(cb.MessageStatus.Code),
		ErrorMessage: cb.MessageStatus.Description,
		OccurredAt:   occurred,
	}
	if event.Status == model.MessageStatusFailed {
		event.ErrorCode = cb.MessageStatus.Code
	}
	return event, nil
}

func zenviaStatus(code string) model.MessageStatus {
	switch code {
	case "DELIVERED":
		return model.MessageStatusDelivered
	case "SENT", "DISPATCHED":
		return model.MessageStatusSent
	case "NOT_DELIVERED", "REJECTED", "ERROR":
		return model.MessageStatusFailed
	default:
		return model.MessageStatusSent
	}
}
