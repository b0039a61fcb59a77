package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/pkg/logger"
)

// TwilioConfig holds credentials and endpoints for the Twilio adapter.
type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	From        string
	BaseURL     string // default https://api.twilio.com
	CallbackURL string // public URL Twilio POSTs status callbacks to
	Timeout     time.Duration
}

// Twilio is the default SMS route. Form-encoded REST API with basic
// auth; delivery receipts arrive as form POSTs signed with HMAC-SHA1
// over the full callback URL plus the sorted body parameters.
type Twilio struct {
	cfg  TwilioConfig
	rest *restClient
}

func NewTwilio(cfg TwilioConfig) *Twilio {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	return &Twilio{cfg: cfg, rest: newRESTClient(cfg.Timeout)}
}

func (t *Twilio) Name() string            { return "twilio" }
func (t *Twilio) Type() model.ChannelType { return model.ChannelTypeSMS }

type twilioMessageResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	Code         int    `json:"code"`    // error payloads
	Message      string `json:"message"` // error payloads
}

func (t *Twilio) Send(ctx context.Context, destination, content string, opts SendOptions) (*SendResult, error) {
	form := url.Values{}
	form.Set("To", destination)
	form.Set("Body", content)
	if opts.From != "" {
		form.Set("From", opts.From)
	} else {
		form.Set("From", t.cfg.From)
	}
	if opts.CallbackURL != "" {
		form.Set("StatusCallback", opts.CallbackURL)
	} else if t.cfg.CallbackURL != "" {
		form.Set("StatusCallback", t.cfg.CallbackURL)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.cfg.BaseURL, t.cfg.AccountSID)
	status, body, err := t.rest.do(ctx, "POST", endpoint, "application/x-www-form-urlencoded",
		[]byte(form.Encode()), header{"Authorization", t.basicAuth()})
	if err != nil {
		return nil, err
	}

	var resp twilioMessageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode twilio response: %w", err)
	}

	if status >= 400 {
		logger.Warn("twilio rejected send", "status", status, "code", resp.Code, "message", resp.Message)
		return &SendResult{
			Success:      false,
			Status:       model.MessageStatusFailed,
			ErrorCode:    fmt.Sprintf("%d", resp.Code),
			ErrorMessage: resp.Message,
		}, nil
	}

	return &SendResult{
		Success:    true,
		ExternalID: resp.SID,
		Status:     model.MessageStatusSent,
	}, nil
}

func (t *Twilio) SendBulk(ctx context.Context, items []BulkItem) []*SendResult {
	return sequentialBulk(ctx, t, items)
}

func (t *Twilio) GetStatus(ctx context.Context, externalID string) (*StatusResult, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages/%s.json", t.cfg.BaseURL, t.cfg.AccountSID, externalID)
	status, body, err := t.rest.do(ctx, "GET", endpoint, "", nil, header{"Authorization", t.basicAuth()})
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("twilio status lookup returned %d", status)
	}

	var resp twilioMessageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode twilio response: %w", err)
	}

	out := &StatusResult{Status: twilioStatus(resp.Status)}
	if resp.ErrorCode != nil {
		out.ErrorCode = fmt.Sprintf("%d", *resp.ErrorCode)
	}
	return out, nil
}

type twilioLookupResponse struct {
	PhoneNumber string `json:"phone_number"`
	CountryCode string `json:"country_code"`
	Carrier     struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"carrier"`
}

func (t *Twilio) ValidateNumber(ctx context.Context, phoneNumber string) (*NumberInfo, error) {
	endpoint := fmt.Sprintf("%s/v1/PhoneNumbers/%s?Type=carrier",
		strings.Replace(t.cfg.BaseURL, "api.twilio.com", "lookups.twilio.com", 1), url.PathEscape(phoneNumber))
	status, body, err := t.rest.do(ctx, "GET", endpoint, "", nil, header{"Authorization", t.basicAuth()})
	if err != nil {
		return nil, err
	}
	if status == 404 {
		return &NumberInfo{Valid: false}, nil
	}
	if status >= 400 {
		return nil, fmt.Errorf("twilio lookup returned %d", status)
	}

	var resp twilioLookupResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode twilio lookup: %w", err)
	}
	return &NumberInfo{
		Valid:       true,
		CountryCode: resp.CountryCode,
		NumberType:  resp.Carrier.Type,
		Carrier:     resp.Carrier.Name,
	}, nil
}

func (t *Twilio) GetBalance(ctx context.Context) (*Balance, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Balance.json", t.cfg.BaseURL, t.cfg.AccountSID)
	status, body, err := t.rest.do(ctx, "GET", endpoint, "", nil, header{"Authorization", t.basicAuth()})
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("twilio balance lookup returned %d", status)
	}
	var resp struct {
		Balance  string `json:"balance"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode twilio balance: %w", err)
	}
	return &Balance{Amount: resp.Balance, Currency: resp.Currency}, nil
}

// ParseCallback verifies the X-Twilio-Signature header: base64 HMAC-SHA1
// of the callback URL concatenated with each form parameter name+value
// in lexical order, keyed by the auth token.
func (t *Twilio) ParseCallback(body []byte, headers map[string]string) (*model.ProviderEvent, error) {
	sig := headerValue(headers, "X-Twilio-Signature")
	if sig == "" {
		return nil, ErrInvalidSignature
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse twilio callback body: %w", err)
	}

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(t.cfg.CallbackURL)
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(form.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(t.cfg.AuthToken))
	mac.Write([]byte(sb.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) != 1 {
		return nil, ErrInvalidSignature
	}

	event := &model.ProviderEvent{
		Provider:     t.Name(),
		ExternalID:   form.Get("MessageSid"),
		Status:       twilioStatus(form.Get("MessageStatus")),
		ErrorCode:    form.Get("ErrorCode"),
		ErrorMessage: form.Get("ErrorMessage"),
		OccurredAt:   time.Now().UTC(),
	}
	if event.ExternalID == "" {
		return nil, fmt.Errorf("twilio callback missing MessageSid")
	}
	return event, nil
}

func (t *Twilio) basicAuth() string {
	creds := base64.StdEncoding.EncodeToString([]byte(t.cfg.AccountSID + ":" + t.cfg.AuthToken))
	return "Basic " + creds
}

func twilioStatus(s string) model.MessageStatus {
	switch s {
	case "queued", "accepted", "scheduled":
		return model.MessageStatusQueued
	case "sending", "sent":
		return model.MessageStatusSent
	case "delivered", "read":
		return model.MessageStatusDelivered
	case "failed", "undelivered", "canceled":
		return model.MessageStatusFailed
	default:
		return model.MessageStatusSent
	}
}

func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
