package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sakaloan5-create/sms-platform/internal/model"
)

// SamsungRCSConfig holds credentials for the Samsung RCS adapter.
type SamsungRCSConfig struct {
	AppID         string
	AppSecret     string
	WebhookSecret string
	BaseURL       string // default https://rcs-api.samsung.com
	Timeout       time.Duration
}

// SamsungRCS routes rich messages through the Samsung RCS hub, preferred
// for East Asian destinations. Same semantic surface as the Google
// backend but a flat wire schema with its own status vocabulary.
type SamsungRCS struct {
	cfg  SamsungRCSConfig
	rest *restClient
}

func NewSamsungRCS(cfg SamsungRCSConfig) *SamsungRCS {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://rcs-api.samsung.com"
	}
	return &SamsungRCS{cfg: cfg, rest: newRESTClient(cfg.Timeout)}
}

func (s *SamsungRCS) Name() string            { return "samsung_rcs" }
func (s *SamsungRCS) Type() model.ChannelType { return model.ChannelTypeRCS }

func (s *SamsungRCS) authHeader() header {
	return header{"Authorization", "App " + s.cfg.AppID + ":" + s.cfg.AppSecret}
}

type samsungButton struct {
	Kind      string  `json:"kind"` // reply, link, call, map
	Label     string  `json:"label"`
	Payload   string  `json:"payload,omitempty"`
	Link      string  `json:"link,omitempty"`
	Number    string  `json:"number,omitempty"`
	Latitude  float64 `json:"lat,omitempty"`
	Longitude float64 `json:"lng,omitempty"`
}

type samsungCard struct {
	Headline string          `json:"headline"`
	Body     string          `json:"body,omitempty"`
	MediaRef string          `json:"mediaRef,omitempty"`
	Buttons  []samsungButton `json:"buttons,omitempty"`
}

type samsungSendRequest struct {
	AppID     string          `json:"appId"`
	Recipient string          `json:"recipient"`
	Format    string          `json:"format"` // text, media, card, slider
	Body      string          `json:"body,omitempty"`
	MediaRef  string          `json:"mediaRef,omitempty"`
	Cards     []samsungCard   `json:"cards,omitempty"`
	Buttons   []samsungButton `json:"buttons,omitempty"`
	ClientRef string          `json:"clientRef,omitempty"`
}

type samsungSendResponse struct {
	TID    string `json:"tid"`
	Result string `json:"result"`
	Reason string `json:"reason"`
}

func (s *SamsungRCS) Send(ctx context.Context, destination, content string, opts SendOptions) (*SendResult, error) {
	return s.SendRich(ctx, destination, model.RichMessage{Kind: model.RichKindText, Text: content}, opts)
}

func (s *SamsungRCS) SendBulk(ctx context.Context, items []BulkItem) []*SendResult {
	return sequentialBulk(ctx, s, items)
}

func (s *SamsungRCS) GetStatus(ctx context.Context, externalID string) (*StatusResult, error) {
	endpoint := fmt.Sprintf("%s/v2/messages/%s", s.cfg.BaseURL, externalID)
	status, body, err := s.rest.do(ctx, "GET", endpoint, "", nil, s.authHeader())
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("samsung status lookup returned %d", status)
	}
	var resp struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode samsung status: %w", err)
	}
	return &StatusResult{Status: samsungStatus(resp.State)}, nil
}

func (s *SamsungRCS) ValidateNumber(ctx context.Context, phoneNumber string) (*NumberInfo, error) {
	return syntacticNumberCheck(phoneNumber), nil
}

func (s *SamsungRCS) GetBalance(ctx context.Context) (*Balance, error) {
	return nil, ErrUnsupportedOperation
}

func (s *SamsungRCS) IsCompatible(ctx context.Context, phoneNumber string) (bool, error) {
	endpoint := fmt.Sprintf("%s/v2/terminals/%s", s.cfg.BaseURL, phoneNumber)
	status, body, err := s.rest.do(ctx, "GET", endpoint, "", nil, s.authHeader())
	if err != nil {
		return false, err
	}
	if status == 404 {
		return false, nil
	}
	if status >= 400 {
		return false, fmt.Errorf("samsung terminal check returned %d", status)
	}
	var resp struct {
		RCSReady bool `json:"rcsReady"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("decode samsung terminal check: %w", err)
	}
	return resp.RCSReady, nil
}

func (s *SamsungRCS) GetCapabilities(ctx context.Context, phoneNumber string) (*Capabilities, error) {
	endpoint := fmt.Sprintf("%s/v2/terminals/%s/features", s.cfg.BaseURL, phoneNumber)
	status, body, err := s.rest.do(ctx, "GET", endpoint, "", nil, s.authHeader())
	if err != nil {
		return nil, err
	}
	if status == 404 {
		return &Capabilities{RCSEnabled: false}, nil
	}
	if status >= 400 {
		return nil, fmt.Errorf("samsung feature lookup returned %d", status)
	}
	var resp struct {
		Features []string `json:"features"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode samsung features: %w", err)
	}
	return &Capabilities{RCSEnabled: len(resp.Features) > 0, Features: resp.Features}, nil
}

func (s *SamsungRCS) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	status, body, err := s.rest.do(ctx, "POST", s.cfg.BaseURL+"/v2/media", mimeType, data, s.authHeader())
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", fmt.Errorf("samsung media upload returned %d", status)
	}
	var resp struct {
		MediaRef string `json:"mediaRef"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode samsung upload response: %w", err)
	}
	return resp.MediaRef, nil
}

func (s *SamsungRCS) SendRich(ctx context.Context, destination string, msg model.RichMessage, opts SendOptions) (*SendResult, error) {
	req := samsungSendRequest{
		AppID:     s.cfg.AppID,
		Recipient: destination,
		ClientRef: opts.MessageID,
	}

	switch msg.Kind {
	case model.RichKindText:
		req.Format = "text"
		req.Body = msg.Text
		req.Buttons = samsungButtons(msg.Suggestions)
	case model.RichKindImage:
		req.Format = "media"
		req.MediaRef = msg.ImageURL
	case model.RichKindRichCard:
		if msg.Card == nil {
			return nil, fmt.Errorf("rich card payload missing card")
		}
		req.Format = "card"
		req.Cards = []samsungCard{samsungCardFor(*msg.Card)}
	case model.RichKindCarousel:
		if len(msg.Cards) < 2 {
			return nil, fmt.Errorf("carousel needs at least two cards")
		}
		req.Format = "slider"
		for _, c := range msg.Cards {
			req.Cards = append(req.Cards, samsungCardFor(c))
		}
	default:
		return nil, fmt.Errorf("unknown rich message kind %q", msg.Kind)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode samsung request: %w", err)
	}

	status, body, err := s.rest.do(ctx, "POST", s.cfg.BaseURL+"/v2/messages", "application/json", payload, s.authHeader())
	if err != nil {
		return nil, err
	}

	var resp samsungSendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode samsung response: %w", err)
	}

	if status >= 400 || (resp.Result != "" && resp.Result != "ok") {
		return &SendResult{
			Success:      false,
			Status:       model.MessageStatusFailed,
			ErrorCode:    resp.Result,
			ErrorMessage: resp.Reason,
		}, nil
	}

	return &SendResult{Success: true, ExternalID: resp.TID, Status: model.MessageStatusSent}, nil
}

func samsungCardFor(c model.RichCard) samsungCard {
	return samsungCard{
		Headline: c.Title,
		Body:     c.Description,
		MediaRef: c.MediaURL,
		Buttons:  samsungButtons(c.Suggestions),
	}
}

func samsungButtons(in []model.Suggestion) []samsungButton {
	if len(in) == 0 {
		return nil
	}
	out := make([]samsungButton, 0, len(in))
	for _, sg := range in {
		switch sg.Type {
		case model.SuggestionReply:
			out = append(out, samsungButton{Kind: "reply", Label: sg.Text, Payload: sg.PostbackData})
		case model.SuggestionOpenURL:
			out = append(out, samsungButton{Kind: "link", Label: sg.Text, Link: sg.URL})
		case model.SuggestionDial:
			out = append(out, samsungButton{Kind: "call", Label: sg.Text, Number: sg.PhoneNumber})
		case model.SuggestionLocation:
			out = append(out, samsungButton{Kind: "map", Label: sg.Text, Latitude: sg.Latitude, Longitude: sg.Longitude})
		}
	}
	return out
}

type samsungCallback struct {
	TID       string `json:"tid"`
	State     string `json:"state"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

// ParseCallback verifies X-Samsung-Signature, a hex HMAC-SHA256 of the
// raw body keyed by the webhook secret. Some hub versions send base64,
// so both encodings are accepted.
func (s *SamsungRCS) ParseCallback(body []byte, headers map[string]string) (*model.ProviderEvent, error) {
	sig := headerValue(headers, "X-Samsung-Signature")
	if sig == "" {
		return nil, ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
	mac.Write(body)
	sum := mac.Sum(nil)
	hexSig := hex.EncodeToString(sum)
	b64Sig := base64.StdEncoding.EncodeToString(sum)
	if subtle.ConstantTimeCompare([]byte(hexSig), []byte(sig)) != 1 &&
		subtle.ConstantTimeCompare([]byte(b64Sig), []byte(sig)) != 1 {
		return nil, ErrInvalidSignature
	}

	var cb samsungCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("parse samsung callback: %w", err)
	}
	if cb.TID == "" {
		return nil, fmt.Errorf("samsung callback missing tid")
	}

	occurred := time.Now().UTC()
	if cb.Timestamp > 0 {
		occurred = time.UnixMilli(cb.Timestamp).UTC()
	}

	event := &model.ProviderEvent{
		Provider:     s.Name(),
		ExternalID:   cb.TID,
		Status:       samsungStatus(cb.State),
		ErrorMessage: cb.Reason,
		OccurredAt:   occurred,
	}
	if event.Status == model.MessageStatusFailed {
		event.ErrorCode = cb.State
	}
	return event, nil
}

func samsungStatus(state string) model.MessageStatus {
	switch state {
	case "displayed", "delivered":
		return model.MessageStatusDelivered
	case "sent", "pending":
		return model.MessageStatusSent
	case "failed", "expired", "blocked":
		return model.MessageStatusFailed
	default:
		return model.MessageStatusSent
	}
}
