package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sakaloan5-create/sms-platform/internal/model"
)

// GoogleRCSConfig holds credentials for the Google RBM adapter.
type GoogleRCSConfig struct {
	AgentID       string
	APIKey        string
	WebhookSecret string
	BaseURL       string // default https://rcsbusinessmessaging.googleapis.com
	Timeout       time.Duration
}

// GoogleRCS routes rich messages through RCS Business Messaging. Its wire
// schema nests content under contentMessage with camelCase suggestion
// envelopes; the Samsung backend expresses the same intent with a flat
// schema, so the translation lives entirely here.
type GoogleRCS struct {
	cfg  GoogleRCSConfig
	rest *restClient
}

func NewGoogleRCS(cfg GoogleRCSConfig) *GoogleRCS {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://rcsbusinessmessaging.googleapis.com"
	}
	return &GoogleRCS{cfg: cfg, rest: newRESTClient(cfg.Timeout)}
}

func (g *GoogleRCS) Name() string            { return "google_rcs" }
func (g *GoogleRCS) Type() model.ChannelType { return model.ChannelTypeRCS }

// Send delivers plain text over the rich channel. Used by the dispatch
// path when a text-kind message targets an RCS channel.
func (g *GoogleRCS) Send(ctx context.Context, destination, content string, opts SendOptions) (*SendResult, error) {
	return g.SendRich(ctx, destination, model.RichMessage{Kind: model.RichKindText, Text: content}, opts)
}

func (g *GoogleRCS) SendBulk(ctx context.Context, items []BulkItem) []*SendResult {
	return sequentialBulk(ctx, g, items)
}

// GetStatus is webhook-only on RBM.
func (g *GoogleRCS) GetStatus(ctx context.Context, externalID string) (*StatusResult, error) {
	return nil, ErrUnsupportedOperation
}

func (g *GoogleRCS) ValidateNumber(ctx context.Context, phoneNumber string) (*NumberInfo, error) {
	return syntacticNumberCheck(phoneNumber), nil
}

func (g *GoogleRCS) GetBalance(ctx context.Context) (*Balance, error) {
	return nil, ErrUnsupportedOperation
}

func (g *GoogleRCS) IsCompatible(ctx context.Context, phoneNumber string) (bool, error) {
	caps, err := g.GetCapabilities(ctx, phoneNumber)
	if err != nil {
		return false, err
	}
	return caps.RCSEnabled, nil
}

func (g *GoogleRCS) GetCapabilities(ctx context.Context, phoneNumber string) (*Capabilities, error) {
	endpoint := fmt.Sprintf("%s/v1/phones/%s/capabilities?agentId=%s&key=%s",
		g.cfg.BaseURL, phoneNumber, g.cfg.AgentID, g.cfg.APIKey)
	status, body, err := g.rest.do(ctx, "GET", endpoint, "", nil)
	if err != nil {
		return nil, err
	}
	if status == 404 {
		return &Capabilities{RCSEnabled: false}, nil
	}
	if status >= 400 {
		return nil, fmt.Errorf("rbm capability check returned %d", status)
	}

	var resp struct {
		Features []string `json:"features"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode rbm capabilities: %w", err)
	}
	return &Capabilities{RCSEnabled: len(resp.Features) > 0, Features: resp.Features}, nil
}

func (g *GoogleRCS) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/files?agentId=%s&key=%s", g.cfg.BaseURL, g.cfg.AgentID, g.cfg.APIKey)
	status, body, err := g.rest.do(ctx, "POST", endpoint, mimeType, data)
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", fmt.Errorf("rbm media upload returned %d", status)
	}
	var resp struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode rbm upload response: %w", err)
	}
	return resp.Name, nil
}

// RBM wire types. Suggestion intents are wrapped in single-key envelopes.
type rbmSuggestion struct {
	Reply  *rbmReply  `json:"reply,omitempty"`
	Action *rbmAction `json:"action,omitempty"`
}

type rbmReply struct {
	Text         string `json:"text"`
	PostbackData string `json:"postbackData,omitempty"`
}

type rbmOpenURL struct {
	URL string `json:"url"`
}

type rbmDial struct {
	PhoneNumber string `json:"phoneNumber"`
}

type rbmViewLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Label     string  `json:"label,omitempty"`
}

type rbmAction struct {
	Text         string           `json:"text"`
	PostbackData string           `json:"postbackData,omitempty"`
	OpenURL      *rbmOpenURL      `json:"openUrlAction,omitempty"`
	Dial         *rbmDial         `json:"dialAction,omitempty"`
	ViewLocation *rbmViewLocation `json:"viewLocationAction,omitempty"`
}

type rbmCardContent struct {
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Media       *rbmMedia       `json:"media,omitempty"`
	Suggestions []rbmSuggestion `json:"suggestions,omitempty"`
}

type rbmMedia struct {
	Height      string `json:"height"`
	ContentInfo struct {
		FileURL string `json:"fileUrl"`
	} `json:"contentInfo"`
}

type rbmStandalone struct {
	CardOrientation string         `json:"cardOrientation"`
	CardContent     rbmCardContent `json:"cardContent"`
}

type rbmCarousel struct {
	CardWidth    string           `json:"cardWidth"`
	CardContents []rbmCardContent `json:"cardContents"`
}

type rbmRichCard struct {
	StandaloneCard *rbmStandalone `json:"standaloneCard,omitempty"`
	CarouselCard   *rbmCarousel   `json:"carouselCard,omitempty"`
}

type rbmContentMessage struct {
	Text        string          `json:"text,omitempty"`
	Suggestions []rbmSuggestion `json:"suggestions,omitempty"`
	RichCard    *rbmRichCard    `json:"richCard,omitempty"`
}

func (g *GoogleRCS) SendRich(ctx context.Context, destination string, msg model.RichMessage, opts SendOptions) (*SendResult, error) {
	content, err := g.buildContent(msg)
	if err != nil {
		return nil, err
	}

	messageID := opts.MessageID
	if messageID == "" {
		messageID = uuid.NewString()
	}
	payload, err := json.Marshal(map[string]any{"contentMessage": content})
	if err != nil {
		return nil, fmt.Errorf("encode rbm request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/phones/%s/agentMessages?messageId=%s&agentId=%s&key=%s",
		g.cfg.BaseURL, destination, messageID, g.cfg.AgentID, g.cfg.APIKey)
	status, body, err := g.rest.do(ctx, "POST", endpoint, "application/json", payload)
	if err != nil {
		return nil, err
	}

	if status >= 400 {
		var apiErr struct {
			Error struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
				Status  string `json:"status"`
			} `json:"error"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return &SendResult{
			Success:      false,
			Status:       model.MessageStatusFailed,
			ErrorCode:    apiErr.Error.Status,
			ErrorMessage: apiErr.Error.Message,
		}, nil
	}

	var resp struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode rbm response: %w", err)
	}
	externalID := resp.Name
	if externalID == "" {
		externalID = messageID
	}
	return &SendResult{Success: true, ExternalID: externalID, Status: model.MessageStatusSent}, nil
}

func (g *GoogleRCS) buildContent(msg model.RichMessage) (*rbmContentMessage, error) {
	out := &rbmContentMessage{}
	switch msg.Kind {
	case model.RichKindText:
		out.Text = msg.Text
		out.Suggestions = rbmSuggestions(msg.Suggestions)
	case model.RichKindImage:
		out.RichCard = &rbmRichCard{StandaloneCard: &rbmStandalone{
			CardOrientation: "VERTICAL",
			CardContent:     rbmCardContent{Media: rbmMediaFor(msg.ImageURL)},
		}}
	case model.RichKindRichCard:
		if msg.Card == nil {
			return nil, fmt.Errorf("rich card payload missing card")
		}
		out.RichCard = &rbmRichCard{StandaloneCard: &rbmStandalone{
			CardOrientation: "VERTICAL",
			CardContent:     rbmCard(*msg.Card),
		}}
	case model.RichKindCarousel:
		if len(msg.Cards) < 2 {
			return nil, fmt.Errorf("carousel needs at least two cards")
		}
		contents := make([]rbmCardContent, 0, len(msg.Cards))
		for _, c := range msg.Cards {
			contents = append(contents, rbmCard(c))
		}
		out.RichCard = &rbmRichCard{CarouselCard: &rbmCarousel{
			CardWidth:    "MEDIUM",
			CardContents: contents,
		}}
	default:
		return nil, fmt.Errorf("unknown rich message kind %q", msg.Kind)
	}
	return out, nil
}

func rbmCard(c model.RichCard) rbmCardContent {
	out := rbmCardContent{
		Title:       c.Title,
		Description: c.Description,
		Suggestions: rbmSuggestions(c.Suggestions),
	}
	if c.MediaURL != "" {
		out.Media = rbmMediaFor(c.MediaURL)
	}
	return out
}

func rbmMediaFor(url string) *rbmMedia {
	m := &rbmMedia{Height: "MEDIUM"}
	m.ContentInfo.FileURL = url
	return m
}

func rbmSuggestions(in []model.Suggestion) []rbmSuggestion {
	if len(in) == 0 {
		return nil
	}
	out := make([]rbmSuggestion, 0, len(in))
	for _, s := range in {
		switch s.Type {
		case model.SuggestionReply:
			out = append(out, rbmSuggestion{Reply: &rbmReply{Text: s.Text, PostbackData: s.PostbackData}})
		case model.SuggestionOpenURL:
			out = append(out, rbmSuggestion{Action: &rbmAction{
				Text:         s.Text,
				PostbackData: s.PostbackData,
				OpenURL:      &rbmOpenURL{URL: s.URL},
			}})
		case model.SuggestionDial:
			out = append(out, rbmSuggestion{Action: &rbmAction{
				Text:         s.Text,
				PostbackData: s.PostbackData,
				Dial:         &rbmDial{PhoneNumber: s.PhoneNumber},
			}})
		case model.SuggestionLocation:
			out = append(out, rbmSuggestion{Action: &rbmAction{
				Text:         s.Text,
				PostbackData: s.PostbackData,
				ViewLocation: &rbmViewLocation{Latitude: s.Latitude, Longitude: s.Longitude, Label: s.Label},
			}})
		}
	}
	return out
}

type rbmCallback struct {
	MessageID  string `json:"messageId"`
	EventType  string `json:"eventType"`
	ErrorCode  string `json:"errorCode"`
	SendTime   string `json:"sendTime"`
}

// ParseCallback checks the X-Goog-Signature header, a base64 HMAC-SHA256
// of the raw body keyed by the webhook secret.
func (g *GoogleRCS) ParseCallback(body []byte, headers map[string]string) (*model.ProviderEvent, error) {
	sig := headerValue(headers, "X-Goog-Signature")
	if sig == "" {
		return nil, ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(g.cfg.WebhookSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) != 1 {
		return nil, ErrInvalidSignature
	}

	var cb rbmCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("parse rbm callback: %w", err)
	}
	if cb.MessageID == "" {
		return nil, fmt.Errorf("rbm callback missing messageId")
	}

	occurred := time.Now().UTC()
	if ts, err := time.Parse(time.RFC3339, cb.SendTime); err == nil {
		occurred = ts
	}

	return &model.ProviderEvent{
		Provider:   g.Name(),
		ExternalID: cb.MessageID,
		Status:     rbmStatus(cb.EventType),
		ErrorCode:  cb.ErrorCode,
		OccurredAt: occurred,
	}, nil
}

func rbmStatus(eventType string) model.MessageStatus {
	switch eventType {
	case "DELIVERED", "READ":
		return model.MessageStatusDelivered
	case "SENT":
		return model.MessageStatusSent
	case "FAILED", "TTL_EXPIRED":
		return model.MessageStatusFailed
	default:
		return model.MessageStatusSent
	}
}
