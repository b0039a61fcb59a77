package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name    string
	chType  model.ChannelType
	result  *SendResult
	err     error
	calls   int
}

func (s *stubProvider) Name() string            { return s.name }
func (s *stubProvider) Type() model.ChannelType { return s.chType }

func (s *stubProvider) Send(ctx context.Context, destination, content string, opts SendOptions) (*SendResult, error) {
	s.calls++
	return s.result, s.err
}

func (s *stubProvider) SendBulk(ctx context.Context, items []BulkItem) []*SendResult {
	return sequentialBulk(ctx, s, items)
}

func (s *stubProvider) GetStatus(ctx context.Context, externalID string) (*StatusResult, error) {
	return nil, ErrUnsupportedOperation
}

func (s *stubProvider) ValidateNumber(ctx context.Context, phoneNumber string) (*NumberInfo, error) {
	return syntacticNumberCheck(phoneNumber), nil
}

func (s *stubProvider) GetBalance(ctx context.Context) (*Balance, error) {
	return nil, ErrUnsupportedOperation
}

func (s *stubProvider) ParseCallback(body []byte, headers map[string]string) (*model.ProviderEvent, error) {
	return nil, ErrUnsupportedOperation
}

func accepted(name string) *stubProvider {
	return &stubProvider{
		name:   name,
		chType: model.ChannelTypeSMS,
		result: &SendResult{Success: true, ExternalID: name + "-ext", Status: model.MessageStatusSent},
	}
}

func rejected(name string) *stubProvider {
	return &stubProvider{
		name:   name,
		chType: model.ChannelTypeSMS,
		result: &SendResult{Success: false, Status: model.MessageStatusFailed, ErrorCode: "CARRIER_REJECTED"},
	}
}

func TestRegistrySelectionByCountry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(accepted("twilio"))
	reg.Register(accepted("vonage"))
	reg.Register(accepted("zenvia"))

	chain := reg.SelectForDestination("BR", model.ChannelTypeSMS)
	require.NotEmpty(t, chain)
	assert.Equal(t, "zenvia", chain[0].Name())

	chain = reg.SelectForDestination("DE", model.ChannelTypeSMS)
	assert.Equal(t, "vonage", chain[0].Name())

	chain = reg.SelectForDestination("US", model.ChannelTypeSMS)
	assert.Equal(t, "twilio", chain[0].Name())
}

func TestRegistrySelectionRCS(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubProvider{name: "google_rcs", chType: model.ChannelTypeRCS})
	reg.Register(&stubProvider{name: "samsung_rcs", chType: model.ChannelTypeRCS})

	chain := reg.SelectForDestination("KR", model.ChannelTypeRCS)
	require.Len(t, chain, 2)
	assert.Equal(t, "samsung_rcs", chain[0].Name())

	chain = reg.SelectForDestination("US", model.ChannelTypeRCS)
	assert.Equal(t, "google_rcs", chain[0].Name())
}

func TestRegistrySkipsUnregistered(t *testing.T) {
	reg := NewRegistry()
	reg.Register(accepted("twilio"))

	chain := reg.SelectForDestination("BR", model.ChannelTypeSMS)
	require.Len(t, chain, 1)
	assert.Equal(t, "twilio", chain[0].Name())
}

func TestFailoverStopsAtFirstSuccess(t *testing.T) {
	first := rejected("a")
	second := accepted("b")
	third := accepted("c")

	p, res, err := SendWithFailover(context.Background(), []Provider{first, second, third},
		"+5511999990000", "hello", SendOptions{MessageID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "b", p.Name())
	assert.True(t, res.Success)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 0, third.calls, "chain must short-circuit after a success")
}

func TestFailoverAllFail(t *testing.T) {
	_, res, err := SendWithFailover(context.Background(),
		[]Provider{rejected("a"), rejected("b")},
		"+15551230000", "hello", SendOptions{})
	require.ErrorIs(t, err, ErrAllProvidersFailed)
	require.NotNil(t, res)
	assert.Equal(t, "CARRIER_REJECTED", res.ErrorCode)
}

func TestFailoverTransportErrorAdvances(t *testing.T) {
	broken := &stubProvider{name: "a", chType: model.ChannelTypeSMS, err: context.DeadlineExceeded}
	ok := accepted("b")

	p, _, err := SendWithFailover(context.Background(), []Provider{broken, ok},
		"+15551230000", "hello", SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, "b", p.Name())
}

func TestFailoverEmptyChain(t *testing.T) {
	_, _, err := SendWithFailover(context.Background(), nil, "+15551230000", "hello", SendOptions{})
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}

func TestTwilioSendAndCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+15551230000", r.PostForm.Get("To"))
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"sid": "SM123", "status": "queued"})
	}))
	defer srv.Close()

	tw := NewTwilio(TwilioConfig{
		AccountSID:  "AC1",
		AuthToken:   "secret",
		From:        "+15550001111",
		BaseURL:     srv.URL,
		CallbackURL: "https://platform.example.com/webhooks/twilio",
	})

	res, err := tw.Send(context.Background(), "+15551230000", "hi", SendOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "SM123", res.ExternalID)

	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("MessageStatus", "delivered")
	body := form.Encode()

	parsed, _ := url.ParseQuery(body)
	keys := make([]string, 0, len(parsed))
	for k := range parsed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString("https://platform.example.com/webhooks/twilio")
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(parsed.Get(k))
	}
	mac := hmac.New(sha1.New, []byte("secret"))
	mac.Write([]byte(sb.String()))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	event, err := tw.ParseCallback([]byte(body), map[string]string{"X-Twilio-Signature": sig})
	require.NoError(t, err)
	assert.Equal(t, "SM123", event.ExternalID)
	assert.Equal(t, model.MessageStatusDelivered, event.Status)

	_, err = tw.ParseCallback([]byte(body), map[string]string{"X-Twilio-Signature": "bogus"})
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = tw.ParseCallback([]byte(body), map[string]string{})
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestTwilioRejectedSendIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 21211, "message": "invalid 'To' number"})
	}))
	defer srv.Close()

	tw := NewTwilio(TwilioConfig{AccountSID: "AC1", AuthToken: "secret", BaseURL: srv.URL})
	res, err := tw.Send(context.Background(), "not-a-number", "hi", SendOptions{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "21211", res.ErrorCode)
}

func TestVonageCallbackSignature(t *testing.T) {
	v := NewVonage(VonageConfig{APIKey: "k", APISecret: "s", SignatureKey: "sigkey"})

	body := []byte(`{"messageId":"VG1","status":"delivered","message-timestamp":"2026-08-30 10:00:00"}`)
	mac := hmac.New(sha256.New, []byte("sigkey"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	event, err := v.ParseCallback(body, map[string]string{"X-Vonage-Signature": sig})
	require.NoError(t, err)
	assert.Equal(t, "VG1", event.ExternalID)
	assert.Equal(t, model.MessageStatusDelivered, event.Status)
	assert.Equal(t, 2026, event.OccurredAt.Year())

	_, err = v.ParseCallback(body, map[string]string{"X-Vonage-Signature": "deadbeef"})
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVonageStatusIsWebhookOnly(t *testing.T) {
	v := NewVonage(VonageConfig{})
	_, err := v.GetStatus(context.Background(), "VG1")
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}

func TestZenviaCallbackToken(t *testing.T) {
	z := NewZenvia(ZenviaConfig{APIToken: "api", WebhookToken: "hook"})

	body := []byte(`{"messageId":"ZV1","messageStatus":{"code":"NOT_DELIVERED","description":"handset off"}}`)
	event, err := z.ParseCallback(body, map[string]string{"X-Zenvia-Token": "hook"})
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusFailed, event.Status)
	assert.Equal(t, "NOT_DELIVERED", event.ErrorCode)

	_, err = z.ParseCallback(body, map[string]string{"X-Zenvia-Token": "wrong"})
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestGoogleRCSCarouselNeedsTwoCards(t *testing.T) {
	g := NewGoogleRCS(GoogleRCSConfig{AgentID: "agent", APIKey: "key"})
	_, err := g.buildContent(model.RichMessage{
		Kind:  model.RichKindCarousel,
		Cards: []model.RichCard{{Title: "only one"}},
	})
	assert.Error(t, err)
}

func TestGoogleRCSSuggestionMapping(t *testing.T) {
	g := NewGoogleRCS(GoogleRCSConfig{})
	content, err := g.buildContent(model.RichMessage{
		Kind: model.RichKindText,
		Text: "pick one",
		Suggestions: []model.Suggestion{
			{Type: model.SuggestionReply, Text: "Yes", PostbackData: "yes"},
			{Type: model.SuggestionOpenURL, Text: "Site", URL: "https://example.com"},
			{Type: model.SuggestionDial, Text: "Call", PhoneNumber: "+15550001111"},
		},
	})
	require.NoError(t, err)
	require.Len(t, content.Suggestions, 3)
	assert.NotNil(t, content.Suggestions[0].Reply)
	require.NotNil(t, content.Suggestions[1].Action)
	assert.Equal(t, "https://example.com", content.Suggestions[1].Action.OpenURL.URL)
	require.NotNil(t, content.Suggestions[2].Action)
	assert.Equal(t, "+15550001111", content.Suggestions[2].Action.Dial.PhoneNumber)
}

func TestSamsungRichCardTranslation(t *testing.T) {
	var captured samsungSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]string{"tid": "T1", "result": "ok"})
	}))
	defer srv.Close()

	s := NewSamsungRCS(SamsungRCSConfig{AppID: "app", AppSecret: "sec", BaseURL: srv.URL})
	res, err := s.SendRich(context.Background(), "+821055550000", model.RichMessage{
		Kind: model.RichKindRichCard,
		Card: &model.RichCard{
			Title:       "Order shipped",
			Description: "Arriving tomorrow",
			Suggestions: []model.Suggestion{
				{Type: model.SuggestionOpenURL, Text: "Track", URL: "https://t.example.com/1"},
			},
		},
	}, SendOptions{MessageID: "m1"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "T1", res.ExternalID)

	assert.Equal(t, "card", captured.Format)
	require.Len(t, captured.Cards, 1)
	assert.Equal(t, "Order shipped", captured.Cards[0].Headline)
	require.Len(t, captured.Cards[0].Buttons, 1)
	assert.Equal(t, "link", captured.Cards[0].Buttons[0].Kind)
}

func TestSamsungStatusVocabulary(t *testing.T) {
	assert.Equal(t, model.MessageStatusDelivered, samsungStatus("displayed"))
	assert.Equal(t, model.MessageStatusFailed, samsungStatus("blocked"))
	assert.Equal(t, model.MessageStatusSent, samsungStatus("pending"))
}

func TestMockDeliveryFeedsSink(t *testing.T) {
	var mu sync.Mutex
	var events []model.ProviderEvent
	m := NewMock(MockConfig{DeliveryDelay: 10 * time.Millisecond}, func(e model.ProviderEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	res, err := m.Send(context.Background(), "+15551230000", "hi", SendOptions{})
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, res.ExternalID, events[0].ExternalID)
	assert.Equal(t, model.MessageStatusDelivered, events[0].Status)
}

func TestMockFailureRate(t *testing.T) {
	m := NewMock(MockConfig{FailureRate: 1.0}, nil)
	res, err := m.Send(context.Background(), "+15551230000", "hi", SendOptions{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "CARRIER_REJECTED", res.ErrorCode)
}

func TestSyntacticNumberCheck(t *testing.T) {
	assert.True(t, syntacticNumberCheck("+5511999990000").Valid)
	assert.False(t, syntacticNumberCheck("5511999990000").Valid)
	assert.False(t, syntacticNumberCheck("+55x").Valid)
}
