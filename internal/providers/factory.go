package providers

import (
	"strconv"

	"github.com/sakaloan5-create/sms-platform/internal/config"
	"github.com/sakaloan5-create/sms-platform/internal/model"
)

// NewRegistryFromConfig registers every adapter whose credentials are
// present. Mock providers are only registered when explicitly enabled;
// they then act as last-chance fallbacks in every routing chain.
func NewRegistryFromConfig(cfg *config.Config, sink EventSink) *Registry {
	r := NewRegistry()

	if cfg.TwilioAccountSID != "" {
		r.Register(NewTwilio(TwilioConfig{
			AccountSID:  cfg.TwilioAccountSID,
			AuthToken:   cfg.TwilioAuthToken,
			From:        cfg.TwilioFrom,
			BaseURL:     cfg.TwilioBaseURL,
			CallbackURL: cfg.TwilioCallbackURL,
		}))
	}
	if cfg.VonageAPIKey != "" {
		r.Register(NewVonage(VonageConfig{
			APIKey:       cfg.VonageAPIKey,
			APISecret:    cfg.VonageAPISecret,
			SignatureKey: cfg.VonageSignatureKey,
			From:         cfg.VonageFrom,
			BaseURL:      cfg.VonageBaseURL,
		}))
	}
	if cfg.ZenviaAPIToken != "" {
		r.Register(NewZenvia(ZenviaConfig{
			APIToken:     cfg.ZenviaAPIToken,
			WebhookToken: cfg.ZenviaWebhookToken,
			From:         cfg.ZenviaFrom,
			BaseURL:      cfg.ZenviaBaseURL,
		}))
	}
	if cfg.GoogleRBMAgentID != "" {
		r.Register(NewGoogleRCS(GoogleRCSConfig{
			AgentID:       cfg.GoogleRBMAgentID,
			APIKey:        cfg.GoogleRBMAPIKey,
			WebhookSecret: cfg.GoogleRBMWebhookSecret,
			BaseURL:       cfg.GoogleRBMBaseURL,
		}))
	}
	if cfg.SamsungRCSAppID != "" {
		r.Register(NewSamsungRCS(SamsungRCSConfig{
			AppID:         cfg.SamsungRCSAppID,
			AppSecret:     cfg.SamsungRCSAppSecret,
			WebhookSecret: cfg.SamsungRCSWebhookSecret,
			BaseURL:       cfg.SamsungRCSBaseURL,
		}))
	}

	if cfg.MockProvidersEnable {
		failureRate, err := strconv.ParseFloat(cfg.MockFailureRate, 64)
		if err != nil {
			failureRate = 0
		}
		r.Register(NewMock(MockConfig{
			Name:         "mock",
			ChannelType:  model.ChannelTypeSMS,
			FailureRate:  failureRate,
			WebhookToken: cfg.MockWebhookToken,
		}, sink))
		r.Register(NewMock(MockConfig{
			Name:         "mock_rcs",
			ChannelType:  model.ChannelTypeRCS,
			FailureRate:  failureRate,
			WebhookToken: cfg.MockWebhookToken,
		}, sink))
	}

	return r
}
