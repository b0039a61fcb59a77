package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sakaloan5-create/sms-platform/pkg/logger"
)

const ConfigTagName = "env"
const ConfigDefaultTagName = "default"

var config *Config

// Config holds every env-sourced value used by the platform binaries.
// Only this struct may be consulted for configuration; no direct access
// to env, ini or any other config source should be made elsewhere.
type Config struct {
	AppEnv              string `env:"APP_ENV" default:"dev"`
	AppName             string `env:"APP_NAME" default:"sms_platform"`
	AppDebug            bool   `env:"APP_DEBUG" default:"1"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI"`
	AppBaseUrl          string `env:"APP_BASE_URL"`

	HttpListenAddr            string `env:"HTTP_LISTEN_ADDR" validation:"mustExists"`
	HttpBaseRequestUrl        string `env:"HTTP_BASE_REQUEST_URI" validation:"mustExists"`
	HttpServerReadTimeout     int    `env:"HTTP_SERVER_READ_TIMEOUT"`
	HttpServerWriteTimeout    int    `env:"HTTP_SERVER_WRITE_TIMEOUT"`
	HttpServerReadBufferSize  int    `env:"HTTP_SERVER_READ_BUFFER_SIZE"`
	HttpServerWriteBufferSize int    `env:"HTTP_SERVER_WRITE_BUFFER_SIZE"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace string `env:"PROM_NAMESPACE"`

	ProfilerEnable bool `env:"PROFILER_ENABLE"`
	ProfilerPort   int  `env:"PROFILER_PORT"`

	LogLevel []string `env:"LOG_LEVEL"`

	QueueName              string        `env:"QUEUE_NAME" default:"dispatch"`
	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP" default:"dispatchers"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ"`

	// Billing fallbacks apply when a merchant has no pricing plan for
	// the destination country.
	BillingDefaultSMSPrice string `env:"BILLING_DEFAULT_SMS_PRICE" default:"0.05"`
	BillingRCSMultiplier   string `env:"BILLING_RCS_MULTIPLIER" default:"1.5"`
	BillingCurrency        string `env:"BILLING_CURRENCY" default:"USD"`
	BillingLowBalanceAlert string `env:"BILLING_LOW_BALANCE_ALERT" default:"5.00"`

	TwilioAccountSID  string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFrom        string `env:"TWILIO_FROM"`
	TwilioBaseURL     string `env:"TWILIO_BASE_URL"`
	TwilioCallbackURL string `env:"TWILIO_CALLBACK_URL"`

	VonageAPIKey       string `env:"VONAGE_API_KEY"`
	VonageAPISecret    string `env:"VONAGE_API_SECRET"`
	VonageSignatureKey string `env:"VONAGE_SIGNATURE_KEY"`
	VonageFrom         string `env:"VONAGE_FROM"`
	VonageBaseURL      string `env:"VONAGE_BASE_URL"`

	ZenviaAPIToken     string `env:"ZENVIA_API_TOKEN"`
	ZenviaWebhookToken string `env:"ZENVIA_WEBHOOK_TOKEN"`
	ZenviaFrom         string `env:"ZENVIA_FROM"`
	ZenviaBaseURL      string `env:"ZENVIA_BASE_URL"`

	GoogleRBMAgentID       string `env:"GOOGLE_RBM_AGENT_ID"`
	GoogleRBMAPIKey        string `env:"GOOGLE_RBM_API_KEY"`
	GoogleRBMWebhookSecret string `env:"GOOGLE_RBM_WEBHOOK_SECRET"`
	GoogleRBMBaseURL       string `env:"GOOGLE_RBM_BASE_URL"`

	SamsungRCSAppID         string `env:"SAMSUNG_RCS_APP_ID"`
	SamsungRCSAppSecret     string `env:"SAMSUNG_RCS_APP_SECRET"`
	SamsungRCSWebhookSecret string `env:"SAMSUNG_RCS_WEBHOOK_SECRET"`
	SamsungRCSBaseURL       string `env:"SAMSUNG_RCS_BASE_URL"`

	// Mock providers take over dispatch in dev and e2e runs.
	MockProvidersEnable bool   `env:"MOCK_PROVIDERS_ENABLE"`
	MockWebhookToken    string `env:"MOCK_WEBHOOK_TOKEN" default:"mock-secret"`
	MockFailureRate     string `env:"MOCK_FAILURE_RATE" default:"0"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.New("failed to load configuration file " + path + " error: " + err.Error())
		}
	}

	_, err = env.UnmarshalFromEnviron(c)

	if err != nil {
		return errors.New("failed to map env variables to Configuration object " + " error: " + err.Error())
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}
