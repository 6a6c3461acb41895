package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type DB struct {
	DBDSN               string        `envconfig:"DB_DSN" required:"true"`
	DBMaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns          int32         `envconfig:"DB_MIN_CONNS" default:"0"`
	DBMaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	DBMaxConnIdleTime   time.Duration `envconfig:"DB_MAX_CONN_IDLE_TIME" default:"5m"`
	DBHealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"30s"`
	DBConnectTimeout    time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"3s"`
}

type AWS struct {
	AWSRegion          string `envconfig:"AWS_REGION" default:"us-east-1"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"` // e.g. http://localhost:4566
}

// Dispatch configures the orchestrator and everything it drives.
type Dispatch struct {
	Gateway           string        `envconfig:"GATEWAY" default:"twilio"` // twilio | meta
	SendRatePerSecond float64       `envconfig:"SEND_RATE_PER_SECOND" default:"20"`
	BatchSize         int           `envconfig:"BATCH_SIZE" default:"50"`
	BatchConcurrency  int           `envconfig:"BATCH_CONCURRENCY" default:"3"`
	BatchPause        time.Duration `envconfig:"BATCH_PAUSE" default:"500ms"`
	RetryAttempts     int           `envconfig:"RETRY_ATTEMPTS" default:"3"`
	RetryBaseDelay    time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s"`
	GatewayTimeout    time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"10s"`
	CountryCode       string        `envconfig:"COUNTRY_CODE" default:"51"`
	BotID             string        `envconfig:"BOT_ID" default:"fidelizacionbot"`
	ClaimTTL          time.Duration `envconfig:"DISPATCH_CLAIM_TTL" default:"30m"`

	// Audit trail; an empty table disables the document store.
	DynamoAuditTable  string `envconfig:"DYNAMO_AUDIT_TABLE"`
	AuditCollection   string `envconfig:"AUDIT_COLLECTION" default:"fidelizacion"`
	ProfileCollection string `envconfig:"PROFILE_COLLECTION" default:"clientes"`

	// Twilio
	TwilioAccountSID          string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken           string `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioMessagingServiceSID string `envconfig:"TWILIO_MESSAGING_SERVICE_SID"`
	TwilioFromNumber          string `envconfig:"TWILIO_FROM_NUMBER"`
	TwilioBaseURL             string `envconfig:"TWILIO_BASE_URL" default:"https://api.twilio.com"`
	TwilioStatusCallbackURL   string `envconfig:"TWILIO_STATUS_CALLBACK_URL"`

	// Meta Cloud API
	MetaAccessToken   string `envconfig:"META_ACCESS_TOKEN"`
	MetaPhoneNumberID string `envconfig:"META_PHONE_NUMBER_ID"`
	MetaBaseURL       string `envconfig:"META_BASE_URL" default:"https://graph.facebook.com"`
	MetaAPIVersion    string `envconfig:"META_API_VERSION" default:"v18.0"`
}

type APIConfig struct {
	DB
	AWS
	Dispatch
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	// Async dispatch is disabled when unset.
	SQSQueueURL string `envconfig:"SQS_QUEUE_URL"`
}

type WorkerConfig struct {
	DB
	AWS
	Dispatch
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	SQSQueueURL   string `envconfig:"SQS_QUEUE_URL" required:"true"`
	SQSWaitTime   int32  `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs    int32  `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout int32  `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"900"` // a campaign run can take minutes

	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"2"`
}

type WebhookConfig struct {
	DB
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	// Webhook signature verification
	TwilioAuthToken  string `envconfig:"TWILIO_AUTH_TOKEN" required:"true"`
	PublicWebhookURL string `envconfig:"PUBLIC_WEBHOOK_URL" required:"true"` // must match EXACT URL configured in Twilio
}

// load reads an optional .env, then the environment. Real env vars win.
func load(cfg any) error {
	_ = godotenv.Load()
	return envconfig.Process("", cfg)
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	if err := load(&cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWorker() WorkerConfig {
	var cfg WorkerConfig
	if err := load(&cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWebhook() WebhookConfig {
	var cfg WebhookConfig
	if err := load(&cfg); err != nil {
		panic(err)
	}
	return cfg
}
