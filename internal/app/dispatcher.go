package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"campaigns/internal/awsutil"
	"campaigns/internal/config"
	"campaigns/internal/delivery"
	"campaigns/internal/dispatch"
	"campaigns/internal/providers/meta"
	"campaigns/internal/providers/twilio"
	"campaigns/internal/ratelimit"
	"campaigns/internal/recorder"
	"campaigns/internal/store/dynamo"
	"campaigns/internal/store/pg"
)

// NewGateway builds the WhatsApp gateway selected by cfg.Gateway.
func NewGateway(cfg config.Dispatch) (delivery.Gateway, error) {
	client := &http.Client{Timeout: cfg.GatewayTimeout}
	switch cfg.Gateway {
	case dispatch.GatewayTwilio:
		if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" {
			return nil, fmt.Errorf("twilio gateway needs TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN")
		}
		if cfg.TwilioMessagingServiceSID == "" && cfg.TwilioFromNumber == "" {
			return nil, fmt.Errorf("twilio gateway needs TWILIO_MESSAGING_SERVICE_SID or TWILIO_FROM_NUMBER")
		}
		return &twilio.Client{
			AccountSID:          cfg.TwilioAccountSID,
			AuthToken:           cfg.TwilioAuthToken,
			HTTP:                client,
			MessagingServiceSID: cfg.TwilioMessagingServiceSID,
			FromNumber:          cfg.TwilioFromNumber,
			BaseURL:             cfg.TwilioBaseURL,
			StatusCallbackURL:   cfg.TwilioStatusCallbackURL,
		}, nil
	case dispatch.GatewayMeta:
		if cfg.MetaAccessToken == "" || cfg.MetaPhoneNumberID == "" {
			return nil, fmt.Errorf("meta gateway needs META_ACCESS_TOKEN and META_PHONE_NUMBER_ID")
		}
		return &meta.Client{
			AccessToken:   cfg.MetaAccessToken,
			PhoneNumberID: cfg.MetaPhoneNumberID,
			HTTP:          client,
			BaseURL:       cfg.MetaBaseURL,
			APIVersion:    cfg.MetaAPIVersion,
		}, nil
	}
	return nil, fmt.Errorf("unknown GATEWAY %q", cfg.Gateway)
}

// NewDocumentStore returns the DynamoDB audit store, or nil when no table
// is configured.
func NewDocumentStore(ctx context.Context, cfg config.Dispatch, aws config.AWS) (*dynamo.Store, error) {
	if cfg.DynamoAuditTable == "" {
		slog.Warn("DYNAMO_AUDIT_TABLE not set, audit trail disabled")
		return nil, nil
	}
	awsCfg, err := awsutil.LoadConfig(ctx, aws.AWSRegion, aws.LocalstackEndpoint)
	if err != nil {
		return nil, err
	}
	return dynamo.NewStore(awsutil.NewDynamoClient(awsCfg, aws.LocalstackEndpoint), cfg.DynamoAuditTable), nil
}

// NewOrchestrator wires gateway, breaker, limiter and recorder around the
// ledger. docs may be nil.
func NewOrchestrator(cfg config.Dispatch, ledger *pg.Store, docs *dynamo.Store) (*dispatch.Orchestrator, error) {
	gw, err := NewGateway(cfg)
	if err != nil {
		return nil, err
	}

	var ds recorder.DocumentStore
	if docs != nil {
		ds = docs
	}

	return &dispatch.Orchestrator{
		Resolver: &dispatch.Resolver{Ledger: ledger, Gateway: cfg.Gateway},
		Sender: &delivery.Client{
			Gateway:        gw,
			Breaker:        delivery.NewBreaker(gw.Name()),
			MaxAttempts:    cfg.RetryAttempts,
			BaseDelay:      cfg.RetryBaseDelay,
			AttemptTimeout: cfg.GatewayTimeout,
		},
		Limiter:  ratelimit.NewKeyed(cfg.SendRatePerSecond),
		Recorder: recorder.New(ledger, ds),
		Config: dispatch.Config{
			BatchSize:        cfg.BatchSize,
			BatchConcurrency: cfg.BatchConcurrency,
			BatchPause:       cfg.BatchPause,
			ClaimTTL:         cfg.ClaimTTL,
			CountryCode:      cfg.CountryCode,
			BotID:            cfg.BotID,
			Collection:       cfg.AuditCollection,
		},
	}, nil
}

func PoolOptions(cfg config.DB) pg.PoolOptions {
	return pg.PoolOptions{
		MaxConns:          cfg.DBMaxConns,
		MinConns:          cfg.DBMinConns,
		MaxConnLifetime:   cfg.DBMaxConnLifetime,
		MaxConnIdleTime:   cfg.DBMaxConnIdleTime,
		HealthCheckPeriod: cfg.DBHealthCheckPeriod,
		ConnectTimeout:    cfg.DBConnectTimeout,
	}
}
