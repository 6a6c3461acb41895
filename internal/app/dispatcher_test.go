package app

import (
	"testing"

	"campaigns/internal/config"
	"campaigns/internal/providers/meta"
	"campaigns/internal/providers/twilio"
)

func TestNewGateway(t *testing.T) {
	tw, err := NewGateway(config.Dispatch{Gateway: "twilio", TwilioAccountSID: "AC1", TwilioAuthToken: "t", TwilioFromNumber: "+14155238886"})
	if err != nil {
		t.Fatalf("twilio: %v", err)
	}
	if _, ok := tw.(*twilio.Client); !ok {
		t.Fatalf("expected twilio client, got %T", tw)
	}

	mt, err := NewGateway(config.Dispatch{Gateway: "meta", MetaAccessToken: "tok", MetaPhoneNumberID: "PN1"})
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if _, ok := mt.(*meta.Client); !ok {
		t.Fatalf("expected meta client, got %T", mt)
	}
}

func TestNewGatewayRejectsIncompleteConfig(t *testing.T) {
	cases := []config.Dispatch{
		{Gateway: "twilio"},
		{Gateway: "twilio", TwilioAccountSID: "AC1", TwilioAuthToken: "t"},
		{Gateway: "meta", MetaAccessToken: "tok"},
		{Gateway: "sms"},
	}
	for _, c := range cases {
		if _, err := NewGateway(c); err == nil {
			t.Fatalf("expected error for %+v", c)
		}
	}
}
