package dispatch

import (
	"context"
	"errors"
	"testing"

	"campaigns/internal/domain"
)

func TestValidateTemplate(t *testing.T) {
	cases := []struct {
		name    string
		tmpl    *domain.Template
		gateway string
		wantErr bool
	}{
		{"missing", nil, GatewayTwilio, true},
		{"twilio params with sid", &domain.Template{ParamCount: 2, ContentSID: "HX1"}, GatewayTwilio, false},
		{"twilio params without sid", &domain.Template{ParamCount: 2, GatewayTemplateName: "x"}, GatewayTwilio, true},
		{"meta params with name", &domain.Template{ParamCount: 1, GatewayTemplateName: "x"}, GatewayMeta, false},
		{"meta params without name", &domain.Template{ParamCount: 1, ContentSID: "HX1"}, GatewayMeta, true},
		{"meta text with name", &domain.Template{Message: "Hola", GatewayTemplateName: "bienvenida"}, GatewayMeta, false},
		{"twilio text with sid", &domain.Template{Message: "Hola", ContentSID: "HX2"}, GatewayTwilio, false},
		{"meta text without name", &domain.Template{ID: 1, Message: "hola"}, GatewayMeta, true},
		{"twilio text without sid", &domain.Template{ID: 1, Message: "hola"}, GatewayTwilio, true},
		{"nothing to send", &domain.Template{}, GatewayTwilio, true},
	}
	for _, tc := range cases {
		err := ValidateTemplate(tc.tmpl, tc.gateway)
		if tc.wantErr != (err != nil) {
			t.Fatalf("%s: wantErr=%v got %v", tc.name, tc.wantErr, err)
		}
		if err != nil && !errors.Is(err, domain.ErrInvalidTemplate) {
			t.Fatalf("%s: expected ErrInvalidTemplate, got %v", tc.name, err)
		}
	}
}

func TestResolveOrdersAndFilters(t *testing.T) {
	l := newLedger("987000001", "987000002", "987000003")
	l.assocs[1].Status = domain.StatusSent

	r := &Resolver{Ledger: l, Gateway: GatewayTwilio}
	c, recips, err := r.Resolve(context.Background(), campaignID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if c.ID != campaignID || c.Template == nil {
		t.Fatalf("unexpected campaign %+v", c)
	}
	if len(recips) != 2 || recips[0].ID != 1 || recips[1].ID != 3 {
		t.Fatalf("unexpected recipients %+v", recips)
	}
	if len(l.statusUpdates) != 0 {
		t.Fatalf("resolve must not write")
	}
}
