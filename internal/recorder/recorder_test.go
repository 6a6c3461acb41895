package recorder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"campaigns/internal/domain"
	"campaigns/internal/store"
)

type fakeLedger struct {
	updates []store.AssociationUpdate
	err     error
}

func (f *fakeLedger) UpdateAssociation(_ context.Context, in store.AssociationUpdate) error {
	f.updates = append(f.updates, in)
	return f.err
}

type docWrite struct {
	collection string
	key        string
	doc        store.AuditDocument
	merge      bool
}

type fakeDocs struct {
	writes []docWrite
	err    error
}

func (f *fakeDocs) UpsertDocument(_ context.Context, collection, key string, fields any, merge bool) error {
	f.writes = append(f.writes, docWrite{collection, key, fields.(store.AuditDocument), merge})
	return f.err
}

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func assoc() domain.Association {
	return domain.Association{
		ID: 11, ClientID: 4, CampaignID: 9,
		Client: domain.Client{ID: 4, Name: "Ana", Phone: "51987654321"},
	}
}

func rc() RecordContext {
	return RecordContext{CampaignID: 9, RunID: "run1", TemplateName: "cobranza", BotID: "fidelizacionbot", Collection: "fidelizacion", Now: now}
}

func TestRecordSuccess(t *testing.T) {
	l, d := &fakeLedger{}, &fakeDocs{}
	r := New(l, d)

	res := domain.AttemptResult{Outcome: domain.OutcomeSuccess, MessageID: "SM1", Attempts: 1}
	if err := r.Record(context.Background(), assoc(), res, "Hola Ana", rc()); err != nil {
		t.Fatalf("record: %v", err)
	}

	if len(l.updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(l.updates))
	}
	u := l.updates[0]
	if u.ID != 11 || u.Status != domain.StatusSent || u.GatewayMessageID != "SM1" || !u.Now.Equal(now) {
		t.Fatalf("unexpected update %+v", u)
	}
	if u.ErrorCode != "" || u.ErrorDescription != "" || u.AddRetries != 0 {
		t.Fatalf("success must not carry error fields: %+v", u)
	}

	if len(d.writes) != 1 {
		t.Fatalf("expected 1 doc write, got %d", len(d.writes))
	}
	w := d.writes[0]
	if w.collection != "fidelizacion" || w.key != "51987654321" || !w.merge {
		t.Fatalf("unexpected doc write %+v", w)
	}
	if w.doc.Message != "Hola Ana" || w.doc.MessageID != "SM1" || w.doc.Status != "sent" || w.doc.BotID != "fidelizacionbot" || w.doc.Sender != "false" {
		t.Fatalf("unexpected doc %+v", w.doc)
	}
	if w.doc.SentAt != now.UnixMilli() {
		t.Fatalf("unexpected timestamp %d", w.doc.SentAt)
	}
}

func TestRecordFailure(t *testing.T) {
	l, d := &fakeLedger{}, &fakeDocs{}
	r := New(l, d)

	long := strings.Repeat("é", 300)
	res := domain.AttemptResult{Outcome: domain.OutcomeRateLimited, ErrorCode: domain.CodeGatewayAPI, ErrorMessage: long, HTTPStatus: 429, Attempts: 3}
	if err := r.Record(context.Background(), assoc(), res, "Hola", rc()); err != nil {
		t.Fatalf("record: %v", err)
	}

	u := l.updates[0]
	if u.Status != domain.StatusRateLimited || u.ErrorCode != domain.CodeGatewayAPI || u.AddRetries != 3 {
		t.Fatalf("unexpected update %+v", u)
	}
	if n := utf8.RuneCountInString(u.ErrorDescription); n != MaxErrorDescription {
		t.Fatalf("expected description truncated to %d runes, got %d", MaxErrorDescription, n)
	}
	if !utf8.ValidString(u.ErrorDescription) {
		t.Fatalf("truncation split a rune")
	}

	w := d.writes[0]
	if w.merge || w.key != "51987654321_error_1709294400000_11" {
		t.Fatalf("unexpected failure doc write %+v", w)
	}
	if w.doc.Status != "rate_limited" || w.doc.Error != long {
		t.Fatalf("unexpected failure doc %+v", w.doc)
	}
}

func TestRecordFailureKeysDifferAcrossCampaigns(t *testing.T) {
	l, d := &fakeLedger{}, &fakeDocs{}
	r := New(l, d)
	res := domain.AttemptResult{Outcome: domain.OutcomeRejected, ErrorCode: domain.CodeGatewayAPI, ErrorMessage: "bad", Attempts: 1}

	first := assoc()
	second := assoc()
	second.ID, second.CampaignID = 12, 10
	rcSecond := rc()
	rcSecond.CampaignID = 10

	if err := r.Record(context.Background(), first, res, "", rc()); err != nil {
		t.Fatalf("record first: %v", err)
	}
	if err := r.Record(context.Background(), second, res, "", rcSecond); err != nil {
		t.Fatalf("record second: %v", err)
	}
	if len(d.writes) != 2 || d.writes[0].key == d.writes[1].key {
		t.Fatalf("failure documents in the same millisecond must not share a key: %+v", d.writes)
	}
}

func TestRecordUnknownOutcomeIsFailed(t *testing.T) {
	l := &fakeLedger{}
	r := New(l, nil)
	res := domain.AttemptResult{Outcome: domain.OutcomeUnknownError, ErrorCode: domain.CodeUnknown, ErrorMessage: "x", Attempts: 1}
	if err := r.Record(context.Background(), assoc(), res, "", rc()); err != nil {
		t.Fatalf("record: %v", err)
	}
	if l.updates[0].Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", l.updates[0].Status)
	}
}

func TestRecordLedgerFailure(t *testing.T) {
	l, d := &fakeLedger{err: errors.New("conn reset")}, &fakeDocs{}
	r := New(l, d)

	err := r.Record(context.Background(), assoc(), domain.AttemptResult{Outcome: domain.OutcomeSuccess, MessageID: "SM1"}, "", rc())
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if len(d.writes) != 0 {
		t.Fatalf("audit doc must not be written when the ledger update fails")
	}
}

func TestRecordDocumentFailureIsSwallowed(t *testing.T) {
	l, d := &fakeLedger{}, &fakeDocs{err: errors.New("throttled")}
	r := New(l, d)

	err := r.Record(context.Background(), assoc(), domain.AttemptResult{Outcome: domain.OutcomeSuccess, MessageID: "SM1"}, "", rc())
	if err != nil {
		t.Fatalf("document failure should not surface, got %v", err)
	}
	if len(l.updates) != 1 || len(d.writes) != 1 {
		t.Fatalf("expected both writes attempted")
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"abc", 5, "abc"},
		{"abcdef", 3, "abc"},
		{"ñañaña", 2, "ña"},
		{"", 3, ""},
		{"abc", 0, ""},
	}
	for _, tc := range cases {
		if got := Truncate(tc.in, tc.n); got != tc.want {
			t.Fatalf("Truncate(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}
