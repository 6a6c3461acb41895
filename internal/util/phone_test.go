package util

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		raw  string
		cc   string
		want string
		ok   bool
	}{
		{"987654321", "51", "51987654321", true},
		{"51987654321", "51", "51987654321", true},
		{"+51 987 654 321", "51", "51987654321", true},
		{"987-654-321", "51", "51987654321", true},
		{"whatsapp:+51987654321", "51", "51987654321", true},
		{" 987654321 ", "", "987654321", true},
		{"", "51", "", false},
		{"n/a", "51", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizePhone(tc.raw, tc.cc)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("NormalizePhone(%q, %q) = %q, %v; want %q, %v", tc.raw, tc.cc, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	once, _ := NormalizePhone("987654321", "51")
	twice, _ := NormalizePhone(once, "51")
	if once != twice {
		t.Fatalf("expected idempotent normalization, got %q then %q", once, twice)
	}
}

func TestE164(t *testing.T) {
	if got := E164("51987654321"); got != "+51987654321" {
		t.Fatalf("got %q", got)
	}
	if got := E164("+51987654321"); got != "+51987654321" {
		t.Fatalf("got %q", got)
	}
}
