package render

import (
	"reflect"
	"testing"

	"campaigns/internal/domain"
)

func TestRenderParamsAscendingIndexOrder(t *testing.T) {
	tmpl := domain.Template{Message: "Hola {{1}}, debes {{2}}", GatewayTemplateName: "cobranza_v1", ParamCount: 2}
	mapping := map[string]string{"2": "monto", "1": "nombre"}
	client := domain.Client{Name: "Ana", Amount: "100"}

	got := Render(tmpl, mapping, client, "51987654321")

	if got.Payload.Kind != domain.PayloadTemplate {
		t.Fatalf("expected template payload, got %s", got.Payload.Kind)
	}
	if want := []string{"Ana", "100"}; !reflect.DeepEqual(got.Payload.Params, want) {
		t.Fatalf("params: want %v, got %v", want, got.Payload.Params)
	}
	if got.Payload.TemplateName != "cobranza_v1" || got.Payload.To != "51987654321" {
		t.Fatalf("unexpected payload: %+v", got.Payload)
	}
	if got.Payload.Language != "es" {
		t.Fatalf("expected default language es, got %q", got.Payload.Language)
	}
}

func TestRenderNumericNotLexicalOrder(t *testing.T) {
	mapping := map[string]string{"10": "c", "2": "b", "1": "a"}
	got := SortedIndices(mapping)
	if want := []string{"1", "2", "10"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
}

func TestRenderAuditTextStripsTrailingComma(t *testing.T) {
	tmpl := domain.Template{Message: "Hola {{1}}, debes {{2}}", ParamCount: 2}
	mapping := map[string]string{"1": "nombre", "2": "monto"}
	client := domain.Client{Name: "Luis", Amount: "50,"}

	got := Render(tmpl, mapping, client, "51900000000")
	if got.AuditText != "Hola Luis, debes 50" {
		t.Fatalf("audit text: got %q", got.AuditText)
	}
	if got.Payload.Params[1] != "50" {
		t.Fatalf("param 2: got %q", got.Payload.Params[1])
	}
}

func TestRenderPlaceholderWhitespaceAndUnmapped(t *testing.T) {
	tmpl := domain.Template{Message: "{{ 1 }} vence el {{2}} ref {{3}}", ParamCount: 3}
	mapping := map[string]string{"1": "nombre", "2": "feccuota"}
	client := domain.Client{Name: " Rosa ", DueDate: "2024-05-01 "}

	got := Render(tmpl, mapping, client, "51900000000")
	if got.AuditText != "Rosa vence el 2024-05-01 ref {{3}}" {
		t.Fatalf("audit text: got %q", got.AuditText)
	}
}

func TestRenderMissingFieldIsEmpty(t *testing.T) {
	tmpl := domain.Template{Message: "Hola {{1}} {{2}}", ParamCount: 2}
	mapping := map[string]string{"1": "nombre", "2": "segmento"}
	client := domain.Client{Name: "Ana"}

	got := Render(tmpl, mapping, client, "51900000000")
	if want := []string{"Ana", ""}; !reflect.DeepEqual(got.Payload.Params, want) {
		t.Fatalf("want %v, got %v", want, got.Payload.Params)
	}
	if got.AuditText != "Hola Ana " {
		t.Fatalf("audit text: got %q", got.AuditText)
	}
}

func TestRenderExtraFields(t *testing.T) {
	tmpl := domain.Template{Message: "Segmento {{1}}", ParamCount: 1}
	client := domain.Client{Extra: map[string]string{"segmento": "A1,,"}}

	got := Render(tmpl, map[string]string{"1": "segmento"}, client, "51900000000")
	if got.AuditText != "Segmento A1" {
		t.Fatalf("audit text: got %q", got.AuditText)
	}
}

func TestRenderPlainText(t *testing.T) {
	tmpl := domain.Template{Message: "Recuerda tu pago {{1}}", ContentSID: "HX1"}
	got := Render(tmpl, map[string]string{"1": "nombre"}, domain.Client{Name: "Ana"}, "51900000000")

	if got.Payload.Kind != domain.PayloadText {
		t.Fatalf("expected text payload, got %s", got.Payload.Kind)
	}
	if got.AuditText != tmpl.Message || got.Payload.Text != tmpl.Message {
		t.Fatalf("expected raw message, got audit=%q text=%q", got.AuditText, got.Payload.Text)
	}
	if len(got.Payload.Params) != 0 {
		t.Fatalf("expected no params, got %v", got.Payload.Params)
	}
}

func TestRenderEmptyMessage(t *testing.T) {
	got := Render(domain.Template{ParamCount: 1}, map[string]string{"1": "nombre"}, domain.Client{Name: "Ana"}, "51900000000")
	if got.AuditText != "" {
		t.Fatalf("expected empty audit text, got %q", got.AuditText)
	}
}

func TestRenderDeterministic(t *testing.T) {
	tmpl := domain.Template{Message: "{{1}} {{2}} {{3}}", ParamCount: 3}
	mapping := map[string]string{"3": "monto", "1": "nombre", "2": "gestor"}
	client := domain.Client{Name: "Ana", Amount: "10", Manager: "Eva"}

	first := Render(tmpl, mapping, client, "51900000000")
	for i := 0; i < 20; i++ {
		if got := Render(tmpl, mapping, client, "51900000000"); !reflect.DeepEqual(got, first) {
			t.Fatalf("render not deterministic: %+v vs %+v", got, first)
		}
	}
}
