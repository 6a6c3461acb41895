package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestInitJSONCarriesService(t *testing.T) {
	var buf bytes.Buffer
	log := initTo(&buf, "worker", "json", "info")
	log.Info("hello", "campaign_id", 9)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json line, got %q", buf.String())
	}
	if line["service"] != "worker" || line["msg"] != "hello" || line["campaign_id"].(float64) != 9 {
		t.Fatalf("unexpected line %v", line)
	}
}

func TestInitLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := initTo(&buf, "api", "text", "warn")
	log.Info("dropped")
	log.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestInitUnknownFormatWarns(t *testing.T) {
	var buf bytes.Buffer
	initTo(&buf, "api", "xml", "")
	if !strings.Contains(buf.String(), "unknown log format") {
		t.Fatalf("expected a warning, got %q", buf.String())
	}
}
