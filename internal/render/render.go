package render

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"campaigns/internal/domain"
)

const defaultLanguage = "es"

type Rendered struct {
	Payload   domain.Payload
	AuditText string
}

// Render builds the gateway payload and the substituted audit text for one
// client. It does no I/O and is deterministic for identical inputs.
func Render(tmpl domain.Template, mapping map[string]string, client domain.Client, to string) Rendered {
	lang := tmpl.Language
	if lang == "" {
		lang = defaultLanguage
	}

	if !tmpl.HasParams() {
		return Rendered{
			Payload: domain.Payload{
				Kind:         domain.PayloadText,
				To:           to,
				TemplateName: tmpl.GatewayTemplateName,
				ContentSID:   tmpl.ContentSID,
				Language:     lang,
				Text:         tmpl.Message,
			},
			AuditText: tmpl.Message,
		}
	}

	indices := SortedIndices(mapping)
	params := make([]string, 0, len(indices))
	text := tmpl.Message
	for _, idx := range indices {
		v := Value(client, mapping[idx])
		params = append(params, v)
		text = placeholder(idx).ReplaceAllLiteralString(text, v)
	}

	return Rendered{
		Payload: domain.Payload{
			Kind:         domain.PayloadTemplate,
			To:           to,
			TemplateName: tmpl.GatewayTemplateName,
			ContentSID:   tmpl.ContentSID,
			Language:     lang,
			Params:       params,
		},
		AuditText: text,
	}
}

// SortedIndices returns mapping keys in ascending numeric order. Keys that
// are not integers go last, in lexical order.
func SortedIndices(mapping map[string]string) []string {
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(strings.TrimSpace(keys[i]))
		b, errB := strconv.Atoi(strings.TrimSpace(keys[j]))
		switch {
		case errA == nil && errB == nil:
			if a != b {
				return a < b
			}
			return keys[i] < keys[j]
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Value resolves a client field for substitution. Missing fields are empty.
func Value(client domain.Client, field string) string {
	v, _ := client.Field(field)
	return Normalize(v)
}

// Normalize trims whitespace and trailing commas left by spreadsheet exports.
func Normalize(v string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(v), ","))
}

func placeholder(idx string) *regexp.Regexp {
	return regexp.MustCompile(`\{\{\s*` + regexp.QuoteMeta(strings.TrimSpace(idx)) + `\s*\}\}`)
}
