package domain

type PayloadKind string

const (
	PayloadTemplate PayloadKind = "template"
	PayloadText     PayloadKind = "text"
)

// Payload is the gateway neutral outbound message. Each gateway encodes
// it in its own wire shape.
type Payload struct {
	Kind         PayloadKind
	To           string // digits only, country code prefixed
	TemplateName string
	ContentSID   string
	Language     string
	Params       []string // ordered by positional index
	Text         string
}
