package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"campaigns/internal/delivery"
	"campaigns/internal/domain"
)

// Client sends WhatsApp messages through the Meta Cloud (Graph) API.
type Client struct {
	AccessToken   string
	PhoneNumberID string
	HTTP          *http.Client
	BaseURL       string
	APIVersion    string
}

type textBody struct {
	Body string `json:"body"`
}

type language struct {
	Code string `json:"code"`
}

type parameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type component struct {
	Type       string      `json:"type"`
	Parameters []parameter `json:"parameters"`
}

type template struct {
	Name       string      `json:"name"`
	Language   language    `json:"language"`
	Components []component `json:"components"`
}

type MessageRequest struct {
	MessagingProduct string    `json:"messaging_product"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Template         *template `json:"template,omitempty"`
	Text             *textBody `json:"text,omitempty"`
}

type messageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (c *Client) Name() string { return "meta" }

// SendMessage implements delivery.Gateway.
func (c *Client) SendMessage(ctx context.Context, p domain.Payload) (string, error) {
	body, err := json.Marshal(Encode(p))
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	var out messageResponse
	_ = json.Unmarshal(b, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || len(out.Messages) == 0 {
		ge := &delivery.GatewayError{HTTPStatus: resp.StatusCode, Message: "Unknown error"}
		if out.Error != nil {
			ge.Message = out.Error.Message
			if out.Error.Code != 0 {
				ge.Code = strconv.Itoa(out.Error.Code)
			}
		}
		return "", ge
	}
	return out.Messages[0].ID, nil
}

// Encode builds the Graph API message body for p. A parameterless template
// with a registered name still goes out as a template.
func Encode(p domain.Payload) MessageRequest {
	to := strings.TrimPrefix(p.To, "+")
	if p.Kind != domain.PayloadTemplate && p.TemplateName == "" {
		return MessageRequest{
			MessagingProduct: "whatsapp",
			To:               to,
			Type:             "text",
			Text:             &textBody{Body: p.Text},
		}
	}

	tpl := &template{
		Name:       p.TemplateName,
		Language:   language{Code: p.Language},
		Components: []component{},
	}
	if len(p.Params) > 0 {
		params := make([]parameter, 0, len(p.Params))
		for _, v := range p.Params {
			params = append(params, parameter{Type: "text", Text: v})
		}
		tpl.Components = append(tpl.Components, component{Type: "body", Parameters: params})
	}
	return MessageRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template:         tpl,
	}
}

func (c *Client) endpoint() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = "https://graph.facebook.com"
	}
	version := c.APIVersion
	if version == "" {
		version = "v18.0"
	}
	return base + "/" + version + "/" + c.PhoneNumberID + "/messages"
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

var _ delivery.Gateway = (*Client)(nil)
