package twilio

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"campaigns/internal/delivery"
	"campaigns/internal/domain"
)

// Client sends WhatsApp messages through the Twilio Messages API.
type Client struct {
	AccountSID string
	AuthToken  string
	HTTP       *http.Client

	MessagingServiceSID string
	FromNumber          string // E.164, without the whatsapp: prefix
	BaseURL             string
	StatusCallbackURL   string
}

type SendResponse struct {
	Sid       string `json:"sid"`
	Status    string `json:"status"`
	ErrorCode *int   `json:"error_code"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
}

func (c *Client) Name() string { return "twilio" }

// SendMessage implements delivery.Gateway. Template payloads use the
// Content API (ContentSid + ContentVariables); text payloads use Body.
func (c *Client) SendMessage(ctx context.Context, p domain.Payload) (string, error) {
	form, err := c.form(p)
	if err != nil {
		return "", err
	}

	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	endpoint := baseURL + "/2010-04-01/Accounts/" + c.AccountSID + "/Messages.json"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(c.AccountSID, c.AuthToken)

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	var out SendResponse
	_ = json.Unmarshal(b, &out)

	// Twilio returns 201 for created; treat 2xx as success
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ge := &delivery.GatewayError{HTTPStatus: resp.StatusCode, Message: out.Message}
		if out.Code != 0 {
			ge.Code = strconv.Itoa(out.Code)
		}
		if ge.Message == "" {
			ge.Message = "twilio send failed"
		}
		return "", ge
	}
	if out.Sid == "" {
		return "", &delivery.GatewayError{HTTPStatus: resp.StatusCode, Message: "twilio response without sid"}
	}
	return out.Sid, nil
}

func (c *Client) form(p domain.Payload) (url.Values, error) {
	form := url.Values{}
	form.Set("To", Address(p.To))
	if c.StatusCallbackURL != "" {
		form.Set("StatusCallback", c.StatusCallbackURL)
	}
	if c.MessagingServiceSID != "" {
		form.Set("MessagingServiceSid", c.MessagingServiceSID)
	} else {
		form.Set("From", Address(c.FromNumber))
	}

	switch {
	case p.Kind == domain.PayloadTemplate:
		form.Set("ContentSid", p.ContentSID)
		vars := make(map[string]string, len(p.Params))
		for i, v := range p.Params {
			vars[strconv.Itoa(i+1)] = v
		}
		b, err := json.Marshal(vars)
		if err != nil {
			return nil, err
		}
		form.Set("ContentVariables", string(b))
	case p.ContentSID != "":
		form.Set("ContentSid", p.ContentSID)
	default:
		form.Set("Body", p.Text)
	}
	return form, nil
}

// Address formats a phone number as a Twilio WhatsApp address.
func Address(phone string) string {
	phone = strings.TrimPrefix(strings.TrimSpace(phone), "whatsapp:")
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	return "whatsapp:" + phone
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

var _ delivery.Gateway = (*Client)(nil)
