package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

// Signature computes X-Twilio-Signature for a form POST to fullURL.
func Signature(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		// Twilio uses first value for each key in typical webhooks
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func VerifySignature(authToken, fullURL, provided string, form url.Values) bool {
	expected := Signature(authToken, fullURL, form)
	return hmac.Equal([]byte(expected), []byte(provided))
}

// StatusCallback is the subset of a Twilio message status callback we use.
type StatusCallback struct {
	MessageSid    string
	MessageStatus string
	ErrorCode     string
	To            string
}

func ParseStatusCallback(form url.Values) StatusCallback {
	return StatusCallback{
		MessageSid:    form.Get("MessageSid"),
		MessageStatus: form.Get("MessageStatus"),
		ErrorCode:     form.Get("ErrorCode"),
		To:            strings.TrimPrefix(form.Get("To"), "whatsapp:"),
	}
}

// Failed reports whether the status ends delivery as a failure.
func (s StatusCallback) Failed() bool {
	return s.MessageStatus == "failed" || s.MessageStatus == "undelivered"
}
