// Package webhookauth authenticates Shopify webhook deliveries.
package webhookauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	HeaderHmac      = "X-Shopify-Hmac-Sha256"
	HeaderTopic     = "X-Shopify-Topic"
	HeaderWebhookID = "X-Shopify-Webhook-Id"
	HeaderShop      = "X-Shopify-Shop-Domain"

	// DefaultBodyLimit caps a single delivery. Shopify order payloads stay well below it.
	DefaultBodyLimit int64 = 2 << 20
)

var ErrBodyTooLarge = errors.New("webhook_body_too_large")

// Sign returns the base64 HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the HMAC of the exact body bytes.
// An empty secret or header never verifies.
func Verify(body []byte, signature, secret string) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(body, secret)
	if len(expected) != len(signature) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// ReadBody reads the raw request body once so the same bytes are verified and parsed.
func ReadBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read webhook body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

// VerifyRequest reads the body and checks the Shopify signature header.
func VerifyRequest(r *http.Request, secret string, limit int64) ([]byte, bool, error) {
	body, err := ReadBody(r, limit)
	if err != nil {
		return nil, false, err
	}
	return body, Verify(body, r.Header.Get(HeaderHmac), secret), nil
}
