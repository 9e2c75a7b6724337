package webhookauth

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "shpss_test_secret"

func TestVerifyAcceptsOwnSignature(t *testing.T) {
	body := []byte(`{"id":123,"line_items":[]}`)
	sig := Sign(body, testSecret)

	assert.True(t, Verify(body, sig, testSecret))
	assert.Equal(t, sig, Sign(body, testSecret), "signature must be deterministic")
}

func TestVerifyRejectsSingleByteChange(t *testing.T) {
	body := []byte(`{"id":123,"total_price":"24.00"}`)
	sig := Sign(body, testSecret)

	for i := range body {
		tampered := bytes.Clone(body)
		tampered[i] ^= 0x01
		if Verify(tampered, sig, testSecret) {
			t.Fatalf("tampered byte %d still verified", i)
		}
	}
}

func TestVerifyRejectsMissingInputs(t *testing.T) {
	body := []byte(`{}`)
	sig := Sign(body, testSecret)

	assert.False(t, Verify(body, sig, ""), "empty secret")
	assert.False(t, Verify(body, "", testSecret), "empty header")
	assert.False(t, Verify(body, sig[:len(sig)-2], testSecret), "length mismatch")
	assert.False(t, Verify(body, Sign(body, "other"), testSecret), "wrong secret")
}

func TestVerifyRequestUsesRawBody(t *testing.T) {
	// Whitespace differences matter: re-serialising JSON would break the signature.
	body := `{ "id" : 123 }`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify/orders/create", strings.NewReader(body))
	req.Header.Set(HeaderHmac, Sign([]byte(body), testSecret))

	raw, ok, err := VerifyRequest(req, testSecret, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, body, string(raw))
}

func TestReadBodyLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", 11)))
	_, err := ReadBody(req, 10)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}
