package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// VerifyWebhookSignature checks the HMAC-SHA256 the platform computes over the
// raw request body against the X-Shopify-Hmac-Sha256 header. The body must be
// the exact bytes received; re-serializing parsed JSON breaks the signature.
// Missing secret or header fails closed.
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
