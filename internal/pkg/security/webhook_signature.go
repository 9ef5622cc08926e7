package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// VerifyWebhookSignature checks the platform's HMAC-SHA256 webhook header.
// The platform documents base64 digests; hex is accepted as a fallback for
// environments that were configured against older docs.
func VerifyWebhookSignature(payload []byte, signatureHeader, webhookSecret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" || secret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	if decoded, err := base64.StdEncoding.DecodeString(sig); err == nil {
		if hmac.Equal(expected, decoded) {
			return true
		}
	}
	if decoded, err := hex.DecodeString(strings.ToLower(sig)); err == nil {
		return hmac.Equal(expected, decoded)
	}
	return false
}
