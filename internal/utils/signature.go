package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// GenerateWebhookSignature creates the base64 HMAC-SHA256 of a webhook body,
// the format storefront platforms send in their HMAC header.
func GenerateWebhookSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature validates a base64 HMAC-SHA256 signature in constant time.
func VerifyWebhookSignature(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	expected := GenerateWebhookSignature(payload, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}
