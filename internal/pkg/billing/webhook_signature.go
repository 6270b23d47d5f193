package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifyWebhookSignature checks a provider webhook delivery. The signature
// header has the form "ts=<unix_timestamp>,h1=<hex_hmac_sha256>"; the HMAC
// is computed over "<timestamp>.<raw payload bytes>" with the shared
// webhook secret. Verification runs against the raw body, never a
// reserialized form.
func VerifyWebhookSignature(payload []byte, signatureHeader, timestampHeader, webhookSecret string) bool {
	secret := strings.TrimSpace(webhookSecret)
	timestamp := strings.TrimSpace(timestampHeader)
	if secret == "" || timestamp == "" {
		return false
	}

	sig := extractSignaturePart(signatureHeader, "h1")
	if sig == "" {
		return false
	}
	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decodedSig)
}

func extractSignaturePart(header, key string) string {
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && k == key {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
