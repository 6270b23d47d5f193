package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
)

func signPayload(payload []byte, timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(payload)
	return fmt.Sprintf("ts=%s,h1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"event_id":"evt_1"}`)
	secret := "whsec_test"
	ts := "1724932800"

	header := signPayload(payload, ts, secret)

	if !VerifyWebhookSignature(payload, header, ts, secret) {
		t.Fatalf("expected valid signature to verify")
	}
	if VerifyWebhookSignature(payload, header, ts, "other-secret") {
		t.Fatalf("wrong secret must not verify")
	}
	if VerifyWebhookSignature(payload, header, "1724932801", secret) {
		t.Fatalf("wrong timestamp must not verify")
	}
}

func TestVerifyWebhookSignatureTamperedPayload(t *testing.T) {
	payload := []byte(`{"event_id":"evt_1","amount":100}`)
	secret := "whsec_test"
	ts := "1724932800"
	header := signPayload(payload, ts, secret)

	tampered := []byte(`{"event_id":"evt_1","amount":900}`)
	if VerifyWebhookSignature(tampered, header, ts, secret) {
		t.Fatalf("tampered payload must not verify")
	}
}

func TestVerifyWebhookSignatureMalformedHeader(t *testing.T) {
	payload := []byte(`{}`)
	secret := "whsec_test"
	ts := "1724932800"

	for _, header := range []string{"", "ts=123", "h1=not-hex", "garbage"} {
		if VerifyWebhookSignature(payload, header, ts, secret) {
			t.Fatalf("header %q must not verify", header)
		}
	}
	if VerifyWebhookSignature(payload, signPayload(payload, ts, secret), ts, "") {
		t.Fatalf("empty secret must not verify")
	}
}
