package webhook

import (
	"testing"

	"github.com/ficmart/txengine/internal/config"
)

func TestVerifier_SignAndVerifyRoundTrip(t *testing.T) {
	v := NewVerifier(config.WebhookConfig{Secret: "shh"})
	payload := []byte(`{"transaction_id":"abc","status":"COMPLETED"}`)

	sig := v.Sign(payload)
	if err := v.Verify(payload, sig); err != nil {
		t.Fatalf("Verify() error = %v, want nil", err)
	}
}

func TestVerifier_RejectsTamperedPayload(t *testing.T) {
	v := NewVerifier(config.WebhookConfig{Secret: "shh"})
	sig := v.Sign([]byte(`{"status":"COMPLETED"}`))

	if err := v.Verify([]byte(`{"status":"FAILED"}`), sig); err == nil {
		t.Fatal("expected Verify() to reject a payload that doesn't match the signature")
	}
}

func TestVerifier_FailsClosedWithoutSecret(t *testing.T) {
	v := NewVerifier(config.WebhookConfig{})
	payload := []byte(`{"status":"COMPLETED"}`)
	sig := v.Sign(payload)

	if err := v.Verify(payload, sig); err == nil {
		t.Fatal("expected Verify() to fail closed when no secret is configured")
	}
}
