package twiliowhatsapp

import (
	"context"
	"testing"
)

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Fatalf("NewClient accepted empty credentials")
	}

	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("token")); err == nil {
		t.Fatalf("NewClient accepted missing from number")
	}
}

func TestNewClientWithOptions(t *testing.T) {
	c, err := NewClient(
		WithAccountSID("AC123"),
		WithAuthToken("token"),
		WithFromWhats("whatsapp:+15550001111"),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.fromWhats != "whatsapp:+15550001111" {
		t.Errorf("fromWhats = %q, want whatsapp:+15550001111", c.fromWhats)
	}
}

func TestMockClientRecordsMessages(t *testing.T) {
	m := NewMockClient()
	if err := m.SendMessage(context.Background(), "+15551234567", "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(m.SentMessages) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(m.SentMessages))
	}
	if m.SentMessages[0].To != "+15551234567" || m.SentMessages[0].Body != "hello" {
		t.Errorf("unexpected sent message: %+v", m.SentMessages[0])
	}
}
