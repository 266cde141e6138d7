package messaging

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/BTreeMap/BookingPipe/internal/twiliowhatsapp"
)

func TestTwilioServiceValidateAndCanonicalizeRecipient(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	canonical, err := svc.ValidateAndCanonicalizeRecipient("+1 (555) 123-4567")
	if err != nil {
		t.Fatalf("ValidateAndCanonicalizeRecipient failed: %v", err)
	}
	if canonical != "15551234567" {
		t.Errorf("canonical = %q, want 15551234567", canonical)
	}

	if _, err := svc.ValidateAndCanonicalizeRecipient(""); err == nil {
		t.Errorf("empty recipient accepted")
	}
	if _, err := svc.ValidateAndCanonicalizeRecipient("abc"); err == nil {
		t.Errorf("recipient without digits accepted")
	}
	if _, err := svc.ValidateAndCanonicalizeRecipient("12345"); err == nil {
		t.Errorf("five-digit recipient accepted")
	}
}

func TestTwilioServiceSendMessageEmitsReceipt(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)

	if err := svc.SendMessage(context.Background(), "+15551234567", "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(mock.SentMessages))
	}
	if mock.SentMessages[0].To != "15551234567" {
		t.Errorf("sent to %q, want canonicalized 15551234567", mock.SentMessages[0].To)
	}

	select {
	case r := <-svc.Receipts():
		if r.Status != models.MessageStatusSent || r.To != "15551234567" {
			t.Errorf("unexpected receipt: %+v", r)
		}
	default:
		t.Errorf("no receipt emitted")
	}
}

func TestTwilioServiceTruncatesLongBodies(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)

	long := strings.Repeat("x", MaxTwilioBodyLength+500)
	if err := svc.SendMessage(context.Background(), "+15551234567", long); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	body := mock.SentMessages[0].Body
	if got := utf8.RuneCountInString(body); got != MaxTwilioBodyLength {
		t.Errorf("truncated body length = %d characters, want %d", got, MaxTwilioBodyLength)
	}
	if !strings.HasSuffix(body, truncationSuffix) {
		t.Errorf("truncated body missing marker suffix")
	}

	// Bodies at or under the limit pass through untouched.
	exact := strings.Repeat("y", MaxTwilioBodyLength)
	if got := truncateBody(exact); got != exact {
		t.Errorf("body at limit was modified")
	}
}

func TestTruncateBodyCutsOnRuneBoundary(t *testing.T) {
	// The limit counts characters, not bytes, and the cut must never split
	// a multi-byte rune.
	body := truncateBody(strings.Repeat("é", MaxTwilioBodyLength+1))
	if !utf8.ValidString(body) {
		t.Fatalf("truncated body is not valid UTF-8")
	}
	if got := utf8.RuneCountInString(body); got != MaxTwilioBodyLength {
		t.Errorf("truncated body length = %d characters, want %d", got, MaxTwilioBodyLength)
	}
	if !strings.HasSuffix(body, truncationSuffix) {
		t.Errorf("truncated body missing marker suffix")
	}

	// A multi-byte body whose character count fits the limit is untouched
	// even though its byte count exceeds it.
	exact := strings.Repeat("é", MaxTwilioBodyLength)
	if got := truncateBody(exact); got != exact {
		t.Errorf("multi-byte body at limit was modified")
	}
}

func TestTwilioServiceStopRejectsSends(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := svc.SendMessage(context.Background(), "+15551234567", "hello"); err != ErrServiceStopped {
		t.Errorf("SendMessage after Stop returned %v, want ErrServiceStopped", err)
	}
	// Stop is idempotent.
	if err := svc.Stop(); err != nil {
		t.Errorf("second Stop returned %v", err)
	}
}

func TestTwilioServiceEmitResponse(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	svc.EmitResponse(models.Response{From: "+15551234567", Body: "start", Time: 1700000000})

	select {
	case r := <-svc.Responses():
		if r.From != "+15551234567" || r.Body != "start" {
			t.Errorf("unexpected response: %+v", r)
		}
	default:
		t.Errorf("no response emitted")
	}
}
