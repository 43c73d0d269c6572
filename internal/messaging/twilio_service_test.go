package messaging

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/boovines/Nudge/internal/twiliosms"
)

// Ensure TwilioService implements Service interface
func TestTwilioService_ImplementsService(t *testing.T) {
	var _ Service = (*TwilioService)(nil)
}

func TestTwilioService_SendMessageCanonicalizes(t *testing.T) {
	mockClient := twiliosms.NewMockClient()
	svc := NewTwilioService(mockClient)

	if err := svc.SendMessage(context.Background(), "+1 (555) 123-4567", "your code is ready"); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	if len(mockClient.SentMessages) != 1 {
		t.Fatalf("expected one sent message, got %d", len(mockClient.SentMessages))
	}
	if mockClient.SentMessages[0].To != "15551234567" {
		t.Errorf("expected canonical recipient, got %q", mockClient.SentMessages[0].To)
	}
}

func TestTwilioService_SendMessageRejectsBadRecipient(t *testing.T) {
	svc := NewTwilioService(twiliosms.NewMockClient())
	if err := svc.SendMessage(context.Background(), "nope", "hello"); err == nil {
		t.Fatal("expected validation error for non-numeric recipient")
	}
}

func TestTwilioService_SendMessageAfterStop(t *testing.T) {
	svc := NewTwilioService(twiliosms.NewMockClient())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := svc.SendMessage(context.Background(), "+15551234567", "hello"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}

func TestTwilioService_WebhookHandler(t *testing.T) {
	svc := NewTwilioService(twiliosms.NewMockClient())

	form := url.Values{}
	form.Set("From", "+15559876543")
	form.Set("Body", "do you have any discounts?")
	form.Set("MessageSid", "SM1234567890abcdef")

	req := httptest.NewRequest("POST", "/webhooks/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	svc.WebhookHandler(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	select {
	case incoming := <-svc.Responses():
		if incoming.From != "+15559876543" {
			t.Errorf("expected webhook sender, got %q", incoming.From)
		}
		if incoming.Body != "do you have any discounts?" {
			t.Errorf("expected webhook body, got %q", incoming.Body)
		}
		if incoming.MessageID != "SM1234567890abcdef" {
			t.Errorf("expected message SID to ride along, got %q", incoming.MessageID)
		}
	default:
		t.Fatal("expected incoming message, got none")
	}
}

func TestTwilioService_WebhookHandlerMissingFields(t *testing.T) {
	svc := NewTwilioService(twiliosms.NewMockClient())

	form := url.Values{}
	form.Set("From", "+15559876543")

	req := httptest.NewRequest("POST", "/webhooks/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	svc.WebhookHandler(rr, req)

	if rr.Code != 400 {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	select {
	case incoming := <-svc.Responses():
		t.Fatalf("expected no message, got %v", incoming)
	default:
	}
}
