package email

import (
	"context"
	"strings"
	"testing"
)

func TestBuildMessage_Headers(t *testing.T) {
	msg := buildMessage("noreply@example.com", "Stories", "ada@example.com", "Reset your password", "body")
	if !strings.Contains(msg, "From: Stories <noreply@example.com>\r\n") {
		t.Fatalf("expected named from header, got %q", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nbody") {
		t.Fatalf("expected body after blank line, got %q", msg)
	}
}

func TestNewSMTPSender_Validation(t *testing.T) {
	if _, err := NewSMTPSender("", 0, "", "", "a@b.com", "", false); err == nil {
		t.Fatalf("expected error without host")
	}
	s, err := NewSMTPSender("smtp.example.com", 0, "", "", "a@b.com", "", false)
	if err != nil {
		t.Fatalf("expected sender, got %v", err)
	}
	if s.port != 587 {
		t.Fatalf("expected default port 587, got %d", s.port)
	}
	if err := s.SendPasswordRecovery(context.Background(), " ", "http://x"); err == nil {
		t.Fatalf("expected error for empty recipient")
	}
}

func TestMemoryAndDisabledSenders(t *testing.T) {
	ctx := context.Background()
	mem := NewMemorySender()
	_ = mem.SendConfirmation(ctx, "a@b.com", "http://confirm")
	_ = mem.SendPasswordRecovery(ctx, "a@b.com", "http://recover")
	sent := mem.Sent()
	if len(sent) != 2 || sent[0].Kind != "confirmation" || sent[1].Link != "http://recover" {
		t.Fatalf("unexpected messages %+v", sent)
	}

	if err := NewDisabledSender("smtp not configured").SendPasswordRecovery(ctx, "a@b.com", "x"); err == nil || err.Error() != "smtp not configured" {
		t.Fatalf("expected disabled error, got %v", err)
	}
}
