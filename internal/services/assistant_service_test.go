package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tbourn/go-triage-backend/internal/advisory"
	"github.com/tbourn/go-triage-backend/internal/ratelimit"
	"github.com/tbourn/go-triage-backend/internal/triage"
)

func newAssistantSvc() *AssistantService {
	return NewAssistantService(advisory.NewOrchestrator(triage.NewEngine(), nil), ratelimit.New())
}

func TestAssistantReply_FallbackWithoutProvider(t *testing.T) {
	svc := newAssistantSvc()

	reply, source, err := svc.Reply(context.Background(), "u1", "I have a fever", nil)
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if source != "fallback" {
		t.Fatalf("source = %q, want fallback", source)
	}
	if !strings.Contains(strings.ToLower(reply), "monitor temperature") {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestAssistantReply_EmptyMessage(t *testing.T) {
	svc := newAssistantSvc()

	if _, _, err := svc.Reply(context.Background(), "u1", "   ", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestAssistantReply_TooLong(t *testing.T) {
	svc := newAssistantSvc()

	long := strings.Repeat("a", maxAssistantMessageLen+1)
	if _, _, err := svc.Reply(context.Background(), "u1", long, nil); !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("expected ErrMessageTooLong, got %v", err)
	}
}

func TestAssistantReply_RateLimited(t *testing.T) {
	svc := newAssistantSvc()
	svc.MaxPerWindow = 2

	for i := 0; i < 2; i++ {
		if _, _, err := svc.Reply(context.Background(), "ip:1.2.3.4", "hello", nil); err != nil {
			t.Fatalf("reply %d: %v", i, err)
		}
	}
	_, _, err := svc.Reply(context.Background(), "ip:1.2.3.4", "hello", nil)
	var rle *RateLimitedError
	if !errors.As(err, &rle) {
		t.Fatalf("expected *RateLimitedError, got %v", err)
	}

	// Another actor is unaffected.
	if _, _, err := svc.Reply(context.Background(), "ip:5.6.7.8", "hello", nil); err != nil {
		t.Fatalf("other actor blocked: %v", err)
	}
}

func TestAssistantReply_TrimsHistory(t *testing.T) {
	svc := newAssistantSvc()

	history := make([]advisory.Turn, maxAssistantHistory+10)
	for i := range history {
		history[i] = advisory.Turn{Role: "user", Content: "x"}
	}
	if _, _, err := svc.Reply(context.Background(), "u1", "hello", history); err != nil {
		t.Fatalf("Reply with long history: %v", err)
	}
}
