// Package services – AssistantService
//
// This file implements the AssistantService, the conversational companion to
// the triage flow. It enforces message bounds and the per-actor fixed-window
// rate limit, then delegates to the advisory orchestrator, which answers from
// the configured provider or falls back to canned safety replies.
package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/go-triage-backend/internal/advisory"
	"github.com/tbourn/go-triage-backend/internal/ratelimit"
)

// maxAssistantMessageLen caps a single assistant message by rune length.
const maxAssistantMessageLen = 1000

// maxAssistantHistory caps how many prior turns a request may carry; older
// turns are dropped before they reach the provider anyway.
const maxAssistantHistory = 20

var assistantRepliesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "assistant_replies_total",
		Help: "Assistant replies served, by source.",
	},
	[]string{"source"},
)

func init() {
	prometheus.MustRegister(assistantRepliesTotal)
}

// AssistantService answers free-form health questions.
type AssistantService struct {
	// Advisor resolves replies (provider-first, canned fallback).
	Advisor *advisory.Orchestrator
	// Limiter enforces the per-operation fixed window.
	Limiter *ratelimit.Limiter

	// MaxPerWindow and Window define the chat rate limit per actor
	// (authenticated user ID, or client IP for anonymous callers).
	MaxPerWindow int
	Window       time.Duration
}

// NewAssistantService constructs an AssistantService with the standard limit
// of 60 messages per minute per actor.
func NewAssistantService(advisor *advisory.Orchestrator, limiter *ratelimit.Limiter) *AssistantService {
	return &AssistantService{
		Advisor:      advisor,
		Limiter:      limiter,
		MaxPerWindow: 60,
		Window:       time.Minute,
	}
}

// Reply answers one message. The source tag names the provider that produced
// the reply, or "fallback" for canned replies.
func (s *AssistantService) Reply(ctx context.Context, actor, message string, history []advisory.Turn) (reply, source string, err error) {
	if res := s.Limiter.Check("chat:"+actor, s.MaxPerWindow, s.Window); !res.Allowed {
		return "", "", &RateLimitedError{RetryAfter: res.RetryAfter}
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return "", "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(message) > maxAssistantMessageLen {
		return "", "", ErrMessageTooLong
	}
	if len(history) > maxAssistantHistory {
		history = history[len(history)-maxAssistantHistory:]
	}

	reply, source = s.Advisor.Reply(ctx, message, history)
	assistantRepliesTotal.WithLabelValues(source).Inc()
	return reply, source, nil
}
