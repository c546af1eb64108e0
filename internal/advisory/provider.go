package advisory

import (
	"context"

	"github.com/tbourn/go-triage-backend/internal/triage"
)

// Turn is one prior exchange in a conversational advisory session.
type Turn struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`
	// Content is the turn's text.
	Content string `json:"content"`
}

// Provider is an external text-generation service reachable over a simple
// request/response call. Implementations are interchangeable behind the
// orchestrator's disqualification contract: any transport failure,
// non-success status, or malformed output is reported as an error and
// triggers fallback.
type Provider interface {
	// Name identifies the provider in result source tags and logs.
	Name() string
	// Triage submits an intake prompt and returns the parsed, shape-checked
	// classification. The returned classification has no Source set; the
	// orchestrator tags it.
	Triage(ctx context.Context, in triage.Intake) (*triage.Classification, error)
	// Chat submits a conversational message with bounded history and
	// returns the reply text.
	Chat(ctx context.Context, message string, history []Turn) (string, error)
}

// Selection is the explicitly resolved provider choice, computed once from
// configuration rather than inferred ad hoc at call sites.
type Selection string

// Provider selections.
const (
	SelectionDisabled Selection = ""
	SelectionOpenAI   Selection = "openai"
	SelectionGemini   Selection = "gemini"
)

// Config carries the provider credentials and knobs the orchestrator needs.
// It mirrors config.Advisory but keeps this package decoupled from the
// application config layer.
type Config struct {
	Selection      Selection
	OpenAIKey      string
	OpenAIModel    string
	GeminiKey      string
	GeminiEndpoint string
}

// NewProvider constructs the selected provider client, or nil when advisory
// calls are disabled. A selection whose credential is missing also yields
// nil: a misconfigured provider must degrade to the deterministic engine,
// not error at boot.
func NewProvider(cfg Config) Provider {
	switch cfg.Selection {
	case SelectionOpenAI:
		if cfg.OpenAIKey == "" {
			return nil
		}
		return NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIModel)
	case SelectionGemini:
		if cfg.GeminiKey == "" {
			return nil
		}
		return NewGeminiClient(cfg.GeminiKey, cfg.GeminiEndpoint)
	default:
		return nil
	}
}
