package advisory

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-triage-backend/internal/triage"
)

// defaultTimeout bounds a single provider call. A timeout is treated
// identically to a network failure: it triggers fallback.
const defaultTimeout = 12 * time.Second

// fallbackTotal counts advisory calls that degraded to the deterministic
// engine (or canned chat replies), by call mode.
var fallbackTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "advisory_fallback_total",
		Help: "Advisory provider calls that fell back to local rules.",
	},
	[]string{"mode"},
)

func init() {
	prometheus.MustRegister(fallbackTotal)
}

// Orchestrator prefers a remote advisory provider and degrades transparently
// to the deterministic engine. Callers cannot distinguish "provider
// declined" from "provider misconfigured" from "provider errored" except via
// the result's source tag and server-side logs.
type Orchestrator struct {
	// Engine is the guaranteed last resort. Required.
	Engine *triage.Engine
	// Provider is the configured advisory provider; nil short-circuits
	// straight to the engine.
	Provider Provider
	// Timeout bounds each provider call; defaultTimeout when zero.
	Timeout time.Duration
}

// NewOrchestrator constructs an Orchestrator around the given engine and
// provider (provider may be nil).
func NewOrchestrator(engine *triage.Engine, provider Provider) *Orchestrator {
	return &Orchestrator{Engine: engine, Provider: provider, Timeout: defaultTimeout}
}

// Resolve maps an intake to a classification. It never returns an error:
// every provider fault terminates in the deterministic engine's result,
// tagged source=local_rules.
func (o *Orchestrator) Resolve(ctx context.Context, in triage.Intake) triage.Classification {
	tr := otel.Tracer("advisory/Orchestrator")
	ctx, span := tr.Start(ctx, "Resolve",
		trace.WithAttributes(attribute.Bool("advisory.enabled", o.Provider != nil)),
	)
	defer span.End()

	if o.Provider != nil {
		cctx, cancel := context.WithTimeout(ctx, o.timeout())
		cls, err := o.Provider.Triage(cctx, in)
		cancel()
		if err == nil && cls != nil {
			cls.Source = o.Provider.Name()
			span.SetAttributes(attribute.String("advisory.source", cls.Source))
			return *cls
		}
		// Provider faults are recovered locally and never surface to the
		// caller; diagnostics stay server-side.
		log.Warn().Err(err).Str("provider", o.Provider.Name()).Msg("advisory triage fell back to local rules")
		fallbackTotal.WithLabelValues("triage").Inc()
	}

	out := o.Engine.Classify(in)
	span.SetAttributes(attribute.String("advisory.source", out.Source))
	return out
}

// Reply maps a conversational message to reply text and its source tag.
// The same disqualification discipline applies; fallback returns canned,
// keyword-triggered safety replies.
func (o *Orchestrator) Reply(ctx context.Context, message string, history []Turn) (reply, source string) {
	tr := otel.Tracer("advisory/Orchestrator")
	ctx, span := tr.Start(ctx, "Reply")
	defer span.End()

	if o.Provider != nil {
		cctx, cancel := context.WithTimeout(ctx, o.timeout())
		text, err := o.Provider.Chat(cctx, message, history)
		cancel()
		if err == nil && text != "" {
			span.SetAttributes(attribute.String("advisory.source", o.Provider.Name()))
			return text, o.Provider.Name()
		}
		log.Warn().Err(err).Str("provider", o.Provider.Name()).Msg("advisory chat fell back to canned replies")
		fallbackTotal.WithLabelValues("chat").Inc()
	}

	span.SetAttributes(attribute.String("advisory.source", "fallback"))
	return cannedReply(message), "fallback"
}

func (o *Orchestrator) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return defaultTimeout
}

// cannedReply returns a fixed safety reply keyed off the message text, with
// an emergency escalation for breathing/chest-pain/bleeding terms.
func cannedReply(message string) string {
	text := strings.ToLower(message)
	switch {
	case strings.Contains(text, "chest pain") || strings.Contains(text, "breath") || strings.Contains(text, "bleeding"):
		return "Your symptoms may be serious. Please seek urgent medical care immediately."
	case strings.Contains(text, "fever"):
		return "For fever, stay hydrated, rest, and monitor temperature. If fever is high or persistent, visit a clinician."
	case strings.Contains(text, "cough"):
		return "For cough, rest and hydrate. If breathing difficulty, chest pain, or prolonged symptoms occur, seek medical care."
	default:
		return "I can help with general health guidance, triage steps, and preparing for clinic visits. Share symptoms and duration for better guidance."
	}
}
