// Package advisory calls an external text-generation provider for triage
// guidance and conversational replies, validates the provider's output
// against a strict shape contract, and falls back to the deterministic
// engine on any disqualifying condition. No error on this path ever reaches
// a caller; every failure terminates in a valid local result.
package advisory

import (
	"encoding/json"
	"fmt"

	"github.com/tbourn/go-triage-backend/internal/triage"
)

// triageInstructions is the standing safety instruction sent with every
// triage call regardless of provider.
const triageInstructions = "You are a cautious medical triage assistant. Provide general health guidance only. Do not diagnose, do not prescribe medication dosages, and encourage seeking professional care for severe or red-flag symptoms. Keep output concise."

// chatInstructions is the standing safety instruction for the conversational
// variant.
const chatInstructions = "You are a health-intake assistant. Provide concise, safe, non-diagnostic health guidance. Escalate emergencies. Avoid medication dosages. Keep replies under 120 words."

// Generation settings shared by both providers: low temperature favors
// determinism over creativity; output budgets bound cost and latency.
const (
	triageTemperature = 0.2
	triageMaxTokens   = 400
	chatTemperature   = 0.3
	chatMaxTokens     = 220
	// historyWindow caps how many prior turns the chat prompt restates.
	historyWindow = 8
)

// promptIntake is the provider-agnostic restatement of an intake. Field
// names are part of the prompt contract, not the storage schema.
type promptIntake struct {
	Age               *int     `json:"age"`
	Sex               *string  `json:"sex"`
	DurationDays      *int     `json:"durationDays"`
	Severity          *int     `json:"severity"`
	Symptoms          []string `json:"symptoms"`
	RedFlags          []string `json:"redFlags"`
	AdditionalContext string   `json:"additionalContext"`
}

// BuildTriagePrompt renders the intake plus explicit output-schema
// instructions. The schema constrains level to the three-tier enum and pins
// exactly the fields the shape check later verifies.
func BuildTriagePrompt(in triage.Intake) string {
	p := promptIntake{
		Age:               in.Age,
		DurationDays:      in.DurationDays,
		Severity:          in.Severity,
		Symptoms:          in.Symptoms,
		RedFlags:          in.RedFlags,
		AdditionalContext: in.Note,
	}
	if in.Sex != "" {
		sex := in.Sex
		p.Sex = &sex
	}
	if p.Symptoms == nil {
		p.Symptoms = []string{}
	}
	if p.RedFlags == nil {
		p.RedFlags = []string{}
	}

	blob, _ := json.MarshalIndent(p, "", "  ")
	return fmt.Sprintf("Patient intake (JSON):\n%s\n\n"+
		"Return ONLY valid JSON with keys: level, headline, urgency, suggestions, disclaimer.\n"+
		"- level must be one of: emergency, urgent, self_care.\n"+
		"- headline: short sentence.\n"+
		"- urgency: 1-2 sentences.\n"+
		"- suggestions: array of 3-5 short actionable tips.\n"+
		"- disclaimer: include that this is general guidance, not diagnosis, and to seek immediate care for emergencies.\n"+
		"Do not provide a medical diagnosis, do not give medication dosages, and do not replace a clinician.", blob)
}

// providerResult is the exact shape a provider must return. Decoding fails
// when suggestions is not a list of text items, which is one of the
// disqualifying conditions.
type providerResult struct {
	Level       string   `json:"level"`
	Headline    string   `json:"headline"`
	Urgency     string   `json:"urgency"`
	Suggestions []string `json:"suggestions"`
	Disclaimer  string   `json:"disclaimer"`
}

// ParseClassification parses provider output text into a classification,
// enforcing the strict shape contract: valid JSON, level in the three-value
// enum, headline/urgency/disclaimer present as text, suggestions a list of
// text items. It returns (nil, false) on any violation.
//
// Provider-sourced classifications carry no confidence or reasons; the
// advisory schema does not include them.
func ParseClassification(text string) (*triage.Classification, bool) {
	var res providerResult
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		return nil, false
	}
	switch res.Level {
	case triage.LevelEmergency, triage.LevelUrgent, triage.LevelSelfCare:
	default:
		return nil, false
	}
	if res.Headline == "" || res.Urgency == "" || res.Disclaimer == "" {
		return nil, false
	}
	if res.Suggestions == nil {
		return nil, false
	}
	return &triage.Classification{
		Level:       res.Level,
		Headline:    res.Headline,
		Urgency:     res.Urgency,
		Suggestions: res.Suggestions,
		Disclaimer:  res.Disclaimer,
	}, true
}
