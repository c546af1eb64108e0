// Deterministic risk-scoring engine.
//
// The engine is a pure function over a pre-validated Intake. It never does
// I/O, never fails, and produces byte-identical output for identical input.
// Red-flag detection is a data-driven keyword table checked by substring
// containment; the match is intentionally blunt and should only be tuned
// with product input.
package triage

import "strings"

// Classification levels.
const (
	LevelEmergency = "emergency"
	LevelUrgent    = "urgent"
	LevelSelfCare  = "self_care"
)

// Confidence grades attached to deterministic results.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Result sources.
const (
	SourceLocalRules = "local_rules"
	SourceOpenAI     = "openai"
	SourceGemini     = "gemini"
)

// Disclaimer is the fixed safety text attached to every classification.
const Disclaimer = "This is general guidance, not a medical diagnosis. For emergencies, seek immediate care."

// Classification is the immutable outcome of a triage request.
//
// Confidence and Reasons are produced only by the deterministic engine;
// advisory-sourced results leave them empty because the provider schema
// does not carry them.
type Classification struct {
	Level       string   `json:"level"`
	Headline    string   `json:"headline"`
	Urgency     string   `json:"urgency"`
	Suggestions []string `json:"suggestions"`
	Confidence  string   `json:"confidence,omitempty"`
	Reasons     []string `json:"reasons,omitempty"`
	Disclaimer  string   `json:"disclaimer"`
	Source      string   `json:"source"`
}

// defaultCatalogue is the red-flag keyword table. A hit occurs when any
// normalized symptom or red-flag entry contains one of these as a substring.
var defaultCatalogue = []string{
	"chest pain",
	"trouble breathing",
	"severe breathlessness",
	"uncontrolled bleeding",
	"fainting",
	"loss of consciousness",
	"stroke",
	"seizure",
	"severe allergic reaction",
	"suicidal thoughts",
}

// baseSuggestions is the fixed start of every suggestion list.
var baseSuggestions = []string{
	"Rest, hydrate, and avoid strenuous activity.",
	"Track your symptoms and note any changes.",
	"If symptoms worsen, seek medical care.",
}

// Engine classifies intakes using a fixed catalogue and weighted signals.
// The zero value is not usable; construct with NewEngine.
type Engine struct {
	catalogue []string
}

// NewEngine returns an Engine with the standard red-flag catalogue.
func NewEngine() *Engine {
	return &Engine{catalogue: defaultCatalogue}
}

// NewEngineWithCatalogue returns an Engine with a custom keyword table.
// Keywords are matched case-insensitively as substrings.
func NewEngineWithCatalogue(keywords []string) *Engine {
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	return &Engine{catalogue: lowered}
}

// Classify maps a pre-validated intake to a classification.
//
// Decision order (first match wins):
//  1. red-flag hit            -> emergency, confidence high
//  2. risk score >= 4         -> urgent, confidence high
//  3. risk score >= 2         -> self_care, confidence medium, monitor reason
//  4. otherwise               -> self_care, confidence medium
//
// The reason list accumulates an entry for every contributing signal in a
// fixed evaluation order regardless of which branch fires; the red-flag
// reason is appended only on the emergency branch.
func (e *Engine) Classify(in Intake) Classification {
	symptoms := normalizeAll(in.Symptoms)
	redFlags := normalizeAll(in.RedFlags)

	hit := e.anyContains(symptoms) || e.anyContains(redFlags)

	age := 0
	if in.Age != nil {
		age = *in.Age
	}
	highRiskAge := in.Age != nil && age >= 65
	veryYoungAge := in.Age != nil && age <= 5
	longDuration := in.durationDays() >= 7
	highSeverity := in.severity() >= 4
	severeSymptoms := in.severity() >= 5
	multipleSymptoms := len(symptoms) >= 5

	score := 0
	if highSeverity {
		score += 2
	}
	if severeSymptoms {
		score += 2
	}
	if longDuration {
		score += 2
	}
	if highRiskAge || veryYoungAge {
		score += 2
	}
	if multipleSymptoms {
		score++
	}
	// Two points per supplied red-flag entry, capped at two entries.
	score += min(len(redFlags), 2) * 2

	var reasons []string
	if highRiskAge {
		reasons = append(reasons, "Older age risk (65+).")
	}
	if veryYoungAge {
		reasons = append(reasons, "Young child requires cautious escalation.")
	}
	if longDuration {
		reasons = append(reasons, "Symptoms present for 7+ days.")
	}
	if highSeverity {
		reasons = append(reasons, "Reported symptom severity is high.")
	}
	if multipleSymptoms {
		reasons = append(reasons, "Multiple symptoms reported.")
	}

	out := Classification{
		Level:      LevelSelfCare,
		Headline:   "Likely manageable with home care",
		Urgency:    "Monitor symptoms and practice self-care.",
		Confidence: ConfidenceMedium,
		Disclaimer: Disclaimer,
		Source:     SourceLocalRules,
	}

	switch {
	case hit:
		out.Level = LevelEmergency
		out.Headline = "Seek emergency care now"
		out.Urgency = "Go to the nearest emergency facility or call local emergency services."
		out.Confidence = ConfidenceHigh
		reasons = append(reasons, "Red-flag symptom detected.")
	case score >= 4:
		out.Level = LevelUrgent
		out.Headline = "Talk to a clinician soon"
		out.Urgency = "Consider a local clinic visit within 24-48 hours."
		out.Confidence = ConfidenceHigh
	case score >= 2:
		reasons = append(reasons, "Monitor closely due to moderate risk indicators.")
	}

	out.Reasons = reasons
	out.Suggestions = buildSuggestions(symptoms, in.PhotoRef != "")
	return out
}

// anyContains reports whether any entry contains any catalogue keyword.
func (e *Engine) anyContains(entries []string) bool {
	for _, entry := range entries {
		for _, kw := range e.catalogue {
			if strings.Contains(entry, kw) {
				return true
			}
		}
	}
	return false
}

// buildSuggestions starts from the fixed base list and appends conditional
// tips in a fixed keyword-check order so output stays deterministic.
func buildSuggestions(symptoms []string, hasPhoto bool) []string {
	out := make([]string, len(baseSuggestions))
	copy(out, baseSuggestions)

	if anySymptomContains(symptoms, "fever") {
		out = append(out, "Check temperature twice daily and keep fluids up.")
	}
	if anySymptomContains(symptoms, "cough") {
		out = append(out, "Warm fluids can soothe throat irritation.")
	}
	if anySymptomContains(symptoms, "diarrhea") {
		out = append(out, "Use oral rehydration salts if available.")
	}
	if hasPhoto {
		out = append(out, "If a visible issue is present, share the photo with a clinician for proper evaluation.")
	}
	return out
}

func anySymptomContains(symptoms []string, sub string) bool {
	for _, s := range symptoms {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// normalizeAll lowercases and trims every entry for case-insensitive matching.
func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}
