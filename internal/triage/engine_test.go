package triage

import (
	"reflect"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestClassify_RedFlagSymptomIsEmergency(t *testing.T) {
	e := NewEngine()

	cases := map[string]Intake{
		"exact keyword in symptoms":  {Symptoms: []string{"chest pain"}},
		"substring in symptoms":      {Symptoms: []string{"crushing Chest Pain since morning"}},
		"keyword in red flags":       {RedFlags: []string{"trouble breathing"}},
		"substring in red flags":     {RedFlags: []string{"sudden TROUBLE BREATHING at night"}},
		"overlapping catalogue term": {Symptoms: []string{"severe breathlessness"}},
	}

	for name, in := range cases {
		got := e.Classify(in)
		if got.Level != LevelEmergency {
			t.Errorf("%s: level = %q, want %q", name, got.Level, LevelEmergency)
		}
		if got.Confidence != ConfidenceHigh {
			t.Errorf("%s: confidence = %q, want %q", name, got.Confidence, ConfidenceHigh)
		}
		last := got.Reasons[len(got.Reasons)-1]
		if last != "Red-flag symptom detected." {
			t.Errorf("%s: last reason = %q", name, last)
		}
	}
}

func TestClassify_HighRiskScoreIsUrgent(t *testing.T) {
	e := NewEngine()

	// severity 5 (+4), duration 10 (+2), age 70 (+2) => score 8, no red flags.
	got := e.Classify(Intake{
		Age:          intPtr(70),
		DurationDays: intPtr(10),
		Severity:     intPtr(5),
		Symptoms:     []string{"fatigue", "nausea"},
	})

	if got.Level != LevelUrgent {
		t.Fatalf("level = %q, want %q", got.Level, LevelUrgent)
	}
	if got.Confidence != ConfidenceHigh {
		t.Fatalf("confidence = %q, want %q", got.Confidence, ConfidenceHigh)
	}
	wantReasons := []string{
		"Older age risk (65+).",
		"Symptoms present for 7+ days.",
		"Reported symptom severity is high.",
	}
	if !reflect.DeepEqual(got.Reasons, wantReasons) {
		t.Fatalf("reasons = %v, want %v", got.Reasons, wantReasons)
	}
}

func TestClassify_BenignIntakeIsSelfCare(t *testing.T) {
	e := NewEngine()

	got := e.Classify(Intake{
		Age:          intPtr(30),
		DurationDays: intPtr(1),
		Severity:     intPtr(1),
	})

	if got.Level != LevelSelfCare {
		t.Fatalf("level = %q, want %q", got.Level, LevelSelfCare)
	}
	if len(got.Reasons) != 0 {
		t.Fatalf("reasons = %v, want empty", got.Reasons)
	}
	if !reflect.DeepEqual(got.Suggestions, baseSuggestions) {
		t.Fatalf("suggestions = %v, want base list only", got.Suggestions)
	}
	if got.Disclaimer != Disclaimer {
		t.Fatalf("disclaimer = %q", got.Disclaimer)
	}
	if got.Source != SourceLocalRules {
		t.Fatalf("source = %q, want %q", got.Source, SourceLocalRules)
	}
}

func TestClassify_ModerateScoreAddsMonitoringReason(t *testing.T) {
	e := NewEngine()

	// severity 4 only => score 2.
	got := e.Classify(Intake{Severity: intPtr(4)})

	if got.Level != LevelSelfCare {
		t.Fatalf("level = %q, want %q", got.Level, LevelSelfCare)
	}
	last := got.Reasons[len(got.Reasons)-1]
	if last != "Monitor closely due to moderate risk indicators." {
		t.Fatalf("last reason = %q", last)
	}
}

func TestClassify_RedFlagEntriesScoreCapped(t *testing.T) {
	e := NewEngine()

	// Three unrecognized red-flag entries: only two count (+4), no hit.
	got := e.Classify(Intake{
		Severity: intPtr(1),
		RedFlags: []string{"dizzy", "sweaty", "tired"},
	})

	// Score 4 => urgent, not emergency (no catalogue keyword matched).
	if got.Level != LevelUrgent {
		t.Fatalf("level = %q, want %q", got.Level, LevelUrgent)
	}
}

func TestClassify_EmptyIntakeStillValid(t *testing.T) {
	e := NewEngine()

	got := e.Classify(Intake{})

	if got.Level != LevelSelfCare {
		t.Fatalf("level = %q, want %q", got.Level, LevelSelfCare)
	}
	if len(got.Suggestions) != len(baseSuggestions) {
		t.Fatalf("suggestions = %v", got.Suggestions)
	}
	// Default severity 3 and duration 1 contribute no score.
	if len(got.Reasons) != 0 {
		t.Fatalf("reasons = %v, want empty", got.Reasons)
	}
}

func TestClassify_ConditionalSuggestionsOrdered(t *testing.T) {
	e := NewEngine()

	got := e.Classify(Intake{
		Symptoms: []string{"Diarrhea", "dry cough", "high fever"},
		PhotoRef: "uploads/rash.jpg",
	})

	want := append(append([]string{}, baseSuggestions...),
		"Check temperature twice daily and keep fluids up.",
		"Warm fluids can soothe throat irritation.",
		"Use oral rehydration salts if available.",
		"If a visible issue is present, share the photo with a clinician for proper evaluation.",
	)
	if !reflect.DeepEqual(got.Suggestions, want) {
		t.Fatalf("suggestions = %v, want %v", got.Suggestions, want)
	}
}

func TestClassify_Idempotent(t *testing.T) {
	e := NewEngine()
	in := Intake{
		Age:          intPtr(68),
		DurationDays: intPtr(8),
		Severity:     intPtr(4),
		Symptoms:     []string{"fever", "cough", "headache", "nausea", "fatigue"},
		RedFlags:     []string{"confusion"},
	}

	first := e.Classify(in)
	second := e.Classify(in)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("classification not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestClassify_CustomCatalogue(t *testing.T) {
	e := NewEngineWithCatalogue([]string{"Blue Lips"})

	got := e.Classify(Intake{Symptoms: []string{"blue lips and cold hands"}})
	if got.Level != LevelEmergency {
		t.Fatalf("level = %q, want %q", got.Level, LevelEmergency)
	}
}
