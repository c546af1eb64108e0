// Package triage implements the deterministic clinical triage core: the
// intake record accepted from patients, its validation bounds, and the pure
// risk-scoring engine that maps an intake to a classification.
//
// The engine is the guaranteed last resort of the advisory pipeline and must
// therefore never fail: absence of data degrades confidence, not correctness.
package triage

import (
	"fmt"
	"unicode/utf8"
)

// Bounds enforced on intake fields before the engine runs.
const (
	MaxAge          = 120
	MaxDurationDays = 90
	MinSeverity     = 1
	MaxSeverity     = 5
	MaxSymptoms     = 20
	MaxRedFlags     = 10
	MaxNoteRunes    = 500
)

// Intake is a single per-request symptom report. Numeric fields are pointers
// so "not provided" is distinguishable from zero; the engine applies defaults
// for missing values (severity 3, duration 1 day).
type Intake struct {
	// Age in years, 0–120 when present.
	Age *int `json:"age,omitempty"`
	// Sex is free text and only echoed into provider prompts.
	Sex string `json:"sex,omitempty"`
	// DurationDays is how long symptoms have been present, 0–90.
	DurationDays *int `json:"durationDays,omitempty"`
	// Severity is a 1–5 self-assessment; defaults to 3 when absent.
	Severity *int `json:"severity,omitempty"`
	// Symptoms is an ordered list of free-text symptom descriptions.
	Symptoms []string `json:"symptoms,omitempty"`
	// RedFlags is an ordered list of explicit danger indicators the
	// patient ticked in the intake form.
	RedFlags []string `json:"redFlags,omitempty"`
	// Note is an optional free-text addendum; never scored, only relayed.
	Note string `json:"additionalSymptoms,omitempty"`
	// PhotoRef is an opaque handle to an uploaded photo. The engine only
	// cares about its presence (it adds a sharing suggestion).
	PhotoRef string `json:"photo,omitempty"`
	// MemberID optionally names a family member as the subject.
	MemberID *uint `json:"memberId,omitempty"`
}

// Validate checks all provided fields against their declared bounds and
// returns every violation found, in field order. An empty slice means the
// intake is safe to hand to Engine.Classify.
func (in Intake) Validate() []string {
	var errs []string
	if in.Age != nil && (*in.Age < 0 || *in.Age > MaxAge) {
		errs = append(errs, fmt.Sprintf("age must be between 0 and %d", MaxAge))
	}
	if in.DurationDays != nil && (*in.DurationDays < 0 || *in.DurationDays > MaxDurationDays) {
		errs = append(errs, fmt.Sprintf("duration must be between 0 and %d days", MaxDurationDays))
	}
	if in.Severity != nil && (*in.Severity < MinSeverity || *in.Severity > MaxSeverity) {
		errs = append(errs, fmt.Sprintf("severity must be between %d and %d", MinSeverity, MaxSeverity))
	}
	if len(in.Symptoms) > MaxSymptoms {
		errs = append(errs, fmt.Sprintf("symptoms must have at most %d items", MaxSymptoms))
	}
	if len(in.RedFlags) > MaxRedFlags {
		errs = append(errs, fmt.Sprintf("red flags must have at most %d items", MaxRedFlags))
	}
	if utf8.RuneCountInString(in.Note) > MaxNoteRunes {
		errs = append(errs, "additional symptoms text is too long")
	}
	return errs
}

// severity returns the effective severity, applying the documented default.
func (in Intake) severity() int {
	if in.Severity == nil {
		return 3
	}
	return *in.Severity
}

// durationDays returns the effective duration, applying the documented default.
func (in Intake) durationDays() int {
	if in.DurationDays == nil {
		return 1
	}
	return *in.DurationDays
}
