// Package triage maps a sample's findings and reported symptoms to an
// overall severity, a 1-5 triage level, and a wait-time estimate.
package triage

import (
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/vitalwatch/internal/vitals"
)

// Level is a 1 (most urgent) to 5 (least urgent) acuity classification.
type Level int

const (
	LevelImmediate  Level = 1
	LevelEmergent   Level = 2
	LevelUrgent     Level = 3
	LevelLessUrgent Level = 4
	LevelNonUrgent  Level = 5
)

// waitMinutes is the declared wait-time table keyed by triage level. These
// are fixed constants, not inferred from data.
var waitMinutes = map[Level]int{
	LevelImmediate:  0,
	LevelEmergent:   15,
	LevelUrgent:     30,
	LevelLessUrgent: 60,
	LevelNonUrgent:  120,
}

// WaitEstimate returns the wait-time estimate in minutes for a level.
func WaitEstimate(l Level) int {
	return waitMinutes[l]
}

// severePainThreshold is the pain_level reading treated as a high-severity
// symptom when the numeric findings alone do not reach high.
const severePainThreshold = 8

// SymptomTable maps lowercase symptom keywords to a severity. Symptoms at
// severity critical are considered life-threatening.
type SymptomTable map[string]vitals.Severity

// DefaultSymptoms returns the built-in symptom severity table.
func DefaultSymptoms() SymptomTable {
	return SymptomTable{
		"chest pain":           vitals.SeverityCritical,
		"difficulty breathing": vitals.SeverityCritical,
		"unresponsive":         vitals.SeverityCritical,
		"severe bleeding":      vitals.SeverityCritical,
		"stroke symptoms":      vitals.SeverityCritical,
		"shortness of breath":  vitals.SeverityHigh,
		"severe pain":          vitals.SeverityHigh,
		"confusion":            vitals.SeverityHigh,
		"dizziness":            vitals.SeverityModerate,
		"persistent vomiting":  vitals.SeverityModerate,
		"fever":                vitals.SeverityModerate,
		"headache":             vitals.SeverityLow,
		"fatigue":              vitals.SeverityLow,
	}
}

// Assessment is one immutable triage decision for a patient. A later
// assessment for the same patient is a new record, never an update.
type Assessment struct {
	ID              string          `json:"id"`
	PatientID       string          `json:"patient_id"`
	Level           Level           `json:"triage_level"`
	Severity        vitals.Severity `json:"severity"`
	ChiefComplaint  string          `json:"chief_complaint,omitempty"`
	Symptoms        []string        `json:"symptoms,omitempty"`
	LifeThreatening bool            `json:"life_threatening,omitempty"`
	WaitMinutes     int             `json:"wait_minutes"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Classifier aggregates findings and symptoms deterministically. Assessment
// IDs come from a seeded monotonic ULID source so replaying the same inputs
// through a fresh classifier yields identical records.
type Classifier struct {
	symptoms SymptomTable

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewClassifier creates a classifier. A nil table selects DefaultSymptoms.
func NewClassifier(symptoms SymptomTable, seed int64) *Classifier {
	if symptoms == nil {
		symptoms = DefaultSymptoms()
	}
	return &Classifier{
		symptoms: symptoms,
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
	}
}

func (c *Classifier) newID(at time.Time) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), c.entropy).String()
}

// Input carries everything one classification needs.
type Input struct {
	PatientID      string
	Findings       []vitals.Finding
	Symptoms       []string
	ChiefComplaint string
	PainLevel      float64 // NaN when not reported
	At             time.Time
}

// Classify derives the overall severity and triage level.
//
// Overall severity is the maximum among numeric findings; symptoms never
// downgrade it. Symptom severities drive the level only where no finding
// reaches them, and a life-threatening symptom additionally upgrades the
// level by exactly one step, never past level 1.
func (c *Classifier) Classify(in Input) *Assessment {
	severity := vitals.SeverityNone
	for _, f := range in.Findings {
		severity = vitals.MaxSeverity(severity, f.Severity)
	}

	symptomSev := vitals.SeverityNone
	lifeThreatening := false
	for _, s := range in.Symptoms {
		sev, ok := c.symptoms[strings.ToLower(strings.TrimSpace(s))]
		if !ok {
			continue
		}
		symptomSev = vitals.MaxSeverity(symptomSev, sev)
		if sev == vitals.SeverityCritical {
			lifeThreatening = true
		}
	}
	if !math.IsNaN(in.PainLevel) && in.PainLevel >= severePainThreshold {
		symptomSev = vitals.MaxSeverity(symptomSev, vitals.SeverityHigh)
	}

	level := levelForSeverity(vitals.MaxSeverity(severity, symptomSev))
	if lifeThreatening && level > LevelImmediate {
		level--
	}

	return &Assessment{
		ID:              c.newID(in.At),
		PatientID:       in.PatientID,
		Level:           level,
		Severity:        severity,
		ChiefComplaint:  in.ChiefComplaint,
		Symptoms:        in.Symptoms,
		LifeThreatening: lifeThreatening,
		WaitMinutes:     WaitEstimate(level),
		CreatedAt:       in.At,
	}
}

// levelForSeverity is the total, deterministic severity-to-level mapping.
func levelForSeverity(s vitals.Severity) Level {
	switch s {
	case vitals.SeverityCritical:
		return LevelImmediate
	case vitals.SeverityHigh:
		return LevelEmergent
	case vitals.SeverityModerate:
		return LevelUrgent
	case vitals.SeverityLow:
		return LevelLessUrgent
	default:
		return LevelNonUrgent
	}
}
