// Package vitals defines the vital-sign domain model: signals, severity
// ordering, samples, threshold tables, and the band evaluator that turns a
// sample into findings.
package vitals

import "time"

// Signal identifies a single measurable vital sign.
type Signal string

const (
	SignalHeartRate        Signal = "heart_rate"
	SignalSystolicBP       Signal = "systolic_bp"
	SignalDiastolicBP      Signal = "diastolic_bp"
	SignalTemperature      Signal = "temperature"
	SignalOxygenSaturation Signal = "oxygen_saturation"
	SignalRespiratoryRate  Signal = "respiratory_rate"
	SignalBloodGlucose     Signal = "blood_glucose"
	SignalPainLevel        Signal = "pain_level"

	// SignalBloodPressure is a synthetic signal used only by the
	// systolic/diastolic consistency check; it never appears in samples.
	SignalBloodPressure Signal = "blood_pressure"
)

// Severity is the ordered scale shared by findings and alerts.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityNone:     0,
	SeverityLow:      1,
	SeverityModerate: 2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordinal position of s, with none lowest and critical
// highest. Unknown severities rank below none.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Direction marks which side of the normal band a value fell on.
type Direction string

const (
	DirectionLow  Direction = "low"
	DirectionHigh Direction = "high"
)

// FindingKind distinguishes per-signal band findings from cross-signal
// consistency findings.
type FindingKind string

const (
	FindingBand        FindingKind = "band"
	FindingConsistency FindingKind = "consistency"
)

// Finding is a single signal's deviation from its normal band, produced per
// sample and never persisted directly.
type Finding struct {
	Signal    Signal      `json:"signal"`
	Kind      FindingKind `json:"kind"`
	Value     float64     `json:"value"`
	Direction Direction   `json:"direction"`
	Severity  Severity    `json:"severity"`
}

// Sample is one immutable set of readings for a patient. Signals absent from
// Values were not measured; they are skipped by the evaluator, never treated
// as zero.
type Sample struct {
	PatientID  string
	RecordedAt time.Time
	Values     map[Signal]float64
}

// NewSample copies values so later mutation of the caller's map cannot
// change the sample.
func NewSample(patientID string, recordedAt time.Time, values map[Signal]float64) Sample {
	cp := make(map[Signal]float64, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Sample{PatientID: patientID, RecordedAt: recordedAt, Values: cp}
}
