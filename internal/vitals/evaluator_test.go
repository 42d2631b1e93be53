package vitals

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func testSample(values map[Signal]float64) Sample {
	return NewSample("p-1", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), values)
}

func evaluate(t *testing.T, values map[Signal]float64) *Evaluation {
	t.Helper()
	ev, err := NewEvaluator(DefaultThresholds(), 0).Evaluate(testSample(values))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return ev
}

func TestEvaluate_NormalValuesProduceNoFindings(t *testing.T) {
	t.Parallel()

	ev := evaluate(t, map[Signal]float64{
		SignalHeartRate:        75,
		SignalSystolicBP:       120,
		SignalDiastolicBP:      80,
		SignalTemperature:      98.6,
		SignalOxygenSaturation: 98,
		SignalRespiratoryRate:  16,
		SignalBloodGlucose:     100,
	})
	if len(ev.Findings) != 0 {
		t.Errorf("findings = %v, want none", ev.Findings)
	}
	if ev.MaxSeverity() != SeverityNone {
		t.Errorf("max severity = %s, want none", ev.MaxSeverity())
	}
}

func TestEvaluate_AbsentSignalsSkipped(t *testing.T) {
	t.Parallel()

	// a sample with only heart rate must not treat missing signals as zero
	ev := evaluate(t, map[Signal]float64{SignalHeartRate: 75})
	if len(ev.Findings) != 0 {
		t.Errorf("findings = %v, want none", ev.Findings)
	}
}

func TestEvaluate_DeepestBreakpointWins(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		signal  Signal
		value   float64
		wantDir Direction
		wantSev Severity
	}{
		{"hr slightly high", SignalHeartRate, 105, DirectionHigh, SeverityLow},
		{"hr moderate high", SignalHeartRate, 110, DirectionHigh, SeverityModerate},
		{"hr high", SignalHeartRate, 145, DirectionHigh, SeverityHigh},
		{"hr past critical still critical", SignalHeartRate, 220, DirectionHigh, SeverityCritical},
		{"hr moderate low", SignalHeartRate, 48, DirectionLow, SeverityModerate},
		{"hr critical low", SignalHeartRate, 28, DirectionLow, SeverityCritical},
		{"spo2 critical low", SignalOxygenSaturation, 85, DirectionLow, SeverityCritical},
		{"spo2 moderate low", SignalOxygenSaturation, 91.5, DirectionLow, SeverityModerate},
		{"temp high", SignalTemperature, 102.5, DirectionHigh, SeverityHigh},
		{"rr abnormal has no bands", SignalRespiratoryRate, 25, DirectionHigh, SeverityLow},
		{"glucose abnormal has no bands", SignalBloodGlucose, 55, DirectionLow, SeverityLow},
		{"pain severe", SignalPainLevel, 9, DirectionHigh, SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ev := evaluate(t, map[Signal]float64{tt.signal: tt.value})
			if len(ev.Findings) != 1 {
				t.Fatalf("findings = %d, want 1", len(ev.Findings))
			}
			f := ev.Findings[0]
			if f.Signal != tt.signal {
				t.Errorf("signal = %s, want %s", f.Signal, tt.signal)
			}
			if f.Direction != tt.wantDir {
				t.Errorf("direction = %s, want %s", f.Direction, tt.wantDir)
			}
			if f.Severity != tt.wantSev {
				t.Errorf("severity = %s, want %s", f.Severity, tt.wantSev)
			}
		})
	}
}

func TestEvaluate_SeverityMonotonicWithDeviation(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(DefaultThresholds(), 0)
	prev := -1
	for hr := 101.0; hr <= 250; hr++ {
		ev, err := e.Evaluate(testSample(map[Signal]float64{SignalHeartRate: hr}))
		if err != nil {
			t.Fatalf("Evaluate(%v): %v", hr, err)
		}
		if len(ev.Findings) != 1 {
			t.Fatalf("hr=%v findings = %d, want 1", hr, len(ev.Findings))
		}
		rank := ev.Findings[0].Severity.Rank()
		if rank < prev {
			t.Fatalf("severity decreased at hr=%v", hr)
		}
		prev = rank
	}
}

func TestEvaluate_UnknownSignalReportedNotFatal(t *testing.T) {
	t.Parallel()

	ev := evaluate(t, map[Signal]float64{
		SignalHeartRate:     75,
		Signal("shoe_size"): 44,
	})
	if len(ev.Unknown) != 1 || ev.Unknown[0] != Signal("shoe_size") {
		t.Errorf("unknown = %v, want [shoe_size]", ev.Unknown)
	}
	if len(ev.Findings) != 0 {
		t.Errorf("findings = %v, want none", ev.Findings)
	}
}

func TestEvaluate_PhysicallyImpossibleValueRejectsSample(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(DefaultThresholds(), 0)
	_, err := e.Evaluate(testSample(map[Signal]float64{
		SignalHeartRate:        -10,
		SignalOxygenSaturation: 85, // would be a critical finding, must not leak out
	}))
	if err == nil {
		t.Fatal("expected InputError for negative heart rate")
	}
	if !IsInputError(err) {
		t.Errorf("error = %v, want InputError", err)
	}
	var ie *InputError
	if errors.As(err, &ie) && ie.Signal != SignalHeartRate {
		t.Errorf("rejected signal = %s, want heart_rate", ie.Signal)
	}
}

func TestEvaluate_NaNRejected(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(DefaultThresholds(), 0)
	_, err := e.Evaluate(testSample(map[Signal]float64{SignalTemperature: math.NaN()}))
	if !IsInputError(err) {
		t.Errorf("error = %v, want InputError", err)
	}
}

func TestEvaluate_BPConsistency(t *testing.T) {
	t.Parallel()

	// both readings individually normal, but equal
	ev := evaluate(t, map[Signal]float64{
		SignalSystolicBP:  95,
		SignalDiastolicBP: 95,
	})

	var consistency *Finding
	for i := range ev.Findings {
		if ev.Findings[i].Kind == FindingConsistency {
			consistency = &ev.Findings[i]
		}
	}
	if consistency == nil {
		t.Fatalf("findings = %v, want a consistency finding", ev.Findings)
	}
	if consistency.Signal != SignalBloodPressure {
		t.Errorf("signal = %s, want blood_pressure", consistency.Signal)
	}
	if consistency.Severity != SeverityModerate {
		t.Errorf("severity = %s, want moderate", consistency.Severity)
	}
}

func TestEvaluate_BPConsistencyMargin(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(DefaultThresholds(), 30)

	ev, err := e.Evaluate(testSample(map[Signal]float64{
		SignalSystolicBP:  120,
		SignalDiastolicBP: 95, // gap 25, below the custom 30 margin
	}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	found := false
	for _, f := range ev.Findings {
		if f.Kind == FindingConsistency {
			found = true
		}
	}
	if !found {
		t.Error("expected consistency finding for gap below custom margin")
	}
}

func TestEvaluate_BPConsistencySkippedWhenOneSideMissing(t *testing.T) {
	t.Parallel()

	ev := evaluate(t, map[Signal]float64{SignalSystolicBP: 95})
	for _, f := range ev.Findings {
		if f.Kind == FindingConsistency {
			t.Error("consistency finding emitted without diastolic reading")
		}
	}
}

func TestParseValues(t *testing.T) {
	t.Parallel()

	vals, err := ParseValues(map[string]any{
		"heart_rate":  float64(80),
		"pain_level":  json.Number("4"),
		"temperature": nil, // not measured
	})
	if err != nil {
		t.Fatalf("ParseValues: %v", err)
	}
	if got := vals[SignalHeartRate]; got != 80 {
		t.Errorf("heart_rate = %v, want 80", got)
	}
	if got := vals[SignalPainLevel]; got != 4 {
		t.Errorf("pain_level = %v, want 4", got)
	}
	if _, ok := vals[SignalTemperature]; ok {
		t.Error("null value should be skipped")
	}
}

func TestParseValues_NonNumericIsInputError(t *testing.T) {
	t.Parallel()

	_, err := ParseValues(map[string]any{"heart_rate": "fast"})
	if !IsInputError(err) {
		t.Errorf("error = %v, want InputError", err)
	}
}

func TestNewSample_CopiesValues(t *testing.T) {
	t.Parallel()

	src := map[Signal]float64{SignalHeartRate: 75}
	s := NewSample("p-1", time.Now(), src)
	src[SignalHeartRate] = 200
	if s.Values[SignalHeartRate] != 75 {
		t.Error("sample values should be copied at construction")
	}
}
