package vitals

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// DefaultBPMargin is the minimum amount systolic pressure must exceed
// diastolic pressure before a consistency finding is emitted.
const DefaultBPMargin = 20

// Evaluation is the outcome of evaluating one sample: the per-signal
// findings plus any keys that had no threshold configuration. Unknown
// signals are skipped, never fatal; the caller logs them.
type Evaluation struct {
	Findings []Finding
	Unknown  []Signal
}

// MaxSeverity returns the most severe finding severity, or none when the
// sample produced no findings.
func (e *Evaluation) MaxSeverity() Severity {
	max := SeverityNone
	for _, f := range e.Findings {
		max = MaxSeverity(max, f.Severity)
	}
	return max
}

// Evaluator classifies sample values against a ThresholdTable.
type Evaluator struct {
	thresholds *ThresholdTable
	bpMargin   float64
}

// NewEvaluator creates an evaluator over the given table. bpMargin <= 0
// selects DefaultBPMargin.
func NewEvaluator(thresholds *ThresholdTable, bpMargin float64) *Evaluator {
	if bpMargin <= 0 {
		bpMargin = DefaultBPMargin
	}
	return &Evaluator{thresholds: thresholds, bpMargin: bpMargin}
}

// Evaluate compares every present signal against its bands. It returns an
// InputError when any value is non-finite or outside its physically possible
// range; in that case the sample must not be applied at all. Signals inside
// the normal band produce no finding. Findings come back in stable signal
// order so replays are deterministic.
func (e *Evaluator) Evaluate(s Sample) (*Evaluation, error) {
	ev := &Evaluation{}

	// reject garbage before emitting anything, the sample is all-or-nothing
	for sig, val := range s.Values {
		st, ok := e.thresholds.Lookup(sig)
		if !ok {
			continue
		}
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, &InputError{Signal: sig, Value: val, Reason: "not a finite number"}
		}
		if val < st.PhysMin || val > st.PhysMax {
			return nil, &InputError{
				Signal: sig, Value: val,
				Reason: fmt.Sprintf("outside physical range [%v, %v]", st.PhysMin, st.PhysMax),
			}
		}
	}

	for sig, val := range s.Values {
		st, ok := e.thresholds.Lookup(sig)
		if !ok {
			ev.Unknown = append(ev.Unknown, sig)
			continue
		}
		if f, ok := classifyValue(sig, val, st); ok {
			ev.Findings = append(ev.Findings, f)
		}
	}

	if f, ok := e.checkBPConsistency(s); ok {
		ev.Findings = append(ev.Findings, f)
	}

	sort.Slice(ev.Findings, func(i, j int) bool { return ev.Findings[i].Signal < ev.Findings[j].Signal })
	sort.Slice(ev.Unknown, func(i, j int) bool { return ev.Unknown[i] < ev.Unknown[j] })

	return ev, nil
}

// classifyValue maps one value to a finding. Severity is the deepest
// breakpoint crossed; a value outside the normal band that crosses no
// breakpoint is severity low.
func classifyValue(sig Signal, val float64, st SignalThresholds) (Finding, bool) {
	switch {
	case val < st.Min:
		return Finding{
			Signal:    sig,
			Kind:      FindingBand,
			Value:     val,
			Direction: DirectionLow,
			Severity:  bandSeverity(val, st.Low, DirectionLow),
		}, true
	case val > st.Max:
		return Finding{
			Signal:    sig,
			Kind:      FindingBand,
			Value:     val,
			Direction: DirectionHigh,
			Severity:  bandSeverity(val, st.High, DirectionHigh),
		}, true
	default:
		return Finding{}, false
	}
}

func bandSeverity(val float64, b *Band, dir Direction) Severity {
	if b == nil {
		return SeverityLow
	}
	if dir == DirectionLow {
		switch {
		case val <= b.Critical:
			return SeverityCritical
		case val <= b.High:
			return SeverityHigh
		case val <= b.Moderate:
			return SeverityModerate
		}
		return SeverityLow
	}
	switch {
	case val >= b.Critical:
		return SeverityCritical
	case val >= b.High:
		return SeverityHigh
	case val >= b.Moderate:
		return SeverityModerate
	}
	return SeverityLow
}

// checkBPConsistency emits a dedicated finding when systolic does not exceed
// diastolic by at least the configured margin. It is independent of the
// per-signal bands: both readings can be individually normal.
func (e *Evaluator) checkBPConsistency(s Sample) (Finding, bool) {
	sys, haveSys := s.Values[SignalSystolicBP]
	dia, haveDia := s.Values[SignalDiastolicBP]
	if !haveSys || !haveDia {
		return Finding{}, false
	}
	if sys-dia >= e.bpMargin {
		return Finding{}, false
	}
	return Finding{
		Signal:    SignalBloodPressure,
		Kind:      FindingConsistency,
		Value:     sys - dia,
		Direction: DirectionLow,
		Severity:  SeverityModerate,
	}, true
}

// ParseValues coerces a decoded JSON object into signal readings. Numeric
// coercion failures are an InputError, not a silent drop; null values mark a
// signal as not measured and are skipped.
func ParseValues(raw map[string]any) (map[Signal]float64, error) {
	out := make(map[Signal]float64, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			return nil, &InputError{Signal: Signal(k), Value: v, Reason: "not numeric"}
		}
		out[Signal(k)] = f
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
