// Package escalate implements the per-patient monitoring tier state
// machine. The engine is pure state transition logic: it performs no I/O
// and emits transition events for collaborators to consume.
package escalate

import (
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/vitalwatch/internal/alerting"
	"github.com/linnemanlabs/vitalwatch/internal/vitals"
)

// ErrNotInEmergency reports an emergency resolution for a patient whose
// tier is not Emergency.
var ErrNotInEmergency = errors.New("escalate: not in emergency tier")

// Tier is the monitoring intensity for one patient.
type Tier string

const (
	TierStandard  Tier = "standard"
	TierElevated  Tier = "elevated"
	TierCritical  Tier = "critical"
	TierEmergency Tier = "emergency"
	TierResolved  Tier = "resolved"
)

// Config carries the engine's timing knobs.
type Config struct {
	// Hysteresis is how long qualifying findings must be absent, measured
	// on sample timestamps, before the tier steps down.
	Hysteresis time.Duration

	// UnresolvedEscalation is how long a high-or-worse alert may stay
	// unresolved under active monitoring before it forces Critical.
	UnresolvedEscalation time.Duration
}

// DefaultConfig returns the standard timing configuration.
func DefaultConfig() Config {
	return Config{
		Hysteresis:           10 * time.Minute,
		UnresolvedEscalation: 15 * time.Minute,
	}
}

// State is the per-patient escalation state. Mutated only by the engine.
type State struct {
	Tier                Tier      `json:"tier"`
	EnteredAt           time.Time `json:"entered_at"`
	ConsecutiveCritical int       `json:"consecutive_critical"`
	LastQualifying      time.Time `json:"last_qualifying,omitempty"`
}

// Transition is one tier change, emitted for notification and audit.
type Transition struct {
	PatientID string    `json:"patient_id"`
	From      Tier      `json:"from"`
	To        Tier      `json:"to"`
	At        time.Time `json:"at"`
	AlertIDs  []string  `json:"alert_ids,omitempty"`
	Reason    string    `json:"reason"`
}

// Engine drives one patient's State. Not safe for concurrent use; the
// owning session serializes access.
type Engine struct {
	patientID string
	cfg       Config
	state     State
}

// NewEngine creates an engine in the Standard tier.
func NewEngine(patientID string, cfg Config, startedAt time.Time) *Engine {
	if cfg.Hysteresis <= 0 {
		cfg.Hysteresis = DefaultConfig().Hysteresis
	}
	if cfg.UnresolvedEscalation <= 0 {
		cfg.UnresolvedEscalation = DefaultConfig().UnresolvedEscalation
	}
	return &Engine{
		patientID: patientID,
		cfg:       cfg,
		state:     State{Tier: TierStandard, EnteredAt: startedAt},
	}
}

// State returns a copy of the current escalation state.
func (e *Engine) State() State { return e.state }

// Evaluate advances the state machine for one sample batch. It returns at
// most one transition: tiers move a single step per batch, except that an
// open emergency alert forces the Emergency tier directly. Escalation rules
// are checked before de-escalation.
//
// De-escalation uses sample-timestamp hysteresis: the tier steps down only
// once qualifying findings (severity high or worse) have been absent for
// the configured window. Open alerts keep a tier elevated only while backed
// by recent qualifying findings, so an un-actioned stale alert drifts back
// down instead of pinning the tier forever.
func (e *Engine) Evaluate(at time.Time, findings []vitals.Finding, open []alerting.Record) *Transition {
	if e.state.Tier == TierResolved {
		return nil
	}

	criticalNow := false
	qualifyingNow := false
	for _, f := range findings {
		if f.Severity == vitals.SeverityCritical {
			criticalNow = true
		}
		if f.Severity.AtLeast(vitals.SeverityHigh) {
			qualifyingNow = true
		}
	}
	if criticalNow {
		e.state.ConsecutiveCritical++
	} else {
		e.state.ConsecutiveCritical = 0
	}
	if qualifyingNow {
		e.state.LastQualifying = at
	}

	if e.state.Tier == TierEmergency {
		return nil
	}

	recent := !e.state.LastQualifying.IsZero() && at.Sub(e.state.LastQualifying) < e.cfg.Hysteresis

	var highIDs, staleIDs, emergencyIDs []string
	for _, rec := range open {
		if rec.Resolved {
			continue
		}
		if rec.Type == alerting.TypeEmergency {
			emergencyIDs = append(emergencyIDs, rec.ID)
		}
		if rec.Severity.AtLeast(vitals.SeverityHigh) {
			highIDs = append(highIDs, rec.ID)
			if at.Sub(rec.CreatedAt) > e.cfg.UnresolvedEscalation {
				staleIDs = append(staleIDs, rec.ID)
			}
		}
	}

	if len(emergencyIDs) > 0 {
		return e.move(TierEmergency, at, emergencyIDs, "emergency alert recorded")
	}

	switch e.state.Tier {
	case TierStandard:
		if len(highIDs) > 0 && recent {
			return e.move(TierElevated, at, highIDs, "open alert at severity high or worse")
		}
	case TierElevated:
		switch {
		case criticalNow:
			return e.move(TierCritical, at, highIDs, "critical finding")
		case len(staleIDs) > 0 && recent:
			return e.move(TierCritical, at, staleIDs,
				fmt.Sprintf("alert unresolved beyond %s", e.cfg.UnresolvedEscalation))
		case !recent:
			return e.move(TierStandard, at, nil, "no qualifying findings within hysteresis window")
		}
	case TierCritical:
		switch {
		case e.state.ConsecutiveCritical >= 3:
			return e.move(TierEmergency, at, highIDs, "third consecutive critical finding")
		case !recent:
			return e.move(TierElevated, at, nil, "no qualifying findings within hysteresis window")
		}
	}
	return nil
}

// ResolveEmergency steps the tier from Emergency back to Critical after an
// explicit human resolution. Any further de-escalation walks down through
// the normal hysteresis path.
func (e *Engine) ResolveEmergency(at time.Time) (*Transition, error) {
	if e.state.Tier != TierEmergency {
		return nil, fmt.Errorf("tier %s: %w", e.state.Tier, ErrNotInEmergency)
	}
	e.state.ConsecutiveCritical = 0
	e.state.LastQualifying = at
	return e.move(TierCritical, at, nil, "emergency resolved"), nil
}

// Stop moves the state to the Resolved sink. Further Evaluate calls are
// no-ops.
func (e *Engine) Stop(at time.Time, reason string) *Transition {
	if e.state.Tier == TierResolved {
		return nil
	}
	if reason == "" {
		reason = "monitoring stopped"
	}
	return e.move(TierResolved, at, nil, reason)
}

func (e *Engine) move(to Tier, at time.Time, alertIDs []string, reason string) *Transition {
	tr := &Transition{
		PatientID: e.patientID,
		From:      e.state.Tier,
		To:        to,
		At:        at,
		AlertIDs:  alertIDs,
		Reason:    reason,
	}
	e.state.Tier = to
	e.state.EnteredAt = at
	return tr
}
