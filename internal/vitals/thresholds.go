package vitals

import (
	"errors"
	"fmt"
)

// Band holds the three breakpoints for one direction away from the normal
// band. Crossing Moderate yields severity moderate, High yields high,
// Critical yields critical; values outside the normal band that cross no
// breakpoint yield severity low.
type Band struct {
	Moderate float64
	High     float64
	Critical float64
}

// SignalThresholds configures one signal: its normal band, optional
// breakpoint bands per direction, and the physically possible range used to
// reject garbage input. A nil band means any deviation in that direction is
// severity low.
type SignalThresholds struct {
	Min     float64 // normal band lower bound
	Max     float64 // normal band upper bound
	Low     *Band   // breakpoints below Min, each strictly lower than the last
	High    *Band   // breakpoints above Max, each strictly higher than the last
	PhysMin float64
	PhysMax float64
}

// ThresholdTable maps signals to their band configuration. Immutable after
// construction; share one table across sessions.
type ThresholdTable struct {
	signals map[Signal]SignalThresholds
}

// NewThresholdTable validates monotonicity of every configured signal and
// returns the table. A violation here is a configuration bug and is fatal at
// construction time, never at ingest time.
func NewThresholdTable(signals map[Signal]SignalThresholds) (*ThresholdTable, error) {
	var errs []error
	for sig, st := range signals {
		if err := validateSignal(sig, st); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	cp := make(map[Signal]SignalThresholds, len(signals))
	for k, v := range signals {
		cp[k] = v
	}
	return &ThresholdTable{signals: cp}, nil
}

func validateSignal(sig Signal, st SignalThresholds) error {
	if st.Min >= st.Max {
		return fmt.Errorf("%s: normal band min %v must be below max %v", sig, st.Min, st.Max)
	}
	if st.PhysMin >= st.PhysMax {
		return fmt.Errorf("%s: physical range min %v must be below max %v", sig, st.PhysMin, st.PhysMax)
	}
	if st.Min < st.PhysMin || st.Max > st.PhysMax {
		return fmt.Errorf("%s: normal band [%v, %v] outside physical range [%v, %v]",
			sig, st.Min, st.Max, st.PhysMin, st.PhysMax)
	}
	if b := st.Low; b != nil {
		if !(st.Min > b.Moderate && b.Moderate > b.High && b.High > b.Critical) {
			return fmt.Errorf("%s: low breakpoints must descend strictly from the normal band: %v > %v > %v > %v",
				sig, st.Min, b.Moderate, b.High, b.Critical)
		}
		if b.Critical < st.PhysMin {
			return fmt.Errorf("%s: low critical breakpoint %v below physical minimum %v", sig, b.Critical, st.PhysMin)
		}
	}
	if b := st.High; b != nil {
		if !(st.Max < b.Moderate && b.Moderate < b.High && b.High < b.Critical) {
			return fmt.Errorf("%s: high breakpoints must ascend strictly from the normal band: %v < %v < %v < %v",
				sig, st.Max, b.Moderate, b.High, b.Critical)
		}
		if b.Critical > st.PhysMax {
			return fmt.Errorf("%s: high critical breakpoint %v above physical maximum %v", sig, b.Critical, st.PhysMax)
		}
	}
	return nil
}

// Lookup returns the configuration for a signal.
func (t *ThresholdTable) Lookup(sig Signal) (SignalThresholds, bool) {
	st, ok := t.signals[sig]
	return st, ok
}

// Signals returns the set of configured signals.
func (t *ThresholdTable) Signals() []Signal {
	out := make([]Signal, 0, len(t.signals))
	for sig := range t.signals {
		out = append(out, sig)
	}
	return out
}

// DefaultThresholds returns the standard adult threshold table. Temperature
// is in degrees Fahrenheit, blood glucose in mg/dL.
func DefaultThresholds() *ThresholdTable {
	t, err := NewThresholdTable(map[Signal]SignalThresholds{
		SignalHeartRate: {
			Min: 60, Max: 100,
			Low:     &Band{Moderate: 50, High: 40, Critical: 30},
			High:    &Band{Moderate: 110, High: 130, Critical: 150},
			PhysMin: 0, PhysMax: 400,
		},
		SignalSystolicBP: {
			Min: 90, Max: 140,
			Low:     &Band{Moderate: 80, High: 70, Critical: 60},
			High:    &Band{Moderate: 160, High: 180, Critical: 200},
			PhysMin: 0, PhysMax: 400,
		},
		SignalDiastolicBP: {
			Min: 60, Max: 90,
			Low:     &Band{Moderate: 50, High: 40, Critical: 30},
			High:    &Band{Moderate: 100, High: 110, Critical: 120},
			PhysMin: 0, PhysMax: 300,
		},
		SignalTemperature: {
			Min: 97.0, Max: 99.5,
			Low:     &Band{Moderate: 96.0, High: 95.0, Critical: 94.0},
			High:    &Band{Moderate: 100.5, High: 102.0, Critical: 104.0},
			PhysMin: 80, PhysMax: 115,
		},
		SignalOxygenSaturation: {
			Min: 95, Max: 100,
			Low:     &Band{Moderate: 92, High: 90, Critical: 88},
			PhysMin: 0, PhysMax: 100,
		},
		SignalRespiratoryRate: {
			Min: 12, Max: 20,
			PhysMin: 0, PhysMax: 80,
		},
		SignalBloodGlucose: {
			Min: 70, Max: 140,
			PhysMin: 0, PhysMax: 2000,
		},
		SignalPainLevel: {
			Min: 0, Max: 3,
			High:    &Band{Moderate: 4, High: 7, Critical: 9},
			PhysMin: 0, PhysMax: 10,
		},
	})
	if err != nil {
		// the default table is a compile-time constant in spirit
		panic(err)
	}
	return t
}
