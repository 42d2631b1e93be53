// Package alerting turns per-sample findings into deduplicated, stateful
// alert records and owns the acknowledge and resolve transitions.
package alerting

import (
	"errors"
	"time"

	"github.com/linnemanlabs/vitalwatch/internal/vitals"
)

// ErrNotFound reports an alert id that was never issued by this manager.
var ErrNotFound = errors.New("alerting: alert not found")

// Type is the closed set of alert categories.
type Type string

const (
	TypeVitalSigns Type = "vital_signs"
	TypeTrend      Type = "trend"
	TypeEmergency  Type = "emergency"
)

// Record is one alert for one patient. Severity may be escalated in place
// while the record is unresolved; acknowledgement and resolution are
// independent booleans, not a sequence.
type Record struct {
	ID        string          `json:"id"`
	PatientID string          `json:"patient_id"`
	Type      Type            `json:"type"`
	Signal    vitals.Signal   `json:"signal,omitempty"`
	Severity  vitals.Severity `json:"severity"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Source    string          `json:"source"`
	Notes     []string        `json:"notes,omitempty"`

	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`

	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (r *Record) clone() Record {
	c := *r
	c.Notes = append([]string(nil), r.Notes...)
	if r.AcknowledgedAt != nil {
		at := *r.AcknowledgedAt
		c.AcknowledgedAt = &at
	}
	if r.ResolvedAt != nil {
		at := *r.ResolvedAt
		c.ResolvedAt = &at
	}
	return c
}
