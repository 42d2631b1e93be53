package monitor

import (
	"time"

	"github.com/linnemanlabs/vitalwatch/internal/alerting"
	"github.com/linnemanlabs/vitalwatch/internal/escalate"
	"github.com/linnemanlabs/vitalwatch/internal/triage"
)

// EventType tags entries on the event stream.
type EventType string

const (
	EventAlertCreated   EventType = "alert_created"
	EventAlertEscalated EventType = "alert_escalated"
	EventAlertUpdated   EventType = "alert_updated"
	EventAssessment     EventType = "assessment"
	EventTransition     EventType = "transition"
)

// Event is one state change, emitted in the order it was applied. Exactly
// one of Alert, Assessment, or Transition is set, matching Type. The core
// never formats human-readable text; consumers project events into whatever
// surface they serve.
type Event struct {
	Type       EventType            `json:"type"`
	PatientID  string               `json:"patient_id"`
	At         time.Time            `json:"at"`
	Alert      *alerting.Record     `json:"alert,omitempty"`
	Assessment *triage.Assessment   `json:"assessment,omitempty"`
	Transition *escalate.Transition `json:"transition,omitempty"`
}
