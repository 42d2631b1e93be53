package monitor

import (
	"context"

	"github.com/linnemanlabs/vitalwatch/internal/alerting"
	"github.com/linnemanlabs/vitalwatch/internal/escalate"
	"github.com/linnemanlabs/vitalwatch/internal/triage"
)

// Store is the persistence interface for monitoring history. Writes happen
// off the ingest path, driven by the event stream.
type Store interface {
	SaveAlert(ctx context.Context, rec alerting.Record) error
	SaveAssessment(ctx context.Context, a triage.Assessment) error
	SaveTransition(ctx context.Context, tr escalate.Transition) error

	ListAlerts(ctx context.Context, patientID string) ([]alerting.Record, error)
	ListAssessments(ctx context.Context, patientID string, limit int) ([]triage.Assessment, error)
	ListTransitions(ctx context.Context, patientID string) ([]escalate.Transition, error)
	Stats(ctx context.Context) (Stats, error)
}

// Stats is the aggregate read model over persisted history.
type Stats struct {
	Alerts      int `json:"alerts"`
	OpenAlerts  int `json:"open_alerts"`
	Assessments int `json:"assessments"`
	Transitions int `json:"transitions"`
	Emergencies int `json:"emergencies"`
}
