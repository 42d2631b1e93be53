package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/linnemanlabs/vitalwatch/internal/alerting"
	"github.com/linnemanlabs/vitalwatch/internal/escalate"
	"github.com/linnemanlabs/vitalwatch/internal/triage"
	"github.com/linnemanlabs/vitalwatch/internal/vitals"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func alert(id, patientID string, resolved bool) alerting.Record {
	return alerting.Record{
		ID:        id,
		PatientID: patientID,
		Type:      alerting.TypeVitalSigns,
		Signal:    vitals.SignalHeartRate,
		Severity:  vitals.SeverityHigh,
		Resolved:  resolved,
		CreatedAt: t0,
	}
}

func TestSaveAlert_ReplacesByID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	if err := s.SaveAlert(ctx, alert("a1", "p-1", false)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveAlert(ctx, alert("a1", "p-1", true)); err != nil {
		t.Fatalf("save update: %v", err)
	}

	got, err := s.ListAlerts(ctx, "p-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("alerts = %d, want 1", len(got))
	}
	if !got[0].Resolved {
		t.Error("updated alert should be resolved")
	}
}

func TestListAlerts_FiltersByPatient(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	s.SaveAlert(ctx, alert("a1", "p-1", false))
	s.SaveAlert(ctx, alert("a2", "p-2", false))

	got, err := s.ListAlerts(ctx, "p-2")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a2" {
		t.Errorf("alerts = %+v, want just a2", got)
	}
}

func TestListAssessments_NewestFirstWithLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	for i := 0; i < 3; i++ {
		s.SaveAssessment(ctx, triage.Assessment{
			ID:        string(rune('a' + i)),
			PatientID: "p-1",
			Level:     triage.LevelUrgent,
			CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		})
	}

	got, err := s.ListAssessments(ctx, "p-1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("assessments = %d, want 2", len(got))
	}
	if got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("order = %s, %s, want c, b", got[0].ID, got[1].ID)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	s.SaveAlert(ctx, alert("a1", "p-1", false))
	s.SaveAlert(ctx, alert("a2", "p-1", true))
	s.SaveAlert(ctx, alerting.Record{ID: "a3", PatientID: "p-1", Type: alerting.TypeEmergency, CreatedAt: t0})
	s.SaveTransition(ctx, escalate.Transition{PatientID: "p-1", From: escalate.TierStandard, To: escalate.TierElevated, At: t0})

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Alerts != 3 || st.OpenAlerts != 2 || st.Emergencies != 1 || st.Transitions != 1 {
		t.Errorf("stats = %+v, want alerts:3 open:2 emergencies:1 transitions:1", st)
	}
}
