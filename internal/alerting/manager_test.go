package alerting

import (
	"errors"
	"testing"
	"time"

	"github.com/linnemanlabs/vitalwatch/internal/vitals"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestManager() *Manager {
	return NewManager("p-1", "monitor", 1)
}

func hrFinding(sev vitals.Severity) vitals.Finding {
	return vitals.Finding{
		Signal:    vitals.SignalHeartRate,
		Kind:      vitals.FindingBand,
		Value:     145,
		Direction: vitals.DirectionHigh,
		Severity:  sev,
	}
}

func TestRecord_CreatesOneAlertPerFinding(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	res := m.Record(t0, []vitals.Finding{
		hrFinding(vitals.SeverityHigh),
		{Signal: vitals.SignalOxygenSaturation, Kind: vitals.FindingBand, Value: 85, Direction: vitals.DirectionLow, Severity: vitals.SeverityCritical},
	})
	if got := len(res.Created); got != 2 {
		t.Fatalf("created %d alerts, want 2", got)
	}
	for _, rec := range res.Created {
		if rec.Type != TypeVitalSigns {
			t.Errorf("type = %q, want %q", rec.Type, TypeVitalSigns)
		}
		if rec.PatientID != "p-1" || rec.Source != "monitor" {
			t.Errorf("record %+v missing patient or source", rec)
		}
	}
}

func TestRecord_DedupSuppressesRepeatFinding(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	m.Record(t0, []vitals.Finding{hrFinding(vitals.SeverityHigh)})
	res := m.Record(t0.Add(time.Minute), []vitals.Finding{hrFinding(vitals.SeverityHigh)})

	if len(res.Created) != 0 || len(res.Escalated) != 0 {
		t.Errorf("repeat finding created=%d escalated=%d, want 0/0", len(res.Created), len(res.Escalated))
	}
	if got := len(m.Open()); got != 1 {
		t.Errorf("open alerts = %d, want 1", got)
	}
}

func TestRecord_HigherSeverityEscalatesInPlace(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	first := m.Record(t0, []vitals.Finding{hrFinding(vitals.SeverityModerate)}).Created[0]
	res := m.Record(t0.Add(time.Minute), []vitals.Finding{hrFinding(vitals.SeverityCritical)})

	if len(res.Created) != 0 {
		t.Fatalf("escalation created %d new alerts, want 0", len(res.Created))
	}
	if len(res.Escalated) != 1 {
		t.Fatalf("escalated %d alerts, want 1", len(res.Escalated))
	}
	got := res.Escalated[0]
	if got.ID != first.ID {
		t.Errorf("escalated id = %s, want original %s", got.ID, first.ID)
	}
	if got.Severity != vitals.SeverityCritical {
		t.Errorf("severity = %q, want critical", got.Severity)
	}
	if len(got.Notes) != 1 {
		t.Errorf("notes = %v, want one escalation note", got.Notes)
	}
}

func TestRecord_LowerSeverityMutatesNothing(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	m.Record(t0, []vitals.Finding{hrFinding(vitals.SeverityHigh)})
	res := m.Record(t0.Add(time.Minute), []vitals.Finding{hrFinding(vitals.SeverityModerate)})

	if len(res.Created) != 0 || len(res.Escalated) != 0 {
		t.Errorf("lower severity created=%d escalated=%d, want 0/0", len(res.Created), len(res.Escalated))
	}
	if got := m.Open()[0].Severity; got != vitals.SeverityHigh {
		t.Errorf("open severity = %q, want high", got)
	}
}

func TestRecord_ResolvedAlertDoesNotBlockNewOne(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	first := m.Record(t0, []vitals.Finding{hrFinding(vitals.SeverityHigh)}).Created[0]
	if _, err := m.Resolve(first.ID, t0.Add(time.Minute)); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	res := m.Record(t0.Add(2*time.Minute), []vitals.Finding{hrFinding(vitals.SeverityHigh)})
	if len(res.Created) != 1 {
		t.Fatalf("post-resolve finding created %d alerts, want 1", len(res.Created))
	}
	if res.Created[0].ID == first.ID {
		t.Error("new alert reused the resolved alert's id")
	}
}

func TestAcknowledge(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	rec := m.Record(t0, []vitals.Finding{hrFinding(vitals.SeverityHigh)}).Created[0]

	got, err := m.Acknowledge(rec.ID, "nurse-7", t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if !got.Acknowledged || got.AcknowledgedBy != "nurse-7" {
		t.Errorf("record = %+v, want acknowledged by nurse-7", got)
	}

	// Second acknowledge keeps the first actor and timestamp.
	got, err = m.Acknowledge(rec.ID, "nurse-9", t0.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("repeat acknowledge: %v", err)
	}
	if got.AcknowledgedBy != "nurse-7" {
		t.Errorf("repeat acknowledge changed actor to %q", got.AcknowledgedBy)
	}

	if _, err := m.Acknowledge("01ARZ3NDEKTSV4RRFFQ69G5FAV", "nurse-7", t0); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id err = %v, want ErrNotFound", err)
	}
}

func TestAcknowledge_ResolvedKnownAlertIsNoOp(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	rec := m.Record(t0, []vitals.Finding{hrFinding(vitals.SeverityHigh)}).Created[0]
	if _, err := m.Resolve(rec.ID, t0.Add(time.Minute)); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	got, err := m.Acknowledge(rec.ID, "nurse-7", t0.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("acknowledge resolved alert: %v", err)
	}
	if got.Acknowledged {
		t.Error("acknowledging a resolved alert should not mutate it")
	}
}

func TestResolve_IndependentOfAcknowledgement(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	rec := m.Record(t0, []vitals.Finding{hrFinding(vitals.SeverityHigh)}).Created[0]

	got, err := m.Resolve(rec.ID, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("resolve unacknowledged alert: %v", err)
	}
	if !got.Resolved || got.Acknowledged {
		t.Errorf("record = %+v, want resolved and unacknowledged", got)
	}

	again, err := m.Resolve(rec.ID, t0.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("repeat resolve: %v", err)
	}
	if !again.ResolvedAt.Equal(*got.ResolvedAt) {
		t.Error("repeat resolve moved the resolution timestamp")
	}

	if _, err := m.Resolve("01ARZ3NDEKTSV4RRFFQ69G5FAV", t0); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id err = %v, want ErrNotFound", err)
	}
}

func TestRecord_TrendAfterConsecutiveSameDirectionFindings(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	at := t0
	for i := 0; i < trendRunLength-1; i++ {
		res := m.Record(at, []vitals.Finding{hrFinding(vitals.SeverityLow)})
		for _, rec := range res.Created {
			if rec.Type == TypeTrend {
				t.Fatalf("trend alert after %d samples", i+1)
			}
		}
		at = at.Add(time.Minute)
	}

	res := m.Record(at, []vitals.Finding{hrFinding(vitals.SeverityLow)})
	if len(res.Created) != 1 || res.Created[0].Type != TypeTrend {
		t.Fatalf("third sample result = %+v, want one trend alert", res.Created)
	}
}

func TestRecord_TrendSeverityIsModerate(t *testing.T) {
	t.Parallel()

	spo2 := vitals.Finding{Signal: vitals.SignalOxygenSaturation, Kind: vitals.FindingBand, Value: 85, Direction: vitals.DirectionLow, Severity: vitals.SeverityCritical}

	m := newTestManager()
	m.Record(t0, []vitals.Finding{spo2})
	m.Record(t0.Add(time.Minute), []vitals.Finding{spo2})
	res := m.Record(t0.Add(2*time.Minute), []vitals.Finding{spo2})

	var trend *Record
	for i := range res.Created {
		if res.Created[i].Type == TypeTrend {
			trend = &res.Created[i]
		}
	}
	if trend == nil {
		t.Fatalf("created = %+v, want a trend alert", res.Created)
	}
	if trend.Severity != vitals.SeverityModerate {
		t.Errorf("trend severity = %s, want moderate regardless of finding severity", trend.Severity)
	}
}

func TestRecord_TrendRunBreaksOnRecovery(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	m.Record(t0, []vitals.Finding{hrFinding(vitals.SeverityLow)})
	m.Record(t0.Add(time.Minute), []vitals.Finding{hrFinding(vitals.SeverityLow)})
	// Normal sample, no heart-rate finding.
	m.Record(t0.Add(2*time.Minute), nil)

	res := m.Record(t0.Add(3*time.Minute), []vitals.Finding{hrFinding(vitals.SeverityLow)})
	for _, rec := range res.Created {
		if rec.Type == TypeTrend {
			t.Error("trend alert opened across a recovered sample")
		}
	}
}

func TestRecord_TrendRunBreaksOnDirectionChange(t *testing.T) {
	t.Parallel()

	low := vitals.Finding{Signal: vitals.SignalHeartRate, Kind: vitals.FindingBand, Value: 45, Direction: vitals.DirectionLow, Severity: vitals.SeverityModerate}

	m := newTestManager()
	m.Record(t0, []vitals.Finding{hrFinding(vitals.SeverityLow)})
	m.Record(t0.Add(time.Minute), []vitals.Finding{hrFinding(vitals.SeverityLow)})
	res := m.Record(t0.Add(2*time.Minute), []vitals.Finding{low})
	for _, rec := range res.Created {
		if rec.Type == TypeTrend {
			t.Error("direction change must restart the run")
		}
	}
}

func TestEmergency(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	res := m.Emergency(t0, "Emergency declared", "nurse observed collapse")
	if len(res.Created) != 1 {
		t.Fatalf("created %d alerts, want 1", len(res.Created))
	}
	rec := res.Created[0]
	if rec.Type != TypeEmergency || rec.Severity != vitals.SeverityCritical {
		t.Errorf("record = %+v, want critical emergency", rec)
	}

	// Open emergency dedups a second declaration.
	again := m.Emergency(t0.Add(time.Minute), "Emergency declared", "repeat")
	if len(again.Created) != 0 {
		t.Errorf("second emergency created %d alerts, want 0", len(again.Created))
	}
}

func TestOpenCounts(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	m.Record(t0, []vitals.Finding{
		hrFinding(vitals.SeverityHigh),
		{Signal: vitals.SignalTemperature, Kind: vitals.FindingBand, Value: 103, Direction: vitals.DirectionHigh, Severity: vitals.SeverityHigh},
		{Signal: vitals.SignalRespiratoryRate, Kind: vitals.FindingBand, Value: 22, Direction: vitals.DirectionHigh, Severity: vitals.SeverityLow},
	})

	counts := m.OpenCounts()
	if counts[vitals.SeverityHigh] != 2 || counts[vitals.SeverityLow] != 1 {
		t.Errorf("counts = %v, want high:2 low:1", counts)
	}
}

func TestManager_DeterministicReplay(t *testing.T) {
	t.Parallel()

	run := func() []Record {
		m := NewManager("p-1", "monitor", 42)
		m.Record(t0, []vitals.Finding{hrFinding(vitals.SeverityModerate)})
		m.Record(t0.Add(time.Minute), []vitals.Finding{hrFinding(vitals.SeverityCritical)})
		m.Emergency(t0.Add(2*time.Minute), "Emergency declared", "collapse")
		return m.All()
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("replay lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Errorf("record %d id diverged: %s vs %s", i, a[i].ID, b[i].ID)
		}
		if a[i].Severity != b[i].Severity {
			t.Errorf("record %d severity diverged", i)
		}
	}
}
