package alerting

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/vitalwatch/internal/vitals"
)

// trendRunLength is how many consecutive same-direction findings on one
// signal open a trend alert.
const trendRunLength = 3

// dedupKey identifies the unresolved alert a new finding would duplicate.
type dedupKey struct {
	typ    Type
	signal vitals.Signal
}

type trendRun struct {
	direction vitals.Direction
	count     int
}

// Manager holds the rolling alert history for one patient. It is not safe
// for concurrent use; the owning session serializes access.
type Manager struct {
	patientID string
	source    string

	records []*Record
	byID    map[string]*Record
	open    map[dedupKey]*Record
	trends  map[vitals.Signal]*trendRun

	entropy *ulid.MonotonicEntropy
}

// NewManager creates an empty alert history for a patient. IDs come from a
// seeded monotonic ULID source so identical inputs replayed through a fresh
// manager produce identical records.
func NewManager(patientID, source string, seed int64) *Manager {
	return &Manager{
		patientID: patientID,
		source:    source,
		byID:      make(map[string]*Record),
		open:      make(map[dedupKey]*Record),
		trends:    make(map[vitals.Signal]*trendRun),
		entropy:   ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
	}
}

// Result reports what one batch of findings did to the alert history.
type Result struct {
	Created   []Record
	Escalated []Record
}

// Record applies a batch of findings observed at the given time.
//
// For each finding, an unresolved alert with the same (type, signal) pair
// suppresses creation: a strictly higher severity escalates the existing
// alert in place with a note, lower or equal severity mutates nothing. A
// resolved alert never blocks a new one. Trend alerts open after
// consecutive same-direction findings on a signal.
func (m *Manager) Record(at time.Time, findings []vitals.Finding) Result {
	var res Result
	seen := make(map[vitals.Signal]bool, len(findings))

	for _, f := range findings {
		seen[f.Signal] = true
		m.apply(&res, at, TypeVitalSigns, f.Signal, f.Severity,
			fmt.Sprintf("Vital sign alert: %s", f.Signal),
			fmt.Sprintf("%s is %s (%g), severity %s", f.Signal, f.Direction, f.Value, f.Severity))

		// Trend alerts carry a fixed moderate severity: the sustained
		// pattern is the signal here, the per-sample vital_signs alert
		// already tracks how bad each reading is.
		if f.Kind == vitals.FindingBand && m.extendRun(f) {
			m.apply(&res, at, TypeTrend, f.Signal, vitals.SeverityModerate,
				fmt.Sprintf("Trend alert: %s", f.Signal),
				fmt.Sprintf("%s has stayed %s for %d consecutive samples", f.Signal, f.Direction, trendRunLength))
		}
	}

	// A sample with no finding for a signal breaks that signal's run.
	for sig := range m.trends {
		if !seen[sig] {
			delete(m.trends, sig)
		}
	}
	return res
}

// Emergency records an explicit emergency alert, bypassing finding-based
// severity derivation. Dedup still applies per the emergency type.
func (m *Manager) Emergency(at time.Time, title, message string) Result {
	var res Result
	m.apply(&res, at, TypeEmergency, "", vitals.SeverityCritical, title, message)
	return res
}

func (m *Manager) apply(res *Result, at time.Time, typ Type, sig vitals.Signal, sev vitals.Severity, title, message string) {
	key := dedupKey{typ: typ, signal: sig}
	if existing, ok := m.open[key]; ok {
		if sev.Rank() > existing.Severity.Rank() {
			note := fmt.Sprintf("severity escalated from %s to %s at %s", existing.Severity, sev, at.UTC().Format(time.RFC3339))
			existing.Severity = sev
			existing.Notes = append(existing.Notes, note)
			res.Escalated = append(res.Escalated, existing.clone())
		}
		return
	}

	rec := &Record{
		ID:        ulid.MustNew(ulid.Timestamp(at), m.entropy).String(),
		PatientID: m.patientID,
		Type:      typ,
		Signal:    sig,
		Severity:  sev,
		Title:     title,
		Message:   message,
		Source:    m.source,
		CreatedAt: at,
	}
	m.records = append(m.records, rec)
	m.byID[rec.ID] = rec
	m.open[key] = rec
	res.Created = append(res.Created, rec.clone())
}

func (m *Manager) extendRun(f vitals.Finding) bool {
	run := m.trends[f.Signal]
	if run == nil || run.direction != f.Direction {
		m.trends[f.Signal] = &trendRun{direction: f.Direction, count: 1}
		return false
	}
	run.count++
	return run.count == trendRunLength
}

// Acknowledge marks an alert acknowledged by an actor. Acknowledging an
// already-acknowledged or resolved alert succeeds without mutation; an
// unknown id returns ErrNotFound.
func (m *Manager) Acknowledge(id, actor string, at time.Time) (Record, error) {
	rec, ok := m.byID[id]
	if !ok {
		return Record{}, fmt.Errorf("acknowledge %s: %w", id, ErrNotFound)
	}
	if !rec.Acknowledged && !rec.Resolved {
		rec.Acknowledged = true
		rec.AcknowledgedBy = actor
		t := at
		rec.AcknowledgedAt = &t
	}
	return rec.clone(), nil
}

// Resolve closes an alert. Resolving an unacknowledged alert is allowed,
// and resolving twice is a no-op. An unknown id returns ErrNotFound.
func (m *Manager) Resolve(id string, at time.Time) (Record, error) {
	rec, ok := m.byID[id]
	if !ok {
		return Record{}, fmt.Errorf("resolve %s: %w", id, ErrNotFound)
	}
	if !rec.Resolved {
		rec.Resolved = true
		t := at
		rec.ResolvedAt = &t
		delete(m.open, dedupKey{typ: rec.Type, signal: rec.Signal})
	}
	return rec.clone(), nil
}

// Get returns a snapshot of one alert.
func (m *Manager) Get(id string) (Record, error) {
	rec, ok := m.byID[id]
	if !ok {
		return Record{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return rec.clone(), nil
}

// Open returns snapshots of all unresolved alerts in creation order.
func (m *Manager) Open() []Record {
	out := make([]Record, 0, len(m.open))
	for _, rec := range m.records {
		if !rec.Resolved {
			out = append(out, rec.clone())
		}
	}
	return out
}

// OpenCounts returns the number of unresolved alerts per severity.
func (m *Manager) OpenCounts() map[vitals.Severity]int {
	counts := make(map[vitals.Severity]int)
	for _, rec := range m.records {
		if !rec.Resolved {
			counts[rec.Severity]++
		}
	}
	return counts
}

// All returns snapshots of the full history in creation order.
func (m *Manager) All() []Record {
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.clone())
	}
	return out
}
