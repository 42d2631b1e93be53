package monitor

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/vitalwatch/internal/alerting"
	"github.com/linnemanlabs/vitalwatch/internal/escalate"
	"github.com/linnemanlabs/vitalwatch/internal/triage"
	"github.com/linnemanlabs/vitalwatch/internal/vitals"
)

// ErrSessionClosed reports an ingest after monitoring was stopped. A stopped
// session never reopens.
var ErrSessionClosed = errors.New("monitor: session closed")

// Observation is one sample plus its reported context.
type Observation struct {
	Sample         vitals.Sample
	Symptoms       []string
	ChiefComplaint string
}

// IngestResult is the composite outcome of one ingested observation.
type IngestResult struct {
	Findings   []vitals.Finding
	Unknown    []vitals.Signal
	Assessment *triage.Assessment
	Created    []alerting.Record
	Escalated  []alerting.Record
	Transition *escalate.Transition
}

// SessionConfig is the immutable configuration a session is built with.
// Loaded once; a running session never observes config changes.
type SessionConfig struct {
	Thresholds *vitals.ThresholdTable
	Symptoms   triage.SymptomTable
	BPMargin   float64
	Escalation escalate.Config
	Source     string

	// Seed feeds the ID generators. Sessions derive a per-patient seed
	// from it, so replaying samples through a fresh service configured
	// with the same seed reproduces identical records.
	Seed int64
}

// session owns one patient's escalation state and rolling alert history.
// Its mutex is the per-patient serialization point: ingest, acknowledge,
// resolve, and stop all hold it, so they never interleave.
type session struct {
	patientID string
	startedAt time.Time

	mu         sync.Mutex
	evaluator  *vitals.Evaluator
	classifier *triage.Classifier
	alerts     *alerting.Manager
	engine     *escalate.Engine

	lastAssessment *triage.Assessment
	lastSampleAt   time.Time
	closed         bool
}

func patientSeed(base int64, patientID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(patientID))
	return base ^ int64(h.Sum64())
}

func newSession(patientID string, cfg SessionConfig, startedAt time.Time) *session {
	seed := patientSeed(cfg.Seed, patientID)
	return &session{
		patientID:  patientID,
		startedAt:  startedAt,
		evaluator:  vitals.NewEvaluator(cfg.Thresholds, cfg.BPMargin),
		classifier: triage.NewClassifier(cfg.Symptoms, seed),
		alerts:     alerting.NewManager(patientID, cfg.Source, seed),
		engine:     escalate.NewEngine(patientID, cfg.Escalation, startedAt),
	}
}

// ingest runs evaluate, classify, alert recording, and escalation in fixed
// order. An evaluator rejection short-circuits before any state is touched,
// so a failed sample is all-or-nothing.
func (s *session) ingest(obs Observation) (*IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("ingest for %s: %w", s.patientID, ErrSessionClosed)
	}

	ev, err := s.evaluator.Evaluate(obs.Sample)
	if err != nil {
		return nil, err
	}

	at := obs.Sample.RecordedAt
	pain := math.NaN()
	if v, ok := obs.Sample.Values[vitals.SignalPainLevel]; ok {
		pain = v
	}
	assessment := s.classifier.Classify(triage.Input{
		PatientID:      s.patientID,
		Findings:       ev.Findings,
		Symptoms:       obs.Symptoms,
		ChiefComplaint: obs.ChiefComplaint,
		PainLevel:      pain,
		At:             at,
	})

	res := s.alerts.Record(at, ev.Findings)
	created := res.Created

	// A level-1 assessment driven by a life-threatening symptom is an
	// emergency in its own right, independent of the numeric findings.
	if assessment.LifeThreatening && assessment.Level == triage.LevelImmediate {
		em := s.alerts.Emergency(at, "Life-threatening symptoms reported",
			"reported symptoms: "+strings.Join(obs.Symptoms, ", "))
		created = append(created, em.Created...)
	}

	tr := s.engine.Evaluate(at, ev.Findings, s.alerts.Open())

	s.lastAssessment = assessment
	s.lastSampleAt = at

	return &IngestResult{
		Findings:   ev.Findings,
		Unknown:    ev.Unknown,
		Assessment: assessment,
		Created:    created,
		Escalated:  res.Escalated,
		Transition: tr,
	}, nil
}

func (s *session) emergency(at time.Time, title, message string) (*IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("emergency for %s: %w", s.patientID, ErrSessionClosed)
	}

	res := s.alerts.Emergency(at, title, message)
	tr := s.engine.Evaluate(at, nil, s.alerts.Open())
	return &IngestResult{
		Created:    res.Created,
		Transition: tr,
	}, nil
}

func (s *session) acknowledge(id, actor string, at time.Time) (alerting.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alerts.Acknowledge(id, actor, at)
}

func (s *session) resolve(id string, at time.Time) (alerting.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alerts.Resolve(id, at)
}

func (s *session) resolveEmergency(at time.Time) (*escalate.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.ResolveEmergency(at)
}

// stop moves the escalation state to its resolved sink and freezes the
// session. Stopping twice is a no-op.
func (s *session) stop(at time.Time, reason string) *escalate.Transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.engine.Stop(at, reason)
}

// StateSnapshot is the read-only view of one session.
type StateSnapshot struct {
	PatientID      string                  `json:"patient_id"`
	Tier           escalate.Tier           `json:"tier"`
	OpenBySeverity map[vitals.Severity]int `json:"open_by_severity"`
	LastAssessment *triage.Assessment      `json:"last_assessment,omitempty"`
	StartedAt      time.Time               `json:"started_at"`
	LastSampleAt   time.Time               `json:"last_sample_at,omitempty"`
	Closed         bool                    `json:"closed"`
}

func (s *session) snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StateSnapshot{
		PatientID:      s.patientID,
		Tier:           s.engine.State().Tier,
		OpenBySeverity: s.alerts.OpenCounts(),
		LastAssessment: s.lastAssessment,
		StartedAt:      s.startedAt,
		LastSampleAt:   s.lastSampleAt,
		Closed:         s.closed,
	}
}
