package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/vitalwatch/internal/alerting"
	"github.com/linnemanlabs/vitalwatch/internal/escalate"
	"github.com/linnemanlabs/vitalwatch/internal/vitals"
)

// ErrPatientNotFound reports an operation against a patient with no
// session, or an alert id no session has issued.
var ErrPatientNotFound = errors.New("monitor: patient not found")

// Service routes operations to per-patient sessions. Sessions are fully
// independent units of state, so patients proceed in parallel while each
// session serializes its own mutations.
type Service struct {
	cfg     SessionConfig
	logger  log.Logger
	metrics *Metrics
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
	owners   map[string]string // alert id -> patient id

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// NewService creates a monitoring service. Metrics may be nil.
func NewService(cfg SessionConfig, logger log.Logger, metrics *Metrics) *Service {
	return &Service{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		sessions: make(map[string]*session),
		owners:   make(map[string]string),
		subs:     make(map[int]chan Event),
	}
}

// Ingest applies one observation to a patient's session, creating the
// session on the patient's first sample. The composite result reflects the
// full evaluate, classify, alert, escalate pipeline; a rejected sample
// leaves all state untouched.
func (s *Service) Ingest(ctx context.Context, patientID string, obs Observation) (*IngestResult, error) {
	start := time.Now()
	sess := s.sessionFor(patientID, obs.Sample.RecordedAt)

	res, err := sess.ingest(obs)
	if s.metrics != nil {
		s.metrics.IngestDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.SamplesTotal.WithLabelValues(ingestResultLabel(err)).Inc()
		}
		return nil, err
	}

	if len(res.Unknown) > 0 {
		s.logger.Warn(ctx, "sample carried unknown signals",
			"patient_id", patientID, "signals", fmt.Sprint(res.Unknown))
	}
	s.observeIngest(patientID, res)
	s.publishIngest(patientID, res)
	return res, nil
}

// Emergency records an explicit emergency alert for a patient.
func (s *Service) Emergency(ctx context.Context, patientID, title, message string, at time.Time) (*IngestResult, error) {
	s.mu.RLock()
	sess, ok := s.sessions[patientID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("emergency for %s: %w", patientID, ErrPatientNotFound)
	}

	res, err := sess.emergency(at, title, message)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "emergency declared", "patient_id", patientID, "title", title)
	s.observeIngest(patientID, res)
	s.publishIngest(patientID, res)
	return res, nil
}

// Acknowledge marks an alert acknowledged by an actor. The alert id alone
// identifies the session.
func (s *Service) Acknowledge(ctx context.Context, alertID, actor string) (alerting.Record, error) {
	sess, err := s.sessionForAlert(alertID)
	if err != nil {
		return alerting.Record{}, err
	}
	rec, err := sess.acknowledge(alertID, actor, s.now())
	if err != nil {
		return alerting.Record{}, err
	}
	s.logger.Info(ctx, "alert acknowledged", "alert_id", alertID, "actor", actor)
	s.publish(Event{Type: EventAlertUpdated, PatientID: rec.PatientID, At: s.now(), Alert: &rec})
	return rec, nil
}

// Resolve closes an alert. Resolution does not require acknowledgement.
func (s *Service) Resolve(ctx context.Context, alertID string) (alerting.Record, error) {
	sess, err := s.sessionForAlert(alertID)
	if err != nil {
		return alerting.Record{}, err
	}
	rec, err := sess.resolve(alertID, s.now())
	if err != nil {
		return alerting.Record{}, err
	}
	s.logger.Info(ctx, "alert resolved", "alert_id", alertID)
	s.publish(Event{Type: EventAlertUpdated, PatientID: rec.PatientID, At: s.now(), Alert: &rec})
	return rec, nil
}

// ResolveEmergency steps a patient out of the Emergency tier after explicit
// human review.
func (s *Service) ResolveEmergency(ctx context.Context, patientID string) (*escalate.Transition, error) {
	s.mu.RLock()
	sess, ok := s.sessions[patientID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("resolve emergency for %s: %w", patientID, ErrPatientNotFound)
	}

	tr, err := sess.resolveEmergency(s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "emergency resolved", "patient_id", patientID)
	s.observeTransition(tr)
	s.publish(Event{Type: EventTransition, PatientID: patientID, At: tr.At, Transition: tr})
	return tr, nil
}

// Stop ends monitoring for a patient. Stopping is idempotent; subsequent
// ingests fail with ErrSessionClosed rather than reopening state.
func (s *Service) Stop(ctx context.Context, patientID, reason string) (*escalate.Transition, error) {
	s.mu.RLock()
	sess, ok := s.sessions[patientID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("stop for %s: %w", patientID, ErrPatientNotFound)
	}

	tr := sess.stop(s.now(), reason)
	if tr == nil {
		return nil, nil
	}
	s.logger.Info(ctx, "monitoring stopped", "patient_id", patientID, "reason", reason)
	if s.metrics != nil {
		s.metrics.SessionsActive.Dec()
	}
	s.observeTransition(tr)
	s.publish(Event{Type: EventTransition, PatientID: patientID, At: tr.At, Transition: tr})
	return tr, nil
}

// CurrentState returns the read-only view of a patient's session.
func (s *Service) CurrentState(ctx context.Context, patientID string) (StateSnapshot, error) {
	s.mu.RLock()
	sess, ok := s.sessions[patientID]
	s.mu.RUnlock()
	if !ok {
		return StateSnapshot{}, fmt.Errorf("state for %s: %w", patientID, ErrPatientNotFound)
	}
	return sess.snapshot(), nil
}

// Subscribe returns a channel of events and a cancel function. Delivery is
// best effort: a subscriber that falls behind loses events rather than
// blocking ingestion.
func (s *Service) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *Service) sessionFor(patientID string, startedAt time.Time) *session {
	s.mu.RLock()
	sess, ok := s.sessions[patientID]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok = s.sessions[patientID]; ok {
		return sess
	}
	sess = newSession(patientID, s.cfg, startedAt)
	s.sessions[patientID] = sess
	if s.metrics != nil {
		s.metrics.SessionsActive.Inc()
	}
	return sess
}

func (s *Service) sessionForAlert(alertID string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	patientID, ok := s.owners[alertID]
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", alertID, alerting.ErrNotFound)
	}
	return s.sessions[patientID], nil
}

func (s *Service) publishIngest(patientID string, res *IngestResult) {
	if len(res.Created) > 0 {
		s.mu.Lock()
		for _, rec := range res.Created {
			s.owners[rec.ID] = patientID
		}
		s.mu.Unlock()
	}
	for i := range res.Created {
		rec := res.Created[i]
		s.publish(Event{Type: EventAlertCreated, PatientID: patientID, At: rec.CreatedAt, Alert: &rec})
	}
	for i := range res.Escalated {
		rec := res.Escalated[i]
		s.publish(Event{Type: EventAlertEscalated, PatientID: patientID, At: s.now(), Alert: &rec})
	}
	if res.Assessment != nil {
		s.publish(Event{Type: EventAssessment, PatientID: patientID, At: res.Assessment.CreatedAt, Assessment: res.Assessment})
	}
	if res.Transition != nil {
		s.publish(Event{Type: EventTransition, PatientID: patientID, At: res.Transition.At, Transition: res.Transition})
	}
}

func (s *Service) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			if s.metrics != nil {
				s.metrics.EventsDropped.Inc()
			}
		}
	}
}

func (s *Service) observeIngest(patientID string, res *IngestResult) {
	if s.metrics == nil {
		return
	}
	s.metrics.SamplesTotal.WithLabelValues("ok").Inc()
	for _, f := range res.Findings {
		s.metrics.FindingsTotal.WithLabelValues(string(f.Signal), string(f.Severity)).Inc()
	}
	for _, rec := range res.Created {
		s.metrics.AlertsTotal.WithLabelValues(string(rec.Type), string(rec.Severity)).Inc()
	}
	if res.Assessment != nil {
		s.metrics.AssessmentLevel.Observe(float64(res.Assessment.Level))
	}
	s.observeTransition(res.Transition)
}

func (s *Service) observeTransition(tr *escalate.Transition) {
	if s.metrics == nil || tr == nil {
		return
	}
	s.metrics.TransitionsTotal.WithLabelValues(string(tr.From), string(tr.To)).Inc()
}

func ingestResultLabel(err error) string {
	switch {
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	case vitals.IsInputError(err):
		return "input_error"
	default:
		return "error"
	}
}
