// Package memstore provides an in-memory implementation of monitor.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/vitalwatch/internal/alerting"
	"github.com/linnemanlabs/vitalwatch/internal/escalate"
	"github.com/linnemanlabs/vitalwatch/internal/monitor"
	"github.com/linnemanlabs/vitalwatch/internal/triage"
)

// Store holds monitoring history in memory. Suitable for dev/testing.
type Store struct {
	mu          sync.RWMutex
	alerts      []alerting.Record
	alertIdx    map[string]int // alert ID -> index in alerts
	assessments []triage.Assessment
	transitions []escalate.Transition
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{alertIdx: make(map[string]int)}
}

// SaveAlert stores a copy of the alert, replacing any prior version with
// the same ID.
func (s *Store) SaveAlert(_ context.Context, rec alerting.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.alertIdx[rec.ID]; ok {
		s.alerts[i] = rec
		return nil
	}
	s.alertIdx[rec.ID] = len(s.alerts)
	s.alerts = append(s.alerts, rec)
	return nil
}

// SaveAssessment appends an assessment. Assessments are immutable records.
func (s *Store) SaveAssessment(_ context.Context, a triage.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments = append(s.assessments, a)
	return nil
}

// SaveTransition appends a transition.
func (s *Store) SaveTransition(_ context.Context, tr escalate.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, tr)
	return nil
}

// ListAlerts returns a patient's alerts in insertion order.
func (s *Store) ListAlerts(_ context.Context, patientID string) ([]alerting.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []alerting.Record
	for _, rec := range s.alerts {
		if rec.PatientID == patientID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ListAssessments returns a patient's most recent assessments, newest
// first. A limit of 0 means no limit.
func (s *Store) ListAssessments(_ context.Context, patientID string, limit int) ([]triage.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []triage.Assessment
	for i := len(s.assessments) - 1; i >= 0; i-- {
		if s.assessments[i].PatientID != patientID {
			continue
		}
		out = append(out, s.assessments[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListTransitions returns a patient's transitions in insertion order.
func (s *Store) ListTransitions(_ context.Context, patientID string) ([]escalate.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []escalate.Transition
	for _, tr := range s.transitions {
		if tr.PatientID == patientID {
			out = append(out, tr)
		}
	}
	return out, nil
}

// Stats aggregates over everything stored.
func (s *Store) Stats(_ context.Context) (monitor.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := monitor.Stats{
		Alerts:      len(s.alerts),
		Assessments: len(s.assessments),
		Transitions: len(s.transitions),
	}
	for _, rec := range s.alerts {
		if !rec.Resolved {
			st.OpenAlerts++
		}
		if rec.Type == alerting.TypeEmergency {
			st.Emergencies++
		}
	}
	return st, nil
}
