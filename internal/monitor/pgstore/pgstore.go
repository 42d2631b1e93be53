// Package pgstore provides a PostgreSQL implementation of monitor.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/vitalwatch/internal/alerting"
	"github.com/linnemanlabs/vitalwatch/internal/escalate"
	"github.com/linnemanlabs/vitalwatch/internal/monitor"
	"github.com/linnemanlabs/vitalwatch/internal/triage"
	"github.com/linnemanlabs/vitalwatch/internal/vitals"
)

var tracer = otel.Tracer("github.com/linnemanlabs/vitalwatch/internal/monitor/pgstore")

//go:embed schema.sql
var schema string

// Store persists monitoring history in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store. The pool is owned by
// the caller until New succeeds; Close shuts it down.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const alertColumns = `id, patient_id, alert_type, signal, severity, title, message, source, notes,
	acknowledged, acknowledged_by, acknowledged_at, resolved, resolved_at, created_at`

// SaveAlert inserts or updates an alert (upsert on id).
func (s *Store) SaveAlert(ctx context.Context, rec alerting.Record) error {
	ctx, span := tracer.Start(ctx, "pgstore.SaveAlert", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	notesJSON, err := json.Marshal(rec.Notes)
	if err != nil {
		return fmt.Errorf("marshal notes: %w", err)
	}
	if rec.Notes == nil {
		notesJSON = []byte("[]")
	}

	query := `INSERT INTO alerts (` + alertColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	ON CONFLICT (id) DO UPDATE SET
		severity        = EXCLUDED.severity,
		notes           = EXCLUDED.notes,
		acknowledged    = EXCLUDED.acknowledged,
		acknowledged_by = EXCLUDED.acknowledged_by,
		acknowledged_at = EXCLUDED.acknowledged_at,
		resolved        = EXCLUDED.resolved,
		resolved_at     = EXCLUDED.resolved_at`

	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.PatientID, string(rec.Type), string(rec.Signal), string(rec.Severity),
		rec.Title, rec.Message, rec.Source, notesJSON,
		rec.Acknowledged, rec.AcknowledgedBy, rec.AcknowledgedAt,
		rec.Resolved, rec.ResolvedAt, rec.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert alert: %w", err)
	}
	return nil
}

// SaveAssessment inserts an assessment. Assessments are immutable, so a
// replayed id is left untouched.
func (s *Store) SaveAssessment(ctx context.Context, a triage.Assessment) error {
	ctx, span := tracer.Start(ctx, "pgstore.SaveAssessment", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	symptomsJSON, err := json.Marshal(a.Symptoms)
	if err != nil {
		return fmt.Errorf("marshal symptoms: %w", err)
	}
	if a.Symptoms == nil {
		symptomsJSON = []byte("[]")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO assessments (id, patient_id, triage_level, severity, chief_complaint,
			symptoms, life_threatening, wait_minutes, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (id) DO NOTHING`,
		a.ID, a.PatientID, int(a.Level), string(a.Severity), a.ChiefComplaint,
		symptomsJSON, a.LifeThreatening, a.WaitMinutes, a.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

// SaveTransition appends a transition row.
func (s *Store) SaveTransition(ctx context.Context, tr escalate.Transition) error {
	ctx, span := tracer.Start(ctx, "pgstore.SaveTransition", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	idsJSON, err := json.Marshal(tr.AlertIDs)
	if err != nil {
		return fmt.Errorf("marshal alert ids: %w", err)
	}
	if tr.AlertIDs == nil {
		idsJSON = []byte("[]")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO transitions (patient_id, from_tier, to_tier, occurred_at, alert_ids, reason)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		tr.PatientID, string(tr.From), string(tr.To), tr.At, idsJSON, tr.Reason,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

// ListAlerts returns a patient's alerts, oldest first.
func (s *Store) ListAlerts(ctx context.Context, patientID string) ([]alerting.Record, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListAlerts", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE patient_id = $1 ORDER BY created_at, id`,
		patientID,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []alerting.Record
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

// ListAssessments returns a patient's assessments, newest first. A limit of
// 0 means no limit.
func (s *Store) ListAssessments(ctx context.Context, patientID string, limit int) ([]triage.Assessment, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListAssessments", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT id, patient_id, triage_level, severity, chief_complaint, symptoms,
		life_threatening, wait_minutes, created_at
	FROM assessments WHERE patient_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{patientID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query assessments: %w", err)
	}
	defer rows.Close()

	var out []triage.Assessment
	for rows.Next() {
		var (
			a            triage.Assessment
			level        int
			severity     string
			symptomsJSON []byte
		)
		if err := rows.Scan(&a.ID, &a.PatientID, &level, &severity, &a.ChiefComplaint,
			&symptomsJSON, &a.LifeThreatening, &a.WaitMinutes, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		a.Level = triage.Level(level)
		a.Severity = vitals.Severity(severity)
		if err := json.Unmarshal(symptomsJSON, &a.Symptoms); err != nil {
			return nil, fmt.Errorf("unmarshal symptoms: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assessments: %w", err)
	}
	return out, nil
}

// ListTransitions returns a patient's transitions, oldest first.
func (s *Store) ListTransitions(ctx context.Context, patientID string) ([]escalate.Transition, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListTransitions", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT patient_id, from_tier, to_tier, occurred_at, alert_ids, reason
		 FROM transitions WHERE patient_id = $1 ORDER BY occurred_at, id`,
		patientID,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []escalate.Transition
	for rows.Next() {
		var (
			tr      escalate.Transition
			from    string
			to      string
			idsJSON []byte
		)
		if err := rows.Scan(&tr.PatientID, &from, &to, &tr.At, &idsJSON, &tr.Reason); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.From = escalate.Tier(from)
		tr.To = escalate.Tier(to)
		if err := json.Unmarshal(idsJSON, &tr.AlertIDs); err != nil {
			return nil, fmt.Errorf("unmarshal alert ids: %w", err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}

// Stats aggregates over everything stored.
func (s *Store) Stats(ctx context.Context) (monitor.Stats, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Stats", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	var st monitor.Stats
	err := s.pool.QueryRow(ctx, `SELECT
		(SELECT count(*) FROM alerts),
		(SELECT count(*) FROM alerts WHERE NOT resolved),
		(SELECT count(*) FROM alerts WHERE alert_type = 'emergency'),
		(SELECT count(*) FROM assessments),
		(SELECT count(*) FROM transitions)`,
	).Scan(&st.Alerts, &st.OpenAlerts, &st.Emergencies, &st.Assessments, &st.Transitions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return monitor.Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return st, nil
}

func scanAlert(row pgx.Row) (alerting.Record, error) {
	var (
		rec       alerting.Record
		typ       string
		signal    string
		severity  string
		notesJSON []byte
	)
	err := row.Scan(
		&rec.ID, &rec.PatientID, &typ, &signal, &severity, &rec.Title, &rec.Message,
		&rec.Source, &notesJSON, &rec.Acknowledged, &rec.AcknowledgedBy, &rec.AcknowledgedAt,
		&rec.Resolved, &rec.ResolvedAt, &rec.CreatedAt,
	)
	if err != nil {
		return alerting.Record{}, fmt.Errorf("scan alert: %w", err)
	}
	rec.Type = alerting.Type(typ)
	rec.Signal = vitals.Signal(signal)
	rec.Severity = vitals.Severity(severity)
	if err := json.Unmarshal(notesJSON, &rec.Notes); err != nil {
		return alerting.Record{}, fmt.Errorf("unmarshal notes: %w", err)
	}
	return rec, nil
}
