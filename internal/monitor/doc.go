// Package monitor is the business boundary for patient monitoring. It owns
// per-patient sessions, serializes sample ingestion, and exposes the event
// stream that persistence and notification consume.
package monitor
