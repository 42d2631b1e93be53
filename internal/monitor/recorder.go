package monitor

import (
	"context"

	"github.com/linnemanlabs/go-core/log"
)

// Recorder projects the event stream into a Store. It runs as an
// asynchronous consumer so persistence never blocks ingestion; a write
// failure is logged and the stream keeps moving.
type Recorder struct {
	store  Store
	logger log.Logger
}

// NewRecorder creates a recorder writing to the given store.
func NewRecorder(store Store, logger log.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Run consumes events until the channel closes or the context is done.
func (r *Recorder) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.record(ctx, ev)
		}
	}
}

func (r *Recorder) record(ctx context.Context, ev Event) {
	var err error
	switch ev.Type {
	case EventAlertCreated, EventAlertEscalated, EventAlertUpdated:
		err = r.store.SaveAlert(ctx, *ev.Alert)
	case EventAssessment:
		err = r.store.SaveAssessment(ctx, *ev.Assessment)
	case EventTransition:
		err = r.store.SaveTransition(ctx, *ev.Transition)
	}
	if err != nil {
		r.logger.Error(ctx, err, "failed to persist event",
			"type", string(ev.Type), "patient_id", ev.PatientID)
	}
}
