// Package slack projects monitoring events into Slack via incoming
// webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/vitalwatch/internal/alerting"
	"github.com/linnemanlabs/vitalwatch/internal/escalate"
	"github.com/linnemanlabs/vitalwatch/internal/monitor"
	"github.com/linnemanlabs/vitalwatch/internal/vitals"
)

const httpTimeout = 10 * time.Second

// Notifier sends alert and transition notifications to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, sends are
// no-ops.
func New(webhookURL string, logger log.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Run consumes events until the channel closes or the context is done.
// Only alert creations at severity high or worse and tier transitions
// reach Slack; a failed post is logged and skipped, never retried here.
func (n *Notifier) Run(ctx context.Context, events <-chan monitor.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := n.Notify(ctx, ev); err != nil {
				n.logger.Error(ctx, err, "slack notification failed",
					"type", string(ev.Type), "patient_id", ev.PatientID)
			}
		}
	}
}

// Notify posts a single event if it is notification-worthy.
func (n *Notifier) Notify(ctx context.Context, ev monitor.Event) error {
	if n.webhookURL == "" {
		return nil
	}

	var msg map[string]any
	switch ev.Type {
	case monitor.EventAlertCreated:
		if !ev.Alert.Severity.AtLeast(vitals.SeverityHigh) {
			return nil
		}
		msg = alertMessage(ev.Alert)
	case monitor.EventTransition:
		msg = transitionMessage(ev.Transition)
	default:
		return nil
	}
	return n.post(ctx, msg)
}

func (n *Notifier) post(ctx context.Context, msg map[string]any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func alertMessage(rec *alerting.Record) map[string]any {
	fields := []map[string]any{
		{"type": "mrkdwn", "text": fmt.Sprintf("*Patient:* %s", rec.PatientID)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Severity:* %s", rec.Severity)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Type:* %s", rec.Type)},
	}
	if rec.Signal != "" {
		fields = append(fields, map[string]any{
			"type": "mrkdwn", "text": fmt.Sprintf("*Signal:* %s", rec.Signal),
		})
	}

	return map[string]any{
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("%s %s", severityEmoji(rec.Severity), rec.Title),
				},
			},
			{"type": "section", "fields": fields},
			{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": rec.Message},
			},
			contextBlock(fmt.Sprintf("alert %s", rec.ID), rec.CreatedAt),
		},
	}
}

func transitionMessage(tr *escalate.Transition) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("%s Monitoring tier: %s → %s", tierEmoji(tr.To), tr.From, tr.To),
				},
			},
			{
				"type": "section",
				"fields": []map[string]any{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Patient:* %s", tr.PatientID)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", tr.Reason)},
				},
			},
			contextBlock(fmt.Sprintf("patient %s", tr.PatientID), tr.At),
		},
	}
}

func contextBlock(ref string, ts time.Time) map[string]any {
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("vitalwatch • %s • %s", ref, ts.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

func severityEmoji(sev vitals.Severity) string {
	switch sev {
	case vitals.SeverityCritical:
		return "\U0001f534" // red circle
	case vitals.SeverityHigh:
		return "\U0001f7e0" // orange circle
	default:
		return "\U0001f7e1" // yellow circle
	}
}

func tierEmoji(t escalate.Tier) string {
	switch t {
	case escalate.TierEmergency:
		return "\U0001f6a8" // rotating light
	case escalate.TierCritical:
		return "\U0001f534" // red circle
	case escalate.TierElevated:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}
