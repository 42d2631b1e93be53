// Package claude layers optional LLM-generated narratives on top of the
// monitoring event stream. Annotations are advisory text for clinicians;
// they are never an input to severity or escalation decisions.
package claude

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/vitalwatch/internal/escalate"
	"github.com/linnemanlabs/vitalwatch/internal/monitor"
)

const maxTokens = 1024

const systemPrompt = `You are a clinical monitoring assistant. Given a
patient's escalation event, write a short plain-language summary for the
care team: what changed, why, and what deserves attention first. Two to
four sentences. Do not invent vitals or history that were not provided.`

// Annotator generates narratives for emergency escalations.
type Annotator struct {
	client anthropic.Client
	model  anthropic.Model
	logger log.Logger
}

// New creates an annotator using the given API key and model.
func New(apiKey, model string, logger log.Logger) *Annotator {
	return &Annotator{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
		logger: logger,
	}
}

// Run consumes events until the channel closes or the context is done.
// Only transitions into the Emergency tier are annotated; everything else
// passes by untouched. Failures are logged and skipped so the stream never
// stalls on the API.
func (a *Annotator) Run(ctx context.Context, events <-chan monitor.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != monitor.EventTransition || ev.Transition.To != escalate.TierEmergency {
				continue
			}
			narrative, err := a.Annotate(ctx, ev.Transition)
			if err != nil {
				a.logger.Error(ctx, err, "emergency annotation failed", "patient_id", ev.PatientID)
				continue
			}
			a.logger.Info(ctx, "emergency annotation",
				"patient_id", ev.PatientID, "narrative", narrative)
		}
	}
}

// Annotate asks the model for a narrative describing one transition.
func (a *Annotator) Annotate(ctx context.Context, tr *escalate.Transition) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(tr))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("claude: empty response")
	}
	return text, nil
}

func buildPrompt(tr *escalate.Transition) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Patient %s escalated from the %s tier to the %s tier at %s.\n",
		tr.PatientID, tr.From, tr.To, tr.At.UTC().Format("2006-01-02 15:04 UTC"))
	fmt.Fprintf(&sb, "Trigger: %s.\n", tr.Reason)
	if len(tr.AlertIDs) > 0 {
		fmt.Fprintf(&sb, "Open alerts involved: %s.\n", strings.Join(tr.AlertIDs, ", "))
	}
	return sb.String()
}
