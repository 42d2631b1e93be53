package cfg

import (
	"errors"
	"flag"
	"fmt"
	"math"
)

// Config adds application-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string
	DatabaseURL           string
	SlackWebhookURL       string
	ClaudeAPIKey          string
	ClaudeModel           string
	AnnotateEmergencies   bool

	HysteresisMinutes           int
	UnresolvedEscalationMinutes int
	BPMarginMMHG                float64
	ReplaySeed                  int64
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on API requests (empty = auth disabled)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for alert notifications")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for accessing the Claude LLM provider")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.BoolVar(&c.AnnotateEmergencies, "annotate-emergencies", false, "generate Claude narratives for emergency transitions")
	fs.IntVar(&c.HysteresisMinutes, "hysteresis-minutes", 10, "minutes of sample time without qualifying findings before tier de-escalation (1..120)")
	fs.IntVar(&c.UnresolvedEscalationMinutes, "unresolved-escalation-minutes", 15, "minutes an open high-severity alert may sit unresolved before forcing escalation (1..240)")
	fs.Float64Var(&c.BPMarginMMHG, "bp-margin-mmhg", 20, "mmHg margin for blood pressure severity banding (0..100)")
	fs.Int64Var(&c.ReplaySeed, "replay-seed", 1, "base seed for deterministic per-patient alert and assessment IDs")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.HysteresisMinutes <= 0 || c.HysteresisMinutes > 120 {
		errs = append(errs, fmt.Errorf("invalid HYSTERESIS_MINUTES %d (must be 1..120)", c.HysteresisMinutes))
	}
	if c.UnresolvedEscalationMinutes <= 0 || c.UnresolvedEscalationMinutes > 240 {
		errs = append(errs, fmt.Errorf("invalid UNRESOLVED_ESCALATION_MINUTES %d (must be 1..240)", c.UnresolvedEscalationMinutes))
	}
	if math.IsNaN(c.BPMarginMMHG) || c.BPMarginMMHG < 0 || c.BPMarginMMHG > 100 {
		errs = append(errs, fmt.Errorf("invalid BP_MARGIN_MMHG %g (must be 0..100)", c.BPMarginMMHG))
	}

	// Claude credentials are only needed when annotation is on
	if c.AnnotateEmergencies {
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required when ANNOTATE_EMERGENCIES is set"))
		}
		if c.ClaudeModel == "" {
			errs = append(errs, errors.New("CLAUDE_MODEL is required when ANNOTATE_EMERGENCIES is set"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
