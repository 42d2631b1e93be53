package claude

import (
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/vitalwatch/internal/escalate"
)

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	tr := &escalate.Transition{
		PatientID: "p-1",
		From:      escalate.TierCritical,
		To:        escalate.TierEmergency,
		At:        time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		AlertIDs:  []string{"01JN123", "01JN456"},
		Reason:    "third consecutive critical finding",
	}

	got := buildPrompt(tr)
	for _, want := range []string{
		"Patient p-1",
		"critical tier to the emergency tier",
		"2026-03-01 09:30 UTC",
		"third consecutive critical finding",
		"01JN123, 01JN456",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestBuildPrompt_OmitsEmptyAlertList(t *testing.T) {
	t.Parallel()

	tr := &escalate.Transition{
		PatientID: "p-1",
		From:      escalate.TierStandard,
		To:        escalate.TierEmergency,
		At:        time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Reason:    "emergency alert recorded",
	}

	if got := buildPrompt(tr); strings.Contains(got, "Open alerts") {
		t.Errorf("prompt should omit the alert line when none are involved:\n%s", got)
	}
}
