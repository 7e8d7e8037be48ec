package domain

import (
	"errors"
	"testing"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name   string
		from   Status
		to     Status
		via    Trigger
		expect bool
	}{
		// From pending
		{"pending -> in_progress", StatusPending, StatusInProgress, TriggerUpdate, true},
		{"pending -> cancelled", StatusPending, StatusCancelled, TriggerUpdate, true},
		{"pending -> stale (sweep)", StatusPending, StatusStale, TriggerSweep, true},
		{"pending -> stale (update)", StatusPending, StatusStale, TriggerUpdate, false},
		{"pending -> completed", StatusPending, StatusCompleted, TriggerUpdate, false},
		{"pending -> failed", StatusPending, StatusFailed, TriggerUpdate, false},
		{"pending -> waiting_user", StatusPending, StatusWaitingUser, TriggerUpdate, false},

		// From in_progress
		{"in_progress -> completed", StatusInProgress, StatusCompleted, TriggerUpdate, true},
		{"in_progress -> failed", StatusInProgress, StatusFailed, TriggerUpdate, true},
		{"in_progress -> waiting_user", StatusInProgress, StatusWaitingUser, TriggerUpdate, true},
		{"in_progress -> cancelled", StatusInProgress, StatusCancelled, TriggerUpdate, true},
		{"in_progress -> stale (sweep)", StatusInProgress, StatusStale, TriggerSweep, true},
		{"in_progress -> pending", StatusInProgress, StatusPending, TriggerUpdate, false},

		// From waiting_user
		{"waiting_user -> in_progress", StatusWaitingUser, StatusInProgress, TriggerUpdate, true},
		{"waiting_user -> cancelled", StatusWaitingUser, StatusCancelled, TriggerUpdate, true},
		{"waiting_user -> completed", StatusWaitingUser, StatusCompleted, TriggerUpdate, false},
		{"waiting_user -> stale", StatusWaitingUser, StatusStale, TriggerSweep, false},

		// From failed
		{"failed -> pending (retry)", StatusFailed, StatusPending, TriggerRetry, true},
		{"failed -> pending (update)", StatusFailed, StatusPending, TriggerUpdate, false},
		{"failed -> in_progress", StatusFailed, StatusInProgress, TriggerUpdate, false},
		{"failed -> cancelled", StatusFailed, StatusCancelled, TriggerUpdate, false},

		// From stale
		{"stale -> pending", StatusStale, StatusPending, TriggerUpdate, true},
		{"stale -> in_progress", StatusStale, StatusInProgress, TriggerUpdate, true},
		{"stale -> cancelled", StatusStale, StatusCancelled, TriggerUpdate, false},
		{"stale -> completed", StatusStale, StatusCompleted, TriggerUpdate, false},

		// Terminal
		{"completed -> in_progress", StatusCompleted, StatusInProgress, TriggerUpdate, false},
		{"completed -> pending (retry)", StatusCompleted, StatusPending, TriggerRetry, false},
		{"cancelled -> in_progress", StatusCancelled, StatusInProgress, TriggerUpdate, false},
		{"cancelled -> cancelled", StatusCancelled, StatusCancelled, TriggerUpdate, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.from.CanTransitionTo(tt.to, tt.via)
			if got != tt.expect {
				t.Errorf("CanTransitionTo(%s, %s, %s) = %v, want %v", tt.from, tt.to, tt.via, got, tt.expect)
			}
		})
	}
}

func TestStatus_CanTransitionTo_UnknownStatus(t *testing.T) {
	if Status("unknown").CanTransitionTo(StatusPending, TriggerUpdate) {
		t.Error("unknown status should not transition")
	}
}

func TestStatus_RequiredTrigger(t *testing.T) {
	if got, ok := StatusFailed.RequiredTrigger(StatusPending); !ok || got != TriggerRetry {
		t.Errorf("failed -> pending requires %v (%v), want retry", got, ok)
	}
	if got, ok := StatusInProgress.RequiredTrigger(StatusStale); !ok || got != TriggerSweep {
		t.Errorf("in_progress -> stale requires %v (%v), want sweep", got, ok)
	}
	if _, ok := StatusCompleted.RequiredTrigger(StatusPending); ok {
		t.Error("completed -> pending should not exist")
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status Status
		expect bool
	}{
		{StatusPending, false},
		{StatusInProgress, false},
		{StatusWaitingUser, false},
		{StatusStale, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.expect {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.expect)
			}
		})
	}
}

func TestStatus_Display(t *testing.T) {
	tests := []struct {
		status Status
		expect string
	}{
		{StatusPending, "Pending"},
		{StatusInProgress, "In Progress"},
		{StatusWaitingUser, "Waiting User"},
		{StatusCompleted, "Completed"},
		{StatusFailed, "Failed"},
		{StatusCancelled, "Cancelled"},
		{StatusStale, "Stale"},
		{Status("custom"), "custom"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Display(); got != tt.expect {
				t.Errorf("Display() = %q, want %q", got, tt.expect)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range AllStatuses() {
		got, err := ParseStatus(string(s))
		if err != nil || got != s {
			t.Errorf("ParseStatus(%q) = %q, %v", s, got, err)
		}
	}

	if _, err := ParseStatus("done"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("ParseStatus(done) error = %v, want ErrInvalidStatus", err)
	}
}

func TestAllStatuses(t *testing.T) {
	statuses := AllStatuses()
	if len(statuses) != 7 {
		t.Errorf("AllStatuses() returned %d statuses, want 7", len(statuses))
	}
	for _, s := range statuses {
		if !s.IsValid() {
			t.Errorf("AllStatuses() contains invalid status %q", s)
		}
	}
}

func TestTrigger_String(t *testing.T) {
	if TriggerRetry.String() != "retry" || TriggerSweep.String() != "sweep" || TriggerUpdate.String() != "update" {
		t.Error("unexpected trigger names")
	}
	if Trigger(9).String() != "trigger(9)" {
		t.Errorf("Trigger(9).String() = %q", Trigger(9).String())
	}
}
