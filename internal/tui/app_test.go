package tui

import (
	"testing"
	"time"

	"github.com/opspilot/opspilot/internal/orchestrator"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly-ten", 11, "exactly-ten"},
		{"a longer string than allowed", 10, "a longe..."},
		{"abc", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestAppendLogKeepsNewestRows(t *testing.T) {
	a := New(nil, "proj-1", time.Second)

	for i := 0; i < maxLogRows+4; i++ {
		a.appendLog(orchestrator.Event{
			Type:      orchestrator.EventTickCompleted,
			Message:   "sweep",
			Timestamp: time.Now(),
		})
	}

	if len(a.logs) != maxLogRows {
		t.Errorf("log rows = %d, want capped at %d", len(a.logs), maxLogRows)
	}
}

func TestViewRendersWithoutData(t *testing.T) {
	a := New(nil, "proj-1", time.Second)
	out := a.View()
	if out == "" {
		t.Fatal("empty view")
	}
}
