package launch

import (
	"fmt"
	"testing"
)

func TestLogBufferEviction(t *testing.T) {
	lb := NewLogBuffer(3)

	for i := 1; i <= 5; i++ {
		lb.AddEntry("stdout", fmt.Sprintf("line %d", i), 100)
	}

	entries := lb.LatestEntries(10)
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries after eviction, got %d", len(entries))
	}
	if entries[0].Message != "line 3" {
		t.Errorf("Expected oldest surviving entry 'line 3', got %q", entries[0].Message)
	}
	if entries[2].Message != "line 5" {
		t.Errorf("Expected newest entry 'line 5', got %q", entries[2].Message)
	}
	if lb.LatestID() != 5 {
		t.Errorf("Expected latest ID 5, got %d", lb.LatestID())
	}
}

func TestLogBufferEntriesFromID(t *testing.T) {
	lb := NewLogBuffer(10)
	for i := 1; i <= 4; i++ {
		lb.AddEntry("stderr", fmt.Sprintf("line %d", i), 100)
	}

	entries := lb.EntriesFromID(2)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries after ID 2, got %d", len(entries))
	}
	if entries[0].ID != 3 {
		t.Errorf("Expected first entry ID 3, got %d", entries[0].ID)
	}
}

func TestLogBufferEmpty(t *testing.T) {
	lb := NewLogBuffer(5)

	if lb.LatestID() != 0 {
		t.Errorf("Expected latest ID 0 for empty buffer, got %d", lb.LatestID())
	}
	if entries := lb.LatestEntries(3); len(entries) != 0 {
		t.Errorf("Expected no entries, got %d", len(entries))
	}
	if entries := lb.LatestEntries(0); len(entries) != 0 {
		t.Errorf("Expected no entries for count 0, got %d", len(entries))
	}
}

func TestProcessStateString(t *testing.T) {
	cases := map[ProcessState]string{
		StateUnknown:     "Unknown",
		StateStarting:    "Starting",
		StateRunning:     "Running",
		StateUnhealthy:   "Unhealthy",
		StateStopping:    "Stopping",
		StateStopped:     "Stopped",
		StateFailed:      "Failed",
		ProcessState(99): "InvalidState",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State %d: expected %q, got %q", state, want, got)
		}
	}
}
