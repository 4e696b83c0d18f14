package domain

import (
	"testing"
	"time"
)

func TestCallWindowRejectsSixthWithinWindow(t *testing.T) {
	t.Parallel()
	var w CallWindow
	start := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		n, recorded := w.CheckAndRecord(start.Add(time.Duration(i)*2*time.Minute), 5, time.Hour)
		if !recorded {
			t.Fatalf("call %d within limit must be recorded (count %d)", i+1, n)
		}
	}

	n, recorded := w.CheckAndRecord(start.Add(10*time.Minute), 5, time.Hour)
	if recorded {
		t.Fatal("sixth call within the window must be rejected")
	}
	if n < 5 {
		t.Fatalf("count = %d, want >= 5", n)
	}
}

func TestCallWindowRecoversAfterWindow(t *testing.T) {
	t.Parallel()
	var w CallWindow
	start := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		w.CheckAndRecord(start, 5, time.Hour)
	}
	if _, recorded := w.CheckAndRecord(start.Add(30*time.Minute), 5, time.Hour); recorded {
		t.Fatal("window still full a half hour in")
	}

	// Past the window the old stamps evict and calls succeed again.
	n, recorded := w.CheckAndRecord(start.Add(61*time.Minute), 5, time.Hour)
	if !recorded {
		t.Fatal("call after the window elapsed must be recorded")
	}
	if n != 1 {
		t.Fatalf("count after eviction = %d, want 1", n)
	}
}
