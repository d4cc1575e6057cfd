package main

import (
	"testing"
	"time"

	"github.com/cwbudde/numopt/internal/store"
)

func testInfos(now time.Time) []store.RunInfo {
	return []store.RunInfo{
		{ID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{ID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{ID: "run3", Timestamp: now.AddDate(0, 0, -1)},
		{ID: "run4", Timestamp: now.AddDate(0, 0, -30)},
	}
}

func ids(infos []store.RunInfo) map[string]bool {
	m := make(map[string]bool, len(infos))
	for _, info := range infos {
		m[info.ID] = true
	}
	return m
}

func TestSelectRunsForDeletion_ByAge(t *testing.T) {
	now := time.Now()
	toDelete := ids(selectRunsForDeletion(testInfos(now), 0, 7, now))

	if len(toDelete) != 2 || !toDelete["run1"] || !toDelete["run4"] {
		t.Errorf("Expected run1 and run4 to be selected, got %v", toDelete)
	}
}

func TestSelectRunsForDeletion_ByCount(t *testing.T) {
	now := time.Now()
	toDelete := ids(selectRunsForDeletion(testInfos(now), 2, 0, now))

	if len(toDelete) != 2 || !toDelete["run4"] || !toDelete["run1"] {
		t.Errorf("Expected the oldest runs run4 and run1, got %v", toDelete)
	}
}

func TestSelectRunsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	got := selectRunsForDeletion(testInfos(now), 3, 7, now)

	// Age selects run1 and run4; count selects run4 again, listed once.
	if len(got) != 2 {
		t.Errorf("Expected 2 runs without duplicates, got %v", got)
	}
	if toDelete := ids(got); !toDelete["run1"] || !toDelete["run4"] {
		t.Errorf("Expected run1 and run4, got %v", toDelete)
	}
}

func TestSelectRunsForDeletion_NothingToDo(t *testing.T) {
	now := time.Now()
	if got := selectRunsForDeletion(testInfos(now), 10, 0, now); len(got) != 0 {
		t.Errorf("keep-last above the count should delete nothing, got %v", got)
	}
	if got := selectRunsForDeletion(testInfos(now), 0, 60, now); len(got) != 0 {
		t.Errorf("Nothing is older than 60 days, got %v", got)
	}
	if got := selectRunsForDeletion(nil, 1, 1, now); len(got) != 0 {
		t.Errorf("Empty input should select nothing, got %v", got)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID(abc) = %s", got)
	}
	if got := shortID("0123456789abcdef"); got != "0123456789ab..." {
		t.Errorf("shortID truncated to %s", got)
	}
}
