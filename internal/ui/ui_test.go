package ui

import (
	"testing"
	"time"
)

func TestFormatRelativeTime(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected string
	}{
		{
			name:     "just now",
			time:     time.Now().Add(-30 * time.Second),
			expected: "just now",
		},
		{
			name:     "minutes ago",
			time:     time.Now().Add(-5 * time.Minute),
			expected: "5 minutes ago",
		},
		{
			name:     "hours ago",
			time:     time.Now().Add(-3 * time.Hour),
			expected: "3 hours ago",
		},
		{
			name:     "days ago",
			time:     time.Now().Add(-2 * 24 * time.Hour),
			expected: "2 days ago",
		},
		{
			name:     "weeks ago",
			time:     time.Now().Add(-2 * 7 * 24 * time.Hour),
			expected: "2 weeks ago",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatRelativeTime(tt.time)
			if result != tt.expected {
				t.Errorf("formatRelativeTime() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{
			name:     "milliseconds",
			duration: 500 * time.Millisecond,
			expected: "500ms",
		},
		{
			name:     "seconds",
			duration: 45 * time.Second,
			expected: "45.0s",
		},
		{
			name:     "minutes",
			duration: 3*time.Minute + 30*time.Second,
			expected: "3m30s",
		},
		{
			name:     "hours",
			duration: 2*time.Hour + 15*time.Minute,
			expected: "2h15m",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatDuration(tt.duration)
			if result != tt.expected {
				t.Errorf("formatDuration() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestFormatRun(t *testing.T) {
	run := RunInfo{
		ID:        "run-1a2b3c4d",
		StartedAt: time.Now().Add(-2 * time.Hour),
		Status:    "success",
		Stages:    4,
		Duration:  3*time.Minute + 12*time.Second,
	}

	result := FormatRun(run)

	if result != "run-1a2b3c4d - success (2 hours ago) [4 stages, 3m12s]" {
		t.Errorf("Unexpected run format: %s", result)
	}
}

func TestFormatRunTruncatesStatus(t *testing.T) {
	run := RunInfo{
		ID:        "run-ffffffff",
		StartedAt: time.Now().Add(-30 * time.Second),
		Status:    "failed: aggregate stage returned no rows at all",
		Stages:    2,
		Duration:  time.Second,
	}

	result := FormatRun(run)

	if len(result) > 80 {
		t.Errorf("Expected truncated status, got %q", result)
	}
}

func TestProgressBar(t *testing.T) {
	pb := NewProgressBar(10)

	if pb.total != 10 {
		t.Errorf("Expected total to be 10, got %d", pb.total)
	}

	pb.Update(5, "aggregate", true)

	if pb.current != 5 {
		t.Errorf("Expected current to be 5, got %d", pb.current)
	}

	if pb.successCount != 1 {
		t.Errorf("Expected success count to be 1, got %d", pb.successCount)
	}
}

func TestFormatRowChange(t *testing.T) {
	tests := []struct {
		name    string
		added   int64
		removed int64
	}{
		{
			name:    "added only",
			added:   10,
			removed: 0,
		},
		{
			name:    "removed only",
			added:   0,
			removed: 5,
		},
		{
			name:    "both",
			added:   10,
			removed: 5,
		},
		{
			name:    "none",
			added:   0,
			removed: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatRowChange(tt.added, tt.removed)
			// Just ensure it doesn't panic
			if result == "" {
				t.Error("FormatRowChange returned empty string")
			}
		})
	}
}
