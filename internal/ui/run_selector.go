package ui

import (
	"fmt"
	"time"

	"github.com/AlecAivazis/survey/v2"
)

// RunInfo represents a recorded pipeline run for UI display
type RunInfo struct {
	ID        string
	StartedAt time.Time
	Status    string
	Stages    int
	Duration  time.Duration
}

// FormatRun formats a recorded run for display
func FormatRun(run RunInfo) string {
	status := run.Status
	if len(status) > 20 {
		status = status[:17] + "..."
	}

	return fmt.Sprintf("%s - %s (%s) [%d stages, %s]",
		run.ID,
		status,
		formatRelativeTime(run.StartedAt),
		run.Stages,
		formatDuration(run.Duration),
	)
}

// SelectRun displays an interactive selector over recorded runs
func SelectRun(runs []RunInfo) (string, error) {
	if len(runs) == 0 {
		return "", fmt.Errorf("no runs recorded")
	}

	options := make([]string, len(runs))
	idMap := make(map[string]string)

	for i, run := range runs {
		option := FormatRun(run)
		options[i] = option
		idMap[option] = run.ID
	}

	var selected string
	prompt := &survey.Select{
		Message:  "Select run to inspect:",
		Options:  options,
		PageSize: 10,
	}

	if err := survey.AskOne(prompt, &selected); err != nil {
		return "", err
	}

	return idMap[selected], nil
}

// formatRelativeTime formats time as relative (e.g., "2 hours ago")
func formatRelativeTime(t time.Time) string {
	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case duration < 24*time.Hour:
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case duration < 7*24*time.Hour:
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	case duration < 30*24*time.Hour:
		weeks := int(duration.Hours() / (24 * 7))
		if weeks == 1 {
			return "1 week ago"
		}
		return fmt.Sprintf("%d weeks ago", weeks)
	default:
		months := int(duration.Hours() / (24 * 30))
		if months == 1 {
			return "1 month ago"
		}
		return fmt.Sprintf("%d months ago", months)
	}
}
