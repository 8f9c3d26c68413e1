package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"retflow/internal/common"
	"retflow/internal/config"
)

// StageRecord is one stage's outcome inside a run record.
type StageRecord struct {
	Stage    string `json:"stage"`
	Status   string `json:"status"`
	Duration string `json:"duration"`
	Detail   string `json:"detail,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Record is one pipeline run, appended to the history file as a JSON
// line.
type Record struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
	Offsets    []int         `json:"offsets,omitempty"`
	Stages     []StageRecord `json:"stages,omitempty"`
}

// History is the append-only run log under the config directory.
type History struct {
	path string
}

// NewHistory opens the default history file.
func NewHistory() *History {
	return &History{path: filepath.Join(config.GetConfigPath(), "history.jsonl")}
}

// NewHistoryAt opens a history file at an explicit path.
func NewHistoryAt(path string) *History {
	return &History{path: path}
}

// Append writes one run record.
func (h *History) Append(rec Record) error {
	if err := os.MkdirAll(filepath.Dir(h.path), common.DirPermissionSecure); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, common.FilePermissionSecure)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode run record: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append run record: %w", err)
	}
	return nil
}

// Recent returns the most recent n records, newest first. Corrupt
// lines are skipped rather than failing the listing.
func (h *History) Recent(n int) ([]Record, error) {
	f, err := os.Open(h.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	// Newest first
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	if n > 0 && len(records) > n {
		records = records[:n]
	}
	return records, nil
}
