package testutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"retflow/internal/common"
)

// TestHelper provides common test utilities
type TestHelper struct {
	t *testing.T
}

// NewTestHelper creates a new test helper
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// TempDir creates a temporary directory and returns cleanup function
func (h *TestHelper) TempDir() (string, func()) {
	dir, err := os.MkdirTemp("", "retflow-test-*")
	if err != nil {
		h.t.Fatalf("Failed to create temp dir: %v", err)
	}

	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			h.t.Errorf("Failed to clean up temp dir: %v", err)
		}
	}

	return dir, cleanup
}

// WriteFile writes content to a file in the given directory
func (h *TestHelper) WriteFile(dir, filename, content string) string {
	path := filepath.Join(dir, filename)

	if err := os.MkdirAll(filepath.Dir(path), common.DirPermissionNormal); err != nil {
		h.t.Fatalf("Failed to create directories: %v", err)
	}

	if err := os.WriteFile(path, []byte(content), common.FilePermissionSecure); err != nil {
		h.t.Fatalf("Failed to write file %s: %v", path, err)
	}

	return path
}

// CaptureOutput captures stdout and stderr during function execution
func (h *TestHelper) CaptureOutput(f func()) (stdout, stderr string) {
	oldStdout := os.Stdout
	rOut, wOut, _ := os.Pipe()
	os.Stdout = wOut

	oldStderr := os.Stderr
	rErr, wErr, _ := os.Pipe()
	os.Stderr = wErr

	f()

	wOut.Close()
	os.Stdout = oldStdout
	outBytes, _ := io.ReadAll(rOut)
	stdout = string(outBytes)

	wErr.Close()
	os.Stderr = oldStderr
	errBytes, _ := io.ReadAll(rErr)
	stderr = string(errBytes)

	return stdout, stderr
}

// WaitFor waits for a condition to be true within a timeout
func (h *TestHelper) WaitFor(condition func() bool, timeout time.Duration, message string) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}

		<-ticker.C
		if time.Now().After(deadline) {
			h.t.Fatalf("Timeout waiting for: %s", message)
		}
	}
}

// MockEnv temporarily sets environment variables
func (h *TestHelper) MockEnv(key, value string) func() {
	oldValue, exists := os.LookupEnv(key)

	if err := os.Setenv(key, value); err != nil {
		h.t.Fatalf("Failed to set env var %s: %v", key, err)
	}

	return func() {
		if exists {
			os.Setenv(key, oldValue)
		} else {
			os.Unsetenv(key)
		}
	}
}
