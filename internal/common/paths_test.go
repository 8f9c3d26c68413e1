package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "simple absolute path", path: "/tmp/data.db", wantErr: false},
		{name: "relative path resolves", path: "data.db", wantErr: false},
		{name: "collapsible traversal allowed", path: "/tmp/../etc/passwd", wantErr: false},
		{name: "unresolved traversal rejected", path: "../../secret", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CleanPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("CleanPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	base := t.TempDir()

	inside := filepath.Join(base, "exports", "file.parquet")
	if _, err := ValidatePath(inside, base); err != nil {
		t.Errorf("expected path inside base to validate: %v", err)
	}

	if _, err := ValidatePath("/etc/passwd", base); err == nil {
		t.Error("expected path outside base to be rejected")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}

	got, err := ExpandHome("~/exports/retention.db")
	if err != nil {
		t.Fatalf("ExpandHome failed: %v", err)
	}
	if !strings.HasPrefix(got, home) {
		t.Errorf("expected expansion under %s, got %s", home, got)
	}

	plain, err := ExpandHome("/var/data/retention.db")
	if err != nil {
		t.Fatalf("ExpandHome failed: %v", err)
	}
	if plain != "/var/data/retention.db" {
		t.Errorf("absolute path should be unchanged, got %s", plain)
	}
}

func TestEnsureDir(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "a", "b", "file.db")

	if err := EnsureDir(target, DirPermissionNormal); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}

	info, err := os.Stat(filepath.Dir(target))
	if err != nil || !info.IsDir() {
		t.Errorf("expected directory to exist, err=%v", err)
	}
}
