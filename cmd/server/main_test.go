package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckMigrationAction(t *testing.T) {
	tests := []struct {
		action  string
		version int
		wantErr bool
	}{
		{"up", -1, false},
		{"down", -1, false},
		{"version", -1, false},
		{"force", 3, false},
		{"force", 0, false},
		{"force", -1, true},
		{"drop", -1, true},
		{"", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			err := checkMigrationAction(tt.action, tt.version)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkMigrationAction(%q, %d) error = %v, wantErr %v", tt.action, tt.version, err, tt.wantErr)
			}
		})
	}
}

func TestRunMigrationNeedsDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "app:\n  environment: test\nlogging:\n  output: stderr\ndatabase:\n  enabled: false\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	err := runMigration(path, "down", -1)
	if err == nil || !strings.Contains(err.Error(), "database is disabled") {
		t.Errorf("runMigration() error = %v", err)
	}
}

func TestRunMigrationRejectsActionBeforeLoadingConfig(t *testing.T) {
	err := runMigration(filepath.Join(t.TempDir(), "absent.yaml"), "force", -1)
	if err == nil || !strings.Contains(err.Error(), "--force-version") {
		t.Errorf("runMigration() error = %v", err)
	}
}
