// ABOUTME: Integration tests for medtrack CLI.
// ABOUTME: Builds the binary and runs a full medication and reading workflow.
package test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestFullWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}

	// Build the binary
	projectRoot, _ := filepath.Abs("..")
	binary := filepath.Join(t.TempDir(), "medtrack")

	buildCmd := exec.Command("go", "build", "-o", binary, "./cmd/medtrack")
	buildCmd.Dir = projectRoot
	if output, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build: %v\n%s", err, output)
	}

	// Use temp data directory
	tmpDir := t.TempDir()
	env := append(os.Environ(),
		"MEDTRACK_DATA_DIR="+tmpDir,
		"MEDTRACK_RECIPIENT_ID=mom",
		"MEDTRACK_TIMEZONE=UTC",
		"MEDTRACK_LOG_LEVEL=error",
		"MEDTRACK_NARRATIVE_PROVIDER=rules",
		"NO_COLOR=1",
	)

	run := func(args ...string) (string, error) {
		fullArgs := append([]string{"--config", filepath.Join(tmpDir, "config.json")}, args...)
		cmd := exec.Command(binary, fullArgs...)
		cmd.Env = env
		output, err := cmd.CombinedOutput()
		return string(output), err
	}

	// Test adding a medication
	output, err := run("med", "add", "Metformin", "500", "--unit", "mg", "--times", "08:00,20:00", "--stock", "30")
	if err != nil {
		t.Fatalf("Failed to add medication: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Added Metformin") {
		t.Errorf("Expected 'Added Metformin' in output, got: %s", output)
	}
	if !strings.Contains(output, "(14 doses scheduled)") {
		t.Errorf("Expected 14 seeded doses, got: %s", output)
	}

	// Test listing
	output, err = run("med", "list")
	if err != nil {
		t.Fatalf("Failed to list: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Metformin") {
		t.Errorf("Expected 'Metformin' in list output, got: %s", output)
	}

	// Test today's doses and taking one
	output, err = run("dose", "today")
	if err != nil {
		t.Fatalf("Failed to list today's doses: %v\n%s", err, output)
	}
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 doses today, got: %s", output)
	}
	doseID := strings.Fields(lines[0])[0]

	output, err = run("dose", "take", doseID)
	if err != nil {
		t.Fatalf("Failed to take dose: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Took Metformin") {
		t.Errorf("Expected 'Took Metformin' in output, got: %s", output)
	}

	output, err = run("dose", "take", doseID)
	if err != nil {
		t.Fatalf("Taking a dose twice should not fail: %v\n%s", err, output)
	}
	if !strings.Contains(output, "already") {
		t.Errorf("Expected an already-recorded notice, got: %s", output)
	}

	// Test readings
	output, err = run("reading", "add", "blood_pressure", "150", "95")
	if err != nil {
		t.Fatalf("Failed to add reading: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Added blood_pressure") {
		t.Errorf("Expected 'Added blood_pressure' in output, got: %s", output)
	}
	if !strings.Contains(output, "High blood pressure") {
		t.Errorf("Expected a high classification, got: %s", output)
	}

	if output, err = run("reading", "add", "mood", "7"); err == nil {
		t.Errorf("Expected unknown reading type to fail, got: %s", output)
	}

	// Test the report
	output, err = run("report", "--format", "markdown")
	if err != nil {
		t.Fatalf("Failed to generate report: %v\n%s", err, output)
	}
	for _, want := range []string{"# Health Report", "150/95"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in report, got: %s", want, output)
		}
	}

	// Test the backend migration
	output, err = run("migrate", "--to", "badger")
	if err != nil {
		t.Fatalf("Failed to migrate: %v\n%s", err, output)
	}
	if !strings.Contains(output, "1 medications, 14 dose logs, 1 readings") {
		t.Errorf("Unexpected migration summary: %s", output)
	}
}
