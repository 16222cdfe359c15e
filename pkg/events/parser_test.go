package events

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.out")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write artifact: %v", err)
	}
	return path
}

// TestParseCompletedRun tests completion detection with warnings present
func TestParseCompletedRun(t *testing.T) {
	path := writeArtifact(t, `
starting solver
WARNING: convergence is slow
iteration 200 done
RUN COMPLETED
`)

	report, err := Parser{}.Parse(path)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !report.RunCompleted {
		t.Error("expected run_completed")
	}
	if len(report.Warnings) != 1 || report.Warnings[0].Message != "convergence is slow" {
		t.Errorf("unexpected warnings: %+v", report.Warnings)
	}
	if report.HasProblems() {
		t.Error("warnings alone are not problems")
	}
}

// TestParseErrorsAndBugs tests that declared errors and bugs are collected
func TestParseErrorsAndBugs(t *testing.T) {
	path := writeArtifact(t, `
ERROR: matrix is singular
BUG: negative occupation number
COMMENT: see input line 12
`)

	report, err := Parser{}.Parse(path)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if report.RunCompleted {
		t.Error("run must not be completed")
	}
	if !report.HasProblems() {
		t.Error("expected problems")
	}
	if len(report.Errors) != 1 || len(report.Bugs) != 1 || len(report.Comments) != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
	if got := report.Problems(); len(got) != 2 {
		t.Errorf("expected 2 problem strings, got %v", got)
	}
}

// TestParseSummarySection tests that an EVENT_SUMMARY section is authoritative
func TestParseSummarySection(t *testing.T) {
	path := writeArtifact(t, `
ERROR: this raw line must be ignored
<EVENT_SUMMARY>
run_completed: true
warnings:
  - mixing scheme changed
</EVENT_SUMMARY>
`)

	report, err := Parser{}.Parse(path)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !report.RunCompleted {
		t.Error("summary section should set run_completed")
	}
	if len(report.Errors) != 0 {
		t.Errorf("line events outside the summary must be ignored, got %+v", report.Errors)
	}
	if len(report.Warnings) != 1 {
		t.Errorf("unexpected warnings: %+v", report.Warnings)
	}
}

// TestParseFailures tests the distinguished ParseError cases
func TestParseFailures(t *testing.T) {
	cases := []struct {
		name    string
		prepare func(t *testing.T) string
	}{
		{
			name: "missing artifact",
			prepare: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "missing.out")
			},
		},
		{
			name: "empty artifact",
			prepare: func(t *testing.T) string {
				return writeArtifact(t, "  \n\n")
			},
		},
		{
			name: "unterminated summary",
			prepare: func(t *testing.T) string {
				return writeArtifact(t, "<EVENT_SUMMARY>\nrun_completed: true\n")
			},
		},
		{
			name: "malformed summary yaml",
			prepare: func(t *testing.T) string {
				return writeArtifact(t, "<EVENT_SUMMARY>\n: : :\n</EVENT_SUMMARY>\n")
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parser{}.Parse(tc.prepare(t))
			if err == nil {
				t.Fatal("expected ParseError")
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
		})
	}
}

// TestParseDeterminism tests that parsing twice yields equal reports
func TestParseDeterminism(t *testing.T) {
	path := writeArtifact(t, "WARNING: a\nWARNING: b\nRUN COMPLETED\n")

	first, err := Parser{}.Parse(path)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	second, err := Parser{}.Parse(path)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if first.RunCompleted != second.RunCompleted || len(first.Warnings) != len(second.Warnings) {
		t.Error("repeated parses of the same artifact must agree")
	}
	for i := range first.Warnings {
		if first.Warnings[i] != second.Warnings[i] {
			t.Errorf("warning %d differs: %+v vs %+v", i, first.Warnings[i], second.Warnings[i])
		}
	}
}
