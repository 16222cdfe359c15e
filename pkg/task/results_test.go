package task

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// TestResultsAssertValid tests exception accumulation for a failed run
func TestResultsAssertValid(t *testing.T) {
	r := NewResults("w0", 2, StatusError, map[string]interface{}{})

	excs := r.AssertValid()
	if len(excs) != 1 {
		t.Fatalf("expected one exception, got %d", len(excs))
	}

	// A repeated check must not duplicate the record.
	if excs = r.AssertValid(); len(excs) != 1 {
		t.Errorf("expected deduplicated exceptions, got %d", len(excs))
	}
}

// TestResultsAssertValidClean tests that a successful run records nothing
func TestResultsAssertValidClean(t *testing.T) {
	r := NewResults("w0", 0, StatusOk, map[string]interface{}{})

	if excs := r.AssertValid(); len(excs) != 0 {
		t.Errorf("expected no exceptions, got %v", excs)
	}
}

// TestPushExceptions tests manual exception recording with deduplication
func TestPushExceptions(t *testing.T) {
	r := NewResults("w0", 0, StatusOk, nil)

	r.PushExceptions("disk full", "disk full", "license expired")
	if len(r.Exceptions) != 2 {
		t.Errorf("expected two distinct exceptions, got %v", r.Exceptions)
	}
}

// TestResultsDumpLoad tests the JSON round trip with reserved markers
func TestResultsDumpLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")

	r := NewResults("w0", 0, StatusOk, map[string]interface{}{
		"run_completed": true,
		"num_warnings":  2,
	})
	r.PushExceptions("transient read error")

	if err := r.Dump(path); err != nil {
		t.Fatalf("dump failed: %v", err)
	}

	// The serialized record carries the type markers.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	record := map[string]interface{}{}
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if record["@class"] != "TaskResults" || record["@module"] != "jobflow/task" {
		t.Errorf("missing reserved markers: %v", record)
	}

	loaded, err := LoadResults(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Name != "w0" || loaded.Status != StatusOk || loaded.ExitCode != 0 {
		t.Errorf("unexpected loaded record: %+v", loaded)
	}
	if len(loaded.Exceptions) != 1 || loaded.Exceptions[0] != "transient read error" {
		t.Errorf("exceptions lost in round trip: %v", loaded.Exceptions)
	}
	if completed, ok := loaded.Events["run_completed"].(bool); !ok || !completed {
		t.Errorf("event summary lost in round trip: %v", loaded.Events)
	}
}

// TestLoadResultsMissingFile tests the error on a nonexistent record
func TestLoadResultsMissingFile(t *testing.T) {
	if _, err := LoadResults(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
