package task

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jobflow/jobflow/pkg/hints"
)

// TestNewPolicyDefaults tests that an empty field map yields the defaults
func TestNewPolicyDefaults(t *testing.T) {
	p, err := NewPolicy(map[string]interface{}{})
	if err != nil {
		t.Fatalf("policy from empty map failed: %v", err)
	}

	if p.Autoparal != 0 || p.MaxCPUs != 0 {
		t.Errorf("unexpected defaults: %+v", p)
	}
	if p.Mode != hints.ModeDefault {
		t.Errorf("expected default mode, got %q", p.Mode)
	}
	if p.AdaptiveEnabled() {
		t.Error("default policy should not enable adaptive tuning")
	}
}

// TestNewPolicyFull tests decoding every recognized field
func TestNewPolicyFull(t *testing.T) {
	p, err := NewPolicy(map[string]interface{}{
		"autoparal":        1,
		"mode":             "aggressive",
		"max_ncpus":        64,
		"use_orchestrator": true,
		"constraints":      []map[string]interface{}{{"min_efficiency": 0.5}},
	})
	if err != nil {
		t.Fatalf("policy decode failed: %v", err)
	}

	if p.Autoparal != 1 || p.MaxCPUs != 64 || p.Mode != hints.ModeAggressive || !p.UseOrchestrator {
		t.Errorf("unexpected policy: %+v", p)
	}
	if len(p.Constraints) != 1 {
		t.Errorf("expected one constraint, got %d", len(p.Constraints))
	}
	if !p.AdaptiveEnabled() {
		t.Error("expected adaptive tuning enabled")
	}
}

// TestNewPolicyUnknownField tests the strict rejection of unrecognized keys
func TestNewPolicyUnknownField(t *testing.T) {
	_, err := NewPolicy(map[string]interface{}{"autoprallel": 1})

	var confErr *ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

// TestNewPolicyAutoparalWithoutBound tests that autoparal requires max_ncpus
func TestNewPolicyAutoparalWithoutBound(t *testing.T) {
	_, err := NewPolicy(map[string]interface{}{"autoparal": 1})

	var confErr *ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

// TestNewPolicyBadMode tests rejection of unknown selection modes
func TestNewPolicyBadMode(t *testing.T) {
	_, err := NewPolicy(map[string]interface{}{"mode": "turbo"})

	var confErr *ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

// TestPolicyFromFile tests loading a YAML policy document
func TestPolicyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yml")
	doc := "autoparal: 1\nmax_ncpus: 16\nmode: conservative\n"
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	p, err := PolicyFromFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if p.MaxCPUs != 16 || p.Mode != hints.ModeConservative {
		t.Errorf("unexpected policy: %+v", p)
	}
}

// TestPolicyFromFileMissing tests the error on a nonexistent path
func TestPolicyFromFileMissing(t *testing.T) {
	_, err := PolicyFromFile(filepath.Join(t.TempDir(), "absent.yml"))

	var confErr *ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}
