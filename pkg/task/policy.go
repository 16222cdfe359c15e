package task

import (
	"fmt"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/jobflow/jobflow/pkg/hints"
)

// Policy governs whether and how adaptive resource tuning runs before a
// real submission. Construction is strict: any unrecognized field is a
// ConfigurationError, and enabling autoparal without a CPU bound is one too.
type Policy struct {
	// Autoparal enables the adaptive probe run when non-zero.
	Autoparal int `mapstructure:"autoparal" yaml:"autoparal"`

	// Mode is the selection mode: default, aggressive or conservative.
	// Accepted and validated, but reserved: selection currently picks the
	// highest speedup under every mode.
	Mode string `mapstructure:"mode" yaml:"mode"`

	// MaxCPUs bounds the configurations the probe may report. Required when
	// Autoparal is non-zero.
	MaxCPUs int `mapstructure:"max_ncpus" yaml:"max_ncpus"`

	// UseOrchestrator marks submissions driven by an external workflow
	// orchestrator rather than by this module's polling loop.
	UseOrchestrator bool `mapstructure:"use_orchestrator" yaml:"use_orchestrator"`

	// Constraints are structurally opaque selection filters. Carried on the
	// policy but reserved: the selection algorithm does not apply them.
	Constraints []map[string]interface{} `mapstructure:"constraints" yaml:"constraints"`
}

// DefaultPolicy returns a policy with adaptive tuning disabled and every
// field at its default.
func DefaultPolicy() Policy {
	return Policy{
		Autoparal:   0,
		Mode:        hints.ModeDefault,
		MaxCPUs:     0,
		Constraints: []map[string]interface{}{},
	}
}

// NewPolicy builds a policy from a loose field map, filling defaults and
// rejecting unknown keys eagerly.
func NewPolicy(fields map[string]interface{}) (Policy, error) {
	p := DefaultPolicy()

	var meta mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &p,
		Metadata:    &meta,
		ErrorUnused: true,
	})
	if err != nil {
		return Policy{}, &ConfigurationError{Reason: "decoder setup", Err: err}
	}
	if err := dec.Decode(fields); err != nil {
		return Policy{}, &ConfigurationError{Reason: "unrecognized or malformed policy fields", Err: err}
	}

	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// PolicyFromFile reads a YAML policy document.
func PolicyFromFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, &ConfigurationError{Reason: "cannot read policy file", Err: err}
	}

	fields := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &fields); err != nil {
		return Policy{}, &ConfigurationError{Reason: "malformed policy file", Err: err}
	}
	return NewPolicy(fields)
}

// Validate enforces the policy invariants.
func (p Policy) Validate() error {
	if !hints.ValidMode(p.Mode) {
		return &ConfigurationError{Reason: fmt.Sprintf("unknown selection mode %q", p.Mode)}
	}
	if p.Autoparal != 0 && p.MaxCPUs <= 0 {
		return &ConfigurationError{Reason: "autoparal requires max_ncpus"}
	}
	return nil
}

// AdaptiveEnabled reports whether the autotune loop should run.
func (p Policy) AdaptiveEnabled() bool {
	return p.Autoparal != 0 && p.MaxCPUs > 0
}
