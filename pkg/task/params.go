package task

import (
	"fmt"
	"sort"
	"strings"
)

// Params is the mutable parameter set rendered into a task's input artifact.
// Adaptive tuning injects probe variables into it and restores a snapshot
// afterwards, so the set always returns to its pre-probe shape.
type Params struct {
	vars map[string]interface{}
}

// NewParams returns a parameter set seeded from vars (may be nil).
func NewParams(vars map[string]interface{}) *Params {
	p := &Params{vars: make(map[string]interface{}, len(vars))}
	for k, v := range vars {
		p.vars[k] = v
	}
	return p
}

// Set stores one variable.
func (p *Params) Set(key string, value interface{}) {
	p.vars[key] = value
}

// Get returns one variable and whether it is present.
func (p *Params) Get(key string) (interface{}, bool) {
	v, ok := p.vars[key]
	return v, ok
}

// Merge stores every variable from vars, overwriting existing keys.
func (p *Params) Merge(vars map[string]interface{}) {
	for k, v := range vars {
		p.vars[k] = v
	}
}

// Snapshot captures the current variables. The returned map is detached
// from further mutation.
func (p *Params) Snapshot() map[string]interface{} {
	snap := make(map[string]interface{}, len(p.vars))
	for k, v := range p.vars {
		snap[k] = v
	}
	return snap
}

// Restore replaces the variables with a previously captured snapshot.
func (p *Params) Restore(snap map[string]interface{}) {
	p.vars = make(map[string]interface{}, len(snap))
	for k, v := range snap {
		p.vars[k] = v
	}
}

// Keys returns the variable names in sorted order.
func (p *Params) Keys() []string {
	keys := make([]string, 0, len(p.vars))
	for k := range p.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of variables.
func (p *Params) Len() int {
	return len(p.vars)
}

// Renderer turns a parameter set into input artifact content. The content
// format belongs to the external job definition; the default renderer emits
// one "key value" line per variable in sorted order.
type Renderer func(*Params) (string, error)

// DefaultRenderer is the fallback input renderer.
func DefaultRenderer(p *Params) (string, error) {
	var b strings.Builder
	for _, k := range p.Keys() {
		v, _ := p.Get(k)
		fmt.Fprintf(&b, "%s %v\n", k, v)
	}
	return b.String(), nil
}
