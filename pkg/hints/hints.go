// Package hints models the parallel-execution configurations reported by a
// probe run, and selects the optimal one before the real submission.
package hints

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Selection modes accepted by SelectOptimal. The mode is validated where a
// policy is constructed but does not currently branch the selection: every
// mode picks the highest-speedup configuration. Reserved for future use.
const (
	ModeDefault      = "default"
	ModeAggressive   = "aggressive"
	ModeConservative = "conservative"
)

// ValidMode reports whether mode is one of the recognized selection modes.
func ValidMode(mode string) bool {
	switch mode {
	case ModeDefault, ModeAggressive, ModeConservative:
		return true
	}
	return false
}

// ErrNoHints is returned when selection runs against an empty hint set.
// The caller falls back to the job's untuned configuration.
var ErrNoHints = errors.New("hints: probe reported no viable configurations")

// Conf is one candidate parallel configuration reported by the probe.
// Immutable once parsed; selection hands out copies.
type Conf struct {
	TotCPUs    int                    `yaml:"tot_ncpus"`
	MPIProcs   int                    `yaml:"mpi_ncpus"`
	OmpThreads int                    `yaml:"omp_ncpus"`
	MemPerCPU  float64                `yaml:"mem_per_cpu"`
	Efficiency float64                `yaml:"efficiency"`
	Vars       map[string]interface{} `yaml:"vars"`
}

// Speedup is the expected speedup of this configuration: efficiency scaled
// by the total CPU count.
func (c Conf) Speedup() float64 {
	return c.Efficiency * float64(c.TotCPUs)
}

// Copy returns a deep copy of the configuration.
func (c Conf) Copy() Conf {
	dup := c
	dup.Vars = make(map[string]interface{}, len(c.Vars))
	for k, v := range c.Vars {
		dup.Vars[k] = v
	}
	return dup
}

func (c Conf) String() string {
	return fmt.Sprintf("tot_ncpus=%d mpi_ncpus=%d omp_ncpus=%d efficiency=%.2f speedup=%.2f",
		c.TotCPUs, c.MPIProcs, c.OmpThreads, c.Efficiency, c.Speedup())
}

// Header is the opaque metadata declared at the top of a RUN_HINTS section.
type Header struct {
	Version   int `yaml:"version"`
	Autoparal int `yaml:"autoparal"`
	MaxCPUs   int `yaml:"max_ncpus"`
}

// Set is the ordered collection of configurations from one probe run.
// A Set may be empty; consumers must handle the empty case.
type Set struct {
	Header Header
	confs  []Conf
}

// NewSet builds a Set from already-parsed configurations.
func NewSet(header Header, confs []Conf) *Set {
	return &Set{Header: header, confs: confs}
}

// Len returns the number of configurations.
func (s *Set) Len() int {
	return len(s.confs)
}

// At returns the configuration at index i.
func (s *Set) At(i int) Conf {
	return s.confs[i]
}

// Confs returns the configurations in order.
func (s *Set) Confs() []Conf {
	return s.confs
}

// Copy returns a new Set with copied configurations; sorting the copy never
// disturbs the original.
func (s *Set) Copy() *Set {
	confs := make([]Conf, len(s.confs))
	for i, c := range s.confs {
		confs[i] = c.Copy()
	}
	return &Set{Header: s.Header, confs: confs}
}

// SortByEfficiency reorders in place so the lowest efficiency comes first.
func (s *Set) SortByEfficiency(reverse bool) {
	sort.SliceStable(s.confs, func(i, j int) bool {
		if reverse {
			i, j = j, i
		}
		return s.confs[i].Efficiency < s.confs[j].Efficiency
	})
}

// SortBySpeedup reorders in place so the lowest speedup comes first.
func (s *Set) SortBySpeedup(reverse bool) {
	sort.SliceStable(s.confs, func(i, j int) bool {
		if reverse {
			i, j = j, i
		}
		return s.confs[i].Speedup() < s.confs[j].Speedup()
	})
}

// SelectOptimal returns a copy of the best configuration for mode.
//
// The set itself is never mutated: selection sorts a private copy by
// ascending speedup and takes the last element. An empty set yields
// ErrNoHints rather than a fabricated configuration.
func (s *Set) SelectOptimal(mode string) (Conf, error) {
	if s.Len() == 0 {
		return Conf{}, ErrNoHints
	}

	// Reserved: mode and policy constraints do not branch the selection yet.
	_ = mode

	work := s.Copy()
	work.SortBySpeedup(false)

	return work.At(work.Len() - 1).Copy(), nil
}

func (s *Set) String() string {
	lines := make([]string, 0, len(s.confs))
	for _, c := range s.confs {
		lines = append(lines, c.String())
	}
	return strings.Join(lines, "\n")
}
