package queue

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Resources describes the compute capacity of the current host, used to
// derive safe defaults for the CPU bound of adaptive tuning.
type Resources struct {
	LogicalCPUs  int
	PhysicalCPUs int
	CPUModel     string
	MemoryBytes  uint64
}

// MemPerCPUGB returns the memory available per logical CPU in gigabytes.
func (r Resources) MemPerCPUGB() float64 {
	if r.LogicalCPUs == 0 {
		return 0
	}
	return float64(r.MemoryBytes) / float64(r.LogicalCPUs) / (1 << 30)
}

// DetectResources probes the host CPU and memory.
func DetectResources() (Resources, error) {
	res := Resources{}

	logical, err := cpu.Counts(true)
	if err != nil {
		return res, fmt.Errorf("queue: detect logical cpus: %w", err)
	}
	res.LogicalCPUs = logical

	if physical, err := cpu.Counts(false); err == nil && physical > 0 {
		res.PhysicalCPUs = physical
	} else {
		res.PhysicalCPUs = logical
	}

	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		res.CPUModel = infos[0].ModelName
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return res, fmt.Errorf("queue: detect memory: %w", err)
	}
	res.MemoryBytes = vm.Total

	return res, nil
}
