package memory

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"

	"buildd/internal/faults"
)

// Info reports total and currently free physical memory in bytes.
type Info interface {
	TotalPhysical(ctx context.Context) (uint64, error)
	FreePhysical(ctx context.Context) (uint64, error)
}

// Host reads physical memory from the operating system.
type Host struct{}

// NewHost returns the operating-system backed Info.
func NewHost() Host { return Host{} }

// TotalPhysical returns installed physical memory.
func (Host) TotalPhysical(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, faults.Wrap(faults.ErrUnavailable, "memory", "total", "read virtual memory stats", err)
	}
	return vm.Total, nil
}

// FreePhysical returns memory available to new allocations without swapping.
// On Linux this is MemAvailable rather than MemFree, so reclaimable page cache
// counts as free.
func (Host) FreePhysical(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, faults.Wrap(faults.ErrUnavailable, "memory", "free", "read virtual memory stats", err)
	}
	return vm.Available, nil
}

// Snapshot is a fixed reading, used by tests and by tooling that wants to
// evaluate thresholds against hypothetical hosts.
type Snapshot struct {
	Total uint64
	Free  uint64
}

func (s Snapshot) TotalPhysical(context.Context) (uint64, error) { return s.Total, nil }

func (s Snapshot) FreePhysical(context.Context) (uint64, error) { return s.Free, nil }

// Reading pairs both values taken in one call.
type Reading struct {
	Total uint64
	Free  uint64
}

// FreeRatio returns Free/Total, or 0 when Total is unknown.
func (r Reading) FreeRatio() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Free) / float64(r.Total)
}

// Read takes both values from info.
func Read(ctx context.Context, info Info) (Reading, error) {
	if info == nil {
		return Reading{}, fmt.Errorf("memory: nil info")
	}
	total, err := info.TotalPhysical(ctx)
	if err != nil {
		return Reading{}, err
	}
	free, err := info.FreePhysical(ctx)
	if err != nil {
		return Reading{}, err
	}
	return Reading{Total: total, Free: free}, nil
}
