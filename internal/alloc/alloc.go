// Package alloc accounts for the backing memory of images and buffers.
//
// The HAL owns the actual device memory; an Allocator tracks what each
// resource holds against a budget, per memory location, and guarantees
// every allocation is released exactly once.
package alloc

import (
	"errors"
	"fmt"
	"sync"
)

// Allocator errors.
var (
	// ErrBudgetExceeded is returned when an allocation would exceed the budget.
	ErrBudgetExceeded = errors.New("alloc: memory budget exceeded")

	// ErrClosed is returned when operating on a closed allocator.
	ErrClosed = errors.New("alloc: allocator closed")

	// ErrDoubleFree is returned when an allocation is freed twice.
	ErrDoubleFree = errors.New("alloc: allocation already freed")
)

// Default limits.
const (
	// DefaultBudgetMB is the default memory budget (1 GB).
	DefaultBudgetMB = 1024

	// MinBudgetMB is the minimum allowed budget (16 MB).
	MinBudgetMB = 16

	// Alignment is the granularity allocations are rounded up to.
	Alignment = 256
)

// Location is where an allocation lives.
type Location uint8

const (
	// DeviceLocal is GPU memory not visible to the host.
	DeviceLocal Location = iota
	// HostVisible is CPU-to-GPU upload memory.
	HostVisible
	numLocations
)

func (l Location) String() string {
	switch l {
	case DeviceLocal:
		return "device-local"
	case HostVisible:
		return "host-visible"
	default:
		return fmt.Sprintf("Location(%d)", uint8(l))
	}
}

// Stats contains memory usage statistics.
type Stats struct {
	// BudgetBytes is the total budget.
	BudgetBytes uint64
	// UsedBytes is the memory currently allocated.
	UsedBytes uint64
	// DeviceLocalBytes and HostVisibleBytes split UsedBytes by location.
	DeviceLocalBytes uint64
	HostVisibleBytes uint64
	// Allocations is the number of live allocations.
	Allocations int
	// Utilization is UsedBytes / BudgetBytes.
	Utilization float64
}

// String returns a human-readable string of memory stats.
func (s Stats) String() string {
	return fmt.Sprintf("Memory[%.1f%% used, %d/%d MB, %d allocations]",
		s.Utilization*100,
		s.UsedBytes/(1024*1024),
		s.BudgetBytes/(1024*1024),
		s.Allocations)
}

// Allocation is the memory held by one resource.
type Allocation struct {
	Name     string
	Size     uint64
	Location Location

	freed bool
}

// Config holds configuration for creating an Allocator.
type Config struct {
	// BudgetBytes is the memory budget. Defaults to DefaultBudgetMB if zero,
	// and is raised to MinBudgetMB if smaller.
	BudgetBytes uint64
}

// Allocator tracks allocations against a budget. It is safe for
// concurrent use.
type Allocator struct {
	mu     sync.Mutex
	budget uint64
	used   [numLocations]uint64
	live   map[*Allocation]struct{}
	closed bool
}

// New creates an allocator.
func New(cfg Config) *Allocator {
	budget := cfg.BudgetBytes
	if budget == 0 {
		budget = DefaultBudgetMB * 1024 * 1024
	}
	if budget < MinBudgetMB*1024*1024 {
		budget = MinBudgetMB * 1024 * 1024
	}
	return &Allocator{
		budget: budget,
		live:   make(map[*Allocation]struct{}),
	}
}

// Allocate reserves size bytes, rounded up to Alignment.
func (a *Allocator) Allocate(name string, size uint64, loc Location) (*Allocation, error) {
	if loc >= numLocations {
		return nil, fmt.Errorf("alloc: unknown location %s", loc)
	}
	size = align(size)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrClosed
	}
	if used := a.usedLocked(); used+size > a.budget {
		return nil, fmt.Errorf("%w: %s needs %d bytes, %d of %d in use",
			ErrBudgetExceeded, name, size, used, a.budget)
	}

	al := &Allocation{Name: name, Size: size, Location: loc}
	a.live[al] = struct{}{}
	a.used[loc] += size
	return al, nil
}

// Free releases an allocation. Freeing nil is a no-op.
func (a *Allocator) Free(al *Allocation) error {
	if al == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if al.freed {
		return fmt.Errorf("%w: %s", ErrDoubleFree, al.Name)
	}
	if _, ok := a.live[al]; !ok {
		return fmt.Errorf("alloc: %s was not allocated here", al.Name)
	}
	delete(a.live, al)
	a.used[al.Location] -= al.Size
	al.freed = true
	return nil
}

// Stats returns current usage statistics.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	used := a.usedLocked()
	var utilization float64
	if a.budget > 0 {
		utilization = float64(used) / float64(a.budget)
	}
	return Stats{
		BudgetBytes:      a.budget,
		UsedBytes:        used,
		DeviceLocalBytes: a.used[DeviceLocal],
		HostVisibleBytes: a.used[HostVisible],
		Allocations:      len(a.live),
		Utilization:      utilization,
	}
}

// Close marks the allocator closed and reports allocations that were
// never freed. Their accounting is dropped.
func (a *Allocator) Close() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	leaked := len(a.live)
	for al := range a.live {
		al.freed = true
	}
	a.live = nil
	a.used = [numLocations]uint64{}
	a.closed = true
	return leaked
}

func (a *Allocator) usedLocked() uint64 {
	var total uint64
	for _, u := range a.used {
		total += u
	}
	return total
}

func align(size uint64) uint64 {
	if size == 0 {
		return Alignment
	}
	return (size + Alignment - 1) &^ (Alignment - 1)
}

// TextureSize estimates the memory of a 2D texture without mipmaps.
func TextureSize(width, height, bytesPerPixel uint32) uint64 {
	return uint64(width) * uint64(height) * uint64(bytesPerPixel)
}
