// ABOUTME: Host-backed coherent allocator implementation
// ABOUTME: Hands out contiguous regions with synthetic bus addresses
package alloc

import (
	"fmt"
	"sync"

	"github.com/dmastream/dmastream-go/pkg/dma"
	"github.com/dmastream/dmastream-go/pkg/pcm"
)

// Coherent implements the platform allocator capability on host memory.
// Bus addresses are synthetic but stable, so unknown or repeated frees are
// detected instead of silently corrupting state.
type Coherent struct {
	mu     sync.Mutex
	next   dma.BusAddr
	live   map[dma.BusAddr]int
	allocs uint64
	frees  uint64

	// Limit caps the number of live regions; 0 means unlimited. Mainly
	// useful to exercise exhaustion handling.
	Limit int
}

// NewCoherent creates an allocator with a fresh address space.
func NewCoherent() *Coherent {
	return &Coherent{live: make(map[dma.BusAddr]int)}
}

// AllocCoherent returns a zeroed region of the requested size.
func (c *Coherent) AllocCoherent(size int) (*dma.Memory, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: allocation of %d bytes", pcm.ErrResourceExhausted, size)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Limit > 0 && len(c.live) >= c.Limit {
		return nil, fmt.Errorf("%w: %d regions live, limit %d", pcm.ErrResourceExhausted, len(c.live), c.Limit)
	}

	c.next += dma.BusAddr((size + 0xFFF) &^ 0xFFF) // page-aligned address space
	c.live[c.next] = size
	c.allocs++
	return &dma.Memory{Data: make([]byte, size), Bus: c.next}, nil
}

// FreeCoherent returns a region to the allocator. Freeing nil, an unknown
// region or the same region twice is an error.
func (c *Coherent) FreeCoherent(mem *dma.Memory) error {
	if mem == nil {
		return fmt.Errorf("free of nil region")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	size, ok := c.live[mem.Bus]
	if !ok {
		return fmt.Errorf("free of unknown region %#x", uint64(mem.Bus))
	}
	if size != len(mem.Data) {
		return fmt.Errorf("free of region %#x with size %d, allocated %d", uint64(mem.Bus), len(mem.Data), size)
	}

	delete(c.live, mem.Bus)
	c.frees++
	return nil
}

// Live returns the number of outstanding regions.
func (c *Coherent) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// Allocs returns the total allocation count.
func (c *Coherent) Allocs() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocs
}

// Frees returns the total free count.
func (c *Coherent) Frees() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frees
}
