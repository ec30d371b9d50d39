// ABOUTME: Platform allocator capability contract
// ABOUTME: Coherent, DMA-addressable memory with bus addresses
package dma

// BusAddr is the bus address of a coherent memory region as seen by the
// transfer engine.
type BusAddr uint64

// Memory is a physically contiguous, DMA-addressable region.
type Memory struct {
	Data []byte
	Bus  BusAddr
}

// Allocator provides coherent memory suitable for hardware transfers.
// Implementations must make FreeCoherent reject regions they did not hand
// out, so double frees surface as errors instead of silent corruption.
type Allocator interface {
	AllocCoherent(size int) (*Memory, error)
	FreeCoherent(mem *Memory) error
}
