// ABOUTME: Transfer buffer with Standby/Active/InFlight lifecycle
// ABOUTME: Enforces the single-writer ownership handoff on swap
package dma

import (
	"fmt"

	"github.com/dmastream/dmastream-go/pkg/pcm"
)

// BufferState tags the lifecycle stage of a transfer buffer.
type BufferState int

const (
	// Standby: pre-allocated, empty, ready to become Active.
	Standby BufferState = iota
	// Active: currently receiving converted frames.
	Active
	// InFlight: submitted to the transfer engine; never written again.
	InFlight
)

// String returns the state name.
func (s BufferState) String() string {
	switch s {
	case Standby:
		return "standby"
	case Active:
		return "active"
	case InFlight:
		return "in-flight"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Buffer is one transfer buffer: a coherent region, its bus address and a
// fill cursor counting bytes of packed transfer words.
type Buffer struct {
	mem   *Memory
	fill  int
	state BufferState
}

// NewBuffer wraps a coherent region in the given initial state.
func NewBuffer(mem *Memory, state BufferState) *Buffer {
	return &Buffer{mem: mem, state: state}
}

// Cap returns the capacity in bytes.
func (b *Buffer) Cap() int { return len(b.mem.Data) }

// Fill returns the current fill level in bytes.
func (b *Buffer) Fill() int { return b.fill }

// Remaining returns the unfilled byte count.
func (b *Buffer) Remaining() int { return len(b.mem.Data) - b.fill }

// State returns the lifecycle state.
func (b *Buffer) State() BufferState { return b.state }

// Memory returns the underlying coherent region.
func (b *Buffer) Memory() *Memory { return b.mem }

// Bus returns the bus address of the region.
func (b *Buffer) Bus() BusAddr { return b.mem.Bus }

// Bytes returns the filled portion of the region.
func (b *Buffer) Bytes() []byte { return b.mem.Data[:b.fill] }

// Tail returns the writable remainder of the region. Callers must only
// use it on an Active buffer and follow up with Advance.
func (b *Buffer) Tail() []byte { return b.mem.Data[b.fill:] }

// Advance moves the fill cursor forward by n bytes of packed words.
func (b *Buffer) Advance(n int) error {
	if b.state != Active {
		return fmt.Errorf("%w: write to %s buffer", pcm.ErrInvalidState, b.state)
	}
	if n < 0 || b.fill+n > len(b.mem.Data) {
		return fmt.Errorf("%w: advance %d past capacity %d (fill %d)", pcm.ErrInvalidState, n, len(b.mem.Data), b.fill)
	}
	b.fill += n
	return nil
}

// Activate promotes a Standby buffer to Active with an empty fill cursor.
func (b *Buffer) Activate() error {
	if b.state != Standby {
		return fmt.Errorf("%w: activate %s buffer", pcm.ErrInvalidState, b.state)
	}
	b.state = Active
	b.fill = 0
	return nil
}

// Detach transfers ownership to the transfer engine. Only an Active buffer
// may go InFlight, and an InFlight buffer is never written again.
func (b *Buffer) Detach() error {
	if b.state != Active {
		return fmt.Errorf("%w: detach %s buffer", pcm.ErrInvalidState, b.state)
	}
	b.state = InFlight
	return nil
}

// Reset clears the fill cursor of an Active buffer.
func (b *Buffer) Reset() {
	if b.state == Active {
		b.fill = 0
	}
}
