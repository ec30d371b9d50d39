// ABOUTME: Buffer manager owning the active/standby transfer pair
// ABOUTME: Converts frames on copy and runs the swap-and-reallocate protocol
package stream

import (
	"fmt"
	"log"
	"sync"

	"github.com/dmastream/dmastream-go/pkg/dma"
	"github.com/dmastream/dmastream-go/pkg/pcm"
)

// manager owns the transfer buffer pair for one stream.
//
// The mutex is the stream lock shared with the controller: it serializes
// the swap sequence against buffer release during close. Methods with a
// Locked suffix expect the caller to hold it; write and swap take it
// themselves for exactly the swap window, matching the rule that the
// conversion copy runs outside the lock.
type manager struct {
	mu      *sync.Mutex
	alloc   dma.Allocator
	adapter *dma.Adapter

	active  *dma.Buffer
	standby *dma.Buffer
	wordCap int // transfer buffer capacity, bytes of packed words

	stalls uint64
}

func newManager(mu *sync.Mutex, alloc dma.Allocator, adapter *dma.Adapter) *manager {
	return &manager{mu: mu, alloc: alloc, adapter: adapter}
}

// allocatePairLocked allocates the active and standby buffers at wordCap
// bytes each, releasing the first again if the second allocation fails.
func (m *manager) allocatePairLocked(wordCap int) error {
	activeMem, err := m.alloc.AllocCoherent(wordCap)
	if err != nil {
		return fmt.Errorf("%w: active buffer: %v", pcm.ErrResourceExhausted, err)
	}

	standbyMem, err := m.alloc.AllocCoherent(wordCap)
	if err != nil {
		if ferr := m.alloc.FreeCoherent(activeMem); ferr != nil {
			log.Printf("stream: rolling back active buffer: %v", ferr)
		}
		return fmt.Errorf("%w: standby buffer: %v", pcm.ErrResourceExhausted, err)
	}

	active := dma.NewBuffer(activeMem, dma.Standby)
	if err := active.Activate(); err != nil {
		return err
	}
	m.active = active
	m.standby = dma.NewBuffer(standbyMem, dma.Standby)
	m.wordCap = wordCap
	return nil
}

// reallocatePairLocked replaces the pair with one of a new capacity. The
// new pair is allocated before the old one is released, so a failed
// allocation leaves the previous pair intact.
func (m *manager) reallocatePairLocked(wordCap int) error {
	if wordCap == m.wordCap && m.active != nil && m.standby != nil {
		return nil
	}

	old := *m
	m.active, m.standby = nil, nil
	if err := m.allocatePairLocked(wordCap); err != nil {
		m.active, m.standby = old.active, old.standby
		m.wordCap = old.wordCap
		return err
	}

	for _, buf := range []*dma.Buffer{old.active, old.standby} {
		if buf == nil {
			continue
		}
		if err := m.alloc.FreeCoherent(buf.Memory()); err != nil {
			log.Printf("stream: releasing replaced buffer: %v", err)
		}
	}
	return nil
}

// releasePairLocked frees whatever the stream still owns, exactly once.
func (m *manager) releasePairLocked() {
	for _, buf := range []*dma.Buffer{m.active, m.standby} {
		if buf == nil {
			continue
		}
		if err := m.alloc.FreeCoherent(buf.Memory()); err != nil {
			log.Printf("stream: releasing buffer: %v", err)
		}
	}
	m.active, m.standby = nil, nil
}

// resetLocked clears the active fill cursor.
func (m *manager) resetLocked() {
	if m.active != nil {
		m.active.Reset()
	}
}

// ready reports whether both buffers are present. Caller holds the lock.
func (m *manager) readyLocked() bool {
	return m.active != nil && m.standby != nil
}

// write converts whole frames from p into the active buffer, submitting
// and swapping every time the buffer fills. It returns the number of input
// bytes consumed; on a failed swap the stream degrades to a reportable
// stall and the next write fails fast instead of dereferencing a missing
// standby buffer.
func (m *manager) write(p []byte) (int, error) {
	if len(p)%pcm.FrameBytes != 0 {
		return 0, fmt.Errorf("%w: push of %d bytes", pcm.ErrPartialFrame, len(p))
	}

	total := 0
	for len(p) > 0 {
		m.mu.Lock()
		active := m.active
		m.mu.Unlock()
		if active == nil {
			return total, fmt.Errorf("%w: no active buffer", pcm.ErrInvalidState)
		}

		remFrames := active.Remaining() / pcm.WordBytes
		if remFrames > 0 {
			chunk := remFrames * pcm.FrameBytes
			if chunk > len(p) {
				chunk = len(p)
			}
			frames, err := pcm.ConvertFrames(active.Tail(), p[:chunk])
			if err != nil {
				return total, err
			}
			if err := active.Advance(frames * pcm.WordBytes); err != nil {
				return total, err
			}
			p = p[frames*pcm.FrameBytes:]
			total += frames * pcm.FrameBytes
		}

		if active.Remaining() < pcm.WordBytes {
			if err := m.swap(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// swap hands the full active buffer to the transfer engine, promotes the
// standby buffer and allocates a fresh one, all under the stream lock.
// Allocator exhaustion leaves the stream with an active buffer and no
// standby rather than dangling references.
func (m *manager) swap() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return fmt.Errorf("%w: no active buffer", pcm.ErrInvalidState)
	}
	if m.standby == nil {
		m.stalls++
		return fmt.Errorf("%w: no standby buffer", pcm.ErrResourceExhausted)
	}

	if _, err := m.adapter.Submit(m.active); err != nil {
		// The buffer has left the stream either way; release it instead
		// of leaking it and count the lost submission as a stall.
		m.stalls++
		log.Printf("stream: submitting full buffer: %v", err)
		if ferr := m.alloc.FreeCoherent(m.active.Memory()); ferr != nil {
			log.Printf("stream: releasing rejected buffer: %v", ferr)
		}
	}

	m.active = m.standby
	m.standby = nil
	if err := m.active.Activate(); err != nil {
		return err
	}

	mem, err := m.alloc.AllocCoherent(m.wordCap)
	if err != nil {
		return fmt.Errorf("%w: standby buffer: %v", pcm.ErrResourceExhausted, err)
	}
	m.standby = dma.NewBuffer(mem, dma.Standby)
	return nil
}

// stallsLocked returns the stall count. Caller holds the lock.
func (m *manager) stallsLocked() uint64 {
	return m.stalls
}
