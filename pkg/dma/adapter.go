// ABOUTME: Channel adapter wrapping the raw transfer capability
// ABOUTME: Tracks in-flight buffers and releases them on completion
package dma

import (
	"fmt"
	"log"
	"sync"

	"github.com/dmastream/dmastream-go/pkg/pcm"
)

// Counters exposes the adapter's transfer accounting.
type Counters struct {
	Submitted          uint64
	Completed          uint64
	UnknownCompletions uint64
}

// Adapter mediates between the buffer manager and the raw transfer channel.
//
// Once a buffer is submitted it is owned exclusively by the adapter: the
// stream context holds no reference to it, so the completion path frees it
// without ever taking the stream lock.
type Adapter struct {
	ch    Channel
	alloc Allocator

	mu       sync.Mutex
	inflight map[SubmissionID]*Buffer
	counters Counters
}

// NewAdapter wires a raw channel and an allocator together. The channel may
// be nil; submissions will then be rejected until one is present.
func NewAdapter(ch Channel, alloc Allocator) *Adapter {
	a := &Adapter{
		ch:       ch,
		alloc:    alloc,
		inflight: make(map[SubmissionID]*Buffer),
	}
	if ch != nil {
		ch.SetOnComplete(a.onComplete)
	}
	return a
}

// Submit prepares and submits an Active buffer, transitioning it to
// InFlight. It fails with ErrTransferRejected if the channel capability is
// absent, the buffer or its region is nil, or the length is zero or not
// word-aligned.
func (a *Adapter) Submit(buf *Buffer) (SubmissionID, error) {
	if a.ch == nil {
		return SubmissionID{}, fmt.Errorf("%w: no transfer channel", pcm.ErrTransferRejected)
	}
	if buf == nil || buf.Memory() == nil || buf.Memory().Data == nil {
		return SubmissionID{}, fmt.Errorf("%w: nil source buffer", pcm.ErrTransferRejected)
	}

	length := buf.Fill()
	if length == 0 || length%pcm.WordBytes != 0 {
		return SubmissionID{}, fmt.Errorf("%w: bad descriptor length %d", pcm.ErrTransferRejected, length)
	}

	if err := buf.Detach(); err != nil {
		return SubmissionID{}, fmt.Errorf("%w: %v", pcm.ErrTransferRejected, err)
	}

	// Holding the lock across Submit keeps a fast completion from racing
	// the registration below.
	a.mu.Lock()
	defer a.mu.Unlock()

	id, err := a.ch.Submit(buf.Bytes(), length, buf.Bus())
	if err != nil {
		return SubmissionID{}, fmt.Errorf("%w: %v", pcm.ErrTransferRejected, err)
	}

	a.inflight[id] = buf
	a.counters.Submitted++
	return id, nil
}

// onComplete releases the completed buffer's memory back to the allocator.
// A null or unrecognized token is logged and ignored, never a crash; that
// also makes duplicate completions harmless.
func (a *Adapter) onComplete(id SubmissionID) {
	a.mu.Lock()
	buf, ok := a.inflight[id]
	if !ok {
		a.counters.UnknownCompletions++
		a.mu.Unlock()
		log.Printf("dma: %v: token %s", pcm.ErrUnknownCompletion, id)
		return
	}
	delete(a.inflight, id)
	a.counters.Completed++
	a.mu.Unlock()

	if err := a.alloc.FreeCoherent(buf.Memory()); err != nil {
		log.Printf("dma: releasing completed buffer: %v", err)
	}
}

// Terminate aborts all outstanding submissions and releases their buffers.
// It is idempotent and safe to call with nothing in flight.
func (a *Adapter) Terminate() error {
	if a.ch != nil {
		if err := a.ch.Terminate(); err != nil {
			return err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for id, buf := range a.inflight {
		delete(a.inflight, id)
		if err := a.alloc.FreeCoherent(buf.Memory()); err != nil {
			log.Printf("dma: releasing terminated buffer: %v", err)
		}
	}
	return nil
}

// Pause suspends hardware consumption without discarding descriptors.
func (a *Adapter) Pause() error {
	if a.ch == nil {
		return fmt.Errorf("%w: no transfer channel", pcm.ErrInvalidState)
	}
	return a.ch.Pause()
}

// Resume continues hardware consumption.
func (a *Adapter) Resume() error {
	if a.ch == nil {
		return fmt.Errorf("%w: no transfer channel", pcm.ErrInvalidState)
	}
	return a.ch.Resume()
}

// InFlight returns the number of outstanding submissions.
func (a *Adapter) InFlight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inflight)
}

// Counters returns a snapshot of the transfer accounting.
func (a *Adapter) Counters() Counters {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counters
}
