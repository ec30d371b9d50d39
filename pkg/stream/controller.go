// ABOUTME: Playback stream controller and lifecycle state machine
// ABOUTME: Coordinates the buffer manager, channel adapter and host ring
package stream

import (
	"fmt"
	"sync"

	"github.com/dmastream/dmastream-go/pkg/dma"
	"github.com/dmastream/dmastream-go/pkg/pcm"
)

// State is the lifecycle state of a playback stream.
type State int

const (
	Closed State = iota
	Opened
	Configured
	Prepared
	Running
	Paused
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opened:
		return "opened"
	case Configured:
		return "configured"
	case Prepared:
		return "prepared"
	case Running:
		return "running"
	case Paused:
		return "paused"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options configures a Controller.
type Options struct {
	// Allocator provides coherent transfer memory. Required.
	Allocator dma.Allocator

	// Channel is the raw transfer capability. Without one every
	// submission is rejected.
	Channel dma.Channel

	// OnPeriodElapsed is called once per period boundary crossed by Ack.
	OnPeriodElapsed func()

	// OnError is called with mid-stream push failures, in addition to the
	// error returned from Ack.
	OnError func(error)
}

// Stats is a snapshot of one stream's accounting.
type Stats struct {
	State              State
	PushedBytes        uint64
	PushedFrames       uint64
	Submitted          uint64
	Completed          uint64
	UnknownCompletions uint64
	InFlight           int
	PeriodsElapsed     uint64
	Stalls             uint64
}

// Controller implements the playback lifecycle for a single stream. All
// per-stream state lives here; nothing is shared process-wide, so multiple
// controllers can coexist.
//
// Lifecycle calls (Open, Configure, Prepare, triggers, Ack, Close) are
// expected from one framework context at a time, like the callbacks of the
// upper audio framework. Completions arrive concurrently on the channel's
// context and never touch controller state.
type Controller struct {
	mu      sync.Mutex
	state   State
	caps    pcm.Caps
	alloc   dma.Allocator
	adapter *dma.Adapter
	mgr     *manager

	cfg      Config
	ring     []byte
	consumed uint64 // cumulative bytes forwarded to the buffer manager
	periods  uint64

	onPeriod func()
	onError  func(error)
}

// New creates a closed stream controller.
func New(opts Options) *Controller {
	c := &Controller{
		state:    Closed,
		caps:     pcm.DefaultCaps(),
		alloc:    opts.Allocator,
		adapter:  dma.NewAdapter(opts.Channel, opts.Allocator),
		onPeriod: opts.OnPeriodElapsed,
		onError:  opts.OnError,
	}
	c.mgr = newManager(&c.mu, opts.Allocator, c.adapter)
	return c
}

// Open allocates the stream context and the initial transfer buffer pair at
// the maximum supported size. If the second allocation fails the first is
// rolled back and Open fails with ErrResourceExhausted.
func (c *Controller) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Closed {
		return fmt.Errorf("%w: open in state %s", pcm.ErrInvalidState, c.state)
	}
	if c.alloc == nil {
		return fmt.Errorf("%w: no allocator capability", pcm.ErrInvalidState)
	}

	if err := c.mgr.allocatePairLocked(wordCapacity(defaultBufferBytes(c.caps))); err != nil {
		return err
	}

	c.state = Opened
	return nil
}

// Configure validates the requested configuration, clamps its geometry and
// reallocates the transfer pair to the effective buffer size. Valid from
// Opened or Configured.
func (c *Controller) Configure(cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Opened && c.state != Configured {
		return fmt.Errorf("%w: configure in state %s", pcm.ErrInvalidState, c.state)
	}

	eff, err := cfg.normalize(c.caps)
	if err != nil {
		return err
	}

	if err := c.mgr.reallocatePairLocked(wordCapacity(eff.BufferBytes)); err != nil {
		return err
	}

	c.cfg = eff
	c.ring = make([]byte, eff.BufferBytes)
	c.consumed = 0
	c.periods = 0
	c.state = Configured
	return nil
}

// Prepare readies a configured stream for a run: it clears any stale
// in-flight state from a previous run and resets the fill cursor.
func (c *Controller) Prepare() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Configured && c.state != Prepared {
		return fmt.Errorf("%w: prepare in state %s", pcm.ErrInvalidState, c.state)
	}
	if !c.mgr.readyLocked() {
		return fmt.Errorf("%w: prepare without transfer buffers", pcm.ErrInvalidState)
	}
	if c.cfg.BufferBytes == 0 || c.cfg.PeriodBytes == 0 {
		return fmt.Errorf("%w: zero buffer or period size", pcm.ErrInvalidConfiguration)
	}

	if err := c.adapter.Terminate(); err != nil {
		return err
	}

	c.mgr.resetLocked()
	c.consumed = 0
	c.periods = 0
	c.state = Prepared
	return nil
}

// Start transitions to Running. Submission happens lazily as data arrives,
// so there is no hardware action beyond bookkeeping.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Prepared {
		return fmt.Errorf("%w: start in state %s", pcm.ErrInvalidState, c.state)
	}
	c.state = Running
	return nil
}

// Stop terminates outstanding transfers and returns to Configured.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Running && c.state != Paused {
		return fmt.Errorf("%w: stop in state %s", pcm.ErrInvalidState, c.state)
	}
	if err := c.adapter.Terminate(); err != nil {
		return err
	}
	c.state = Configured
	return nil
}

// Pause suspends hardware consumption without discarding descriptors.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Running {
		return fmt.Errorf("%w: pause in state %s", pcm.ErrInvalidState, c.state)
	}
	if err := c.adapter.Pause(); err != nil {
		return err
	}
	c.state = Paused
	return nil
}

// Resume continues a paused stream.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Paused {
		return fmt.Errorf("%w: resume in state %s", pcm.ErrInvalidState, c.state)
	}
	if err := c.adapter.Resume(); err != nil {
		return err
	}
	c.state = Running
	return nil
}

// Ring exposes the host-side logical ring buffer the upper framework
// writes sample frames into. Valid after Configure.
func (c *Controller) Ring() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ring
}

// Ack informs the stream that the application cursor has advanced to appl
// cumulative bytes. The newly available range, the delta against the
// consumption cursor wrapping around the ring, is converted and copied
// toward the transfer engine, and OnPeriodElapsed fires once per period
// boundary crossed. Only valid while Running.
func (c *Controller) Ack(appl uint64) error {
	c.mu.Lock()
	if c.state != Running {
		c.mu.Unlock()
		return fmt.Errorf("%w: push in state %s", pcm.ErrInvalidState, c.state)
	}

	ring := c.ring
	ringSize := uint64(len(ring))
	if appl < c.consumed {
		c.mu.Unlock()
		return fmt.Errorf("%w: application cursor %d behind consumption cursor %d", pcm.ErrInvalidState, appl, c.consumed)
	}
	delta := appl - c.consumed
	if delta == 0 {
		c.mu.Unlock()
		return nil
	}
	if delta > ringSize {
		c.mu.Unlock()
		return fmt.Errorf("%w: cursor advanced %d bytes past ring size %d", pcm.ErrInvalidState, delta, ringSize)
	}
	if delta%pcm.FrameBytes != 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: cursor delta of %d bytes", pcm.ErrPartialFrame, delta)
	}
	start := c.consumed % ringSize
	c.mu.Unlock()

	// The copy itself runs outside the stream lock; the manager takes it
	// around each buffer swap.
	written, err := c.forward(ring, start, delta)

	c.mu.Lock()
	periodBytes := uint64(c.cfg.PeriodBytes)
	before := c.consumed / periodBytes
	c.consumed += uint64(written)
	crossed := c.consumed/periodBytes - before
	c.periods += crossed
	cb := c.onPeriod
	c.mu.Unlock()

	for i := uint64(0); i < crossed; i++ {
		if cb != nil {
			cb()
		}
	}

	if err != nil {
		if c.onError != nil {
			c.onError(err)
		}
		return err
	}
	return nil
}

// forward pushes the byte range [start, start+delta) of the ring to the
// buffer manager, splitting it in two at the wraparound point.
func (c *Controller) forward(ring []byte, start, delta uint64) (int, error) {
	end := start + delta
	if end <= uint64(len(ring)) {
		return c.mgr.write(ring[start:end])
	}

	written, err := c.mgr.write(ring[start:])
	if err != nil {
		return written, err
	}
	n, err := c.mgr.write(ring[:end-uint64(len(ring))])
	return written + n, err
}

// Position reports the consumption cursor in frames, modulo the logical
// buffer size. It never runs ahead of what has actually been copied into a
// transfer buffer and is monotone modulo the buffer size.
func (c *Controller) Position() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.ring) == 0 {
		return 0
	}
	return c.consumed % uint64(len(c.ring)) / pcm.FrameBytes
}

// HWFree resets the fill state but keeps the buffers; they persist until
// Close. The stream drops back to Opened and needs a new Configure.
func (c *Controller) HWFree() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Configured, Prepared:
	default:
		return fmt.Errorf("%w: hw_free in state %s", pcm.ErrInvalidState, c.state)
	}

	c.mgr.resetLocked()
	c.consumed = 0
	c.periods = 0
	c.state = Opened
	return nil
}

// Close terminates any in-flight submission, releases both transfer
// buffers exactly once and destroys the stream context. Safe to call on an
// already closed stream.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Closed {
		return nil
	}

	if err := c.adapter.Terminate(); err != nil {
		return err
	}
	c.mgr.releasePairLocked()
	c.ring = nil
	c.state = Closed
	return nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Config returns the effective configuration after clamping. Zero until
// the first successful Configure.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Stats returns a snapshot of the stream accounting.
func (c *Controller) Stats() Stats {
	counters := c.adapter.Counters()
	inflight := c.adapter.InFlight()

	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		State:              c.state,
		PushedBytes:        c.consumed,
		PushedFrames:       c.consumed / pcm.FrameBytes,
		Submitted:          counters.Submitted,
		Completed:          counters.Completed,
		UnknownCompletions: counters.UnknownCompletions,
		InFlight:           inflight,
		PeriodsElapsed:     c.periods,
		Stalls:             c.mgr.stallsLocked(),
	}
}

// defaultBufferBytes is the open-time pair size: the largest supported
// buffer, rounded down to whole frames.
func defaultBufferBytes(caps pcm.Caps) int {
	return caps.BufferBytesMax - caps.BufferBytesMax%pcm.FrameBytes
}

// wordCapacity converts a host buffer size to the transfer buffer capacity
// holding the same frames as packed words.
func wordCapacity(bufferBytes int) int {
	return bufferBytes / pcm.FrameBytes * pcm.WordBytes
}
