// ABOUTME: Tests for the stream controller lifecycle
// ABOUTME: Covers boundaries, rollback, stalls and close-time reclamation
package stream

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/dmastream/dmastream-go/pkg/dma"
	"github.com/dmastream/dmastream-go/pkg/pcm"
	"github.com/google/uuid"
)

// testAllocator hands out heap regions with synthetic bus addresses and
// counts every call, so leak and double-free checks are exact.
type testAllocator struct {
	mu       sync.Mutex
	next     dma.BusAddr
	live     map[dma.BusAddr]bool
	allocs   int
	frees    int
	badFrees int
	failAt   int  // fail the Nth allocation, 1-based; 0 = never
	failNext bool // fail just the next allocation
}

func newTestAllocator() *testAllocator {
	return &testAllocator{live: make(map[dma.BusAddr]bool)}
}

func (a *testAllocator) AllocCoherent(size int) (*dma.Memory, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allocs++
	if a.failNext || (a.failAt != 0 && a.allocs >= a.failAt) {
		a.failNext = false
		return nil, errors.New("out of coherent memory")
	}
	a.next += 0x10000
	a.live[a.next] = true
	return &dma.Memory{Data: make([]byte, size), Bus: a.next}, nil
}

func (a *testAllocator) FreeCoherent(mem *dma.Memory) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if mem == nil || !a.live[mem.Bus] {
		a.badFrees++
		return errors.New("free of unknown region")
	}
	delete(a.live, mem.Bus)
	a.frees++
	return nil
}

func (a *testAllocator) liveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// testChannel records submissions in order and completes them on demand.
type testChannel struct {
	mu         sync.Mutex
	onComplete func(dma.SubmissionID)
	ids        []dma.SubmissionID
	payloads   [][]byte
	terminates int
	paused     bool
}

func (c *testChannel) Submit(data []byte, length int, addr dma.BusAddr) (dma.SubmissionID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.New()
	payload := make([]byte, length)
	copy(payload, data[:length])
	c.ids = append(c.ids, id)
	c.payloads = append(c.payloads, payload)
	return id, nil
}

func (c *testChannel) Terminate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminates++
	return nil
}

func (c *testChannel) Pause() error  { c.mu.Lock(); c.paused = true; c.mu.Unlock(); return nil }
func (c *testChannel) Resume() error { c.mu.Lock(); c.paused = false; c.mu.Unlock(); return nil }

func (c *testChannel) SetOnComplete(fn func(dma.SubmissionID)) { c.onComplete = fn }

func (c *testChannel) completeAll() {
	c.mu.Lock()
	ids := c.ids
	c.ids = nil
	c.mu.Unlock()
	for _, id := range ids {
		c.onComplete(id)
	}
}

func (c *testChannel) submissions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func (c *testChannel) concatPayloads() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []byte
	for _, p := range c.payloads {
		out = append(out, p...)
	}
	return out
}

// runningStream opens, configures, prepares and starts a stream with the
// given geometry.
func runningStream(t *testing.T, alloc dma.Allocator, ch dma.Channel, bufferBytes, periodBytes int, onPeriod func()) *Controller {
	t.Helper()

	c := New(Options{Allocator: alloc, Channel: ch, OnPeriodElapsed: onPeriod})
	if err := c.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	cfg := Config{
		Format:      pcm.DefaultFormat(),
		BufferBytes: bufferBytes,
		PeriodBytes: periodBytes,
		Periods:     4,
	}
	if err := c.Configure(cfg); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if err := c.Prepare(); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return c
}

// push copies frames into the ring at the application cursor and acks the
// advance, the way the upper framework feeds the stream.
func push(t *testing.T, c *Controller, appl *uint64, data []byte) error {
	t.Helper()

	ring := c.Ring()
	for i, b := range data {
		ring[(*appl+uint64(i))%uint64(len(ring))] = b
	}
	*appl += uint64(len(data))
	return c.Ack(*appl)
}

func frames(n int) []byte {
	r := rand.New(rand.NewSource(int64(n)))
	data := make([]byte, n*pcm.FrameBytes)
	r.Read(data)
	return data
}

func TestLifecycleScenario(t *testing.T) {
	alloc := newTestAllocator()
	ch := &testChannel{}
	periodsFired := 0

	c := runningStream(t, alloc, ch, 16384, 4096, func() { periodsFired++ })

	// Geometry is clamped to whole frames: 16384 -> 16380, 4096 -> 4092.
	if len(c.Ring()) != 16380 {
		t.Fatalf("expected 16380-byte ring, got %d", len(c.Ring()))
	}

	// One period of frames: less than a full buffer, so no submission yet.
	var appl uint64
	if err := push(t, c, &appl, frames(4092/pcm.FrameBytes)); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	if got := c.Position(); got != 682 {
		t.Errorf("expected position 682 frames, got %d", got)
	}
	if ch.submissions() != 0 {
		t.Errorf("expected no submission below a full buffer, got %d", ch.submissions())
	}
	if periodsFired != 1 {
		t.Errorf("expected period elapsed at the period boundary, fired %d times", periodsFired)
	}

	// Half a period more: position advances, no new boundary.
	if err := push(t, c, &appl, frames(341)); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if got := c.Position(); got != 682+341 {
		t.Errorf("expected position %d, got %d", 682+341, got)
	}
	if periodsFired != 1 {
		t.Errorf("expected no extra period event, fired %d times", periodsFired)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if alloc.liveCount() != 0 {
		t.Errorf("expected all buffers released on close, %d live", alloc.liveCount())
	}
}

func TestFullBufferBoundary(t *testing.T) {
	alloc := newTestAllocator()
	ch := &testChannel{}
	c := runningStream(t, alloc, ch, 16384, 4096, nil)

	// Exactly one buffer's worth triggers exactly one submission and
	// leaves an empty active buffer with a fresh standby present.
	var appl uint64
	if err := push(t, c, &appl, frames(16380/pcm.FrameBytes)); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	if ch.submissions() != 1 {
		t.Fatalf("expected exactly one submission, got %d", ch.submissions())
	}
	if c.mgr.active.Fill() != 0 {
		t.Errorf("expected fill level 0 after the swap, got %d", c.mgr.active.Fill())
	}
	if c.mgr.standby == nil {
		t.Error("expected a freshly allocated standby buffer")
	}
	if c.mgr.active.State() != dma.Active || c.mgr.standby.State() != dma.Standby {
		t.Errorf("expected active/standby pair, got %s/%s", c.mgr.active.State(), c.mgr.standby.State())
	}
	if got := c.Position(); got != 0 {
		t.Errorf("expected position wrapped to 0, got %d", got)
	}
}

func TestStreamContentAcrossSwaps(t *testing.T) {
	alloc := newTestAllocator()
	ch := &testChannel{}
	c := runningStream(t, alloc, ch, 16384, 4096, nil)

	// Push three and a half buffers of random frames in odd-sized chunks.
	total := 16380*3 + 8190
	input := frames(total / pcm.FrameBytes)

	var appl uint64
	for off := 0; off < len(input); {
		n := 1021 * pcm.FrameBytes
		if off+n > len(input) {
			n = len(input) - off
		}
		if err := push(t, c, &appl, input[off:off+n]); err != nil {
			t.Fatalf("push at %d failed: %v", off, err)
		}
		off += n
	}

	if ch.submissions() != 3 {
		t.Fatalf("expected 3 submissions, got %d", ch.submissions())
	}

	// The words submitted plus the words still in the active buffer must
	// equal the conversion of the whole input, in order: no reordering,
	// no drops, no duplication.
	want := make([]byte, total/pcm.FrameBytes*pcm.WordBytes)
	if _, err := pcm.ConvertFrames(want, input); err != nil {
		t.Fatalf("reference conversion failed: %v", err)
	}

	got := append(ch.concatPayloads(), c.mgr.active.Bytes()...)
	if len(got) != len(want) {
		t.Fatalf("expected %d word bytes, got %d", len(want), len(got))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("word stream diverges at byte %d", i)
		}
	}
}

func TestAckWraparound(t *testing.T) {
	alloc := newTestAllocator()
	ch := &testChannel{}
	c := runningStream(t, alloc, ch, 16384, 4096, nil)

	var appl uint64
	if err := push(t, c, &appl, frames(2046)); err != nil { // 12276 bytes
		t.Fatalf("push failed: %v", err)
	}
	// This one wraps around the end of the 16380-byte ring.
	if err := push(t, c, &appl, frames(1365)); err != nil { // 8190 bytes
		t.Fatalf("wrapping push failed: %v", err)
	}

	if got, want := c.Position(), (appl%16380)/pcm.FrameBytes; got != want {
		t.Errorf("expected position %d after wraparound, got %d", want, got)
	}
	if ch.submissions() != 1 {
		t.Errorf("expected one submission after crossing the buffer size, got %d", ch.submissions())
	}
}

func TestAckRejections(t *testing.T) {
	alloc := newTestAllocator()
	ch := &testChannel{}

	c := New(Options{Allocator: alloc, Channel: ch})
	if err := c.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// Push before prepare/start is a hard error, never a silent no-op.
	if err := c.Ack(6); !errors.Is(err, pcm.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState before start, got %v", err)
	}

	cfg := Config{Format: pcm.DefaultFormat(), BufferBytes: 16384, PeriodBytes: 4096, Periods: 4}
	if err := c.Configure(cfg); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if err := c.Prepare(); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var appl uint64
	if err := push(t, c, &appl, frames(10)); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	// Cursor regression.
	if err := c.Ack(appl - pcm.FrameBytes); !errors.Is(err, pcm.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for cursor regression, got %v", err)
	}
	// Advancing further than the ring can hold.
	if err := c.Ack(appl + 16380 + pcm.FrameBytes); !errors.Is(err, pcm.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for over-large delta, got %v", err)
	}
	// Partial frame delta.
	if err := c.Ack(appl + 4); !errors.Is(err, pcm.ErrPartialFrame) {
		t.Errorf("expected ErrPartialFrame, got %v", err)
	}
}

func TestConfigureUnsupportedRate(t *testing.T) {
	alloc := newTestAllocator()
	c := New(Options{Allocator: alloc, Channel: &testChannel{}})
	if err := c.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	cfg := Config{
		Format:      pcm.Format{BitDepth: 24, SampleRate: 44100, Channels: 2},
		BufferBytes: 16384,
		PeriodBytes: 4096,
		Periods:     4,
	}
	if err := c.Configure(cfg); !errors.Is(err, pcm.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration for 44100 Hz, got %v", err)
	}
}

func TestOpenRollback(t *testing.T) {
	alloc := newTestAllocator()
	alloc.failAt = 2 // the standby allocation fails

	c := New(Options{Allocator: alloc, Channel: &testChannel{}})
	err := c.Open()
	if !errors.Is(err, pcm.ErrResourceExhausted) {
		t.Fatalf("expected ErrResourceExhausted, got %v", err)
	}

	if alloc.liveCount() != 0 {
		t.Errorf("expected the first buffer rolled back, %d live", alloc.liveCount())
	}
	if c.State() != Closed {
		t.Errorf("expected stream still closed, got %s", c.State())
	}
}

func TestCloseWithInFlight(t *testing.T) {
	alloc := newTestAllocator()
	ch := &testChannel{}
	c := runningStream(t, alloc, ch, 16384, 4096, nil)

	// Fill a whole buffer so one submission is outstanding.
	var appl uint64
	if err := push(t, c, &appl, frames(16380/pcm.FrameBytes)); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if ch.submissions() != 1 {
		t.Fatalf("expected an in-flight submission, got %d", ch.submissions())
	}

	// Close terminates the transfer first, then releases everything
	// exactly once.
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if alloc.liveCount() != 0 {
		t.Errorf("expected every buffer released, %d live", alloc.liveCount())
	}
	if alloc.badFrees != 0 {
		t.Errorf("expected no double frees, got %d", alloc.badFrees)
	}
	if alloc.allocs != alloc.frees {
		t.Errorf("alloc/free imbalance: %d allocs, %d frees", alloc.allocs, alloc.frees)
	}

	// A late completion for the terminated transfer is ignored.
	ch.completeAll()
	if alloc.badFrees != 0 {
		t.Errorf("late completion caused a double free")
	}

	if err := c.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestStandbyExhaustionStall(t *testing.T) {
	alloc := newTestAllocator()
	ch := &testChannel{}
	c := runningStream(t, alloc, ch, 16384, 4096, nil)

	// The replacement standby allocation on the swap path fails.
	alloc.failNext = true

	var appl uint64
	err := push(t, c, &appl, frames(16380/pcm.FrameBytes))
	if !errors.Is(err, pcm.ErrResourceExhausted) {
		t.Fatalf("expected ErrResourceExhausted on swap, got %v", err)
	}

	// Safe degraded state: active buffer present, standby absent.
	if c.mgr.active == nil {
		t.Fatal("expected the active buffer retained")
	}
	if c.mgr.standby != nil {
		t.Fatal("expected no standby buffer after exhaustion")
	}

	// The next full buffer re-fails explicitly instead of dereferencing
	// the missing standby.
	err = push(t, c, &appl, frames(16380/pcm.FrameBytes))
	if !errors.Is(err, pcm.ErrResourceExhausted) {
		t.Fatalf("expected ErrResourceExhausted on refill, got %v", err)
	}
	if got := c.Stats().Stalls; got == 0 {
		t.Error("expected the stall to be reported")
	}

	// Close still releases everything the stream owns.
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if alloc.liveCount() != 0 {
		t.Errorf("expected no leaks after stall and close, %d live", alloc.liveCount())
	}
}

func TestPauseResume(t *testing.T) {
	alloc := newTestAllocator()
	ch := &testChannel{}
	c := runningStream(t, alloc, ch, 16384, 4096, nil)

	if err := c.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if c.State() != Paused || !ch.paused {
		t.Errorf("expected paused stream and channel, got %s/%v", c.State(), ch.paused)
	}
	// Push while paused is rejected.
	if err := c.Ack(pcm.FrameBytes); !errors.Is(err, pcm.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState while paused, got %v", err)
	}

	if err := c.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if c.State() != Running || ch.paused {
		t.Errorf("expected running stream, got %s/%v", c.State(), ch.paused)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if c.State() != Configured {
		t.Errorf("expected configured after stop, got %s", c.State())
	}
	if ch.terminates == 0 {
		t.Error("expected stop to terminate the channel")
	}
}

func TestHWFree(t *testing.T) {
	alloc := newTestAllocator()
	c := New(Options{Allocator: alloc, Channel: &testChannel{}})
	if err := c.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	cfg := Config{Format: pcm.DefaultFormat(), BufferBytes: 16384, PeriodBytes: 4096, Periods: 4}
	if err := c.Configure(cfg); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	live := alloc.liveCount()
	if err := c.HWFree(); err != nil {
		t.Fatalf("HWFree failed: %v", err)
	}

	// Buffers persist until close.
	if alloc.liveCount() != live {
		t.Errorf("expected buffers retained, live went %d -> %d", live, alloc.liveCount())
	}
	if c.State() != Opened {
		t.Errorf("expected opened after hw_free, got %s", c.State())
	}
}

func TestReconfigureKeepsStreamUsable(t *testing.T) {
	alloc := newTestAllocator()
	ch := &testChannel{}
	c := runningStream(t, alloc, ch, 16384, 4096, nil)

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	cfg := Config{Format: pcm.DefaultFormat(), BufferBytes: 32768, PeriodBytes: 8192, Periods: 4}
	if err := c.Configure(cfg); err != nil {
		t.Fatalf("reconfigure failed: %v", err)
	}
	if err := c.Prepare(); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var appl uint64
	if err := push(t, c, &appl, frames(100)); err != nil {
		t.Fatalf("push after reconfigure failed: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if alloc.liveCount() != 0 {
		t.Errorf("expected no leaks after reconfigure, %d live", alloc.liveCount())
	}
}
