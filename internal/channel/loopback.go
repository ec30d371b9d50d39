// ABOUTME: Loopback transfer channel that discards submissions
// ABOUTME: Completes asynchronously, honoring pause and terminate
package channel

import (
	"sync"
	"time"

	"github.com/dmastream/dmastream-go/pkg/dma"
	"github.com/google/uuid"
)

// Loopback consumes submissions without any real hardware: each one
// completes from a separate goroutine after the configured delay. Pause
// holds completions back, Resume releases them, Terminate invalidates all
// outstanding work so late timers fire as unknown completions upstream.
type Loopback struct {
	Delay time.Duration

	mu         sync.Mutex
	onComplete func(dma.SubmissionID)
	generation uint64
	paused     bool
	held       []dma.SubmissionID
	wg         sync.WaitGroup
}

// NewLoopback creates a loopback channel completing after delay.
func NewLoopback(delay time.Duration) *Loopback {
	return &Loopback{Delay: delay}
}

// SetOnComplete registers the completion callback.
func (l *Loopback) SetOnComplete(fn func(dma.SubmissionID)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onComplete = fn
}

// Submit accepts the descriptor and schedules its completion.
func (l *Loopback) Submit(data []byte, length int, addr dma.BusAddr) (dma.SubmissionID, error) {
	id := uuid.New()

	l.mu.Lock()
	gen := l.generation
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if l.Delay > 0 {
			time.Sleep(l.Delay)
		}
		l.complete(id, gen)
	}()

	return id, nil
}

func (l *Loopback) complete(id dma.SubmissionID, gen uint64) {
	l.mu.Lock()
	if gen != l.generation {
		l.mu.Unlock()
		return
	}
	if l.paused {
		l.held = append(l.held, id)
		l.mu.Unlock()
		return
	}
	fn := l.onComplete
	l.mu.Unlock()

	if fn != nil {
		fn(id)
	}
}

// Terminate aborts everything outstanding. Idempotent.
func (l *Loopback) Terminate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generation++
	l.held = nil
	return nil
}

// Pause holds completions without discarding them.
func (l *Loopback) Pause() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paused = true
	return nil
}

// Resume releases any held completions in order.
func (l *Loopback) Resume() error {
	l.mu.Lock()
	held := l.held
	l.held = nil
	l.paused = false
	fn := l.onComplete
	l.mu.Unlock()

	if fn != nil {
		for _, id := range held {
			fn(id)
		}
	}
	return nil
}

// Drain waits for all scheduled completion goroutines to finish.
func (l *Loopback) Drain() {
	l.wg.Wait()
}
