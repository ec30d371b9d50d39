// ABOUTME: Audible transfer channel backed by the oto library
// ABOUTME: Plays submitted transfer words as 16-bit PCM output
package channel

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/dmastream/dmastream-go/pkg/dma"
	"github.com/dmastream/dmastream-go/pkg/pcm"
	"github.com/ebitengine/oto/v3"
	"github.com/google/uuid"
)

// Oto consumes submissions by playing them on the default audio device.
// It stands in for the hardware FIFO: every submitted buffer of transfer
// words is unpacked to 16-bit PCM and handed to an oto player, and the
// completion fires once the device has consumed it.
type Oto struct {
	ctx *oto.Context

	mu         sync.Mutex
	onComplete func(dma.SubmissionID)
	players    map[dma.SubmissionID]*oto.Player
	paused     bool
}

// NewOto initializes the audio device for the fixed stream format.
func NewOto() (*Oto, error) {
	op := &oto.NewContextOptions{
		SampleRate:   pcm.DefaultFormat().SampleRate,
		ChannelCount: pcm.DefaultFormat().Channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	return &Oto{ctx: ctx, players: make(map[dma.SubmissionID]*oto.Player)}, nil
}

// SetOnComplete registers the completion callback.
func (o *Oto) SetOnComplete(fn func(dma.SubmissionID)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onComplete = fn
}

// Submit plays the buffer and completes once playback finishes.
func (o *Oto) Submit(data []byte, length int, addr dma.BusAddr) (dma.SubmissionID, error) {
	if length%pcm.WordBytes != 0 {
		return dma.SubmissionID{}, fmt.Errorf("submission of %d bytes is not word aligned", length)
	}

	samples := wordsToPCM16(data[:length])
	id := uuid.New()
	player := o.ctx.NewPlayer(bytes.NewReader(samples))

	o.mu.Lock()
	o.players[id] = player
	paused := o.paused
	o.mu.Unlock()

	if !paused {
		player.Play()
	}

	go o.watch(id, player)
	return id, nil
}

// watch waits for the device to drain the chunk, then completes it.
func (o *Oto) watch(id dma.SubmissionID, player *oto.Player) {
	for {
		time.Sleep(10 * time.Millisecond)

		o.mu.Lock()
		if _, tracked := o.players[id]; !tracked {
			o.mu.Unlock()
			return // terminated
		}
		if player.IsPlaying() || o.paused {
			o.mu.Unlock()
			continue
		}
		delete(o.players, id)
		fn := o.onComplete
		o.mu.Unlock()

		_ = player.Close()
		if fn != nil {
			fn(id)
		}
		return
	}
}

// Terminate stops and discards everything queued on the device.
func (o *Oto) Terminate() error {
	o.mu.Lock()
	players := o.players
	o.players = make(map[dma.SubmissionID]*oto.Player)
	o.mu.Unlock()

	for _, p := range players {
		_ = p.Close()
	}
	return nil
}

// Pause suspends playback without discarding queued chunks.
func (o *Oto) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = true
	for _, p := range o.players {
		p.Pause()
	}
	return nil
}

// Resume continues playback of queued chunks.
func (o *Oto) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = false
	for _, p := range o.players {
		p.Play()
	}
	return nil
}

// wordsToPCM16 unpacks big-endian transfer words into interleaved 16-bit
// little-endian samples, dropping the low 8 bits of each 24-bit sample.
func wordsToPCM16(words []byte) []byte {
	out := make([]byte, len(words)/pcm.WordBytes*4)
	for i := 0; i < len(words)/pcm.WordBytes; i++ {
		word := binary.BigEndian.Uint64(words[i*pcm.WordBytes:])
		left, right := pcm.UnpackWord(word)
		binary.LittleEndian.PutUint16(out[i*4:], uint16(int16(left>>8)))
		binary.LittleEndian.PutUint16(out[i*4+2:], uint16(int16(right>>8)))
	}
	return out
}
