// ABOUTME: WAV file source using go-audio
// ABOUTME: Scales 16/24/32-bit PCM to the 24-bit frame format
package source

import (
	"fmt"
	"io"
	"os"

	"github.com/dmastream/dmastream-go/pkg/pcm"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVSource reads stereo PCM WAV files at the supported rate.
type WAVSource struct {
	f     *os.File
	dec   *wav.Decoder
	buf   *audio.IntBuffer
	shift int // left shift to scale native depth to 24 bits
}

// NewWAV opens a WAV file and validates it against the stream format.
func NewWAV(path string) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%s: not a valid WAV file", path)
	}

	want := pcm.DefaultFormat()
	if int(dec.NumChans) != want.Channels {
		f.Close()
		return nil, fmt.Errorf("%s: %d channels, need %d", path, dec.NumChans, want.Channels)
	}
	if int(dec.SampleRate) != want.SampleRate {
		f.Close()
		return nil, fmt.Errorf("%s: %d Hz, need %d (no resampling)", path, dec.SampleRate, want.SampleRate)
	}

	var shift int
	switch dec.BitDepth {
	case 16:
		shift = 8
	case 24:
		shift = 0
	case 32:
		shift = -8
	default:
		f.Close()
		return nil, fmt.Errorf("%s: unsupported bit depth %d", path, dec.BitDepth)
	}

	return &WAVSource{f: f, dec: dec, shift: shift}, nil
}

// Format returns the produced stream format.
func (s *WAVSource) Format() pcm.Format { return pcm.DefaultFormat() }

// ReadFrames fills dst with whole frames.
func (s *WAVSource) ReadFrames(dst []byte) (int, error) {
	frames := len(dst) / pcm.FrameBytes
	if frames == 0 {
		return 0, nil
	}

	samples := frames * 2
	if s.buf == nil || len(s.buf.Data) != samples {
		s.buf = &audio.IntBuffer{
			Format: &audio.Format{NumChannels: 2, SampleRate: pcm.DefaultFormat().SampleRate},
			Data:   make([]int, samples),
		}
	}

	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}

	for i := 0; i < n; i++ {
		v := int32(s.buf.Data[i])
		if s.shift >= 0 {
			v <<= s.shift
		} else {
			v >>= -s.shift
		}
		putSample24(dst[i*pcm.SampleBytes:], v)
	}

	// A trailing odd sample would split a frame; the decoder delivers
	// interleaved stereo so n is even for any valid file.
	return n / 2, nil
}

// Close releases the file.
func (s *WAVSource) Close() error { return s.f.Close() }
