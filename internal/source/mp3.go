// ABOUTME: MP3 file source using go-mp3
// ABOUTME: Expands decoded 16-bit stereo PCM to 24-bit frames
package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/dmastream/dmastream-go/pkg/pcm"
	"github.com/hajimehoshi/go-mp3"
)

// MP3Source reads MP3 files; go-mp3 always yields 16-bit stereo PCM.
type MP3Source struct {
	f   *os.File
	dec *mp3.Decoder
	buf []byte
}

// NewMP3 opens an MP3 file and validates its sample rate.
func NewMP3(path string) (*MP3Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	if dec.SampleRate() != pcm.DefaultFormat().SampleRate {
		f.Close()
		return nil, fmt.Errorf("%s: %d Hz, need %d (no resampling)", path, dec.SampleRate(), pcm.DefaultFormat().SampleRate)
	}

	return &MP3Source{f: f, dec: dec}, nil
}

// Format returns the produced stream format.
func (s *MP3Source) Format() pcm.Format { return pcm.DefaultFormat() }

// ReadFrames fills dst with whole frames.
func (s *MP3Source) ReadFrames(dst []byte) (int, error) {
	frames := len(dst) / pcm.FrameBytes
	if frames == 0 {
		return 0, nil
	}

	// 4 bytes per decoded frame: two 16-bit samples.
	if len(s.buf) != frames*4 {
		s.buf = make([]byte, frames*4)
	}

	n, err := io.ReadFull(s.dec, s.buf)
	if err == io.ErrUnexpectedEOF {
		n -= n % 4 // drop a torn trailing frame
		err = nil
	}
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("mp3 decode error: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}

	expandPCM16(dst, s.buf[:n])
	return n / 4, nil
}

// Close releases the file.
func (s *MP3Source) Close() error { return s.f.Close() }

// expandPCM16 widens interleaved 16-bit little-endian samples to 24-bit
// frames by shifting into the upper bits.
func expandPCM16(dst, src []byte) {
	for i := 0; i < len(src)/2; i++ {
		v := int32(int16(binary.LittleEndian.Uint16(src[i*2:]))) << 8
		putSample24(dst[i*pcm.SampleBytes:], v)
	}
}
