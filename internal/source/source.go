// ABOUTME: Audio file sources producing 24-bit stereo frames
// ABOUTME: Dispatches to the WAV or MP3 reader by file extension
package source

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dmastream/dmastream-go/pkg/pcm"
)

// Source produces host-side sample frames for the playback ring.
type Source interface {
	// Format describes the produced stream; always the supported triple.
	Format() pcm.Format

	// ReadFrames fills dst with whole 6-byte frames and returns the frame
	// count. io.EOF signals the end of the stream.
	ReadFrames(dst []byte) (int, error)

	// Close releases the underlying file.
	Close() error
}

// Open creates a source for the file at path based on its extension.
func Open(path string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return NewWAV(path)
	case ".mp3":
		return NewMP3(path)
	default:
		return nil, fmt.Errorf("unsupported input file %q", path)
	}
}

// putSample24 writes one 24-bit signed sample little-endian.
func putSample24(dst []byte, v int32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
}
