// ABOUTME: Sample format and hardware capability definitions
// ABOUTME: Describes the single supported playback configuration
package pcm

import "fmt"

const (
	// SampleBytes is the host-side size of one 24-bit sample.
	SampleBytes = 3

	// FrameBytes is the host-side size of one stereo frame (two 24-bit samples).
	FrameBytes = 2 * SampleBytes

	// WordBytes is the on-wire size of one packed transfer word.
	WordBytes = 8
)

// Format describes a PCM stream format requested by the upper framework.
type Format struct {
	BitDepth   int
	SampleRate int
	Channels   int
}

// DefaultFormat returns the only configuration the pipeline supports:
// 24-bit signed, 48 kHz, stereo.
func DefaultFormat() Format {
	return Format{BitDepth: 24, SampleRate: 48000, Channels: 2}
}

// Supported reports whether f matches the supported configuration.
func (f Format) Supported() bool {
	return f == DefaultFormat()
}

// String returns a human-readable description.
func (f Format) String() string {
	return fmt.Sprintf("%d-bit %dHz %dch", f.BitDepth, f.SampleRate, f.Channels)
}

// Caps bounds the buffer and period geometry the stream accepts.
type Caps struct {
	BufferBytesMin int
	BufferBytesMax int
	PeriodBytesMin int
	PeriodBytesMax int
	PeriodsMin     int
	PeriodsMax     int
}

// DefaultCaps returns the hardware limits of the transfer engine.
func DefaultCaps() Caps {
	return Caps{
		BufferBytesMin: 4096,
		BufferBytesMax: 65536,
		PeriodBytesMin: 4096,
		PeriodBytesMax: 16384,
		PeriodsMin:     2,
		PeriodsMax:     4,
	}
}
