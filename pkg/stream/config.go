// ABOUTME: Stream configuration and capability clamping
// ABOUTME: Normalizes requested geometry against hardware limits
package stream

import (
	"fmt"

	"github.com/dmastream/dmastream-go/pkg/pcm"
)

// Config is the configuration record negotiated with the upper framework.
type Config struct {
	Format      pcm.Format
	BufferBytes int
	PeriodBytes int
	Periods     int
}

// normalize validates the format and clamps buffer/period geometry into the
// hardware capabilities. Out-of-range sizes are pulled to the nearest bound
// and rounded down to whole frames; a buffer too small to hold the minimum
// period count is a hard error.
func (c Config) normalize(caps pcm.Caps) (Config, error) {
	if !c.Format.Supported() {
		return Config{}, fmt.Errorf("%w: unsupported format %s", pcm.ErrInvalidConfiguration, c.Format)
	}

	out := c
	out.BufferBytes = clampFrames(c.BufferBytes, caps.BufferBytesMin, caps.BufferBytesMax)
	out.PeriodBytes = clampFrames(c.PeriodBytes, caps.PeriodBytesMin, caps.PeriodBytesMax)
	out.Periods = clamp(c.Periods, caps.PeriodsMin, caps.PeriodsMax)

	if out.BufferBytes < caps.PeriodsMin*out.PeriodBytes {
		return Config{}, fmt.Errorf("%w: buffer %d too small for %d periods of %d bytes",
			pcm.ErrInvalidConfiguration, out.BufferBytes, caps.PeriodsMin, out.PeriodBytes)
	}

	return out, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampFrames clamps v into [lo, hi] and rounds down to a whole number of
// frames so every cursor stays frame-aligned.
func clampFrames(v, lo, hi int) int {
	v = clamp(v, lo, hi)
	return v - v%pcm.FrameBytes
}
