// ABOUTME: Tests for format validation
// ABOUTME: Only the fixed 24-bit/48kHz/stereo triple is supported
package pcm

import "testing"

func TestFormatSupported(t *testing.T) {
	tests := []struct {
		format    Format
		supported bool
	}{
		{Format{24, 48000, 2}, true},
		{Format{24, 44100, 2}, false},
		{Format{16, 48000, 2}, false},
		{Format{24, 48000, 1}, false},
		{Format{}, false},
	}

	for _, tt := range tests {
		if got := tt.format.Supported(); got != tt.supported {
			t.Errorf("%s: expected supported=%v, got %v", tt.format, tt.supported, got)
		}
	}
}

func TestDefaultCaps(t *testing.T) {
	caps := DefaultCaps()

	if caps.BufferBytesMax != 65536 {
		t.Errorf("expected 64K max buffer, got %d", caps.BufferBytesMax)
	}
	if caps.PeriodsMin != 2 || caps.PeriodsMax != 4 {
		t.Errorf("expected 2..4 periods, got %d..%d", caps.PeriodsMin, caps.PeriodsMax)
	}
}
