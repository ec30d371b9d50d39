// ABOUTME: Host frame to transfer word conversion
// ABOUTME: Pure, stateless packing of 24-bit stereo samples into 64-bit words
package pcm

import (
	"encoding/binary"
	"fmt"
)

// PackFrame packs one 6-byte host frame into a transfer word.
//
// The host frame carries two 24-bit signed little-endian samples (left then
// right). The transfer word places the left sample in bits 63-40, the right
// sample in bits 39-16 and zero in bits 15-0.
func PackFrame(frame []byte) (uint64, error) {
	if len(frame) != FrameBytes {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrPartialFrame, len(frame), FrameBytes)
	}

	left := uint64(frame[0]) | uint64(frame[1])<<8 | uint64(frame[2])<<16
	right := uint64(frame[3]) | uint64(frame[4])<<8 | uint64(frame[5])<<16

	return left<<40 | right<<16, nil
}

// UnpackWord extracts the left and right samples from a transfer word,
// sign-extended to int32.
func UnpackWord(word uint64) (left, right int32) {
	return signExtend24(int32(word >> 40 & 0xFFFFFF)), signExtend24(int32(word >> 16 & 0xFFFFFF))
}

// signExtend24 sign-extends a 24-bit value to 32 bits.
func signExtend24(v int32) int32 {
	if v&0x800000 != 0 {
		v |= ^int32(0xFFFFFF)
	}
	return v
}

// ConvertFrames packs whole frames from src into dst, one 8-byte big-endian
// word per 6-byte frame. src must be a whole number of frames and dst must
// have room for every resulting word; a trailing partial frame is a contract
// violation, not something silently dropped.
//
// It returns the number of frames converted.
func ConvertFrames(dst, src []byte) (int, error) {
	if len(src)%FrameBytes != 0 {
		return 0, fmt.Errorf("%w: %d bytes is not a whole number of frames", ErrPartialFrame, len(src))
	}

	frames := len(src) / FrameBytes
	if len(dst) < frames*WordBytes {
		return 0, fmt.Errorf("convert: need %d bytes of destination, have %d", frames*WordBytes, len(dst))
	}

	for i := 0; i < frames; i++ {
		word, err := PackFrame(src[i*FrameBytes : (i+1)*FrameBytes])
		if err != nil {
			return i, err
		}
		binary.BigEndian.PutUint64(dst[i*WordBytes:], word)
	}

	return frames, nil
}
