// ABOUTME: Shared error kinds for the streaming pipeline
// ABOUTME: Sentinels wrapped by all packages for errors.Is matching
package pcm

import "errors"

var (
	// ErrResourceExhausted indicates a coherent-memory allocation failed.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrInvalidConfiguration indicates an unsupported format or a buffer
	// geometry outside the hardware capabilities.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidState indicates an operation was invoked without the
	// required buffers or in the wrong lifecycle state.
	ErrInvalidState = errors.New("invalid state")

	// ErrTransferRejected indicates the transfer channel refused descriptor
	// preparation or submission.
	ErrTransferRejected = errors.New("transfer rejected")

	// ErrUnknownCompletion indicates a completion fired for an unrecognized
	// token. It is logged and counted, never fatal.
	ErrUnknownCompletion = errors.New("unknown completion")

	// ErrPartialFrame indicates input that is not a whole number of frames.
	ErrPartialFrame = errors.New("partial sample frame")
)
