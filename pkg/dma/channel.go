// ABOUTME: Transfer channel capability contract
// ABOUTME: Submission, termination and pause/resume of hardware transfers
package dma

import "github.com/google/uuid"

// SubmissionID identifies one in-flight transfer.
type SubmissionID = uuid.UUID

// Channel is the raw transfer capability provided by the hardware layer.
//
// Submit hands a prepared region to the engine and returns its submission
// id. The registered completion callback is invoked later, from the
// channel's own execution context, once the region has been fully consumed.
// Implementations must not invoke the callback synchronously from Submit.
//
// Terminate aborts all outstanding submissions and must be safe to call
// with nothing in flight. Pause and Resume suspend and continue consumption
// without discarding queued descriptors.
type Channel interface {
	Submit(data []byte, length int, addr BusAddr) (SubmissionID, error)
	Terminate() error
	Pause() error
	Resume() error
	SetOnComplete(fn func(SubmissionID))
}
