// Package media defines the frame type that flows from the camera source
// through the broadcaster to every live viewer.
package media

import "time"

// DefaultContentType is the MIME type of frames when no codec is configured.
const DefaultContentType = "image/jpeg"

// Frame is one encoded still image. Data must not be modified after the
// frame has been published; the same backing array is shared by every viewer
// that receives it.
type Frame struct {
	Data       []byte
	CapturedAt time.Time
}

// NewFrame wraps already-encoded image bytes, stamped with the current time.
// The slice is not copied.
func NewFrame(data []byte) *Frame {
	return &Frame{Data: data, CapturedAt: time.Now()}
}

// Len returns the encoded size in bytes.
func (f *Frame) Len() int {
	return len(f.Data)
}
