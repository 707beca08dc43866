// Package mjpeg writes the multipart/x-mixed-replace framing used for
// motion-JPEG over plain HTTP. Each part replaces the previous one on the
// viewer's side.
package mjpeg

import (
	"io"
	"strconv"
)

// Boundary is the literal delimiter that starts every part. It is also the
// value of the boundary parameter in ContentType, which browsers and most
// MJPEG clients accept despite the leading dashes.
const Boundary = "--frame"

// ContentType is the response Content-Type of a live stream.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

const crlf = "\r\n"

// AppendPartHeader appends the part preamble for an image of n bytes:
// boundary line, Content-Type, Content-Length and the blank separator line.
func AppendPartHeader(dst []byte, contentType string, n int) []byte {
	dst = append(dst, Boundary...)
	dst = append(dst, crlf...)
	dst = append(dst, "Content-Type: "...)
	dst = append(dst, contentType...)
	dst = append(dst, crlf...)
	dst = append(dst, "Content-Length: "...)
	dst = strconv.AppendInt(dst, int64(n), 10)
	dst = append(dst, crlf...)
	dst = append(dst, crlf...)
	return dst
}

// PartWriter writes parts to an underlying stream, reusing its header buffer
// between parts. It is not safe for concurrent use.
type PartWriter struct {
	w      io.Writer
	header []byte
}

// NewPartWriter returns a PartWriter writing to w.
func NewPartWriter(w io.Writer) *PartWriter {
	return &PartWriter{w: w, header: make([]byte, 0, 96)}
}

// WritePart writes one complete part carrying data and returns the number
// of bytes written to the stream. It does not flush.
func (p *PartWriter) WritePart(contentType string, data []byte) (int, error) {
	p.header = AppendPartHeader(p.header[:0], contentType, len(data))

	total := 0
	n, err := p.w.Write(p.header)
	total += n
	if err != nil {
		return total, err
	}
	n, err = p.w.Write(data)
	total += n
	if err != nil {
		return total, err
	}
	n, err = io.WriteString(p.w, crlf)
	total += n
	return total, err
}
