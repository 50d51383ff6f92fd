package base

import (
	"bytes"
	"iter"
	"net"
)

// Delimiter terminates every message on the wire
const Delimiter byte = '\n'

// Framer reassembles delimited messages from a byte stream. Incomplete
// trailing data is retained until the rest of the message arrives, so the
// produced messages do not depend on how the stream was split into chunks.
//
// A Framer is not safe for concurrent use; it belongs to one receive loop.
type Framer struct {
	delim byte
	buf   []byte
}

// NewFramer creates a framer splitting on delim
func NewFramer(delim byte) *Framer {
	return &Framer{delim: delim}
}

// Feed appends chunk to the buffer and returns the sequence of all messages
// that are complete now. The sequence is lazy: messages are cut from the buffer
// while it is iterated. Lines that are empty after trimming whitespace are
// skipped. Every yielded slice is a copy and may be retained by the caller.
func (f *Framer) Feed(chunk []byte) iter.Seq[[]byte] {
	f.buf = append(f.buf, chunk...)

	return func(yield func([]byte) bool) {
		for {
			i := bytes.IndexByte(f.buf, f.delim)
			if i < 0 {
				return
			}

			line := bytes.TrimSpace(f.buf[:i])
			var msg []byte
			if len(line) > 0 {
				msg = bytes.Clone(line)
			}

			// the consumed prefix is released by the next append that grows the buffer
			f.buf = f.buf[i+1:]

			if msg == nil {
				continue
			}
			if !yield(msg) {
				return
			}
		}
	}
}

// Buffered returns the number of bytes waiting for a delimiter
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// writeFrame writes one message followed by the delimiter using a single write
// call, so concurrent writers serialized by a mutex never interleave partial messages.
func writeFrame(conn net.Conn, data []byte) error {
	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, data...)
	frame = append(frame, Delimiter)

	_, err := conn.Write(frame)
	return err
}
