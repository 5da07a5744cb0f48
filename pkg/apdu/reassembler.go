package apdu

const (
	// StartByte marks the beginning of every APDU.
	StartByte byte = 0x68

	// HeaderSize is the start octet plus the length octet.
	HeaderSize = 2

	// MaxLength is the largest APDU length allowed by IEC 60870-5-104.
	// The reassembler accepts any length octet; this is used by builders.
	MaxLength = 253

	// MaxFrameSize is the largest frame the length octet can describe.
	MaxFrameSize = 255 + HeaderSize
)

// Extract finds the next complete frame in buf.
//
// Leading octets that are not StartByte are skipped and reported in skipped.
// When a complete frame is available it is returned as a sub-slice of buf
// together with the remaining bytes and ok=true. Otherwise ok is false and
// rest holds the unconsumed bytes starting at the start octet (or is empty
// when buf contained only noise).
//
// Extract does not copy; callers that keep frame must copy it.
func Extract(buf []byte) (frame, rest []byte, skipped int, ok bool) {
	for skipped < len(buf) && buf[skipped] != StartByte {
		skipped++
	}
	buf = buf[skipped:]

	if len(buf) < HeaderSize {
		return nil, buf, skipped, false
	}

	total := int(buf[1]) + HeaderSize
	if len(buf) < total {
		return nil, buf, skipped, false
	}

	return buf[:total], buf[total:], skipped, true
}

// Reassembler accumulates stream bytes and cuts complete frames from the
// front of its buffer.
//
// A Reassembler is owned by a single connection and is not safe for
// concurrent use.
type Reassembler struct {
	buf       []byte
	discarded uint64
}

// NewReassembler creates a Reassembler with the given initial capacity.
func NewReassembler(capacity int) *Reassembler {
	if capacity < MaxFrameSize {
		capacity = MaxFrameSize
	}
	return &Reassembler{buf: make([]byte, 0, capacity)}
}

// Write appends stream bytes to the buffer.
func (r *Reassembler) Write(p []byte) {
	r.buf = append(r.buf, p...)
}

// Next removes and returns the next complete frame.
//
// The returned slice is a private copy. Next returns false when the buffer
// holds no complete frame; the partial frame (if any) stays buffered so the
// next call after more data arrives retries from the same start octet.
func (r *Reassembler) Next() ([]byte, bool) {
	frame, rest, skipped, ok := Extract(r.buf)
	r.discarded += uint64(skipped)

	var out []byte
	if ok {
		out = make([]byte, len(frame))
		copy(out, frame)
	}

	// Compact so the backing array does not grow with consumed bytes.
	if skipped > 0 || ok {
		r.buf = append(r.buf[:0], rest...)
	}
	return out, ok
}

// Buffered returns the number of bytes waiting for more data.
func (r *Reassembler) Buffered() int {
	return len(r.buf)
}

// Discarded returns the total number of noise bytes skipped while
// resynchronizing on the start octet.
func (r *Reassembler) Discarded() uint64 {
	return r.discarded
}

// Reset drops any buffered bytes.
func (r *Reassembler) Reset() {
	r.buf = r.buf[:0]
}
