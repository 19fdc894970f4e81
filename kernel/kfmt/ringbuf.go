package kfmt

import "io"

// ringBufferSize defines the size of the ring buffer that holds diagnostic
// output produced before a sink is installed. It fits a full 80x25 screen of
// boot messages and must always be a power of 2.
const ringBufferSize = 2048

// ringBuffer is a fixed-size byte ring. When full, new writes overwrite the
// oldest unread bytes so the most recent output always survives.
type ringBuffer struct {
	buffer         [ringBufferSize]byte
	rIndex, wIndex int
}

// Write writes len(p) bytes from p to the ringBuffer.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (ringBufferSize - 1)
		if rb.rIndex == rb.wIndex {
			rb.rIndex = (rb.rIndex + 1) & (ringBufferSize - 1)
		}
	}

	return len(p), nil
}

// WriteTo drains the buffer into w. Unlike io.Copy it needs no intermediate
// buffer, so it can be used before the heap is available.
func (rb *ringBuffer) WriteTo(w io.Writer) (int64, error) {
	var written int64

	for rb.rIndex != rb.wIndex {
		// Write up to the write index or, if the data wraps, up to the
		// end of the backing array; the next pass picks up the rest.
		end := rb.wIndex
		if rb.rIndex > rb.wIndex {
			end = len(rb.buffer)
		}

		n, err := w.Write(rb.buffer[rb.rIndex:end])
		written += int64(n)
		rb.rIndex = (rb.rIndex + n) & (ringBufferSize - 1)
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}

	return written, nil
}
