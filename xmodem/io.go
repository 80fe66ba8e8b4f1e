package xmodem

import (
	"context"
	"io"
	"sync"
)

// defaultReadSize is the size of a single transport read. It comfortably
// holds a full block so a peer that writes a block in one call is usually
// consumed in one read.
const defaultReadSize = 1024

// xmodemIO adapts an ordered byte stream to the engines: chunked reads and
// serialised writes. It knows nothing about blocks or control bytes.
type xmodemIO struct {
	reader io.Reader
	writer io.Writer
	rbuf   []byte

	// wmu serialises writes from the engine and the receiver's priming timer
	wmu sync.Mutex
}

func newXmodemIO(rw io.ReadWriter, readSize int) *xmodemIO {
	if readSize <= 0 {
		readSize = defaultReadSize
	}
	return &xmodemIO{
		reader: rw,
		writer: rw,
		rbuf:   make([]byte, readSize),
	}
}

// ReadChunk blocks until the transport delivers at least one byte and returns
// a copy of what was delivered. The context is checked before each read; a
// read already in progress cannot be interrupted.
//
// End of stream is reported as io.ErrUnexpectedEOF since the engines only
// read while a transfer is still incomplete. Other errors are returned as-is.
func (z *xmodemIO) ReadChunk(ctx context.Context) ([]byte, error) {
	for {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}

		n, err := z.reader.Read(z.rbuf)
		if n > 0 {
			out := make([]byte, n)
			copy(out, z.rbuf[:n])
			// Data and error together: hand out the data now, the error
			// will come back on the next read.
			return out, nil
		}
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		if err != nil {
			return nil, err
		}
	}
}

// Write writes buf in full.
func (z *xmodemIO) Write(buf []byte) error {
	z.wmu.Lock()
	defer z.wmu.Unlock()

	for len(buf) > 0 {
		n, err := z.writer.Write(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		buf = buf[n:]
	}
	return z.flush()
}

// WriteByte writes a single control byte.
func (z *xmodemIO) WriteByte(b byte) error {
	return z.Write([]byte{b})
}

func (z *xmodemIO) flush() error {
	if f, ok := z.writer.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
