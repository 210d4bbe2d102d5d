package io

import "bytes"

// BufBinWriter wraps a BinWriter writing into an in-memory buffer, for
// one-shot encodes that just need the final byte slice.
type BufBinWriter struct {
	*BinWriter
	buf *bytes.Buffer
}

// NewBufBinWriter creates a BufBinWriter with a fresh backing buffer.
func NewBufBinWriter() *BufBinWriter {
	b := new(bytes.Buffer)
	return &BufBinWriter{
		BinWriter: NewBinWriterFromIO(b),
		buf:       b,
	}
}

// Len returns the number of bytes written so far.
func (w *BufBinWriter) Len() int {
	return w.buf.Len()
}

// Bytes returns the accumulated bytes, or nil if an error occurred during
// writing.
func (w *BufBinWriter) Bytes() []byte {
	if w.Err != nil {
		return nil
	}
	return w.buf.Bytes()
}

// Reset clears the buffer and any sticky error so the writer can be reused.
func (w *BufBinWriter) Reset() {
	w.buf.Reset()
	w.Err = nil
}
