// Package io provides sticky-error binary reader/writer helpers used to
// encode and decode the fixed-layout wire structures in pkg/wire.
package io

import (
	"encoding/binary"
	"io"
)

// BinReader is a convenient wrapper around an io.Reader and an error.
// Once Err is set, every subsequent read is a no-op, so callers can chain
// a sequence of reads into a struct and check Err once at the end.
type BinReader struct {
	r   io.Reader
	Err error
}

// NewBinReaderFromIO creates a BinReader reading from r.
func NewBinReaderFromIO(r io.Reader) *BinReader {
	return &BinReader{r: r}
}

// NewBinReaderFromBuf creates a BinReader reading from the given byte slice.
func NewBinReaderFromBuf(b []byte) *BinReader {
	return NewBinReaderFromIO(newByteReader(b))
}

// ReadB reads a single byte.
func (r *BinReader) ReadB() byte {
	if r.Err != nil {
		return 0
	}
	var b [1]byte
	_, r.Err = io.ReadFull(r.r, b[:])
	return b[0]
}

// ReadLE reads v from the underlying reader in little-endian order.
func (r *BinReader) ReadLE(v interface{}) {
	if r.Err != nil {
		return
	}
	r.Err = binary.Read(r.r, binary.LittleEndian, v)
}

// ReadBE reads v from the underlying reader in big-endian order.
func (r *BinReader) ReadBE(v interface{}) {
	if r.Err != nil {
		return
	}
	r.Err = binary.Read(r.r, binary.BigEndian, v)
}

// ReadVarUint reads a variable-length-encoded integer.
func (r *BinReader) ReadVarUint() uint64 {
	if r.Err != nil {
		return 0
	}
	b := r.ReadB()
	switch b {
	case 0xfd:
		var v uint16
		r.ReadLE(&v)
		return uint64(v)
	case 0xfe:
		var v uint32
		r.ReadLE(&v)
		return uint64(v)
	case 0xff:
		var v uint64
		r.ReadLE(&v)
		return v
	default:
		return uint64(b)
	}
}

// ReadVarBytes reads a byte slice prefixed by its length as a var-uint.
func (r *BinReader) ReadVarBytes() []byte {
	n := r.ReadVarUint()
	if r.Err != nil {
		return []byte{}
	}
	b := make([]byte, n)
	if n > 0 {
		r.ReadLE(b)
	}
	if r.Err != nil {
		return []byte{}
	}
	return b
}

// ReadString reads a length-prefixed string.
func (r *BinReader) ReadString() string {
	return string(r.ReadVarBytes())
}

// BinWriter is a convenient wrapper around an io.Writer and an error.
// Once Err is set, every subsequent write is a no-op.
type BinWriter struct {
	w   io.Writer
	Err error
}

// NewBinWriterFromIO creates a BinWriter writing to w.
func NewBinWriterFromIO(w io.Writer) *BinWriter {
	return &BinWriter{w: w}
}

// WriteB writes a single byte.
func (w *BinWriter) WriteB(b byte) {
	if w.Err != nil {
		return
	}
	_, w.Err = w.w.Write([]byte{b})
}

// WriteLE writes v in little-endian order.
func (w *BinWriter) WriteLE(v interface{}) {
	if w.Err != nil {
		return
	}
	w.Err = binary.Write(w.w, binary.LittleEndian, v)
}

// WriteBE writes v in big-endian order.
func (w *BinWriter) WriteBE(v interface{}) {
	if w.Err != nil {
		return
	}
	w.Err = binary.Write(w.w, binary.BigEndian, v)
}

// WriteVarUint writes val as a variable-length-encoded integer.
func (w *BinWriter) WriteVarUint(val uint64) {
	if w.Err != nil {
		return
	}
	switch {
	case val < 0xfd:
		w.WriteB(byte(val))
	case val <= 0xffff:
		w.WriteB(0xfd)
		w.WriteLE(uint16(val))
	case val <= 0xffffffff:
		w.WriteB(0xfe)
		w.WriteLE(uint32(val))
	default:
		w.WriteB(0xff)
		w.WriteLE(val)
	}
}

// WriteVarBytes writes b prefixed by its length as a var-uint.
func (w *BinWriter) WriteVarBytes(b []byte) {
	w.WriteVarUint(uint64(len(b)))
	w.WriteLE(b)
}

// WriteString writes s as length-prefixed bytes.
func (w *BinWriter) WriteString(s string) {
	w.WriteVarBytes([]byte(s))
}

// byteReader is a minimal io.Reader over a fixed byte slice, used instead of
// bytes.Reader only to keep this package's stdlib surface explicit.
type byteReader struct {
	b []byte
	i int
}

func newByteReader(b []byte) *byteReader {
	return &byteReader{b: b}
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}
