package io

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// badRW mocks io.Reader and io.Writer, always failing.
type badRW struct{}

func (w *badRW) Write(p []byte) (int, error) {
	return 0, errors.New("it always fails")
}

func (w *badRW) Read(p []byte) (int, error) {
	return w.Write(p)
}

func TestWriteLE(t *testing.T) {
	var (
		val     uint32 = 0xdeadbeef
		readval uint32
		bin     = []byte{0xef, 0xbe, 0xad, 0xde}
	)
	bw := NewBufBinWriter()
	bw.WriteLE(val)
	assert.Nil(t, bw.Err)
	assert.Equal(t, bin, bw.Bytes())

	br := NewBinReaderFromBuf(bin)
	br.ReadLE(&readval)
	assert.Nil(t, br.Err)
	assert.Equal(t, val, readval)
}

func TestWriteBE(t *testing.T) {
	var (
		val     uint32 = 0xdeadbeef
		readval uint32
		bin     = []byte{0xde, 0xad, 0xbe, 0xef}
	)
	bw := NewBufBinWriter()
	bw.WriteBE(val)
	assert.Nil(t, bw.Err)
	assert.Equal(t, bin, bw.Bytes())

	br := NewBinReaderFromBuf(bin)
	br.ReadBE(&readval)
	assert.Nil(t, br.Err)
	assert.Equal(t, val, readval)
}

func TestBufBinWriterLen(t *testing.T) {
	bw := NewBufBinWriter()
	bw.WriteB(0xde)
	require.Equal(t, 1, bw.Len())
}

func TestWriterErrHandling(t *testing.T) {
	bw := NewBinWriterFromIO(&badRW{})
	bw.WriteLE(uint32(0))
	assert.NotNil(t, bw.Err)
	// subsequent calls must not panic and must preserve the error.
	bw.WriteLE(uint32(0))
	bw.WriteBE(uint32(0))
	bw.WriteVarUint(0)
	bw.WriteVarBytes([]byte{0x55, 0xaa})
	bw.WriteString("lockstep")
	assert.NotNil(t, bw.Err)
}

func TestReaderErrHandling(t *testing.T) {
	var (
		i     uint32 = 0xdeadbeef
		iorig        = i
	)
	br := NewBinReaderFromIO(&badRW{})
	br.ReadLE(&i)
	assert.NotNil(t, br.Err)
	assert.Equal(t, iorig, i)

	br.ReadLE(&i)
	br.ReadBE(&i)
	assert.Equal(t, iorig, i)
	assert.Equal(t, uint64(0), br.ReadVarUint())
	assert.Equal(t, []byte{}, br.ReadVarBytes())
	assert.Equal(t, "", br.ReadString())
	assert.NotNil(t, br.Err)
}

func TestBufBinWriterErr(t *testing.T) {
	bw := NewBufBinWriter()
	bw.WriteLE(uint32(0))
	assert.Nil(t, bw.Err)
	bw.Err = errors.New("oopsie")
	assert.Nil(t, bw.Bytes())
}

func TestBufBinWriterReset(t *testing.T) {
	bw := NewBufBinWriter()
	for i := 0; i < 3; i++ {
		bw.WriteLE(uint32(i))
		assert.Nil(t, bw.Err)
		_ = bw.Bytes()
		bw.Reset()
		assert.Nil(t, bw.Err)
		assert.Equal(t, 0, bw.Len())
	}
}

func TestVarUintRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 0xfc, 0xfd, 0xffff, 0x10000, 0xffffffff, 0x100000000, 1 << 40} {
		bw := NewBufBinWriter()
		bw.WriteVarUint(v)
		require.Nil(t, bw.Err)
		br := NewBinReaderFromBuf(bw.Bytes())
		got := br.ReadVarUint()
		require.Nil(t, br.Err)
		require.Equal(t, v, got)
	}
}
