package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lio "github.com/xiubinzheng/lockstep-core/pkg/io"
)

func TestCommandMessageRoundTrip(t *testing.T) {
	opcodes := []Opcode{OpStop, OpMove, OpAttack, OpBuild, OpResearch, OpDemolish, OpSync, OpQuit, OpResend}
	units := []uint16{0, 1, 7, 0xFFFE, 0xFFFF}
	coords := []uint16{0, 1, 42, 0x7FFF, 0xFFFF}
	dests := []uint16{0, 17, NoDest}

	for _, op := range opcodes {
		for _, unit := range units {
			for _, xy := range coords {
				for _, dest := range dests {
					for _, flush := range []bool{false, true} {
						m := CommandMessage{
							Opcode:  op,
							Flush:   flush,
							FrameLo: 0x2A,
							Unit:    unit,
							X:       xy,
							Y:       xy,
							Dest:    dest,
						}
						w := lio.NewBufBinWriter()
						EncodeCommandMessage(w.BinWriter, m)
						require.NoError(t, w.Err)
						buf := w.Bytes()
						require.Len(t, buf, CommandMessageSize)

						r := lio.NewBinReaderFromBuf(buf)
						got := DecodeCommandMessage(r)
						require.NoError(t, r.Err)
						assert.Equal(t, m, got)
					}
				}
			}
		}
	}
}

func TestPacketSizeIsFixed(t *testing.T) {
	var p Packet
	buf := EncodePacket(p)
	assert.Len(t, buf, PacketSize)
	assert.Equal(t, 48, PacketSize)
}

func TestPacketRoundTrip(t *testing.T) {
	var p Packet
	for i := range p.Slots {
		p.Slots[i] = CommandMessage{Opcode: OpMove, Flush: i%2 == 0, FrameLo: uint8(i), Unit: uint16(i), X: 1, Y: 2, Dest: NoDest}
	}
	buf := EncodePacket(p)
	got, err := DecodePacket(buf)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestDecodePacketShort(t *testing.T) {
	_, err := DecodePacket(make([]byte, PacketSize-1))
	assert.ErrorIs(t, err, ErrShortPacket)
}

func TestInitMessageSizeIsFixed(t *testing.T) {
	var m InitMessage
	buf := EncodeInit(m)
	assert.Len(t, buf, InitMessageSize)
}

func TestInitMessageRoundTrip(t *testing.T) {
	m := InitMessage{
		Type:       OpInitHello,
		Version:    NetworkProtocolVersion,
		Lag:        10,
		Updates:    5,
		HostsCount: 2,
	}
	m.Hosts[0] = PeerAddress{Host: 0x7F000001, Port: 6660}
	m.Nums[0] = 1
	m.Nums[1] = -1

	buf := EncodeInit(m)
	got, err := DecodeInit(buf)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestDecodeInitShort(t *testing.T) {
	_, err := DecodeInit(make([]byte, InitMessageSize-1))
	assert.ErrorIs(t, err, ErrShortPacket)
}

// TestMoveCommandWireBytes pins the exact encoded bytes for
// Move(unit=7, x=42, y=17, flush=1) targeting frame 10.
func TestMoveCommandWireBytes(t *testing.T) {
	m := CommandMessage{
		Opcode:  OpMove,
		Flush:   true,
		FrameLo: 10,
		Unit:    7,
		X:       42,
		Y:       17,
		Dest:    NoDest,
	}
	w := lio.NewBufBinWriter()
	EncodeCommandMessage(w.BinWriter, m)
	require.NoError(t, w.Err)

	want := []byte{0x83, 0x0A, 0x00, 0x07, 0x00, 0x2A, 0x00, 0x11, 0xFF, 0xFF, 0x00, 0x00}
	assert.Equal(t, want, w.Bytes())
}

func TestChatMessageRoundTrip(t *testing.T) {
	m := ChatMessage{Opcode: OpChat, FrameLo: 5, Player: 2}
	copy(m.Text[:], "hello, wo")
	w := lio.NewBufBinWriter()
	EncodeChatMessage(w.BinWriter, m)
	require.NoError(t, w.Err)
	require.Len(t, w.Bytes(), CommandMessageSize)

	r := lio.NewBinReaderFromBuf(w.Bytes())
	got := DecodeChatMessage(r)
	require.NoError(t, r.Err)
	assert.Equal(t, m, got)
	assert.Equal(t, "hello, wo", got.ChatText())
}

func TestDestWireValue(t *testing.T) {
	assert.Equal(t, uint16(NoDest), NoDestValue.WireValue())
	assert.Equal(t, uint16(5), UnitDest(5).WireValue())
	assert.Equal(t, NoDestValue, DestFromWire(NoDest, DestUnit))
	assert.Equal(t, UnitDest(3), DestFromWire(3, DestUnit))
}
