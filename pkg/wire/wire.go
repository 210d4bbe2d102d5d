// Package wire implements the fixed-layout byte encoding of the lockstep
// protocol's messages: the 12-byte CommandMessage/ChatMessage slot, the
// 48-byte Packet of four such slots, and the InitMessage handshake payload.
// All multi-byte integers are big-endian on the wire. See pkg/io for the
// underlying sticky-error reader/writer.
package wire

import (
	"errors"
	"fmt"

	lio "github.com/xiubinzheng/lockstep-core/pkg/io"
)

// Protocol-wide constants, frozen for the lifetime of a session.
const (
	// NetworkProtocolVersion is the fixed wire protocol version exchanged
	// during handshake; a mismatch is fatal.
	NetworkProtocolVersion = 1
	// MaxPlayers bounds the roster size.
	MaxPlayers = 16
	// Dups is the number of redundant command copies carried per packet.
	Dups = 4
	// InboxWindow is the size of the per-player inbox ring.
	InboxWindow = 256
	// DefaultPort is the default UDP port for a session's server role.
	DefaultPort = 6660
	// FallbackPort is tried if DefaultPort is unavailable.
	FallbackPort = 6661

	// NoDest is the wire sentinel for "no destination unit/type/upgrade".
	NoDest = 0xFFFF

	// CommandMessageSize is the fixed size in bytes of one wire slot.
	CommandMessageSize = 12
	// PacketSize is the fixed size in bytes of a Packet (Dups slots).
	PacketSize = Dups * CommandMessageSize
	// chatTextSize is the number of text payload bytes per Chat/ChatCont slot.
	chatTextSize = 9
)

// Opcode is the 7-bit tag identifying the action carried by a CommandMessage
// slot (or, for control opcodes, a protocol-level event).
type Opcode uint8

// Command opcodes. Values are part of the wire format and must not be
// renumbered.
const (
	OpStop Opcode = iota
	OpStand
	OpFollow
	OpMove
	OpRepair
	OpAttack
	OpGround
	OpPatrol
	OpBoard
	OpUnload
	OpBuild
	OpCancelBuild
	OpHarvest
	OpMine
	OpHaul
	OpReturn
	OpTrain
	OpCancelTrain
	OpUpgrade
	OpCancelUpgrade
	OpResearch
	OpCancelResearch
	OpDemolish

	// Control opcodes.
	OpSync
	OpQuit
	OpResend
	OpChat
	OpChatCont
	OpInitHello
	OpInitReply
	OpInitConfig
)

// opcodeFlushMask is the high bit of the wire opcode byte, carrying the
// flush (replace-pending-orders) flag for CommandMessage slots.
const opcodeFlushMask = 0x80
const opcodeTagMask = 0x7F

func (o Opcode) String() string {
	switch o {
	case OpStop:
		return "Stop"
	case OpStand:
		return "Stand"
	case OpFollow:
		return "Follow"
	case OpMove:
		return "Move"
	case OpRepair:
		return "Repair"
	case OpAttack:
		return "Attack"
	case OpGround:
		return "Ground"
	case OpPatrol:
		return "Patrol"
	case OpBoard:
		return "Board"
	case OpUnload:
		return "Unload"
	case OpBuild:
		return "Build"
	case OpCancelBuild:
		return "CancelBuild"
	case OpHarvest:
		return "Harvest"
	case OpMine:
		return "Mine"
	case OpHaul:
		return "Haul"
	case OpReturn:
		return "Return"
	case OpTrain:
		return "Train"
	case OpCancelTrain:
		return "CancelTrain"
	case OpUpgrade:
		return "Upgrade"
	case OpCancelUpgrade:
		return "CancelUpgrade"
	case OpResearch:
		return "Research"
	case OpCancelResearch:
		return "CancelResearch"
	case OpDemolish:
		return "Demolish"
	case OpSync:
		return "Sync"
	case OpQuit:
		return "Quit"
	case OpResend:
		return "Resend"
	case OpChat:
		return "Chat"
	case OpChatCont:
		return "ChatCont"
	case OpInitHello:
		return "InitHello"
	case OpInitReply:
		return "InitReply"
	case OpInitConfig:
		return "InitConfig"
	default:
		return fmt.Sprintf("Opcode(%d)", uint8(o))
	}
}

// IsChat reports whether o is one of the chat fragment opcodes.
func (o Opcode) IsChat() bool {
	return o == OpChat || o == OpChatCont
}

// Decode/encode errors. These are per-datagram anomalies: the datagram is
// dropped and the engine continues.
var (
	ErrShortPacket   = errors.New("wire: buffer too short")
	ErrUnknownOpcode = errors.New("wire: unknown opcode")
)

// CommandMessage is one 12-byte command slot. The named fields account for
// 10 of the 12 bytes; the remaining 2 are reserved/zero-padding needed to
// reach the slot's fixed 12-byte size.
type CommandMessage struct {
	Opcode  Opcode
	Flush   bool
	FrameLo uint8
	Unit    uint16
	X       uint16
	Y       uint16
	Dest    uint16
}

// cmdReservedBytes is the zero-padding after Dest needed to bring a
// CommandMessage slot up to CommandMessageSize.
const cmdReservedBytes = CommandMessageSize - (1 + 1 + 2 + 2 + 2 + 2)

// EncodeCommandMessage writes m's 12-byte layout to w.
func EncodeCommandMessage(w *lio.BinWriter, m CommandMessage) {
	b := byte(m.Opcode) & opcodeTagMask
	if m.Flush {
		b |= opcodeFlushMask
	}
	w.WriteB(b)
	w.WriteB(m.FrameLo)
	w.WriteBE(m.Unit)
	w.WriteBE(m.X)
	w.WriteBE(m.Y)
	w.WriteBE(m.Dest)
	for i := 0; i < cmdReservedBytes; i++ {
		w.WriteB(0)
	}
}

// DecodeCommandMessage reads a 12-byte command slot from r.
func DecodeCommandMessage(r *lio.BinReader) CommandMessage {
	b := r.ReadB()
	var m CommandMessage
	m.Opcode = Opcode(b & opcodeTagMask)
	m.Flush = b&opcodeFlushMask != 0
	m.FrameLo = r.ReadB()
	r.ReadBE(&m.Unit)
	r.ReadBE(&m.X)
	r.ReadBE(&m.Y)
	r.ReadBE(&m.Dest)
	for i := 0; i < cmdReservedBytes; i++ {
		r.ReadB()
	}
	return m
}

// ChatMessage overlays the same 12-byte slot as CommandMessage. The opcode
// tag is read/written at the same byte0 position as CommandMessage's opcode
// and frame_lo at byte1 regardless of which logical struct a slot
// represents, so dispatch can always discriminate on those two bytes
// before picking a decoder. This is opcode-first, player-after-frame_lo —
// deliberately not frame_lo-first, which is how a chat struct's fields are
// sometimes listed when described independently of the command struct it
// shares a slot with. Every sender on the wire writes through the unified,
// opcode-first layout, so a receiving peer never actually needs to know
// which logical message it has until it has read that first byte.
type ChatMessage struct {
	Opcode  Opcode // OpChat or OpChatCont
	FrameLo uint8
	Player  uint8
	Text    [chatTextSize]byte
}

// EncodeChatMessage writes m's 12-byte layout to w.
func EncodeChatMessage(w *lio.BinWriter, m ChatMessage) {
	w.WriteB(byte(m.Opcode) & opcodeTagMask)
	w.WriteB(m.FrameLo)
	w.WriteB(m.Player)
	w.WriteLE(m.Text)
}

// DecodeChatMessage reads a 12-byte chat slot from r.
func DecodeChatMessage(r *lio.BinReader) ChatMessage {
	var m ChatMessage
	m.Opcode = Opcode(r.ReadB() & opcodeTagMask)
	m.FrameLo = r.ReadB()
	m.Player = r.ReadB()
	r.ReadLE(&m.Text)
	return m
}

// ChatText returns the non-nul-padded text carried by m.
func (m ChatMessage) ChatText() string {
	n := 0
	for n < len(m.Text) && m.Text[n] != 0 {
		n++
	}
	return string(m.Text[:n])
}

// Packet is exactly Dups consecutive CommandMessage slots (48 bytes),
// providing built-in redundancy against single-datagram loss.
type Packet struct {
	Slots [Dups]CommandMessage
}

// EncodePacket serializes p to exactly PacketSize bytes.
func EncodePacket(p Packet) []byte {
	w := lio.NewBufBinWriter()
	for _, s := range p.Slots {
		EncodeCommandMessage(w.BinWriter, s)
	}
	return w.Bytes()
}

// DecodePacket parses exactly PacketSize bytes into a Packet.
func DecodePacket(buf []byte) (Packet, error) {
	if len(buf) < PacketSize {
		return Packet{}, ErrShortPacket
	}
	var p Packet
	r := lio.NewBinReaderFromBuf(buf[:PacketSize])
	for i := range p.Slots {
		p.Slots[i] = DecodeCommandMessage(r)
	}
	if r.Err != nil {
		return Packet{}, fmt.Errorf("wire: decode packet: %w", r.Err)
	}
	return p, nil
}

// PeerAddress is a wire-carried (host, port) tuple in network byte order.
type PeerAddress struct {
	Host uint32
	Port uint16
}

// InitMessage is the handshake payload exchanged as InitHello / InitReply /
// InitConfig.
type InitMessage struct {
	Type       Opcode
	Version    int32
	Lag        int32
	Updates    int32
	HostsCount int8
	Hosts      [MaxPlayers]PeerAddress
	Nums       [MaxPlayers]int8
}

// InitMessageSize is the constant encoded size of an InitMessage.
const InitMessageSize = 1 + 4 + 4 + 4 + 1 + MaxPlayers*6 + MaxPlayers*1

// EncodeInit serializes m to exactly InitMessageSize bytes.
func EncodeInit(m InitMessage) []byte {
	w := lio.NewBufBinWriter()
	w.WriteB(byte(m.Type))
	w.WriteBE(m.Version)
	w.WriteBE(m.Lag)
	w.WriteBE(m.Updates)
	w.WriteB(byte(m.HostsCount))
	for _, h := range m.Hosts {
		w.WriteBE(h.Host)
		w.WriteBE(h.Port)
	}
	for _, n := range m.Nums {
		w.WriteB(byte(n))
	}
	return w.Bytes()
}

// DecodeInit parses exactly InitMessageSize bytes into an InitMessage.
// It only validates framing (buffer length); semantic checks such as
// protocol version agreement belong to the handshake layer, per the error
// taxonomy split between decode errors and configuration errors.
func DecodeInit(buf []byte) (InitMessage, error) {
	if len(buf) < InitMessageSize {
		return InitMessage{}, ErrShortPacket
	}
	var m InitMessage
	r := lio.NewBinReaderFromBuf(buf[:InitMessageSize])
	m.Type = Opcode(r.ReadB())
	r.ReadBE(&m.Version)
	r.ReadBE(&m.Lag)
	r.ReadBE(&m.Updates)
	m.HostsCount = int8(r.ReadB())
	for i := range m.Hosts {
		r.ReadBE(&m.Hosts[i].Host)
		r.ReadBE(&m.Hosts[i].Port)
	}
	for i := range m.Nums {
		m.Nums[i] = int8(r.ReadB())
	}
	if r.Err != nil {
		return InitMessage{}, fmt.Errorf("wire: decode init: %w", r.Err)
	}
	return m, nil
}
