package lockstep

import (
	lio "github.com/xiubinzheng/lockstep-core/pkg/io"
	"github.com/xiubinzheng/lockstep-core/pkg/sink"
	"github.com/xiubinzheng/lockstep-core/pkg/wire"
)

// enqueue schedules msg for the next commit frame when networked, or
// applies it immediately against the local CommandSink otherwise. Solo
// play never touches the Input/Output queues or the wire at all.
func (e *Engine) enqueue(msg wire.CommandMessage) {
	if e.networked {
		e.queue.EnqueueInput(msg)
		return
	}
	e.parseAndApply(e.roster.ThisPlayer(), msg)
}

// Stop issues a Stop command for unit.
func (e *Engine) Stop(unit uint16) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "Stop"})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpStop, Unit: unit, Dest: wire.NoDest})
}

// StandGround issues a StandGround command for unit.
func (e *Engine) StandGround(unit uint16, flush bool) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "StandGround", Flush: flush})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpStand, Flush: flush, Unit: unit, Dest: wire.NoDest})
}

// Follow issues a Follow command for unit, targeting destUnit.
func (e *Engine) Follow(unit uint16, destUnit uint16, flush bool) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "Follow", Flush: flush, Dest: wire.UnitDest(destUnit)})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpFollow, Flush: flush, Unit: unit, Dest: destUnit})
}

// Move issues a Move command for unit to (x, y).
func (e *Engine) Move(unit uint16, x, y uint16, flush bool) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "Move", Flush: flush, PositionX: x, PositionY: y, HasPosition: true})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpMove, Flush: flush, Unit: unit, X: x, Y: y, Dest: wire.NoDest})
}

// Repair issues a Repair command for unit at (x, y), targeting destUnit
// (wire.NoDestValue if the target is a location rather than a unit).
func (e *Engine) Repair(unit uint16, x, y uint16, destUnit wire.Dest, flush bool) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "Repair", Flush: flush, PositionX: x, PositionY: y, HasPosition: true, Dest: destUnit})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpRepair, Flush: flush, Unit: unit, X: x, Y: y, Dest: destUnit.WireValue()})
}

// Attack issues an Attack command for unit at (x, y), optionally targeting
// dest.
func (e *Engine) Attack(unit uint16, x, y uint16, dest wire.Dest, flush bool) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "Attack", Flush: flush, PositionX: x, PositionY: y, HasPosition: true, Dest: dest})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpAttack, Flush: flush, Unit: unit, X: x, Y: y, Dest: dest.WireValue()})
}

// AttackGround issues an AttackGround command for unit at (x, y).
func (e *Engine) AttackGround(unit uint16, x, y uint16, flush bool) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "AttackGround", Flush: flush, PositionX: x, PositionY: y, HasPosition: true})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpGround, Flush: flush, Unit: unit, X: x, Y: y, Dest: wire.NoDest})
}

// Patrol issues a Patrol command for unit between its current position and
// (x, y).
func (e *Engine) Patrol(unit uint16, x, y uint16, flush bool) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "Patrol", Flush: flush, PositionX: x, PositionY: y, HasPosition: true})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpPatrol, Flush: flush, Unit: unit, X: x, Y: y, Dest: wire.NoDest})
}

// Board issues a Board command for unit, targeting destUnit's cargo hold.
func (e *Engine) Board(unit uint16, destUnit uint16, flush bool) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "Board", Flush: flush, Dest: wire.UnitDest(destUnit)})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpBoard, Flush: flush, Unit: unit, Dest: destUnit})
}

// Unload issues an Unload command for unit at (x, y), optionally targeting
// a single passenger.
func (e *Engine) Unload(unit uint16, x, y uint16, dest wire.Dest, flush bool) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "Unload", Flush: flush, PositionX: x, PositionY: y, HasPosition: true, Dest: dest})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpUnload, Flush: flush, Unit: unit, X: x, Y: y, Dest: dest.WireValue()})
}

// Build issues a Build command for unit at (x, y) of the given unitType.
func (e *Engine) Build(unit uint16, x, y uint16, unitType wire.Dest, flush bool) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "Build", Flush: flush, PositionX: x, PositionY: y, HasPosition: true, Dest: unitType})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpBuild, Flush: flush, Unit: unit, X: x, Y: y, Dest: unitType.WireValue()})
}

// CancelBuild cancels a construction order for unit, where worker is the
// builder assigned to it (if any).
func (e *Engine) CancelBuild(unit uint16, worker wire.Dest) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "CancelBuild", Dest: worker})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpCancelBuild, Unit: unit, Dest: worker.WireValue()})
}

// Harvest issues a Harvest command for unit at (x, y).
func (e *Engine) Harvest(unit uint16, x, y uint16, flush bool) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "Harvest", Flush: flush, PositionX: x, PositionY: y, HasPosition: true})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpHarvest, Flush: flush, Unit: unit, X: x, Y: y, Dest: wire.NoDest})
}

// Mine issues a Mine command for unit, targeting destUnit's resource node.
func (e *Engine) Mine(unit uint16, destUnit uint16, flush bool) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "Mine", Flush: flush, Dest: wire.UnitDest(destUnit)})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpMine, Flush: flush, Unit: unit, Dest: destUnit})
}

// Haul issues a Haul command for unit, targeting destUnit's drop-off point.
func (e *Engine) Haul(unit uint16, destUnit uint16, flush bool) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "Haul", Flush: flush, Dest: wire.UnitDest(destUnit)})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpHaul, Flush: flush, Unit: unit, Dest: destUnit})
}

// ReturnGoods issues a ReturnGoods command for unit.
func (e *Engine) ReturnGoods(unit uint16, flush bool) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "ReturnGoods", Flush: flush})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpReturn, Flush: flush, Unit: unit, Dest: wire.NoDest})
}

// Train issues a Train command for unit of the given unitType.
func (e *Engine) Train(unit uint16, unitType wire.Dest, flush bool) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "Train", Flush: flush, Dest: unitType})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpTrain, Flush: flush, Unit: unit, Dest: unitType.WireValue()})
}

// CancelTrain cancels the training order in unit's queue slot. slot is
// carried in X on the wire (x is overloaded for research and cancel-train
// per spec §9) for compatibility with saved command logs, even though the
// call on the receiving side always passes 0 (see parseAndApply).
func (e *Engine) CancelTrain(unit uint16, slot uint16) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "CancelTrain", Value: slot, HasValue: true})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpCancelTrain, Unit: unit, X: slot, Dest: wire.NoDest})
}

// UpgradeTo issues an UpgradeTo command for unit, targeting unitType.
func (e *Engine) UpgradeTo(unit uint16, unitType wire.Dest, flush bool) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "UpgradeTo", Flush: flush, Dest: unitType})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpUpgrade, Flush: flush, Unit: unit, Dest: unitType.WireValue()})
}

// CancelUpgrade cancels unit's in-progress upgrade.
func (e *Engine) CancelUpgrade(unit uint16) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "CancelUpgrade"})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpCancelUpgrade, Unit: unit, Dest: wire.NoDest})
}

// Research issues a Research command for unit, targeting upgrade. upgrade's
// wire value is carried in X, not Dest (x is overloaded for research and
// cancel-train per spec §9), matching the original's
// NetworkSendCommand(MessageCommandResearch, unit, what-Upgrades, 0, ...).
func (e *Engine) Research(unit uint16, upgrade wire.Dest, flush bool) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "Research", Flush: flush, Value: upgrade.WireValue(), HasValue: true})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpResearch, Flush: flush, Unit: unit, X: upgrade.WireValue(), Dest: wire.NoDest})
}

// CancelResearch cancels unit's in-progress research.
func (e *Engine) CancelResearch(unit uint16) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "CancelResearch"})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpCancelResearch, Unit: unit, Dest: wire.NoDest})
}

// Demolish issues a Demolish command for unit at (x, y), optionally
// targeting dest.
func (e *Engine) Demolish(unit uint16, x, y uint16, dest wire.Dest, flush bool) {
	e.recordLog(sink.CommandRecord{Actor: unit, Name: "Demolish", Flush: flush, PositionX: x, PositionY: y, HasPosition: true, Dest: dest})
	e.enqueue(wire.CommandMessage{Opcode: wire.OpDemolish, Flush: flush, Unit: unit, X: x, Y: y, Dest: dest.WireValue()})
}

// chatChunkSize is the number of text bytes each Chat/ChatCont wire slot
// carries.
const chatChunkSize = 9

// chatChunks splits text into chatChunkSize-byte fragments, the last
// padded with zero bytes.
func chatChunks(text string) [][chatChunkSize]byte {
	raw := []byte(text)
	n := (len(raw) + chatChunkSize - 1) / chatChunkSize
	if n == 0 {
		n = 1
	}
	out := make([][chatChunkSize]byte, n)
	for i := range out {
		start := i * chatChunkSize
		end := start + chatChunkSize
		if end > len(raw) {
			end = len(raw)
		}
		copy(out[i][:], raw[start:end])
	}
	return out
}

// Chat broadcasts text as one or more fragments: the first tagged OpChat,
// any remainder tagged OpChatCont. Bypasses the Input/Output scheduling
// queue entirely since chat carries no target_frame.
func (e *Engine) Chat(text string) {
	for i, chunk := range chatChunks(text) {
		op := wire.OpChat
		if i > 0 {
			op = wire.OpChatCont
		}
		msg := wire.ChatMessage{Opcode: op, Player: e.roster.ThisPlayer(), Text: chunk}
		if !e.networked {
			if op == wire.OpChat {
				e.sink.ChatBegin(msg.ChatText())
			} else {
				e.sink.ChatContinue(msg.ChatText())
			}
			continue
		}
		e.sendChatPacket(msg)
	}
}

// sendChatPacket wraps a single chat fragment as slot 0 of a 48-byte
// packet, filling the remaining redundancy slots from the most recent
// Output entries, and broadcasts it immediately. Built by hand rather than
// through wire.Packet/EncodePacket, which only knows the CommandMessage
// shape: slot 0 here is a ChatMessage overlay, not a CommandMessage.
func (e *Engine) sendChatPacket(chat wire.ChatMessage) {
	w := lio.NewBufBinWriter()
	wire.EncodeChatMessage(w.BinWriter, chat)
	for _, m := range e.queue.LatestN(wire.Dups - 1) {
		wire.EncodeCommandMessage(w.BinWriter, m)
	}
	e.broadcast(w.Bytes())
}

// Quit broadcasts a Quit notification QuitRetransmits times and terminates
// the local engine. No acknowledgement is awaited.
func (e *Engine) Quit() {
	e.recordLog(sink.CommandRecord{Name: "Quit"})
	if !e.networked {
		e.sink.Quit()
		e.terminated.Store(true)
		return
	}
	msg := wire.CommandMessage{Opcode: wire.OpQuit, Dest: wire.NoDest}
	var p wire.Packet
	p.Slots[0] = msg
	redundancy := e.queue.LatestN(wire.Dups - 1)
	copy(p.Slots[1:], redundancy)
	buf := wire.EncodePacket(p)
	for i := 0; i < e.quitRetransmits; i++ {
		e.broadcast(buf)
	}
	e.sink.Quit()
	e.terminated.Store(true)
}
