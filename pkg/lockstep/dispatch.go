package lockstep

import (
	"go.uber.org/zap"

	lio "github.com/xiubinzheng/lockstep-core/pkg/io"
	"github.com/xiubinzheng/lockstep-core/pkg/queue"
	"github.com/xiubinzheng/lockstep-core/pkg/transport"
	"github.com/xiubinzheng/lockstep-core/pkg/wire"
)

// dispatchSlot decodes one 12-byte wire slot as either a CommandMessage or
// a ChatMessage (they overlay the same slot, tagged by opcode) and routes
// it to the matching handler.
func (e *Engine) dispatchSlot(slot []byte, src wire.PeerAddress) {
	op := wire.Opcode(slot[0] & 0x7F)
	if op.IsChat() {
		r := lio.NewBinReaderFromBuf(slot)
		chat := wire.DecodeChatMessage(r)
		if r.Err != nil {
			e.log.Debug("lockstep: dropping malformed chat slot", zap.Error(r.Err))
			return
		}
		e.dispatchChat(chat)
		return
	}
	r := lio.NewBinReaderFromBuf(slot)
	cmd := wire.DecodeCommandMessage(r)
	if r.Err != nil {
		e.log.Debug("lockstep: dropping malformed command slot", zap.Error(r.Err))
		return
	}
	e.dispatchCommand(cmd, src)
}

func (e *Engine) dispatchCommand(msg wire.CommandMessage, src wire.PeerAddress) {
	switch msg.Opcode {
	case wire.OpInitReply:
		// Late handshake residue; ignored in-game.
		return
	case wire.OpQuit:
		e.log.Info("lockstep: received quit", zap.String("from", transport.HostPortString(src)))
		e.sink.Quit()
		e.terminated.Store(true)
		return
	case wire.OpResend:
		e.handleResend(msg, src)
		return
	}

	target := queue.ReconstructFrame(e.sink.CurrentFrame(), msg.FrameLo)
	var player uint8
	if msg.Opcode == wire.OpSync {
		player = uint8(msg.X)
	} else {
		player = e.sink.PlayerOf(msg.Unit)
	}
	e.queue.InboxPut(target, player, msg)
}

func (e *Engine) dispatchChat(chat wire.ChatMessage) {
	switch chat.Opcode {
	case wire.OpChat:
		e.sink.ChatBegin(chat.ChatText())
	case wire.OpChatCont:
		e.sink.ChatContinue(chat.ChatText())
	}
}

// handleResend responds to a peer's request to re-deliver the command
// scheduled for a specific target frame. If we have no record of that
// frame anymore, the request is silently ignored.
func (e *Engine) handleResend(msg wire.CommandMessage, src wire.PeerAddress) {
	target := queue.ReconstructFrame(e.sink.CurrentFrame(), msg.FrameLo)
	entry, ok := e.queue.Output.FindByTargetFrame(target)
	if !ok {
		e.log.Debug("lockstep: resend requested for unknown frame", zap.Uint32("frame", target))
		return
	}
	var p wire.Packet
	p.Slots[0] = entry.Msg
	redundancy := e.queue.LatestN(wire.Dups - 1)
	copy(p.Slots[1:], redundancy)
	if err := e.transport.SendTo(src, wire.EncodePacket(p)); err != nil {
		e.log.Warn("lockstep: failed to serve resend", zap.Error(err))
	}
	if e.metrics != nil {
		e.metrics.RecordResendServed()
	}
}

// parseAndApply translates a committed CommandMessage into the matching
// CommandSink call. If the referenced unit is already destroyed, the
// action is skipped.
func (e *Engine) parseAndApply(player uint8, msg wire.CommandMessage) {
	unit := msg.Unit
	flush := msg.Flush

	if msg.Opcode != wire.OpSync && msg.Opcode != wire.OpQuit {
		if _, ok := e.sink.Unit(unit); !ok {
			return
		}
	}

	switch msg.Opcode {
	case wire.OpSync, wire.OpQuit:
		// No-op: Sync is filler, Quit is already handled at receive time.
	case wire.OpStop:
		e.sink.Stop(unit)
	case wire.OpStand:
		e.sink.StandGround(unit, flush)
	case wire.OpFollow:
		e.sink.Follow(unit, msg.Dest, flush)
	case wire.OpMove:
		e.sink.Move(unit, msg.X, msg.Y, flush)
	case wire.OpRepair:
		e.sink.Repair(unit, msg.X, msg.Y, wire.DestFromWire(msg.Dest, wire.DestUnit), flush)
	case wire.OpAttack:
		e.sink.Attack(unit, msg.X, msg.Y, wire.DestFromWire(msg.Dest, wire.DestUnit), flush)
	case wire.OpGround:
		e.sink.AttackGround(unit, msg.X, msg.Y, flush)
	case wire.OpPatrol:
		e.sink.Patrol(unit, msg.X, msg.Y, flush)
	case wire.OpBoard:
		e.sink.Board(unit, msg.Dest, flush)
	case wire.OpUnload:
		e.sink.Unload(unit, msg.X, msg.Y, wire.DestFromWire(msg.Dest, wire.DestUnit), flush)
	case wire.OpBuild:
		e.sink.Build(unit, msg.X, msg.Y, wire.DestFromWire(msg.Dest, wire.DestUnitType), flush)
	case wire.OpCancelBuild:
		e.sink.CancelBuild(unit, wire.DestFromWire(msg.Dest, wire.DestUnit))
	case wire.OpHarvest:
		e.sink.Harvest(unit, msg.X, msg.Y, flush)
	case wire.OpMine:
		e.sink.Mine(unit, msg.Dest, flush)
	case wire.OpHaul:
		e.sink.Haul(unit, msg.Dest, flush)
	case wire.OpReturn:
		e.sink.ReturnGoods(unit, flush)
	case wire.OpTrain:
		e.sink.Train(unit, wire.DestFromWire(msg.Dest, wire.DestUnitType), flush)
	case wire.OpCancelTrain:
		// The wire carries the training-queue slot in X for compatibility
		// with saved command logs, but the call itself always passes 0
		// per the spec table (CommandCancelTraining(unit, 0) upstream).
		e.sink.CancelTrain(unit, 0)
	case wire.OpUpgrade:
		e.sink.UpgradeTo(unit, wire.DestFromWire(msg.Dest, wire.DestUnitType), flush)
	case wire.OpCancelUpgrade:
		e.sink.CancelUpgrade(unit)
	case wire.OpResearch:
		e.sink.Research(unit, wire.DestFromWire(msg.X, wire.DestUpgrade), flush)
	case wire.OpCancelResearch:
		e.sink.CancelResearch(unit)
	case wire.OpDemolish:
		e.sink.Demolish(unit, msg.X, msg.Y, wire.DestFromWire(msg.Dest, wire.DestUnit), flush)
	default:
		e.log.Warn("lockstep: unknown opcode reached parseAndApply", zap.Uint8("opcode", uint8(msg.Opcode)))
	}
}
