// Package lockstep implements the frame scheduler: drains inbound packets
// into the inbox, detects sync stalls, schedules local commands, executes
// the committed frame on the simulation's CommandSink, and triggers
// resends. It also exposes the SendFacade, one entry point per command
// kind.
//
// Grounded on pkg/network/server.go's handleMessage switch-on-command-type
// dispatch (same shape as ParseAndApply's opcode switch) and its run()/
// runProto() split between connection management and protocol cadence,
// mirrored here as OnTick being the cadence-gated half of the per-tick
// sequence DrainNetwork -> OnTick -> SyncCheck -> (optionally) Recover.
package lockstep

import (
	"fmt"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/xiubinzheng/lockstep-core/pkg/queue"
	"github.com/xiubinzheng/lockstep-core/pkg/roster"
	"github.com/xiubinzheng/lockstep-core/pkg/sink"
	"github.com/xiubinzheng/lockstep-core/pkg/transport"
	"github.com/xiubinzheng/lockstep-core/pkg/wire"
)

// State is the engine's position in its run state machine.
type State int

// States. Handshaking is implicit: an Engine is only ever constructed once
// a Roster has been sealed, so it starts at Running{in_sync}.
const (
	StateRunning State = iota
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateTerminated:
		return "Terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config configures an Engine. Lag must already be quantized to a multiple
// of Updates (see handshake.QuantizeLag); the engine does not re-quantize.
type Config struct {
	Roster    roster.Roster
	Sink      sink.CommandSink
	Transport transport.DatagramTransport
	Log       *zap.Logger

	// CommandLog is optional; nil disables command journaling.
	CommandLog sink.CommandLog
	// Metrics is optional; nil disables metric emission.
	Metrics MetricsRecorder

	Lag         uint32
	Updates     uint32
	InboxWindow uint32

	// Networked is false for a solo game: SendFacade calls bypass the wire
	// entirely and invoke CommandSink directly.
	Networked bool

	// QuitRetransmits is how many times a broadcast Quit packet is sent.
	// A single unacknowledged broadcast is enough for the protocol, but a
	// host may opt into resending it for extra loss tolerance. Defaults to
	// 1 if zero.
	QuitRetransmits int
}

// MetricsRecorder is the subset of internal/metrics.Metrics the engine
// calls into; declared here so lockstep does not import internal/metrics
// directly (internal packages cannot be imported outside their module
// tree's own ancestor, but this also keeps the dependency direction clean:
// internal/metrics depends on nothing, lockstep depends on this interface).
type MetricsRecorder interface {
	RecordPeers(n int)
	RecordStall()
	RecordRecover()
	RecordResendSent()
	RecordResendServed()
}

// Engine is the lockstep frame scheduler owned by the host game loop. It
// holds every piece of per-session mutable state (queues, sync flag,
// socket) as ordinary fields — no module-level globals.
type Engine struct {
	log       *zap.Logger
	roster    roster.Roster
	queue     *queue.Model
	sink      sink.CommandSink
	transport transport.DatagramTransport
	cmdLog    sink.CommandLog
	metrics   MetricsRecorder

	lag             uint32
	updates         uint32
	networked       bool
	quitRetransmits int

	inSync          *atomic.Bool
	terminated      *atomic.Bool
	recoverDeadline uint32
	resentThisFrame bool
}

// NewEngine builds an Engine from a sealed roster and its collaborators.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Log == nil {
		return nil, fmt.Errorf("lockstep: logger is a required parameter")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("lockstep: sink is a required parameter")
	}
	if cfg.Networked && cfg.Transport == nil {
		return nil, fmt.Errorf("lockstep: transport is required for a networked engine")
	}
	if cfg.Updates == 0 {
		return nil, fmt.Errorf("lockstep: updates must be > 0")
	}
	window := cfg.InboxWindow
	if window == 0 {
		window = wire.InboxWindow
	}
	quitRetransmits := cfg.QuitRetransmits
	if quitRetransmits == 0 {
		quitRetransmits = 1
	}

	e := &Engine{
		log:             cfg.Log,
		roster:          cfg.Roster,
		queue:           queue.NewModel(cfg.Roster.ThisPlayer(), window, wire.MaxPlayers),
		sink:            cfg.Sink,
		transport:       cfg.Transport,
		cmdLog:          cfg.CommandLog,
		metrics:         cfg.Metrics,
		lag:             cfg.Lag,
		updates:         cfg.Updates,
		networked:       cfg.Networked,
		quitRetransmits: quitRetransmits,
		inSync:          atomic.NewBool(true),
		terminated:      atomic.NewBool(false),
	}
	if e.metrics != nil {
		e.metrics.RecordPeers(int(cfg.Roster.NumPlayers()))
	}
	e.seedWarmup()
	return e, nil
}

// seedWarmup fills every remote player's inbox slot for the commit frames
// that precede Lag with a no-op Sync entry. No one ever schedules a real
// command targeting those frames (the first real ScheduleNext, at frame 0,
// targets frame Lag), so without this every session would report a stall
// from frame 0 until Lag elapses.
func (e *Engine) seedWarmup() {
	for f := uint32(0); f < e.lag; f += e.updates {
		for _, entry := range e.roster.Entries() {
			if entry.PlayerIndex == e.roster.ThisPlayer() {
				continue
			}
			e.queue.InboxPut(f, entry.PlayerIndex, wire.CommandMessage{Opcode: wire.OpSync, X: uint16(entry.PlayerIndex), Dest: wire.NoDest})
		}
	}
}

// State reports the engine's current position in the state machine.
func (e *Engine) State() State {
	if e.terminated.Load() {
		return StateTerminated
	}
	return StateRunning
}

// InSync reports whether every peer has delivered its scheduled command
// for the next commit frame.
func (e *Engine) InSync() bool {
	return e.inSync.Load()
}

// DrainNetwork decodes and dispatches every packet the transport currently
// has ready, polling with a zero timeout so it never waits for new traffic.
// Step 1 of the per-tick sequence.
func (e *Engine) DrainNetwork() {
	if !e.networked {
		return
	}
	for {
		res := e.transport.PollReady(0)
		if res.Error != nil {
			e.log.Debug("lockstep: poll error", zap.Error(res.Error))
			return
		}
		if !res.Ready {
			return
		}
		buf, src, err := e.transport.RecvFrom()
		if err != nil {
			e.log.Debug("lockstep: recv error", zap.Error(err))
			continue
		}
		if len(buf) < wire.PacketSize {
			e.log.Debug("lockstep: dropping short packet", zap.Int("len", len(buf)))
			continue
		}
		for i := 0; i < wire.Dups; i++ {
			slot := buf[i*wire.CommandMessageSize : (i+1)*wire.CommandMessageSize]
			e.dispatchSlot(slot, src)
		}
	}
}

// OnTick is the main cadence: a no-op unless the simulation's current
// frame is a multiple of Updates. Step 2 of the per-tick sequence.
func (e *Engine) OnTick() {
	frame := e.sink.CurrentFrame()
	if frame%e.updates != 0 {
		return
	}
	if !e.commitFrame(frame) {
		e.enterStall(frame)
		return
	}
	e.queue.ScheduleNext(frame, e.lag)
	if e.networked {
		e.transmitPacket()
	}
}

// commitFrame executes every player's committed command for frame, in
// canonical player-index order. It is two-phase: first every remote
// player's inbox slot for frame is checked, and only once all of them are
// filled does it apply anything. A partial commit (some players applied,
// then an abort on a later player's missing slot) would double-execute
// the already-applied players' commands when the host retries OnTick at
// the same frame after DrainNetwork refills the inbox, violating spec
// §3 invariant 3 ("executed... exactly once").
func (e *Engine) commitFrame(frame uint32) bool {
	entries := e.roster.Entries()
	remote := make([]wire.CommandMessage, len(entries))
	for i, entry := range entries {
		p := entry.PlayerIndex
		if p == e.roster.ThisPlayer() {
			continue
		}
		slot, ok := e.queue.InboxGet(frame, p)
		if !ok {
			return false
		}
		remote[i] = slot.Msg
	}

	e.queue.DropStale(frame, e.lag)
	var localMsg wire.CommandMessage
	hasLocal := false
	// Scan newest-to-oldest; by construction at most one entry targets
	// this frame.
	for _, out := range e.queue.Output.NewestFirst(e.queue.Output.Len()) {
		if out.TargetFrame == frame {
			localMsg, hasLocal = out.Msg, true
			break
		}
	}

	for i, entry := range entries {
		p := entry.PlayerIndex
		if p == e.roster.ThisPlayer() {
			if hasLocal {
				e.parseAndApply(p, localMsg)
			}
			continue
		}
		e.parseAndApply(p, remote[i])
	}
	return true
}

// enterStall marks the engine out-of-sync for the given frame, the one
// commitFrame just failed to fill. Mirrors SyncCheck's forward-looking
// transition bookkeeping so Recover can fire immediately instead of
// waiting for the next SyncCheck to notice the same gap.
func (e *Engine) enterStall(frame uint32) {
	wasInSync := e.inSync.Swap(false)
	e.recoverDeadline = frame
	e.resentThisFrame = false
	if wasInSync {
		e.log.Info("lockstep: entering stall", zap.Uint32("frame", frame))
		if e.metrics != nil {
			e.metrics.RecordStall()
		}
	}
}

// SyncCheck sets/clears the in-sync flag by checking whether every remote
// player's inbox slot for the next commit frame is already filled. Step 3.
func (e *Engine) SyncCheck() {
	if !e.networked {
		return
	}
	frame := e.sink.CurrentFrame()
	if frame%e.updates != 0 {
		return
	}
	next := frame + e.updates
	inSync := true
	for _, entry := range e.roster.Entries() {
		if entry.PlayerIndex == e.roster.ThisPlayer() {
			continue
		}
		if _, ok := e.queue.InboxGet(next, entry.PlayerIndex); !ok {
			inSync = false
			break
		}
	}
	if !inSync {
		e.enterStall(next)
		return
	}
	if wasInSync := e.inSync.Swap(true); !wasInSync {
		e.log.Info("lockstep: recovered from stall", zap.Uint32("frame", frame))
		if e.metrics != nil {
			e.metrics.RecordRecover()
		}
	}
}

// Recover is invoked at sub-frame (video-interrupt) granularity while out
// of sync; it issues at most one Resend request per stalled commit frame.
// Step 4, called only while !InSync().
func (e *Engine) Recover() {
	if !e.networked || e.terminated.Load() || e.inSync.Load() || e.resentThisFrame {
		return
	}
	resend := wire.CommandMessage{
		Opcode:  wire.OpResend,
		FrameLo: uint8(e.recoverDeadline & 0xFF),
		Dest:    wire.NoDest,
	}
	var p wire.Packet
	p.Slots[0] = resend
	newest := e.queue.Output.NewestFirst(wire.Dups - 1)
	for i := range p.Slots[1:] {
		if i < len(newest) {
			p.Slots[i+1] = newest[i].Msg
		} else if len(newest) > 0 {
			p.Slots[i+1] = newest[len(newest)-1].Msg
		}
	}
	e.broadcast(wire.EncodePacket(p))
	e.resentThisFrame = true
	if e.metrics != nil {
		e.metrics.RecordResendSent()
	}
	e.log.Debug("lockstep: sent resend request", zap.Uint32("frame", e.recoverDeadline))
}

// transmitPacket builds a Packet from the Dups most recent Output entries
// and broadcasts it to every remote peer.
func (e *Engine) transmitPacket() {
	var p wire.Packet
	copy(p.Slots[:], e.queue.LatestN(wire.Dups))
	e.broadcast(wire.EncodePacket(p))
}

func (e *Engine) broadcast(buf []byte) {
	for _, entry := range e.roster.Remotes() {
		if err := e.transport.SendTo(entry.Peer, buf); err != nil {
			e.log.Warn("lockstep: send failed", zap.String("peer", transport.HostPortString(entry.Peer)), zap.Error(err))
		}
	}
}

func (e *Engine) recordLog(rec sink.CommandRecord) {
	if e.cmdLog == nil {
		return
	}
	rec.Frame = e.sink.CurrentFrame()
	e.cmdLog.Record(rec)
}
