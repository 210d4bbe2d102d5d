package queue

import "github.com/xiubinzheng/lockstep-core/pkg/wire"

// Model composes Input, Output and Inbox into the per-engine queue state
// exposing one method per named operation.
type Model struct {
	Input  Input
	Output Output
	Inbox  *Inbox

	thisPlayer uint8
}

// NewModel builds an empty Model for the given local player index.
func NewModel(thisPlayer uint8, window uint32, maxPlayers int) *Model {
	return &Model{Inbox: NewInbox(window, maxPlayers), thisPlayer: thisPlayer}
}

// EnqueueInput appends a locally produced command, not yet assigned a
// target frame.
func (m *Model) EnqueueInput(msg wire.CommandMessage) {
	m.Input.Enqueue(msg)
}

// ScheduleNext pops the oldest queued input (if any) or synthesizes a Sync
// filler carrying x=thisPlayer, assigns target_frame = currentFrame+lag,
// and pushes the scheduled entry to Output. Returns the entry that was
// scheduled.
func (m *Model) ScheduleNext(currentFrame uint32, lag uint32) OutputEntry {
	msg, ok := m.Input.Dequeue()
	if !ok {
		msg = wire.CommandMessage{Opcode: wire.OpSync, X: uint16(m.thisPlayer), Dest: wire.NoDest}
	}
	target := currentFrame + lag
	msg.FrameLo = uint8(target & 0xFF)
	entry := OutputEntry{TargetFrame: target, Msg: msg}
	m.Output.Push(entry)
	return entry
}

// DropStale discards Output entries that can no longer be resent: those
// whose target frame plus lag is behind currentFrame.
func (m *Model) DropStale(currentFrame uint32, lag uint32) {
	m.Output.DropStale(currentFrame, lag)
}

// LatestN returns the most recent n Output entries, oldest-to-newest, for
// building an outbound packet's redundancy slots ("latest_n").
func (m *Model) LatestN(n int) []wire.CommandMessage {
	return m.Output.LatestN(n)
}

// InboxPut records a remote command scheduled for targetFrame by player.
func (m *Model) InboxPut(targetFrame uint32, player uint8, msg wire.CommandMessage) {
	m.Inbox.Put(targetFrame, player, msg)
}

// InboxGet reads back the slot for (targetFrame, player); ok reports
// whether it is filled for that exact frame.
func (m *Model) InboxGet(targetFrame uint32, player uint8) (InboxSlot, bool) {
	return m.Inbox.Get(targetFrame, player)
}
