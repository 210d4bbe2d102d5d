package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiubinzheng/lockstep-core/pkg/wire"
)

func TestInputFIFOOrder(t *testing.T) {
	var in Input
	in.Enqueue(wire.CommandMessage{Unit: 1})
	in.Enqueue(wire.CommandMessage{Unit: 2})
	assert.Equal(t, 2, in.Len())

	m, ok := in.Dequeue()
	require.True(t, ok)
	assert.Equal(t, uint16(1), m.Unit)

	m, ok = in.Dequeue()
	require.True(t, ok)
	assert.Equal(t, uint16(2), m.Unit)

	_, ok = in.Dequeue()
	assert.False(t, ok)
}

func TestScheduleNextAssignsTargetFrame(t *testing.T) {
	model := NewModel(0, 256, 4)
	model.EnqueueInput(wire.CommandMessage{Opcode: wire.OpMove, Unit: 7})
	entry := model.ScheduleNext(0, 10)
	assert.Equal(t, uint32(10), entry.TargetFrame)
	assert.Equal(t, uint8(10), entry.Msg.FrameLo)
	assert.Equal(t, wire.OpMove, entry.Msg.Opcode)

	head, ok := model.Output.Head()
	require.True(t, ok)
	assert.Equal(t, entry, head)
}

func TestScheduleNextSynthesizesSyncWhenEmpty(t *testing.T) {
	model := NewModel(3, 256, 4)
	entry := model.ScheduleNext(100, 10)
	assert.Equal(t, wire.OpSync, entry.Msg.Opcode)
	assert.Equal(t, uint16(3), entry.Msg.X)
	assert.Equal(t, uint32(110), entry.TargetFrame)
}

func TestDropStaleNeverRemovesLiveEntry(t *testing.T) {
	var out Output
	out.Push(OutputEntry{TargetFrame: 100})
	out.Push(OutputEntry{TargetFrame: 110})
	out.DropStale(115, 10)
	// 100+10=110 < 115 -> dropped; 110+10=120 >= 115 -> kept.
	require.Equal(t, 1, out.Len())
	head, ok := out.Head()
	require.True(t, ok)
	assert.Equal(t, uint32(110), head.TargetFrame)
}

func TestLatestNPadsByRepeatingOldest(t *testing.T) {
	var out Output
	out.Push(OutputEntry{Msg: wire.CommandMessage{Unit: 1}})
	got := out.LatestN(4)
	require.Len(t, got, 4)
	for _, m := range got {
		assert.Equal(t, uint16(1), m.Unit)
	}
}

func TestLatestNOldestToNewestOrder(t *testing.T) {
	var out Output
	out.Push(OutputEntry{Msg: wire.CommandMessage{Unit: 1}})
	out.Push(OutputEntry{Msg: wire.CommandMessage{Unit: 2}})
	out.Push(OutputEntry{Msg: wire.CommandMessage{Unit: 3}})
	got := out.LatestN(2)
	require.Len(t, got, 2)
	assert.Equal(t, uint16(2), got[0].Unit)
	assert.Equal(t, uint16(3), got[1].Unit)
}

func TestNewestFirstOrder(t *testing.T) {
	var out Output
	out.Push(OutputEntry{TargetFrame: 1})
	out.Push(OutputEntry{TargetFrame: 2})
	out.Push(OutputEntry{TargetFrame: 3})
	got := out.NewestFirst(2)
	require.Len(t, got, 2)
	assert.Equal(t, uint32(3), got[0].TargetFrame)
	assert.Equal(t, uint32(2), got[1].TargetFrame)
}

func TestFindByTargetFrame(t *testing.T) {
	var out Output
	out.Push(OutputEntry{TargetFrame: 5, Msg: wire.CommandMessage{Unit: 9}})
	got, ok := out.FindByTargetFrame(5)
	require.True(t, ok)
	assert.Equal(t, uint16(9), got.Msg.Unit)

	_, ok = out.FindByTargetFrame(6)
	assert.False(t, ok)
}

func TestInboxPutGet(t *testing.T) {
	model := NewModel(0, 256, 4)
	model.InboxPut(42, 2, wire.CommandMessage{Unit: 5})
	slot, ok := model.InboxGet(42, 2)
	require.True(t, ok)
	assert.Equal(t, uint16(5), slot.Msg.Unit)

	_, ok = model.InboxGet(43, 2)
	assert.False(t, ok)
}

func TestInboxStaleWraparoundNotFilled(t *testing.T) {
	inbox := NewInbox(256, 4)
	inbox.Put(10, 0, wire.CommandMessage{})
	_, ok := inbox.Get(10+256, 0)
	assert.False(t, ok, "a slot reused by wraparound must not report filled for the stale frame")
}

func TestReconstructFrameRoundTrip(t *testing.T) {
	current := uint32(1000)
	for target := current - 127; target <= current+128; target++ {
		lo := uint8(target & 0xFF)
		got := ReconstructFrame(current, lo)
		assert.Equal(t, target, got, "current=%d lo=%d", current, lo)
	}
}
