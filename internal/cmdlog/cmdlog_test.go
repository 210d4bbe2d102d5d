package cmdlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest/observer"

	"go.uber.org/zap"

	"github.com/xiubinzheng/lockstep-core/pkg/sink"
	"github.com/xiubinzheng/lockstep-core/pkg/wire"
)

func TestRecordLogsPositionAndDest(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := New(zap.New(core))

	l.Record(sink.CommandRecord{
		Frame:       42,
		Actor:       7,
		Name:        "Move",
		Flush:       true,
		PositionX:   10,
		PositionY:   20,
		HasPosition: true,
		Dest:        wire.UnitDest(99),
	})

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "Move", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, 42, fields["frame"])
	assert.EqualValues(t, 7, fields["actor"])
	assert.EqualValues(t, 10, fields["x"])
	assert.EqualValues(t, 99, fields["dest"])
}

func TestRecordLogsBareValue(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := New(zap.New(core))

	l.Record(sink.CommandRecord{Frame: 5, Actor: 3, Name: "Research", Value: 2, HasValue: true})

	fields := logs.All()[0].ContextMap()
	assert.EqualValues(t, 2, fields["x"])
	_, hasDest := fields["dest"]
	assert.False(t, hasDest)
}

func TestRecordOmitsPositionAndDestWhenAbsent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := New(zap.New(core))

	l.Record(sink.CommandRecord{Frame: 1, Actor: 2, Name: "Stop"})

	fields := logs.All()[0].ContextMap()
	_, hasX := fields["x"]
	_, hasDest := fields["dest"]
	assert.False(t, hasX)
	assert.False(t, hasDest)
}
