// Package cmdlog implements sink.CommandLog on top of zap structured
// logging, for operators who want a human-readable trace of every
// dispatched command without standing up a separate replay store.
package cmdlog

import (
	"go.uber.org/zap"

	"github.com/xiubinzheng/lockstep-core/pkg/sink"
	"github.com/xiubinzheng/lockstep-core/pkg/wire"
)

// ZapLog emits one Info line per sink.CommandRecord.
type ZapLog struct {
	log *zap.Logger
}

// New builds a ZapLog writing through log.
func New(log *zap.Logger) *ZapLog {
	return &ZapLog{log: log.Named("cmdlog")}
}

// Record implements sink.CommandLog.
func (l *ZapLog) Record(rec sink.CommandRecord) {
	fields := []zap.Field{
		zap.Uint32("frame", rec.Frame),
		zap.Uint16("actor", rec.Actor),
		zap.Bool("flush", rec.Flush),
	}
	if rec.HasPosition {
		fields = append(fields, zap.Uint16("x", rec.PositionX), zap.Uint16("y", rec.PositionY))
	}
	if rec.HasValue {
		fields = append(fields, zap.Uint16("x", rec.Value))
	}
	if rec.Dest.Kind != wire.DestNone {
		fields = append(fields, zap.Uint16("dest", rec.Dest.Value), zap.Uint8("destKind", uint8(rec.Dest.Kind)))
	}
	l.log.Info(rec.Name, fields...)
}
