package main

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xiubinzheng/lockstep-core/pkg/sink"
	"github.com/xiubinzheng/lockstep-core/pkg/wire"
)

// demoSink is a no-op sink.CommandSink for manual/integration testing of the
// wire protocol: every command method just logs its arguments instead of
// mutating any simulation state. CurrentFrame is driven by an external
// ticker rather than a real simulation clock.
type demoSink struct {
	log     *zap.Logger
	frame   uint32
	players uint8
	this    uint8
}

func newDemoSink(log *zap.Logger, players, this uint8) *demoSink {
	return &demoSink{log: log.Named("sim"), players: players, this: this}
}

func (s *demoSink) advance() { atomic.AddUint32(&s.frame, 1) }

func (s *demoSink) CurrentFrame() uint32 { return atomic.LoadUint32(&s.frame) }
func (s *demoSink) NumPlayers() uint8    { return s.players }
func (s *demoSink) ThisPlayer() uint8    { return s.this }
func (s *demoSink) PlayerOf(unit uint16) uint8 { return uint8(unit % uint16(s.players)) }

func (s *demoSink) Unit(slot uint16) (sink.UnitRef, bool) {
	return demoUnitRef(s.PlayerOf(slot)), true
}

type demoUnitRef uint8

func (r demoUnitRef) Owner() uint8 { return uint8(r) }

func (s *demoSink) Stop(unit uint16) { s.log.Debug("Stop", zap.Uint16("unit", unit)) }
func (s *demoSink) StandGround(unit uint16, flush bool) {
	s.log.Debug("StandGround", zap.Uint16("unit", unit), zap.Bool("flush", flush))
}
func (s *demoSink) Follow(unit, dest uint16, flush bool) {
	s.log.Debug("Follow", zap.Uint16("unit", unit), zap.Uint16("dest", dest))
}
func (s *demoSink) Move(unit uint16, x, y uint16, flush bool) {
	s.log.Debug("Move", zap.Uint16("unit", unit), zap.Uint16("x", x), zap.Uint16("y", y), zap.Bool("flush", flush))
}
func (s *demoSink) Repair(unit uint16, x, y uint16, dest wire.Dest, flush bool) {
	s.log.Debug("Repair", zap.Uint16("unit", unit))
}
func (s *demoSink) Attack(unit uint16, x, y uint16, dest wire.Dest, flush bool) {
	s.log.Debug("Attack", zap.Uint16("unit", unit))
}
func (s *demoSink) AttackGround(unit uint16, x, y uint16, flush bool) {
	s.log.Debug("AttackGround", zap.Uint16("unit", unit))
}
func (s *demoSink) Patrol(unit uint16, x, y uint16, flush bool) {
	s.log.Debug("Patrol", zap.Uint16("unit", unit))
}
func (s *demoSink) Board(unit, dest uint16, flush bool) {
	s.log.Debug("Board", zap.Uint16("unit", unit), zap.Uint16("dest", dest))
}
func (s *demoSink) Unload(unit uint16, x, y uint16, dest wire.Dest, flush bool) {
	s.log.Debug("Unload", zap.Uint16("unit", unit))
}
func (s *demoSink) Build(unit uint16, x, y uint16, unitType wire.Dest, flush bool) {
	s.log.Debug("Build", zap.Uint16("unit", unit))
}
func (s *demoSink) CancelBuild(unit uint16, worker wire.Dest) {
	s.log.Debug("CancelBuild", zap.Uint16("unit", unit))
}
func (s *demoSink) Harvest(unit uint16, x, y uint16, flush bool) {
	s.log.Debug("Harvest", zap.Uint16("unit", unit))
}
func (s *demoSink) Mine(unit, dest uint16, flush bool) {
	s.log.Debug("Mine", zap.Uint16("unit", unit), zap.Uint16("dest", dest))
}
func (s *demoSink) Haul(unit, dest uint16, flush bool) {
	s.log.Debug("Haul", zap.Uint16("unit", unit), zap.Uint16("dest", dest))
}
func (s *demoSink) ReturnGoods(unit uint16, flush bool) {
	s.log.Debug("ReturnGoods", zap.Uint16("unit", unit))
}
func (s *demoSink) Train(unit uint16, unitType wire.Dest, flush bool) {
	s.log.Debug("Train", zap.Uint16("unit", unit))
}
func (s *demoSink) CancelTrain(unit, slot uint16) {
	s.log.Debug("CancelTrain", zap.Uint16("unit", unit), zap.Uint16("slot", slot))
}
func (s *demoSink) UpgradeTo(unit uint16, unitType wire.Dest, flush bool) {
	s.log.Debug("UpgradeTo", zap.Uint16("unit", unit))
}
func (s *demoSink) CancelUpgrade(unit uint16) { s.log.Debug("CancelUpgrade", zap.Uint16("unit", unit)) }
func (s *demoSink) Research(unit uint16, upgrade wire.Dest, flush bool) {
	s.log.Debug("Research", zap.Uint16("unit", unit))
}
func (s *demoSink) CancelResearch(unit uint16) {
	s.log.Debug("CancelResearch", zap.Uint16("unit", unit))
}
func (s *demoSink) Demolish(unit uint16, x, y uint16, dest wire.Dest, flush bool) {
	s.log.Debug("Demolish", zap.Uint16("unit", unit))
}

func (s *demoSink) ChatBegin(text string)    { s.log.Info("chat", zap.String("text", text)) }
func (s *demoSink) ChatContinue(text string) { s.log.Info("chat(cont)", zap.String("text", text)) }
func (s *demoSink) Quit()                    { s.log.Info("quit received") }
