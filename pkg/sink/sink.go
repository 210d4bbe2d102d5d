// Package sink declares the capability interfaces the lockstep core
// requires from its host: the simulation (CommandSink) and an optional
// human-readable command journal (CommandLog).
//
// An abstract collaborator interface defined by the consumer, not the
// producer.
package sink

import "github.com/xiubinzheng/lockstep-core/pkg/wire"

// UnitRef is an opaque handle to a simulation unit, returned by
// CommandSink.Unit. The per-command methods take the raw uint16 unit slot,
// not a UnitRef.
type UnitRef interface {
	// Owner returns the player index that owns this unit.
	Owner() uint8
}

// CommandSink is the capability set the simulation must supply so the
// lockstep engine can execute a committed frame's commands. One method per
// command kind, plus chat, quit, and read-only accessors.
type CommandSink interface {
	Stop(unit uint16)
	StandGround(unit uint16, flush bool)
	Follow(unit uint16, destUnit uint16, flush bool)
	Move(unit uint16, x, y uint16, flush bool)
	Repair(unit uint16, x, y uint16, destUnit wire.Dest, flush bool)
	Attack(unit uint16, x, y uint16, dest wire.Dest, flush bool)
	AttackGround(unit uint16, x, y uint16, flush bool)
	Patrol(unit uint16, x, y uint16, flush bool)
	Board(unit uint16, destUnit uint16, flush bool)
	Unload(unit uint16, x, y uint16, dest wire.Dest, flush bool)
	Build(unit uint16, x, y uint16, unitType wire.Dest, flush bool)
	CancelBuild(unit uint16, worker wire.Dest)
	Harvest(unit uint16, x, y uint16, flush bool)
	Mine(unit uint16, destUnit uint16, flush bool)
	Haul(unit uint16, destUnit uint16, flush bool)
	ReturnGoods(unit uint16, flush bool)
	Train(unit uint16, unitType wire.Dest, flush bool)
	CancelTrain(unit uint16, slot uint16)
	UpgradeTo(unit uint16, unitType wire.Dest, flush bool)
	CancelUpgrade(unit uint16)
	Research(unit uint16, upgrade wire.Dest, flush bool)
	CancelResearch(unit uint16)
	Demolish(unit uint16, x, y uint16, dest wire.Dest, flush bool)

	ChatBegin(text string)
	ChatContinue(text string)
	Quit()

	// Unit resolves a unit slot to a reference, or false if the unit is
	// gone (already destroyed) — a skip, not an error.
	Unit(slot uint16) (UnitRef, bool)
	CurrentFrame() uint32
	NumPlayers() uint8
	ThisPlayer() uint8
	PlayerOf(unit uint16) uint8
}

// CommandLog receives one human-readable record per dispatched command.
// The core calls it unconditionally; the implementation decides whether to
// persist.
//
// Actor and Dest are logged as separate fields: Actor is always the
// commanding unit, Dest is the destination unit/type/upgrade reference when
// the command has one.
type CommandLog interface {
	Record(entry CommandRecord)
}

// CommandRecord is one log entry for a dispatched command. Dest's zero
// value (wire.DestNone) means the command carried no destination
// reference.
type CommandRecord struct {
	Frame       uint32
	Actor       uint16
	Name        string
	Flush       bool
	PositionX   uint16
	PositionY   uint16
	HasPosition bool
	// Value and HasValue cover the bare-value case of the original's
	// three-valued position field: a wire index (research upgrade, cancel
	// train slot) that rides alone in x, with no accompanying y.
	Value    uint16
	HasValue bool
	Dest     wire.Dest
}
