// Package unibus implements the PDP-11/70 Unibus I/O page: the dispatcher
// that decodes CPU-issued physical addresses in the top 4 KiB of address
// space, the peripheral controllers programmed through it, and the MMU
// register glue and global reset path that accompany them.
//
// The CPU instruction decoder and MMU address translation are collaborator
// contracts (the Memory interface below); this package only consumes them.
// Pending interrupts are queued in an interrupts.Queue and handed to the
// deliver callback passed to IoBus.Drain.
package unibus

import (
	"github.com/ravana69/unibus11/diskio"
	"github.com/ravana69/unibus11/interrupts"
)

// PhysAddr is a 22-bit physical address, as davecheney/pdp11's addr18
// models the narrower 18-bit Unibus address.
type PhysAddr uint32

// Memory is the physical-memory / Unibus-map / trap collaborator contract
// consumed by this package, per spec.md §6. It is a superset of
// diskio.Memory so an IoBus's Mem can be handed straight to a
// diskio.Engine.
type Memory interface {
	ReadWordPhysical(addr uint32) int32
	WriteWordPhysical(addr uint32, v uint16) int32
	WriteBytePhysical(addr uint32, v byte) int32
	MapUnibus(addr uint32) uint32
	Trap(vector uint16, code uint16) int32
	Panic()
	SetMMUMode(mode uint16)
}

// Console is the terminal-rendering collaborator: vt52Put/vt52Reset from
// spec.md §6. DL11 transmit and reset call it; it never calls back into
// this package except through Input, which is this package's own
// dl11_input entry point.
type Console interface {
	Put(unit int, ch byte)
	Reset(unit int)
}

// NullConsole discards everything written to it; used for TTY units a
// caller hasn't wired a real terminal to.
type NullConsole struct{}

func (NullConsole) Put(unit int, ch byte) {}
func (NullConsole) Reset(unit int)        {}

// IoBus owns every controller register file and the shared interrupt
// queue, replacing the source's mutable globals with a single value the
// owning CPU threads through by reference, per DESIGN NOTES §9.
type IoBus struct {
	Mem     Memory
	Console Console

	Interrupts *interrupts.Queue
	Engine     *diskio.Engine

	MMU  MMU
	UMap UnibusMap
	CPU  CPURegs

	RK  RK11
	RL  RL11
	RP  RP11
	TM  TM11
	PTR PTR11
	LP  LP11
	DL  [5]DL11
	KW  KW11

	// deferred holds zero-delay scheduler hooks queued by CSR writes that
	// must return before the work they kick off runs, per spec.md §4.3.1
	// and §5's "kickoff via a zero-delay task even for synchronous cache
	// hits" ordering guarantee.
	deferred []func()
}

// NewIoBus wires a fresh IoBus to mem and console and initializes every
// controller to its post-reset state.
func NewIoBus(mem Memory, console Console) *IoBus {
	if console == nil {
		console = NullConsole{}
	}
	b := &IoBus{
		Mem:        mem,
		Console:    console,
		Interrupts: interrupts.NewQueue(),
	}
	b.Engine = diskio.NewEngine(mem, diskio.NewFetcher(diskio.FileRangeReader{}))
	b.RK.bus = b
	b.RL.bus = b
	b.RP.bus = b
	b.TM.bus = b
	b.PTR.bus = b
	b.LP.bus = b
	for i := range b.DL {
		b.DL[i].bus = b
		b.DL[i].unit = i
	}
	b.KW.bus = b
	b.Reset()
	return b
}

// Defer queues fn to run on the next Drain, implementing the "dispatches
// new work via a zero-delay scheduler hook, not inline" rule so that a CSR
// write returns to its caller before the work it triggers begins.
func (b *IoBus) Defer(fn func()) {
	b.deferred = append(b.deferred, fn)
}

// Interrupt enqueues an interrupt request. delay ticks of 0 means eligible
// on the next Drain; a nil callback always fires.
func (b *IoBus) Interrupt(delay int, priority, vector uint16, unit int, callback func() bool) {
	b.Interrupts.Push(priority, vector, unit, delay, callback)
}

// CancelInterrupt drops any pending interrupt at vector, per spec.md §6's
// delay=-1,unit=-1 "cancel pending at this vector" contract.
func (b *IoBus) CancelInterrupt(vector uint16) {
	b.Interrupts.CancelVector(vector)
}

// Drain runs deferred work and resumes any completed block fetches, then
// delivers due interrupts to the CPU collaborator. The owning CPU loop
// calls this between instructions — the only points at which this
// package's state may change outside of a register access, per spec.md §5.
func (b *IoBus) Drain(deliver func(vector, priority uint16)) {
	deferred := b.deferred
	b.deferred = nil
	for _, fn := range deferred {
		fn()
	}

	b.Engine.Drain(b.driveMetas()...)
	b.KW.tick()

	for _, e := range b.Interrupts.Tick() {
		if e.Fire() && deliver != nil {
			deliver(e.Vector, e.Priority)
		}
	}
}

func (b *IoBus) driveMetas() []*diskio.DriveMeta {
	metas := make([]*diskio.DriveMeta, 0, 8+4+8+1+1)
	for i := range b.RK.units {
		metas = append(metas, b.RK.units[i].meta)
	}
	for i := range b.RL.units {
		metas = append(metas, b.RL.units[i].meta)
	}
	for i := range b.RP.units {
		metas = append(metas, b.RP.units[i].meta)
	}
	metas = append(metas, b.TM.meta)
	metas = append(metas, b.PTR.meta)
	return metas
}
