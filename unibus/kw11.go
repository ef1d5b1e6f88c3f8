package unibus

import (
	"time"

	"github.com/ravana69/unibus11/interrupts"
)

// KW11 is the 50 Hz line-frequency clock of spec.md §4.3.8: a single
// done/IE register pair that raises a fixed-priority interrupt every
// 20ms of wall-clock time. Unlike the DMA-driven devices, its timing
// source is wall time rather than the transfer engine.
const (
	kwcsrDone = 1 << 7
	kwcsrIE   = 1 << 6

	kwTickInterval = 20 * time.Millisecond
	kwMaxDrift     = 30 * time.Second
)

// KW11 is the line-clock controller.
type KW11 struct {
	CSR uint16

	next time.Time

	bus *IoBus
}

func (k *KW11) read16(addr PhysAddr) (uint16, bool) {
	if addr&01 != 0 {
		return 0, false
	}
	return k.CSR, true
}

func (k *KW11) write16(addr PhysAddr, v uint16) bool {
	if addr&01 != 0 {
		return false
	}
	k.CSR = v &^ kwcsrDone
	return true
}

// tick is driven from IoBus.Drain every CPU-instruction cycle. It fires
// at most one interrupt per call, which is fine since Drain runs far
// more often than once per 20ms of real time.
func (k *KW11) tick() {
	now := time.Now()
	if k.next.IsZero() {
		k.next = now.Add(kwTickInterval)
		return
	}
	if now.Sub(k.next) > kwMaxDrift {
		// The emulator was stopped (debugger, host suspend) long enough
		// that catching up tick-for-tick would just storm interrupts;
		// resynchronize to now instead of replaying the backlog.
		k.next = now.Add(kwTickInterval)
		return
	}
	if now.Before(k.next) {
		return
	}
	k.next = k.next.Add(kwTickInterval)
	k.CSR |= kwcsrDone
	if k.CSR&kwcsrIE != 0 {
		k.bus.Interrupt(0, 6, interrupts.Clock, 0, nil)
	}
}

// reset restores KW11 to its documented post-RESET state, per spec.md §4.5.
func (k *KW11) reset() {
	k.bus.CancelInterrupt(interrupts.Clock)
	k.CSR = 0
	k.next = time.Time{}
}
