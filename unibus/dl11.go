package unibus

import "github.com/ravana69/unibus11/interrupts"

// DL11 is the asynchronous serial line of spec.md §4.3.7, replicated for
// 5 units (the console plus 4 extra lines). Unit 0 uses the fixed
// console vectors; units 1-4 use the additional-line vector block
// starting at 0300, spaced by 010 per line, matching the real DL11
// multiplexer's vector assignment.
const (
	dlcsrRcvrDone = 1 << 7
	dlcsrRcvrIE   = 1 << 6
	dlcsrXmitRdy  = 1 << 7
	dlcsrXmitIE   = 1 << 6

	dlExtraVectorBase = 0300
)

// DL11 is one asynchronous serial line controller.
type DL11 struct {
	RCSR, RBUF, XCSR, XBUF uint16

	unit int
	bus  *IoBus
}

func (d *DL11) rcvrVector() uint16 {
	if d.unit == 0 {
		return interrupts.TTYIn
	}
	return dlExtraVectorBase + uint16(d.unit-1)*010
}

func (d *DL11) xmitVector() uint16 {
	if d.unit == 0 {
		return interrupts.TTYOut
	}
	return dlExtraVectorBase + uint16(d.unit-1)*010 + 4
}

func (d *DL11) read16(addr PhysAddr) (uint16, bool) {
	switch addr & 06 {
	case 000:
		return d.RCSR, true
	case 002:
		d.RCSR &^= dlcsrRcvrDone
		return d.RBUF, true
	case 004:
		return d.XCSR, true
	case 006:
		return d.XBUF, true
	default:
		return 0, false
	}
}

func (d *DL11) write16(addr PhysAddr, v uint16) bool {
	switch addr & 06 {
	case 000:
		d.RCSR = (v &^ dlcsrRcvrDone) | (d.RCSR & dlcsrRcvrDone)
	case 004:
		d.XCSR = (v &^ dlcsrXmitRdy) | (d.XCSR & dlcsrXmitRdy)
	case 006:
		d.XBUF = v & 0377
		d.transmit(byte(d.XBUF))
	default:
		return false
	}
	return true
}

// transmit filters the byte the way the real DL11 driver's output side
// does: only codes 8 (backspace) through 126 reach the terminal; codes
// below 8 and DEL (127) and above are dropped.
func (d *DL11) transmit(ch byte) {
	d.XCSR &^= dlcsrXmitRdy
	if ch >= 8 && ch < 127 {
		d.bus.Console.Put(d.unit, ch)
	}
	d.bus.Interrupt(1, 4, d.xmitVector(), d.unit, func() bool {
		d.XCSR |= dlcsrXmitRdy
		return d.XCSR&dlcsrXmitIE != 0
	})
}

// Input delivers one received byte from the outside world (a real
// terminal, a network pty) into the receiver buffer. It reports
// consumed=false, without disturbing RBUF, when the previous byte has
// not yet been read by the program — the caller should retry once RCSR
// reports ready again.
func (d *DL11) Input(ch byte) (consumed bool) {
	if d.RCSR&dlcsrRcvrDone != 0 {
		return false
	}
	d.RBUF = uint16(ch)
	d.RCSR |= dlcsrRcvrDone
	if d.RCSR&dlcsrRcvrIE != 0 {
		d.bus.Interrupt(0, 4, d.rcvrVector(), d.unit, nil)
	}
	return true
}

// reset restores the line to its documented post-RESET state, per
// spec.md §4.5: the transmitter starts ready, the receiver starts empty.
func (d *DL11) reset() {
	d.bus.CancelInterrupt(d.rcvrVector())
	d.bus.CancelInterrupt(d.xmitVector())
	d.RCSR, d.RBUF = 0, 0
	d.XCSR, d.XBUF = dlcsrXmitRdy, 0
}
