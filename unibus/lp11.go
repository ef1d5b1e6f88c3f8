package unibus

import "github.com/ravana69/unibus11/interrupts"

// LP11 is the line printer of spec.md §4.3.6: a single output-only
// character device. Control codes below 012, and 015 (carriage return),
// are filtered — the real LP11 driver strips them before they reach the
// platen.
const (
	lpcsErr  = 1 << 15
	lpcsDone = 1 << 7
	lpcsIE   = 1 << 6
)

// LP11 is the line printer controller.
type LP11 struct {
	LPCS, LPBUF uint16

	bus *IoBus
}

func (l *LP11) read16(addr PhysAddr) (uint16, bool) {
	switch addr & 02 {
	case 000:
		return l.LPCS, true
	case 002:
		return l.LPBUF, true
	default:
		return 0, false
	}
}

func (l *LP11) write16(addr PhysAddr, v uint16) bool {
	switch addr & 02 {
	case 000:
		l.LPCS = (v &^ (lpcsErr | lpcsDone)) | (l.LPCS & (lpcsErr | lpcsDone))
	case 002:
		l.LPBUF = v & 0377
		l.print(byte(l.LPBUF))
	default:
		return false
	}
	return true
}

func (l *LP11) print(ch byte) {
	l.LPCS &^= lpcsDone
	if ch >= 012 && ch != 015 {
		l.bus.Console.Put(0, ch)
	}
	// The done interrupt is fired on a short delay, with eligibility
	// (IE) re-checked when it fires rather than when the byte was
	// latched, matching spec.md §4.3.6's preserved done/IE coupling.
	l.bus.Interrupt(1, 4, interrupts.LP, 0, func() bool {
		l.LPCS |= lpcsDone
		return l.LPCS&lpcsIE != 0
	})
}

// reset restores LP11 to its documented post-RESET state, per spec.md §4.5.
func (l *LP11) reset() {
	l.bus.CancelInterrupt(interrupts.LP)
	l.LPCS = lpcsDone
	l.LPBUF = 0
}
