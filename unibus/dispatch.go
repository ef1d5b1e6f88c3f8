package unibus

// wordDevice is the shape every register file in this package exposes:
// decode an I/O-page address within its own window, returning ok=false
// for anything outside it. RK11, RL11, RP11, TM11, PTR11, LP11, DL11,
// KW11, MMU and UnibusMap all satisfy it without declaring so.
type wordDevice interface {
	read16(addr PhysAddr) (uint16, bool)
	write16(addr PhysAddr, v uint16) bool
}

type deviceWindow struct {
	base, size PhysAddr
	dev        wordDevice
}

// windows lists every register file's address range, per spec.md §4.4's
// I/O page address table. Built fresh per access rather than cached,
// since a handful of linear-scan comparisons is cheap next to an actual
// bus transfer.
func (b *IoBus) windows() []deviceWindow {
	w := []deviceWindow{
		{0777400, 020, &b.RK},
		{0774400, 010, &b.RL},
		{0776700, 0100, &b.RP},
		{0772520, 014, &b.TM},
		{0777550, 004, &b.PTR},
		{0777514, 004, &b.LP},
		{0777560, 010, &b.DL[0]},
		{0777546, 002, &b.KW},
		{0772300, 0100, &b.MMU},
		{0772200, 0100, &b.MMU},
		{0777600, 0100, &b.MMU},
		{addrMMR0, 6, &b.MMU},
		{addrMMR3, 2, &b.MMU},
		{0017770200, 0200, &b.UMap},
	}
	for i := 1; i < len(b.DL); i++ {
		w = append(w, deviceWindow{dlExtraVectorBaseAddr(i), 010, &b.DL[i]})
	}
	return w
}

// dlExtraVectorBaseAddr returns the register base for DL11 extra line
// unit (1-4), spaced by 010 from 0776500, matching a standard DLV11-J
// bank.
func dlExtraVectorBaseAddr(unit int) PhysAddr {
	return 0776500 + PhysAddr(unit-1)*010
}

func (b *IoBus) route(addr PhysAddr) (wordDevice, bool) {
	for _, w := range b.windows() {
		if addr >= w.base && addr < w.base+w.size {
			return w.dev, true
		}
	}
	return nil, false
}

// busErrorCode is the CPU trap code for an odd-address word access, per
// spec.md §4.4.
const busErrorCode = 0212

// ReadWord reads a full word from the I/O page at addr, which must be
// word-aligned to memory semantics even though the Unibus only requires
// it for registers: an odd addr traps to the bus-error vector with
// busErrorCode, matching real PDP-11 behavior. It returns -1 on either a
// trap or an unmapped address (NXM).
func (b *IoBus) ReadWord(addr PhysAddr) int32 {
	if addr&1 != 0 {
		b.Mem.Trap(4, busErrorCode)
		return -1
	}
	if v, ok := b.aliasAccess(addr, -1); ok {
		return int32(v)
	}
	if v, ok := b.cpuRegAccess(addr, -1); ok {
		return int32(v)
	}
	if v, ok := b.dualSetAccess(addr, -1); ok {
		return int32(v)
	}
	if dev, ok := b.route(addr); ok {
		if v, ok2 := dev.read16(addr); ok2 {
			return int32(v)
		}
	}
	return -1
}

// WriteWord writes a full word to the I/O page at addr. Returns -1 on a
// trap or unmapped address, 0 on success.
func (b *IoBus) WriteWord(addr PhysAddr, v uint16) int32 {
	if addr&1 != 0 {
		b.Mem.Trap(4, busErrorCode)
		return -1
	}
	if _, ok := b.aliasAccess(addr, int32(v)); ok {
		return 0
	}
	if _, ok := b.cpuRegAccess(addr, int32(v)); ok {
		return 0
	}
	if _, ok := b.dualSetAccess(addr, int32(v)); ok {
		return 0
	}
	if dev, ok := b.route(addr); ok {
		if dev.write16(addr, v) {
			return 0
		}
	}
	return -1
}

// ReadByte reads a single byte, merged out of the word-wide register it
// belongs to: an odd addr selects the high byte, an even addr the low
// byte. Byte reads never trap on alignment — only word accesses do.
func (b *IoBus) ReadByte(addr PhysAddr) int32 {
	word := b.ReadWord(addr &^ 1)
	if word < 0 {
		return -1
	}
	if addr&1 != 0 {
		return (word >> 8) & 0xff
	}
	return word & 0xff
}

// WriteByte writes a single byte, merging it into the current value of
// the word-wide register it belongs to before writing the word back.
func (b *IoBus) WriteByte(addr PhysAddr, v byte) int32 {
	word := b.ReadWord(addr &^ 1)
	if word < 0 {
		word = 0
	}
	var merged uint16
	if addr&1 != 0 {
		merged = (uint16(word) &^ 0xff00) | uint16(v)<<8
	} else {
		merged = (uint16(word) &^ 0xff) | uint16(v)
	}
	return b.WriteWord(addr&^1, merged)
}
