package unibus

import (
	"github.com/ravana69/unibus11/diskio"
	"github.com/ravana69/unibus11/interrupts"
)

// TM11 drives a single SIMH .tap-format tape image, per spec.md §4.3.4.
// A .tap file is a sequence of 32-bit little-endian record-length markers
// bracketing each record's data (padded to even length), with the
// reserved lengths 0 marking a tape mark and 0xffffffff marking EOM.
const (
	tmcsErr      = 1 << 15
	tmcsPE       = 1 << 14 // parity error; this model pins it set after reset
	tmcsBOT      = 1 << 13
	tmcsSelRem   = 1 << 11
	tmcsNXM      = 1 << 5
	tmcsIE       = 1 << 6
	tmcsDone     = 1 << 7
	tmcsFuncMask = 0xe // bits 1-3
	tmcsGo       = 1 << 0

	// MTS (tape status) bits, separate from MTC/TMCS per spec.md §4.3.4.
	mtsRdy     = 1 << 0
	mtsOnline  = 1 << 2
	mtsPresent = 1 << 5
	mtsBOT     = 1 << 6
	mtsEOF     = 1 << 7

	tmTapeMark = 0
	tmEOM      = 0xffffffff

	tmerEOF = 1 << 0 // supplement: latched in the companion status word
)

// TM11 is the single-drive magtape controller of spec.md §4.3.4.
type TM11 struct {
	TMER, TMCS, MTS, TMBRC, TMBA, TMDT uint16

	meta     *diskio.DriveMeta
	position int64 // byte offset of the record-length marker at the tape head
	bot      bool

	bus *IoBus
}

// Mount attaches url as the tape image.
func (t *TM11) Mount(url string) {
	t.meta = diskio.NewDriveMeta(0, url, true)
	t.bot = true
	t.syncBOT()
}

// syncBOT mirrors t.bot into both TMCS and MTS, the two registers that
// carry a BOT bit per the real TM11 register file.
func (t *TM11) syncBOT() {
	if t.bot {
		t.TMCS |= tmcsBOT
		t.MTS |= mtsBOT
	} else {
		t.TMCS &^= tmcsBOT
		t.MTS &^= mtsBOT
	}
}

func (t *TM11) read16(addr PhysAddr) (uint16, bool) {
	switch addr & 017 {
	case 000:
		return t.TMCS &^ tmcsGo, true
	case 002:
		return t.TMBRC, true
	case 004:
		return t.TMBA, true
	case 006:
		return t.TMDT, true
	case 010:
		return t.TMER, true
	case 012:
		return t.MTS, true
	default:
		return 0, false
	}
}

func (t *TM11) write16(addr PhysAddr, v uint16) bool {
	switch addr & 017 {
	case 000:
		doneBefore := t.TMCS&tmcsDone != 0
		var ro uint16 = tmcsErr | tmcsPE | tmcsBOT | tmcsDone
		t.TMCS = (v &^ ro) | (t.TMCS & ro)
		if v&tmcsGo != 0 && doneBefore {
			t.bus.Defer(t.step)
		}
	case 002:
		t.TMBRC = v
	case 004:
		t.TMBA = v
	default:
		return false
	}
	return true
}

func (t *TM11) notReady() { t.TMCS &^= tmcsDone }

func (t *TM11) ready() {
	t.TMCS |= tmcsDone
	t.TMCS &^= tmcsGo
}

func (t *TM11) raise(errBit uint16) {
	t.TMER |= errBit
	t.TMCS |= tmcsErr
	t.ready()
	if t.TMCS&tmcsIE != 0 {
		t.bus.Interrupt(0, 5, interrupts.TM, 0, nil)
	}
}

func (t *TM11) step() {
	if t.TMCS&tmcsGo == 0 {
		return
	}
	if t.meta == nil {
		t.raise(tmerEOF)
		return
	}
	fn := (t.TMCS & tmcsFuncMask) >> 1
	switch fn {
	case 0: // off-line
		t.ready()
	case 1: // read
		t.readRecord()
	case 2: // write, not modeled — treated as write-protected
		t.raise(tmerEOF)
	case 3: // write end-of-file
		t.ready()
	case 4: // space forward
		t.space(1)
	case 5: // space reverse
		t.space(-1)
	case 6: // write-IRG, not modeled: completes immediately
		t.ready()
	case 7: // rewind
		t.position = 0
		t.bot = true
		t.syncBOT()
		t.ready()
	default:
		t.bus.Mem.Panic()
	}
}

// space skips one record in the given direction by first measuring its
// length via OpTapeLen, then advancing position past it (or before it,
// in reverse). A tape mark ends the skip with EOF set in MTS.
func (t *TM11) space(direction int) {
	t.notReady()
	t.bot = false
	t.syncBOT()
	t.meta.PostProcess = func(status int, meta *diskio.DriveMeta, position int64, address uint32, count int) {
		t.spaceDone(direction, status, address)
	}
	pos := t.position
	if direction < 0 {
		pos -= 4
		if pos < 0 {
			pos = 0
		}
	}
	t.bus.Engine.Start(diskio.OpTapeLen, t.meta, pos, 0, 4)
}

// isTapeMark reports whether a record-length marker denotes a tape mark
// or end-of-medium: zero, or the sign bit (bit 31) set.
func isTapeMark(length uint32) bool {
	return length == tmTapeMark || length&0x80000000 != 0
}

func (t *TM11) spaceDone(direction int, status int, length uint32) {
	if status != diskio.OK {
		t.raise(tmerEOF)
		return
	}
	if isTapeMark(length) {
		t.MTS |= mtsEOF
		if direction > 0 {
			t.position += 2
		} else {
			t.position -= 2
			if t.position <= 0 {
				t.position = 0
				t.bot = true
				t.syncBOT()
			}
		}
		t.ready()
		return
	}
	recordLen := int(length)
	advance := int64(8 + recordLen + recordLen%2)
	if direction > 0 {
		t.position += advance
	} else {
		t.position -= advance
		if t.position <= 0 {
			t.position = 0
			t.bot = true
			t.syncBOT()
		}
	}
	t.ready()
	if t.TMCS&tmcsIE != 0 {
		t.bus.Interrupt(0, 5, interrupts.TM, 0, nil)
	}
}

func (t *TM11) readRecord() {
	t.notReady()
	t.bot = false
	t.syncBOT()
	t.meta.PostProcess = t.readDone
	t.bus.Engine.Start(diskio.OpTapeLen, t.meta, t.position, 0, 4)
}

func (t *TM11) readDone(status int, meta *diskio.DriveMeta, position int64, address uint32, count int) {
	if status != diskio.OK {
		t.raise(tmerEOF)
		return
	}
	if isTapeMark(address) {
		t.MTS |= mtsEOF
		t.position += 2
		t.ready()
		if t.TMCS&tmcsIE != 0 {
			t.bus.Interrupt(0, 5, interrupts.TM, 0, nil)
		}
		return
	}
	recordLen := int(address)

	want := (0x10000 - int(t.TMBRC)) & 0xffff
	n := recordLen
	if n > want {
		t.TMCS |= tmcsErr // record-length-exceeded: truncate and flag
		n = want
	}

	dest := uint32(t.TMBA)
	t.meta.PostProcess = func(status int, meta *diskio.DriveMeta, pos int64, addr uint32, cnt int) {
		t.transferDone(status, recordLen, cnt, addr)
	}
	t.bus.Engine.Start(diskio.OpRead, t.meta, t.position+4, dest, n)
}

func (t *TM11) transferDone(status int, recordLen, count int, address uint32) {
	if status != diskio.OK {
		t.raise(tmerEOF)
		return
	}
	t.TMBA = uint16(address & 0xffff)
	t.TMBRC = uint16((0x10000 - count) & 0xffff)
	t.position += int64(8 + recordLen + recordLen%2)
	t.ready()
	if t.TMCS&tmcsIE != 0 {
		t.bus.Interrupt(0, 5, interrupts.TM, 0, nil)
	}
}

// reset restores TM11 to its documented post-RESET state (TMCS 0x6080,
// MTS 0x65), per spec.md §4.5 and the testable property in spec.md §8.
func (t *TM11) reset() {
	if t.meta != nil {
		t.meta.CancelFetch()
	}
	t.position = 0
	t.bot = true
	t.bus.CancelInterrupt(interrupts.TM)
	t.TMER, t.TMCS, t.TMBRC, t.TMBA, t.TMDT = 0, tmcsDone|tmcsPE, 0, 0, 0
	t.MTS = mtsRdy | mtsOnline | mtsPresent
	t.syncBOT()
}
