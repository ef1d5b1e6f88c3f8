package unibus

import (
	"github.com/ravana69/unibus11/diskio"
	"github.com/ravana69/unibus11/interrupts"
)

// RL11 register bits, per spec.md §4.3.2. No teacher/pack source
// implements RL11 directly; built in RK11's idiom (same package, same
// register-struct-plus-methods shape).
const (
	rlcsGo       = 1 << 0
	rlcsFuncMask = 0xe
	rlcsDriveSel = 0x300 // bits 8-9
	rlcsBAExt    = 0x30  // bits 4-5
	rlcsIE       = 1 << 6
	rlcsDone     = 1 << 7
	rlcsHNF      = 1 << 14
	rlcsCompErr  = 1 << 15
	rlcsRO       = rlcsDone | rlcsHNF | rlcsCompErr

	rlSectorsPerTrack = 40
	rlSectorBytes     = 256
	rl01Tracks        = 256
	rl02Tracks        = 512
)

type rlUnit struct {
	meta  *diskio.DriveMeta
	rl02  bool // RL02 (512 tracks) vs RL01 (256 tracks)
	track int  // current head position, set by seek
}

func (u *rlUnit) maxTrack() int {
	if u.rl02 {
		return rl02Tracks
	}
	return rl01Tracks
}

// RL11 is the 4-drive RL01/RL02 controller of spec.md §4.3.2.
type RL11 struct {
	CSR, BAR, DAR, MPR uint16

	units [4]rlUnit

	bus *IoBus
}

// Mount attaches url to unit as an RL02 (rl02=true) or RL01 drive.
func (r *RL11) Mount(unit int, url string, rl02 bool) {
	r.units[unit].meta = diskio.NewDriveMeta(unit, url, true)
	r.units[unit].rl02 = rl02
}

func (r *RL11) selected() *rlUnit {
	return &r.units[(r.CSR&rlcsDriveSel)>>8]
}

func (r *RL11) read16(addr PhysAddr) (uint16, bool) {
	switch addr & 017 {
	case 000:
		return r.CSR &^ rlcsGo, true
	case 002:
		return r.BAR, true
	case 004:
		return r.DAR, true
	case 006:
		return r.MPR, true
	default:
		return 0, false
	}
}

func (r *RL11) write16(addr PhysAddr, v uint16) bool {
	switch addr & 017 {
	case 000:
		doneBefore := r.CSR&rlcsDone != 0
		r.CSR = (v &^ rlcsRO) | (r.CSR & rlcsRO)
		if v&rlcsGo != 0 && doneBefore {
			r.bus.Defer(r.step)
		}
	case 002:
		r.BAR = v
	case 004:
		r.DAR = v
	case 006:
		r.MPR = v
	default:
		return false
	}
	return true
}

func (r *RL11) notReady() { r.CSR &^= rlcsDone }

func (r *RL11) ready() {
	r.CSR |= rlcsDone
	r.CSR &^= rlcsGo
}

func (r *RL11) step() {
	if r.CSR&rlcsGo == 0 {
		return
	}
	fn := (r.CSR & rlcsFuncMask) >> 1
	switch fn {
	case 0: // no-op
		r.ready()
	case 1, 5, 6, 7: // write-check, write, read, read-no-header-check
		r.transfer(int(fn))
	case 2: // get status
		r.getStatus()
	case 3: // seek
		r.seek()
	case 4: // read header
		r.MPR = r.DAR
		r.ready()
	default:
		r.bus.Mem.Panic()
	}
}

// seek latches the track the subsequent transfer functions will use.
// The written DAR packs (track<<6)|sector for a transfer, but a seek
// only cares about the track component.
func (r *RL11) seek() {
	u := r.selected()
	u.track = int(r.DAR >> 6)
	r.ready()
}

func (r *RL11) getStatus() {
	u := r.selected()
	status := uint16(0x1d) // lock-on, brush-home, heads-out — present/ready drive
	if u.rl02 {
		status |= 1 << 6
	}
	r.MPR = status
	if r.MPR&8 != 0 {
		r.CSR &^= rlcsHNF | rlcsCompErr
	}
	r.ready()
}

func (r *RL11) transfer(fn int) {
	r.notReady()

	u := r.selected()
	if u.meta == nil {
		r.CSR |= rlcsHNF | rlcsCompErr
		r.ready()
		return
	}

	sector := int(r.DAR & 0x3f)
	if u.track >= u.maxTrack() || sector >= rlSectorsPerTrack {
		r.CSR |= rlcsHNF | rlcsCompErr
		r.ready()
		return
	}

	position := int64(u.track*rlSectorsPerTrack+sector) * rlSectorBytes
	words := (0x10000 - int(r.MPR)) & 0xffff
	bytes := words * 2
	address := uint32(r.BAR) | uint32(r.CSR&rlcsBAExt)<<12

	var op diskio.Op
	switch fn {
	case 1:
		op = diskio.OpCheck
	case 5:
		op = diskio.OpWrite
	case 6, 7:
		op = diskio.OpRead
	}

	u.meta.PostProcess = r.end
	r.bus.Engine.Start(op, u.meta, position, address, bytes)
}

func (r *RL11) end(status int, meta *diskio.DriveMeta, position int64, address uint32, count int) {
	r.BAR = uint16(address & 0xffff)
	r.CSR = (r.CSR &^ rlcsBAExt) | uint16((address>>12)&rlcsBAExt)
	r.MPR = uint16((0x10000 - count/2) & 0xffff)

	switch status {
	case diskio.OK:
	case diskio.ErrNXM, diskio.ErrRead, diskio.ErrCompare:
		r.CSR |= rlcsCompErr
	}

	r.ready()
	if r.CSR&rlcsIE != 0 {
		r.bus.Interrupt(0, 5, interrupts.RL, r.selected().meta.Drive, nil)
	}
}

// reset restores RL11 to its documented post-RESET state (CSR 0x80), per
// spec.md §4.5 and §8.
func (r *RL11) reset() {
	for i := range r.units {
		if r.units[i].meta != nil {
			r.units[i].meta.CancelFetch()
		}
	}
	r.bus.CancelInterrupt(interrupts.RL)
	r.CSR = 0x80
	r.BAR, r.DAR, r.MPR = 0, 0, 0
}
