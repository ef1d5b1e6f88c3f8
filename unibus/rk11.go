package unibus

import (
	"github.com/ravana69/unibus11/diskio"
	"github.com/ravana69/unibus11/interrupts"
)

// RK11 register bit layout, grounded on davecheney-pdp11/rk11.go and
// cross-checked against michalkowalik-pdp11/unibus/rk.go for the RKWC
// two's-complement handling.
const (
	rkcsGo       = 1 << 0
	rkcsFuncMask = 0xe // bits 1-3
	rkcsBAExt    = 0x30 // bits 4-5
	rkcsIE       = 1 << 6
	rkcsDone     = 1 << 7
	rkcsSC       = 1 << 13 // search complete
	rkcsHardErr  = 1 << 14
	rkcsCompErr  = 1 << 15
	rkcsRO       = rkcsDone | 1<<12 | rkcsSC | rkcsHardErr | rkcsCompErr // 0xf080

	rkerWLO = 1 << 13 // write lock violation (supplement, see SPEC_FULL.md)
	rkerOVR = 1 << 14
	rkerNXS = 1 << 5
	rkerNXC = 1 << 6
	rkerNXD = 1 << 7
	rkerTE  = 1 << 0
	rkerWCE = 1 << 1
	rkerHard = 1 << 15

	rkSectorsPerTrack = 12
	rkSurfaces        = 2
	rkMaxCylinder     = 0312 // octal, matches davecheney-pdp11/rk11.go
	rkSectorBytes     = 512
)

type rkUnit struct {
	meta      *diskio.DriveMeta
	cylinders int
	locked    bool
}

// RK11 is the 8-drive RK05 moving-head disk controller of spec.md §4.3.1.
type RK11 struct {
	RKDS, RKER, RKCS, RKWC, RKBA uint16

	drive, cylinder, surface, sector int

	units [8]rkUnit

	bus *IoBus
}

// Mount attaches url to unit, creating its DriveMeta if needed.
func (r *RK11) Mount(unit int, url string) {
	r.units[unit].meta = diskio.NewDriveMeta(unit, url, true)
	r.units[unit].cylinders = rkMaxCylinder + 1
}

func (r *RK11) read16(addr PhysAddr) (uint16, bool) {
	switch addr & 017 {
	case 000:
		return r.RKDS, true
	case 002:
		return r.RKER, true
	case 004:
		return r.RKCS &^ rkcsGo, true // go bit always reads back 0
	case 006:
		return r.RKWC, true
	case 010:
		return r.RKBA, true
	case 012:
		return r.rkda(), true
	default:
		return 0, false
	}
}

func (r *RK11) rkda() uint16 {
	return uint16(r.sector) | uint16(r.surface<<4) | uint16(r.cylinder<<5) | uint16(r.drive<<13)
}

func (r *RK11) write16(addr PhysAddr, v uint16) bool {
	switch addr & 017 {
	case 000, 002:
		// RKDS, RKER are read-only from the bus.
	case 004:
		doneBefore := r.RKCS&rkcsDone != 0
		r.RKCS = (v &^ rkcsRO) | (r.RKCS & rkcsRO)
		if v&rkcsGo != 0 && doneBefore {
			r.bus.Defer(r.step)
		}
	case 006:
		r.RKWC = v
	case 010:
		r.RKBA = v
	case 012:
		r.drive = int(v >> 13)
		r.cylinder = int(v>>5) & 0377
		r.surface = int(v>>4) & 1
		r.sector = int(v & 15)
	default:
		return false
	}
	return true
}

func (r *RK11) notReady() {
	r.RKDS &^= 1 << 6
	r.RKCS &^= rkcsDone
}

func (r *RK11) ready() {
	r.RKDS |= 1 << 6
	r.RKCS |= rkcsDone
	r.RKCS &^= rkcsGo
}

func (r *RK11) raise(code uint16) {
	r.RKER |= code | rkerHard
	r.RKCS |= rkcsCompErr | rkcsHardErr
	r.ready()
	if r.RKCS&rkcsIE != 0 {
		r.bus.Interrupt(0, 5, interrupts.RK, r.drive, nil)
	}
}

func (r *RK11) step() {
	if r.RKCS&rkcsGo == 0 {
		return
	}
	fn := (r.RKCS & rkcsFuncMask) >> 1
	switch fn {
	case 0:
		r.reset()
	case 1, 2, 3:
		r.transfer(int(fn))
	case 4:
		r.seek()
	case 5:
		r.ready()
	case 6:
		r.RKER = 0
		r.seek()
	case 7:
		if u := &r.units[r.drive]; u.meta != nil {
			u.locked = true
		}
		r.ready()
	default:
		r.bus.Mem.Panic()
	}
}

// seek completes immediately and enqueues a delayed seek-end interrupt
// that sets the search-complete bit, per spec.md §4.3.1.
func (r *RK11) seek() {
	r.RKCS &^= rkcsSC
	r.RKCS |= rkcsDone
	r.RKCS &^= rkcsGo
	r.scheduleSearchComplete()
}

// scheduleSearchComplete enqueues the delayed interrupt that sets the
// search-complete bit once the head settles. A transfer's implicit seek
// uses this directly instead of seek() so it doesn't also mark done and
// clear go before the diskIO operation it's about to start has run.
func (r *RK11) scheduleSearchComplete() {
	r.bus.Interrupt(1, 5, interrupts.RK, r.drive, func() bool {
		r.RKCS |= rkcsSC
		return r.RKCS&rkcsIE != 0
	})
}

func (r *RK11) transfer(fn int) {
	r.notReady()

	u := &r.units[r.drive]
	if u.meta == nil || u.cylinders == 0 {
		r.raise(rkerNXD)
		return
	}
	if r.cylinder > rkMaxCylinder {
		r.raise(rkerNXC)
		return
	}
	if r.sector >= rkSectorsPerTrack {
		r.raise(rkerNXS)
		return
	}
	if fn == 1 && u.locked {
		r.raise(rkerWLO)
		return
	}

	// implicit seek: search-complete fires once the head settles, but
	// done/go stay exactly as notReady() left them until the transfer
	// itself completes in end().
	r.RKCS &^= rkcsSC
	r.scheduleSearchComplete()

	position := int64(r.cylinder*rkSurfaces*rkSectorsPerTrack+r.surface*rkSectorsPerTrack+r.sector) * rkSectorBytes
	words := (0x10000 - int(r.RKWC)) & 0xffff
	bytes := words * 2
	address := uint32(r.RKBA) | uint32(r.RKCS&rkcsBAExt)<<12

	u.meta.PostProcess = r.end
	r.bus.Engine.Start(diskio.Op(fn), u.meta, position, address, bytes)
}

func (r *RK11) end(status int, meta *diskio.DriveMeta, position int64, address uint32, count int) {
	r.RKBA = uint16(address & 0xffff)
	r.RKCS = (r.RKCS &^ rkcsBAExt) | uint16((address>>12)&rkcsBAExt)
	r.RKWC = uint16((0x10000 - count/2) & 0xffff)

	sectors := position / rkSectorBytes
	r.sector = int(sectors % rkSectorsPerTrack)
	track := sectors / rkSectorsPerTrack
	r.surface = int(track % rkSurfaces)
	r.cylinder = int(track / rkSurfaces)

	switch status {
	case diskio.OK:
	case diskio.ErrNXM:
		r.RKER |= rkerHard
		r.RKCS |= rkcsCompErr | rkcsHardErr
	case diskio.ErrRead:
		r.RKER |= rkerTE | rkerHard
		r.RKCS |= rkcsCompErr | rkcsHardErr
	case diskio.ErrCompare:
		r.RKER |= rkerWCE | rkerHard
		r.RKCS |= rkcsCompErr | rkcsHardErr
	}

	r.ready()
	if r.RKCS&rkcsIE != 0 {
		r.bus.Interrupt(0, 5, interrupts.RK, r.drive, nil)
	}
}

// reset restores RK11 to its documented post-RESET state (RKCS 0o200),
// per spec.md §4.5 and the testable property in spec.md §8.
func (r *RK11) reset() {
	for i := range r.units {
		if r.units[i].meta != nil {
			r.units[i].meta.CancelFetch()
		}
	}
	r.bus.CancelInterrupt(interrupts.RK)
	r.RKDS = 04700
	r.RKER = 0
	r.RKCS = 0200
	r.RKWC = 0
	r.RKBA = 0
	r.drive, r.cylinder, r.surface, r.sector = 0, 0, 0, 0
}
