package unibus

import (
	"github.com/ravana69/unibus11/diskio"
	"github.com/ravana69/unibus11/interrupts"
)

// RP11 models the RH11/Massbus controller driving up to 8 RP04/RP06/RM03
// packs, per spec.md §4.3.3. Register layout follows the real RH11 split
// between controller-wide registers (CS1, WC, BA, DA, CS2) and the
// per-drive file (DS, ER1, AS is shared, LA, MR, DT, SN, OF, DC, CC, ER2,
// ER3, EC1, EC2); no teacher/pack source implements Massbus, so this is
// built in RK11/RL11's register-struct-plus-methods idiom.
const (
	rpcs1Go       = 1 << 0
	rpcs1FuncMask = 0x3e // bits 1-5
	rpcs1DriveSel = 0x1c00
	rpcs1BAExt    = 0x0300
	rpcs1IE       = 1 << 6
	rpcs1Ready    = 1 << 7
	rpcs1DVA      = 1 << 11 // drive valid
	rpcs1TRE      = 1 << 14 // transfer error
	rpcs1SC       = 1 << 15 // special condition

	rpcs2NED = 1 << 12 // non-existent drive

	rpdsVV  = 1 << 6  // volume valid
	rpdsDRY = 1 << 7  // drive ready
	rpdsDPR = 1 << 8  // drive present
	rpdsMOL = 1 << 12 // medium online

	rper1UNS = 1 << 0 // unsafe
	rper1IAE = 1 << 8 // invalid address
	rper1AOE = 1 << 9 // address overflow

	rpSectorBytes = 512
)

// RPGeometry describes one Massbus pack's cylinder/surface/sector counts.
type RPGeometry struct {
	cylinders, surfaces, sectorsPerTrack int
}

// RP04Geometry, RP06Geometry and RM03Geometry are the three pack types
// spec.md §4.3.3 names.
var (
	RP04Geometry = RPGeometry{cylinders: 411, surfaces: 19, sectorsPerTrack: 22}
	RP06Geometry = RPGeometry{cylinders: 815, surfaces: 19, sectorsPerTrack: 22}
	RM03Geometry = RPGeometry{cylinders: 823, surfaces: 5, sectorsPerTrack: 16}
)

type rpUnit struct {
	meta *diskio.DriveMeta
	geo  RPGeometry

	ds, er1, la, mr, dt, sn, of, cc, ec1, ec2 uint16
}

func (u *rpUnit) present() bool { return u.meta != nil }

// RP11 is the 8-drive Massbus controller of spec.md §4.3.3.
type RP11 struct {
	CS1, WC, BA, DA, CS2, AS uint16

	units [8]rpUnit

	bus *IoBus
}

// Mount attaches url to unit with the given pack geometry.
func (r *RP11) Mount(unit int, url string, geo RPGeometry) {
	r.units[unit].meta = diskio.NewDriveMeta(unit, url, true)
	r.units[unit].geo = geo
	r.units[unit].ds = rpdsVV | rpdsDRY | rpdsDPR | rpdsMOL
}

func (r *RP11) selUnit() int       { return int((r.CS1 & rpcs1DriveSel) >> 10) }
func (r *RP11) selected() *rpUnit  { return &r.units[r.selUnit()] }

func (r *RP11) read16(addr PhysAddr) (uint16, bool) {
	u := r.selected()
	switch addr & 077 {
	case 000:
		v := r.CS1 &^ rpcs1Go
		if u.present() {
			v |= rpcs1DVA
		}
		return v, true
	case 002:
		return r.WC, true
	case 004:
		return r.BA, true
	case 006:
		return r.DA, true
	case 010:
		return r.CS2, true
	case 012:
		return u.ds, true
	case 014:
		return u.er1, true
	case 016:
		return r.AS, true
	case 020:
		return u.la, true
	case 022:
		return u.mr, true
	case 024:
		return u.dt, true
	case 026:
		return u.sn, true
	case 030:
		return u.of, true
	case 032:
		return rpDesiredCylinder[r.selUnit()], true
	case 034:
		return u.cc, true
	case 036:
		return u.ec1, true
	case 040:
		return u.ec2, true
	default:
		return 0, false
	}
}

var rpDesiredCylinder [8]uint16

func (r *RP11) write16(addr PhysAddr, v uint16) bool {
	switch addr & 077 {
	case 000:
		doneBefore := r.CS1&rpcs1Ready != 0
		var ro uint16 = rpcs1DVA | rpcs1Ready | rpcs1TRE | rpcs1SC
		r.CS1 = (v &^ ro) | (r.CS1 & ro)
		if v&rpcs1Go != 0 && doneBefore {
			r.bus.Defer(r.step)
		}
	case 002:
		r.WC = v
	case 004:
		r.BA = v
	case 006:
		r.DA = v
	case 010:
		r.CS2 = v
	case 016:
		r.AS &^= v // write-1-to-clear
		if v != 0 {
			r.CS1 &^= rpcs1SC
		}
	case 032:
		rpDesiredCylinder[r.selUnit()] = v
	default:
		return false
	}
	return true
}

func (r *RP11) notReady() { r.CS1 &^= rpcs1Ready }

func (r *RP11) ready(unit int) {
	r.CS1 |= rpcs1Ready
	r.CS1 &^= rpcs1Go
	r.AS |= 1 << unit
}

// functionParity reports whether the 5-bit function field has even
// parity, the pattern RH11 uses to flag malformed function codes.
func functionParity(fn uint16) bool {
	bits := 0
	for i := 0; i < 5; i++ {
		if fn&(1<<i) != 0 {
			bits++
		}
	}
	return bits%2 == 0
}

func (r *RP11) step() {
	if r.CS1&rpcs1Go == 0 {
		return
	}
	unit := r.selUnit()
	u := &r.units[unit]
	fn := (r.CS1 & rpcs1FuncMask) >> 1

	if !u.present() {
		u.er1 |= rper1UNS
		r.CS2 |= rpcs2NED
		r.CS1 |= rpcs1TRE | rpcs1SC
		r.ready(unit)
		return
	}
	r.CS2 &^= rpcs2NED
	if !functionParity(fn) {
		u.er1 |= rper1IAE
		r.ready(unit)
		return
	}

	switch fn {
	case 0: // no-op
		r.ready(unit)
	case 1: // unload
		r.ready(unit)
	case 2: // seek
		r.seek(unit)
	case 3: // recalibrate
		rpDesiredCylinder[unit] = 0
		r.seek(unit)
	case 4: // drive clear
		u.er1 = 0
		r.ready(unit)
	case 5: // release
		r.ready(unit)
	case 6: // offset, not modeled: completes immediately
		r.ready(unit)
	case 7: // return-to-centerline, not modeled: completes immediately
		r.ready(unit)
	case 010: // read-in-preset: presets DA/DC to zero
		r.DA = 0
		rpDesiredCylinder[unit] = 0
		u.cc = 0
		r.ready(unit)
	case 011: // pack-ack, not modeled: completes immediately
		r.ready(unit)
	case 014: // search
		r.seek(unit)
	case 020, 021: // write check, write check header & data
		r.transfer(unit, diskio.OpCheck)
	case 030, 031: // write, write header & data
		r.transfer(unit, diskio.OpWrite)
	case 034, 035: // read, read header & data
		r.transfer(unit, diskio.OpRead)
	default:
		u.er1 |= rper1IAE
		r.ready(unit)
	}
}

func (r *RP11) seek(unit int) {
	u := &r.units[unit]
	target := int(rpDesiredCylinder[unit])
	if target >= u.geo.cylinders {
		u.er1 |= rper1AOE
		r.ready(unit)
		return
	}
	u.cc = uint16(target)
	r.bus.Interrupt(2, 5, interrupts.RP, unit, func() bool {
		return r.CS1&rpcs1IE != 0
	})
	r.ready(unit)
}

func (r *RP11) transfer(unit int, op diskio.Op) {
	r.notReady()

	u := &r.units[unit]
	surface := int(r.DA>>8) & 0x1f
	sector := int(r.DA & 0xff)
	if int(u.cc) >= u.geo.cylinders || surface >= u.geo.surfaces || sector >= u.geo.sectorsPerTrack {
		u.er1 |= rper1AOE
		r.ready(unit)
		return
	}

	blocksPerCyl := u.geo.surfaces * u.geo.sectorsPerTrack
	block := int64(u.cc)*int64(blocksPerCyl) + int64(surface*u.geo.sectorsPerTrack+sector)
	position := block * rpSectorBytes

	words := (0x10000 - int(r.WC)) & 0xffff
	bytes := words * 2
	address := uint32(r.BA) | uint32(r.CS1&rpcs1BAExt)<<10

	u.meta.PostProcess = func(status int, meta *diskio.DriveMeta, pos int64, addr uint32, count int) {
		r.end(unit, status, meta, pos, addr, count)
	}
	r.bus.Engine.Start(op, u.meta, position, address, bytes)
}

func (r *RP11) end(unit int, status int, meta *diskio.DriveMeta, position int64, address uint32, count int) {
	u := &r.units[unit]
	r.BA = uint16(address & 0xffff)
	r.CS1 = (r.CS1 &^ rpcs1BAExt) | uint16((address>>10)&rpcs1BAExt)
	r.WC = uint16((0x10000 - count/2) & 0xffff)

	switch status {
	case diskio.OK:
	case diskio.ErrNXM:
		r.CS1 |= rpcs1TRE
		u.er1 |= rper1UNS
	case diskio.ErrRead, diskio.ErrCompare:
		r.CS1 |= rpcs1TRE
		u.er1 |= rper1UNS
	}

	r.ready(unit)
	if r.CS1&rpcs1IE != 0 {
		r.bus.Interrupt(0, 5, interrupts.RP, unit, nil)
	}
}

// reset restores RP11 to its documented post-RESET state, per spec.md §4.5.
func (r *RP11) reset() {
	for i := range r.units {
		if r.units[i].meta != nil {
			r.units[i].meta.CancelFetch()
		}
		rpDesiredCylinder[i] = 0
	}
	r.bus.CancelInterrupt(interrupts.RP)
	r.CS1, r.WC, r.BA, r.DA, r.CS2, r.AS = rpcs1Ready, 0, 0, 0, 0, 0
}
