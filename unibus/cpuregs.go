package unibus

// CPURegs holds the CPU-alias registers visible in the top of the I/O
// page (017777700-017777777): PSW, stack limit, PIR, CPU-error, the
// microprogram break register, the two memory-system registers, and the
// per-mode stack pointers — davecheney-pdp11/cpu.go's
// `stackpointer [4]uint16` array, generalized into the register file the
// dispatcher must expose. The CPU's live general registers (R0-R5, the
// dual register sets) and PC are the out-of-scope CPU core's own state;
// this struct only owns what the I/O page itself stores.
type CPURegs struct {
	PSW          uint16
	StackLimit   uint16
	PIR          uint16
	CPUError     uint16
	MicroBreak   uint16
	MemSysReg0   uint16
	MemSysReg1   uint16
	MemSysReg2   uint16
	StackPointers [4]uint16 // kernel, supervisor, illegal, user

	// DualSets backs the 017777700-017777714 "dual register set" general
	// registers (R0-R5 of whichever set PSW's register-set bit selects).
	// Only storage is modeled here; which set is live and how it
	// interacts with instruction execution is the CPU core's concern.
	DualSets [2][6]uint16
}

// RegisterSet returns the index (0 or 1) of the currently selected
// general-register set, per PSW bit 11.
func (c *CPURegs) RegisterSet() int {
	if c.PSW&(1<<11) != 0 {
		return 1
	}
	return 0
}

// Mode returns the CPU's current operating mode (bits 14-15 of PSW):
// 0 kernel, 1 supervisor, 2 illegal, 3 user.
func (c *CPURegs) Mode() uint16 { return c.PSW >> 14 }

const (
	addrPIR          PhysAddr = 0017777772
	addrStackLimit   PhysAddr = 0017777774
	addrPSW          PhysAddr = 0017777776
	addrCPUError     PhysAddr = 0017777766
	addrMicroBreak   PhysAddr = 0017777770
	addrMemSysReg0   PhysAddr = 0017777760
	addrMemSysReg1   PhysAddr = 0017777762
	addrMemSysReg2   PhysAddr = 0017777764
	addrKernelSPAlt  PhysAddr = 0017777706
	addrUserSuperSP  PhysAddr = 0017777716
)

// aliasAccess implements spec.md §4.4's odd-address CPU register mirrors:
// 017777706 always addresses the kernel stack pointer (it stays visible
// there even when the CPU is not in kernel mode, since a non-current
// mode's R6 is banked), and 017777716 addresses the supervisor stack
// pointer unless the CPU is currently in user mode, in which case it
// addresses the user stack pointer. The odd and even byte of each address
// select the same register, and byte writes reach it through
// IoBus.WriteByte's read-merge-write like any other register.
func (b *IoBus) aliasAccess(addr PhysAddr, value int32) (uint16, bool) {
	switch addr &^ 1 {
	case addrKernelSPAlt:
		if value >= 0 {
			b.CPU.StackPointers[0] = uint16(value)
		}
		return b.CPU.StackPointers[0], true
	case addrUserSuperSP:
		idx := 1
		if b.CPU.Mode() == 3 {
			idx = 3
		}
		if value >= 0 {
			b.CPU.StackPointers[idx] = uint16(value)
		}
		return b.CPU.StackPointers[idx], true
	default:
		return 0, false
	}
}

func (b *IoBus) cpuRegAccess(addr PhysAddr, value int32) (uint16, bool) {
	reg := func(p *uint16) uint16 {
		if value >= 0 {
			*p = uint16(value)
		}
		return *p
	}
	switch addr {
	case addrPSW:
		return reg(&b.CPU.PSW), true
	case addrStackLimit:
		return reg(&b.CPU.StackLimit), true
	case addrPIR:
		return reg(&b.CPU.PIR), true
	case addrCPUError:
		return reg(&b.CPU.CPUError), true
	case addrMicroBreak:
		return reg(&b.CPU.MicroBreak), true
	case addrMemSysReg0:
		return reg(&b.CPU.MemSysReg0), true
	case addrMemSysReg1:
		return reg(&b.CPU.MemSysReg1), true
	case addrMemSysReg2:
		return reg(&b.CPU.MemSysReg2), true
	default:
		return 0, false
	}
}

// dualSetAccess handles the six general-register addresses
// (017777700,702,704 -> R0-R2, 017777710,712,714 -> R3-R5) of whichever
// register set PSW's register-set bit currently selects.
func (b *IoBus) dualSetAccess(addr PhysAddr, value int32) (uint16, bool) {
	var idx int
	switch addr {
	case 0017777700:
		idx = 0
	case 0017777702:
		idx = 1
	case 0017777704:
		idx = 2
	case 0017777710:
		idx = 3
	case 0017777712:
		idx = 4
	case 0017777714:
		idx = 5
	default:
		return 0, false
	}
	reg := &b.CPU.DualSets[b.CPU.RegisterSet()][idx]
	if value >= 0 {
		*reg = uint16(value)
	}
	return *reg, true
}

func (c *CPURegs) reset() {
	c.PIR = 0
	c.StackLimit = 0
	c.CPUError = 0
}
