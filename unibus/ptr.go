package unibus

import (
	"github.com/ravana69/unibus11/diskio"
	"github.com/ravana69/unibus11/interrupts"
)

// PTR11 is the paper-tape reader of spec.md §4.3.5: a one-byte-at-a-time
// device whose CSR carries BUSY, DONE, IE, ERROR and GO bits.
const (
	ptrcsError = 1 << 15
	ptrcsBusy  = 1 << 11
	ptrcsDone  = 1 << 7
	ptrcsIE    = 1 << 6
	ptrcsGo    = 1 << 0
)

// PTR11 is the paper-tape reader controller.
type PTR11 struct {
	RCSR, RBUF uint16

	meta     *diskio.DriveMeta
	position int64

	bus *IoBus
}

// Mount attaches url as the paper-tape image.
func (p *PTR11) Mount(url string) {
	p.meta = diskio.NewDriveMeta(0, url, false)
}

func (p *PTR11) read16(addr PhysAddr) (uint16, bool) {
	switch addr & 06 {
	case 000:
		return p.RCSR &^ ptrcsGo, true
	case 002:
		return p.RBUF, true
	default:
		return 0, false
	}
}

func (p *PTR11) write16(addr PhysAddr, v uint16) bool {
	switch addr & 06 {
	case 000:
		idle := p.RCSR&(ptrcsError|ptrcsBusy) == 0
		p.RCSR = (v &^ (ptrcsError | ptrcsBusy | ptrcsDone)) | (p.RCSR & (ptrcsError | ptrcsBusy | ptrcsDone))
		if v&ptrcsGo != 0 && idle {
			p.RCSR &^= ptrcsDone
			p.RCSR |= ptrcsBusy
			p.bus.Defer(p.step)
		}
	default:
		return false
	}
	return true
}

func (p *PTR11) step() {
	if p.meta == nil {
		p.RCSR |= ptrcsError
		p.ready(0)
		return
	}
	p.meta.PostProcess = p.readDone
	p.bus.Engine.Start(diskio.OpByte, p.meta, p.position, 0, 1)
}

func (p *PTR11) readDone(status int, meta *diskio.DriveMeta, position int64, address uint32, count int) {
	if status != diskio.OK {
		p.RCSR |= ptrcsError
		p.ready(0)
		return
	}
	p.RBUF = uint16(address & 0xff)
	p.position++
	p.ready(1)
}

func (p *PTR11) ready(ok int) {
	_ = ok
	p.RCSR &^= ptrcsBusy
	p.RCSR |= ptrcsDone
	p.RCSR &^= ptrcsGo
	if p.RCSR&ptrcsIE != 0 {
		p.bus.Interrupt(0, 4, interrupts.PTR, 0, nil)
	}
}

// reset restores PTR11 to its documented post-RESET state, per spec.md §4.5.
func (p *PTR11) reset() {
	if p.meta != nil {
		p.meta.CancelFetch()
		p.position = 0
	}
	p.bus.CancelInterrupt(interrupts.PTR)
	p.RCSR, p.RBUF = 0, 0
}
