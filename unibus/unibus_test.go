package unibus

import (
	"testing"

	"github.com/matryer/is"

	"github.com/ravana69/unibus11/diskio"
)

// fakeMemory is a flat 22-bit physical memory for dispatcher and
// controller tests, mirroring diskio's own fakeMemory fixture.
type fakeMemory struct {
	words    []uint16
	nxmAt    uint32
	traps    []uint16
	panics   int
	mmuModes []uint16
	umap     *UnibusMap
}

func newFakeMemory(nwords int) *fakeMemory {
	return &fakeMemory{words: make([]uint16, nwords), nxmAt: 0xffffffff}
}

func (m *fakeMemory) ReadWordPhysical(addr uint32) int32 {
	if addr == m.nxmAt {
		return -1
	}
	return int32(m.words[addr/2])
}

func (m *fakeMemory) WriteWordPhysical(addr uint32, v uint16) int32 {
	if addr == m.nxmAt {
		return -1
	}
	m.words[addr/2] = v
	return 0
}

func (m *fakeMemory) WriteBytePhysical(addr uint32, v byte) int32 {
	if addr == m.nxmAt {
		return -1
	}
	w := m.words[addr/2]
	if addr&1 != 0 {
		w = (w &^ 0xff00) | uint16(v)<<8
	} else {
		w = (w &^ 0xff) | uint16(v)
	}
	m.words[addr/2] = w
	return 0
}

func (m *fakeMemory) MapUnibus(addr uint32) uint32 {
	if m.umap == nil {
		return addr
	}
	return m.umap.Translate(addr)
}

func (m *fakeMemory) Trap(vector, code uint16) int32 {
	m.traps = append(m.traps, vector, code)
	return -1
}

func (m *fakeMemory) Panic() { m.panics++ }

func (m *fakeMemory) SetMMUMode(mode uint16) { m.mmuModes = append(m.mmuModes, mode) }

func newTestBus() (*IoBus, *fakeMemory) {
	mem := newFakeMemory(1 << 16)
	b := NewIoBus(mem, nil)
	mem.umap = &b.UMap
	return b, mem
}

func drainUntilIdle(b *IoBus, maxTicks int) []struct{ vector, priority uint16 } {
	var fired []struct{ vector, priority uint16 }
	for i := 0; i < maxTicks; i++ {
		b.Drain(func(vector, priority uint16) {
			fired = append(fired, struct{ vector, priority uint16 }{vector, priority})
		})
	}
	return fired
}

func TestDispatchOddWordAccessTraps(t *testing.T) {
	is := is.New(t)
	b, mem := newTestBus()

	got := b.ReadWord(0777401) // RKDS + 1, an odd address
	is.Equal(got, int32(-1))
	is.Equal(len(mem.traps), 2)
	is.Equal(mem.traps[0], uint16(4))
	is.Equal(mem.traps[1], uint16(busErrorCode))
}

func TestDispatchByteMergePreservesOtherByte(t *testing.T) {
	is := is.New(t)
	b, _ := newTestBus()

	b.WriteWord(0777572, 0x1234) // MMR0
	b.WriteByte(0777572, 0xAB)   // low byte only
	is.Equal(b.ReadWord(0777572), int32(0x12AB))
}

func TestRK11TransferReadsPreinstalledBlock(t *testing.T) {
	is := is.New(t)
	b, mem := newTestBus()

	b.RK.Mount(0, "rk0.dsk")
	b.RK.units[0].meta.Cache.Install(0, []byte{0xAD, 0xDE, 0x00, 0x00})

	b.WriteWord(0777412, 0) // RKDA: drive 0, cyl 0, surface 0, sector 0
	b.WriteWord(0777406, uint16(0x10000-1))
	b.WriteWord(0777410, 0)
	b.WriteWord(0777404, rkcsGo|(2<<1)) // function 1 = write? fn=(csr&e)>>1; want read=2

	drainUntilIdle(b, 8)

	is.Equal(mem.words[0], uint16(0xDEAD))
	is.True(b.RK.RKCS&rkcsDone != 0)
}

func TestRK11NonexistentCylinderRaisesNXC(t *testing.T) {
	is := is.New(t)
	b, _ := newTestBus()

	b.RK.Mount(0, "rk0.dsk")
	b.WriteWord(0777412, uint16(rkMaxCylinder+1)<<5) // RKDA: cylinder out of range
	b.WriteWord(0777404, rkcsGo|(2<<1))

	drainUntilIdle(b, 4)
	is.True(b.RK.RKER&rkerNXC != 0)
	is.True(b.RK.RKCS&rkcsCompErr != 0)
}

func TestRK11ResetClearsRegisters(t *testing.T) {
	is := is.New(t)
	b, _ := newTestBus()

	b.RK.RKER = 0xffff
	b.RK.reset()
	is.Equal(b.RK.RKDS, uint16(04700))
	is.Equal(b.RK.RKER, uint16(0))
	is.Equal(b.RK.RKCS, uint16(0200))
}

func TestRL11SeekThenReadLandsAtComputedOffset(t *testing.T) {
	is := is.New(t)
	b, mem := newTestBus()

	b.RL.Mount(0, "rl0.dsk", false)
	track, sector := 2, 3
	offset := int64(track*rlSectorsPerTrack+sector) * rlSectorBytes
	block := offset / diskio.BlockSize
	within := offset % diskio.BlockSize
	data := make([]byte, within+2)
	data[within] = 0xBE
	data[within+1] = 0xBA
	b.RL.units[0].meta.Cache.Install(block, data)

	b.WriteWord(0774404, uint16(track<<6|sector)) // DAR
	b.WriteWord(0774400, rlcsGo|(3<<1))            // seek
	drainUntilIdle(b, 4)

	b.WriteWord(0774406, uint16(0x10000-1)) // MPR: one word
	b.WriteWord(0774402, 0)                 // BAR
	b.WriteWord(0774400, rlcsGo|(6<<1))     // read
	drainUntilIdle(b, 8)

	is.Equal(mem.words[0], uint16(0xBABE))
	is.True(b.RL.CSR&rlcsDone != 0)
}

func TestRL11OutOfRangeSectorRaisesHNF(t *testing.T) {
	is := is.New(t)
	b, _ := newTestBus()

	b.RL.Mount(0, "rl0.dsk", false)
	b.WriteWord(0774404, uint16(0<<6|rlSectorsPerTrack+5))
	b.WriteWord(0774400, rlcsGo|(6<<1))
	drainUntilIdle(b, 4)

	is.True(b.RL.CSR&rlcsHNF != 0)
}

func TestRP11ReadLandsAtCylinderZero(t *testing.T) {
	is := is.New(t)
	b, mem := newTestBus()

	b.RP.Mount(0, "rp0.dsk", RP04Geometry)
	b.RP.units[0].meta.Cache.Install(0, []byte{0xCD, 0xAB, 0, 0})

	b.WriteWord(0776706, 0)                 // DA: surface 0, sector 0
	b.WriteWord(0776702, uint16(0x10000-1)) // WC: one word
	b.WriteWord(0776704, 0)                 // BA
	b.WriteWord(0776700, rpcs1Go|(035<<1))  // function 035 octal: read header & data
	drainUntilIdle(b, 8)

	is.Equal(mem.words[0], uint16(0xABCD))
	is.True(b.RP.CS1&rpcs1Ready != 0)
}

func TestRP11OddFunctionParityRaisesIAE(t *testing.T) {
	is := is.New(t)
	b, _ := newTestBus()

	b.RP.Mount(0, "rp0.dsk", RP04Geometry)
	b.WriteWord(0776700, rpcs1Go|(034<<1)) // 034 octal has odd parity
	drainUntilIdle(b, 4)

	is.True(b.RP.units[0].er1&rper1IAE != 0)
	is.True(b.RP.CS1&rpcs1Ready != 0)
}

func TestTM11ReadTapeMarkSetsEOF(t *testing.T) {
	is := is.New(t)
	b, _ := newTestBus()

	b.TM.Mount("tape0.tap")
	b.TM.meta.Cache.Install(0, []byte{0, 0, 0, 0}) // a tape mark record header

	b.WriteWord(0772522, uint16(0x10000-256))
	b.WriteWord(0772520, tmcsGo|(1<<1)) // function 1: read
	drainUntilIdle(b, 4)

	is.True(b.TM.MTS&mtsEOF != 0)
	is.True(b.TM.TMCS&tmcsDone != 0)
}

func TestTM11ReadShortRecordTruncatesAndFlags(t *testing.T) {
	is := is.New(t)
	b, mem := newTestBus()

	b.TM.Mount("tape0.tap")
	header := []byte{4, 0, 0, 0} // 4-byte record
	payload := []byte{1, 2, 3, 4}
	b.TM.meta.Cache.Install(0, append(append([]byte{}, header...), payload...))

	b.WriteWord(0772524, 0) // TMBA
	b.WriteWord(0772522, uint16(0x10000-1))
	b.WriteWord(0772520, tmcsGo|(1<<1)) // function 1: read
	drainUntilIdle(b, 4)

	is.True(b.TM.TMCS&tmcsErr != 0) // record-length-exceeded relative to the 1-byte request
	is.Equal(mem.words[0]&0xff, uint16(1))
}

func TestPTRReadsSuccessiveBytes(t *testing.T) {
	is := is.New(t)
	b, _ := newTestBus()

	b.PTR.Mount("tape.ptp")
	b.PTR.meta.Cache.Install(0, []byte{0x41, 0x42})

	b.WriteWord(0777550, ptrcsGo)
	drainUntilIdle(b, 4)
	is.Equal(b.PTR.RBUF, uint16(0x41))

	b.WriteWord(0777550, ptrcsGo)
	drainUntilIdle(b, 4)
	is.Equal(b.PTR.RBUF, uint16(0x42))
}

type recordingConsole struct {
	out []byte
}

func (c *recordingConsole) Put(unit int, ch byte) { c.out = append(c.out, ch) }
func (c *recordingConsole) Reset(unit int)        {}

func TestLP11FiltersLowControlCodes(t *testing.T) {
	is := is.New(t)
	mem := newFakeMemory(1 << 16)
	console := &recordingConsole{}
	b := NewIoBus(mem, console)

	b.WriteWord(0777516, uint16('A'))
	b.WriteWord(0777516, 1) // control code below 012, filtered
	b.WriteWord(0777516, 10)
	drainUntilIdle(b, 4)

	is.Equal(string(console.out), "A\n")
}

func TestDL11InputRejectsWhenBufferFull(t *testing.T) {
	is := is.New(t)
	b, _ := newTestBus()

	is.True(b.DL[0].Input('a'))
	is.True(!b.DL[0].Input('b')) // receiver still holds 'a'

	v, _ := b.DL[0].read16(0777562)
	is.Equal(v, uint16('a'))
	is.True(b.DL[0].Input('c'))
}

func TestKW11TicksOnlyAfterInterval(t *testing.T) {
	is := is.New(t)
	b, _ := newTestBus()

	b.KW.CSR = kwcsrIE
	b.KW.tick()
	is.True(b.KW.CSR&kwcsrDone == 0) // first call only seeds the schedule
}

func TestResetCancelsInFlightFetchAndClearsRegisters(t *testing.T) {
	is := is.New(t)
	b, _ := newTestBus()

	b.RK.Mount(0, "rk0.dsk")
	b.WriteWord(0777406, uint16(0x10000-1))
	b.WriteWord(0777404, rkcsGo|(2<<1)) // read: the CSR write only defers the kickoff
	b.RK.step()                         // run the kickoff: misses cache, suspends on a fetch

	is.True(b.RK.units[0].meta.Busy())
	b.Reset()
	is.True(!b.RK.units[0].meta.Busy())
	is.Equal(b.RK.RKCS, uint16(0200))
}
