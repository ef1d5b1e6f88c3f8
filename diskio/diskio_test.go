package diskio

import (
	"context"
	"io"
	"testing"

	"github.com/matryer/is"
)

// fakeMemory is a flat byte-addressable memory for engine tests.
type fakeMemory struct {
	bytes []byte
	nxmAt int64 // address that always faults, or -1
}

func newFakeMemory(size int) *fakeMemory {
	return &fakeMemory{bytes: make([]byte, size), nxmAt: -1}
}

func (m *fakeMemory) ReadWordPhysical(addr uint32) int32 {
	if int64(addr) == m.nxmAt {
		return -1
	}
	return int32(uint16(m.bytes[addr]) | uint16(m.bytes[addr+1])<<8)
}

func (m *fakeMemory) WriteWordPhysical(addr uint32, v uint16) int32 {
	if int64(addr) == m.nxmAt {
		return -1
	}
	m.bytes[addr] = byte(v)
	m.bytes[addr+1] = byte(v >> 8)
	return 0
}

func (m *fakeMemory) WriteBytePhysical(addr uint32, v byte) int32 {
	if int64(addr) == m.nxmAt {
		return -1
	}
	m.bytes[addr] = v
	return 0
}

func (m *fakeMemory) MapUnibus(addr uint32) uint32 { return addr }

// fixedRangeReader answers every Fetch with a fixed buffer as if it were
// the whole image (status 200), used to exercise the Fetcher without a
// network dependency.
type fixedRangeReader struct {
	data []byte
}

func (r fixedRangeReader) Fetch(ctx context.Context, url string, offset, length int64) (int, io.ReadCloser, error) {
	return 200, io.NopCloser(bytesReader(r.data)), nil
}

func bytesReader(b []byte) io.Reader { return &sliceReader{b: b} }

type sliceReader struct {
	b   []byte
	pos int
}

func (s *sliceReader) Read(p []byte) (int, error) {
	if s.pos >= len(s.b) {
		return 0, io.EOF
	}
	n := copy(p, s.b[s.pos:])
	s.pos += n
	return n, nil
}

func TestImageCacheInstallIsIdempotent(t *testing.T) {
	is := is.New(t)
	c := NewImageCache()

	is.True(c.Install(0, []byte{1, 2, 3}))
	is.True(!c.Install(0, []byte{9, 9, 9}))
	is.Equal(c.ReadByte(0), byte(1))
	is.Equal(c.ReadByte(2), byte(3))
}

func TestImageCacheAbsentBlockIsZero(t *testing.T) {
	is := is.New(t)
	c := NewImageCache()
	is.True(!c.Has(5))
	is.Equal(c.ReadByte(5*BlockSize+10), byte(0))
}

func TestEngineWriteThenCheckSucceeds(t *testing.T) {
	is := is.New(t)

	mem := newFakeMemory(1024)
	mem.bytes[0] = 0xAD
	mem.bytes[1] = 0xDE

	fetcher := NewFetcher(fixedRangeReader{})
	engine := NewEngine(mem, fetcher)
	meta := NewDriveMeta(0, "unit0.dsk", false)
	meta.Cache.Install(0, nil) // pre-populate block 0 so the write path never suspends

	var gotStatus int
	meta.PostProcess = func(status int, m *DriveMeta, position int64, address uint32, count int) {
		gotStatus = status
	}

	engine.Start(OpWrite, meta, 0, 0, 2)
	is.Equal(gotStatus, OK)
	is.Equal(meta.Cache.ReadByte(0), byte(0xAD))
	is.Equal(meta.Cache.ReadByte(1), byte(0xDE))

	// Check should now succeed against the same memory contents.
	var checkStatus int
	meta.PostProcess = func(status int, m *DriveMeta, position int64, address uint32, count int) {
		checkStatus = status
	}
	engine.Start(OpCheck, meta, 0, 0, 2)
	is.Equal(checkStatus, OK)
}

func TestEngineReadWritesOddTrailingByte(t *testing.T) {
	is := is.New(t)

	mem := newFakeMemory(1024)
	fetcher := NewFetcher(fixedRangeReader{})
	engine := NewEngine(mem, fetcher)
	meta := NewDriveMeta(0, "unit0.dsk", false)
	meta.Cache.Install(0, []byte{0x11, 0x22, 0x33})

	var status int
	meta.PostProcess = func(s int, m *DriveMeta, position int64, address uint32, count int) {
		status = s
	}

	engine.Start(OpRead, meta, 0, 100, 3)
	is.Equal(status, OK)
	is.Equal(mem.bytes[100], byte(0x11))
	is.Equal(mem.bytes[101], byte(0x22))
	is.Equal(mem.bytes[102], byte(0x33))
}

func TestEngineNXMAbortsTransfer(t *testing.T) {
	is := is.New(t)

	mem := newFakeMemory(1024)
	mem.nxmAt = 100
	fetcher := NewFetcher(fixedRangeReader{})
	engine := NewEngine(mem, fetcher)
	meta := NewDriveMeta(0, "unit0.dsk", false)
	meta.Cache.Install(0, []byte{1, 2, 3, 4})

	var status int
	meta.PostProcess = func(s int, m *DriveMeta, position int64, address uint32, count int) {
		status = s
	}
	engine.Start(OpRead, meta, 0, 100, 4)
	is.Equal(status, ErrNXM)
}

func TestEngineSuspendsOnMissAndResumesOnFetch(t *testing.T) {
	is := is.New(t)

	mem := newFakeMemory(1024)
	pattern := make([]byte, BlockSize+16)
	for i := range pattern {
		pattern[i] = byte(i)
	}
	fetcher := NewFetcher(fixedRangeReader{data: pattern})
	engine := NewEngine(mem, fetcher)
	meta := NewDriveMeta(0, "unit0.dsk", false)

	var status int
	done := make(chan struct{}, 1)
	meta.PostProcess = func(s int, m *DriveMeta, position int64, address uint32, count int) {
		status = s
		done <- struct{}{}
	}

	engine.Start(OpRead, meta, 0, 0, 4)
	is.True(meta.Busy()) // suspended on first miss

	// Drain until the background fetch goroutine has delivered its result.
	for i := 0; i < 10000 && meta.Busy(); i++ {
		engine.Drain(meta)
	}
	<-done
	is.Equal(status, OK)
	is.Equal(mem.bytes[0], byte(0))
	is.Equal(mem.bytes[1], byte(1))
}
