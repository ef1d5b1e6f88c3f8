// unibus11 emulator harness.
package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/ravana69/unibus11/logger"
	"github.com/ravana69/unibus11/unibus"
)

func main() {
	var cli struct {
		Run runCmd `cmd:"" default:"1" help:"bring up the Unibus I/O page and service its peripherals"`
	}

	ctx := kong.Parse(&cli)
	err := ctx.Run(&kong.Context{})
	ctx.FatalIfErrorf(err)
}

type runCmd struct {
	MemWords int `name:"memwords" default:"131072" help:"physical memory size, in words"`

	RK0, RK1, RK2, RK3 string `help:"path or URL of an RK05 pack image"`
	RL0, RL1           string `help:"path or URL of an RL01/RL02 pack image, rl01: or rl02: prefix selects geometry"`
	RP0, RP1           string `help:"path or URL of an RP04/RP06/RM03 pack image, rp04:/rp06:/rm03: prefix selects geometry"`
	MT0                string `help:"path or URL of a SIMH .tap tape image"`
	PTR0               string `help:"path or URL of a paper-tape image"`

	LogFile string `name:"log" help:"write log output here instead of stdout"`
}

func (r *runCmd) Run(_ *kong.Context) error {
	l := logger.New(r.LogFile)

	mem := newFlatMemory(r.MemWords, l)
	bus := unibus.NewIoBus(mem, stdioConsole{})
	mem.umap = &bus.UMap

	if r.RK0 != "" {
		bus.RK.Mount(0, r.RK0)
	}
	if r.RK1 != "" {
		bus.RK.Mount(1, r.RK1)
	}
	if r.RK2 != "" {
		bus.RK.Mount(2, r.RK2)
	}
	if r.RK3 != "" {
		bus.RK.Mount(3, r.RK3)
	}
	if r.RL0 != "" {
		bus.RL.Mount(0, stripRL02Prefix(r.RL0), isRL02(r.RL0))
	}
	if r.RL1 != "" {
		bus.RL.Mount(1, stripRL02Prefix(r.RL1), isRL02(r.RL1))
	}
	if r.RP0 != "" {
		bus.RP.Mount(0, stripGeometryPrefix(r.RP0), rpGeometryFor(r.RP0))
	}
	if r.RP1 != "" {
		bus.RP.Mount(1, stripGeometryPrefix(r.RP1), rpGeometryFor(r.RP1))
	}
	if r.MT0 != "" {
		bus.TM.Mount(r.MT0)
	}
	if r.PTR0 != "" {
		bus.PTR.Mount(r.PTR0)
	}

	host := newTerminalHost(bus)
	host.start()
	defer host.stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	l.Printf("unibus11 running, ctrl-c to stop")
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sig:
			return nil
		case <-ticker.C:
			host.drain()
			bus.Drain(func(vector, priority uint16) {
				l.Printf("interrupt vector %04o priority %d (no CPU attached)", vector, priority)
			})
		}
	}
}

// flatMemory is a minimal unibus.Memory good enough to exercise the I/O
// page without a real CPU core attached: a flat word array plus the
// trap/panic hooks logged instead of acted on.
type flatMemory struct {
	words []uint16
	log   *log.Logger
	umap  *unibus.UnibusMap
}

func newFlatMemory(nwords int, l *log.Logger) *flatMemory {
	return &flatMemory{words: make([]uint16, nwords), log: l}
}

func (m *flatMemory) ReadWordPhysical(addr uint32) int32 {
	i := addr / 2
	if i >= uint32(len(m.words)) {
		return -1
	}
	return int32(m.words[i])
}

func (m *flatMemory) WriteWordPhysical(addr uint32, v uint16) int32 {
	i := addr / 2
	if i >= uint32(len(m.words)) {
		return -1
	}
	m.words[i] = v
	return 0
}

func (m *flatMemory) WriteBytePhysical(addr uint32, v byte) int32 {
	i := addr / 2
	if i >= uint32(len(m.words)) {
		return -1
	}
	if addr&1 != 0 {
		m.words[i] = (m.words[i] &^ 0xff00) | uint16(v)<<8
	} else {
		m.words[i] = (m.words[i] &^ 0xff) | uint16(v)
	}
	return 0
}

// MapUnibus resolves addr through the controller-programmable Unibus map
// set up by Run, falling back to identity before that wiring exists (e.g.
// mid-construction in newFlatMemory).
func (m *flatMemory) MapUnibus(addr uint32) uint32 {
	if m.umap == nil {
		return addr
	}
	return m.umap.Translate(addr)
}

func (m *flatMemory) Trap(vector, code uint16) int32 {
	m.log.Printf("bus error trap vector %04o code %04o", vector, code)
	return -1
}

func (m *flatMemory) Panic() {
	m.log.Printf("controller signaled an illegal state")
}

func (m *flatMemory) SetMMUMode(mode uint16) {
	_ = mode
}

// rpGeometryFor and stripGeometryPrefix let --rp0/--rp1 name a pack type
// inline (rp04:, rp06:, rm03:), defaulting to RP04 when no prefix is given.
func rpGeometryFor(url string) unibus.RPGeometry {
	switch {
	case strings.HasPrefix(url, "rp06:"):
		return unibus.RP06Geometry
	case strings.HasPrefix(url, "rm03:"):
		return unibus.RM03Geometry
	default:
		return unibus.RP04Geometry
	}
}

func isRL02(url string) bool { return strings.HasPrefix(url, "rl02:") }

func stripRL02Prefix(url string) string {
	for _, prefix := range []string{"rl01:", "rl02:"} {
		if strings.HasPrefix(url, prefix) {
			return url[len(prefix):]
		}
	}
	return url
}

func stripGeometryPrefix(url string) string {
	for _, prefix := range []string{"rp04:", "rp06:", "rm03:"} {
		if strings.HasPrefix(url, prefix) {
			return url[len(prefix):]
		}
	}
	return url
}
