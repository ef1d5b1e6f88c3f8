package main

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/ravana69/unibus11/unibus"
)

// terminalHost reads raw stdin and feeds bytes one at a time into the
// console DL11 unit's receiver, per
// IntuitionAmiga-IntuitionEngine/terminal_host.go's non-blocking
// raw-mode read loop. Unlike that host, bytes that arrive while the
// receiver is still holding an unread one are retried rather than
// dropped, matching DL11's Input contract.
type terminalHost struct {
	bus *unibus.IoBus

	fd           int
	stopCh       chan struct{}
	done         chan struct{}
	stopped      sync.Once
	oldTermState *term.State
	pending      []byte
	mu           sync.Mutex
}

func newTerminalHost(bus *unibus.IoBus) *terminalHost {
	return &terminalHost{
		bus:    bus,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (h *terminalHost) start() {
	h.fd = int(os.Stdin.Fd())

	oldState, err := term.MakeRaw(h.fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "term: failed to set raw mode: %v\n", err)
		close(h.done)
		return
	}
	h.oldTermState = oldState

	if err := syscall.SetNonblock(h.fd, true); err != nil {
		fmt.Fprintf(os.Stderr, "term: failed to set nonblocking stdin: %v\n", err)
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
		close(h.done)
		return
	}

	go h.readLoop()
}

func (h *terminalHost) readLoop() {
	defer close(h.done)
	buf := make([]byte, 1)
	for {
		select {
		case <-h.stopCh:
			return
		default:
		}

		n, err := syscall.Read(h.fd, buf)
		if n > 0 {
			b := buf[0]
			if b == '\r' {
				b = '\n'
			}
			h.mu.Lock()
			h.pending = append(h.pending, b)
			h.mu.Unlock()
		}
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK || n == 0 {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if err != nil {
			return
		}
	}
}

// drain delivers as many pending bytes as the receiver can currently
// accept. Called from the owning CPU loop alongside IoBus.Drain.
func (h *terminalHost) drain() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for len(h.pending) > 0 {
		if !h.bus.DL[0].Input(h.pending[0]) {
			return
		}
		h.pending = h.pending[1:]
	}
}

func (h *terminalHost) stop() {
	h.stopped.Do(func() {
		close(h.stopCh)
	})
	<-h.done
	if h.oldTermState != nil {
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
	}
}
