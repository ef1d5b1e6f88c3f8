// Package interrupts holds the Unibus interrupt vector constants and the
// priority-ordered queue that the I/O page dispatcher and its controllers
// drain between CPU instructions.
package interrupts

import "container/heap"

// Vector numbers for the devices and traps this module programs directly.
// Kept in a separate package, as michalkowalik/pdp does, to avoid cyclic
// imports between the bus and its controllers.
const (
	TTYIn  = 0060
	TTYOut = 0064

	Bus    = 0004
	Inval  = 0010
	Debug  = 0014
	IOT    = 0020
	Fault  = 0250
	Clock  = 0100

	RK = 0220
	RL = 0160
	RP = 0254
	TM = 0224
	PTR = 0070
	LP  = 0200
)

// Entry is one pending interrupt request, ordered first by Priority
// (descending: higher priority fires first) and then by Seq (ascending:
// insertion order breaks ties at the same level), matching spec.md §5's
// ordering guarantee.
type Entry struct {
	Priority uint16
	Vector   uint16
	Unit     int
	Delay    int // ticks remaining before this entry is eligible to fire
	Callback func() bool
	seq      uint64
	index    int
}

// Fire reports whether this entry should still deliver its interrupt. A nil
// Callback always fires; a non-nil one lets the device check late-arriving
// state (spec.md §9 "Interrupt callback generalization").
func (e *Entry) Fire() bool {
	if e.Callback == nil {
		return true
	}
	return e.Callback()
}

// Queue is a priority queue of pending interrupt Entries.
type Queue struct {
	heap queueHeap
	next uint64
}

// NewQueue returns an empty interrupt queue.
func NewQueue() *Queue {
	q := &Queue{}
	heap.Init(&q.heap)
	return q
}

// Push enqueues an entry. delay of 0 means eligible immediately.
func (q *Queue) Push(priority, vector uint16, unit int, delay int, callback func() bool) {
	e := &Entry{
		Priority: priority,
		Vector:   vector,
		Unit:     unit,
		Delay:    delay,
		Callback: callback,
		seq:      q.next,
	}
	q.next++
	heap.Push(&q.heap, e)
}

// CancelVector removes every pending entry addressed to vector, regardless
// of unit. This implements spec.md §5's "delay=-1, unit=-1 means cancel
// pending at this vector" contract as seen from the controller side: a
// controller reset calls this to drop interrupts it no longer owns.
func (q *Queue) CancelVector(vector uint16) {
	kept := make(queueHeap, 0, len(q.heap))
	for _, e := range q.heap {
		if e.Vector != vector {
			kept = append(kept, e)
		}
	}
	q.heap = kept
	heap.Init(&q.heap)
}

// CancelUnit removes every pending entry for (vector, unit).
func (q *Queue) CancelUnit(vector uint16, unit int) {
	kept := make(queueHeap, 0, len(q.heap))
	for _, e := range q.heap {
		if !(e.Vector == vector && e.Unit == unit) {
			kept = append(kept, e)
		}
	}
	q.heap = kept
	heap.Init(&q.heap)
}

// Tick advances every pending entry's delay by one step and returns the
// entries that have become eligible to fire this tick, highest priority
// (then earliest insertion) first, removing them from the queue. Entries
// whose Fire() returns false are dropped silently (the interrupt was
// cancelled or superseded).
func (q *Queue) Tick() []*Entry {
	var due []*Entry
	var pending queueHeap
	for q.heap.Len() > 0 {
		e := heap.Pop(&q.heap).(*Entry)
		if e.Delay > 0 {
			e.Delay--
		}
		if e.Delay <= 0 {
			due = append(due, e)
		} else {
			pending = append(pending, e)
		}
	}
	for _, e := range pending {
		heap.Push(&q.heap, e)
	}
	sortByPriority(due)
	return due
}

// Len reports the number of entries still queued.
func (q *Queue) Len() int { return q.heap.Len() }

func sortByPriority(es []*Entry) {
	// insertion sort: the slice is small (device interrupt fan-in is a
	// handful of entries at most) and needs to be stable on seq.
	for i := 1; i < len(es); i++ {
		for j := i; j > 0 && less(es[j], es[j-1]); j-- {
			es[j], es[j-1] = es[j-1], es[j]
		}
	}
}

func less(a, b *Entry) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.seq < b.seq
}

type queueHeap []*Entry

func (h queueHeap) Len() int      { return len(h) }
func (h queueHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h queueHeap) Less(i, j int) bool {
	// order by remaining delay first so Tick can pop the nearest-due
	// entries cheaply; priority/seq tie-break happens in sortByPriority
	// once entries are due.
	if h[i].Delay != h[j].Delay {
		return h[i].Delay < h[j].Delay
	}
	return less(h[i], h[j])
}

func (h *queueHeap) Push(x interface{}) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *queueHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	e.index = -1
	return e
}
