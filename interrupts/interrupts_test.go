package interrupts

import (
	"testing"

	"github.com/matryer/is"
)

func TestTickOrdersByPriorityThenInsertion(t *testing.T) {
	is := is.New(t)

	q := NewQueue()
	q.Push(4, 0100, 0, 0, nil)
	q.Push(6, 0070, 0, 0, nil)
	q.Push(6, 0064, 0, 0, nil)

	due := q.Tick()
	is.Equal(len(due), 3)
	is.Equal(due[0].Vector, uint16(0070)) // priority 6, inserted first
	is.Equal(due[1].Vector, uint16(0064)) // priority 6, inserted second
	is.Equal(due[2].Vector, uint16(0100)) // priority 4
}

func TestTickRespectsDelay(t *testing.T) {
	is := is.New(t)

	q := NewQueue()
	q.Push(5, 0220, 0, 2, nil)

	is.Equal(len(q.Tick()), 0) // delay 2 -> 1: not yet due
	due := q.Tick()            // delay 1 -> 0: due
	is.Equal(len(due), 1)
	is.Equal(due[0].Vector, uint16(0220))
	is.Equal(q.Len(), 0)
}

func TestCancelVectorDropsPending(t *testing.T) {
	is := is.New(t)

	q := NewQueue()
	q.Push(5, 0220, 0, 1, nil)
	q.Push(5, 0064, 0, 1, nil)
	q.CancelVector(0220)

	due := q.Tick()
	is.Equal(len(due), 1)
	is.Equal(due[0].Vector, uint16(0064))
}

func TestFireCallbackCanSuppress(t *testing.T) {
	is := is.New(t)

	fired := false
	q := NewQueue()
	q.Push(5, 0220, 0, 0, func() bool { return false })
	for _, e := range q.Tick() {
		if e.Fire() {
			fired = true
		}
	}
	is.Equal(fired, false)
}
