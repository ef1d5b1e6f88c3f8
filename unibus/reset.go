package unibus

// Reset restores every register file on the bus to its documented
// post-RESET state, per spec.md §4.5: the CPU's I/O-page aliases, the
// MMU, the Unibus map, and every peripheral controller, in that order.
// It also cancels any in-flight block fetches and pending interrupts, so
// a reset mid-transfer leaves nothing running in the background.
func (b *IoBus) Reset() {
	b.CPU.reset()
	b.MMU.reset()
	b.UMap.reset()

	b.RK.reset()
	b.RL.reset()
	b.RP.reset()
	b.TM.reset()
	b.PTR.reset()
	b.LP.reset()
	for i := range b.DL {
		b.DL[i].reset()
		b.Console.Reset(i)
	}
	b.KW.reset()
}
