package sigchan

// Chan is a non-blocking signal channel: it announces that something
// happened without carrying data. Emit never blocks; a full buffer drops
// the signal, which is fine because one pending signal already means
// "re-check state".
type Chan struct {
	c chan struct{}
}

func New(bufferSize int) *Chan {
	return &Chan{c: make(chan struct{}, bufferSize)}
}

// Emit sends a signal without blocking.
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C exposes the underlying channel for select loops.
func (c *Chan) C() <-chan struct{} {
	return c.c
}
