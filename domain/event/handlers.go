package event

import "sync"

// Handler Each kind of event has his own handler
// Based on the Chain of responsibility pattern
type Handler interface {
	Handle(event Event)
}

// Counter keeps per-type totals shared by handlers.
type Counter struct {
	mu     sync.Mutex
	totals map[Type]uint64
}

func NewCounter() *Counter {
	return &Counter{totals: make(map[Type]uint64)}
}

func (c *Counter) Increment(t Type) {
	c.Add(t, 1)
}

func (c *Counter) Add(t Type, n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totals[t] += n
}

func (c *Counter) Get(t Type) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals[t]
}

// Snapshot copies every total.
func (c *Counter) Snapshot() map[Type]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Type]uint64, len(c.totals))
	for k, v := range c.totals {
		out[k] = v
	}
	return out
}
