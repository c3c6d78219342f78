package tracking

import (
	"sync"

	"github.com/Capricia-k/WoSport/internal/shared/geo"
)

type job struct {
	coord geo.Coordinate
	flush bool
}

// outbox is the unbounded FIFO between the event loop and the delivery
// worker. put never blocks, so a stalled backend cannot hold up ticks.
type outbox struct {
	mu     sync.Mutex
	jobs   []job
	closed bool
	wake   chan struct{}
}

func newOutbox() *outbox {
	return &outbox{wake: make(chan struct{}, 1)}
}

func (o *outbox) put(j job) {
	o.mu.Lock()
	o.jobs = append(o.jobs, j)
	o.mu.Unlock()
	o.signal()
}

// close lets next return false once the queue is empty.
func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *outbox) next() (job, bool) {
	for {
		o.mu.Lock()
		if len(o.jobs) > 0 {
			j := o.jobs[0]
			o.jobs[0] = job{}
			o.jobs = o.jobs[1:]
			o.mu.Unlock()
			return j, true
		}
		if o.closed {
			o.mu.Unlock()
			return job{}, false
		}
		o.mu.Unlock()
		<-o.wake
	}
}
