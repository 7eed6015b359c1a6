package task

import "time"

// progressInterval is the minimum spacing between progress emissions.
const progressInterval = 250 * time.Millisecond

// progressThrottle decouples how often progress is computed from how often
// listeners are notified. Senders deposit updates into a single-slot
// mailbox; a drain goroutine emits the latest value at a fixed cadence.
// Intermediate values are coalesced, the final value is always delivered.
type progressThrottle struct {
	ch   chan Progress
	done chan struct{}
	emit func(Progress)
}

func newProgressThrottle(emit func(Progress), interval time.Duration) *progressThrottle {
	if interval <= 0 {
		interval = progressInterval
	}
	t := &progressThrottle{
		ch:   make(chan Progress, 1),
		done: make(chan struct{}),
		emit: emit,
	}
	go t.run(interval)
	return t
}

// Send deposits an update without blocking. A pending update that has not
// been emitted yet is replaced by the newer one.
func (t *progressThrottle) Send(p Progress) {
	for {
		select {
		case t.ch <- p:
			return
		default:
		}
		select {
		case <-t.ch:
		default:
		}
	}
}

// Close flushes any pending update and stops the drain goroutine. No Send
// may follow.
func (t *progressThrottle) Close() {
	close(t.ch)
	<-t.done
}

func (t *progressThrottle) run(interval time.Duration) {
	defer close(t.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending *Progress
	for {
		select {
		case p, ok := <-t.ch:
			if !ok {
				if pending != nil {
					t.emit(*pending)
				}
				return
			}
			pending = &p
		case <-ticker.C:
			if pending != nil {
				t.emit(*pending)
				pending = nil
			}
		}
	}
}
