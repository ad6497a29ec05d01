package ledger

import (
	"context"
	"sync"

	"github.com/oracular/verdict/internal/attest"
)

// feed is an unbounded FIFO buffer between the append path and one
// subscriber. Appends must never block on a slow subscriber, so the buffer
// grows as needed and a size-1 signal channel coalesces wakeups.
type feed struct {
	mu     sync.Mutex
	items  []attest.Attestation
	closed bool
	signal chan struct{}
}

func newFeed() *feed {
	return &feed{
		items:  make([]attest.Attestation, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// push appends an item. Returns false if the feed is closed.
func (f *feed) push(a attest.Attestation) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	f.items = append(f.items, a)

	select {
	case f.signal <- struct{}{}:
	default:
	}
	return true
}

// tryPop removes the front item without blocking.
func (f *feed) tryPop() (attest.Attestation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.items) == 0 {
		return attest.Attestation{}, false
	}
	a := f.items[0]
	// Nil out payload references so the backing array does not retain them.
	f.items[0] = attest.Attestation{}
	if len(f.items) == 1 {
		f.items = f.items[:0]
	} else {
		f.items = f.items[1:]
	}
	return a, true
}

// drained reports whether the feed is closed with nothing left to deliver.
func (f *feed) drained() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed && len(f.items) == 0
}

// close marks the feed finished and wakes the pump. Idempotent.
func (f *feed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	close(f.signal)
}

// pump moves items from the feed to the subscription channel until the feed
// is closed and drained, or ctx is cancelled. Runs in its own goroutine.
func (f *feed) pump(ctx context.Context, ch chan<- attest.Attestation) {
	defer close(ch)

	for {
		if a, ok := f.tryPop(); ok {
			select {
			case ch <- a:
				continue
			case <-ctx.Done():
				return
			}
		}

		if f.drained() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-f.signal:
			// Closed signal channels fire immediately, which re-checks
			// drained() above.
		}
	}
}
