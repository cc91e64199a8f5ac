package client

import "sync"

// subscriberQueueLen bounds each subscriber's queue. A peer session that
// cannot drain its queue loses lines rather than stalling the input
// source for everyone else.
const subscriberQueueLen = 16

// Broadcaster fans one stream of local input lines out to every peer
// session. Fan-out happens on the write side: there is a single producer
// (the local input), and each subscriber owns an independent queue.
type Broadcaster struct {
	mtx    sync.Mutex
	subs   map[int]chan string
	nextID int
	closed bool
}

// NewBroadcaster returns an open Broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan string)}
}

// Subscribe registers a new subscriber and returns its channel plus a
// cancel function. The channel is closed on cancel or when the source
// closes; subscribing to a closed Broadcaster yields an already-closed
// channel.
func (b *Broadcaster) Subscribe() (<-chan string, func()) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	ch := make(chan string, subscriberQueueLen)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	return ch, func() {
		b.mtx.Lock()
		defer b.mtx.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Send delivers line to every subscriber. Full queues are skipped; Send
// never blocks. It returns the number of subscribers that received the
// line.
func (b *Broadcaster) Send(line string) int {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	delivered := 0
	for _, sub := range b.subs {
		select {
		case sub <- line:
			delivered++
		default:
		}
	}
	return delivered
}

// Close closes the source. Every subscriber channel is closed, which the
// peer sessions take as their signal to shut down.
func (b *Broadcaster) Close() {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub)
	}
}
