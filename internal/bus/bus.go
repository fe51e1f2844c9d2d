package bus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// slowConsumerWait bounds how long Publish waits on a full blocking
// subscription before giving up, so a stalled consumer cannot wedge the
// publisher forever.
const slowConsumerWait = 5 * time.Second

// Bus is an in-process publish/subscribe event bus with namespace filtering.
// It is the single multiplexed stream for one realtime session: the socket
// read loop publishes inbound events, and the searcher, ingestor and UI
// surfaces subscribe with their own namespaces.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscription
	next    int
	dropped atomic.Uint64
}

type subscription struct {
	namespace string
	ch        chan Event
	blocking  bool
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish sends an event to all subscribers whose namespace is a prefix of
// event.Kind. Plain subscriptions drop the event when their buffer is full;
// blocking subscriptions exert backpressure on the publisher instead,
// bounded by slowConsumerWait. Dropped events are counted either way.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.namespace) {
			continue
		}
		if sub.blocking {
			select {
			case sub.ch <- evt:
			case <-time.After(slowConsumerWait):
				b.dropped.Add(1)
			}
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many events were lost to full subscriber buffers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribe returns a channel that receives events matching the given
// namespace prefix. bufSize controls the channel buffer; events beyond a
// full buffer are dropped. Returns the channel and an unsubscribe function.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	return b.subscribe(namespace, bufSize, false)
}

// SubscribeBlocking is Subscribe for consumers that must not miss events:
// a full buffer makes Publish wait instead of dropping. Only for consumers
// that always drain; a stalled one stalls every publisher for up to
// slowConsumerWait per event.
func (b *Bus) SubscribeBlocking(namespace string, bufSize int) (<-chan Event, func()) {
	return b.subscribe(namespace, bufSize, true)
}

func (b *Bus) subscribe(namespace string, bufSize int, blocking bool) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, ch: ch, blocking: blocking}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
