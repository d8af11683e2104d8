package scheduler

import (
	"log/slog"
	"sync"

	"github.com/me/s7dump/pkg/model"
)

// Broker fans the scheduler's single event stream out to any number of
// subscribers (SSE clients, log sinks). Subscribers with full buffers
// lose events; the broker never blocks on a slow consumer.
type Broker struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[int]chan model.JobEvent
	nextID int
	closed bool
}

// NewBroker starts a goroutine draining events until the channel is
// closed, at which point all subscriber channels are closed too.
func NewBroker(events <-chan model.JobEvent, logger *slog.Logger) *Broker {
	b := &Broker{
		logger: logger.With("component", "event-broker"),
		subs:   make(map[int]chan model.JobEvent),
	}
	go b.pump(events)
	return b
}

// Subscribe registers a new subscriber with the given buffer size and
// returns its channel plus an unsubscribe func. The channel is closed
// on unsubscribe or broker shutdown.
func (b *Broker) Subscribe(buf int) (<-chan model.JobEvent, func()) {
	if buf <= 0 {
		buf = 16
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan model.JobEvent, buf)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

func (b *Broker) pump(events <-chan model.JobEvent) {
	for ev := range events {
		b.mu.Lock()
		for id, sub := range b.subs {
			select {
			case sub <- ev:
			default:
				b.logger.Debug("subscriber buffer full, dropping event", "subscriber", id)
			}
		}
		b.mu.Unlock()
	}

	b.mu.Lock()
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub)
	}
	b.mu.Unlock()
}
