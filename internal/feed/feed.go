package feed

import (
	"context"
	"sync"

	"ms-checkin/internal/models"
)

// Feed is the append-only log of recent check-in events backing the monitoring
// displays. It keeps the newest N events in a ring and pushes each new event
// to live subscribers the same way the stats aggregator pushes snapshots.
type Feed struct {
	mu     sync.RWMutex
	events []models.CheckInEvent
	next   int
	full   bool

	subMu       sync.RWMutex
	subscribers []chan models.CheckInEvent
}

func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 50
	}
	return &Feed{events: make([]models.CheckInEvent, size)}
}

// Consume appends one event, evicting the oldest when the ring is full.
func (f *Feed) Consume(event models.CheckInEvent) {
	f.mu.Lock()
	f.events[f.next] = event
	f.next = (f.next + 1) % len(f.events)
	if f.next == 0 {
		f.full = true
	}
	f.mu.Unlock()

	f.subMu.RLock()
	for _, ch := range f.subscribers {
		select {
		case ch <- event:
		default:
			// Slow monitor; it still sees the event via Recent.
		}
	}
	f.subMu.RUnlock()
}

// Recent returns the stored events, newest first.
func (f *Feed) Recent() []models.CheckInEvent {
	f.mu.RLock()
	defer f.mu.RUnlock()

	count := f.next
	if f.full {
		count = len(f.events)
	}

	out := make([]models.CheckInEvent, 0, count)
	for i := 1; i <= count; i++ {
		idx := (f.next - i + len(f.events)) % len(f.events)
		out = append(out, f.events[idx])
	}
	return out
}

// Subscribe registers a live listener; its channel closes when ctx ends.
func (f *Feed) Subscribe(ctx context.Context) chan models.CheckInEvent {
	ch := make(chan models.CheckInEvent, 10)

	f.subMu.Lock()
	f.subscribers = append(f.subscribers, ch)
	f.subMu.Unlock()

	go func() {
		<-ctx.Done()
		f.removeSubscriber(ch)
	}()

	return ch
}

func (f *Feed) removeSubscriber(ch chan models.CheckInEvent) {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	for i, sub := range f.subscribers {
		if sub == ch {
			f.subscribers = append(f.subscribers[:i], f.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}
