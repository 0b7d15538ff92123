package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by reminderd components.
const (
	TypeBatchCompleted = "reminder.batch.completed"
	TypeEscalated      = "reminder.escalated"
	TypeConfigReloaded = "config.reloaded"
)

// Event is a small in-memory signal. Data should be JSON-serializable.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus fans events out to subscribers.
//
// Publish never blocks: subscribers get buffered channels and a slow
// subscriber drops events instead of stalling the dispatch path.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() *Memory {
	return &Memory{subs: map[uint64]chan Event{}}
}

type Memory struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *Memory) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were discarded because a subscriber was full.
func (b *Memory) Dropped() uint64 { return b.dropped.Load() }

func (b *Memory) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			// Holding the write lock excludes concurrent Publish, so closing is safe.
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}
