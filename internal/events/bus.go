package events

import (
	"sync"
	"time"
)

// Event is a per-item pipeline outcome published for observability.
type Event struct {
	Kind     string    `json:"kind"`
	NoticeID string    `json:"notice_id"`
	Source   string    `json:"source"`
	Detail   string    `json:"detail"`
	At       time.Time `json:"at"`
}

// Bus provides in-process pub/sub for pipeline outcomes. Slow subscribers
// drop events rather than blocking the pipeline.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
}

func NewBus() *Bus { return &Bus{} }

func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, 32)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, ch)
	return ch
}

func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
