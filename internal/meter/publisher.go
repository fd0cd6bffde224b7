package meter

import (
	"sync"
	"sync/atomic"

	"github.com/oszuidwest/zwfm-meter/internal/types"
)

// Observer receives each published snapshot. Observers run on the sampling
// goroutine and must not call Attach, Replace, Detach, or Dispose.
type Observer func(types.AudioLevels)

type subscription struct {
	id uint64
	fn Observer
}

// Publisher holds the latest snapshot and fans it out to observers.
// Snapshots are replaced wholesale, so readers never see a torn update.
type Publisher struct {
	current atomic.Pointer[types.AudioLevels]

	mu        sync.RWMutex
	observers []subscription
	nextID    uint64
}

// NewPublisher creates a publisher holding the zero snapshot.
func NewPublisher() *Publisher {
	p := &Publisher{}
	p.current.Store(&types.AudioLevels{})
	return p
}

// Current returns the latest snapshot.
func (p *Publisher) Current() types.AudioLevels {
	return *p.current.Load()
}

// Publish stores levels and notifies observers.
func (p *Publisher) Publish(levels types.AudioLevels) {
	p.current.Store(&levels)

	p.mu.RLock()
	observers := p.observers
	p.mu.RUnlock()

	for _, sub := range observers {
		sub.fn(levels)
	}
}

// Reset publishes the zero snapshot.
func (p *Publisher) Reset() {
	p.Publish(types.AudioLevels{})
}

// Subscribe registers fn and returns a function that removes it.
func (p *Publisher) Subscribe(fn Observer) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	// Copy on write so Publish can iterate without holding the lock.
	p.observers = append(p.observers[:len(p.observers):len(p.observers)], subscription{id: id, fn: fn})

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, sub := range p.observers {
			if sub.id == id {
				next := make([]subscription, 0, len(p.observers)-1)
				next = append(next, p.observers[:i]...)
				p.observers = append(next, p.observers[i+1:]...)
				return
			}
		}
	}
}

// Clear removes all observers.
func (p *Publisher) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = nil
}
