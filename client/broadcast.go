package client

import (
	"sync"

	"github.com/nurksbr/siber-sub001/models"
)

// EventName is the name of the identity change event
const EventName = "auth-change"

// AuthChange is the payload of the identity change event. User is nil when
// nobody is logged in.
type AuthChange struct {
	User *models.Identity `json:"user"`
}

// Broadcaster fans one named event out to its subscribers. Subscribers are
// called synchronously in subscription order.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(AuthChange)
	order  []int
}

// NewBroadcaster creates a Broadcaster with no subscribers
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]func(AuthChange))}
}

// Subscribe registers fn and returns a function that removes it
func (b *Broadcaster) Subscribe(fn func(AuthChange)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers change to every subscriber. The identity is copied so
// subscribers cannot mutate each other's view.
func (b *Broadcaster) Publish(change AuthChange) {
	b.mu.RLock()
	fns := make([]func(AuthChange), 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.subs[id])
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		c := change
		if change.User != nil {
			u := *change.User
			c.User = &u
		}
		fn(c)
	}
}

// Len returns the number of subscribers
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Reset removes every subscriber
func (b *Broadcaster) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[int]func(AuthChange))
	b.order = nil
}
