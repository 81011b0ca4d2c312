package server

import (
	"context"
	"sync"
	"time"
)

// ScopeAll subscribes a stream to every change scope.
const ScopeAll = "*"

// ChangeMessage tells a consumer that a scope of the reconciled state moved.
// It carries no payload; consumers re-read the state they care about.
type ChangeMessage struct {
	Scope     string
	Timestamp time.Time
}

// ChangeDispatcher fans change scopes out to SSE streams. Slow consumers
// lose messages rather than block the engine; a lost notification only
// delays the consumer's next read.
type ChangeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*changeSubscriber
	nextID      int64
	bufferSize  int
}

type changeSubscriber struct {
	id     int64
	stream chan ChangeMessage
}

// NewChangeDispatcher returns an empty dispatcher.
func NewChangeDispatcher() *ChangeDispatcher {
	return &ChangeDispatcher{
		subscribers: make(map[string]map[int64]*changeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream for one scope (or ScopeAll). The subscription
// ends when the context does, or when the returned cleanup runs.
func (d *ChangeDispatcher) Subscribe(ctx context.Context, scope string) (<-chan ChangeMessage, func()) {
	if scope == "" {
		scope = ScopeAll
	}
	subscriber := &changeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan ChangeMessage, d.bufferSize),
	}
	d.registerSubscriber(scope, subscriber)
	cleanup := func() {
		d.unregisterSubscriber(scope, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers a scope change to its subscribers and to the wildcard
// subscribers.
func (d *ChangeDispatcher) Publish(scope string) {
	if scope == "" {
		return
	}
	message := ChangeMessage{Scope: scope, Timestamp: time.Now()}

	d.mu.RLock()
	copies := make([]*changeSubscriber, 0)
	for _, subscriber := range d.subscribers[scope] {
		copies = append(copies, subscriber)
	}
	if scope != ScopeAll {
		for _, subscriber := range d.subscribers[ScopeAll] {
			copies = append(copies, subscriber)
		}
	}
	d.mu.RUnlock()

	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *ChangeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *ChangeDispatcher) registerSubscriber(scope string, subscriber *changeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[scope]; !ok {
		d.subscribers[scope] = make(map[int64]*changeSubscriber)
	}
	d.subscribers[scope][subscriber.id] = subscriber
}

func (d *ChangeDispatcher) unregisterSubscriber(scope string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[scope]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, scope)
		}
	}
	d.mu.Unlock()
}
