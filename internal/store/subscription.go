package store

import (
	"context"
	"reflect"
	"sync"
	"time"
)

// Snapshot is one delivery of a subscription: the full matching set, or the
// error that prevented reading it.
type Snapshot struct {
	Documents []Document
	Err       error
}

// Fetcher reads the current matching set for a subscription.
type Fetcher func(ctx context.Context) ([]Document, error)

// Subscription is a cancellable stream of snapshots. Deliveries coalesce: a
// slow consumer always receives the newest set, never an older one after a
// newer one. Unchanged sets are not redelivered.
type Subscription struct {
	updates chan Snapshot
	dirty   chan struct{}
	stopped chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

// Updates returns the delivery channel. It is closed after Cancel or when the
// subscribing context ends.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.updates
}

// Cancel stops delivery and releases the subscription. Safe to call more than
// once; after it returns no further snapshot is delivered.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
	<-s.stopped
}

func (s *Subscription) notify() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *Subscription) run(fetch Fetcher, poll time.Duration, onExit func()) {
	defer close(s.stopped)
	defer close(s.updates)
	defer onExit()

	var tick <-chan time.Time
	if poll > 0 {
		ticker := time.NewTicker(poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	var last []Document
	delivered := false

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.dirty:
		case <-tick:
		}

		docs, err := fetch(s.ctx)
		if s.ctx.Err() != nil {
			return
		}

		snap := Snapshot{Documents: docs, Err: err}
		if err == nil && delivered && reflect.DeepEqual(last, docs) {
			continue
		}

		select {
		case s.updates <- snap:
			if err == nil {
				last, delivered = docs, true
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// Hub fans change notifications out to the subscriptions of a collection.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
	poll time.Duration
}

// NewHub creates a hub. A positive poll interval makes every subscription
// also re-read on that interval, which surfaces writes made by other
// processes sharing the same database.
func NewHub(poll time.Duration) *Hub {
	return &Hub{
		subs: make(map[string]map[*Subscription]struct{}),
		poll: poll,
	}
}

// Subscribe starts a subscription on collection. The first snapshot is
// delivered as soon as the consumer reads.
func (h *Hub) Subscribe(ctx context.Context, collection string, fetch Fetcher) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		updates: make(chan Snapshot),
		dirty:   make(chan struct{}, 1),
		stopped: make(chan struct{}),
		ctx:     subCtx,
		cancel:  cancel,
	}

	h.mu.Lock()
	set, ok := h.subs[collection]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[collection] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	s.notify()
	go s.run(fetch, h.poll, func() { h.remove(collection, s) })
	return s
}

// Notify marks every subscription on collection as stale.
func (h *Hub) Notify(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[collection] {
		s.notify()
	}
}

// Count returns the number of live subscriptions on collection.
func (h *Hub) Count(collection string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[collection])
}

// Close cancels every live subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Subscription
	for _, set := range h.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		s.Cancel()
	}
}

func (h *Hub) remove(collection string, s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[collection]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, collection)
		}
	}
}
