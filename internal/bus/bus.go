// Package bus implements the per-session publish/subscribe fabric.
// Publish assigns the canonical sequence number and delivers to every
// current subscriber without ever blocking: when a subscriber's queue is
// full its oldest queued event is dropped to make room for the newest.
// Transcript consumers care about recency over completeness.
package bus

import (
	"sync"

	"github.com/meetline/recapd/internal/event"
	"github.com/meetline/recapd/internal/metrics"
)

// DefaultQueueCap is the per-subscriber queue capacity.
const DefaultQueueCap = 100

// Subscription is one subscriber's bounded queue of envelopes.
type Subscription struct {
	ch chan event.Envelope
}

// Events returns the subscriber's receive channel. It is closed by
// Unsubscribe and ClearSession.
func (s *Subscription) Events() <-chan event.Envelope {
	return s.ch
}

type sessionTopic struct {
	seq  uint64
	subs map[*Subscription]struct{}
}

// Bus is the process-wide event bus. Sequence counters live here, one
// per session, starting at 1 and never reset while the session topic
// exists; only ClearSession resets them.
type Bus struct {
	queueCap int
	metrics  *metrics.Metrics

	mu     sync.Mutex
	topics map[string]*sessionTopic
}

func New() *Bus {
	return NewWithQueueCap(DefaultQueueCap)
}

func NewWithQueueCap(queueCap int) *Bus {
	if queueCap <= 0 {
		queueCap = DefaultQueueCap
	}
	return &Bus{
		queueCap: queueCap,
		metrics:  metrics.Default,
		topics:   make(map[string]*sessionTopic),
	}
}

func (b *Bus) topic(sessionID string) *sessionTopic {
	t, ok := b.topics[sessionID]
	if !ok {
		t = &sessionTopic{subs: make(map[*Subscription]struct{})}
		b.topics[sessionID] = t
	}
	return t
}

// Subscribe registers a new bounded queue for the session.
func (b *Bus) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{ch: make(chan event.Envelope, b.queueCap)}
	b.mu.Lock()
	b.topic(sessionID).subs[sub] = struct{}{}
	b.mu.Unlock()
	b.metrics.Subscribers.Inc()
	return sub
}

// Unsubscribe removes and closes the subscription. The session's
// sequence counter is left intact so a reconnecting subscriber can
// detect its absence by sequence discontinuity.
func (b *Bus) Unsubscribe(sessionID string, sub *Subscription) {
	b.mu.Lock()
	t, ok := b.topics[sessionID]
	if ok {
		if _, present := t.subs[sub]; present {
			delete(t.subs, sub)
			close(sub.ch)
			b.metrics.Subscribers.Dec()
		}
	}
	b.mu.Unlock()
}

// Publish stamps the session id and the next canonical sequence number
// onto the payload and delivers it to all current subscribers. It never
// blocks the caller.
func (b *Bus) Publish(sessionID string, payload event.Payload) event.Envelope {
	b.mu.Lock()
	t := b.topic(sessionID)
	t.seq++
	env := event.Envelope{
		Event:     payload.Kind(),
		SessionID: sessionID,
		Seq:       t.seq,
		Payload:   payload,
	}
	for sub := range t.subs {
		b.deliver(sub, env)
	}
	b.mu.Unlock()

	b.metrics.EventsPublished.WithLabelValues(string(payload.Kind())).Inc()
	return env
}

// deliver enqueues without blocking. On a full queue the oldest entry is
// popped first so the subscriber always observes the newest event.
func (b *Bus) deliver(sub *Subscription, env event.Envelope) {
	select {
	case sub.ch <- env:
		return
	default:
	}

	select {
	case <-sub.ch:
		b.metrics.EventsDropped.Inc()
	default:
	}

	select {
	case sub.ch <- env:
	default:
	}
}

// Seq returns the session's current sequence counter.
func (b *Bus) Seq(sessionID string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[sessionID]; ok {
		return t.seq
	}
	return 0
}

// ClearSession closes every subscription for the session and resets its
// sequence counter. Used for deliberate session teardown only.
func (b *Bus) ClearSession(sessionID string) {
	b.mu.Lock()
	t, ok := b.topics[sessionID]
	if ok {
		for sub := range t.subs {
			close(sub.ch)
			b.metrics.Subscribers.Dec()
		}
		delete(b.topics, sessionID)
	}
	b.mu.Unlock()
}
