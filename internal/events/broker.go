// Package events fans access decisions out to long-lived stream readers.
//
// Each subscriber owns a bounded FIFO. Publish never waits on a reader: a
// subscriber whose queue is full is dropped and its queue closed after the
// messages already in it. Dropped readers get no replay.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

const DefaultCapacity = 100

// PingFrame is written at the start of every stream so proxies and clients
// see the response open immediately.
var PingFrame = []byte("event: ping\ndata: {}\n\n")

// Message is one serialized event.
type Message struct {
	Event string
	Data  json.RawMessage
}

// Frame renders m in text/event-stream framing.
func (m Message) Frame() []byte {
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", m.Event, m.Data))
}

// Subscription is a reader's handle. Receive from C until it is closed.
type Subscription struct {
	C  <-chan Message
	ch chan Message

	// mu pairs offer with shut so a send never races the close.
	mu   sync.Mutex
	done bool
}

// offer reports whether the message was queued. A shut subscription
// accepts nothing.
func (s *Subscription) offer(m Message) (queued, full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false, false
	}
	select {
	case s.ch <- m:
		return true, false
	default:
		return false, true
	}
}

func (s *Subscription) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.done = true
		close(s.ch)
	}
}

type Broker struct {
	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	capacity int
	closed   bool
}

func NewBroker(capacity int) *Broker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Broker{
		subs:     make(map[*Subscription]struct{}),
		capacity: capacity,
	}
}

// Subscribe registers a new reader. After Close it returns a subscription
// whose channel is already closed.
func (b *Broker) Subscribe() *Subscription {
	ch := make(chan Message, b.capacity)
	s := &Subscription{C: ch, ch: ch}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.shut()
		return s
	}
	b.subs[s] = struct{}{}
	subscribersGauge.Set(float64(len(b.subs)))
	return s
}

// Unsubscribe removes s and closes its channel. Safe to call repeatedly.
func (b *Broker) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(s)
}

func (b *Broker) removeLocked(s *Subscription) bool {
	if _, ok := b.subs[s]; !ok {
		return false
	}
	delete(b.subs, s)
	s.shut()
	subscribersGauge.Set(float64(len(b.subs)))
	return true
}

// Publish encodes payload as JSON and offers it to every subscriber without
// blocking. It returns how many subscribers accepted the message; full ones
// are dropped. The registry lock is held only to copy the subscriber set
// and later to evict the full ones, never across a send.
func (b *Broker) Publish(event string, payload any) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode %s event: %w", event, err)
	}
	msg := Message{Event: event, Data: data}

	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	delivered := 0
	var full []*Subscription
	for _, s := range subs {
		queued, isFull := s.offer(msg)
		if queued {
			delivered++
		}
		if isFull {
			full = append(full, s)
		}
	}

	if len(full) > 0 {
		b.mu.Lock()
		for _, s := range full {
			if b.removeLocked(s) {
				droppedTotal.Inc()
			}
		}
		b.mu.Unlock()
	}
	publishedTotal.WithLabelValues(event).Inc()
	return delivered, nil
}

// Len returns the number of registered subscribers.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close drops every subscriber. Readers drain what is queued, then see
// their channel closed.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for s := range b.subs {
		b.removeLocked(s)
	}
}

// Stream subscribes and copies frames to w until ctx ends, the subscription
// is dropped, or a write fails. flush may be nil. The subscription is
// always released on return.
func (b *Broker) Stream(ctx context.Context, w io.Writer, flush func()) error {
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	if flush == nil {
		flush = func() {}
	}
	if _, err := w.Write(PingFrame); err != nil {
		return err
	}
	flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C:
			if !ok {
				return nil
			}
			if _, err := w.Write(msg.Frame()); err != nil {
				return err
			}
			flush()
		}
	}
}
