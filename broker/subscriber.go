// broker/subscriber.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package broker

import (
	"context"
	"sync"
)

// Subscriber is one connected client's view of the broker: a
// subscription set and a bounded egress queue. The transport's writer
// worker drains the queue with Next; the broker pushes matching
// publications into it without ever blocking.
type Subscriber struct {
	ID string

	mu     sync.Mutex
	topics map[string]struct{}
	queue  *egressQueue
	closed bool
}

// Subscribe adds a topic pattern; subscribing twice is the same as
// subscribing once.
func (s *Subscriber) Subscribe(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[topic] = struct{}{}
}

func (s *Subscriber) Unsubscribe(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.topics, topic)
}

func (s *Subscriber) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// Dropped returns how many queued messages were evicted under
// backpressure.
func (s *Subscriber) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.dropped
}

// Next blocks until a delivery is available, the context ends, or the
// subscriber is disconnected.
func (s *Subscriber) Next(ctx context.Context) (Delivery, error) {
	for {
		s.mu.Lock()
		if d, ok := s.queue.pop(); ok {
			s.mu.Unlock()
			return d, nil
		}
		if s.closed {
			s.mu.Unlock()
			return Delivery{}, ErrSubscriberClosed
		}
		ready := s.queue.ready
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Delivery{}, ctx.Err()
		case <-ready:
		}
	}
}

// matches reports whether any subscribed pattern matches the topic.
func (s *Subscriber) matches(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pattern := range s.topics {
		if MatchTopic(pattern, topic) {
			return true
		}
	}
	return false
}

// deliver pushes one delivery; false means the queue was full of
// critical traffic and the broker must disconnect this subscriber.
func (s *Subscriber) deliver(d Delivery) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true // already being torn down; nothing to do
	}
	before := s.queue.dropped
	ok := s.queue.push(d)
	if n := s.queue.dropped - before; n > 0 {
		droppedTotal.Add(float64(n))
	}
	return ok
}

// drained reports whether the queue is empty; used by cooperative
// shutdown.
func (s *Subscriber) drained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue.items) == 0
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.queue.close()
}
