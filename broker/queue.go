// broker/queue.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package broker

import (
	"time"
)

// Delivery is one message queued for a subscriber.
type Delivery struct {
	Topic     string
	Message   any
	Timestamp time.Time

	critical bool // exempt from drop-oldest
	urgent   bool // jumps the queue (emergency commands)
}

// egressQueue is one subscriber's bounded outbound queue. Push never
// blocks: on overflow the oldest non-critical entry is dropped; if the
// queue holds only critical entries the push fails and the caller
// disconnects the subscriber.
type egressQueue struct {
	items []Delivery
	max   int

	dropped int64
	closed  bool
	ready   chan struct{}
}

func newEgressQueue(max int) *egressQueue {
	return &egressQueue{max: max, ready: make(chan struct{}, 1)}
}

// push enqueues d. It reports false when the subscriber must be
// disconnected because nothing could be evicted. The caller holds the
// owning subscriber's lock.
func (q *egressQueue) push(d Delivery) bool {
	if q.closed {
		return false
	}

	if len(q.items) >= q.max {
		evicted := false
		for i, it := range q.items {
			if !it.critical {
				q.items = append(q.items[:i], q.items[i+1:]...)
				q.dropped++
				evicted = true
				break
			}
		}
		if !evicted {
			// Full of critical traffic the subscriber is not consuming.
			return false
		}
	}

	if d.urgent {
		q.items = append([]Delivery{d}, q.items...)
	} else {
		q.items = append(q.items, d)
	}
	q.signal()
	return true
}

func (q *egressQueue) pop() (Delivery, bool) {
	if len(q.items) == 0 {
		return Delivery{}, false
	}
	d := q.items[0]
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.signal()
	}
	return d, true
}

func (q *egressQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *egressQueue) close() {
	q.closed = true
	q.items = nil
	q.signal()
}
