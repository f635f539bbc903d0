// broker/queue_test.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package broker

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDropOldest(t *testing.T) {
	q := newEgressQueue(3)
	for i := 0; i < 5; i++ {
		require.True(t, q.push(Delivery{Topic: "telemetry/ac1", Message: i}))
	}

	// 0 and 1 were evicted.
	var got []any
	for {
		d, ok := q.pop()
		if !ok {
			break
		}
		got = append(got, d.Message)
	}
	assert.Equal(t, []any{2, 3, 4}, got)
	assert.Equal(t, int64(2), q.dropped)
}

func TestQueueCriticalSurvivesEviction(t *testing.T) {
	q := newEgressQueue(3)
	require.True(t, q.push(Delivery{Message: "critical-1", critical: true}))
	require.True(t, q.push(Delivery{Message: "info-1"}))
	require.True(t, q.push(Delivery{Message: "info-2"}))
	require.True(t, q.push(Delivery{Message: "critical-2", critical: true}))

	var got []any
	for {
		d, ok := q.pop()
		if !ok {
			break
		}
		got = append(got, d.Message)
	}
	assert.Equal(t, []any{"critical-1", "info-2", "critical-2"}, got)
}

func TestQueueFullOfCriticalRefuses(t *testing.T) {
	q := newEgressQueue(2)
	require.True(t, q.push(Delivery{Message: "c1", critical: true}))
	require.True(t, q.push(Delivery{Message: "c2", critical: true}))
	assert.False(t, q.push(Delivery{Message: "c3", critical: true}))
	assert.False(t, q.push(Delivery{Message: "info"}))
}

func TestQueueUrgentJumps(t *testing.T) {
	q := newEgressQueue(10)
	for i := 0; i < 5; i++ {
		q.push(Delivery{Message: strconv.Itoa(i)})
	}
	q.push(Delivery{Message: "emergency", critical: true, urgent: true})

	d, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "emergency", d.Message)
}
