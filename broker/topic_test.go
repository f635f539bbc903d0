// broker/topic_test.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchTopic(t *testing.T) {
	for _, tc := range []struct {
		pattern, topic string
		want           bool
	}{
		{"telemetry/ac1", "telemetry/ac1", true},
		{"telemetry/ac1", "telemetry/ac2", false},
		{"telemetry/ac1", "alerts/ac1", false},
		{"telemetry/*", "telemetry/ac1", true},
		{"telemetry/*", "telemetry/ac1/extra", true},
		{"telemetry/*", "telemetry", false},
		{"telemetry/*", "alerts/ac1", false},
		{"*", "telemetry/ac1", true},
		{"*", "paparazzi/telemetry/ac1", true},
		{"paparazzi/*", "paparazzi/telemetry/ac1", true},
		{"commands/ac1", "commands/ac1", true},
	} {
		assert.Equal(t, tc.want, MatchTopic(tc.pattern, tc.topic),
			"pattern %q topic %q", tc.pattern, tc.topic)
	}
}
