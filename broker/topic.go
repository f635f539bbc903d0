// broker/topic.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package broker routes published telemetry, alerts and status records
// to subscribers by topic, delivers commands to the addressed aircraft,
// and optionally bridges everything onto an external message bus.
package broker

import "strings"

// MatchTopic reports whether a subscription pattern matches a concrete
// topic. Topics are slash-separated; a pattern is either an exact topic,
// a prefix with a trailing wildcard ("telemetry/*"), or the catch-all
// "*".
func MatchTopic(pattern, topic string) bool {
	if pattern == "*" {
		return true
	}
	if suffix, ok := strings.CutSuffix(pattern, "/*"); ok {
		return strings.HasPrefix(topic, suffix+"/")
	}
	return pattern == topic
}
