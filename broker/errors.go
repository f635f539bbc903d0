// broker/errors.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package broker

import "errors"

var (
	ErrBrokerClosed     = errors.New("broker is shut down")
	ErrBusDisconnected  = errors.New("external bus is not connected")
	ErrNoRoute          = errors.New("no route to destination aircraft")
	ErrSubscriberClosed = errors.New("subscriber is disconnected")
	ErrUnknownBusScheme = errors.New("unsupported external bus URL scheme")
)
