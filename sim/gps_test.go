// sim/gps_test.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"testing"

	"github.com/openuas/groundlink/geo"
	"github.com/openuas/groundlink/rand"
	"github.com/openuas/groundlink/telem"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPosition() telem.Position {
	return telem.Position{Latitude: 43.56, Longitude: 1.48, Altitude: 120}
}

func TestGPSFixDerivation(t *testing.T) {
	g := NewGPS(rand.NewSeeded(7))

	g.DegradeForTest(3)
	assert.Equal(t, FixNone, g.Fix())
	assert.Equal(t, 999.0, g.Accuracy())

	g.DegradeForTest(4)
	assert.Equal(t, Fix2D, g.Fix())

	g.DegradeForTest(9)
	assert.Equal(t, Fix3D, g.Fix())
}

func TestGPSHoldsPositionWithoutFix(t *testing.T) {
	g := NewGPS(rand.NewSeeded(7))
	g.DegradeForTest(10)

	pos := testPosition()
	g.Update(0.2, pos)
	last := g.Reported()
	require.NotZero(t, last.Latitude)

	// Lose the constellation; the aircraft keeps flying but the reported
	// position must freeze at its last value.
	g.DegradeForTest(0)
	moved := pos
	for i := 0; i < 20; i++ {
		moved.Latitude += 0.001
		g.Update(0.2, moved)
		assert.Equal(t, FixNone, g.Fix())
		assert.Equal(t, last, g.Reported())
	}
}

func TestGPSReportedNearTruth(t *testing.T) {
	g := NewGPS(rand.NewSeeded(7))
	g.DegradeForTest(12)

	pos := testPosition()
	for i := 0; i < 50; i++ {
		g.Update(0.2, pos)
		err := geo.Distance(g.Reported().LL(), pos.LL())
		assert.Less(t, err, 100.0)
	}
}

func TestGPSForcedModes(t *testing.T) {
	g := NewGPS(rand.NewSeeded(7))
	g.DegradeForTest(9)

	require.True(t, g.ForceMode(FixRTK, 0))
	g.Update(0.2, testPosition())
	assert.Equal(t, FixRTK, g.Fix())
	assert.Less(t, g.Accuracy(), 1.0)

	// DGPS needs a base station within range.
	assert.False(t, g.ForceMode(FixDGPS, 150000))
	require.True(t, g.ForceMode(FixDGPS, 5000))
	g.Update(0.2, testPosition())
	assert.Equal(t, FixDGPS, g.Fix())

	// With too few satellites the forced mode cannot hold.
	g.DegradeForTest(4)
	g.Update(0.2, testPosition())
	assert.Equal(t, Fix2D, g.Fix())
}

func TestGPSDOP(t *testing.T) {
	g := NewGPS(rand.NewSeeded(7))

	g.DegradeForTest(12)
	good := g.HDOP()
	g.DegradeForTest(5)
	poor := g.HDOP()
	assert.Less(t, good, poor)
	assert.InDelta(t, 1.5*g.HDOP(), g.VDOP(), 1e-9)
}
