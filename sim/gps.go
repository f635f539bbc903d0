// sim/gps.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	gomath "math"

	"github.com/openuas/groundlink/geo"
	"github.com/openuas/groundlink/rand"
	"github.com/openuas/groundlink/telem"
)

type FixType string

const (
	FixNone FixType = "none"
	Fix2D   FixType = "2d"
	Fix3D   FixType = "3d"
	FixDGPS FixType = "dgps"
	FixRTK  FixType = "rtk"
)

const gpsSatelliteCount = 32

type Satellite struct {
	ID        int
	Elevation float64 // degrees above horizon; negative is below
	Azimuth   float64
	SNR       float64 // dB-Hz
	Healthy   bool
}

// Visible applies the receiver's tracking criteria.
func (s Satellite) Visible() bool {
	return s.Healthy && s.Elevation > 15 && s.SNR > 30
}

// GPS converts the aircraft's true position into the reported position,
// with satellite-geometry driven accuracy, fix-type derivation and
// optional forced correction modes.
type GPS struct {
	Satellites []Satellite

	fix         FixType
	forced      FixType // dgps or rtk when forced, "" otherwise
	baseStation float64 // distance to the DGPS base station, meters

	updateRate  float64 // Hz
	sinceReport float64

	reported    telem.Position
	haveReport  bool
	multipath   float64
	atmospheric float64

	rng *rand.Rand
}

func NewGPS(rng *rand.Rand) *GPS {
	g := &GPS{
		Satellites:  make([]Satellite, gpsSatelliteCount),
		updateRate:  10,
		atmospheric: 0.3,
		rng:         rng,
	}
	for i := range g.Satellites {
		g.Satellites[i] = Satellite{
			ID:        i + 1,
			Elevation: rng.Float64In(-30, 90),
			Azimuth:   rng.Float64In(0, 360),
			Healthy:   true,
		}
		g.Satellites[i].SNR = 35 + g.Satellites[i].Elevation/90*15
	}
	return g
}

// ForceMode switches to dgps or rtk corrections; FixNone reverts to
// automatic fix derivation. DGPS only takes if the base station is within
// 100 km.
func (g *GPS) ForceMode(mode FixType, baseStationDistance float64) bool {
	switch mode {
	case FixDGPS:
		if baseStationDistance >= 100000 {
			return false
		}
		g.forced = FixDGPS
		g.baseStation = baseStationDistance
	case FixRTK:
		g.forced = FixRTK
	default:
		g.forced = ""
	}
	return true
}

// Update advances the constellation and, at the configured report rate,
// recomputes the reported position from the true one.
func (g *GPS) Update(dt float64, truePos telem.Position) {
	for i := range g.Satellites {
		s := &g.Satellites[i]

		s.Azimuth = normDeg(s.Azimuth + 0.5/60*dt)
		s.Elevation += g.rng.Float64In(-0.02, 0.02) * dt * 60
		s.Elevation = clamp(s.Elevation, -30, 90)

		s.SNR = clamp(35+s.Elevation/90*15+g.rng.Float64In(-5, 5), 20, 50)

		if g.rng.Float64() < 1.0/10000 {
			s.Healthy = !s.Healthy
		}
	}

	// Slowly wandering error sources shared across satellites.
	g.multipath = clamp(g.multipath+g.rng.Float64In(-0.1, 0.1)*dt, -1, 1)
	g.atmospheric = clamp(g.atmospheric+g.rng.Float64In(-0.05, 0.05)*dt, 0.1, 1)

	g.fix = g.deriveFix()

	g.sinceReport += dt
	if g.sinceReport < 1/g.updateRate && g.haveReport {
		return
	}
	g.sinceReport = 0

	if g.fix == FixNone {
		// No fix: the reported position holds at its last value.
		if !g.haveReport {
			g.reported = truePos
			g.haveReport = true
		}
		return
	}

	err := g.Accuracy() + gomath.Abs(g.multipath) + g.atmospheric
	bearing := g.rng.Float64In(0, 360)
	walk := g.rng.Float64() * err

	ll := geo.Offset(truePos.LL(), bearing, walk)
	g.reported = telem.Position{
		Latitude:  ll.Latitude(),
		Longitude: ll.Longitude(),
		Altitude:  truePos.Altitude + g.rng.Float64In(-1, 1)*1.5*err,
	}
	if g.fix == Fix2D {
		// 2d fix carries no altitude.
		g.reported.Altitude = 0
	}
	g.haveReport = true
}

func (g *GPS) deriveFix() FixType {
	n := g.VisibleSatellites()
	switch {
	case n <= 3:
		return FixNone
	case n == 4:
		return Fix2D
	default:
		if g.forced != "" {
			return g.forced
		}
		return Fix3D
	}
}

func (g *GPS) VisibleSatellites() int {
	n := 0
	for _, s := range g.Satellites {
		if s.Visible() {
			n++
		}
	}
	return n
}

// HDOP grows as visible satellites get scarce or cluster low on the
// horizon.
func (g *GPS) HDOP() float64 {
	n, sumElev := 0, 0.0
	for _, s := range g.Satellites {
		if s.Visible() {
			n++
			sumElev += s.Elevation
		}
	}
	if n == 0 {
		return 99
	}
	meanElev := sumElev / float64(n)
	return 4 / gomath.Sqrt(float64(n)) * (1 + (45-meanElev)/45)
}

func (g *GPS) VDOP() float64 {
	return 1.5 * g.HDOP()
}

func (g *GPS) baseAccuracy() float64 {
	switch g.fix {
	case FixRTK:
		return 0.02
	case FixDGPS:
		return 1.0
	case Fix2D:
		return 5.0
	case Fix3D:
		return 2.5
	default:
		return 999
	}
}

// Accuracy is the estimated horizontal position error in meters.
func (g *GPS) Accuracy() float64 {
	if g.fix == FixNone {
		return 999
	}
	return g.baseAccuracy() * g.HDOP()
}

func (g *GPS) Fix() FixType {
	return g.fix
}

// Reported returns the position as the receiver would report it.
func (g *GPS) Reported() telem.Position {
	return g.reported
}

// DegradeForTest forces the constellation into a no-fix state; only
// called from tests and the GPS-loss scenario hooks.
func (g *GPS) DegradeForTest(visible int) {
	for i := range g.Satellites {
		if i < visible {
			g.Satellites[i].Elevation = 60
			g.Satellites[i].SNR = 45
			g.Satellites[i].Healthy = true
		} else {
			g.Satellites[i].Healthy = false
		}
	}
	g.fix = g.deriveFix()
}
