// geo/geo.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package geo

import (
	"fmt"
	gomath "math"
)

const EarthRadius = 6371000 // metres

// MetersPerDegreeLatitude is the flat-earth conversion used by the
// dynamics integration; longitude scales by cos(latitude).
const MetersPerDegreeLatitude = 111320

///////////////////////////////////////////////////////////////////////////
// Point2LL

// Point2LL represents a 2D point on the Earth in latitude-longitude.
// Important: 0 (x) is longitude, 1 (y) is latitude
type Point2LL [2]float64

func MakePoint2LL(latitude, longitude float64) Point2LL {
	return Point2LL{longitude, latitude}
}

func (p Point2LL) Longitude() float64 {
	return p[0]
}

func (p Point2LL) Latitude() float64 {
	return p[1]
}

// DDString returns the position in decimal degrees, e.g.:
// (39.860901, -75.274864)
func (p Point2LL) DDString() string {
	return fmt.Sprintf("(%f, %f)", p[1], p[0]) // latitude, longitude
}

func (p Point2LL) IsZero() bool {
	return p[0] == 0 && p[1] == 0
}

func Radians(d float64) float64 { return d / 180 * gomath.Pi }
func Degrees(r float64) float64 { return r / gomath.Pi * 180 }

// Distance returns the great-circle distance in meters between two
// lat-long points.
func Distance(a Point2LL, b Point2LL) float64 {
	// https://www.movable-type.co.uk/scripts/latlong.html
	lat1, lon1 := Radians(a[1]), Radians(a[0])
	lat2, lon2 := Radians(b[1]), Radians(b[0])
	dlat, dlon := lat2-lat1, lon2-lon1

	x := sqr(gomath.Sin(dlat/2)) + gomath.Cos(lat1)*gomath.Cos(lat2)*sqr(gomath.Sin(dlon/2))
	c := 2 * gomath.Atan2(gomath.Sqrt(x), gomath.Sqrt(1-x))
	return EarthRadius * c
}

// Bearing returns the initial heading in degrees [0,360) along the
// great circle from |from| to |to|.
func Bearing(from Point2LL, to Point2LL) float64 {
	lat1, lon1 := Radians(from[1]), Radians(from[0])
	lat2, lon2 := Radians(to[1]), Radians(to[0])
	dlon := lon2 - lon1

	y := gomath.Sin(dlon) * gomath.Cos(lat2)
	x := gomath.Cos(lat1)*gomath.Sin(lat2) - gomath.Sin(lat1)*gomath.Cos(lat2)*gomath.Cos(dlon)
	return NormalizeHeading(Degrees(gomath.Atan2(y, x)))
}

// CrossTrackError returns the signed perpendicular distance in meters of
// |p| from the great-circle leg from |a| to |b|. Positive is right of
// track in the direction of travel.
func CrossTrackError(a, b, p Point2LL) float64 {
	d13 := Distance(a, p) / EarthRadius
	brg13 := Radians(Bearing(a, p))
	brg12 := Radians(Bearing(a, b))
	return gomath.Asin(gomath.Sin(d13)*gomath.Sin(brg13-brg12)) * EarthRadius
}

// Offset returns the point at distance dist meters along the given
// heading from p, using a locally flat earth.
func Offset(p Point2LL, hdg float64, dist float64) Point2LL {
	h := Radians(hdg)
	dn := dist * gomath.Cos(h)
	de := dist * gomath.Sin(h)
	return Point2LL{
		p[0] + de/(MetersPerDegreeLatitude*gomath.Cos(Radians(p[1]))),
		p[1] + dn/MetersPerDegreeLatitude,
	}
}

///////////////////////////////////////////////////////////////////////////
// headings

// NormalizeHeading reduces a heading to [0,360).
func NormalizeHeading(h float64) float64 {
	if h < 0 {
		return 360 - NormalizeHeading(-h)
	}
	return gomath.Mod(h, 360)
}

// HeadingDifference returns the minimum difference between two
// headings. (i.e., the result is always in the range [0,180].)
func HeadingDifference(a float64, b float64) float64 {
	var d float64
	if a > b {
		d = a - b
	} else {
		d = b - a
	}
	if d > 180 {
		d = 360 - d
	}
	return d
}

// HeadingSignedTurn returns the signed turn from cur to target; positive
// is a right turn. First find the angle to rotate the target heading by
// so that it's aligned with 180 degrees. This lets us not worry about the
// complexities of the wrap around at 0/360..
func HeadingSignedTurn(cur, target float64) float64 {
	rot := NormalizeHeading(180 - target)
	return 180 - NormalizeHeading(cur+rot) // w.r.t. 180 target
}

func OppositeHeading(h float64) float64 {
	return NormalizeHeading(h + 180)
}

func sqr(x float64) float64 { return x * x }
