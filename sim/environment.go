// sim/environment.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	gomath "math"

	"github.com/openuas/groundlink/rand"
)

// ISA constants.
const (
	isaLapseRate     = 0.0065 // K/m
	isaSeaLevelTempK = 288.15
	isaSeaLevelPa    = 101325.0
	dryAirGasConst   = 287.05 // J/(kg K)
)

type PrecipitationType string

const (
	PrecipNone PrecipitationType = "none"
	PrecipRain PrecipitationType = "rain"
)

type Wind struct {
	Speed      float64 // m/s
	Direction  float64 // degrees, direction the wind blows from
	Gusts      float64 // m/s
	Turbulence float64 // [0,1]
}

type Atmosphere struct {
	Temperature float64 // Celsius at surface
	Pressure    float64 // hPa at surface
	Humidity    float64 // percent
	Density     float64 // kg/m^3 at surface
}

type Visibility struct {
	Range   float64 // meters
	Ceiling float64 // meters
}

type Precipitation struct {
	Type      PrecipitationType
	Intensity float64 // [0,1]
}

// EnvironmentConfig sets the base conditions the evolved state oscillates
// around.
type EnvironmentConfig struct {
	BaseWindSpeed     float64
	BaseWindDirection float64
	BaseTurbulence    float64
	TempAmplitude     float64
	BaseHumidity      float64
	BaseVisibility    float64
}

func DefaultEnvironmentConfig() EnvironmentConfig {
	return EnvironmentConfig{
		BaseWindSpeed:     5,
		BaseWindDirection: 270,
		BaseTurbulence:    0.2,
		TempAmplitude:     8,
		BaseHumidity:      55,
		BaseVisibility:    10000,
	}
}

// Environment evolves wind, atmosphere, visibility and precipitation over
// simulated time. All stochastic terms come from the provided generator
// so runs are reproducible.
type Environment struct {
	Wind          Wind
	Atmosphere    Atmosphere
	Visibility    Visibility
	Precipitation Precipitation

	config EnvironmentConfig
	t      float64 // accumulated sim time, seconds
	rng    *rand.Rand
}

func NewEnvironment(config EnvironmentConfig, rng *rand.Rand) *Environment {
	e := &Environment{config: config, rng: rng}
	e.Wind = Wind{
		Speed:      config.BaseWindSpeed,
		Direction:  config.BaseWindDirection,
		Turbulence: config.BaseTurbulence,
	}
	e.Atmosphere = Atmosphere{
		Temperature: 15,
		Pressure:    1013.25,
		Humidity:    config.BaseHumidity,
	}
	e.Atmosphere.Density = airDensity(e.Atmosphere)
	e.Visibility = Visibility{Range: config.BaseVisibility, Ceiling: 3000}
	e.Precipitation = Precipitation{Type: PrecipNone}
	return e
}

// Update advances the environment by dt seconds of simulated time.
func (e *Environment) Update(dt float64) {
	e.t += dt
	t := e.t
	twoPi := 2 * gomath.Pi

	// Wind speed is the base plus two slow sinusoids; never negative.
	e.Wind.Speed = e.config.BaseWindSpeed +
		2*gomath.Sin(twoPi*0.1*t) +
		1*gomath.Sin(twoPi*0.3*t)
	e.Wind.Speed = gomath.Max(0, e.Wind.Speed)

	e.Wind.Direction = normDeg(e.config.BaseWindDirection + 15*gomath.Sin(twoPi*0.05*t))

	// Occasional gusts that decay once triggered.
	if e.rng.Float64() < 0.01 {
		e.Wind.Gusts = e.Wind.Speed * (1.2 + e.rng.Float64In(0, 0.8))
	} else {
		e.Wind.Gusts = gomath.Max(0, e.Wind.Gusts-5*dt)
	}

	e.Wind.Turbulence = clamp(e.config.BaseTurbulence+e.rng.Float64In(-0.05, 0.05), 0, 1)

	e.Atmosphere.Temperature = 15 + e.config.TempAmplitude*gomath.Sin(0.001*t)
	e.Atmosphere.Pressure = 1013.25 + 20*gomath.Sin(0.0005*t)
	e.Atmosphere.Humidity = clamp(
		e.config.BaseHumidity+20*gomath.Sin(0.0003*t)+e.rng.Float64In(-1, 1), 10, 90)
	e.Atmosphere.Density = airDensity(e.Atmosphere)

	// Visibility degrades linearly once humidity passes 85%.
	e.Visibility.Range = e.config.BaseVisibility
	if h := e.Atmosphere.Humidity; h > 85 {
		e.Visibility.Range *= 1 - 0.8*(h-85)/15
	}

	// A slow weather cycle; rain sets in on the deep troughs when the air
	// is wet enough.
	cycle := gomath.Sin(0.0002 * t)
	if cycle < -0.7 && e.Atmosphere.Humidity > 80 {
		e.Precipitation.Type = PrecipRain
		e.Precipitation.Intensity = clamp(-cycle-0.5, 0, 1)
	} else {
		e.Precipitation.Type = PrecipNone
		e.Precipitation.Intensity = 0
	}
}

// airDensity computes surface density from the virtual temperature, which
// accounts for water vapor being lighter than dry air.
func airDensity(a Atmosphere) float64 {
	// Tetens saturation vapor pressure, hPa.
	es := 6.112 * gomath.Exp(17.67*a.Temperature/(a.Temperature+243.5))
	e := a.Humidity / 100 * es
	tVirtual := (a.Temperature + 273.15) / (1 - 0.378*e/a.Pressure)
	return a.Pressure * 100 / (dryAirGasConst * tVirtual)
}

///////////////////////////////////////////////////////////////////////////
// altitude-dependent lookups

// WindAtAltitude returns the wind with its magnitude scaled for the given
// altitude AGL; direction is unchanged.
func (e *Environment) WindAtAltitude(alt float64) Wind {
	w := e.Wind
	scale := gomath.Min(2, 1+alt/1000)
	w.Speed *= scale
	w.Gusts *= scale
	w.Turbulence = e.TurbulenceAtAltitude(alt)
	return w
}

func (e *Environment) TurbulenceAtAltitude(alt float64) float64 {
	t := e.Wind.Turbulence
	switch {
	case alt <= 3000:
		t *= 1 + 0.5*alt/3000
	case alt >= 5000 && alt <= 15000:
		t *= 1.3
	}
	return clamp(t, 0, 1)
}

// TemperatureAtAltitude applies the ISA lapse rate to the surface
// temperature.
func (e *Environment) TemperatureAtAltitude(alt float64) float64 {
	return e.Atmosphere.Temperature - isaLapseRate*alt
}

func (e *Environment) PressureAtAltitude(alt float64) float64 {
	tk := e.Atmosphere.Temperature + 273.15
	return e.Atmosphere.Pressure *
		gomath.Pow(1-isaLapseRate*alt/tk, 9.80665/(dryAirGasConst*isaLapseRate))
}

func (e *Environment) DensityAtAltitude(alt float64) float64 {
	a := Atmosphere{
		Temperature: e.TemperatureAtAltitude(alt),
		Pressure:    e.PressureAtAltitude(alt),
		Humidity:    e.Atmosphere.Humidity,
	}
	return airDensity(a)
}

// IsFlightSafe applies the fixed launch criteria to the current surface
// conditions.
func (e *Environment) IsFlightSafe() bool {
	return e.Wind.Speed <= 15 &&
		e.Wind.Gusts <= 20 &&
		e.Visibility.Range >= 5000 &&
		e.Precipitation.Intensity <= 0.5 &&
		e.Wind.Turbulence <= 0.7
}

func clamp(v, lo, hi float64) float64 {
	return gomath.Min(hi, gomath.Max(lo, v))
}

func normDeg(d float64) float64 {
	d = gomath.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}
