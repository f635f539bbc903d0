// rand/rand.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rand

import (
	"github.com/MichaelTJones/pcg"
)

///////////////////////////////////////////////////////////////////////////
// Random numbers.

// Rand wraps a PCG32 generator. Every stochastic model in the simulator
// takes one of these explicitly so that runs are reproducible under test.
type Rand struct {
	r *pcg.PCG32
}

func New() *Rand {
	return &Rand{r: pcg.NewPCG32()}
}

func NewSeeded(s int64) *Rand {
	r := New()
	r.Seed(s)
	return r
}

func (r *Rand) Seed(s int64) {
	r.r.Seed(uint64(s), 0xda3e39cb94b95bdb)
}

func (r *Rand) Intn(n int) int {
	return int(r.r.Bounded(uint32(n)))
}

func (r *Rand) Uint32() uint32 {
	return r.r.Random()
}

func (r *Rand) Float32() float32 {
	return float32(r.r.Random()) / (1<<32 - 1)
}

func (r *Rand) Float64() float64 {
	return float64(r.r.Random()) / (1<<32 - 1)
}

// Float64In returns a uniform sample from [lo, hi).
func (r *Rand) Float64In(lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float64()
}

// SampleSlice uniformly randomly samples an element of a non-empty slice.
func SampleSlice[T any](r *Rand, slice []T) T {
	return slice[r.Intn(len(slice))]
}
