// Copyright 2026 The JazzPetri Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rt

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Rng is an unshared pseudo-random source. It is not safe for concurrent
// use.
type Rng struct {
	r *rand.Rand
}

func newRng(seed uint64) *Rng {
	return &Rng{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Uint64 returns a uniformly distributed 64-bit value.
func (g *Rng) Uint64() uint64 { return g.r.Uint64() }

// IntN returns a value in [0, n). It panics if n <= 0.
func (g *Rng) IntN(n int) int { return g.r.IntN(n) }

// Float64 returns a value in [0.0, 1.0).
func (g *Rng) Float64() float64 { return g.r.Float64() }

// Shuffle pseudo-randomizes the order of n elements using swap.
func (g *Rng) Shuffle(n int, swap func(i, j int)) { g.r.Shuffle(n, swap) }

// Duration returns a value in [lo, hi). It returns lo if hi <= lo.
// Any pair of bounds is supported, including spans wider than
// math.MaxInt64.
func (g *Rng) Duration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	// The unsigned difference is exact for hi > lo; the sum wraps back into
	// [lo, hi).
	span := uint64(hi) - uint64(lo)
	return lo + time.Duration(g.r.Uint64N(span))
}

// seedSource hands out per-Rng seeds. A zero root draws from the
// runtime's global generator.
type seedSource struct {
	mu  sync.Mutex
	gen *rand.Rand
}

func newSeedSource(root uint64) *seedSource {
	if root == 0 {
		return &seedSource{}
	}
	return &seedSource{gen: rand.New(rand.NewPCG(root, root))}
}

func (s *seedSource) next() uint64 {
	if s.gen == nil {
		return rand.Uint64()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen.Uint64()
}
