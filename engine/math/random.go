package math

import "golang.org/x/exp/rand"

/**
 * @brief A seeded pseudo random stream. Instances draw their per-instance random
 * id from it so a given seed always produces the same sequence.
 */
type RandomStream struct {
	seed uint64
	rng  *rand.Rand
}

func NewRandomStream(seed uint64) *RandomStream {
	return &RandomStream{
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

/**
 * @brief Restarts the stream from its initial seed.
 */
func (r *RandomStream) Reset() {
	r.rng.Seed(r.seed)
}

func (r *RandomStream) Seed() uint64 {
	return r.seed
}

/**
 * @brief Returns a random value in [0, 1).
 */
func (r *RandomStream) Fraction() float32 {
	return r.rng.Float32()
}

/**
 * @brief Returns a random value in [min, max).
 */
func (r *RandomStream) FloatInRange(min, max float32) float32 {
	return min + (max-min)*r.rng.Float32()
}

/**
 * @brief Returns a random integer in [min, max].
 */
func (r *RandomStream) IntInRange(min, max int) int {
	if max <= min {
		return min
	}
	return min + r.rng.Intn(max-min+1)
}
