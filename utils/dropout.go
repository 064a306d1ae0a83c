package utils

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Dropout zeroes activations with probability Rate and rescales survivors
// by 1/(1-Rate). Outside training it is the identity.
type Dropout struct {
	Rate float64
	rng  *rand.Rand
}

func NewDropout(rate float64, rng *rand.Rand) *Dropout {
	return &Dropout{Rate: rate, rng: rng}
}

// Forward applies dropout; x is never modified.
func (d *Dropout) Forward(x *mat.Dense, training bool) *mat.Dense {
	if !training || d == nil || d.Rate <= 0 {
		return x
	}
	scale := 1.0 / (1.0 - d.Rate)
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, _ int, v float64) float64 {
		if d.rng.Float64() < d.Rate {
			return 0
		}
		return v * scale
	}, x)
	return out
}

// WithRNG returns a copy drawing from rng, so clones never share a source.
func (d *Dropout) WithRNG(rng *rand.Rand) *Dropout {
	if d == nil {
		return nil
	}
	return &Dropout{Rate: d.Rate, rng: rng}
}
