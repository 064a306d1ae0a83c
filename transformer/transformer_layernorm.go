package transformer

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/sentencetransformer/utils"
)

// LayerNorm normalizes each column (one position) over the d features.
type LayerNorm struct {
	D     int
	Eps   float64
	Gamma *mat.Dense // (d x 1)
	Beta  *mat.Dense // (d x 1)
}

func NewLayerNorm(d int, eps float64) *LayerNorm {
	return &LayerNorm{
		D:     d,
		Eps:   eps,
		Gamma: utils.OnesLike(mat.NewDense(d, 1, nil)),
		Beta:  mat.NewDense(d, 1, nil),
	}
}

func (ln *LayerNorm) Forward(X *mat.Dense) *mat.Dense {
	d, T := X.Dims()
	if d != ln.D {
		panic("LayerNorm.Forward: feature dimension mismatch")
	}
	out := mat.NewDense(d, T, nil)
	col := make([]float64, d)
	for t := 0; t < T; t++ {
		mat.Col(col, t, X)
		mu := floats.Sum(col) / float64(d)
		var v float64
		for _, x := range col {
			diff := x - mu
			v += diff * diff
		}
		v /= float64(d)
		istd := 1.0 / math.Sqrt(v+ln.Eps)
		for i, x := range col {
			n := (x - mu) * istd
			out.Set(i, t, ln.Gamma.At(i, 0)*n+ln.Beta.At(i, 0))
		}
	}
	return out
}

func (ln *LayerNorm) numParams() int { return 2 * ln.D }
