package utils

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Matrix functions used by the encoder. Activations are laid out as
// (features x T): one column per sequence position.

// r = rows of matrix
// c = columns of matrix
// o = output
// m = matrix input number 1
// n = matrix input number 2

func Dot(m, n mat.Matrix) mat.Matrix {
	r, _ := m.Dims()
	_, c := n.Dims()
	o := mat.NewDense(r, c, nil)
	o.Product(m, n)
	return o
}

func Add(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Add(m, n)
	return o
}

func ToDense(m mat.Matrix) *mat.Dense {
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(m)
}

func OnesLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	data := make([]float64, r*c)
	for i := range data {
		data[i] = 1
	}
	return mat.NewDense(r, c, data)
}

// RandomArray draws size values uniformly from ±1/sqrt(v), v being the fan-in.
func RandomArray(rng *rand.Rand, size int, v float64) []float64 {
	lo := -1.0 / math.Sqrt(v+1e-12)
	hi := 1.0 / math.Sqrt(v+1e-12)
	out := make([]float64, size)
	for i := range out {
		out[i] = lo + (hi-lo)*rng.Float64()
	}
	return out
}

// -------- GELU activation (GPT-style) --------
// gelu(x) = 0.5 * x * (1 + tanh( sqrt(2/pi) * (x + 0.044715*x^3) ))

func GeluApply(i, j int, x float64) float64 {
	const k = 0.7978845608028654 // sqrt(2/pi)
	t := k * (x + 0.044715*x*x*x)
	return 0.5 * x * (1.0 + math.Tanh(t))
}

// AddBiasInPlace adds the (r x 1) bias to every column of m.
func AddBiasInPlace(m, bias *mat.Dense) {
	r, c := m.Dims()
	if rb, cb := bias.Dims(); rb != r || cb != 1 {
		panic(fmt.Sprintf("addBias: bias must be (%d x 1), got (%d x %d)", r, rb, cb))
	}
	for i := 0; i < r; i++ {
		b := bias.At(i, 0)
		row := m.RawRowView(i)
		for j := 0; j < c; j++ {
			row[j] += b
		}
	}
}

// NegInf stands in for -Inf in additive masks so exp() underflows to 0
// without producing NaN from (-Inf) - (-Inf).
const NegInf = -1e30

// KeyPaddingMask returns a (T x T) additive mask: column j is 0 when
// valid[j] is true and NegInf otherwise, for every query row.
func KeyPaddingMask(valid []bool) *mat.Dense {
	T := len(valid)
	out := mat.NewDense(T, T, nil)
	for j, ok := range valid {
		if ok {
			continue
		}
		for i := 0; i < T; i++ {
			out.Set(i, j, NegInf)
		}
	}
	return out
}

// ---------- Softmax variants ----------

// RowSoftmaxMaskedInPlace writes softmax(m+mask) into dst (r x c) in place.
// A row whose every entry is masked comes out as all zeros.
func RowSoftmaxMaskedInPlace(dst, m, mask *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	if dr, dc := dst.Dims(); dr != r || dc != c {
		panic("RowSoftmaxMaskedInPlace: dst shape mismatch")
	}
	if mr, mc := mask.Dims(); mr != r || mc != c {
		panic("RowSoftmaxMaskedInPlace: mask shape mismatch")
	}
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		allMasked := true
		for j := 0; j < c; j++ {
			mv := mask.At(i, j)
			if mv > NegInf/2 {
				allMasked = false
			}
			row[j] = m.At(i, j) + mv
		}
		if allMasked {
			for j := 0; j < c; j++ {
				dst.Set(i, j, 0)
			}
			continue
		}
		mx := floats.Max(row)
		for j := range row {
			row[j] = math.Exp(row[j] - mx)
		}
		floats.Scale(1/floats.Sum(row), row)
		dst.SetRow(i, row)
	}
	return dst
}

// RowSums returns per-row sums for a mat.Dense.
func RowSums(m *mat.Dense) []float64 {
	r, _ := m.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = floats.Sum(m.RawRowView(i))
	}
	return out
}
