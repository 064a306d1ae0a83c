package transformer

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/sentencetransformer/utils"
)

func randomInput(rng *rand.Rand, d, T int) *mat.Dense {
	return mat.NewDense(d, T, utils.RandomArray(rng, d*T, 1))
}

func TestAttentionMaskedQueryGetsOnlyOutputBias(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	attn := NewAttention(8, 2, rng)
	attn.Boutput = mat.NewDense(8, 1, utils.RandomArray(rng, 8, 1))

	Y := attn.Forward(randomInput(rng, 8, 4), []bool{true, true, false, false})
	for _, tcol := range []int{2, 3} {
		assert.InDeltaSlice(t, attn.Boutput.RawMatrix().Data, mat.Col(nil, tcol, Y), 1e-12)
	}
	for h := 0; h < attn.H; h++ {
		for q := 0; q < 2; q++ {
			row := attn.A[h].RawRowView(q)
			assert.InDelta(t, 1.0, floats.Sum(row), 1e-12)
			assert.Zero(t, row[2])
			assert.Zero(t, row[3])
		}
	}
}

func TestAttentionAllMaskedIsFinite(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	attn := NewAttention(8, 4, rng)
	Y := attn.Forward(randomInput(rng, 8, 3), []bool{false, false, false})
	for _, x := range Y.RawMatrix().Data {
		require.False(t, math.IsNaN(x))
	}
}

func TestAttentionRejectsMaskLengthMismatch(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	attn := NewAttention(8, 2, rng)
	assert.Panics(t, func() { attn.Forward(randomInput(rng, 8, 3), []bool{true}) })
}

func TestAttentionScratchResizes(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	attn := NewAttention(8, 2, rng)
	attn.Forward(randomInput(rng, 8, 5), []bool{true, true, true, true, true})
	Y := attn.Forward(randomInput(rng, 8, 2), []bool{true, true})
	r, c := Y.Dims()
	assert.Equal(t, 8, r)
	assert.Equal(t, 2, c)
}

func TestNewAttentionPanicsOnIndivisibleHeads(t *testing.T) {
	assert.Panics(t, func() { NewAttention(10, 3, rand.New(rand.NewPCG(0, 0))) })
}

func TestLayerNormNormalizesColumns(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 10))
	ln := NewLayerNorm(6, 1e-5)
	Y := ln.Forward(randomInput(rng, 6, 3))
	for c := 0; c < 3; c++ {
		col := mat.Col(nil, c, Y)
		mean := floats.Sum(col) / 6
		assert.InDelta(t, 0, mean, 1e-9)
		var v float64
		for _, x := range col {
			v += (x - mean) * (x - mean)
		}
		assert.InDelta(t, 1, v/6, 1e-2)
	}
}

func TestMLPShape(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	mlp := NewMLP(8, 16, 0.1, rng)
	Y := mlp.Forward(randomInput(rng, 8, 5), false)
	r, c := Y.Dims()
	assert.Equal(t, 8, r)
	assert.Equal(t, 5, c)
	assert.Equal(t, 8*16+16+16*8+8, mlp.numParams())
}
