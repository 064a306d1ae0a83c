package transformer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/sentencetransformer/utils"
)

// Attention is multi-head self-attention over a (dModel x T) input.
type Attention struct {
	H       int
	DModel  int
	DHead   int
	Wquery  []*mat.Dense // per head (dHead x dModel)
	Wkey    []*mat.Dense
	Wvalue  []*mat.Dense
	Bquery  []*mat.Dense // per head (dHead x 1)
	Bkey    []*mat.Dense
	Bvalue  []*mat.Dense
	Woutput *mat.Dense // (dModel x dModel)
	Boutput *mat.Dense // (dModel x 1)

	// per-call scratch; never shared between clones
	Q, K, V []*mat.Dense
	Scores  []*mat.Dense
	A       []*mat.Dense
	O       []*mat.Dense
	lastT   int

	debug bool
}

// Forward attends every position to every valid position of X. valid[t]
// false means position t is padding: it receives no attention weight as a
// key and spends none as a query (its head outputs are zero).
func (attn *Attention) Forward(X *mat.Dense, valid []bool) *mat.Dense {
	_, T := X.Dims()
	if len(valid) != T {
		panic(fmt.Sprintf("Attention.Forward: mask has %d positions, input has %d", len(valid), T))
	}
	headsCat := mat.NewDense(attn.DModel, T, nil)
	rescale := 1.0 / math.Sqrt(float64(attn.DHead))
	mask := utils.KeyPaddingMask(valid)
	zeroRow := make([]float64, T)

	// prepare per-head scratch resized once per T
	if attn.lastT != T {
		for h := 0; h < attn.H; h++ {
			attn.Q[h] = mat.NewDense(attn.DHead, T, nil)
			attn.K[h] = mat.NewDense(attn.DHead, T, nil)
			attn.V[h] = mat.NewDense(attn.DHead, T, nil)
			attn.Scores[h] = mat.NewDense(T, T, nil)
			attn.A[h] = mat.NewDense(T, T, nil)
			attn.O[h] = mat.NewDense(attn.DHead, T, nil)
		}
		attn.lastT = T
	}

	for h := 0; h < attn.H; h++ {
		// Q,K,V
		attn.Q[h].Mul(attn.Wquery[h], X)
		utils.AddBiasInPlace(attn.Q[h], attn.Bquery[h])
		attn.K[h].Mul(attn.Wkey[h], X)
		utils.AddBiasInPlace(attn.K[h], attn.Bkey[h])
		attn.V[h].Mul(attn.Wvalue[h], X)
		utils.AddBiasInPlace(attn.V[h], attn.Bvalue[h])
		// S = (Q^T K)/sqrt
		attn.Scores[h].Mul(attn.Q[h].T(), attn.K[h])
		attn.Scores[h].Scale(rescale, attn.Scores[h])
		// A
		utils.RowSoftmaxMaskedInPlace(attn.A[h], attn.Scores[h], mask)
		for t, ok := range valid {
			if !ok {
				attn.A[h].SetRow(t, zeroRow)
			}
		}
		// O = V * A^T
		attn.O[h].Mul(attn.V[h], attn.A[h].T())
		// concat into headsCat rows
		base := h * attn.DHead
		dst := headsCat.Slice(base, base+attn.DHead, 0, T).(*mat.Dense)
		dst.Copy(attn.O[h])
	}

	// quick sanity check on head 0 attention row sums
	if attn.debug && attn.H > 0 {
		rs := utils.RowSums(attn.A[0])
		mn, mx := rs[0], rs[0]
		for _, v := range rs {
			mn = min(mn, v)
			mx = max(mx, v)
		}
		utils.Debugf("Attn: head0 A row-sum min/max = %.4f/%.4f (T=%d)", mn, mx, T)
	}

	Y := utils.ToDense(utils.Dot(attn.Woutput, headsCat))
	utils.AddBiasInPlace(Y, attn.Boutput)
	return Y
}

func (attn *Attention) numParams() int {
	// Q,K,V weights+biases across heads, then the output projection
	return 3*(attn.DModel*attn.DModel+attn.DModel) + attn.DModel*attn.DModel + attn.DModel
}
