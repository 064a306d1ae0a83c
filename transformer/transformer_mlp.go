package transformer

import (
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/sentencetransformer/utils"
)

// MLP is the position-wise feed-forward sublayer: W2 * drop(gelu(W1 x + b1)) + b2.
type MLP struct {
	Inputs, Hiddens, Outputs  int
	HiddenWeights, HiddenBias *mat.Dense // (h x d), (h x 1)
	OutputWeights, OutputBias *mat.Dense // (d x h), (d x 1)

	drop *utils.Dropout
}

func (mlp *MLP) Forward(X *mat.Dense, training bool) *mat.Dense {
	hidden := utils.ToDense(utils.Dot(mlp.HiddenWeights, X)) // (h x T)
	utils.AddBiasInPlace(hidden, mlp.HiddenBias)
	hidden.Apply(utils.GeluApply, hidden)
	hidden = mlp.drop.Forward(hidden, training)
	out := utils.ToDense(utils.Dot(mlp.OutputWeights, hidden)) // (d x T)
	utils.AddBiasInPlace(out, mlp.OutputBias)
	return out
}

func (mlp *MLP) numParams() int {
	return mlp.Hiddens*mlp.Inputs + mlp.Hiddens + mlp.Outputs*mlp.Hiddens + mlp.Outputs
}
