package transformer

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/sentencetransformer/params"
	"github.com/manningwu07/sentencetransformer/utils"
)

// Encoder is the stack of identical blocks, indexed 0..NumLayers-1.
type Encoder struct {
	Layers []TransformerBlock
}

// TransformerBlock is a pre-norm encoder layer:
//
//	x = x + drop(Attn(Ln1(x)))
//	x = x + drop(MLP(Ln2(x)))
type TransformerBlock struct {
	Attn  *Attention
	Mlp   *MLP
	Ln1   *LayerNorm
	Ln2   *LayerNorm
	Drop1 *utils.Dropout
	Drop2 *utils.Dropout
}

// Initalization

func newEncoder(cfg params.ModelConfig, rng *rand.Rand) *Encoder {
	enc := &Encoder{Layers: make([]TransformerBlock, cfg.NumLayers)}
	for i := range cfg.NumLayers {
		enc.Layers[i] = TransformerBlock{
			Attn:  NewAttention(cfg.DModel, cfg.NHead, rng),
			Mlp:   NewMLP(cfg.DModel, cfg.DimFeedforward, cfg.Dropout, rng),
			Ln1:   NewLayerNorm(cfg.DModel, cfg.LayerNormEps),
			Ln2:   NewLayerNorm(cfg.DModel, cfg.LayerNormEps),
			Drop1: utils.NewDropout(cfg.Dropout, rng),
			Drop2: utils.NewDropout(cfg.Dropout, rng),
		}
		enc.Layers[i].Attn.debug = cfg.Debug
	}
	return enc
}

// NewAttention panics when dModel is not divisible by nHeads; Assemble
// validates the config before it gets here.
func NewAttention(dModel, nHeads int, rng *rand.Rand) *Attention {
	if nHeads <= 0 || dModel%nHeads != 0 {
		panic("dModel must be divisible by nHeads")
	}
	dHead := dModel / nHeads
	attn := &Attention{
		H:      nHeads,
		DModel: dModel,
		DHead:  dHead,
		Wquery: make([]*mat.Dense, nHeads),
		Wkey:   make([]*mat.Dense, nHeads),
		Wvalue: make([]*mat.Dense, nHeads),
		Bquery: make([]*mat.Dense, nHeads),
		Bkey:   make([]*mat.Dense, nHeads),
		Bvalue: make([]*mat.Dense, nHeads),
	}
	attn.allocScratch()
	for h := 0; h < nHeads; h++ {
		attn.Wquery[h] = mat.NewDense(dHead, dModel, utils.RandomArray(rng, dHead*dModel, float64(dModel)))
		attn.Wkey[h] = mat.NewDense(dHead, dModel, utils.RandomArray(rng, dHead*dModel, float64(dModel)))
		attn.Wvalue[h] = mat.NewDense(dHead, dModel, utils.RandomArray(rng, dHead*dModel, float64(dModel)))
		attn.Bquery[h] = mat.NewDense(dHead, 1, nil)
		attn.Bkey[h] = mat.NewDense(dHead, 1, nil)
		attn.Bvalue[h] = mat.NewDense(dHead, 1, nil)
	}
	attn.Woutput = mat.NewDense(dModel, dModel, utils.RandomArray(rng, dModel*dModel, float64(dModel)))
	attn.Boutput = mat.NewDense(dModel, 1, nil)
	return attn
}

func (attn *Attention) allocScratch() {
	attn.Q = make([]*mat.Dense, attn.H)
	attn.K = make([]*mat.Dense, attn.H)
	attn.V = make([]*mat.Dense, attn.H)
	attn.Scores = make([]*mat.Dense, attn.H)
	attn.A = make([]*mat.Dense, attn.H)
	attn.O = make([]*mat.Dense, attn.H)
	attn.lastT = 0
}

func NewMLP(dModel, hidden int, dropout float64, rng *rand.Rand) *MLP {
	return &MLP{
		Inputs:        dModel,
		Hiddens:       hidden,
		Outputs:       dModel,
		HiddenWeights: mat.NewDense(hidden, dModel, utils.RandomArray(rng, dModel*hidden, float64(dModel))),
		HiddenBias:    mat.NewDense(hidden, 1, nil),
		OutputWeights: mat.NewDense(dModel, hidden, utils.RandomArray(rng, hidden*dModel, float64(hidden))),
		OutputBias:    mat.NewDense(dModel, 1, nil),
		drop:          utils.NewDropout(dropout, rng),
	}
}

// Block forward with residuals.
func (b *TransformerBlock) Forward(X *mat.Dense, valid []bool, training bool) *mat.Dense {
	x1 := b.Ln1.Forward(X)
	attnOut := b.Drop1.Forward(b.Attn.Forward(x1, valid), training)
	xRes := utils.ToDense(utils.Add(X, attnOut))
	x2 := b.Ln2.Forward(xRes)
	mlpOut := b.Drop2.Forward(b.Mlp.Forward(x2, training), training)
	return utils.ToDense(utils.Add(xRes, mlpOut))
}

func (b *TransformerBlock) numParams() int {
	return b.Attn.numParams() + b.Mlp.numParams() + b.Ln1.numParams() + b.Ln2.numParams()
}

// Forward runs X (dModel x T) through every layer in order.
func (e *Encoder) Forward(X *mat.Dense, valid []bool, training bool) *mat.Dense {
	Y := X
	for i := range e.Layers {
		Y = e.Layers[i].Forward(Y, valid, training)
	}
	return Y
}
