package transformer

import (
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/sentencetransformer/IO"
	"github.com/manningwu07/sentencetransformer/params"
	"github.com/manningwu07/sentencetransformer/tensor"
	"github.com/manningwu07/sentencetransformer/utils"
)

// Embedding is a learned lookup table of shape (vocab x dModel).
type Embedding struct {
	Weight *mat.Dense
}

func NewEmbedding(vocabSize, dModel int, rng *rand.Rand) *Embedding {
	return &Embedding{
		Weight: mat.NewDense(vocabSize, dModel, utils.RandomArray(rng, vocabSize*dModel, float64(dModel))),
	}
}

// EmbedSequence returns the (dModel x T) matrix whose column t is the row
// of ids[t]. Ids must already be range checked.
func (e *Embedding) EmbedSequence(ids []int) *mat.Dense {
	_, d := e.Weight.Dims()
	out := mat.NewDense(d, len(ids), nil)
	for t, id := range ids {
		out.SetCol(t, e.Weight.RawRowView(id))
	}
	return out
}

// Linear is y = W x + b applied to every column.
type Linear struct {
	W *mat.Dense // (out x in)
	B *mat.Dense // (out x 1)
}

func NewLinear(in, out int, rng *rand.Rand) *Linear {
	return &Linear{
		W: mat.NewDense(out, in, utils.RandomArray(rng, in*out, float64(in))),
		B: mat.NewDense(out, 1, utils.RandomArray(rng, out, float64(in))),
	}
}

func (l *Linear) Forward(X *mat.Dense) *mat.Dense {
	Y := utils.ToDense(utils.Dot(l.W, X))
	utils.AddBiasInPlace(Y, l.B)
	return Y
}

// Model is embedding -> encoder stack -> projection back to the vocabulary.
type Model struct {
	Config    params.ModelConfig
	VocabSize int

	Embedding *Embedding
	Encoder   *Encoder
	FcOut     *Linear

	training atomic.Bool
	calls    atomic.Uint64
}

// Assemble builds every parameter from cfg and vocabSize. The embedding
// and the output projection both take their size from vocabSize.
func Assemble(cfg params.ModelConfig, vocabSize int) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if vocabSize <= 0 {
		return nil, &params.ConfigurationError{Field: "vocab_size", Reason: fmt.Sprintf("must be positive, got %d", vocabSize)}
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	m := &Model{
		Config:    cfg,
		VocabSize: vocabSize,
		Embedding: NewEmbedding(vocabSize, cfg.DModel, rng),
		Encoder:   newEncoder(cfg, rng),
		FcOut:     NewLinear(cfg.DModel, vocabSize, rng),
	}
	utils.Logger().Debug().
		Int("vocab", vocabSize).
		Int("d_model", cfg.DModel).
		Int("nhead", cfg.NHead).
		Int("head_dim", cfg.HeadDim()).
		Int("layers", cfg.NumLayers).
		Int("params", m.NumParameters()).
		Msg("model assembled")
	return m, nil
}

// SetTraining switches dropout on or off. Models start in eval mode.
func (m *Model) SetTraining(on bool) { m.training.Store(on) }

func (m *Model) Training() bool { return m.training.Load() }

func (m *Model) NumParameters() int {
	n := m.VocabSize * m.Config.DModel
	for i := range m.Encoder.Layers {
		n += m.Encoder.Layers[i].numParams()
	}
	return n + m.Config.DModel*m.VocabSize + m.VocabSize
}

// Forward maps a (B, L) index batch and its (B, L) mask to (B, L, V) raw
// logits. Mask entries equal to 0 mark padding.
func (m *Model) Forward(batch *tensor.IntTensor, mask *tensor.FloatTensor) (*tensor.FloatTensor, error) {
	if batch == nil {
		return nil, &tensor.ShapeError{Op: "Forward batch", Want: tensor.Shape{-1, -1}, Got: nil}
	}
	if mask == nil {
		return nil, &tensor.ShapeError{Op: "Forward mask", Want: batch.Shape(), Got: nil}
	}
	bs := batch.Shape()
	if bs.NDim() != 2 {
		return nil, &tensor.ShapeError{Op: "Forward batch", Want: tensor.Shape{-1, -1}, Got: bs}
	}
	if ms := mask.Shape(); !ms.Equal(bs) {
		return nil, &tensor.ShapeError{Op: "Forward mask", Want: bs, Got: ms}
	}
	B, L := bs[0], bs[1]
	out := tensor.Zeros(B, L, m.VocabSize)
	if B == 0 || L == 0 {
		return out, nil
	}
	for b := 0; b < B; b++ {
		for l, id := range batch.Row(b) {
			if id < 0 || id >= m.VocabSize {
				return nil, fmt.Errorf("forward: token %d at (%d,%d) outside vocabulary of %d", id, b, l, m.VocabSize)
			}
		}
	}

	utils.Debugf("forward: B=%d L=%d V=%d training=%v", B, L, m.VocabSize, m.Training())
	m.forwardRows(batch, mask, out)
	return out, nil
}

// ForwardBatch is Forward for the IO pipeline types.
func (m *Model) ForwardBatch(b IO.PaddedBatch, mask IO.AttentionMask) (*tensor.FloatTensor, error) {
	bt, err := b.Tensor()
	if err != nil {
		return nil, err
	}
	mt, err := mask.Tensor()
	if err != nil {
		return nil, err
	}
	return m.Forward(bt, mt)
}

// forwardRow runs one sequence and writes its (L, V) logits into out[b].
func (r *rowModel) forwardRow(ids []int, valid []bool, training bool, dst []float64) {
	X := r.embedding.EmbedSequence(ids)
	Y := r.encoder.Forward(X, valid, training)
	logits := r.fcOut.Forward(Y) // (V x L)
	V, L := logits.Dims()
	for l := 0; l < L; l++ {
		for v := 0; v < V; v++ {
			dst[l*V+v] = logits.At(v, l)
		}
	}
}
