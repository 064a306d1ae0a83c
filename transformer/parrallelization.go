package transformer

import (
	"math/rand/v2"
	"runtime"

	"github.com/sourcegraph/conc/pool"

	"github.com/manningwu07/sentencetransformer/tensor"
	"github.com/manningwu07/sentencetransformer/utils"
)

// rowModel is a shallow clone of the model: all weights/biases are shared
// (read-only), but per-module scratch and dropout RNGs are private, so
// several rows can run at once.
type rowModel struct {
	embedding *Embedding
	encoder   *Encoder
	fcOut     *Linear
}

func (m *Model) cloneForRow(rng *rand.Rand) *rowModel {
	enc := &Encoder{Layers: make([]TransformerBlock, len(m.Encoder.Layers))}
	for i := range m.Encoder.Layers {
		src := &m.Encoder.Layers[i]
		enc.Layers[i] = TransformerBlock{
			Attn:  cloneAttention(src.Attn),
			Mlp:   cloneMLP(src.Mlp, rng),
			Ln1:   src.Ln1, // stateless in forward
			Ln2:   src.Ln2,
			Drop1: src.Drop1.WithRNG(rng),
			Drop2: src.Drop2.WithRNG(rng),
		}
	}
	return &rowModel{embedding: m.Embedding, encoder: enc, fcOut: m.FcOut}
}

func cloneAttention(src *Attention) *Attention {
	a := &Attention{
		H:       src.H,
		DModel:  src.DModel,
		DHead:   src.DHead,
		Wquery:  src.Wquery, // shared read-only
		Wkey:    src.Wkey,
		Wvalue:  src.Wvalue,
		Bquery:  src.Bquery,
		Bkey:    src.Bkey,
		Bvalue:  src.Bvalue,
		Woutput: src.Woutput,
		Boutput: src.Boutput,
		debug:   src.debug,
	}
	a.allocScratch()
	return a
}

func cloneMLP(src *MLP, rng *rand.Rand) *MLP {
	return &MLP{
		Inputs:        src.Inputs,
		Hiddens:       src.Hiddens,
		Outputs:       src.Outputs,
		HiddenWeights: src.HiddenWeights, // shared read-only
		HiddenBias:    src.HiddenBias,
		OutputWeights: src.OutputWeights,
		OutputBias:    src.OutputBias,
		drop:          src.drop.WithRNG(rng),
	}
}

func (m *Model) workers(rows int) int {
	w := m.Config.Workers
	if w <= 0 {
		w = runtime.GOMAXPROCS(0)
	}
	return max(1, min(w, rows))
}

// forwardRows fans the batch rows out over a bounded pool. Each row writes
// a disjoint slice of out. A panic in any row is re-raised by Wait.
func (m *Model) forwardRows(batch *tensor.IntTensor, mask *tensor.FloatTensor, out *tensor.FloatTensor) {
	bs := batch.Shape()
	B, L := bs[0], bs[1]
	training := m.Training()
	call := m.calls.Add(1)

	p := pool.New().WithMaxGoroutines(m.workers(B))
	for b := 0; b < B; b++ {
		p.Go(func() {
			valid := make([]bool, L)
			for l, v := range mask.Slice(b) {
				valid[l] = v != 0
			}
			rng := rand.New(rand.NewPCG(m.Config.Seed^call, uint64(b)))
			m.cloneForRow(rng).forwardRow(batch.Row(b), valid, training, out.Slice(b))
		})
	}
	p.Wait()
	utils.Debugf("forward: %d rows done on %d workers", B, m.workers(B))
}
