package transformer

import (
	"math"
	"os"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manningwu07/sentencetransformer/IO"
	"github.com/manningwu07/sentencetransformer/params"
	"github.com/manningwu07/sentencetransformer/tensor"
	"github.com/manningwu07/sentencetransformer/utils"
)

func TestMain(m *testing.M) {
	utils.SetLogger(zerolog.Nop())
	os.Exit(m.Run())
}

func smallConfig() params.ModelConfig {
	cfg := params.DefaultConfig()
	cfg.DModel = 16
	cfg.NHead = 4
	cfg.NumLayers = 2
	cfg.DimFeedforward = 32
	cfg.Dropout = 0.1
	cfg.Seed = 7
	return cfg
}

func pipeline(t *testing.T, texts []string, mode IO.SplitMode) (*IO.Vocabulary, IO.PaddedBatch, IO.AttentionMask) {
	t.Helper()
	v := IO.NewVocabulary()
	c := IO.NewTokenCodec(v)
	b, err := IO.Pad(c.EncodeBatch(texts, mode), v.PadIndex())
	require.NoError(t, err)
	return v, b, IO.BuildMask(b, v.PadIndex())
}

func assertFinite(t *testing.T, out *tensor.FloatTensor) {
	t.Helper()
	for i, x := range out.Data() {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			t.Fatalf("non-finite logit %v at flat index %d", x, i)
		}
	}
}

func TestAssembleRejectsIndivisibleHeads(t *testing.T) {
	cfg := params.DefaultConfig()
	cfg.DModel, cfg.NHead = 10, 3

	m, err := Assemble(cfg, 99)
	assert.Nil(t, m)
	var cerr *params.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "d_model", cerr.Field)
	assert.ErrorIs(t, err, params.ErrInvalidConfig)
}

func TestAssembleRejectsEmptyVocab(t *testing.T) {
	_, err := Assemble(smallConfig(), 0)
	var cerr *params.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "vocab_size", cerr.Field)
}

func TestAssembleShapes(t *testing.T) {
	cfg := smallConfig()
	cfg.NumLayers = 3
	m, err := Assemble(cfg, 99)
	require.NoError(t, err)

	r, c := m.Embedding.Weight.Dims()
	assert.Equal(t, 99, r)
	assert.Equal(t, 16, c)
	require.Len(t, m.Encoder.Layers, 3)
	for _, layer := range m.Encoder.Layers {
		assert.Equal(t, 4, layer.Attn.H)
		assert.Equal(t, cfg.HeadDim(), layer.Attn.DHead)
		assert.Equal(t, 32, layer.Mlp.Hiddens)
	}
	r, c = m.FcOut.W.Dims()
	assert.Equal(t, 99, r)
	assert.Equal(t, 16, c)
	assert.False(t, m.Training())
}

func TestNumParameters(t *testing.T) {
	cfg := smallConfig()
	m, err := Assemble(cfg, 99)
	require.NoError(t, err)

	d, ff, V := cfg.DModel, cfg.DimFeedforward, 99
	perLayer := 4*d*d + 4*d + // attention
		d*ff + ff + ff*d + d + // mlp
		4*d // two layer norms
	want := V*d + cfg.NumLayers*perLayer + d*V + V
	assert.Equal(t, want, m.NumParameters())
}

func TestForwardShapeLaw(t *testing.T) {
	m, err := Assemble(smallConfig(), 99)
	require.NoError(t, err)

	for _, dims := range [][2]int{{1, 1}, {1, 5}, {3, 2}, {4, 9}} {
		B, L := dims[0], dims[1]
		rows := make([][]int, B)
		for b := range rows {
			rows[b] = make([]int, L)
			for l := range rows[b] {
				rows[b][l] = (b*7 + l*3 + 2) % 99
			}
		}
		batch, err := tensor.NewIntTensor(rows)
		require.NoError(t, err)
		out, err := m.Forward(batch, batch.NotEqual(0))
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{B, L, 99}, out.Shape())
		assertFinite(t, out)
	}
}

func TestForwardPangramScenario(t *testing.T) {
	v, b, mask := pipeline(t, []string{
		"The quick brown fox jumps over the lazy dog.",
		"Pack my box with five dozen liquor jugs.",
	}, IO.WholeTextAsOneUnit)

	m, err := Assemble(smallConfig(), v.Size())
	require.NoError(t, err)
	out, err := m.ForwardBatch(b, mask)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, b.Width, 99}, out.Shape())
	assertFinite(t, out)
}

func TestForwardPangramScenarioDefaultConfig(t *testing.T) {
	if testing.Short() {
		t.Skip("full-width model is slow")
	}
	v, b, mask := pipeline(t, []string{
		"The quick brown fox jumps over the lazy dog.",
		"Pack my box with five dozen liquor jugs.",
	}, IO.WholeTextAsOneUnit)

	m, err := Assemble(params.DefaultConfig(), v.Size())
	require.NoError(t, err)
	out, err := m.ForwardBatch(b, mask)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, b.Width, 99}, out.Shape())
}

func TestForwardMaskShapeMismatch(t *testing.T) {
	m, err := Assemble(smallConfig(), 99)
	require.NoError(t, err)
	batch, err := tensor.NewIntTensor([][]int{{2, 5, 6}, {2, 7, 0}})
	require.NoError(t, err)

	for _, bad := range []*tensor.FloatTensor{
		tensor.Zeros(2, 2),
		tensor.Zeros(3, 3),
		tensor.Zeros(2, 3, 1),
	} {
		_, err := m.Forward(batch, bad)
		var serr *tensor.ShapeError
		require.ErrorAs(t, err, &serr)
		assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
	}
}

func TestForwardRejectsNilInputs(t *testing.T) {
	m, err := Assemble(smallConfig(), 99)
	require.NoError(t, err)
	batch, err := tensor.NewIntTensor([][]int{{2, 5}})
	require.NoError(t, err)

	var out *tensor.FloatTensor
	require.NotPanics(t, func() { out, err = m.Forward(batch, nil) })
	assert.Nil(t, out)
	var serr *tensor.ShapeError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "Forward mask", serr.Op)

	require.NotPanics(t, func() { out, err = m.Forward(nil, batch.NotEqual(0)) })
	assert.Nil(t, out)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestForwardRejectsOutOfVocabIndex(t *testing.T) {
	m, err := Assemble(smallConfig(), 99)
	require.NoError(t, err)
	batch, err := tensor.NewIntTensor([][]int{{2, 99}})
	require.NoError(t, err)
	_, err = m.Forward(batch, batch.NotEqual(0))
	assert.ErrorContains(t, err, "outside vocabulary")
}

func TestForwardEmptyBatch(t *testing.T) {
	m, err := Assemble(smallConfig(), 99)
	require.NoError(t, err)
	_, b, mask := pipeline(t, nil, IO.SentencePunctuation)
	out, err := m.ForwardBatch(b, mask)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{0, 0, 99}, out.Shape())
}

// Logits of real tokens must not depend on how much padding follows them.
func TestForwardIgnoresPadding(t *testing.T) {
	m, err := Assemble(smallConfig(), 99)
	require.NoError(t, err)

	_, alone, aloneMask := pipeline(t, []string{"abc"}, IO.WholeTextAsOneUnit)
	_, padded, paddedMask := pipeline(t, []string{"abc", "a much longer neighbour"}, IO.WholeTextAsOneUnit)
	require.Greater(t, padded.Width, alone.Width)

	a, err := m.ForwardBatch(alone, aloneMask)
	require.NoError(t, err)
	p, err := m.ForwardBatch(padded, paddedMask)
	require.NoError(t, err)

	for l := 0; l < alone.Width; l++ {
		assert.InDeltaSlice(t, a.Slice(0, l), p.Slice(0, l), 1e-9, "position %d", l)
	}
}

func TestForwardAllPaddingRowIsFinite(t *testing.T) {
	m, err := Assemble(smallConfig(), 99)
	require.NoError(t, err)
	batch, err := tensor.NewIntTensor([][]int{{0, 0, 0}})
	require.NoError(t, err)
	out, err := m.Forward(batch, batch.NotEqual(0))
	require.NoError(t, err)
	assertFinite(t, out)
}

func TestForwardDeterministicInEval(t *testing.T) {
	_, b, mask := pipeline(t, []string{"Hi. There!", "ok"}, IO.SentencePunctuation)

	m1, err := Assemble(smallConfig(), 99)
	require.NoError(t, err)
	m2, err := Assemble(smallConfig(), 99)
	require.NoError(t, err)

	o1, err := m1.ForwardBatch(b, mask)
	require.NoError(t, err)
	o1again, err := m1.ForwardBatch(b, mask)
	require.NoError(t, err)
	o2, err := m2.ForwardBatch(b, mask)
	require.NoError(t, err)
	assert.Equal(t, o1.Data(), o1again.Data())
	assert.Equal(t, o1.Data(), o2.Data())

	cfg := smallConfig()
	cfg.Seed = 8
	m3, err := Assemble(cfg, 99)
	require.NoError(t, err)
	o3, err := m3.ForwardBatch(b, mask)
	require.NoError(t, err)
	assert.NotEqual(t, o1.Data(), o3.Data())
}

func TestTrainingModeAppliesDropout(t *testing.T) {
	cfg := smallConfig()
	cfg.Dropout = 0.5
	m, err := Assemble(cfg, 99)
	require.NoError(t, err)
	_, b, mask := pipeline(t, []string{"dropout changes things"}, IO.WholeTextAsOneUnit)

	eval, err := m.ForwardBatch(b, mask)
	require.NoError(t, err)
	m.SetTraining(true)
	train, err := m.ForwardBatch(b, mask)
	require.NoError(t, err)
	m.SetTraining(false)
	evalAgain, err := m.ForwardBatch(b, mask)
	require.NoError(t, err)

	assert.NotEqual(t, eval.Data(), train.Data())
	assert.Equal(t, eval.Data(), evalAgain.Data())
}

func TestWorkerCountDoesNotChangeResult(t *testing.T) {
	texts := []string{"one.", "two two.", "three three three.", "four"}
	_, b, mask := pipeline(t, texts, IO.SentencePunctuation)

	cfg := smallConfig()
	cfg.Workers = 1
	serial, err := Assemble(cfg, 99)
	require.NoError(t, err)
	cfg.Workers = 4
	parallel, err := Assemble(cfg, 99)
	require.NoError(t, err)

	s, err := serial.ForwardBatch(b, mask)
	require.NoError(t, err)
	p, err := parallel.ForwardBatch(b, mask)
	require.NoError(t, err)
	assert.Equal(t, s.Data(), p.Data())
}

func TestConcurrentForward(t *testing.T) {
	m, err := Assemble(smallConfig(), 99)
	require.NoError(t, err)
	_, b, mask := pipeline(t, []string{"shared weights", "read only."}, IO.SentencePunctuation)
	want, err := m.ForwardBatch(b, mask)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*tensor.FloatTensor, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = m.ForwardBatch(b, mask)
		}()
	}
	wg.Wait()
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, want.Data(), results[i].Data())
	}
}
