package IO

import (
	"errors"
	"fmt"

	"github.com/manningwu07/sentencetransformer/tensor"
)

var ErrInvalidPadIndex = errors.New("pad index must be non-negative")

// PaddedBatch holds equally long rows, right-filled with PadIndex.
type PaddedBatch struct {
	Rows     [][]int
	Width    int
	PadIndex int
}

// Pad right-pads every sequence to the longest one. An empty input gives an
// empty batch. Nothing is ever truncated and the inputs are not aliased.
func Pad(seqs []TokenSequence, padIndex int) (PaddedBatch, error) {
	if padIndex < 0 {
		return PaddedBatch{}, fmt.Errorf("pad %d: %w", padIndex, ErrInvalidPadIndex)
	}
	maxLen := 0
	for _, s := range seqs {
		maxLen = max(maxLen, len(s))
	}
	rows := make([][]int, len(seqs))
	for i, s := range seqs {
		row := make([]int, maxLen)
		n := copy(row, s)
		for j := n; j < maxLen; j++ {
			row[j] = padIndex
		}
		rows[i] = row
	}
	return PaddedBatch{Rows: rows, Width: maxLen, PadIndex: padIndex}, nil
}

// Size returns (rows, width).
func (b PaddedBatch) Size() (int, int) { return len(b.Rows), b.Width }

// Tensor converts the batch into a (B, L) integer tensor.
func (b PaddedBatch) Tensor() (*tensor.IntTensor, error) {
	return tensor.NewIntTensor(b.Rows)
}

// AttentionMask marks attendable (non-pad) positions of a PaddedBatch.
type AttentionMask struct {
	Valid [][]bool
}

// BuildMask is elementwise batch != padIndex.
func BuildMask(b PaddedBatch, padIndex int) AttentionMask {
	valid := make([][]bool, len(b.Rows))
	for i, row := range b.Rows {
		v := make([]bool, len(row))
		for j, id := range row {
			v[j] = id != padIndex
		}
		valid[i] = v
	}
	return AttentionMask{Valid: valid}
}

// Tensor converts the mask into a (B, L) 0/1 float tensor.
func (m AttentionMask) Tensor() (*tensor.FloatTensor, error) {
	return tensor.FromBoolRows(m.Valid)
}
