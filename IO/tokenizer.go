package IO

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCharacter is returned by TokenCodec.Validate for input the
// vocabulary cannot represent.
var ErrUnknownCharacter = errors.New("character outside printable ASCII")

// SplitMode selects where end markers go.
type SplitMode int

const (
	// SentencePunctuation emits <eos> after every '.', '!' and '?'.
	SentencePunctuation SplitMode = iota
	// WholeTextAsOneUnit emits a single trailing <eos>.
	WholeTextAsOneUnit
)

func (m SplitMode) String() string {
	if m == WholeTextAsOneUnit {
		return "whole-text"
	}
	return "sentence-punctuation"
}

// TokenSequence always starts with <bos>.
type TokenSequence []int

// TokenCodec turns text into index sequences and back.
type TokenCodec struct {
	vocab *Vocabulary
}

func NewTokenCodec(v *Vocabulary) *TokenCodec {
	return &TokenCodec{vocab: v}
}

func (c *TokenCodec) Vocab() *Vocabulary { return c.vocab }

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// Encode tokenizes text one character (rune) at a time. Characters outside
// printable ASCII are replaced by <pad>; this is lossy and Decode cannot
// tell them apart from padding. Use Validate first if that matters.
func (c *TokenCodec) Encode(text string, mode SplitMode) TokenSequence {
	v := c.vocab
	ids := make(TokenSequence, 0, len(text)+2)
	ids = append(ids, v.bos)
	for _, r := range text {
		switch v.Classify(r) {
		case KindSpace:
			ids = append(ids, v.space)
		case KindPrintable:
			ids = append(ids, v.charIndex(r))
		default:
			ids = append(ids, v.pad)
		}
		if mode == SentencePunctuation && isSentenceEnd(r) {
			ids = append(ids, v.eos)
		}
	}
	if mode == WholeTextAsOneUnit {
		ids = append(ids, v.eos)
	}
	return ids
}

// EncodeBatch encodes each text independently, preserving order.
func (c *TokenCodec) EncodeBatch(texts []string, mode SplitMode) []TokenSequence {
	out := make([]TokenSequence, len(texts))
	for i, t := range texts {
		out[i] = c.Encode(t, mode)
	}
	return out
}

// Decode drops <bos>, <eos> and <pad>, turns <space> back into ' ' and
// skips indices outside the vocabulary.
func (c *TokenCodec) Decode(seq TokenSequence) string {
	var sb strings.Builder
	sb.Grow(len(seq))
	for _, id := range seq {
		switch c.vocab.ClassifyIndex(id) {
		case KindSpace:
			sb.WriteByte(' ')
		case KindPrintable:
			sb.WriteString(c.vocab.idToToken[id])
		}
	}
	return sb.String()
}

// Validate reports the first character Encode would have to substitute.
func (c *TokenCodec) Validate(text string) error {
	for off, r := range text {
		if c.vocab.Classify(r) == KindUnknown {
			return fmt.Errorf("%w: %q at byte %d", ErrUnknownCharacter, r, off)
		}
	}
	return nil
}

// Truncate caps seq at maxLen tokens (maxLen <= 0 means no cap). It is
// for callers enforcing max_sequence_length; Pad never truncates.
func Truncate(seq TokenSequence, maxLen int) TokenSequence {
	if maxLen <= 0 || len(seq) <= maxLen {
		return seq
	}
	return append(TokenSequence(nil), seq[:maxLen]...)
}
