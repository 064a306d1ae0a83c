package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/manningwu07/sentencetransformer/IO"
	"github.com/manningwu07/sentencetransformer/transformer"
	"github.com/manningwu07/sentencetransformer/utils"
)

// runCLI reads one text per line from r until EOF or "exit", runs it
// through m and writes the logits shape plus the argmax decode to w.
func runCLI(r io.Reader, w io.Writer, m *transformer.Model, codec *IO.TokenCodec) error {
	vocab := codec.Vocab()
	scanner := bufio.NewScanner(r)
	fmt.Fprintln(w, "Type a sentence, or 'exit' to quit.")
	for {
		fmt.Fprint(w, "> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "exit" {
			break
		}
		if input == "" {
			continue
		}
		if err := codec.Validate(input); err != nil {
			utils.Logger().Warn().Err(err).Msg("unknown characters will be encoded as padding")
		}

		seq := IO.Truncate(codec.Encode(input, IO.SentencePunctuation), m.Config.MaxSequenceLength)
		batch, err := IO.Pad([]IO.TokenSequence{seq}, vocab.PadIndex())
		if err != nil {
			return err
		}
		out, err := m.ForwardBatch(batch, IO.BuildMask(batch, vocab.PadIndex()))
		if err != nil {
			return err
		}

		argmax := make(IO.TokenSequence, batch.Width)
		for l := range argmax {
			argmax[l] = floats.MaxIdx(out.Slice(0, l))
		}
		fmt.Fprintf(w, "logits %s\n", out.Shape())
		fmt.Fprintf(w, "argmax %q\n", codec.Decode(argmax))
	}
	fmt.Fprintln(w)
	return scanner.Err()
}
