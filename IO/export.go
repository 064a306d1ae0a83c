package IO

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/manningwu07/sentencetransformer/utils"
)

// vocabFile is the on-disk shape written by ExportVocabJSON.
type vocabFile struct {
	TokenToID map[string]int `json:"TokenToID"`
	IDToToken []string       `json:"IDToToken"`
	Pad       int            `json:"pad"`
	EOS       int            `json:"eos"`
	BOS       int            `json:"bos"`
	Space     int            `json:"space"`
}

// ExportVocabJSON writes the vocabulary tables for tools outside this module.
func ExportVocabJSON(v *Vocabulary, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	tok2id := make(map[string]int, len(v.tokenToID))
	for k, id := range v.tokenToID {
		tok2id[k] = id
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(vocabFile{
		TokenToID: tok2id,
		IDToToken: v.Symbols(),
		Pad:       v.pad,
		EOS:       v.eos,
		BOS:       v.bos,
		Space:     v.space,
	})
}

// CheckVocabJSON verifies that a file written by ExportVocabJSON matches v.
func CheckVocabJSON(v *Vocabulary, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var vf vocabFile
	if err := json.Unmarshal(raw, &vf); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if len(vf.IDToToken) != v.Size() {
		return fmt.Errorf("vocab %s: size %d, want %d", path, len(vf.IDToToken), v.Size())
	}
	for i, sym := range vf.IDToToken {
		if sym != v.idToToken[i] {
			return fmt.Errorf("vocab %s: index %d is %q, want %q", path, i, sym, v.idToToken[i])
		}
	}
	if vf.Pad != v.pad || vf.EOS != v.eos || vf.BOS != v.bos || vf.Space != v.space {
		return fmt.Errorf("vocab %s: control indices differ", path)
	}
	return nil
}

// ExportTokenIDsBinary encodes inPath line by line and writes:
//
//   - <prefix>-NNN.bin = concatenated uint32 token sequences
//   - <prefix>-NNN.idx = uint64 (byte offset, length) per line
//
// A new shard is started before the next line once a .bin reaches
// maxShardBytes, so no shard is ever left empty.
// Returns the number of sequences written.
func ExportTokenIDsBinary(codec *TokenCodec, mode SplitMode, inPath, outPrefix string, maxShardBytes int64) (int, error) {
	inF, err := os.Open(inPath)
	if err != nil {
		return 0, err
	}
	defer inF.Close()
	if err := os.MkdirAll(filepath.Dir(outPrefix), 0o755); err != nil {
		return 0, err
	}
	reader := bufio.NewReader(inF)
	log := utils.Logger()

	shard := 0
	var (
		dataF, idxF *os.File
		wData, wIdx *bufio.Writer
		cur         int64
	)
	closeShard := func() error {
		if dataF == nil {
			return nil
		}
		return errors.Join(wData.Flush(), wIdx.Flush(), dataF.Close(), idxF.Close())
	}
	openShard := func() error {
		if err := closeShard(); err != nil {
			return err
		}
		var err error
		dataF, err = os.Create(ShardPath(outPrefix, shard, ".bin"))
		if err != nil {
			return err
		}
		idxF, err = os.Create(ShardPath(outPrefix, shard, ".idx"))
		if err != nil {
			dataF.Close()
			return err
		}
		wData = bufio.NewWriter(dataF)
		wIdx = bufio.NewWriter(idxF)
		cur = 0
		return nil
	}

	if err := openShard(); err != nil {
		return 0, err
	}

	buf4 := make([]byte, 4)
	buf8 := make([]byte, 8)
	lines := 0
	for {
		line, rerr := reader.ReadString('\n')
		if rerr != nil && rerr != io.EOF {
			return lines, errors.Join(rerr, closeShard())
		}
		line = trimNewline(line)
		if line != "" {
			if verr := codec.Validate(line); verr != nil {
				log.Warn().Int("line", lines+1).Err(verr).Msg("lossy encoding")
			}
			ids := codec.Encode(line, mode)

			// roll over only when there is something to put in the next shard
			if maxShardBytes > 0 && cur >= maxShardBytes {
				shard++
				if err := openShard(); err != nil {
					return lines, err
				}
			}
			if err := writeEntry(wData, wIdx, buf4, buf8, cur, ids); err != nil {
				return lines, errors.Join(err, closeShard())
			}
			cur += int64(4 * len(ids))
			lines++
		}
		if rerr == io.EOF {
			break
		}
	}
	log.Debug().Int("sequences", lines).Int("shards", shard+1).Str("prefix", outPrefix).Msg("export done")
	return lines, closeShard()
}

// writeEntry appends one (offset, length) index record and the ids it points at.
func writeEntry(wData, wIdx io.Writer, buf4, buf8 []byte, offset int64, ids TokenSequence) error {
	binary.LittleEndian.PutUint64(buf8, uint64(offset))
	if _, err := wIdx.Write(buf8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(buf8, uint64(len(ids)))
	if _, err := wIdx.Write(buf8); err != nil {
		return err
	}
	for _, id := range ids {
		binary.LittleEndian.PutUint32(buf4, uint32(id))
		if _, err := wData.Write(buf4); err != nil {
			return err
		}
	}
	return nil
}

// ReadTokenIDShard loads every sequence of one shard written by ExportTokenIDsBinary.
func ReadTokenIDShard(outPrefix string, shard int) ([]TokenSequence, error) {
	data, err := os.ReadFile(ShardPath(outPrefix, shard, ".bin"))
	if err != nil {
		return nil, err
	}
	idx, err := os.ReadFile(ShardPath(outPrefix, shard, ".idx"))
	if err != nil {
		return nil, err
	}
	if len(idx)%16 != 0 {
		return nil, fmt.Errorf("shard %d: truncated index (%d bytes)", shard, len(idx))
	}
	out := make([]TokenSequence, 0, len(idx)/16)
	for p := 0; p < len(idx); p += 16 {
		start := binary.LittleEndian.Uint64(idx[p:])
		n := binary.LittleEndian.Uint64(idx[p+8:])
		size := uint64(len(data))
		if start > size || n > (size-start)/4 {
			return nil, fmt.Errorf("shard %d: entry %d (offset %d, len %d) overruns %d data bytes", shard, p/16, start, n, size)
		}
		seq := make(TokenSequence, n)
		for i := range seq {
			seq[i] = int(binary.LittleEndian.Uint32(data[start+uint64(4*i):]))
		}
		out = append(out, seq)
	}
	return out, nil
}

// ShardPath names shard files, e.g. ids-000.bin.
func ShardPath(prefix string, shard int, ext string) string {
	return fmt.Sprintf("%s-%03d%s", prefix, shard, ext)
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
