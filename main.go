package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/manningwu07/sentencetransformer/IO"
	"github.com/manningwu07/sentencetransformer/params"
	"github.com/manningwu07/sentencetransformer/transformer"
	"github.com/manningwu07/sentencetransformer/utils"
)

var (
	configPath string
	demoFlag   bool
	exportFlag bool
	cliFlag    bool
	forceFlag  bool
	inputPath  string
	outDir     string
)

func init() {
	flag.StringVar(&configPath, "config", "", "Path to a config file (default: ./config.yaml or ./config/config.yaml)")
	flag.BoolVar(&demoFlag, "demo", false, "Run the two-pangram forward pass and log the shapes")
	flag.BoolVar(&exportFlag, "export", false, "Export vocab.json and token-ID shards for -input")
	flag.BoolVar(&cliFlag, "cli", false, "Read lines from stdin and print per-position argmax decodes")
	flag.BoolVar(&forceFlag, "force", false, "Force re-export even if outputs exist")
	flag.StringVar(&inputPath, "input", "data/raw/train.txt", "Text file to export, one sample per line")
	flag.StringVar(&outDir, "out", "data/export", "Directory for exported vocab and shards")
}

func main() {
	flag.Parse()

	cfg, err := params.LoadConfig(configPath)
	if err != nil {
		utils.Logger().Fatal().Err(err).Msg("loading config")
	}
	utils.SetDebug(cfg.Debug)

	switch {
	case exportFlag:
		if err := runExport(cfg, inputPath, outDir, forceFlag); err != nil {
			utils.Logger().Fatal().Err(err).Msg("export failed")
		}
	case cliFlag:
		m, codec, err := buildModel(cfg)
		if err != nil {
			utils.Logger().Fatal().Err(err).Msg("assembling model")
		}
		if err := runCLI(os.Stdin, os.Stdout, m, codec); err != nil {
			utils.Logger().Fatal().Err(err).Msg("cli")
		}
	case demoFlag:
		if err := runDemo(cfg); err != nil {
			utils.Logger().Fatal().Err(err).Msg("demo failed")
		}
	default:
		fmt.Println("No flag passed. Use -demo, -export or -cli.")
	}
}

func buildModel(cfg params.ModelConfig) (*transformer.Model, *IO.TokenCodec, error) {
	codec := IO.NewTokenCodec(IO.NewVocabulary())
	m, err := transformer.Assemble(cfg, codec.Vocab().Size())
	if err != nil {
		return nil, nil, err
	}
	return m, codec, nil
}

var demoTexts = []string{
	"The quick brown fox jumps over the lazy dog.",
	"Pack my box with five dozen liquor jugs.",
}

// runDemo is encode -> pad -> mask -> forward on two pangrams.
func runDemo(cfg params.ModelConfig) error {
	m, codec, err := buildModel(cfg)
	if err != nil {
		return err
	}
	vocab := codec.Vocab()
	seqs := codec.EncodeBatch(demoTexts, IO.WholeTextAsOneUnit)
	batch, err := IO.Pad(seqs, vocab.PadIndex())
	if err != nil {
		return err
	}
	mask := IO.BuildMask(batch, vocab.PadIndex())
	B, L := batch.Size()
	utils.Logger().Info().
		Int("vocab", vocab.Size()).
		Int("batch", B).
		Int("max_len", L).
		Int("params", m.NumParameters()).
		Msg("demo input ready")

	out, err := m.ForwardBatch(batch, mask)
	if err != nil {
		return err
	}
	utils.Logger().Info().Str("shape", out.Shape().String()).Msg("logits")
	return nil
}

// runExport writes vocab.json and the token-ID shards under dir. Existing
// outputs are reused unless force is set.
func runExport(cfg params.ModelConfig, input, dir string, force bool) error {
	log := utils.Logger()
	codec := IO.NewTokenCodec(IO.NewVocabulary())

	vocabPath := filepath.Join(dir, "vocab.json")
	if !IO.FileExists(vocabPath) || force {
		if err := IO.ExportVocabJSON(codec.Vocab(), vocabPath); err != nil {
			return err
		}
		log.Info().Str("path", vocabPath).Msg("exported vocab")
	} else {
		if err := IO.CheckVocabJSON(codec.Vocab(), vocabPath); err != nil {
			return err
		}
		log.Info().Str("path", vocabPath).Msg("using cached vocab")
	}

	if !IO.FileExists(input) {
		log.Warn().Str("input", input).Msg("no input text found, skipping shard export")
		return nil
	}
	prefix := filepath.Join(dir, "ids")
	if IO.FileExists(IO.ShardPath(prefix, 0, ".bin")) && !force {
		log.Info().Str("prefix", prefix).Msg("using cached shards")
		return nil
	}
	const maxShardBytes = 1 << 30
	n, err := IO.ExportTokenIDsBinary(codec, IO.SentencePunctuation, input, prefix, maxShardBytes)
	if err != nil {
		return err
	}
	log.Info().Int("sequences", n).Str("prefix", prefix).Int("max_len", cfg.MaxSequenceLength).Msg("exported token ids")
	return nil
}
