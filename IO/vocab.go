package IO

// Control symbols kept at the start of the vocab, in index order.
const (
	PadToken   = "<pad>"
	EOSToken   = "<eos>"
	BOSToken   = "<bos>"
	SpaceToken = "<space>"
)

const (
	firstPrintable = 32  // ' '
	lastPrintable  = 126 // '~'
)

// TokenKind is the closed set of buckets a character or index falls into.
type TokenKind int

const (
	KindUnknown TokenKind = iota
	KindControl
	KindPrintable
	KindSpace
)

func (k TokenKind) String() string {
	switch k {
	case KindControl:
		return "control"
	case KindPrintable:
		return "printable"
	case KindSpace:
		return "space"
	default:
		return "unknown"
	}
}

// Vocabulary is the fixed character vocabulary:
//
//	0..2   <pad> <eos> <bos>
//	3..97  printable ASCII 32..126 in code order
//	98     <space>, emitted for every literal ' '
//
// It is immutable after NewVocabulary and safe to share between goroutines.
type Vocabulary struct {
	tokenToID map[string]int
	idToToken []string

	pad, eos, bos, space int
}

func NewVocabulary() *Vocabulary {
	special := []string{PadToken, EOSToken, BOSToken}
	idToToken := make([]string, 0, len(special)+(lastPrintable-firstPrintable+1)+1)
	idToToken = append(idToToken, special...)
	for c := firstPrintable; c <= lastPrintable; c++ {
		idToToken = append(idToToken, string(rune(c)))
	}
	idToToken = append(idToToken, SpaceToken)

	tok2id := make(map[string]int, len(idToToken))
	for i, t := range idToToken {
		tok2id[t] = i
	}
	return &Vocabulary{
		tokenToID: tok2id,
		idToToken: idToToken,
		pad:       0,
		eos:       1,
		bos:       2,
		space:     len(idToToken) - 1,
	}
}

// Size is the number of entries (99).
func (v *Vocabulary) Size() int { return len(v.idToToken) }

func (v *Vocabulary) PadIndex() int   { return v.pad }
func (v *Vocabulary) EOSIndex() int   { return v.eos }
func (v *Vocabulary) BOSIndex() int   { return v.bos }
func (v *Vocabulary) SpaceIndex() int { return v.space }

// Index looks up a symbol, e.g. "a" or EOSToken.
func (v *Vocabulary) Index(sym string) (int, bool) {
	id, ok := v.tokenToID[sym]
	return id, ok
}

// Symbol is the inverse of Index.
func (v *Vocabulary) Symbol(id int) (string, bool) {
	if id < 0 || id >= len(v.idToToken) {
		return "", false
	}
	return v.idToToken[id], true
}

// Symbols returns a copy of the index-ordered symbol table.
func (v *Vocabulary) Symbols() []string {
	return append([]string(nil), v.idToToken...)
}

// Classify buckets a character. Only ' ' is KindSpace; a rune can never be
// KindControl.
func (v *Vocabulary) Classify(r rune) TokenKind {
	switch {
	case r == ' ':
		return KindSpace
	case r > firstPrintable && r <= lastPrintable:
		return KindPrintable
	default:
		return KindUnknown
	}
}

// ClassifyIndex buckets a vocabulary index. The raw ASCII space entry and
// the substitute both count as KindSpace.
func (v *Vocabulary) ClassifyIndex(id int) TokenKind {
	switch {
	case id == v.pad || id == v.eos || id == v.bos:
		return KindControl
	case id == v.space || id == v.charIndex(' '):
		return KindSpace
	case id >= 0 && id < len(v.idToToken):
		return KindPrintable
	default:
		return KindUnknown
	}
}

// charIndex maps a printable ASCII rune straight to its index.
func (v *Vocabulary) charIndex(r rune) int {
	return v.bos + 1 + int(r-firstPrintable)
}
