// Package wordlevel implements a deterministic word-level tokenizer: text is
// split on whitespace and punctuation (BERT-style pre-tokenization), each
// word is looked up in a fixed vocabulary, and the sequence is wrapped in
// bos/eos tokens. Long inputs are windowed into overflow encodings.
//
// It is intentionally simple; the value is that token byte spans are exact,
// which makes it suitable as the tokenizer collaborator in annotation
// alignment tests and offline tooling. Subword tokenizers are provided by
// the sibling sentencepiece and hf packages.
package wordlevel

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"

	"github.com/gomlx/go-pointernet/tokenizers/api"
)

// Config configures the tokenizer.
type Config struct {
	// Vocab lists the known words; the id of a word is its index.
	Vocab []string
	// Lowercase folds words before vocabulary lookup. Byte spans always
	// refer to the original, unfolded text.
	Lowercase bool
	// MaxTokens caps the length of one encoding, bos/eos included.
	// Zero means unlimited. Inputs exceeding the cap are split into
	// overflow windows of MaxTokens tokens each.
	MaxTokens int
	// Stride is the number of content tokens adjacent overflow windows
	// share.
	Stride int

	// Special token forms. Empty fields get the defaults below.
	UnknownToken string
	PadToken     string
	BosToken     string
	EosToken     string
}

// Default special token forms.
const (
	DefaultUnknownToken = "<unk>"
	DefaultPadToken     = "<pad>"
	DefaultBosToken     = "<s>"
	DefaultEosToken     = "</s>"
)

// Tokenizer implements api.SegmentingTokenizer and api.VocabTokenizer.
type Tokenizer struct {
	cfg       Config
	tokenToID map[string]int
	idToToken []string
	special   map[int]bool

	unkID, padID, bosID, eosID int
}

// Compile time assert that Tokenizer implements the tokenizer interfaces.
var (
	_ api.SegmentingTokenizer = &Tokenizer{}
	_ api.VocabTokenizer      = &Tokenizer{}
)

// New creates a word-level tokenizer from the config. The special tokens are
// appended to the vocabulary if not already present.
func New(cfg Config) (*Tokenizer, error) {
	if cfg.UnknownToken == "" {
		cfg.UnknownToken = DefaultUnknownToken
	}
	if cfg.PadToken == "" {
		cfg.PadToken = DefaultPadToken
	}
	if cfg.BosToken == "" {
		cfg.BosToken = DefaultBosToken
	}
	if cfg.EosToken == "" {
		cfg.EosToken = DefaultEosToken
	}
	if cfg.MaxTokens != 0 && cfg.MaxTokens < 3 {
		return nil, errors.Errorf("MaxTokens must leave room for bos/eos plus content, got %d", cfg.MaxTokens)
	}
	if cfg.Stride < 0 || (cfg.MaxTokens != 0 && cfg.Stride >= cfg.MaxTokens-2) {
		return nil, errors.Errorf("stride %d does not fit into windows of %d content tokens", cfg.Stride, cfg.MaxTokens-2)
	}

	t := &Tokenizer{
		cfg:       cfg,
		tokenToID: make(map[string]int, len(cfg.Vocab)+4),
		special:   make(map[int]bool, 4),
	}
	for _, token := range cfg.Vocab {
		if _, dup := t.tokenToID[token]; dup {
			return nil, errors.Errorf("duplicate vocabulary entry %q", token)
		}
		t.tokenToID[token] = len(t.idToToken)
		t.idToToken = append(t.idToToken, token)
	}
	t.unkID = t.internSpecial(cfg.UnknownToken)
	t.padID = t.internSpecial(cfg.PadToken)
	t.bosID = t.internSpecial(cfg.BosToken)
	t.eosID = t.internSpecial(cfg.EosToken)
	return t, nil
}

func (t *Tokenizer) internSpecial(token string) int {
	id, ok := t.tokenToID[token]
	if !ok {
		id = len(t.idToToken)
		t.tokenToID[token] = id
		t.idToToken = append(t.idToToken, token)
	}
	t.special[id] = true
	return id
}

// word is a pre-tokenized piece with its byte span in the original text.
type word struct {
	text       string
	start, end int
}

// preTokenize splits text on whitespace, emitting punctuation runes as
// separate words, and records exact byte spans into the original text.
func preTokenize(text string) []word {
	var words []word
	wordStart := -1
	flush := func(end int) {
		if wordStart >= 0 {
			words = append(words, word{text: text[wordStart:end], start: wordStart, end: end})
			wordStart = -1
		}
	}
	for i, r := range text {
		switch {
		case isWhitespace(r):
			flush(i)
		case isPunctuation(r):
			flush(i)
			end := i + len(string(r))
			words = append(words, word{text: text[i:end], start: i, end: end})
		default:
			if wordStart < 0 {
				wordStart = i
			}
		}
	}
	flush(len(text))
	return words
}

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isPunctuation(r rune) bool {
	// ASCII punctuation first, then the general category.
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

// lookupForm normalizes a word to its vocabulary lookup form. Offsets are
// never derived from this form, so normalization cannot skew alignment.
func (t *Tokenizer) lookupForm(text string) string {
	text = norm.NFC.String(text)
	if t.cfg.Lowercase {
		text = strings.ToLower(text)
	}
	return text
}

func (t *Tokenizer) wordID(text string) int {
	if id, ok := t.tokenToID[t.lookupForm(text)]; ok {
		return id
	}
	return t.unkID
}

// Encode converts text to a sequence of token ids, wrapped in bos/eos.
func (t *Tokenizer) Encode(text string) []int {
	words := preTokenize(text)
	ids := make([]int, 0, len(words)+2)
	ids = append(ids, t.bosID)
	for _, w := range words {
		ids = append(ids, t.wordID(w.text))
	}
	return append(ids, t.eosID)
}

// EncodeWithOffsets returns full encodings with byte spans. Inputs longer
// than MaxTokens are split into overflow windows, each wrapped in bos/eos.
func (t *Tokenizer) EncodeWithOffsets(text string) ([]api.Encoding, error) {
	words := preTokenize(text)
	maxContent := len(words)
	if t.cfg.MaxTokens != 0 && t.cfg.MaxTokens-2 < maxContent {
		maxContent = t.cfg.MaxTokens - 2
	}
	if maxContent == 0 && len(words) > 0 {
		return nil, errors.Errorf("window size %d leaves no room for content tokens", t.cfg.MaxTokens)
	}

	var encodings []api.Encoding
	step := maxContent - t.cfg.Stride
	for start := 0; ; start += step {
		end := start + maxContent
		if end > len(words) {
			end = len(words)
		}
		encodings = append(encodings, t.encodeWindow(words[start:end]))
		if end >= len(words) {
			break
		}
	}
	return encodings, nil
}

func (t *Tokenizer) encodeWindow(words []word) api.Encoding {
	n := len(words) + 2
	enc := api.Encoding{
		Tokens:        make([]string, 0, n),
		IDs:           make([]int, 0, n),
		AttentionMask: make([]int, n),
		Offsets:       make([]api.TokenSpan, 0, n),
	}
	for i := range enc.AttentionMask {
		enc.AttentionMask[i] = 1
	}
	enc.Tokens = append(enc.Tokens, t.cfg.BosToken)
	enc.IDs = append(enc.IDs, t.bosID)
	enc.Offsets = append(enc.Offsets, api.TokenSpan{})
	for _, w := range words {
		enc.Tokens = append(enc.Tokens, w.text)
		enc.IDs = append(enc.IDs, t.wordID(w.text))
		enc.Offsets = append(enc.Offsets, api.TokenSpan{Start: w.start, End: w.end})
	}
	enc.Tokens = append(enc.Tokens, t.cfg.EosToken)
	enc.IDs = append(enc.IDs, t.eosID)
	enc.Offsets = append(enc.Offsets, api.TokenSpan{})
	return enc
}

// Decode converts a sequence of token ids back to text, joining words with
// single spaces and dropping special tokens.
func (t *Tokenizer) Decode(ids []int) string {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(t.idToToken) || t.special[id] {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(t.idToToken[id])
	}
	return sb.String()
}

// SpecialTokenID returns the ID for a given special token.
func (t *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	switch token {
	case api.TokUnknown:
		return t.unkID, nil
	case api.TokPad:
		return t.padID, nil
	case api.TokBeginningOfSentence:
		return t.bosID, nil
	case api.TokEndOfSentence:
		return t.eosID, nil
	default:
		return 0, errors.Errorf("special token %s not registered", token)
	}
}

// TokenToID converts a token string to its id.
func (t *Tokenizer) TokenToID(token string) (int, bool) {
	id, ok := t.tokenToID[token]
	return id, ok
}

// IDToToken converts a token id to its string.
func (t *Tokenizer) IDToToken(id int) (string, bool) {
	if id < 0 || id >= len(t.idToToken) {
		return "", false
	}
	return t.idToToken[id], true
}

// AddSpecialTokens appends tokens to the vocabulary and marks them special.
// Tokens already present are left untouched.
func (t *Tokenizer) AddSpecialTokens(tokens []string) {
	for _, token := range tokens {
		t.internSpecial(token)
	}
}

// VocabSize returns the size of the vocabulary including special tokens.
func (t *Tokenizer) VocabSize() int { return len(t.idToToken) }
