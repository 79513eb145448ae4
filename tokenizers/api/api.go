// Package api defines the Tokenizer API consumed by the alignment and
// pointer-network packages. Implementations live in the sibling packages
// (wordlevel, sentencepiece, hf); keeping the interface separate avoids a
// cyclic dependency and lets users plug in their own tokenizer.
package api

import "github.com/pkg/errors"

// TokenSpan represents the byte span of a token in the original text.
// Start and End are byte offsets (not rune offsets), suitable for slicing
// Go strings directly: originalText[span.Start:span.End]. Synthetic tokens
// (bos/eos, padding) carry a zero-width span.
type TokenSpan struct {
	Start int // start byte position (inclusive)
	End   int // end byte position (exclusive)
}

// Empty reports whether the span is zero-width, i.e. the token has no
// counterpart in the original text.
func (s TokenSpan) Empty() bool { return s.Start >= s.End }

// Encoding is one tokenized view of a text: tokens with ids, an attention
// mask, and one byte span per token. A single text may produce several
// encodings when the tokenizer windows long inputs (overflow).
type Encoding struct {
	Tokens        []string
	IDs           []int
	AttentionMask []int
	Offsets       []TokenSpan // one per token; zero-width for synthetic tokens
}

// Tokenizer converts text to integer token ids and back.
//
// It also allows mapping of special tokens: tokens with a common semantic
// (like padding) that map to different ids for different tokenizers.
type Tokenizer interface {
	Encode(text string) []int
	Decode([]int) string

	// SpecialTokenID returns ID for given special token if registered, or an error if not.
	SpecialTokenID(token SpecialToken) (int, error)
}

// SegmentingTokenizer extends Tokenizer with full encodings carrying byte
// spans. This is what offset alignment (mapping annotations between
// character and token coordinates) requires.
type SegmentingTokenizer interface {
	Tokenizer
	// EncodeWithOffsets returns one or more encodings for the text; more
	// than one when the input exceeds the tokenizer's window and is split
	// into overflow windows.
	EncodeWithOffsets(text string) ([]Encoding, error)
}

// VocabTokenizer extends Tokenizer with vocabulary lookup and extension.
// The pointer network injects label tokens into the vocabulary and must be
// able to verify they did not exist before.
type VocabTokenizer interface {
	Tokenizer
	TokenToID(token string) (int, bool)
	IDToToken(id int) (string, bool)
	AddSpecialTokens(tokens []string)
	VocabSize() int
}

// SpecialToken is an enum of commonly used special tokens.
type SpecialToken int

const (
	TokBeginningOfSentence SpecialToken = iota
	TokEndOfSentence
	TokUnknown
	TokPad
	TokMask
	TokClassification
	TokSpecialTokensCount
)

var specialTokenNames = [TokSpecialTokensCount]string{
	"beginning_of_sentence", "end_of_sentence", "unknown", "pad", "mask", "classification",
}

func (t SpecialToken) String() string {
	if t < 0 || t >= TokSpecialTokensCount {
		return "invalid_special_token"
	}
	return specialTokenNames[t]
}

// MustSpecialTokenID returns the id for the given special token and panics
// if the tokenizer does not register it. Convenience for setup code.
func MustSpecialTokenID(t Tokenizer, token SpecialToken) int {
	id, err := t.SpecialTokenID(token)
	if err != nil {
		panic(errors.Wrapf(err, "special token %s is required", token))
	}
	return id
}
