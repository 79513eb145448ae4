// Package sentencepiece adapts the SentencePiece tokenizer by Google to the
// tokenizers API, including character offset recovery: SentencePiece reports
// token pieces with the U+2581 metaspace marker instead of positions, so the
// pieces are matched back against the original text.
package sentencepiece

import (
	"strings"

	esentencepiece "github.com/eliben/go-sentencepiece"
	"github.com/pkg/errors"

	"github.com/gomlx/go-pointernet/tokenizers/api"
)

// metaspace is U+2581 (lower one eighth block), SentencePiece's space
// replacement.
const metaspace = "▁"

// Config configures a SentencePiece tokenizer.
type Config struct {
	// ModelPath points at a SentencePiece model proto file
	// ("tokenizer.model").
	ModelPath string
	// MaxTokens caps the encoding length including bos and eos; longer
	// texts are windowed. Zero means unbounded.
	MaxTokens int
	// Stride is the token overlap between adjacent windows.
	Stride int
}

// Tokenizer wraps an esentencepiece.Processor.
type Tokenizer struct {
	proc *esentencepiece.Processor
	info *esentencepiece.ModelInfo

	maxTokens int
	stride    int
}

// Compile time assert that Tokenizer implements the tokenizer interfaces.
var (
	_ api.Tokenizer           = &Tokenizer{}
	_ api.SegmentingTokenizer = &Tokenizer{}
)

// New creates a SentencePiece tokenizer from a model proto file.
func New(cfg Config) (*Tokenizer, error) {
	proc, err := esentencepiece.NewProcessorFromPath(cfg.ModelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "can't create sentencepiece tokenizer from %q", cfg.ModelPath)
	}
	if cfg.MaxTokens != 0 && cfg.MaxTokens < 3 {
		return nil, errors.Errorf("MaxTokens=%d leaves no room for content between bos and eos", cfg.MaxTokens)
	}
	if cfg.MaxTokens != 0 && cfg.Stride >= cfg.MaxTokens-2 {
		return nil, errors.Errorf("Stride=%d must be smaller than the %d content tokens per window", cfg.Stride, cfg.MaxTokens-2)
	}
	return &Tokenizer{
		proc:      proc,
		info:      proc.ModelInfo(),
		maxTokens: cfg.MaxTokens,
		stride:    cfg.Stride,
	}, nil
}

// Encode returns the text encoded into a sequence of ids, wrapped in bos and
// eos.
func (p *Tokenizer) Encode(text string) []int {
	tokens := p.proc.Encode(text)
	ids := make([]int, 0, len(tokens)+2)
	ids = append(ids, p.info.BeginningOfSentenceID)
	for _, tok := range tokens {
		ids = append(ids, tok.ID)
	}
	return append(ids, p.info.EndOfSentenceID)
}

// Decode returns the text from a sequence of ids.
func (p *Tokenizer) Decode(ids []int) string {
	return p.proc.Decode(ids)
}

// SpecialTokenID returns the id for the given special token, or an error if
// the model does not define it.
func (p *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	switch token {
	case api.TokUnknown:
		return p.info.UnknownID, nil
	case api.TokPad:
		return p.info.PadID, nil
	case api.TokBeginningOfSentence:
		return p.info.BeginningOfSentenceID, nil
	case api.TokEndOfSentence:
		return p.info.EndOfSentenceID, nil
	default:
		return 0, errors.Errorf("unknown special token: %s (%d)", token, int(token))
	}
}

// EncodeWithOffsets tokenizes the text, recovers byte offsets for every
// piece and windows the result to MaxTokens, overlapping windows by Stride
// content tokens. Every window carries its own bos and eos with zero-width
// offsets.
func (p *Tokenizer) EncodeWithOffsets(text string) ([]api.Encoding, error) {
	pieces := p.proc.Encode(text)
	ids := make([]int, len(pieces))
	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		ids[i] = piece.ID
		texts[i] = piece.Text
	}
	spans := PieceSpans(text, texts)

	maxContent := len(ids)
	if p.maxTokens != 0 && p.maxTokens-2 < maxContent {
		maxContent = p.maxTokens - 2
	}
	if maxContent == 0 {
		return []api.Encoding{p.window(nil, nil, nil)}, nil
	}
	step := maxContent - p.stride
	var encodings []api.Encoding
	for start := 0; start < len(ids); start += step {
		end := start + maxContent
		if end > len(ids) {
			end = len(ids)
		}
		encodings = append(encodings, p.window(ids[start:end], texts[start:end], spans[start:end]))
		if end == len(ids) {
			break
		}
	}
	return encodings, nil
}

func (p *Tokenizer) window(ids []int, texts []string, spans []api.TokenSpan) api.Encoding {
	n := len(ids) + 2
	enc := api.Encoding{
		Tokens:        make([]string, 0, n),
		IDs:           make([]int, 0, n),
		AttentionMask: make([]int, n),
		Offsets:       make([]api.TokenSpan, 0, n),
	}
	for i := range enc.AttentionMask {
		enc.AttentionMask[i] = 1
	}
	enc.Tokens = append(enc.Tokens, "<s>")
	enc.IDs = append(enc.IDs, p.info.BeginningOfSentenceID)
	enc.Offsets = append(enc.Offsets, api.TokenSpan{})
	enc.Tokens = append(enc.Tokens, texts...)
	enc.IDs = append(enc.IDs, ids...)
	enc.Offsets = append(enc.Offsets, spans...)
	enc.Tokens = append(enc.Tokens, "</s>")
	enc.IDs = append(enc.IDs, p.info.EndOfSentenceID)
	end := 0
	if len(spans) > 0 {
		end = spans[len(spans)-1].End
	}
	enc.Offsets = append(enc.Offsets, api.TokenSpan{Start: end, End: end})
	return enc
}

// PieceSpans matches SentencePiece token pieces back against the original
// text and returns one byte span per piece. A leading metaspace consumes the
// whitespace before the piece content; a piece that cannot be located (e.g.
// an unknown-token replacement) gets a zero-width span at the current
// position.
func PieceSpans(text string, pieces []string) []api.TokenSpan {
	spans := make([]api.TokenSpan, len(pieces))
	pos := 0
	for i, piece := range pieces {
		content := piece
		leadingSpace := false
		if strings.HasPrefix(content, metaspace) {
			content = content[len(metaspace):]
			leadingSpace = true
		}
		if leadingSpace {
			for pos < len(text) && isSpace(text[pos]) {
				pos++
			}
		}
		if content == "" {
			// The piece is just the space marker itself.
			if leadingSpace && pos > 0 {
				spans[i] = api.TokenSpan{Start: pos - 1, End: pos}
			} else {
				spans[i] = api.TokenSpan{Start: pos, End: pos}
			}
			continue
		}
		if found := strings.Index(text[pos:], content); found >= 0 {
			start := pos + found
			pos = start + len(content)
			spans[i] = api.TokenSpan{Start: start, End: pos}
		} else {
			spans[i] = api.TokenSpan{Start: pos, End: pos}
		}
	}
	return spans
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
