// Package align maps annotations between character offsets in raw text and
// token indices in a tokenized view of the same text.
//
// The low-level mapping functions in this file are pure; document-level
// conversion and partitioned tokenization are in tokenize.go.
package align

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/gomlx/go-pointernet/annotations"
	"github.com/gomlx/go-pointernet/tokenizers/api"
)

// CharToToken maps a character (byte) index to the index of the token
// covering it. The second result is false when no token covers the position,
// e.g. whitespace between tokens or text outside the tokenized window.
type CharToToken func(charIdx int) (tokenIdx int, ok bool)

// CharToTokenFromOffsets derives a CharToToken lookup from a token offset
// mapping by expanding each token's character range into a dense table.
func CharToTokenFromOffsets(offsets []api.TokenSpan) CharToToken {
	table := make(map[int]int)
	for tokenIdx, span := range offsets {
		for charIdx := span.Start; charIdx < span.End; charIdx++ {
			table[charIdx] = tokenIdx
		}
	}
	return func(charIdx int) (int, bool) {
		tokenIdx, ok := table[charIdx]
		return tokenIdx, ok
	}
}

// FindTokenOffsetMapping locates each token in the text by greedy
// left-to-right search: a token's occurrence is searched starting no earlier
// than the previous token's end. Tokens not found in the text (special or
// added tokens) get a zero-width span at the current cursor, and the cursor
// does not advance.
func FindTokenOffsetMapping(text string, tokens []string) []api.TokenSpan {
	offsets := make([]api.TokenSpan, 0, len(tokens))
	cursor := 0
	for _, token := range tokens {
		idx := strings.Index(text[cursor:], token)
		if idx < 0 {
			offsets = append(offsets, api.TokenSpan{Start: cursor, End: cursor})
			continue
		}
		start := cursor + idx
		end := start + len(token)
		offsets = append(offsets, api.TokenSpan{Start: start, End: end})
		cursor = end
	}
	return offsets
}

// CharSpanToTokenSpan maps a character-anchored span annotation to token
// coordinates. Both the start and the last covered character (end-1) must
// map to a token; otherwise ok is false. For a multi-span every slice must
// map, or the whole conversion fails. Any annotation kind other than
// *LabeledSpan and *LabeledMultiSpan is a configuration error.
func CharSpanToTokenSpan(span annotations.SpanLike, charToToken CharToToken) (annotations.SpanLike, bool, error) {
	switch v := span.(type) {
	case *annotations.LabeledSpan:
		start, end, ok := sliceToTokens(v.Start, v.End, charToToken)
		if !ok {
			return nil, false, nil
		}
		return &annotations.LabeledSpan{Start: start, End: end, Label: v.Label}, true, nil
	case *annotations.LabeledMultiSpan:
		slices := make([]annotations.Slice, len(v.Slices))
		for i, slc := range v.Slices {
			start, end, ok := sliceToTokens(slc.Start, slc.End, charToToken)
			if !ok {
				return nil, false, nil
			}
			slices[i] = annotations.Slice{Start: start, End: end}
		}
		return &annotations.LabeledMultiSpan{Slices: slices, Label: v.Label}, true, nil
	default:
		return nil, false, errors.Errorf(
			"can not convert layers that target the text but contain non-span annotations, found %T", span)
	}
}

func sliceToTokens(charStart, charEnd int, charToToken CharToToken) (tokenStart, tokenEnd int, ok bool) {
	startToken, okStart := charToToken(charStart)
	// The last covered character, since charEnd is exclusive.
	endToken, okEnd := charToToken(charEnd - 1)
	if !okStart || !okEnd {
		return 0, 0, false
	}
	return startToken, endToken + 1, true
}

// TokenSpanToCharSpan maps a token-anchored span annotation back to
// character coordinates through direct indexing into the token offset
// mapping. The caller guarantees well-formed positions: this is invoked only
// on spans over the model's own tokenization, so out-of-range indices panic.
func TokenSpanToCharSpan(span annotations.SpanLike, offsets []api.TokenSpan) (annotations.SpanLike, error) {
	switch v := span.(type) {
	case *annotations.LabeledSpan:
		return &annotations.LabeledSpan{
			Start: offsets[v.Start].Start,
			End:   offsets[v.End-1].End,
			Label: v.Label,
		}, nil
	case *annotations.LabeledMultiSpan:
		slices := make([]annotations.Slice, len(v.Slices))
		for i, slc := range v.Slices {
			slices[i] = annotations.Slice{Start: offsets[slc.Start].Start, End: offsets[slc.End-1].End}
		}
		return &annotations.LabeledMultiSpan{Slices: slices, Label: v.Label}, nil
	default:
		return nil, errors.Errorf(
			"can not convert layers that target the tokens but contain non-span annotations, found %T", span)
	}
}
