package align

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/go-pointernet/annotations"
	"github.com/gomlx/go-pointernet/tokenizers/api"
)

func TestFindTokenOffsetMapping(t *testing.T) {
	text := "This is a dummy text about nothing. Trust me."
	tokens := []string{"This", "is", "a", "dummy", "text", "about", "nothing", ".", "Trust", "me", "."}
	offsets := FindTokenOffsetMapping(text, tokens)
	require.Len(t, offsets, len(tokens))
	for i, span := range offsets {
		assert.Equal(t, tokens[i], text[span.Start:span.End], "token %d", i)
	}
	assert.Equal(t, api.TokenSpan{Start: 0, End: 4}, offsets[0])
	assert.Equal(t, api.TokenSpan{Start: 34, End: 35}, offsets[7])
	assert.Equal(t, api.TokenSpan{Start: 44, End: 45}, offsets[10])
}

func TestFindTokenOffsetMappingSpecialTokens(t *testing.T) {
	text := "a b"
	offsets := FindTokenOffsetMapping(text, []string{"<s>", "a", "b", "</s>"})
	require.Len(t, offsets, 4)
	// Unfindable tokens get a zero-width span at the cursor, which stays
	// put.
	assert.Equal(t, api.TokenSpan{Start: 0, End: 0}, offsets[0])
	assert.Equal(t, api.TokenSpan{Start: 0, End: 1}, offsets[1])
	assert.Equal(t, api.TokenSpan{Start: 2, End: 3}, offsets[2])
	assert.Equal(t, api.TokenSpan{Start: 3, End: 3}, offsets[3])
}

func TestFindTokenOffsetMappingRepeatedToken(t *testing.T) {
	text := "go go go"
	offsets := FindTokenOffsetMapping(text, []string{"go", "go", "go"})
	assert.Equal(t, []api.TokenSpan{
		{Start: 0, End: 2}, {Start: 3, End: 5}, {Start: 6, End: 8},
	}, offsets)
}

func TestCharToTokenFromOffsets(t *testing.T) {
	lookup := CharToTokenFromOffsets([]api.TokenSpan{
		{Start: 0, End: 0}, // zero-width spans cover nothing
		{Start: 0, End: 4},
		{Start: 5, End: 7},
	})
	idx, ok := lookup(0)
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	idx, ok = lookup(6)
	require.True(t, ok)
	assert.Equal(t, 2, idx)
	_, ok = lookup(4) // whitespace between tokens
	assert.False(t, ok)
	_, ok = lookup(7) // past the last token
	assert.False(t, ok)
}

func TestCharSpanToTokenSpan(t *testing.T) {
	text := "This is a dummy text about nothing."
	tokens := []string{"This", "is", "a", "dummy", "text", "about", "nothing", "."}
	lookup := CharToTokenFromOffsets(FindTokenOffsetMapping(text, tokens))

	got, ok, err := CharSpanToTokenSpan(&annotations.LabeledSpan{Start: 10, End: 20, Label: "content"}, lookup)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, &annotations.LabeledSpan{Start: 3, End: 5, Label: "content"}, got)
}

func TestCharSpanToTokenSpanUnmapped(t *testing.T) {
	// Only "ab" is tokenized; a span reaching into untokenized text
	// cannot be converted.
	lookup := CharToTokenFromOffsets([]api.TokenSpan{{Start: 0, End: 2}})
	got, ok, err := CharSpanToTokenSpan(&annotations.LabeledSpan{Start: 0, End: 5}, lookup)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestCharSpanToTokenSpanMultiSpan(t *testing.T) {
	text := "one two three"
	lookup := CharToTokenFromOffsets(FindTokenOffsetMapping(text, []string{"one", "two", "three"}))
	got, ok, err := CharSpanToTokenSpan(&annotations.LabeledMultiSpan{
		Slices: []annotations.Slice{{Start: 0, End: 3}, {Start: 8, End: 13}},
		Label:  "pair",
	}, lookup)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, &annotations.LabeledMultiSpan{
		Slices: []annotations.Slice{{Start: 0, End: 1}, {Start: 2, End: 3}},
		Label:  "pair",
	}, got)
}

func TestCharSpanToTokenSpanRejectsRelations(t *testing.T) {
	type fakeSpan struct{ annotations.SpanLike }
	_, _, err := CharSpanToTokenSpan(fakeSpan{}, func(int) (int, bool) { return 0, false })
	assert.ErrorContains(t, err, "non-span annotations")
}

func TestTokenSpanToCharSpan(t *testing.T) {
	offsets := []api.TokenSpan{{Start: 0, End: 0}, {Start: 0, End: 4}, {Start: 5, End: 7}, {Start: 7, End: 7}}
	got, err := TokenSpanToCharSpan(&annotations.LabeledSpan{Start: 1, End: 3, Label: "x"}, offsets)
	require.NoError(t, err)
	assert.Equal(t, &annotations.LabeledSpan{Start: 0, End: 7, Label: "x"}, got)
}
