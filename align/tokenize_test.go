package align

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/go-pointernet/annotations"
	"github.com/gomlx/go-pointernet/documents"
	"github.com/gomlx/go-pointernet/tokenizers/wordlevel"
)

const testText = "This is a dummy text about nothing. Trust me."

func textSpecs() []documents.LayerSpec {
	return []documents.LayerSpec{
		{Name: "entities", Target: documents.TargetText},
		{Name: "relations", Target: "entities"},
		{Name: "sentences", Target: documents.TargetText},
	}
}

func tokenSpecs() []documents.LayerSpec {
	return []documents.LayerSpec{
		{Name: "entities", Target: documents.TargetTokens},
		{Name: "relations", Target: "entities"},
	}
}

func testDocument(t *testing.T) *documents.TextDocument {
	t.Helper()
	doc := documents.NewTextDocument("doc-1", testText, textSpecs())
	dummyText := &annotations.LabeledSpan{Start: 10, End: 20, Label: "content"}
	nothing := &annotations.LabeledSpan{Start: 27, End: 34, Label: "topic"}
	me := &annotations.LabeledSpan{Start: 42, End: 44, Label: "person"}
	doc.Layer("entities").Add(dummyText, nothing, me)
	doc.Layer("relations").Add(&annotations.BinaryRelation{Head: dummyText, Tail: nothing, Label: "is_about"})
	doc.Layer("sentences").Add(
		&annotations.LabeledSpan{Start: 0, End: 35},
		&annotations.LabeledSpan{Start: 36, End: 45},
	)
	return doc
}

func testTokenizer(t *testing.T) *wordlevel.Tokenizer {
	t.Helper()
	tok, err := wordlevel.New(wordlevel.Config{
		Vocab: []string{"This", "is", "a", "dummy", "text", "about", "nothing", ".", "Trust", "me"},
	})
	require.NoError(t, err)
	return tok
}

func TestTextToTokenDocument(t *testing.T) {
	doc := testDocument(t)
	tokens := []string{"This", "is", "a", "dummy", "text", "about", "nothing", ".", "Trust", "me", "."}
	result, carry, err := TextToTokenDocument(doc, tokenSpecs(), ConvertOptions{Tokens: tokens})
	require.NoError(t, err)
	assert.Equal(t, tokens, result.Tokens)
	assert.Equal(t, testText, result.Metadata[MetaText])

	entities := result.Layer("entities").Annotations()
	require.Len(t, entities, 3)
	assert.Equal(t, &annotations.LabeledSpan{Start: 3, End: 5, Label: "content"}, entities[0])
	assert.Equal(t, &annotations.LabeledSpan{Start: 6, End: 7, Label: "topic"}, entities[1])
	assert.Equal(t, &annotations.LabeledSpan{Start: 9, End: 10, Label: "person"}, entities[2])

	relations := result.Layer("relations").Annotations()
	require.Len(t, relations, 1)
	rel := relations[0].(*annotations.BinaryRelation)
	assert.Equal(t, "is_about", rel.Label)
	// The relation arguments are the converted span instances themselves.
	assert.Same(t, entities[0], rel.Head)
	assert.Same(t, entities[1], rel.Tail)

	assert.Len(t, carry.Added["entities"], 3)
	assert.Len(t, carry.Added["relations"], 1)
	assert.Empty(t, carry.Removed["entities"])
}

func TestTextToTokenDocumentDropsUnmappable(t *testing.T) {
	doc := testDocument(t)
	// Only the first sentence is tokenized; "me" lies outside.
	tokens := []string{"This", "is", "a", "dummy", "text", "about", "nothing", "."}

	result, carry, err := TextToTokenDocument(doc, tokenSpecs(), ConvertOptions{Tokens: tokens, Quiet: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Layer("entities").Len())
	assert.Equal(t, 1, result.Layer("relations").Len())
	assert.Len(t, carry.Added["entities"], 2)
	require.Len(t, carry.Removed["entities"], 1)
	assert.Equal(t, &annotations.LabeledSpan{Start: 42, End: 44, Label: "person"}, carry.Removed["entities"][0])

	_, _, err = TextToTokenDocument(doc, tokenSpecs(), ConvertOptions{Tokens: tokens, Strict: true})
	assert.ErrorContains(t, err, "cannot find token span for character span")
}

func TestTextToTokenDocumentDropsRelationWithDroppedArgument(t *testing.T) {
	doc := documents.NewTextDocument("doc-2", testText, textSpecs())
	nothing := &annotations.LabeledSpan{Start: 27, End: 34, Label: "topic"}
	me := &annotations.LabeledSpan{Start: 42, End: 44, Label: "person"}
	doc.Layer("entities").Add(nothing, me)
	doc.Layer("relations").Add(&annotations.BinaryRelation{Head: me, Tail: nothing, Label: "is_about"})

	tokens := []string{"This", "is", "a", "dummy", "text", "about", "nothing", "."}
	result, _, err := TextToTokenDocument(doc, tokenSpecs(), ConvertOptions{Tokens: tokens, Quiet: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Layer("entities").Len())
	assert.Equal(t, 0, result.Layer("relations").Len())
}

func TestTextToTokenDocumentDeduplicates(t *testing.T) {
	doc := documents.NewTextDocument("doc-3", "a b", []documents.LayerSpec{
		{Name: "entities", Target: documents.TargetText},
	})
	// Two distinct character spans land on the same token span.
	doc.Layer("entities").Add(
		&annotations.LabeledSpan{Start: 2, End: 3, Label: "x"},
		&annotations.LabeledSpan{Start: 2, End: 3, Label: "x"},
	)
	result, carry, err := TextToTokenDocument(doc, []documents.LayerSpec{
		{Name: "entities", Target: documents.TargetTokens},
	}, ConvertOptions{Tokens: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Layer("entities").Len())
	// Both source annotations still count as carried over.
	assert.Len(t, carry.Added["entities"], 2)
}

func TestTextToTokenDocumentDeduplicatedRelationArgument(t *testing.T) {
	doc := documents.NewTextDocument("doc-5", "ab c", textSpecs())
	// Two character spans of different width collapse onto the same token.
	narrow := &annotations.LabeledSpan{Start: 0, End: 1, Label: "content"}
	wide := &annotations.LabeledSpan{Start: 0, End: 2, Label: "content"}
	tail := &annotations.LabeledSpan{Start: 3, End: 4, Label: "topic"}
	doc.Layer("entities").Add(narrow, wide, tail)
	doc.Layer("relations").Add(&annotations.BinaryRelation{Head: wide, Tail: tail, Label: "is_about"})

	result, _, err := TextToTokenDocument(doc, tokenSpecs(), ConvertOptions{Tokens: []string{"ab", "c"}})
	require.NoError(t, err)
	entities := result.Layer("entities").Annotations()
	require.Len(t, entities, 2)

	relations := result.Layer("relations").Annotations()
	require.Len(t, relations, 1)
	rel := relations[0].(*annotations.BinaryRelation)
	// The head must be the instance that survived deduplication, not a
	// discarded duplicate with equal boundaries.
	assert.Same(t, entities[0], rel.Head)
	assert.Same(t, entities[1], rel.Tail)
}

func TestTextToTokenDocumentStableOrderOnEqualPositions(t *testing.T) {
	doc := documents.NewTextDocument("doc-6", "a b", []documents.LayerSpec{
		{Name: "entities", Target: documents.TargetText},
	})
	doc.Layer("entities").Add(
		&annotations.LabeledSpan{Start: 0, End: 1, Label: "x"},
		&annotations.LabeledSpan{Start: 0, End: 1, Label: "y"},
	)
	for i := 0; i < 10; i++ {
		result, _, err := TextToTokenDocument(doc, []documents.LayerSpec{
			{Name: "entities", Target: documents.TargetTokens},
		}, ConvertOptions{Tokens: []string{"a", "b"}})
		require.NoError(t, err)
		entities := result.Layer("entities").Annotations()
		require.Len(t, entities, 2)
		// Same position, different labels: source-layer order is kept.
		assert.Equal(t, "x", entities[0].(*annotations.LabeledSpan).Label)
		assert.Equal(t, "y", entities[1].(*annotations.LabeledSpan).Label)
	}
}

func TestTokenToTextDocument(t *testing.T) {
	doc := testDocument(t)
	tokens := []string{"This", "is", "a", "dummy", "text", "about", "nothing", ".", "Trust", "me", "."}
	tokenDoc, _, err := TextToTokenDocument(doc, tokenSpecs(), ConvertOptions{Tokens: tokens})
	require.NoError(t, err)

	back, carry, err := TokenToTextDocument(tokenDoc, []documents.LayerSpec{
		{Name: "entities", Target: documents.TargetText},
		{Name: "relations", Target: "entities"},
	}, DetokenizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, testText, back.Text)
	entities := back.Layer("entities").Annotations()
	require.Len(t, entities, 3)
	assert.Equal(t, &annotations.LabeledSpan{Start: 10, End: 20, Label: "content"}, entities[0])
	assert.Equal(t, &annotations.LabeledSpan{Start: 27, End: 34, Label: "topic"}, entities[1])
	assert.Equal(t, &annotations.LabeledSpan{Start: 42, End: 44, Label: "person"}, entities[2])
	assert.Equal(t, 1, back.Layer("relations").Len())
	assert.Len(t, carry.Added["entities"], 3)
}

func TestTokenToTextDocumentJoinTokens(t *testing.T) {
	tokenDoc := documents.NewTokenDocument("doc-4", []string{"Trust", "me", "."}, []documents.LayerSpec{
		{Name: "entities", Target: documents.TargetTokens},
	})
	tokenDoc.Layer("entities").Add(&annotations.LabeledSpan{Start: 1, End: 2, Label: "person"})

	back, _, err := TokenToTextDocument(tokenDoc, []documents.LayerSpec{
		{Name: "entities", Target: documents.TargetText},
	}, DetokenizeOptions{JoinTokens: true, Separator: " "})
	require.NoError(t, err)
	assert.Equal(t, "Trust me .", back.Text)
	entities := back.Layer("entities").Annotations()
	require.Len(t, entities, 1)
	assert.Equal(t, &annotations.LabeledSpan{Start: 6, End: 8, Label: "person"}, entities[0])
}

func TestTokenizeDocumentWholeText(t *testing.T) {
	doc := testDocument(t)
	results, err := TokenizeDocument(doc, testTokenizer(t), tokenSpecs(), TokenizeConfig{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	tokenDoc := results[0]
	assert.Equal(t, 13, tokenDoc.Len()) // 11 words plus bos and eos
	assert.Equal(t, 3, tokenDoc.Layer("entities").Len())
	assert.Equal(t, 1, tokenDoc.Layer("relations").Len())
	assert.NotNil(t, tokenDoc.Metadata[MetaEncoding])
}

func TestTokenizeDocumentPartitions(t *testing.T) {
	doc := testDocument(t)
	results, err := TokenizeDocument(doc, testTokenizer(t), tokenSpecs(), TokenizeConfig{
		PartitionLayer: "sentences",
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	first, second := results[0], results[1]
	assert.Equal(t, 10, first.Len())
	assert.Equal(t, 2, first.Layer("entities").Len())
	assert.Equal(t, 1, first.Layer("relations").Len())

	assert.Equal(t, 5, second.Len())
	require.Equal(t, 1, second.Layer("entities").Len())
	assert.Equal(t, &annotations.LabeledSpan{Start: 2, End: 3, Label: "person"},
		second.Layer("entities").Annotations()[0])

	// Offsets of the second partition are rebased into whole-text
	// coordinates, so converting back yields the original character span.
	back, _, err := TokenToTextDocument(second, []documents.LayerSpec{
		{Name: "entities", Target: documents.TargetText},
	}, DetokenizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, &annotations.LabeledSpan{Start: 42, End: 44, Label: "person"},
		back.Layer("entities").Annotations()[0])
}

func TestTokenizeDocumentMissedAnnotations(t *testing.T) {
	doc := testDocument(t)
	// A span crossing the sentence boundary cannot survive partitioned
	// tokenization.
	doc.Layer("entities").Add(&annotations.LabeledSpan{Start: 27, End: 41, Label: "broken"})

	_, err := TokenizeDocument(doc, testTokenizer(t), tokenSpecs(), TokenizeConfig{
		PartitionLayer: "sentences",
		Strict:         true,
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "missed annotations")
	assert.ErrorContains(t, err, "entities")

	results, err := TokenizeDocument(doc, testTokenizer(t), tokenSpecs(), TokenizeConfig{
		PartitionLayer: "sentences",
		Quiet:          true,
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestTokenizeDocumentUnknownPartitionLayer(t *testing.T) {
	doc := testDocument(t)
	_, err := TokenizeDocument(doc, testTokenizer(t), tokenSpecs(), TokenizeConfig{
		PartitionLayer: "paragraphs",
	})
	assert.ErrorContains(t, err, "partition layer")
}
