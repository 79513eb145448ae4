package datasets

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/go-pointernet/annotations"
	"github.com/gomlx/go-pointernet/documents"
)

func testLayers() Layers {
	return Layers{Span: "entities", Relation: "relations", Partition: "sentences"}
}

func exampleDocument() *documents.TextDocument {
	doc := documents.NewTextDocument("doc-1", "This is a dummy text about nothing. Trust me.", testLayers().specs())
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

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.parquet")
	layers := testLayers()
	src := exampleDocument()
	require.NoError(t, WriteDocuments(path, []*documents.TextDocument{src}, layers))

	docs, err := ReadDocuments(path, layers)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	doc := docs[0]

	assert.Equal(t, src.ID, doc.ID)
	assert.Equal(t, src.Text, doc.Text)
	assert.Equal(t, src.Layer("entities").Annotations(), doc.Layer("entities").Annotations())
	assert.Equal(t, src.Layer("sentences").Annotations(), doc.Layer("sentences").Annotations())

	require.Equal(t, 1, doc.Layer("relations").Len())
	rel := doc.Layer("relations").Annotations()[0].(*annotations.BinaryRelation)
	assert.Equal(t, "is_about", rel.Label)
	// Relation arguments share identity with the span layer entries.
	assert.Same(t, doc.Layer("entities").Annotations()[0], rel.Head)
	assert.Same(t, doc.Layer("entities").Annotations()[1], rel.Tail)
}

func TestWriteReadWithoutPartitionLayer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.parquet")
	layers := Layers{Span: "entities", Relation: "relations"}
	doc := documents.NewTextDocument("doc-1", "a b", layers.specs())
	doc.Layer("entities").Add(&annotations.LabeledSpan{Start: 0, End: 1, Label: "x"})
	require.NoError(t, WriteDocuments(path, []*documents.TextDocument{doc}, layers))

	docs, err := ReadDocuments(path, layers)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 1, docs[0].Layer("entities").Len())
	assert.Nil(t, docs[0].Layer("sentences"))
}

func TestWriteRejectsDanglingRelation(t *testing.T) {
	layers := Layers{Span: "entities", Relation: "relations"}
	doc := documents.NewTextDocument("doc-1", "a b", layers.specs())
	a := &annotations.LabeledSpan{Start: 0, End: 1, Label: "x"}
	doc.Layer("entities").Add(a)
	// The tail was never added to the entity layer.
	stray := &annotations.LabeledSpan{Start: 2, End: 3, Label: "y"}
	doc.Layer("relations").Add(&annotations.BinaryRelation{Head: a, Tail: stray, Label: "r"})

	path := filepath.Join(t.TempDir(), "dataset.parquet")
	err := WriteDocuments(path, []*documents.TextDocument{doc}, layers)
	assert.ErrorContains(t, err, "is not in layer")
}

func TestReadMissingFile(t *testing.T) {
	_, err := ReadDocuments(filepath.Join(t.TempDir(), "missing.parquet"), testLayers())
	assert.Error(t, err)
}
