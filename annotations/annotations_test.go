package annotations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabeledSpan(t *testing.T) {
	span := &LabeledSpan{Start: 10, End: 20, Label: "content"}
	assert.Equal(t, []int{10, 20}, span.SortKey())
	assert.Equal(t, `LabeledSpan(10, 20, "content")`, span.String())
	assert.Equal(t, "dummy text", span.Resolve("This is a dummy text about nothing."))
}

func TestLabeledMultiSpan(t *testing.T) {
	span := &LabeledMultiSpan{
		Slices: []Slice{{Start: 0, End: 4}, {Start: 10, End: 20}},
		Label:  "content",
	}
	assert.Equal(t, []int{0, 4, 10, 20}, span.SortKey())
	assert.Equal(t, `LabeledMultiSpan([(0, 4), (10, 20)], "content")`, span.String())
	assert.Equal(t, []string{"This", "dummy text"},
		span.Resolve("This is a dummy text about nothing."))
}

func TestBinaryRelationString(t *testing.T) {
	rel := &BinaryRelation{
		Head:  &LabeledSpan{Start: 10, End: 20, Label: "content"},
		Tail:  &LabeledSpan{Start: 27, End: 34, Label: "topic"},
		Label: "is_about",
	}
	assert.Equal(t,
		`BinaryRelation(LabeledSpan(10, 20, "content"), LabeledSpan(27, 34, "topic"), "is_about")`,
		rel.String())
}

func TestLabel(t *testing.T) {
	span := &LabeledSpan{Start: 0, End: 1, Label: "a"}
	multi := &LabeledMultiSpan{Slices: []Slice{{Start: 0, End: 1}}, Label: "b"}
	rel := &BinaryRelation{Head: span, Tail: span, Label: "c"}
	assert.Equal(t, "a", Label(span))
	assert.Equal(t, "b", Label(multi))
	assert.Equal(t, "c", Label(rel))
}

func TestCompareSpans(t *testing.T) {
	for _, tc := range []struct {
		name string
		a, b SpanLike
		want int
	}{
		{
			name: "earlier start first",
			a:    &LabeledSpan{Start: 1, End: 5},
			b:    &LabeledSpan{Start: 2, End: 3},
			want: -1,
		},
		{
			name: "same start shorter end first",
			a:    &LabeledSpan{Start: 1, End: 3},
			b:    &LabeledSpan{Start: 1, End: 5},
			want: -1,
		},
		{
			name: "equal",
			a:    &LabeledSpan{Start: 1, End: 3},
			b:    &LabeledSpan{Start: 1, End: 3},
			want: 0,
		},
		{
			name: "span before longer multi span with same prefix",
			a:    &LabeledSpan{Start: 1, End: 3},
			b:    &LabeledMultiSpan{Slices: []Slice{{Start: 1, End: 3}, {Start: 7, End: 9}}},
			want: -2,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CompareSpans(tc.a, tc.b))
			assert.Equal(t, -tc.want, CompareSpans(tc.b, tc.a))
		})
	}
}

func TestSpanEqual(t *testing.T) {
	assert.True(t, SpanEqual(
		&LabeledSpan{Start: 1, End: 3, Label: "a"},
		&LabeledSpan{Start: 1, End: 3, Label: "a"},
	))
	assert.False(t, SpanEqual(
		&LabeledSpan{Start: 1, End: 3, Label: "a"},
		&LabeledSpan{Start: 1, End: 3, Label: "b"},
	))
	assert.False(t, SpanEqual(
		&LabeledSpan{Start: 1, End: 3, Label: "a"},
		&LabeledMultiSpan{Slices: []Slice{{Start: 1, End: 3}}, Label: "a"},
	))
	assert.True(t, SpanEqual(
		&LabeledMultiSpan{Slices: []Slice{{Start: 1, End: 3}, {Start: 7, End: 9}}, Label: "a"},
		&LabeledMultiSpan{Slices: []Slice{{Start: 1, End: 3}, {Start: 7, End: 9}}, Label: "a"},
	))
	assert.False(t, SpanEqual(
		&LabeledMultiSpan{Slices: []Slice{{Start: 1, End: 3}}, Label: "a"},
		&LabeledMultiSpan{Slices: []Slice{{Start: 1, End: 4}}, Label: "a"},
	))
}
