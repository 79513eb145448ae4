// Package annotations defines the value objects used by the extraction
// pipeline: labeled spans (single- and multi-slice) over a character or token
// sequence, and binary relations between spans.
//
// Annotations are handled through pointers so that identity is stable: a
// relation's Head and Tail are shared references into a span layer, not owned
// copies, which is what argument-overlap detection and deduplication rely on.
package annotations

import (
	"fmt"
	"strings"
)

// Annotation is the closed union of all annotation kinds.
// Only *LabeledSpan, *LabeledMultiSpan and *BinaryRelation implement it.
type Annotation interface {
	annotation()
	fmt.Stringer
}

// SpanLike is the closed union of span-shaped annotation kinds,
// i.e. *LabeledSpan and *LabeledMultiSpan.
type SpanLike interface {
	Annotation
	// SortKey returns the flattened boundary positions used for stable
	// ordering: (start, end) for a span, (s0, e0, s1, e1, ...) for a
	// multi-span.
	SortKey() []int
}

// Slice is one contiguous piece of a multi-span, a half-open interval.
type Slice struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// LabeledSpan is a labeled half-open interval [Start, End) over a sequence of
// characters or tokens. Invariant: Start < End.
type LabeledSpan struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Label string `json:"label"`
}

func (s *LabeledSpan) annotation() {}

// SortKey implements SpanLike.
func (s *LabeledSpan) SortKey() []int { return []int{s.Start, s.End} }

func (s *LabeledSpan) String() string {
	return fmt.Sprintf("LabeledSpan(%d, %d, %q)", s.Start, s.End, s.Label)
}

// Resolve returns the text slice covered by the span.
func (s *LabeledSpan) Resolve(text string) string {
	return text[s.Start:s.End]
}

// LabeledMultiSpan is an ordered sequence of non-overlapping slices sharing
// one label. Invariant: at least one slice, slices mutually non-overlapping.
type LabeledMultiSpan struct {
	Slices []Slice `json:"slices"`
	Label  string  `json:"label"`
}

func (s *LabeledMultiSpan) annotation() {}

// SortKey implements SpanLike.
func (s *LabeledMultiSpan) SortKey() []int {
	key := make([]int, 0, 2*len(s.Slices))
	for _, slc := range s.Slices {
		key = append(key, slc.Start, slc.End)
	}
	return key
}

func (s *LabeledMultiSpan) String() string {
	parts := make([]string, len(s.Slices))
	for i, slc := range s.Slices {
		parts[i] = fmt.Sprintf("(%d, %d)", slc.Start, slc.End)
	}
	return fmt.Sprintf("LabeledMultiSpan([%s], %q)", strings.Join(parts, ", "), s.Label)
}

// Resolve returns the text slices covered by the multi-span.
func (s *LabeledMultiSpan) Resolve(text string) []string {
	parts := make([]string, len(s.Slices))
	for i, slc := range s.Slices {
		parts[i] = text[slc.Start:slc.End]
	}
	return parts
}

// BinaryRelation is a directed, labeled relation between two spans of the
// same span layer. Head and Tail are shared references, not copies.
type BinaryRelation struct {
	Head  SpanLike `json:"head"`
	Tail  SpanLike `json:"tail"`
	Label string   `json:"label"`
}

func (r *BinaryRelation) annotation() {}

func (r *BinaryRelation) String() string {
	return fmt.Sprintf("BinaryRelation(%s, %s, %q)", r.Head, r.Tail, r.Label)
}

// Label returns the label of any annotation kind.
func Label(a Annotation) string {
	switch v := a.(type) {
	case *LabeledSpan:
		return v.Label
	case *LabeledMultiSpan:
		return v.Label
	case *BinaryRelation:
		return v.Label
	default:
		panic(fmt.Sprintf("unknown annotation kind %T", a))
	}
}

// CompareSpans orders spans by their sort keys, comparing position by
// position, shorter keys first on a shared prefix.
func CompareSpans(a, b SpanLike) int {
	ka, kb := a.SortKey(), b.SortKey()
	for i := 0; i < len(ka) && i < len(kb); i++ {
		if ka[i] != kb[i] {
			if ka[i] < kb[i] {
				return -1
			}
			return 1
		}
	}
	return len(ka) - len(kb)
}

// SpanEqual reports whether two span annotations cover the same positions
// with the same label. Used for deduplication after offset remapping.
func SpanEqual(a, b SpanLike) bool {
	switch va := a.(type) {
	case *LabeledSpan:
		vb, ok := b.(*LabeledSpan)
		return ok && *va == *vb
	case *LabeledMultiSpan:
		vb, ok := b.(*LabeledMultiSpan)
		if !ok || va.Label != vb.Label || len(va.Slices) != len(vb.Slices) {
			return false
		}
		for i := range va.Slices {
			if va.Slices[i] != vb.Slices[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}
