// Package pointernet implements the task side of a pointer-network model for
// joint entity and relation extraction: it converts annotated documents into
// target id sequences over a mixed vocabulary of special tokens, labels and
// source-position pointers, and converts model output back into annotations.
//
// The target vocabulary is laid out as
//
//	[bos, eos, none, span labels..., relation labels...]
//
// and every id greater or equal to the vocabulary size is a pointer: it
// denotes the source token at position id - len(vocabulary).
package pointernet

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/gomlx/go-pointernet/annotations"
)

// DecodeErrorKind classifies why a relation tuple could not be decoded.
type DecodeErrorKind int

const (
	// DecodeErrUnknownLabel means a slot that must hold a span or relation
	// label id held something else.
	DecodeErrUnknownLabel DecodeErrorKind = iota
	// DecodeErrInvertedSpan means a span's end pointer precedes its start.
	DecodeErrInvertedSpan
	// DecodeErrWrongArity means the tuple had the wrong length or a
	// malformed mixture of none ids.
	DecodeErrWrongArity
	// DecodeErrNotAPointer means a slot that must hold a source position
	// held a vocabulary id, or a pointer past the end of the input.
	DecodeErrNotAPointer
)

func (k DecodeErrorKind) String() string {
	switch k {
	case DecodeErrUnknownLabel:
		return "unknown_label"
	case DecodeErrInvertedSpan:
		return "inverted_span"
	case DecodeErrWrongArity:
		return "wrong_arity"
	case DecodeErrNotAPointer:
		return "not_a_pointer"
	default:
		return fmt.Sprintf("DecodeErrorKind(%d)", int(k))
	}
}

// DecodeError reports a single undecodable tuple together with the ids that
// caused it. Pointer-network output is not trusted: callers count these and
// move on instead of failing the document.
type DecodeError struct {
	Kind DecodeErrorKind
	IDs  []int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode ids %v: %s", e.IDs, e.Kind)
}

func decodeErrf(kind DecodeErrorKind, ids []int) *DecodeError {
	return &DecodeError{Kind: kind, IDs: append([]int(nil), ids...)}
}

// DecodeStats aggregates the outcome of decoding one output sequence.
type DecodeStats struct {
	Correct int
	Errors  map[DecodeErrorKind]int
}

func (s *DecodeStats) count(err *DecodeError) {
	if s.Errors == nil {
		s.Errors = make(map[DecodeErrorKind]int)
	}
	s.Errors[err.Kind]++
}

// targetVocab is the fixed id space of the generation targets. Ids below
// pointerOffset are vocabulary entries, ids at or above it are pointers into
// the source token sequence. The pad id aliases the eos id.
type targetVocab struct {
	targets     []string
	ids         map[string]int
	bosID       int
	eosID       int
	noneID      int
	spanIDs     map[int]bool
	relationIDs map[int]bool
}

func newTargetVocab(bosToken, eosToken, noneLabel string, spanLabels, relationLabels []string) (*targetVocab, error) {
	v := &targetVocab{
		ids:         make(map[string]int),
		spanIDs:     make(map[int]bool),
		relationIDs: make(map[int]bool),
	}
	add := func(target string) (int, error) {
		if _, exists := v.ids[target]; exists {
			return 0, errors.Errorf("duplicate target vocabulary entry %q", target)
		}
		id := len(v.targets)
		v.targets = append(v.targets, target)
		v.ids[target] = id
		return id, nil
	}
	var err error
	if v.bosID, err = add(bosToken); err != nil {
		return nil, err
	}
	if v.eosID, err = add(eosToken); err != nil {
		return nil, err
	}
	if v.noneID, err = add(noneLabel); err != nil {
		return nil, err
	}
	for _, label := range spanLabels {
		id, err := add(label)
		if err != nil {
			return nil, err
		}
		v.spanIDs[id] = true
	}
	for _, label := range relationLabels {
		id, err := add(label)
		if err != nil {
			return nil, err
		}
		v.relationIDs[id] = true
	}
	return v, nil
}

func (v *targetVocab) pointerOffset() int { return len(v.targets) }
func (v *targetVocab) padID() int        { return v.eosID }

func (v *targetVocab) labelID(label string) (int, error) {
	id, ok := v.ids[label]
	if !ok {
		return 0, errors.Errorf("label %q is not in the target vocabulary", label)
	}
	return id, nil
}

func (v *targetVocab) isSpanLabel(label string) bool {
	id, ok := v.ids[label]
	return ok && v.spanIDs[id]
}

func (v *targetVocab) isRelationLabel(label string) bool {
	id, ok := v.ids[label]
	return ok && v.relationIDs[id]
}

func (v *targetVocab) sortedSpanIDs() []int     { return sortedKeys(v.spanIDs) }
func (v *targetVocab) sortedRelationIDs() []int { return sortedKeys(v.relationIDs) }

func sortedKeys(set map[int]bool) []int {
	keys := make([]int, 0, len(set))
	for id := range set {
		keys = append(keys, id)
	}
	sort.Ints(keys)
	return keys
}

// relationCodec translates between binary relations and 7-id tuples
//
//	[tail_start, tail_end, tail_label, head_start, head_end, head_label, relation_label]
//
// with the tail argument first and span ends encoded inclusively. A span
// without any relation is carried as a loop: the head slots and the relation
// slot all hold the none id, and decoding yields a relation of the loop label
// whose head and tail are the same span.
type relationCodec struct {
	vocab     *targetVocab
	loopLabel string
}

const relationTupleLen = 7

// encodeSpan returns [start, end-1, label] with the positions shifted into
// pointer space.
func (c *relationCodec) encodeSpan(span annotations.SpanLike) ([]int, error) {
	simple, ok := span.(*annotations.LabeledSpan)
	if !ok {
		return nil, errors.Errorf("only simple labeled spans can be encoded, got %T", span)
	}
	labelID, err := c.vocab.labelID(simple.Label)
	if err != nil {
		return nil, err
	}
	if !c.vocab.spanIDs[labelID] {
		return nil, errors.Errorf("label %q is not a span label", simple.Label)
	}
	offset := c.vocab.pointerOffset()
	return []int{simple.Start + offset, simple.End - 1 + offset, labelID}, nil
}

// decodeSpan is the inverse of encodeSpan. inputLen bounds valid pointers.
func (c *relationCodec) decodeSpan(ids []int, inputLen int) (*annotations.LabeledSpan, *DecodeError) {
	if len(ids) != 3 {
		return nil, decodeErrf(DecodeErrWrongArity, ids)
	}
	offset := c.vocab.pointerOffset()
	for _, id := range ids[:2] {
		if id < offset || id >= offset+inputLen {
			return nil, decodeErrf(DecodeErrNotAPointer, ids)
		}
	}
	if !c.vocab.spanIDs[ids[2]] {
		return nil, decodeErrf(DecodeErrUnknownLabel, ids)
	}
	start, endInclusive := ids[0]-offset, ids[1]-offset
	if endInclusive < start {
		return nil, decodeErrf(DecodeErrInvertedSpan, ids)
	}
	return &annotations.LabeledSpan{
		Start: start,
		End:   endInclusive + 1,
		Label: c.vocab.targets[ids[2]],
	}, nil
}

// encodeRelation returns the 7-id tuple for a relation. A loop relation
// (head identical to tail, loop label) encodes as the tail span followed by
// four none ids.
func (c *relationCodec) encodeRelation(rel *annotations.BinaryRelation) ([]int, error) {
	tail, err := c.encodeSpan(rel.Tail)
	if err != nil {
		return nil, err
	}
	if rel.Label == c.loopLabel {
		if rel.Head != rel.Tail {
			return nil, errors.Errorf("relation with the loop label %q must connect a span to itself", c.loopLabel)
		}
		none := c.vocab.noneID
		return append(tail, none, none, none, none), nil
	}
	head, err := c.encodeSpan(rel.Head)
	if err != nil {
		return nil, err
	}
	labelID, err := c.vocab.labelID(rel.Label)
	if err != nil {
		return nil, err
	}
	if !c.vocab.relationIDs[labelID] {
		return nil, errors.Errorf("label %q is not a relation label", rel.Label)
	}
	return append(append(tail, head...), labelID), nil
}

// decodeRelation is the inverse of encodeRelation.
func (c *relationCodec) decodeRelation(ids []int, inputLen int) (*annotations.BinaryRelation, *DecodeError) {
	if len(ids) != relationTupleLen {
		return nil, decodeErrf(DecodeErrWrongArity, ids)
	}
	tail, derr := c.decodeSpan(ids[:3], inputLen)
	if derr != nil {
		return nil, derr
	}
	if ids[6] == c.vocab.noneID {
		for _, id := range ids[3:6] {
			if id != c.vocab.noneID {
				return nil, decodeErrf(DecodeErrWrongArity, ids)
			}
		}
		return &annotations.BinaryRelation{Head: tail, Tail: tail, Label: c.loopLabel}, nil
	}
	head, derr := c.decodeSpan(ids[3:6], inputLen)
	if derr != nil {
		return nil, derr
	}
	if !c.vocab.relationIDs[ids[6]] {
		return nil, decodeErrf(DecodeErrUnknownLabel, ids)
	}
	return &annotations.BinaryRelation{Head: head, Tail: tail, Label: c.vocab.targets[ids[6]]}, nil
}

// decodeRelations greedily parses a flat id sequence into relation tuples.
// A tuple is complete as soon as its last id is a relation label, or it
// reached full length ending in the none id. Undecodable tuples are counted
// in the stats and skipped; ids of a trailing incomplete tuple are returned
// as the remainder.
func (c *relationCodec) decodeRelations(ids []int, inputLen int) ([]*annotations.BinaryRelation, []int, DecodeStats) {
	var (
		relations []*annotations.BinaryRelation
		tuple     []int
		stats     DecodeStats
	)
	for _, id := range ids {
		tuple = append(tuple, id)
		if !c.vocab.relationIDs[id] && !(id == c.vocab.noneID && len(tuple) == relationTupleLen) {
			continue
		}
		rel, derr := c.decodeRelation(tuple, inputLen)
		if derr != nil {
			stats.count(derr)
		} else {
			relations = append(relations, rel)
			stats.Correct++
		}
		tuple = nil
	}
	return relations, tuple, stats
}
