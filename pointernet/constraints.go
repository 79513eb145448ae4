package pointernet

import (
	"github.com/pkg/errors"
)

// buildConstraint returns the 0/1 mask of ids allowed at the next generation
// step, given the prefix of the relation tuple currently being produced
// (completed tuples carry no state into the next one). The mask has
// pointerOffset + inputLen entries.
//
// The slot rules encode what the relation codec can decode:
//
//	slot 0: eos (stop generating) or any pointer (start a new tail span)
//	slot 1: a pointer at or after the tail start (inclusive end)
//	slot 2: a span label for the tail
//	slot 3: none (span without relation) or a pointer outside the tail
//	slot 4: none if slot 3 chose none; otherwise a pointer at or after the
//	        head start, never inside the tail, and when the tail begins
//	        after the head, never after the tail either (the head must
//	        close before a later tail)
//	slot 5: none if slot 3 chose none; otherwise a span label
//	slot 6: none if slot 3 chose none; otherwise a relation label
//	past 6: only padding
func buildConstraint(vocab *targetVocab, tuplePrefix []int, inputLen int) []int64 {
	offset := vocab.pointerOffset()
	mask := make([]int64, offset+inputLen)
	allowPointers := func(from int) {
		if from < offset {
			from = offset
		}
		for id := from; id < offset+inputLen; id++ {
			mask[id] = 1
		}
	}
	denyRange := func(from, to int) {
		if from < offset {
			from = offset
		}
		if to > offset+inputLen {
			to = offset + inputLen
		}
		for id := from; id < to; id++ {
			mask[id] = 0
		}
	}

	switch len(tuplePrefix) {
	case 0:
		mask[vocab.eosID] = 1
		allowPointers(offset)
	case 1:
		allowPointers(tuplePrefix[0])
	case 2:
		for id := range vocab.spanIDs {
			mask[id] = 1
		}
	case 3:
		mask[vocab.noneID] = 1
		allowPointers(offset)
		denyRange(tuplePrefix[0], tuplePrefix[1]+1)
	case 4:
		if tuplePrefix[3] == vocab.noneID {
			mask[vocab.noneID] = 1
			break
		}
		allowPointers(tuplePrefix[3])
		denyRange(tuplePrefix[0], tuplePrefix[1]+1)
		if tuplePrefix[0] > tuplePrefix[3] {
			denyRange(tuplePrefix[1]+1, offset+inputLen)
		}
	case 5:
		if tuplePrefix[3] == vocab.noneID {
			mask[vocab.noneID] = 1
			break
		}
		for id := range vocab.spanIDs {
			mask[id] = 1
		}
	case 6:
		if tuplePrefix[3] == vocab.noneID {
			mask[vocab.noneID] = 1
			break
		}
		for id := range vocab.relationIDs {
			mask[id] = 1
		}
	default:
		mask[vocab.padID()] = 1
	}
	return mask
}

// padOnly is the mask of a position past the end of generation.
func padOnly(vocab *targetVocab, inputLen int) []int64 {
	mask := make([]int64, vocab.pointerOffset()+inputLen)
	mask[vocab.padID()] = 1
	return mask
}

// nextConstraint computes the mask for the next step of autoregressive
// generation from the full emitted prefix (without the leading bos). Once eos
// has been emitted anywhere, only padding remains allowed; otherwise the slot
// rule of the current tuple position applies.
func nextConstraint(vocab *targetVocab, prefix []int, inputLen int) []int64 {
	for _, id := range prefix {
		if id == vocab.eosID {
			return padOnly(vocab, inputLen)
		}
	}
	return buildConstraint(vocab, prefix[len(prefix)-len(prefix)%relationTupleLen:], inputLen)
}

// buildConstraints returns one mask per position of the target sequence,
// constraining what may be generated there given the preceding ids. The
// target must be a sequence of complete relation tuples terminated by eos;
// the final mask allows only eos. Every mask is checked against the id the
// target actually holds at that position, so an encoding the constraints
// would forbid is rejected here instead of surfacing as a training mismatch.
func buildConstraints(vocab *targetVocab, target []int, inputLen int) ([][]int64, error) {
	if len(target) == 0 || target[len(target)-1] != vocab.eosID {
		return nil, errors.Errorf("constraint target %v must be terminated by the eos id %d", target, vocab.eosID)
	}
	body := target[: len(target)-1]
	if len(body)%relationTupleLen != 0 {
		return nil, errors.Errorf(
			"constraint target %v does not consist of complete relation tuples (%d ids before eos)",
			target, len(body))
	}
	masks := make([][]int64, 0, len(target))
	for i, id := range body {
		mask := buildConstraint(vocab, body[i-i%relationTupleLen:i], inputLen)
		if id < 0 || id >= len(mask) || mask[id] == 0 {
			return nil, errors.Errorf(
				"target id %d at position %d of %v is not allowed by its own constraint", id, i, target)
		}
		masks = append(masks, mask)
	}
	masks = append(masks, padOnly(vocab, inputLen))
	return masks, nil
}
