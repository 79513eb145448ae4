// Package crf implements a linear-chain conditional random field decoder.
// Given per-position emission scores for a tag set and learned transition
// scores, Viterbi decoding finds the highest scoring tag sequence; it is the
// span-tagging counterpart to the generative pointer-network decoder and
// shares its convention that padded positions are masked out rather than
// truncated.
package crf

import (
	"math"

	"github.com/pkg/errors"
)

// Model holds the transition parameters of a linear-chain CRF over NumTags
// tags. Emissions are supplied per call; the model carries only what is
// learned about tag adjacency.
type Model struct {
	NumTags int
	// Transitions[i][j] scores a transition from tag i to tag j.
	Transitions [][]float64
	// Start[i] scores tag i at the first unmasked position.
	Start []float64
	// End[i] scores tag i at the last unmasked position.
	End []float64
}

// NewModel creates a model with all parameters at zero.
func NewModel(numTags int) *Model {
	transitions := make([][]float64, numTags)
	for i := range transitions {
		transitions[i] = make([]float64, numTags)
	}
	return &Model{
		NumTags:     numTags,
		Transitions: transitions,
		Start:       make([]float64, numTags),
		End:         make([]float64, numTags),
	}
}

// Validate checks that the parameter shapes agree with NumTags.
func (m *Model) Validate() error {
	if m.NumTags <= 0 {
		return errors.Errorf("NumTags must be positive, got %d", m.NumTags)
	}
	if len(m.Transitions) != m.NumTags {
		return errors.Errorf("transitions have %d rows, want %d", len(m.Transitions), m.NumTags)
	}
	for i, row := range m.Transitions {
		if len(row) != m.NumTags {
			return errors.Errorf("transition row %d has %d columns, want %d", i, len(row), m.NumTags)
		}
	}
	if len(m.Start) != m.NumTags || len(m.End) != m.NumTags {
		return errors.Errorf("start/end scores have lengths %d/%d, want %d", len(m.Start), len(m.End), m.NumTags)
	}
	return nil
}

// Decode runs Viterbi over the emission scores and returns the best tag
// sequence together with its score. mask marks the valid positions; masked
// positions get no tag (the returned sequence covers only unmasked steps, in
// order). A nil mask treats every position as valid.
func (m *Model) Decode(emissions [][]float64, mask []bool) ([]int, float64, error) {
	if err := m.Validate(); err != nil {
		return nil, 0, err
	}
	steps, err := m.validSteps(emissions, mask)
	if err != nil {
		return nil, 0, err
	}
	if len(steps) == 0 {
		return nil, 0, nil
	}

	// score[j] is the best score of any path ending in tag j at the
	// current step; backptr[t][j] is the tag it came from.
	score := make([]float64, m.NumTags)
	for j := range score {
		score[j] = m.Start[j] + emissions[steps[0]][j]
	}
	backptr := make([][]int, len(steps))
	next := make([]float64, m.NumTags)
	for t := 1; t < len(steps); t++ {
		backptr[t] = make([]int, m.NumTags)
		for j := 0; j < m.NumTags; j++ {
			best, bestFrom := math.Inf(-1), 0
			for i := 0; i < m.NumTags; i++ {
				if s := score[i] + m.Transitions[i][j]; s > best {
					best, bestFrom = s, i
				}
			}
			next[j] = best + emissions[steps[t]][j]
			backptr[t][j] = bestFrom
		}
		score, next = next, score
	}

	bestScore, bestTag := math.Inf(-1), 0
	for j := 0; j < m.NumTags; j++ {
		if s := score[j] + m.End[j]; s > bestScore {
			bestScore, bestTag = s, j
		}
	}
	tags := make([]int, len(steps))
	tags[len(steps)-1] = bestTag
	for t := len(steps) - 1; t > 0; t-- {
		tags[t-1] = backptr[t][tags[t]]
	}
	return tags, bestScore, nil
}

// Score returns the score the model assigns to a given tag sequence over the
// unmasked positions. Useful in tests and for ranking alternatives.
func (m *Model) Score(emissions [][]float64, tags []int, mask []bool) (float64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	steps, err := m.validSteps(emissions, mask)
	if err != nil {
		return 0, err
	}
	if len(tags) != len(steps) {
		return 0, errors.Errorf("got %d tags for %d unmasked positions", len(tags), len(steps))
	}
	if len(steps) == 0 {
		return 0, nil
	}
	for _, tag := range tags {
		if tag < 0 || tag >= m.NumTags {
			return 0, errors.Errorf("tag %d out of range [0, %d)", tag, m.NumTags)
		}
	}
	total := m.Start[tags[0]] + emissions[steps[0]][tags[0]]
	for t := 1; t < len(steps); t++ {
		total += m.Transitions[tags[t-1]][tags[t]] + emissions[steps[t]][tags[t]]
	}
	return total + m.End[tags[len(tags)-1]], nil
}

func (m *Model) validSteps(emissions [][]float64, mask []bool) ([]int, error) {
	if mask != nil && len(mask) != len(emissions) {
		return nil, errors.Errorf("mask length %d does not match %d emission rows", len(mask), len(emissions))
	}
	var steps []int
	for t, row := range emissions {
		if len(row) != m.NumTags {
			return nil, errors.Errorf("emission row %d has %d scores, want %d", t, len(row), m.NumTags)
		}
		if mask == nil || mask[t] {
			steps = append(steps, t)
		}
	}
	return steps, nil
}
