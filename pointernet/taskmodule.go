package pointernet

import (
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/go-pointernet/align"
	"github.com/gomlx/go-pointernet/annotations"
	"github.com/gomlx/go-pointernet/documents"
	"github.com/gomlx/go-pointernet/tokenizers/api"
)

// TaskTokenizer is what the task module needs from a tokenizer: windowed
// encoding with character offsets, plus vocabulary access for the label
// tokens and the pad id.
type TaskTokenizer interface {
	api.SegmentingTokenizer
	api.VocabTokenizer
}

// Config configures a TaskModule. LabelsPerLayer is the only derived state:
// a config with it set describes a fully prepared task module and can be
// persisted and reloaded without the training documents.
type Config struct {
	// SpanLayer names the document layer holding the labeled entity spans.
	SpanLayer string `json:"span_layer"`
	// RelationLayer names the layer holding binary relations between
	// spans of SpanLayer.
	RelationLayer string `json:"relation_layer"`
	// PartitionLayer optionally names a span layer (e.g. sentences) whose
	// entries are tokenized independently. Empty tokenizes whole texts.
	PartitionLayer string `json:"partition_layer,omitempty"`

	// NoneLabel fills the unused slots of a relation tuple that carries a
	// span without relations. Defaults to "none".
	NoneLabel string `json:"none_label,omitempty"`
	// LoopLabel marks the synthetic self-relation such a tuple decodes
	// to. Defaults to "loop".
	LoopLabel string `json:"loop_label,omitempty"`

	// LabelsPerLayer maps SpanLayer and RelationLayer to their sorted
	// label inventories. Filled by Prepare; setting it up front skips the
	// preparation pass.
	LabelsPerLayer map[string][]string `json:"labels_per_layer,omitempty"`
	// ExcludeLabelsPerLayer removes labels from the inventories during
	// Prepare, e.g. a "no_relation" marker the corpus carries.
	ExcludeLabelsPerLayer map[string][]string `json:"exclude_labels_per_layer,omitempty"`

	// CreateConstraints attaches per-step allowed-id masks to every
	// target encoding, for constrained generation during training.
	CreateConstraints bool `json:"create_constraints,omitempty"`
	// LabelTokens adds one "<<label>>" token per span and relation label
	// to the tokenizer vocabulary.
	LabelTokens bool `json:"label_tokens,omitempty"`
	// LogFirstNExamples logs the first n encoded examples in detail.
	LogFirstNExamples int `json:"log_first_n_examples,omitempty"`
}

// TaskEncoding is one model example: a tokenized window of a source document
// together with its encoded input and, after EncodeTarget, its target.
type TaskEncoding struct {
	// Document is the token document this example was built from,
	// annotations rebased into its token coordinates.
	Document *documents.TokenDocument

	InputIDs      []int64
	AttentionMask []int64

	Labels               []int64
	DecoderAttentionMask []int64
	// Constraints has one allowed-id mask per target position; nil unless
	// the task module creates constraints.
	Constraints [][]int64
}

// Batch is a padded batch of task encodings with everything as int64
// tensors-to-be.
type Batch struct {
	InputIDs             [][]int64
	AttentionMask        [][]int64
	Labels               [][]int64
	DecoderAttentionMask [][]int64
	Constraints          [][][]int64
}

// TaskModule converts between annotated documents and pointer-network
// examples. It is created unprepared unless the config carries label
// inventories; Prepare derives them from gold documents.
type TaskModule struct {
	cfg       Config
	tokenizer TaskTokenizer

	vocab *targetVocab
	codec *relationCodec

	mu     sync.Mutex
	logged int
}

var errNotPrepared = errors.New("task module is not prepared: call Prepare or set LabelsPerLayer in the config")

// New creates a task module. When cfg.LabelsPerLayer is already set the
// module is ready to encode; otherwise Prepare must run first.
func New(tokenizer TaskTokenizer, cfg Config) (*TaskModule, error) {
	if cfg.SpanLayer == "" || cfg.RelationLayer == "" {
		return nil, errors.New("both a span layer and a relation layer must be configured")
	}
	if cfg.NoneLabel == "" {
		cfg.NoneLabel = "none"
	}
	if cfg.LoopLabel == "" {
		cfg.LoopLabel = "loop"
	}
	m := &TaskModule{cfg: cfg, tokenizer: tokenizer}
	if cfg.LabelsPerLayer != nil {
		if err := m.postPrepare(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Config returns the current configuration; after Prepare it includes the
// derived label inventories and fully describes the module.
func (m *TaskModule) Config() Config { return m.cfg }

// IsPrepared reports whether label inventories are available.
func (m *TaskModule) IsPrepared() bool { return m.vocab != nil }

// Prepare derives the span and relation label inventories from gold
// documents and finalizes the target vocabulary.
func (m *TaskModule) Prepare(docs []*documents.TextDocument) error {
	if m.IsPrepared() {
		return errors.New("task module is already prepared")
	}
	excluded := func(layer, label string) bool {
		for _, l := range m.cfg.ExcludeLabelsPerLayer[layer] {
			if l == label {
				return true
			}
		}
		return false
	}
	collect := func(layer string) []string {
		seen := make(map[string]bool)
		for _, doc := range docs {
			l := doc.Layer(layer)
			if l == nil {
				continue
			}
			for _, ann := range l.Annotations() {
				label := annotations.Label(ann)
				if label == m.cfg.NoneLabel || label == m.cfg.LoopLabel || excluded(layer, label) {
					continue
				}
				seen[label] = true
			}
		}
		labels := make([]string, 0, len(seen))
		for label := range seen {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		return labels
	}
	spanLabels := collect(m.cfg.SpanLayer)
	relationLabels := collect(m.cfg.RelationLayer)
	if len(spanLabels) == 0 {
		return errors.Errorf("no span labels found in layer %q of the preparation documents", m.cfg.SpanLayer)
	}
	m.cfg.LabelsPerLayer = map[string][]string{
		m.cfg.SpanLayer:     spanLabels,
		m.cfg.RelationLayer: relationLabels,
	}
	return m.postPrepare()
}

func (m *TaskModule) postPrepare() error {
	spanLabels, ok := m.cfg.LabelsPerLayer[m.cfg.SpanLayer]
	if !ok {
		return errors.Errorf("labels for the span layer %q are missing from LabelsPerLayer", m.cfg.SpanLayer)
	}
	relationLabels, ok := m.cfg.LabelsPerLayer[m.cfg.RelationLayer]
	if !ok {
		return errors.Errorf("labels for the relation layer %q are missing from LabelsPerLayer", m.cfg.RelationLayer)
	}
	for _, label := range relationLabels {
		if label == m.cfg.LoopLabel {
			return errors.Errorf("the loop label %q must not appear among the relation labels", m.cfg.LoopLabel)
		}
	}
	bosTok, ok := m.tokenizer.IDToToken(api.MustSpecialTokenID(m.tokenizer, api.TokBeginningOfSentence))
	if !ok {
		return errors.New("tokenizer does not expose its beginning-of-sentence token")
	}
	eosTok, ok := m.tokenizer.IDToToken(api.MustSpecialTokenID(m.tokenizer, api.TokEndOfSentence))
	if !ok {
		return errors.New("tokenizer does not expose its end-of-sentence token")
	}
	vocab, err := newTargetVocab(bosTok, eosTok, m.cfg.NoneLabel, spanLabels, relationLabels)
	if err != nil {
		return err
	}
	m.vocab = vocab
	m.codec = &relationCodec{vocab: vocab, loopLabel: m.cfg.LoopLabel}

	if m.cfg.LabelTokens {
		if err := m.addLabelTokens(spanLabels, relationLabels); err != nil {
			return err
		}
	}
	return nil
}

// addLabelTokens registers one "<<label>>" marker per label with the
// tokenizer, longest first so that no marker is pre-tokenized as a prefix of
// a longer one.
func (m *TaskModule) addLabelTokens(spanLabels, relationLabels []string) error {
	seen := make(map[string]bool)
	var labelTokens []string
	for _, label := range append(append([]string{}, spanLabels...), relationLabels...) {
		token := "<<" + label + ">>"
		if seen[token] {
			return errors.Errorf("label token %q is produced by more than one label", token)
		}
		seen[token] = true
		if _, exists := m.tokenizer.TokenToID(token); exists {
			return errors.Errorf("label token %q is already present in the tokenizer vocabulary", token)
		}
		labelTokens = append(labelTokens, token)
	}
	sort.Slice(labelTokens, func(i, j int) bool {
		if len(labelTokens[i]) != len(labelTokens[j]) {
			return len(labelTokens[i]) > len(labelTokens[j])
		}
		return labelTokens[i] < labelTokens[j]
	})
	m.tokenizer.AddSpecialTokens(labelTokens)
	return nil
}

// TargetTokens returns the target vocabulary in id order.
func (m *TaskModule) TargetTokens() []string {
	if m.vocab == nil {
		return nil
	}
	return append([]string(nil), m.vocab.targets...)
}

// PointerOffset returns the first id that denotes a source position.
func (m *TaskModule) PointerOffset() int {
	if m.vocab == nil {
		return 0
	}
	return m.vocab.pointerOffset()
}

func (m *TaskModule) tokenSpecs() []documents.LayerSpec {
	specs := []documents.LayerSpec{
		{Name: m.cfg.SpanLayer, Target: documents.TargetTokens},
		{Name: m.cfg.RelationLayer, Target: m.cfg.SpanLayer},
	}
	if m.cfg.PartitionLayer != "" {
		specs = append(specs, documents.LayerSpec{Name: m.cfg.PartitionLayer, Target: documents.TargetTokens})
	}
	return specs
}

func (m *TaskModule) textSpecs() []documents.LayerSpec {
	return []documents.LayerSpec{
		{Name: m.cfg.SpanLayer, Target: documents.TargetText},
		{Name: m.cfg.RelationLayer, Target: m.cfg.SpanLayer},
	}
}

// EncodeInput tokenizes a document (partition by partition, window by
// window) and returns one task encoding per resulting token document.
// Documents without an id get a fresh uuid so the windows stay traceable.
func (m *TaskModule) EncodeInput(doc *documents.TextDocument) ([]*TaskEncoding, error) {
	if m.vocab == nil {
		return nil, errNotPrepared
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	tokenDocs, err := align.TokenizeDocument(doc, m.tokenizer, m.tokenSpecs(), align.TokenizeConfig{
		PartitionLayer: m.cfg.PartitionLayer,
		Strict:         false,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "tokenizing document %q", doc.ID)
	}
	result := make([]*TaskEncoding, 0, len(tokenDocs))
	for i, tokenDoc := range tokenDocs {
		tokenDoc.ID = fmt.Sprintf("%s-tokenized-%d-of-%d", doc.ID, i+1, len(tokenDocs))
		encoding, ok := tokenDoc.Metadata[align.MetaEncoding].(api.Encoding)
		if !ok {
			return nil, errors.Errorf("token document %q is missing its tokenizer encoding", tokenDoc.ID)
		}
		result = append(result, &TaskEncoding{
			Document:      tokenDoc,
			InputIDs:      toInt64(encoding.IDs),
			AttentionMask: toInt64(encoding.AttentionMask),
		})
	}
	return result, nil
}

// EncodeAnnotations encodes the relations and unattached spans of a token
// document into the flat target id sequence, terminated by eos. Tuples are
// ordered by head start, then tail start. Annotations whose label is outside
// the prepared inventory (see ExcludeLabelsPerLayer) are left out; the spans
// of a left-out relation still encode as loops unless excluded themselves.
func (m *TaskModule) EncodeAnnotations(doc *documents.TokenDocument) ([]int, error) {
	if m.vocab == nil {
		return nil, errNotPrepared
	}
	type encoded struct {
		rel   *annotations.BinaryRelation
		tuple []int
	}
	var encodings []encoded
	covered := make(map[annotations.Annotation]bool)

	if relLayer := doc.Layer(m.cfg.RelationLayer); relLayer != nil {
		for _, ann := range relLayer.Annotations() {
			rel, ok := ann.(*annotations.BinaryRelation)
			if !ok {
				return nil, errors.Errorf("layer %q contains non-relation annotation %T", m.cfg.RelationLayer, ann)
			}
			if !m.vocab.isRelationLabel(rel.Label) ||
				excludedSpan(m.vocab, rel.Head) || excludedSpan(m.vocab, rel.Tail) {
				continue
			}
			tuple, err := m.codec.encodeRelation(rel)
			if err != nil {
				return nil, errors.Wrapf(err, "document %q", doc.ID)
			}
			encodings = append(encodings, encoded{rel: rel, tuple: tuple})
			covered[rel.Head] = true
			covered[rel.Tail] = true
		}
	}
	if spanLayer := doc.Layer(m.cfg.SpanLayer); spanLayer != nil {
		for _, ann := range spanLayer.Annotations() {
			if covered[ann] {
				continue
			}
			span, ok := ann.(annotations.SpanLike)
			if !ok {
				return nil, errors.Errorf("layer %q contains non-span annotation %T", m.cfg.SpanLayer, ann)
			}
			if excludedSpan(m.vocab, span) {
				continue
			}
			loop := &annotations.BinaryRelation{Head: span, Tail: span, Label: m.cfg.LoopLabel}
			tuple, err := m.codec.encodeRelation(loop)
			if err != nil {
				return nil, errors.Wrapf(err, "document %q", doc.ID)
			}
			encodings = append(encodings, encoded{rel: loop, tuple: tuple})
		}
	}

	// Serialization order: head start, tie broken by tail start only,
	// insertion order on full ties.
	sort.SliceStable(encodings, func(i, j int) bool {
		hi, hj := encodings[i].rel.Head.SortKey()[0], encodings[j].rel.Head.SortKey()[0]
		if hi != hj {
			return hi < hj
		}
		return encodings[i].rel.Tail.SortKey()[0] < encodings[j].rel.Tail.SortKey()[0]
	})

	target := make([]int, 0, len(encodings)*relationTupleLen+1)
	for _, e := range encodings {
		target = append(target, e.tuple...)
	}

	// Round-trip check: the decoder must reconstruct exactly what was
	// encoded, otherwise the target cannot be learned from.
	decoded, remainder, stats := m.codec.decodeRelations(target, doc.Len())
	if len(remainder) > 0 || len(stats.Errors) > 0 || len(decoded) != len(encodings) {
		klog.Warningf("document %q: encoded targets do not decode back to their annotations (decoded %d of %d, errors %v)",
			doc.ID, len(decoded), len(encodings), stats.Errors)
	}

	return append(target, m.vocab.eosID), nil
}

// excludedSpan reports whether a span carries a label outside the prepared
// span inventory. Spans without a simple label are left for the codec to
// reject.
func excludedSpan(vocab *targetVocab, span annotations.SpanLike) bool {
	simple, ok := span.(*annotations.LabeledSpan)
	if !ok {
		return false
	}
	return !vocab.isSpanLabel(simple.Label)
}

// NextConstraint returns the allowed-id mask for the decoding step that
// follows prefix, for use during constrained generation. The mask has one
// entry per target id plus one per input token position.
func (m *TaskModule) NextConstraint(prefix []int, inputLen int) ([]int64, error) {
	if m.vocab == nil {
		return nil, errNotPrepared
	}
	return nextConstraint(m.vocab, prefix, inputLen), nil
}

// EncodeTarget fills in the target side of a task encoding: the label ids,
// their attention mask and, when configured, the generation constraints.
func (m *TaskModule) EncodeTarget(enc *TaskEncoding) error {
	if m.vocab == nil {
		return errNotPrepared
	}
	target, err := m.EncodeAnnotations(enc.Document)
	if err != nil {
		return err
	}
	if m.cfg.CreateConstraints {
		constraints, err := buildConstraints(m.vocab, target, len(enc.InputIDs))
		if err != nil {
			return errors.Wrapf(err, "document %q", enc.Document.ID)
		}
		enc.Constraints = constraints
	}
	enc.Labels = toInt64(target)
	enc.DecoderAttentionMask = make([]int64, len(target))
	for i := range enc.DecoderAttentionMask {
		enc.DecoderAttentionMask[i] = 1
	}
	m.maybeLogExample(enc)
	return nil
}

// Encode is the full encoding pipeline over a document collection. With
// targets enabled, documents whose annotations cannot be encoded are logged
// and skipped rather than failing the collection.
func (m *TaskModule) Encode(docs []*documents.TextDocument, withTargets bool) ([]*TaskEncoding, error) {
	var result []*TaskEncoding
	for _, doc := range docs {
		encodings, err := m.EncodeInput(doc)
		if err != nil {
			return nil, err
		}
		if !withTargets {
			result = append(result, encodings...)
			continue
		}
		for _, enc := range encodings {
			if err := m.EncodeTarget(enc); err != nil {
				klog.Errorf("skipping %q: cannot encode its targets: %v", enc.Document.ID, err)
				continue
			}
			result = append(result, enc)
		}
	}
	return result, nil
}

// DecodeAnnotations converts one model output sequence (bos/eos already
// stripped, see UnbatchOutput) into predicted spans and relations in token
// coordinates. Span labels are settled by majority vote across all tuples
// mentioning the same position; loop relations only contribute their span.
func (m *TaskModule) DecodeAnnotations(outputIDs []int, inputLen int) ([]*annotations.LabeledSpan, []*annotations.BinaryRelation, DecodeStats) {
	decoded, _, stats := m.codec.decodeRelations(outputIDs, inputLen)

	type spanKey struct{ start, end int }
	votes := make(map[spanKey][]string)
	var keyOrder []spanKey
	vote := func(span annotations.SpanLike) spanKey {
		s := span.(*annotations.LabeledSpan)
		key := spanKey{s.Start, s.End}
		if _, seen := votes[key]; !seen {
			keyOrder = append(keyOrder, key)
		}
		votes[key] = append(votes[key], s.Label)
		return key
	}

	type relKey struct {
		tail, head spanKey
		label      string
	}
	type pendingRel struct {
		tail, head spanKey
		label      string
	}
	relSeen := make(map[relKey]bool)
	var pending []pendingRel
	for _, rel := range decoded {
		tailKey := vote(rel.Tail)
		if rel.Label == m.cfg.LoopLabel {
			continue
		}
		headKey := vote(rel.Head)
		key := relKey{tail: tailKey, head: headKey, label: rel.Label}
		if relSeen[key] {
			continue
		}
		relSeen[key] = true
		pending = append(pending, pendingRel{tail: tailKey, head: headKey, label: rel.Label})
	}

	spans := make(map[spanKey]*annotations.LabeledSpan, len(votes))
	spanList := make([]*annotations.LabeledSpan, 0, len(votes))
	for _, key := range keyOrder {
		span := &annotations.LabeledSpan{Start: key.start, End: key.end, Label: majorityLabel(votes[key])}
		spans[key] = span
		spanList = append(spanList, span)
	}
	relations := make([]*annotations.BinaryRelation, 0, len(pending))
	for _, p := range pending {
		relations = append(relations, &annotations.BinaryRelation{
			Head:  spans[p.head],
			Tail:  spans[p.tail],
			Label: p.label,
		})
	}
	return spanList, relations, stats
}

// majorityLabel picks the most frequent label, breaking ties in favor of the
// label that appeared first.
func majorityLabel(labels []string) string {
	counts := make(map[string]int, len(labels))
	best := labels[0]
	for _, label := range labels {
		counts[label]++
		if counts[label] > counts[best] {
			best = label
		}
	}
	return best
}

// CreateAnnotationsFromOutput decodes a model output for one task encoding
// and yields the predicted annotations positioned in the source text, as
// (layer name, annotation) pairs.
func (m *TaskModule) CreateAnnotationsFromOutput(enc *TaskEncoding, outputIDs []int) (iter.Seq2[string, annotations.Annotation], error) {
	if m.vocab == nil {
		return nil, errNotPrepared
	}
	spans, relations, stats := m.DecodeAnnotations(outputIDs, enc.Document.Len())
	if len(stats.Errors) > 0 {
		klog.V(1).Infof("document %q: undecodable tuples in model output: %v", enc.Document.ID, stats.Errors)
	}

	// Predictions are staged on a scratch copy so the gold annotations of
	// the input document stay untouched.
	scratch := documents.NewTokenDocument(enc.Document.ID, enc.Document.Tokens, m.tokenSpecs())
	for k, v := range enc.Document.Metadata {
		scratch.Metadata[k] = v
	}
	for _, span := range spans {
		scratch.Layer(m.cfg.SpanLayer).Add(span)
	}
	for _, rel := range relations {
		scratch.Layer(m.cfg.RelationLayer).Add(rel)
	}
	textDoc, _, err := align.TokenToTextDocument(scratch, m.textSpecs(), align.DetokenizeOptions{Quiet: true})
	if err != nil {
		return nil, errors.Wrapf(err, "document %q", enc.Document.ID)
	}
	return func(yield func(string, annotations.Annotation) bool) {
		for _, spec := range m.textSpecs() {
			for _, ann := range textDoc.Layer(spec.Name).Annotations() {
				if !yield(spec.Name, ann) {
					return
				}
			}
		}
	}, nil
}

// Collate pads a list of task encodings into one batch. Inputs pad with the
// tokenizer pad id, labels with the target pad id (which aliases eos),
// attention masks with zero and constraints with -1 in both the sequence and
// the id dimension.
func (m *TaskModule) Collate(encodings []*TaskEncoding) (*Batch, error) {
	if m.vocab == nil {
		return nil, errNotPrepared
	}
	if len(encodings) == 0 {
		return nil, errors.New("cannot collate an empty list of encodings")
	}
	maxInput, maxTarget := 0, 0
	haveTargets := false
	for _, enc := range encodings {
		if len(enc.InputIDs) > maxInput {
			maxInput = len(enc.InputIDs)
		}
		if enc.Labels != nil {
			haveTargets = true
			if len(enc.Labels) > maxTarget {
				maxTarget = len(enc.Labels)
			}
		}
	}
	inputPad := int64(api.MustSpecialTokenID(m.tokenizer, api.TokPad))
	targetPad := int64(m.vocab.padID())

	batch := &Batch{}
	for _, enc := range encodings {
		batch.InputIDs = append(batch.InputIDs, padTo(enc.InputIDs, maxInput, inputPad))
		batch.AttentionMask = append(batch.AttentionMask, padTo(enc.AttentionMask, maxInput, 0))
	}
	if !haveTargets {
		return batch, nil
	}
	constraintWidth := m.vocab.pointerOffset() + maxInput
	for _, enc := range encodings {
		if enc.Labels == nil {
			return nil, errors.Errorf("encoding %q has no targets while others do", enc.Document.ID)
		}
		batch.Labels = append(batch.Labels, padTo(enc.Labels, maxTarget, targetPad))
		batch.DecoderAttentionMask = append(batch.DecoderAttentionMask, padTo(enc.DecoderAttentionMask, maxTarget, 0))
		if !m.cfg.CreateConstraints {
			continue
		}
		rows := make([][]int64, maxTarget)
		for i := range rows {
			if i < len(enc.Constraints) {
				rows[i] = padTo(enc.Constraints[i], constraintWidth, -1)
			} else {
				rows[i] = padTo(nil, constraintWidth, -1)
			}
		}
		batch.Constraints = append(batch.Constraints, rows)
	}
	return batch, nil
}

// UnbatchOutput splits a batch of generated sequences back into per-example
// id lists: a leading bos is dropped and everything from the first eos on is
// truncated, leaving exactly what DecodeAnnotations expects.
func (m *TaskModule) UnbatchOutput(sequences [][]int64) [][]int {
	result := make([][]int, len(sequences))
	for i, seq := range sequences {
		ids := make([]int, 0, len(seq))
		for j, id := range seq {
			if j == 0 && int(id) == m.vocab.bosID {
				continue
			}
			if int(id) == m.vocab.eosID {
				break
			}
			ids = append(ids, int(id))
		}
		result[i] = ids
	}
	return result
}

func (m *TaskModule) maybeLogExample(enc *TaskEncoding) {
	if m.cfg.LogFirstNExamples <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logged >= m.cfg.LogFirstNExamples {
		return
	}
	m.logged++
	rendered := make([]string, len(enc.Labels))
	for i, id := range enc.Labels {
		rendered[i] = m.renderTargetID(enc.Document, int(id))
	}
	klog.Infof("example %q\n  tokens:  %s\n  targets: %s",
		enc.Document.ID, strings.Join(enc.Document.Tokens, " "), strings.Join(rendered, " "))
}

// renderTargetID shows a target id as its vocabulary entry, or as the source
// token it points to.
func (m *TaskModule) renderTargetID(doc *documents.TokenDocument, id int) string {
	offset := m.vocab.pointerOffset()
	if id < 0 || id >= offset+doc.Len() {
		return fmt.Sprintf("<invalid:%d>", id)
	}
	if id < offset {
		return m.vocab.targets[id]
	}
	return fmt.Sprintf("%d{%s}", id-offset, doc.Tokens[id-offset])
}

func toInt64(ids []int) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func padTo(ids []int64, length int, pad int64) []int64 {
	out := make([]int64, length)
	copy(out, ids)
	for i := len(ids); i < length; i++ {
		out[i] = pad
	}
	return out
}
