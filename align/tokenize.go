package align

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/go-pointernet/annotations"
	"github.com/gomlx/go-pointernet/documents"
	"github.com/gomlx/go-pointernet/tokenizers/api"
)

// Metadata keys written on converted documents.
const (
	// MetaText holds the source text on a token document.
	MetaText = "text"
	// MetaTokens holds the token strings on a text document.
	MetaTokens = "tokens"
	// MetaTokenOffsets holds the token offset mapping ([]api.TokenSpan).
	MetaTokenOffsets = "token_offset_mapping"
	// MetaEncoding holds the api.Encoding a token document was built
	// from, with offsets already rebased into the source document's
	// coordinate system.
	MetaEncoding = "tokenizer_encoding"
)

// Carryover records, per layer, which source annotations survived a
// conversion and which were dropped. Conversions over several partitions or
// overflow windows merge their carryovers by plain value merging.
type Carryover struct {
	Added   map[string][]annotations.Annotation
	Removed map[string][]annotations.Annotation
}

// NewCarryover returns an empty carryover.
func NewCarryover() Carryover {
	return Carryover{
		Added:   make(map[string][]annotations.Annotation),
		Removed: make(map[string][]annotations.Annotation),
	}
}

// Merge folds other into c.
func (c *Carryover) Merge(other Carryover) {
	for layer, anns := range other.Added {
		c.Added[layer] = append(c.Added[layer], anns...)
	}
	for layer, anns := range other.Removed {
		c.Removed[layer] = append(c.Removed[layer], anns...)
	}
}

// ConvertOptions configures TextToTokenDocument.
//
// The tokenization can be supplied three ways, in order of precedence:
// explicit Tokens/Offsets/CharToToken arguments, values stored in the
// document metadata, or derivation (offsets via FindTokenOffsetMapping, the
// char lookup by expanding the offsets).
type ConvertOptions struct {
	Tokens      []string
	Offsets     []api.TokenSpan
	CharToToken CharToToken

	// Strict makes any unmappable span fail the whole conversion.
	// Otherwise the span is dropped, recorded in the carryover, and
	// warned about unless Quiet is set.
	Strict bool
	Quiet  bool
}

// TextToTokenDocument converts a text-anchored document into a token-anchored
// one with the given layers. Span layers targeting the tokens are remapped
// through CharSpanToTokenSpan; remaining layers are carried over via the
// document's AddAllFrom with the remapping applied to relation arguments.
func TextToTokenDocument(
	doc *documents.TextDocument,
	resultSpecs []documents.LayerSpec,
	opts ConvertOptions,
) (*documents.TokenDocument, Carryover, error) {
	carry := NewCarryover()

	tokens := opts.Tokens
	if tokens == nil {
		tokens, _ = doc.Metadata[MetaTokens].([]string)
	}
	offsets := opts.Offsets
	if offsets == nil {
		offsets, _ = doc.Metadata[MetaTokenOffsets].([]api.TokenSpan)
	}
	if tokens == nil {
		if offsets == nil {
			return nil, carry, errors.New(
				"tokens or a token offset mapping must be provided to convert a text based document to token based")
		}
		tokens = make([]string, len(offsets))
		for i, span := range offsets {
			tokens[i] = doc.Text[span.Start:span.End]
		}
	}
	charToToken := opts.CharToToken
	if charToToken == nil {
		if offsets == nil {
			offsets = FindTokenOffsetMapping(doc.Text, tokens)
		}
		charToToken = CharToTokenFromOffsets(offsets)
	}

	result := documents.NewTokenDocument(doc.ID, tokens, resultSpecs)
	result.Metadata[MetaText] = doc.Text
	if offsets != nil {
		result.Metadata[MetaTokenOffsets] = offsets
	}

	overrides := make(map[string]map[annotations.Annotation]annotations.Annotation)
	removed := make(map[string]map[annotations.Annotation]bool)
	for _, spec := range resultSpecs {
		if spec.Target != documents.TargetTokens {
			continue
		}
		srcLayer := doc.Layer(spec.Name)
		if srcLayer == nil {
			continue
		}
		overrides[spec.Name] = make(map[annotations.Annotation]annotations.Annotation)
		removed[spec.Name] = make(map[annotations.Annotation]bool)
		var unique []annotations.SpanLike
		for _, ann := range srcLayer.Annotations() {
			charSpan, ok := ann.(annotations.SpanLike)
			if !ok {
				return nil, carry, errors.Errorf(
					"layer %q targets the text but contains non-span annotation %T", spec.Name, ann)
			}
			tokenSpan, mapped, err := CharSpanToTokenSpan(charSpan, charToToken)
			if err != nil {
				return nil, carry, errors.Wrapf(err, "layer %q", spec.Name)
			}
			if !mapped {
				if opts.Strict {
					return nil, carry, errors.Errorf(
						"cannot find token span for character span %s, text=%q, token offset mapping=%v",
						charSpan, doc.Text, offsets)
				}
				if !opts.Quiet {
					klog.Warningf("cannot find token span for character span %s, skipping it", charSpan)
				}
				removed[spec.Name][ann] = true
				carry.Removed[spec.Name] = append(carry.Removed[spec.Name], ann)
				continue
			}
			overrides[spec.Name][ann] = canonicalSpan(&unique, tokenSpan)
			carry.Added[spec.Name] = append(carry.Added[spec.Name], ann)
		}
		addSorted(result.Layer(spec.Name), unique)
	}

	added, err := result.AddAllFrom(doc, overrides, removed, opts.Strict)
	if err != nil {
		return nil, carry, err
	}
	carry.Merge(Carryover{Added: added})
	return result, carry, nil
}

// canonicalSpan collapses remapped spans that became identical: it returns
// the earlier equal span from unique when there is one, appending span
// otherwise. Sources that collapsed together thus share one instance, so
// overrides on dependent layers keep pointing at the span that actually
// lives in the result layer.
func canonicalSpan(unique *[]annotations.SpanLike, span annotations.SpanLike) annotations.SpanLike {
	for _, seen := range *unique {
		if annotations.SpanEqual(span, seen) {
			return seen
		}
	}
	*unique = append(*unique, span)
	return span
}

// addSorted inserts the deduplicated spans into the layer ordered by
// position, keeping source-layer order on ties.
func addSorted(layer *documents.Layer, unique []annotations.SpanLike) {
	sort.SliceStable(unique, func(i, j int) bool {
		return annotations.CompareSpans(unique[i], unique[j]) < 0
	})
	for _, span := range unique {
		layer.Add(span)
	}
}

// DetokenizeOptions configures TokenToTextDocument.
type DetokenizeOptions struct {
	// Text is the original text; when empty, it is taken from the token
	// document's metadata.
	Text string
	// Offsets maps token indices to character spans in Text; when nil, it
	// is taken from metadata or derived with FindTokenOffsetMapping.
	Offsets []api.TokenSpan
	// JoinTokens reconstructs the text by joining the document's tokens
	// with Separator, recomputing the offsets accordingly. Takes
	// precedence over Text/Offsets.
	JoinTokens bool
	Separator  string

	Strict bool
	Quiet  bool
}

// TokenToTextDocument is the inverse of TextToTokenDocument. The
// token-to-char leg itself is always strict: token documents are produced by
// this package and assumed internally consistent. Strictness only governs
// the carryover of dependent (relation) layers.
func TokenToTextDocument(
	doc *documents.TokenDocument,
	resultSpecs []documents.LayerSpec,
	opts DetokenizeOptions,
) (*documents.TextDocument, Carryover, error) {
	carry := NewCarryover()

	text := opts.Text
	offsets := opts.Offsets
	if opts.JoinTokens {
		offsets = make([]api.TokenSpan, len(doc.Tokens))
		cursor := 0
		for i, token := range doc.Tokens {
			offsets[i] = api.TokenSpan{Start: cursor, End: cursor + len(token)}
			cursor += len(token) + len(opts.Separator)
		}
		text = strings.Join(doc.Tokens, opts.Separator)
	}
	if text == "" {
		text, _ = doc.Metadata[MetaText].(string)
		if text == "" {
			return nil, carry, errors.New("text must be provided or reconstructable to convert a token based document")
		}
	}
	if offsets == nil {
		offsets, _ = doc.Metadata[MetaTokenOffsets].([]api.TokenSpan)
		if offsets == nil {
			offsets = FindTokenOffsetMapping(text, doc.Tokens)
		}
	}

	result := documents.NewTextDocument(doc.ID, text, resultSpecs)
	result.Metadata[MetaTokens] = doc.Tokens
	result.Metadata[MetaTokenOffsets] = offsets

	overrides := make(map[string]map[annotations.Annotation]annotations.Annotation)
	removed := make(map[string]map[annotations.Annotation]bool)
	for _, spec := range resultSpecs {
		if spec.Target != documents.TargetText {
			continue
		}
		srcLayer := doc.Layer(spec.Name)
		if srcLayer == nil {
			continue
		}
		overrides[spec.Name] = make(map[annotations.Annotation]annotations.Annotation)
		removed[spec.Name] = make(map[annotations.Annotation]bool)
		var unique []annotations.SpanLike
		for _, ann := range srcLayer.Annotations() {
			tokenSpan, ok := ann.(annotations.SpanLike)
			if !ok {
				return nil, carry, errors.Errorf(
					"layer %q targets the tokens but contains non-span annotation %T", spec.Name, ann)
			}
			charSpan, err := TokenSpanToCharSpan(tokenSpan, offsets)
			if err != nil {
				return nil, carry, errors.Wrapf(err, "layer %q", spec.Name)
			}
			overrides[spec.Name][ann] = canonicalSpan(&unique, charSpan)
			carry.Added[spec.Name] = append(carry.Added[spec.Name], ann)
		}
		addSorted(result.Layer(spec.Name), unique)
	}

	added, err := result.AddAllFrom(doc, overrides, removed, opts.Strict)
	if err != nil {
		return nil, carry, err
	}
	carry.Merge(Carryover{Added: added})
	return result, carry, nil
}

// TokenizeConfig configures TokenizeDocument.
type TokenizeConfig struct {
	// PartitionLayer names a span layer whose entries are tokenized as
	// independent chunks (e.g. sentences). Empty means the whole text is
	// one partition.
	PartitionLayer string
	// Strict fails the call when any annotation required by the result
	// layers did not survive tokenization across all partitions and
	// windows. Otherwise the gap is logged.
	Strict bool
	Quiet  bool
}

// TokenizeDocument tokenizes a text document partition by partition and
// converts it into one token document per tokenizer encoding. Token offsets
// are rebased into the source text's coordinate system, so annotations in
// all resulting documents share it. After all partitions are processed, the
// annotations carried over anywhere are compared against everything the
// result layers require; the gap is fatal in strict mode.
func TokenizeDocument(
	doc *documents.TextDocument,
	tokenizer api.SegmentingTokenizer,
	resultSpecs []documents.LayerSpec,
	cfg TokenizeConfig,
) ([]*documents.TokenDocument, error) {
	partitions, err := documentPartitions(doc, cfg.PartitionLayer)
	if err != nil {
		return nil, err
	}

	carry := NewCarryover()
	var results []*documents.TokenDocument
	for _, partition := range partitions {
		encodings, err := tokenizer.EncodeWithOffsets(doc.Text[partition.Start:partition.End])
		if err != nil {
			return nil, errors.Wrapf(err, "tokenizing partition [%d, %d)", partition.Start, partition.End)
		}
		for _, encoding := range encodings {
			if partition.Start > 0 {
				encoding.Offsets = shiftOffsets(encoding.Offsets, partition.Start)
			}
			tokenDoc, c, err := TextToTokenDocument(doc, resultSpecs, ConvertOptions{
				Tokens:  encoding.Tokens,
				Offsets: encoding.Offsets,
				Strict:  false,
				Quiet:   true,
			})
			if err != nil {
				return nil, err
			}
			tokenDoc.Metadata[MetaEncoding] = encoding
			carry.Merge(c)
			results = append(results, tokenDoc)
		}
	}

	if report := missedAnnotationsReport(doc, resultSpecs, cfg.PartitionLayer, carry); report != "" {
		if cfg.Strict {
			return nil, errors.Errorf(
				"could not convert all annotations of document %q to token based documents, missed annotations:\n%s",
				doc.ID, report)
		}
		if !cfg.Quiet {
			klog.Warningf("could not convert all annotations of document %q to token based documents, missed annotations:\n%s",
				doc.ID, report)
		}
	}
	return results, nil
}

func documentPartitions(doc *documents.TextDocument, partitionLayer string) ([]*annotations.LabeledSpan, error) {
	if partitionLayer == "" {
		return []*annotations.LabeledSpan{{Start: 0, End: len(doc.Text)}}, nil
	}
	layer := doc.Layer(partitionLayer)
	if layer == nil {
		return nil, errors.Errorf("partition layer %q is not declared by the document", partitionLayer)
	}
	partitions := make([]*annotations.LabeledSpan, 0, layer.Len())
	for _, ann := range layer.Annotations() {
		span, ok := ann.(*annotations.LabeledSpan)
		if !ok {
			return nil, errors.Errorf("partition layer %q must contain plain labeled spans, found %T", partitionLayer, ann)
		}
		partitions = append(partitions, span)
	}
	return partitions, nil
}

func shiftOffsets(offsets []api.TokenSpan, by int) []api.TokenSpan {
	shifted := make([]api.TokenSpan, len(offsets))
	for i, span := range offsets {
		shifted[i] = api.TokenSpan{Start: span.Start + by, End: span.End + by}
	}
	return shifted
}

// missedAnnotationsReport itemizes, per required layer, the source
// annotations that never made it into any token document. The partition
// layer is exempt: partitions are not needed downstream and windowing
// removes entries routinely.
func missedAnnotationsReport(
	doc *documents.TextDocument,
	resultSpecs []documents.LayerSpec,
	partitionLayer string,
	carry Carryover,
) string {
	var sb strings.Builder
	for _, spec := range resultSpecs {
		if spec.Name == partitionLayer {
			continue
		}
		srcLayer := doc.Layer(spec.Name)
		if srcLayer == nil {
			continue
		}
		carried := make(map[annotations.Annotation]bool, len(carry.Added[spec.Name]))
		for _, ann := range carry.Added[spec.Name] {
			carried[ann] = true
		}
		var missed []string
		for _, ann := range srcLayer.Annotations() {
			if !carried[ann] {
				missed = append(missed, ann.String())
			}
		}
		if len(missed) > 0 {
			sort.Strings(missed)
			sb.WriteString(spec.Name)
			sb.WriteString(":\n")
			for _, s := range missed {
				sb.WriteString("  ")
				sb.WriteString(s)
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}
