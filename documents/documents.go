// Package documents provides the annotation containers the extraction
// pipeline operates on: text-based and token-based documents holding named
// annotation layers.
//
// Every layer declares a target: the document base ("text" or "tokens") for
// span layers, or the name of another layer for relation layers. The target
// declaration is what the tokenization alignment in package align uses to
// decide which layers need offset remapping and which can be copied through
// AddAllFrom unchanged (modulo argument remapping).
package documents

import (
	"github.com/pkg/errors"

	"github.com/gomlx/go-pointernet/annotations"
)

// Standard layer targets. Any other target value names another layer.
const (
	TargetText   = "text"
	TargetTokens = "tokens"
)

// LayerSpec declares one annotation layer: its name and what it targets.
type LayerSpec struct {
	Name   string `json:"name"`
	Target string `json:"target"`
}

// Layer is an ordered container of annotations plus a separate predictions
// view. The main annotations hold gold data; decoded model output is
// appended to the predictions so both can coexist on one document.
type Layer struct {
	spec  LayerSpec
	anns  []annotations.Annotation
	preds []annotations.Annotation
}

// Spec returns the layer's declaration.
func (l *Layer) Spec() LayerSpec { return l.spec }

// Len returns the number of (gold) annotations.
func (l *Layer) Len() int { return len(l.anns) }

// Annotations returns the gold annotations in insertion order.
func (l *Layer) Annotations() []annotations.Annotation { return l.anns }

// Add appends annotations to the layer.
func (l *Layer) Add(anns ...annotations.Annotation) { l.anns = append(l.anns, anns...) }

// Clear removes all gold annotations.
func (l *Layer) Clear() { l.anns = nil }

// Predictions returns the predicted annotations.
func (l *Layer) Predictions() []annotations.Annotation { return l.preds }

// AddPredictions appends predicted annotations.
func (l *Layer) AddPredictions(anns ...annotations.Annotation) { l.preds = append(l.preds, anns...) }

// ClearPredictions removes all predicted annotations.
func (l *Layer) ClearPredictions() { l.preds = nil }

// Layered is the read surface shared by text and token documents.
type Layered interface {
	Layer(name string) *Layer
	LayerSpecs() []LayerSpec
}

type docBase struct {
	ID       string
	Metadata map[string]any

	specs  []LayerSpec
	layers map[string]*Layer
}

func newDocBase(id string, specs []LayerSpec) docBase {
	d := docBase{
		ID:       id,
		Metadata: make(map[string]any),
		specs:    specs,
		layers:   make(map[string]*Layer, len(specs)),
	}
	for _, spec := range specs {
		if _, exists := d.layers[spec.Name]; exists {
			panic("duplicate layer name " + spec.Name)
		}
		d.layers[spec.Name] = &Layer{spec: spec}
	}
	return d
}

// Layer returns the named layer, or nil if the document does not declare it.
func (d *docBase) Layer(name string) *Layer { return d.layers[name] }

// LayerSpecs returns the declared layers in declaration order.
func (d *docBase) LayerSpecs() []LayerSpec { return d.specs }

// AddAllFrom copies annotations from src into d for every layer d declares,
// except the layers listed in overrides, which the caller has already
// converted and populated. The overrides map the source annotation (by
// identity) to its converted counterpart; annotations in relation layers
// whose target layer was converted are rebuilt with remapped arguments.
//
// An annotation whose argument was neither converted nor recorded in removed
// is a consistency error in strict mode; otherwise it is dropped. It returns
// the source annotations that were carried over, per layer.
func (d *docBase) AddAllFrom(
	src Layered,
	overrides map[string]map[annotations.Annotation]annotations.Annotation,
	removed map[string]map[annotations.Annotation]bool,
	strict bool,
) (map[string][]annotations.Annotation, error) {
	added := make(map[string][]annotations.Annotation)
	for _, spec := range d.specs {
		if _, converted := overrides[spec.Name]; converted {
			continue
		}
		srcLayer := src.Layer(spec.Name)
		if srcLayer == nil {
			continue
		}
		targetOverrides := overrides[spec.Target]
		targetRemoved := removed[spec.Target]
		dst := d.layers[spec.Name]
		for _, ann := range srcLayer.Annotations() {
			copied, ok, err := remapAnnotation(ann, targetOverrides, targetRemoved, strict)
			if err != nil {
				return nil, errors.Wrapf(err, "layer %q", spec.Name)
			}
			if !ok {
				continue
			}
			dst.Add(copied)
			added[spec.Name] = append(added[spec.Name], ann)
		}
	}
	return added, nil
}

// remapAnnotation produces the copy of ann to insert into the result
// document. Relations get their arguments substituted through the override
// map of their target layer; spans are cloned as-is.
func remapAnnotation(
	ann annotations.Annotation,
	targetOverrides map[annotations.Annotation]annotations.Annotation,
	targetRemoved map[annotations.Annotation]bool,
	strict bool,
) (annotations.Annotation, bool, error) {
	rel, isRel := ann.(*annotations.BinaryRelation)
	if !isRel || targetOverrides == nil {
		return cloneAnnotation(ann), true, nil
	}
	head, ok, err := remapArgument(rel.Head, targetOverrides, targetRemoved, strict)
	if err != nil || !ok {
		return nil, false, err
	}
	tail, ok, err := remapArgument(rel.Tail, targetOverrides, targetRemoved, strict)
	if err != nil || !ok {
		return nil, false, err
	}
	return &annotations.BinaryRelation{Head: head, Tail: tail, Label: rel.Label}, true, nil
}

func remapArgument(
	arg annotations.SpanLike,
	targetOverrides map[annotations.Annotation]annotations.Annotation,
	targetRemoved map[annotations.Annotation]bool,
	strict bool,
) (annotations.SpanLike, bool, error) {
	if mapped, ok := targetOverrides[arg]; ok {
		return mapped.(annotations.SpanLike), true, nil
	}
	if targetRemoved[arg] {
		// The argument was dropped during conversion, so the relation
		// has to go as well.
		return nil, false, nil
	}
	if strict {
		return nil, false, errors.Errorf("relation argument %s was neither converted nor removed", arg)
	}
	return nil, false, nil
}

func cloneAnnotation(ann annotations.Annotation) annotations.Annotation {
	switch v := ann.(type) {
	case *annotations.LabeledSpan:
		clone := *v
		return &clone
	case *annotations.LabeledMultiSpan:
		clone := annotations.LabeledMultiSpan{Label: v.Label, Slices: append([]annotations.Slice(nil), v.Slices...)}
		return &clone
	case *annotations.BinaryRelation:
		clone := *v
		return &clone
	default:
		panic(errors.Errorf("unknown annotation kind %T", ann))
	}
}

// TextDocument is a document anchored in raw text. Span layers targeting
// TargetText use character offsets.
type TextDocument struct {
	docBase
	Text string
}

// NewTextDocument creates a text document with the given layers.
func NewTextDocument(id, text string, specs []LayerSpec) *TextDocument {
	return &TextDocument{docBase: newDocBase(id, specs), Text: text}
}

// TokenDocument is a document anchored in a token sequence. Span layers
// targeting TargetTokens use token indices.
type TokenDocument struct {
	docBase
	Tokens []string
}

// NewTokenDocument creates a token document with the given layers.
func NewTokenDocument(id string, tokens []string, specs []LayerSpec) *TokenDocument {
	return &TokenDocument{docBase: newDocBase(id, specs), Tokens: tokens}
}

// Len returns the number of tokens.
func (d *TokenDocument) Len() int { return len(d.Tokens) }
