// Package datasets persists annotated document collections as parquet
// files. Spans are stored inline per document; relations reference their
// arguments by index into the document's span list, which keeps the schema
// flat and restores the pointer sharing between relations and spans on load.
package datasets

import (
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"

	"github.com/gomlx/go-pointernet/annotations"
	"github.com/gomlx/go-pointernet/documents"
)

// Layers names the document layers a dataset file maps onto. Partition is
// optional.
type Layers struct {
	Span      string
	Relation  string
	Partition string
}

func (l Layers) specs() []documents.LayerSpec {
	specs := []documents.LayerSpec{
		{Name: l.Span, Target: documents.TargetText},
		{Name: l.Relation, Target: l.Span},
	}
	if l.Partition != "" {
		specs = append(specs, documents.LayerSpec{Name: l.Partition, Target: documents.TargetText})
	}
	return specs
}

type spanRow struct {
	Start int32  `parquet:"start"`
	End   int32  `parquet:"end"`
	Label string `parquet:"label,dict"`
}

type relationRow struct {
	// Head and Tail index into the document's entity list.
	Head  int32  `parquet:"head"`
	Tail  int32  `parquet:"tail"`
	Label string `parquet:"label,dict"`
}

type documentRow struct {
	ID         string        `parquet:"id"`
	Text       string        `parquet:"text"`
	Entities   []spanRow     `parquet:"entities,list"`
	Relations  []relationRow `parquet:"relations,list"`
	Partitions []spanRow     `parquet:"partitions,list"`
}

// ReadDocuments loads a parquet dataset file into text documents with the
// given layers.
func ReadDocuments(path string, layers Layers) ([]*documents.TextDocument, error) {
	rows, err := parquet.ReadFile[documentRow](path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading dataset %q", path)
	}
	docs := make([]*documents.TextDocument, 0, len(rows))
	for _, row := range rows {
		doc, err := rowToDocument(row, layers)
		if err != nil {
			return nil, errors.Wrapf(err, "dataset %q, document %q", path, row.ID)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func rowToDocument(row documentRow, layers Layers) (*documents.TextDocument, error) {
	doc := documents.NewTextDocument(row.ID, row.Text, layers.specs())
	spans := make([]*annotations.LabeledSpan, len(row.Entities))
	for i, e := range row.Entities {
		spans[i] = &annotations.LabeledSpan{Start: int(e.Start), End: int(e.End), Label: e.Label}
		doc.Layer(layers.Span).Add(spans[i])
	}
	for _, r := range row.Relations {
		if int(r.Head) >= len(spans) || int(r.Tail) >= len(spans) || r.Head < 0 || r.Tail < 0 {
			return nil, errors.Errorf("relation %q references entity %d/%d, document has %d entities",
				r.Label, r.Head, r.Tail, len(spans))
		}
		doc.Layer(layers.Relation).Add(&annotations.BinaryRelation{
			Head:  spans[r.Head],
			Tail:  spans[r.Tail],
			Label: r.Label,
		})
	}
	if layers.Partition != "" {
		for _, p := range row.Partitions {
			doc.Layer(layers.Partition).Add(&annotations.LabeledSpan{
				Start: int(p.Start), End: int(p.End), Label: p.Label,
			})
		}
	}
	return doc, nil
}

// WriteDocuments writes text documents to a parquet dataset file.
func WriteDocuments(path string, docs []*documents.TextDocument, layers Layers) error {
	rows := make([]documentRow, 0, len(docs))
	for _, doc := range docs {
		row, err := documentToRow(doc, layers)
		if err != nil {
			return errors.Wrapf(err, "document %q", doc.ID)
		}
		rows = append(rows, row)
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return errors.Wrapf(err, "writing dataset %q", path)
	}
	return nil
}

func documentToRow(doc *documents.TextDocument, layers Layers) (documentRow, error) {
	row := documentRow{ID: doc.ID, Text: doc.Text}
	spanIndex := make(map[annotations.Annotation]int32)
	if layer := doc.Layer(layers.Span); layer != nil {
		for _, ann := range layer.Annotations() {
			span, ok := ann.(*annotations.LabeledSpan)
			if !ok {
				return row, errors.Errorf("layer %q holds non-span annotation %T", layers.Span, ann)
			}
			spanIndex[ann] = int32(len(row.Entities))
			row.Entities = append(row.Entities, spanRow{
				Start: int32(span.Start), End: int32(span.End), Label: span.Label,
			})
		}
	}
	if layer := doc.Layer(layers.Relation); layer != nil {
		for _, ann := range layer.Annotations() {
			rel, ok := ann.(*annotations.BinaryRelation)
			if !ok {
				return row, errors.Errorf("layer %q holds non-relation annotation %T", layers.Relation, ann)
			}
			head, ok := spanIndex[rel.Head]
			if !ok {
				return row, errors.Errorf("relation %q head %s is not in layer %q", rel.Label, rel.Head, layers.Span)
			}
			tail, ok := spanIndex[rel.Tail]
			if !ok {
				return row, errors.Errorf("relation %q tail %s is not in layer %q", rel.Label, rel.Tail, layers.Span)
			}
			row.Relations = append(row.Relations, relationRow{Head: head, Tail: tail, Label: rel.Label})
		}
	}
	if layers.Partition != "" {
		if layer := doc.Layer(layers.Partition); layer != nil {
			for _, ann := range layer.Annotations() {
				span, ok := ann.(*annotations.LabeledSpan)
				if !ok {
					return row, errors.Errorf("layer %q holds non-span annotation %T", layers.Partition, ann)
				}
				row.Partitions = append(row.Partitions, spanRow{
					Start: int32(span.Start), End: int32(span.End), Label: span.Label,
				})
			}
		}
	}
	return row, nil
}
