// Command pointernet-demo runs the full task pipeline on a small in-memory
// example: it tokenizes an annotated document sentence by sentence, encodes
// the annotations into pointer-network targets, and decodes them back into
// spans and relations over the original text.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"k8s.io/klog/v2"

	"github.com/gomlx/go-pointernet/annotations"
	"github.com/gomlx/go-pointernet/datasets"
	"github.com/gomlx/go-pointernet/documents"
	"github.com/gomlx/go-pointernet/pointernet"
	"github.com/gomlx/go-pointernet/tokenizers/wordlevel"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func main() {
	klog.InitFlags(nil)
	datasetPath := flag.String("dataset", "", "optional parquet dataset to load instead of the built-in example")
	constraints := flag.Bool("constraints", true, "attach generation constraints to the targets")
	flag.Parse()

	if err := run(*datasetPath, *constraints); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(datasetPath string, constraints bool) error {
	layers := datasets.Layers{Span: "entities", Relation: "relations", Partition: "sentences"}

	var docs []*documents.TextDocument
	if datasetPath != "" {
		var err error
		if docs, err = datasets.ReadDocuments(datasetPath, layers); err != nil {
			return err
		}
	} else {
		docs = []*documents.TextDocument{exampleDocument(layers)}
	}

	tokenizer, err := wordlevel.New(wordlevel.Config{Vocab: vocabulary(docs)})
	if err != nil {
		return err
	}
	task, err := pointernet.New(tokenizer, pointernet.Config{
		SpanLayer:         layers.Span,
		RelationLayer:     layers.Relation,
		PartitionLayer:    layers.Partition,
		CreateConstraints: constraints,
	})
	if err != nil {
		return err
	}
	if err := task.Prepare(docs); err != nil {
		return err
	}
	fmt.Println(titleStyle.Render("target vocabulary"))
	fmt.Println("  " + strings.Join(task.TargetTokens(), " ") +
		dimStyle.Render(fmt.Sprintf("  (pointers from id %d)", task.PointerOffset())))

	encodings, err := task.Encode(docs, true)
	if err != nil {
		return err
	}
	for _, enc := range encodings {
		fmt.Println(titleStyle.Render(enc.Document.ID))
		fmt.Printf("  %s %s\n", keyStyle.Render("tokens:"), strings.Join(enc.Document.Tokens, " "))
		fmt.Printf("  %s %v\n", keyStyle.Render("input ids:"), enc.InputIDs)
		fmt.Printf("  %s %v\n", keyStyle.Render("targets:"), enc.Labels)
		if enc.Constraints != nil {
			fmt.Printf("  %s %d steps x %d ids\n",
				keyStyle.Render("constraints:"), len(enc.Constraints), len(enc.Constraints[0]))
		}

		// Feed the gold targets back through the decoder, as if the
		// model had generated them perfectly.
		output := task.UnbatchOutput([][]int64{enc.Labels})[0]
		predictions, err := task.CreateAnnotationsFromOutput(enc, output)
		if err != nil {
			return err
		}
		for layer, ann := range predictions {
			fmt.Printf("  %s %s\n", keyStyle.Render(layer+":"), renderAnnotation(docs, ann))
		}
	}
	return nil
}

func renderAnnotation(docs []*documents.TextDocument, ann annotations.Annotation) string {
	if span, ok := ann.(*annotations.LabeledSpan); ok && len(docs) > 0 {
		return fmt.Sprintf("%s %s", span, dimStyle.Render("= "+span.Resolve(docs[0].Text)))
	}
	return ann.String()
}

func exampleDocument(layers datasets.Layers) *documents.TextDocument {
	text := "This is a dummy text about nothing. Trust me."
	doc := documents.NewTextDocument("example", text, []documents.LayerSpec{
		{Name: layers.Span, Target: documents.TargetText},
		{Name: layers.Relation, Target: layers.Span},
		{Name: layers.Partition, Target: documents.TargetText},
	})
	dummyText := &annotations.LabeledSpan{Start: 10, End: 20, Label: "content"}
	nothing := &annotations.LabeledSpan{Start: 27, End: 34, Label: "topic"}
	me := &annotations.LabeledSpan{Start: 42, End: 44, Label: "person"}
	doc.Layer(layers.Span).Add(dummyText, nothing, me)
	doc.Layer(layers.Relation).Add(&annotations.BinaryRelation{Head: dummyText, Tail: nothing, Label: "is_about"})
	doc.Layer(layers.Partition).Add(
		&annotations.LabeledSpan{Start: 0, End: 35, Label: "sentence"},
		&annotations.LabeledSpan{Start: 36, End: 45, Label: "sentence"},
	)
	return doc
}

// vocabulary collects every word form of the corpus so the word-level
// tokenizer can encode it without unknowns.
func vocabulary(docs []*documents.TextDocument) []string {
	seen := make(map[string]bool)
	var vocab []string
	for _, doc := range docs {
		for _, w := range strings.FieldsFunc(doc.Text, func(r rune) bool {
			return r == ' ' || r == '.' || r == ',' || r == '\n'
		}) {
			if !seen[w] {
				seen[w] = true
				vocab = append(vocab, w)
			}
		}
	}
	return append(vocab, ".", ",")
}
