package dgml

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var (
	ErrUndeclaredNode    = errors.New("link references undeclared node")
	ErrMalformedDocument = errors.New("malformed graph document")
)

const (
	elementGraph = "DirectedGraph"
	elementNode  = "Node"
	elementLink  = "Link"
)

// Parser reads DGML documents, classifying every node as it is declared.
type Parser struct {
	Classifier Classifier
}

// Parse reads a document with the default classifier.
func Parse(ctx context.Context, name string, r io.Reader) (*Graph, error) {
	return Parser{}.Parse(ctx, name, r)
}

// Parse streams the document once. Links must follow the declaration of both
// endpoints; a link to an unknown node fails the whole document. When name is
// empty the Name or Title attribute of the root element is used.
func (p Parser) Parse(ctx context.Context, name string, r io.Reader) (*Graph, error) {
	graph := NewGraph(name)
	decoder := xml.NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return graph, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
		}
		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		if err := p.element(graph, start); err != nil {
			return nil, err
		}
	}
}

func (p Parser) element(graph *Graph, start xml.StartElement) error {
	switch start.Name.Local {
	case elementGraph:
		if graph.Name == "" {
			graph.Name = firstNonEmpty(attr(start, "Name"), attr(start, "Title"))
		}
	case elementNode:
		id, err := intAttr(start, "Id")
		if err != nil {
			return err
		}
		if id < 0 {
			return fmt.Errorf("%w: negative node id %d", ErrMalformedDocument, id)
		}
		graph.AddNode(p.Classifier.Classify(id, attr(start, "Label")))
	case elementLink:
		source, err := intAttr(start, "Source")
		if err != nil {
			return err
		}
		target, err := intAttr(start, "Target")
		if err != nil {
			return err
		}
		if err := graph.AddEdge(source, target, attr(start, "Reason")); err != nil {
			return fmt.Errorf("%w: %w", ErrUndeclaredNode, err)
		}
	}
	return nil
}

func attr(start xml.StartElement, name string) string {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func intAttr(start xml.StartElement, name string) (int, error) {
	raw := attr(start, name)
	if raw == "" {
		return 0, fmt.Errorf("%w: %s without %s", ErrMalformedDocument, start.Name.Local, name)
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s %q is not an integer", ErrMalformedDocument, start.Name.Local, name, raw)
	}
	return value, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
