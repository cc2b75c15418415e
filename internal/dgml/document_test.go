package dgml

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kant2002/MstatAnalyser/internal/testutil"
)

const unexpectedErrFmt = "unexpected error: %v"

const sampleDocument = `<?xml version="1.0" encoding="utf-8"?>
<DirectedGraph Title="Sample.dgml" xmlns="http://schemas.microsoft.com/vs/2009/dgml">
  <Nodes>
    <Node Id="0" Label="Region [Lib]Lib.Foo" />
    <Node Id="1" Label="??_7Boxed_Lib_Lib_Point@@6B@" />
    <Node Id="2" Label="__GenericInstance_Lib_List__Variance__0_1" />
    <Node Id="3" Label="Lib_Lib_Foo__Run" />
  </Nodes>
  <Links>
    <Link Source="0" Target="1" Reason="Base type" />
    <Link Source="0" Target="1" Reason="Field" />
    <Link Source="1" Target="3" />
    <Link Source="2" Target="3" Reason="Generic" />
  </Links>
  <Properties>
    <Property Id="Label" DataType="String" />
  </Properties>
</DirectedGraph>
`

func TestParseDocument(t *testing.T) {
	g, err := Parse(context.Background(), "", strings.NewReader(sampleDocument))
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	if g.Name != "Sample.dgml" {
		t.Fatalf("expected title as graph name, got %q", g.Name)
	}
	if g.Len() != 4 {
		t.Fatalf("expected 4 nodes, got %d", g.Len())
	}
	if g.EdgeCount() != 3 {
		t.Fatalf("expected 3 distinct edges, got %d", g.EdgeCount())
	}

	wantKinds := []Kind{KindRegion, KindMethodTable, KindGenericComposition, KindNode}
	for i, want := range wantKinds {
		if got := g.Node(i).Kind; got != want {
			t.Fatalf("node %d: expected %s, got %s", i, want, got)
		}
	}
	if !g.Node(1).IsBoxedValueType || g.Node(1).Name != "Lib_Lib_Point" {
		t.Fatalf("expected boxed Lib_Lib_Point, got %+v", g.Node(1))
	}
	if got := g.Reasons(0, 1); len(got) != 2 || got[0] != "Base type" || got[1] != "Field" {
		t.Fatalf("expected both reasons in order, got %v", got)
	}
	if got := g.Reasons(1, 3); len(got) != 1 || got[0] != "" {
		t.Fatalf("expected one empty reason, got %v", got)
	}
}

func TestParseDocumentPrefersExplicitName(t *testing.T) {
	g, err := Parse(context.Background(), "app.scan.dgml.xml", strings.NewReader(sampleDocument))
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	if g.Name != "app.scan.dgml.xml" {
		t.Fatalf("expected explicit name, got %q", g.Name)
	}

	doc := `<DirectedGraph Name="Named" Title="Titled"><Nodes/></DirectedGraph>`
	g, err = Parse(context.Background(), "", strings.NewReader(doc))
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	if g.Name != "Named" {
		t.Fatalf("expected Name attribute, got %q", g.Name)
	}
}

func TestParseDocumentErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{
			name: "undeclared target",
			doc:  `<DirectedGraph><Nodes><Node Id="0" Label="a"/></Nodes><Links><Link Source="0" Target="5"/></Links></DirectedGraph>`,
			want: ErrUndeclaredNode,
		},
		{
			name: "link before node",
			doc:  `<DirectedGraph><Links><Link Source="0" Target="1"/></Links><Nodes><Node Id="0"/><Node Id="1"/></Nodes></DirectedGraph>`,
			want: ErrUnknownNode,
		},
		{
			name: "missing id",
			doc:  `<DirectedGraph><Nodes><Node Label="a"/></Nodes></DirectedGraph>`,
			want: ErrMalformedDocument,
		},
		{
			name: "non integer id",
			doc:  `<DirectedGraph><Nodes><Node Id="x" Label="a"/></Nodes></DirectedGraph>`,
			want: ErrMalformedDocument,
		},
		{
			name: "negative id",
			doc:  `<DirectedGraph><Nodes><Node Id="-1" Label="a"/></Nodes></DirectedGraph>`,
			want: ErrMalformedDocument,
		},
		{
			name: "broken xml",
			doc:  `<DirectedGraph><Nodes><Node Id="0"`,
			want: ErrMalformedDocument,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(context.Background(), "", strings.NewReader(tc.doc))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestParseDocumentCanceled(t *testing.T) {
	_, err := Parse(testutil.CanceledContext(), "", strings.NewReader(sampleDocument))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestParseDocumentRedeclaredNodeKeepsEdges(t *testing.T) {
	doc := `<DirectedGraph>
<Node Id="0" Label="a"/><Node Id="1" Label="b"/>
<Link Source="0" Target="1"/>
<Node Id="0" Label="Region x"/>
</DirectedGraph>`
	g, err := Parse(context.Background(), "", strings.NewReader(doc))
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	if g.Len() != 2 || g.Node(0).Kind != KindRegion {
		t.Fatalf("expected redeclared region node, got %+v", g.Node(0))
	}
	if targets := g.Targets(0); len(targets) != 1 || targets[0] != 1 {
		t.Fatalf("expected edge to survive, got %v", targets)
	}
}
