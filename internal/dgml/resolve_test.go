package dgml

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kant2002/MstatAnalyser/internal/metadata"
	"github.com/kant2002/MstatAnalyser/internal/testutil"
)

type fakeResolver struct {
	mu      sync.Mutex
	offered map[int]int

	active  atomic.Int32
	maxSeen atomic.Int32
	release chan struct{}
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{offered: map[int]int{}}
}

func (f *fakeResolver) Resolve(node *Node) *Node {
	current := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if current <= seen || f.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	f.offered[node.Index]++
	f.mu.Unlock()

	name, ok := strings.CutPrefix(node.Name, "type:")
	if !ok {
		return node
	}
	return NewTypeNode(node.Index, &metadata.Type{Name: name})
}

func resolveGraph() *Graph {
	g := NewGraph("resolve")
	g.AddNode(NewNode(0, "type:Foo"))
	g.AddNode(NewNode(1, "unknown"))
	g.AddNode(&Node{Index: 2, Kind: KindRegion, Name: "type:Region"})
	g.AddNode(NewNode(3, "type:Bar"))
	return g
}

func TestResolveUpgradesGenericNodes(t *testing.T) {
	g := resolveGraph()
	resolver := newFakeResolver()

	resolved, err := Resolve(context.Background(), g, resolver, 2)
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	if resolved != 2 {
		t.Fatalf("expected 2 resolved nodes, got %d", resolved)
	}
	if g.Node(0).Kind != KindType || g.Node(0).Type.Name != "Foo" {
		t.Fatalf("expected Foo type node, got %+v", g.Node(0))
	}
	if g.Node(1).Kind != KindNode {
		t.Fatalf("expected unknown node to stay generic, got %s", g.Node(1).Kind)
	}
	if _, ok := resolver.offered[2]; ok {
		t.Fatalf("expected classified node to be skipped")
	}
}

func TestResolveOffersEachNodeOnce(t *testing.T) {
	g := resolveGraph()
	resolver := newFakeResolver()

	if _, err := Resolve(context.Background(), g, resolver, 0); err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	g.AddNode(NewNode(4, "type:Late"))
	resolved, err := Resolve(context.Background(), g, resolver, 0)
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	if resolved != 1 {
		t.Fatalf("expected only the new node to resolve, got %d", resolved)
	}
	for id, count := range resolver.offered {
		if count != 1 {
			t.Fatalf("node %d offered %d times", id, count)
		}
	}
	if resolver.offered[1] != 1 {
		t.Fatalf("expected unmatched node to be offered once, got %d", resolver.offered[1])
	}
}

func TestResolveRespectsWorkerLimit(t *testing.T) {
	g := NewGraph("limit")
	for i := range 16 {
		g.AddNode(NewNode(i, "n"))
	}
	resolver := newFakeResolver()
	resolver.release = make(chan struct{})
	go func() {
		for range 16 {
			resolver.release <- struct{}{}
		}
	}()

	if _, err := Resolve(context.Background(), g, resolver, 3); err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	if got := resolver.maxSeen.Load(); got > 3 {
		t.Fatalf("expected at most 3 concurrent resolvers, got %d", got)
	}
}

func TestResolveCanceledContext(t *testing.T) {
	g := resolveGraph()
	resolved, err := Resolve(testutil.CanceledContext(), g, newFakeResolver(), 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if resolved != 0 || g.Node(0).Kind != KindNode {
		t.Fatalf("expected graph untouched, got %d resolved", resolved)
	}
}
