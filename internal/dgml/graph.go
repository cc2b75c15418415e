package dgml

import (
	"errors"
	"fmt"
	"slices"
)

var ErrUnknownNode = errors.New("unknown node")

const (
	reason1Prefix = "Reason1Conditional - "
	reason2Prefix = "Reason2Conditional - "
)

type edgeKey struct {
	source int
	target int
}

// Graph stores classified nodes by id. Edges between the same pair of nodes
// collapse into one entry whose reasons accumulate in insertion order.
// Conditional nodes take negative ids so they never collide with document ids.
type Graph struct {
	Name string

	nodes   map[int]*Node
	order   []int
	targets map[int][]int
	sources map[int][]int
	reasons map[edgeKey][]string

	nextConditional int
	matched         map[int]struct{}
}

func NewGraph(name string) *Graph {
	return &Graph{
		Name:            name,
		nodes:           map[int]*Node{},
		targets:         map[int][]int{},
		sources:         map[int][]int{},
		reasons:         map[edgeKey][]string{},
		nextConditional: -1,
		matched:         map[int]struct{}{},
	}
}

// AddNode registers a node under its index. Adding an index twice replaces
// the stored node and keeps its edges.
func (g *Graph) AddNode(node *Node) {
	if _, ok := g.nodes[node.Index]; !ok {
		g.order = append(g.order, node.Index)
	}
	g.nodes[node.Index] = node
}

func (g *Graph) AddEdge(source, target int, reason string) error {
	if _, ok := g.nodes[source]; !ok {
		return fmt.Errorf("%w: source %d", ErrUnknownNode, source)
	}
	if _, ok := g.nodes[target]; !ok {
		return fmt.Errorf("%w: target %d", ErrUnknownNode, target)
	}
	g.link(source, target, reason)
	return nil
}

// AddConditionalEdge records that target depends on reason1 and reason2
// together. It creates a conditional node and returns its id.
func (g *Graph) AddConditionalEdge(reason1, reason2, target int, reason string) (int, error) {
	for _, id := range []int{reason1, reason2, target} {
		if _, ok := g.nodes[id]; !ok {
			return 0, fmt.Errorf("%w: %d", ErrUnknownNode, id)
		}
	}

	id := g.nextConditional
	g.nextConditional--
	name := fmt.Sprintf("Conditional(%s - %s)", g.nodes[reason1], g.nodes[reason2])
	g.AddNode(&Node{Index: id, Kind: KindConditional, Name: name})

	g.link(id, target, reason)
	g.link(reason1, id, reason1Prefix+reason)
	g.link(reason2, id, reason2Prefix+reason)
	return id, nil
}

func (g *Graph) link(source, target int, reason string) {
	key := edgeKey{source: source, target: target}
	if _, ok := g.reasons[key]; !ok {
		g.targets[source] = append(g.targets[source], target)
		g.sources[target] = append(g.sources[target], source)
	}
	g.reasons[key] = append(g.reasons[key], reason)
}

func (g *Graph) Node(id int) *Node {
	return g.nodes[id]
}

// Nodes returns the nodes in the order they were added.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, g.nodes[id])
	}
	return nodes
}

func (g *Graph) Targets(id int) []int {
	return slices.Clone(g.targets[id])
}

func (g *Graph) Sources(id int) []int {
	return slices.Clone(g.sources[id])
}

func (g *Graph) Reasons(source, target int) []string {
	return slices.Clone(g.reasons[edgeKey{source: source, target: target}])
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

// EdgeCount counts distinct source and target pairs.
func (g *Graph) EdgeCount() int {
	return len(g.reasons)
}

func (g *Graph) KindCounts() map[Kind]int {
	counts := make(map[Kind]int)
	for _, node := range g.nodes {
		counts[node.Kind]++
	}
	return counts
}
