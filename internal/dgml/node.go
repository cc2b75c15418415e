package dgml

import (
	"fmt"

	"github.com/kant2002/MstatAnalyser/internal/metadata"
)

// Node is one classified vertex of a dependency graph. Which payload fields
// are set depends on Kind; Name always holds the text left after the kind's
// marker was stripped.
type Node struct {
	Index int
	Kind  Kind
	Name  string

	// MethodTableNode.
	IsBoxedValueType bool
	// FatFunctionPointerNode.
	IsUnboxingStub bool
	// CustomAttributeMetadataNode.
	AssemblyName string
	// ShadowConcreteMethodNode.
	CanonicalMethodName string
	// InterfaceDispatchCellNode. HasCallSite distinguishes an empty
	// identifier from an absent one.
	CallSiteIdentifier string
	HasCallSite        bool
	// GenericCompositionNode. Never nil for that kind.
	Variance []int

	Type   *metadata.Type
	Field  *metadata.Field
	Method *metadata.Method
}

// NewNode returns the generic fallback node carrying the full label.
func NewNode(index int, label string) *Node {
	return &Node{Index: index, Kind: KindNode, Name: label}
}

func NewTypeNode(index int, t *metadata.Type) *Node {
	return &Node{Index: index, Kind: KindType, Name: t.FullName(), Type: t}
}

func NewFieldNode(index int, f *metadata.Field) *Node {
	return &Node{Index: index, Kind: KindField, Name: f.FullName(), Field: f, Type: f.DeclaringType}
}

func NewMethodNode(index int, m *metadata.Method) *Node {
	return &Node{Index: index, Kind: KindMethod, Name: m.FullName(), Method: m, Type: m.DeclaringType}
}

func (n *Node) String() string {
	return fmt.Sprintf("Index: %d, Name: %s", n.Index, n.Name)
}
