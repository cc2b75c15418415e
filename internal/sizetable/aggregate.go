package sizetable

import (
	"cmp"
	"slices"

	"github.com/kant2002/MstatAnalyser/internal/metadata"
)

// GlobalNamespace names the bucket of records that carry no type at all.
const GlobalNamespace = "<global>"

type AssemblySize struct {
	Assembly    string `json:"assembly"`
	TypesSize   int    `json:"typesSize"`
	MethodsSize int    `json:"methodsSize"`
}

func (a AssemblySize) Total() int {
	return a.TypesSize + a.MethodsSize
}

type NamespaceSize struct {
	Namespace   string `json:"namespace"`
	TypesSize   int    `json:"typesSize"`
	MethodsSize int    `json:"methodsSize"`
}

func (n NamespaceSize) Total() int {
	return n.TypesSize + n.MethodsSize
}

type InstantiationSize struct {
	Definition string `json:"definition"`
	Instances  int    `json:"instances"`
	Size       int    `json:"size"`
}

// ByAssembly groups type sizes and method total sizes by primary assembly,
// largest total first.
func ByAssembly(types []*TypeStats, methods []*MethodStats) []AssemblySize {
	index := map[string]int{}
	var sizes []AssemblySize
	bucket := func(name string) *AssemblySize {
		i, ok := index[name]
		if !ok {
			i = len(sizes)
			index[name] = i
			sizes = append(sizes, AssemblySize{Assembly: name})
		}
		return &sizes[i]
	}
	for _, stat := range types {
		bucket(stat.PrimaryAssembly()).TypesSize += stat.Size
	}
	for _, stat := range methods {
		bucket(stat.PrimaryAssembly()).MethodsSize += stat.TotalSize()
	}
	slices.SortStableFunc(sizes, func(a, b AssemblySize) int {
		if c := cmp.Compare(b.Total(), a.Total()); c != 0 {
			return c
		}
		return cmp.Compare(a.Assembly, b.Assembly)
	})
	return sizes
}

// ByNamespace groups types and their attributed methods by the namespace of
// the outermost declaring type.
func ByNamespace(types []*TypeStats) []NamespaceSize {
	index := map[string]int{}
	var sizes []NamespaceSize
	for _, stat := range types {
		name := Namespace(stat.Type)
		i, ok := index[name]
		if !ok {
			i = len(sizes)
			index[name] = i
			sizes = append(sizes, NamespaceSize{Namespace: name})
		}
		sizes[i].TypesSize += stat.Size
		sizes[i].MethodsSize += stat.MethodsSize()
	}
	slices.SortStableFunc(sizes, func(a, b NamespaceSize) int {
		if c := cmp.Compare(b.Total(), a.Total()); c != 0 {
			return c
		}
		return cmp.Compare(a.Namespace, b.Namespace)
	})
	return sizes
}

// ByGenericDefinition sums generic instantiations per open definition,
// counting both the instance types and their methods.
func ByGenericDefinition(types []*TypeStats) []InstantiationSize {
	index := map[string]int{}
	var sizes []InstantiationSize
	for _, stat := range types {
		if !stat.Type.IsGenericInstance() {
			continue
		}
		name := stat.Type.Definition().FullName()
		i, ok := index[name]
		if !ok {
			i = len(sizes)
			index[name] = i
			sizes = append(sizes, InstantiationSize{Definition: name})
		}
		sizes[i].Instances++
		sizes[i].Size += stat.Size + stat.MethodsSize()
	}
	slices.SortStableFunc(sizes, func(a, b InstantiationSize) int {
		if c := cmp.Compare(b.Size, a.Size); c != 0 {
			return c
		}
		return cmp.Compare(a.Definition, b.Definition)
	})
	return sizes
}

// Namespace returns the namespace a type is declared in, looking through
// nesting, instantiation and element types. A root type without a namespace
// is its own bucket, so Program and <Module> are reported by name.
func Namespace(t *metadata.Type) string {
	for t != nil {
		switch {
		case t.ElementType != nil:
			t = t.ElementType
		case t.Namespace != "":
			return t.Namespace
		case t.DeclaringType != nil:
			t = t.DeclaringType
		case t.Name != "":
			return t.Name
		default:
			return GlobalNamespace
		}
	}
	return GlobalNamespace
}
