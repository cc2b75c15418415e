package sizetable

import (
	"sync"

	"github.com/kant2002/MstatAnalyser/internal/metadata"
)

type TypeStats struct {
	Type *metadata.Type
	Size int
	// NameIndex points into the mangled-name table, -1 when absent.
	NameIndex   int
	MangledName string
	Methods     []*MethodStats
	// Placeholder is set for declaring types that only appear through
	// their methods.
	Placeholder bool

	relatedOnce sync.Once
	related     []string
}

func (s *TypeStats) PrimaryAssembly() string {
	return s.Type.Scope
}

// RelatedAssemblies lists the scope of the type and of every type it is
// instantiated over, in first-seen order.
func (s *TypeStats) RelatedAssemblies() []string {
	s.relatedOnce.Do(func() {
		s.related = relatedScopes(nil, s.Type)
	})
	return s.related
}

// MethodsSize sums the total sizes of the attributed methods.
func (s *TypeStats) MethodsSize() int {
	size := 0
	for _, method := range s.Methods {
		size += method.TotalSize()
	}
	return size
}

type MethodStats struct {
	Method     *metadata.Method
	Size       int
	GcInfoSize int
	EhInfoSize int
	// NameIndex points into the mangled-name table, -1 when absent.
	NameIndex   int
	MangledName string

	relatedOnce sync.Once
	related     []string
}

func (s *MethodStats) TotalSize() int {
	return s.Size + s.GcInfoSize + s.EhInfoSize
}

func (s *MethodStats) PrimaryAssembly() string {
	if s.Method.DeclaringType == nil {
		return ""
	}
	return s.Method.DeclaringType.Scope
}

func (s *MethodStats) RelatedAssemblies() []string {
	s.relatedOnce.Do(func() {
		scopes := relatedScopes(nil, s.Method.DeclaringType)
		for _, arg := range s.Method.GenericArguments {
			scopes = relatedScopes(scopes, arg)
		}
		s.related = scopes
	})
	return s.related
}

type BlobStats struct {
	Name string
	Size int
}

func relatedScopes(scopes []string, t *metadata.Type) []string {
	if t == nil {
		return scopes
	}
	switch t.Kind {
	case metadata.KindArray, metadata.KindPointer, metadata.KindByReference:
		return relatedScopes(scopes, t.ElementType)
	case metadata.KindGenericParameter:
		return scopes
	}
	scopes = appendScope(scopes, t.Scope)
	for _, arg := range t.GenericArguments {
		scopes = relatedScopes(scopes, arg)
	}
	return scopes
}

func appendScope(scopes []string, scope string) []string {
	if scope == "" {
		return scopes
	}
	for _, existing := range scopes {
		if existing == scope {
			return scopes
		}
	}
	return append(scopes, scope)
}
