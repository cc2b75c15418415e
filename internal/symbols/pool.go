package symbols

import "github.com/kant2002/MstatAnalyser/internal/metadata"

// Pool flattens constructed types into the definitions and references they
// are built from, so arrays and instantiations contribute their components.
// Generic parameters are dropped. The result keeps first-seen order.
func Pool(types ...*metadata.Type) []*metadata.Type {
	var pool []*metadata.Type
	seen := map[*metadata.Type]struct{}{}
	var visit func(t *metadata.Type, depth int)
	visit = func(t *metadata.Type, depth int) {
		if t == nil || depth > maxGenericDepth {
			return
		}
		switch t.Kind {
		case metadata.KindArray, metadata.KindPointer, metadata.KindByReference:
			visit(t.ElementType, depth+1)
			return
		case metadata.KindGenericInstance:
			visit(t.ElementType, depth+1)
			for _, arg := range t.GenericArguments {
				visit(arg, depth+1)
			}
			return
		case metadata.KindGenericParameter, metadata.KindFunctionPointer:
			return
		}
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		pool = append(pool, t)
	}
	for _, t := range types {
		visit(t, 0)
	}
	return pool
}
