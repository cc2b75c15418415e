package symbols

import (
	"slices"
	"strings"

	"github.com/kant2002/MstatAnalyser/internal/dgml"
	"github.com/kant2002/MstatAnalyser/internal/metadata"
)

const (
	maxNestingDepth = 32
	maxGenericDepth = 16

	privateAssemblyPrefix     = "System.Private."
	abbreviatedAssemblyPrefix = "S.P."

	memberSeparator        = "."
	mangledMemberSeparator = "__"
)

var mangler = strings.NewReplacer(".", "_", "<", "_", ">", "_", "`", "_", "/", "_")

// Mangle applies the compiler's symbol mangling to a dotted name.
func Mangle(name string) string {
	return mangler.Replace(name)
}

// AbbreviateAssembly shortens System.Private.* assembly names the way the
// compiler does in symbol names.
func AbbreviateAssembly(name string) string {
	if rest, ok := strings.CutPrefix(name, privateAssemblyPrefix); ok {
		return abbreviatedAssemblyPrefix + rest
	}
	return name
}

type candidate struct {
	typ        *metadata.Type
	renderings []string
}

// Matcher maps compiler symbol names back to types and members of a fixed
// pool. It tries every candidate for every lookup; it is read-only once
// built and safe for concurrent use.
type Matcher struct {
	candidates []candidate
	methods    map[string][]*metadata.Method
}

type match struct {
	typ *metadata.Type
	end int
}

// New collects the pool and every nested type below it.
func New(pool []*metadata.Type) *Matcher {
	m := &Matcher{methods: map[string][]*metadata.Method{}}
	seen := map[string]struct{}{}

	type frame struct {
		typ   *metadata.Type
		depth int
	}
	stack := make([]frame, 0, len(pool))
	for i := len(pool) - 1; i >= 0; i-- {
		if pool[i] != nil {
			stack = append(stack, frame{typ: pool[i]})
		}
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		t := top.typ.Definition()
		if !matchable(t) {
			continue
		}
		key := typeKey(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		m.candidates = append(m.candidates, candidate{typ: t, renderings: renderings(t)})

		if top.depth >= maxNestingDepth {
			continue
		}
		for i := len(t.NestedTypes) - 1; i >= 0; i-- {
			stack = append(stack, frame{typ: t.NestedTypes[i], depth: top.depth + 1})
		}
	}
	return m
}

// AddMethods registers methods whose declaring types carry no method list of
// their own, such as references into other assemblies. It must be called
// before the matcher is shared.
func (m *Matcher) AddMethods(methods ...*metadata.Method) {
	for _, method := range methods {
		if method == nil || method.DeclaringType == nil {
			continue
		}
		method = elementMethod(method)
		key := typeKey(method.DeclaringType.Definition())
		if slices.Contains(m.methods[key], method) {
			continue
		}
		m.methods[key] = append(m.methods[key], method)
	}
}

func (m *Matcher) Len() int {
	return len(m.candidates)
}

// MatchType returns the type whose rendering consumes the longest prefix of
// name and how much of name it consumed.
func (m *Matcher) MatchType(name string) (*metadata.Type, int) {
	best, ok := m.longest(name, 0)
	if !ok {
		return nil, 0
	}
	return best.typ, best.end
}

// Resolve upgrades a generic node whose name is fully consumed by a type or
// by a type followed by one of its members. Other nodes come back unchanged.
func (m *Matcher) Resolve(node *dgml.Node) *dgml.Node {
	if node == nil || node.Kind != dgml.KindNode || node.Name == "" {
		return node
	}
	name := node.Name
	hits := m.matches(name, 0)
	slices.SortStableFunc(hits, func(a, b match) int {
		return b.end - a.end
	})
	for _, hit := range hits {
		if hit.end == len(name) {
			return dgml.NewTypeNode(node.Index, hit.typ)
		}
		if resolved := m.resolveMember(node.Index, hit.typ, name[hit.end:]); resolved != nil {
			return resolved
		}
	}
	return node
}

func (m *Matcher) longest(s string, depth int) (match, bool) {
	var best match
	found := false
	for _, hit := range m.matches(s, depth) {
		if !found || hit.end > best.end {
			best = hit
			found = true
		}
	}
	return best, found
}

func (m *Matcher) matches(s string, depth int) []match {
	if depth > maxGenericDepth || s == "" {
		return nil
	}
	var hits []match
	for _, c := range m.candidates {
		for _, rendering := range c.renderings {
			if !strings.HasPrefix(s, rendering) {
				continue
			}
			hit, ok := m.instantiate(c.typ, s, len(rendering), depth)
			if ok {
				hits = append(hits, hit)
			}
		}
	}
	return hits
}

// instantiate extends a base match over a generic argument list when one
// follows. The delimiter right after the base picks the form: <A,B> or
// <A__B> in angle form, _A_B_ in underscore form.
func (m *Matcher) instantiate(t *metadata.Type, s string, end, depth int) (match, bool) {
	arity := t.Arity()
	if arity == 0 || end == len(s) {
		return match{typ: t, end: end}, true
	}

	var args []*metadata.Type
	var ok bool
	switch s[end] {
	case '<':
		args, end, ok = m.angleArguments(s, end+1, arity, depth)
	case '_':
		args, end, ok = m.underscoreArguments(s, end+1, arity, depth)
	default:
		return match{typ: t, end: end}, true
	}
	if !ok {
		return match{}, false
	}
	return match{typ: metadata.NewGenericInstance(t, args...), end: end}, true
}

func (m *Matcher) angleArguments(s string, pos, arity, depth int) ([]*metadata.Type, int, bool) {
	args := make([]*metadata.Type, 0, arity)
	for {
		arg, ok := m.longest(s[pos:], depth+1)
		if !ok {
			return nil, 0, false
		}
		args = append(args, arg.typ)
		pos += arg.end

		rest := s[pos:]
		switch {
		case strings.HasPrefix(rest, ">"):
			if len(args) != arity {
				return nil, 0, false
			}
			return args, pos + 1, true
		case len(args) == arity:
			return nil, 0, false
		case strings.HasPrefix(rest, ","):
			pos++
		case strings.HasPrefix(rest, mangledMemberSeparator):
			pos += len(mangledMemberSeparator)
		default:
			return nil, 0, false
		}
	}
}

func (m *Matcher) underscoreArguments(s string, pos, arity, depth int) ([]*metadata.Type, int, bool) {
	args := make([]*metadata.Type, 0, arity)
	for len(args) < arity {
		arg, ok := m.longest(s[pos:], depth+1)
		if !ok {
			return nil, 0, false
		}
		pos += arg.end
		if !strings.HasPrefix(s[pos:], "_") {
			return nil, 0, false
		}
		pos++
		args = append(args, arg.typ)
	}
	return args, pos, true
}

func (m *Matcher) resolveMember(index int, t *metadata.Type, rest string) *dgml.Node {
	var member string
	switch {
	case strings.HasPrefix(rest, memberSeparator):
		member = rest[len(memberSeparator):]
	case strings.HasPrefix(rest, mangledMemberSeparator):
		member = rest[len(mangledMemberSeparator):]
	default:
		return nil
	}
	if member == "" {
		return nil
	}

	definition := t.Definition()
	for _, field := range definition.Fields {
		if field.Name == member || Mangle(field.Name) == member {
			return dgml.NewFieldNode(index, field)
		}
	}
	for _, method := range m.methodsOf(definition) {
		if methodMatches(method, member) {
			return dgml.NewMethodNode(index, method)
		}
	}
	return nil
}

func (m *Matcher) methodsOf(t *metadata.Type) []*metadata.Method {
	if len(t.Methods) > 0 {
		return t.Methods
	}
	return m.methods[typeKey(t)]
}

func methodMatches(method *metadata.Method, member string) bool {
	if method.Name == member || Mangle(method.Name) == member {
		return true
	}
	name, params, ok := strings.Cut(member, "(")
	if !ok || name != method.Name {
		return false
	}
	return params == method.ParameterList()+")"
}

func elementMethod(method *metadata.Method) *metadata.Method {
	for method.ElementMethod != nil {
		method = method.ElementMethod
	}
	return method
}

func matchable(t *metadata.Type) bool {
	return t.Kind == metadata.KindDefinition || t.Kind == metadata.KindReference
}

func typeKey(t *metadata.Type) string {
	return t.Scope + "|" + t.FullName()
}

// renderings lists every spelling the compiler may use for t: mangled with
// the assembly prefix, mangled, dotted with + nesting, bracketed assembly,
// and the plain full name.
func renderings(t *metadata.Type) []string {
	full := t.FullName()
	plus := strings.ReplaceAll(full, "/", "+")
	mangled := Mangle(full)

	var out []string
	if t.Scope != "" {
		short := AbbreviateAssembly(t.Scope)
		out = appendUnique(out, Mangle(t.Scope)+"_"+mangled)
		out = appendUnique(out, Mangle(short)+"_"+mangled)
		out = appendUnique(out, "["+short+"]"+plus)
		out = appendUnique(out, "["+t.Scope+"]"+plus)
	}
	out = appendUnique(out, mangled)
	out = appendUnique(out, plus)
	out = appendUnique(out, full)
	return out
}

func appendUnique(values []string, value string) []string {
	if value == "" || slices.Contains(values, value) {
		return values
	}
	return append(values, value)
}
