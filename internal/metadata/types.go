package metadata

import (
	"fmt"
	"strconv"
	"strings"
)

// Token is a metadata token: table id in the high byte, 1-based row below it.
type Token uint32

func NewToken(table TableID, row uint32) Token {
	return Token(uint32(table)<<24 | row&0x00ffffff)
}

func (t Token) Table() TableID {
	return TableID(t >> 24)
}

func (t Token) Row() uint32 {
	return uint32(t) & 0x00ffffff
}

func (t Token) String() string {
	return fmt.Sprintf("0x%08x", uint32(t))
}

// GlobalTypeToken addresses the <Module> type of every module.
const GlobalTypeToken Token = 0x02000001

type TypeKind uint8

const (
	KindDefinition TypeKind = iota
	KindReference
	KindGenericInstance
	KindArray
	KindPointer
	KindByReference
	KindGenericParameter
	KindFunctionPointer
)

// Type is a node of the type universe: a definition, a reference into another
// scope, or a type constructed from other types. Constructed kinds keep their
// components in ElementType and GenericArguments.
type Type struct {
	Kind      TypeKind
	Token     Token
	Namespace string
	Name      string
	// Scope is the assembly (or module) name the type belongs to. Constructed
	// types carry the scope of their element type.
	Scope string

	DeclaringType     *Type
	GenericParameters []string
	GenericArguments  []*Type
	ElementType       *Type
	Rank              int

	// Position and MethodParameter describe generic parameters.
	Position        int
	MethodParameter bool

	NestedTypes []*Type
	Fields      []*Field
	Methods     []*Method
}

func NewTypeDefinition(scope, namespace, name string, genericParameters ...string) *Type {
	return &Type{
		Kind:              KindDefinition,
		Scope:             scope,
		Namespace:         namespace,
		Name:              name,
		GenericParameters: genericParameters,
	}
}

// NewTypeReference creates a reference whose arity is taken from the `N suffix
// of name.
func NewTypeReference(scope, namespace, name string) *Type {
	return &Type{
		Kind:              KindReference,
		Scope:             scope,
		Namespace:         namespace,
		Name:              name,
		GenericParameters: placeholderParameters(arityFromName(name)),
	}
}

func NewGenericInstance(element *Type, arguments ...*Type) *Type {
	return &Type{
		Kind:             KindGenericInstance,
		Scope:            element.Scope,
		Namespace:        element.Namespace,
		Name:             element.Name,
		DeclaringType:    element.DeclaringType,
		ElementType:      element,
		GenericArguments: arguments,
	}
}

func NewArrayType(element *Type, rank int) *Type {
	if rank < 1 {
		rank = 1
	}
	return &Type{Kind: KindArray, Scope: element.Scope, ElementType: element, Rank: rank}
}

func NewPointerType(element *Type) *Type {
	return &Type{Kind: KindPointer, Scope: element.Scope, ElementType: element}
}

func NewByReferenceType(element *Type) *Type {
	return &Type{Kind: KindByReference, Scope: element.Scope, ElementType: element}
}

func NewGenericParameter(position int, methodParameter bool) *Type {
	prefix := "!"
	if methodParameter {
		prefix = "!!"
	}
	return &Type{
		Kind:            KindGenericParameter,
		Name:            prefix + strconv.Itoa(position),
		Position:        position,
		MethodParameter: methodParameter,
	}
}

// AddNestedType links nested under t and returns it.
func (t *Type) AddNestedType(nested *Type) *Type {
	nested.DeclaringType = t
	nested.Namespace = ""
	if nested.Scope == "" {
		nested.Scope = t.Scope
	}
	t.NestedTypes = append(t.NestedTypes, nested)
	return nested
}

func (t *Type) AddField(name string, fieldType *Type) *Field {
	field := &Field{Name: name, DeclaringType: t, FieldType: fieldType}
	t.Fields = append(t.Fields, field)
	return field
}

func (t *Type) AddMethod(name string, returnType *Type, parameters ...*Type) *Method {
	method := &Method{Name: name, DeclaringType: t, ReturnType: returnType, Parameters: parameters}
	t.Methods = append(t.Methods, method)
	return method
}

// Arity is the number of generic parameters the type declares.
func (t *Type) Arity() int {
	return len(t.GenericParameters)
}

func (t *Type) IsGenericInstance() bool {
	return t.Kind == KindGenericInstance
}

// Definition returns the open type a constructed type was built from, or t.
func (t *Type) Definition() *Type {
	if t.Kind == KindGenericInstance && t.ElementType != nil {
		return t.ElementType
	}
	return t
}

// FullName renders the type the way metadata tooling prints it:
// Namespace.Name, Outer/Inner for nesting, List`1<System.Int32> for instances.
func (t *Type) FullName() string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case KindGenericInstance:
		args := make([]string, len(t.GenericArguments))
		for i, arg := range t.GenericArguments {
			args[i] = arg.FullName()
		}
		return t.ElementType.FullName() + "<" + strings.Join(args, ",") + ">"
	case KindArray:
		return t.ElementType.FullName() + "[" + strings.Repeat(",", t.Rank-1) + "]"
	case KindPointer:
		return t.ElementType.FullName() + "*"
	case KindByReference:
		return t.ElementType.FullName() + "&"
	case KindGenericParameter, KindFunctionPointer:
		return t.Name
	}
	if t.DeclaringType != nil {
		return t.DeclaringType.FullName() + "/" + t.Name
	}
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

func (t *Type) String() string {
	return t.FullName()
}

type Field struct {
	Token         Token
	Name          string
	DeclaringType *Type
	FieldType     *Type
}

func (f *Field) FullName() string {
	return f.FieldType.FullName() + " " + f.DeclaringType.FullName() + "::" + f.Name
}

type Method struct {
	Token             Token
	Name              string
	DeclaringType     *Type
	ReturnType        *Type
	Parameters        []*Type
	HasThis           bool
	GenericParameters []string
	GenericArguments  []*Type
	// ElementMethod is the open method a generic method instance was built from.
	ElementMethod *Method

	rva uint32
}

func (m *Method) IsGenericInstance() bool {
	return len(m.GenericArguments) > 0
}

// ParameterList renders the parameter types as they appear between parentheses.
func (m *Method) ParameterList() string {
	params := make([]string, len(m.Parameters))
	for i, p := range m.Parameters {
		params[i] = p.FullName()
	}
	return strings.Join(params, ",")
}

// FullName renders "Ret Decl::Name<Args>(Params)".
func (m *Method) FullName() string {
	var b strings.Builder
	if m.ReturnType != nil {
		b.WriteString(m.ReturnType.FullName())
		b.WriteByte(' ')
	}
	if m.DeclaringType != nil {
		b.WriteString(m.DeclaringType.FullName())
		b.WriteString("::")
	}
	b.WriteString(m.Name)
	if len(m.GenericArguments) > 0 {
		args := make([]string, len(m.GenericArguments))
		for i, arg := range m.GenericArguments {
			args[i] = arg.FullName()
		}
		b.WriteString("<" + strings.Join(args, ",") + ">")
	}
	b.WriteString("(" + m.ParameterList() + ")")
	return b.String()
}

func (m *Method) String() string {
	return m.FullName()
}

// arityFromName reads the `N suffix of a generic type name. Suffixes beyond
// the metadata limit are not arities and count as 0.
func arityFromName(name string) int {
	tick := strings.LastIndexByte(name, '`')
	if tick < 0 {
		return 0
	}
	n, err := strconv.Atoi(name[tick+1:])
	if err != nil || n < 0 || n > maxGenericArity {
		return 0
	}
	return n
}

func placeholderParameters(n int) []string {
	if n == 0 {
		return nil
	}
	params := make([]string, n)
	for i := range params {
		params[i] = "!" + strconv.Itoa(i)
	}
	return params
}
