package metadata

import (
	"errors"
	"testing"
)

func TestTypeFullName(t *testing.T) {
	list := NewTypeReference("System.Private.CoreLib", "System.Collections.Generic", "List`1")
	outer := NewTypeDefinition("Lib", "Lib", "Outer")
	inner := outer.AddNestedType(NewTypeDefinition("", "", "Inner"))
	intType := NewTypeReference("System.Private.CoreLib", "System", "Int32")

	cases := []struct {
		name string
		typ  *Type
		want string
	}{
		{"namespace", intType, "System.Int32"},
		{"nested", inner, "Lib.Outer/Inner"},
		{"generic instance", NewGenericInstance(list, inner), "System.Collections.Generic.List`1<Lib.Outer/Inner>"},
		{"array", NewArrayType(intType, 1), "System.Int32[]"},
		{"multi-dimensional array", NewArrayType(intType, 3), "System.Int32[,,]"},
		{"pointer", NewPointerType(intType), "System.Int32*"},
		{"by reference", NewByReferenceType(intType), "System.Int32&"},
		{"type parameter", NewGenericParameter(0, false), "!0"},
		{"method parameter", NewGenericParameter(1, true), "!!1"},
		{"global", NewTypeDefinition("Lib", "", "<Module>"), "<Module>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.typ.FullName(); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestNestedTypeInheritsScope(t *testing.T) {
	outer := NewTypeDefinition("Lib", "Lib", "Outer")
	inner := outer.AddNestedType(NewTypeDefinition("", "Ignored", "Inner"))
	if inner.Scope != "Lib" {
		t.Fatalf("expected nested scope Lib, got %q", inner.Scope)
	}
	if inner.Namespace != "" {
		t.Fatalf("expected nested namespace to be cleared, got %q", inner.Namespace)
	}
}

func TestTypeReferenceArityFromName(t *testing.T) {
	cases := map[string]int{"List`1": 1, "Dictionary`2": 2, "Foo": 0, "Bad`x": 0, "X`2000000000": 0, "Neg`-1": 0}
	for name, want := range cases {
		if got := NewTypeReference("Core", "System", name).Arity(); got != want {
			t.Fatalf("%s: expected arity %d, got %d", name, want, got)
		}
	}
}

func TestMethodFullName(t *testing.T) {
	voidType := NewTypeReference("Core", "System", "Void")
	intType := NewTypeReference("Core", "System", "Int32")
	owner := NewTypeDefinition("Lib", "Lib", "Foo")
	method := owner.AddMethod("Bar", voidType, intType, intType)
	if got := method.FullName(); got != "System.Void Lib.Foo::Bar(System.Int32,System.Int32)" {
		t.Fatalf("unexpected method name %q", got)
	}
	if method.ParameterList() != "System.Int32,System.Int32" {
		t.Fatalf("unexpected parameter list %q", method.ParameterList())
	}
}

func TestGenericInstanceDefinition(t *testing.T) {
	list := NewTypeReference("Core", "System.Collections.Generic", "List`1")
	inst := NewGenericInstance(list, NewTypeReference("Lib", "Lib", "Foo"))
	if inst.Definition() != list || list.Definition() != list {
		t.Fatal("expected Definition to unwrap generic instances only")
	}
	if inst.Scope != "Core" {
		t.Fatalf("expected instance scope Core, got %q", inst.Scope)
	}
}

func TestTokenParts(t *testing.T) {
	tok := NewToken(TableTypeSpec, 0x123)
	if tok.Table() != TableTypeSpec || tok.Row() != 0x123 {
		t.Fatalf("unexpected token parts %s", tok)
	}
	if tok.String() != "0x1b000123" {
		t.Fatalf("unexpected token string %s", tok)
	}
}

func TestDecompressUint(t *testing.T) {
	cases := []struct {
		in   []byte
		want uint32
		size int
	}{
		{[]byte{0x03}, 0x03, 1},
		{[]byte{0x7f}, 0x7f, 1},
		{[]byte{0x80, 0x80}, 0x80, 2},
		{[]byte{0xbf, 0xff}, 0x3fff, 2},
		{[]byte{0xc0, 0x00, 0x40, 0x00}, 0x4000, 4},
	}
	for _, tc := range cases {
		got, n, err := decompressUint(tc.in)
		if err != nil {
			t.Fatalf(unexpectedErrFmt, err)
		}
		if got != tc.want || n != tc.size {
			t.Fatalf("%v: expected %#x/%d, got %#x/%d", tc.in, tc.want, tc.size, got, n)
		}
	}
	if _, _, err := decompressUint([]byte{0xff}); !errors.Is(err, ErrMalformedMetadata) {
		t.Fatalf("expected ErrMalformedMetadata, got %v", err)
	}
	if _, _, err := decompressUint(nil); !errors.Is(err, ErrMalformedMetadata) {
		t.Fatalf("expected ErrMalformedMetadata for empty input, got %v", err)
	}
}
