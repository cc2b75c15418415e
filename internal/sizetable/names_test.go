package sizetable

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestReadMangledNames(t *testing.T) {
	long := strings.Repeat("x", 200)
	data := append([]byte{3, 'a', 'b', 'c', 0, 0xc8, 0x01}, long...)
	names, err := ReadMangledNames(data)
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	want := []string{"abc", "", long}
	if !slices.Equal(names, want) {
		t.Fatalf("expected %d names, got %q", len(want), names)
	}
}

func TestReadMangledNamesRejectsTruncation(t *testing.T) {
	cases := map[string][]byte{
		"short body":    {5, 'a', 'b'},
		"open prefix":   {0x80},
		"prefix length": {0xff, 0xff, 0xff, 0xff, 0xff, 0x01},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadMangledNames(data); !errors.Is(err, ErrMalformedNames) {
				t.Fatalf("expected ErrMalformedNames, got %v", err)
			}
		})
	}
}

func TestAttachMangledNamesFromSection(t *testing.T) {
	asm, stats := decodeReport(t, 2)
	data, err := asm.Section(NamesSection)
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	names, err := ReadMangledNames(data)
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	stats.AttachMangledNames(names)

	if stats.Types[0].MangledName != "List<Foo>" || stats.Types[1].MangledName != "Foo" {
		t.Fatalf("unexpected type names %q, %q", stats.Types[0].MangledName, stats.Types[1].MangledName)
	}
	if stats.Methods[0].MangledName != "Add" {
		t.Fatalf("expected method name Add, got %q", stats.Methods[0].MangledName)
	}
	if stats.Methods[1].MangledName != "" || stats.Types[2].MangledName != "" {
		t.Fatal("expected records without an index to stay unnamed")
	}
}

func TestAttachMangledNamesIgnoresOutOfRangeIndex(t *testing.T) {
	_, stats := decodeReport(t, 2)
	stats.AttachMangledNames([]string{"only"})
	if stats.Types[0].MangledName != "only" || stats.Types[1].MangledName != "" {
		t.Fatalf("unexpected names %q, %q", stats.Types[0].MangledName, stats.Types[1].MangledName)
	}
}
