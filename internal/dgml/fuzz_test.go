package dgml

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func FuzzClassify(f *testing.F) {
	for _, label := range realLabels {
		f.Add(label)
	}
	f.Add("??_7unbox_Foo@@6B@")
	f.Add("__GenericInstance__Variance__")
	classifier := Classifier{Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))}

	f.Fuzz(func(t *testing.T, label string) {
		node := classifier.Classify(1, label)
		if node == nil {
			t.Fatalf("nil node for %q", label)
		}
		if node.Kind == KindNode && node.Name != label {
			t.Fatalf("generic node for %q renamed to %q", label, node.Name)
		}
		if node.IsBoxedValueType && node.IsUnboxingStub {
			t.Fatalf("%q: boxed and unboxing both set", label)
		}
		if node.Kind == KindGenericComposition && node.Variance == nil {
			t.Fatalf("%q: nil variance", label)
		}
		if node.Index != 1 || node.Kind.Resolved() {
			t.Fatalf("%q: unexpected node %+v", label, node)
		}
		if node.Kind == KindRegion && !strings.HasSuffix(label, node.Name) {
			t.Fatalf("%q: region name %q is not the label tail", label, node.Name)
		}
	})
}
