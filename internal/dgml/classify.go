package dgml

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

const (
	mangledPrefix       = "??_7"
	mangledSuffix       = "@@6B@"
	boxedMarker         = "Boxed_"
	unboxingMarker      = "unbox_"
	preInitDataSuffix   = "@@__PreInitData"
	varianceSeparator   = "__Variance__"
	callSiteSeparator   = "___GenericDict_"
	assemblySeparator   = " in "
	canonicalSeparator  = " backed by "
	constructedSuffix   = " constructed"
	placedSequenceLabel = "NativeLayoutPlacedVertexSequenceVertexNode"
)

type matchMode uint8

const (
	matchPrefix matchMode = iota
	matchSuffix
	matchExact
	matchContains
	matchMangled
)

// parseFunc refines a node built from a stripped payload. Returning an error
// reports a label shape the grammar cannot model yet.
type parseFunc func(c Classifier, node *Node, payload string) error

type rule struct {
	kind   Kind
	mode   matchMode
	marker string
	parse  parseFunc
}

// rules is evaluated top to bottom and the first match wins. Several markers
// overlap, so the order is part of the grammar.
var rules = []rule{
	{KindRegion, matchPrefix, "Region ", nil},
	{KindModuleMetadata, matchPrefix, "Reflectable module: ", nil},
	{KindReflectedMethod, matchPrefix, "Reflectable method: ", nil},
	{KindReflectedField, matchPrefix, "Reflectable field: ", nil},
	{KindReflectedType, matchPrefix, "Reflectable type: ", nil},
	{KindVTableSlice, matchPrefix, "__vtable_", nil},
	{KindSealedVTable, matchPrefix, "__SealedVTable_", parseInnerMangledName},
	{KindGenericDictionary, matchPrefix, "__GenericDict_", nil},
	{KindDictionaryLayout, matchPrefix, "Dictionary layout for ", nil},
	{KindInterfaceDispatchMap, matchPrefix, "__InterfaceDispatchMap_", nil},
	{KindFieldMetadata, matchPrefix, "Field metadata: ", nil},
	{KindWritableData, matchPrefix, "__writableData", nil},
	{KindEETypeOptionalFields, matchPrefix, "__optionalfields_", parseInnerMangledName},
	{KindMethodMetadata, matchPrefix, "Method metadata: ", nil},
	{KindSimpleEmbeddedPointerIndirection, matchPrefix, "Embedded pointer to ", nil},
	{KindVirtualMethodUse, matchPrefix, "VirtualMethodUse ", nil},
	{KindGCStaticEEType, matchPrefix, "__GCStaticEEType_", nil},
	{KindTentativeInstanceMethod, matchPrefix, "Tentative instance method: ", nil},
	{KindNativeLayoutTemplateMethodLayoutVertex, matchPrefix, "NativeLayoutTemplateTypeLayoutVertexNode_", nil},
	{KindNativeLayoutTypeSignatureVertex, matchPrefix, "NativeLayoutTypeSignatureVertexNode: ", nil},
	{KindNativeLayoutMethodNameAndSignatureVertex, matchPrefix, "NativeLayoutMethodNameAndSignatureVertexNode", nil},
	{KindNativeLayoutMethodSignatureVertex, matchPrefix, "NativeLayoutMethodSignatureVertexNode ", nil},
	{KindFrozenObject, matchPrefix, "__FrozenObj_", nil},
	{KindFatFunctionPointer, matchPrefix, "__fatpointer_", nil},
	{KindFatFunctionPointer, matchPrefix, "__fatunboxpointer_", parseUnboxingStub},
	{KindRuntimeMethodHandle, matchPrefix, "__RuntimeMethodHandle_", nil},
	{KindTypeGVMEntries, matchPrefix, "__TypeGVMEntriesNode_", nil},
	{KindGCStatics, matchPrefix, "?__GCSTATICS@", parseGCStatics},
	{KindNonGCStatics, matchPrefix, "?__NONGCSTATICS@", parseTrailingAt},
	{KindNativeLayoutTemplateMethodSignatureVertex, matchPrefix, "NativeLayoutTemplateMethodSignatureVertexNode_", nil},
	{KindNativeLayoutMethodLdTokenVertex, matchPrefix, "NativeLayoutMethodLdTokenVertexNode_", nil},
	{KindNativeLayoutFieldLdTokenVertex, matchPrefix, "NativeLayoutFieldLdTokenVertexNode_", nil},
	{KindNativeLayoutExternalReferenceVertex, matchPrefix, "NativeLayoutISymbolNodeReferenceVertexNode ", nil},
	{KindNativeLayoutPlacedVertexSequenceOfUIntVertex, matchExact, placedSequenceLabel, parseFixedName},
	{KindNativeLayoutDictionarySignature, matchPrefix, "Dictionary layout signature for ", nil},
	{KindNativeLayoutTypeHandleGenericDictionarySlot, matchPrefix, "NativeLayoutTypeHandleGenericDictionarySlotNode_", nil},
	{KindNativeLayoutUnwrapNullableGenericDictionarySlot, matchPrefix, "NativeLayoutUnwrapNullableGenericDictionarySlotNode_", nil},
	{KindNativeLayoutAllocateObjectGenericDictionarySlot, matchPrefix, "NativeLayoutAllocateObjectGenericDictionarySlotNode_", nil},
	{KindNativeLayoutThreadStaticBaseIndexDictionarySlot, matchPrefix, "NativeLayoutThreadStaticBaseIndexDictionarySlotNode_", nil},
	{KindNativeLayoutDefaultConstructorGenericDictionarySlot, matchPrefix, "NativeLayoutDefaultConstructorGenericDictionarySlotNode_", nil},
	{KindNativeLayoutGcStaticsGenericDictionarySlot, matchPrefix, "NativeLayoutGcStaticsGenericDictionarySlotNode_", nil},
	{KindNativeLayoutNonGcStaticsGenericDictionarySlot, matchPrefix, "NativeLayoutNonGcStaticsGenericDictionarySlotNode_", nil},
	{KindNativeLayoutInterfaceDispatchGenericDictionarySlot, matchPrefix, "NativeLayoutInterfaceDispatchGenericDictionarySlotNode_", nil},
	{KindNativeLayoutMethodDictionaryGenericDictionarySlot, matchPrefix, "NativeLayoutMethodDictionaryGenericDictionarySlotNode_", nil},
	{KindWrappedMethodDictionaryVertex, matchPrefix, "WrappedMethodEntryVertexNodeForDictionarySlot_", nil},
	{KindNativeLayoutFieldLdTokenGenericDictionarySlot, matchPrefix, "NativeLayoutFieldLdTokenGenericDictionarySlotNode_", nil},
	{KindNativeLayoutMethodLdTokenGenericDictionarySlot, matchPrefix, "NativeLayoutMethodLdTokenGenericDictionarySlotNode_", nil},
	{KindNativeLayoutConstrainedMethodDictionarySlot, matchPrefix, "NativeLayoutConstrainedMethodDictionarySlotNode_", parseUnexpectedSlot},
	{KindNativeLayoutMethodEntrypointGenericDictionarySlot, matchPrefix, "NativeLayoutMethodEntrypointGenericDictionarySlotNode_", nil},
	{KindNativeLayoutNotSupportedDictionarySlot, matchExact, "NativeLayoutNotSupportedDictionarySlotNode", nil},
	{KindGVMDependencies, matchPrefix, "__GVMDependenciesNode_", nil},
	{KindVariantInterfaceMethodUse, matchPrefix, "VariantInterfaceMethodUse ", nil},
	{KindDataflowAnalyzedMethod, matchPrefix, "Dataflow analysis for ", nil},
	{KindReadyToRunGenericHelper, matchPrefix, "__GenericLookupFromDict_", nil},
	{KindGenericComposition, matchPrefix, "__GenericInstance", parseGenericComposition},
	{KindShadowConcreteMethod, matchContains, canonicalSeparator, parseShadowMethod},
	{KindCustomAttributeMetadata, matchPrefix, "Reflectable custom attribute ", parseCustomAttribute},
	{KindInterfaceDispatchCell, matchPrefix, "__InterfaceDispatchCell_", parseDispatchCell},
	{KindMethodTable, matchMangled, "", parseMethodTable},
	{KindConstructedEEType, matchSuffix, constructedSuffix, nil},
	{KindNativeLayoutPlacedSignatureVertex, matchExact, "NativeLayoutPlacedSignatureVertexNode", nil},
}

func (r rule) strip(label string) (string, bool) {
	switch r.mode {
	case matchPrefix:
		return strings.CutPrefix(label, r.marker)
	case matchSuffix:
		return strings.CutSuffix(label, r.marker)
	case matchExact:
		return label, label == r.marker
	case matchContains:
		return label, strings.Contains(label, r.marker)
	case matchMangled:
		return label, isMangledMethodTable(label)
	}
	return "", false
}

// Classifier turns node labels into typed nodes. The zero value logs to
// slog.Default.
type Classifier struct {
	Logger *slog.Logger
}

// ParseNode classifies a label with the default classifier.
func ParseNode(id int, label string) *Node {
	return Classifier{}.Classify(id, label)
}

// Classify never fails: a label no rule accepts, or one whose payload the
// grammar cannot model, becomes a generic node holding the full label.
func (c Classifier) Classify(id int, label string) *Node {
	for _, r := range rules {
		payload, ok := r.strip(label)
		if !ok {
			continue
		}
		node := &Node{Index: id, Kind: r.kind, Name: payload}
		if r.parse != nil {
			if err := r.parse(c, node, payload); err != nil {
				c.grammarGap(id, label, r.kind, err)
				return NewNode(id, label)
			}
		}
		return node
	}
	return NewNode(id, label)
}

func (c Classifier) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c Classifier) grammarGap(id int, label string, kind Kind, err error) {
	if strictGrammar {
		panic(fmt.Sprintf("dgml: unsupported %s label %q: %v", kind, label, err))
	}
	c.logger().Warn("unsupported node label, keeping generic node",
		slog.Int("id", id),
		slog.String("kind", kind.String()),
		slog.String("label", label),
		slog.String("error", err.Error()),
	)
}

func isMangledMethodTable(label string) bool {
	return len(label) >= len(mangledPrefix)+len(mangledSuffix) &&
		strings.HasPrefix(label, mangledPrefix) &&
		strings.HasSuffix(label, mangledSuffix)
}

// parseMangledName strips the ??_7 ... @@6B@ frame and at most one of the
// Boxed_ or unbox_ markers.
func parseMangledName(label string) (name string, boxed, unboxing bool) {
	name = label[len(mangledPrefix) : len(label)-len(mangledSuffix)]
	if rest, ok := strings.CutPrefix(name, boxedMarker); ok {
		return rest, true, false
	}
	if rest, ok := strings.CutPrefix(name, unboxingMarker); ok {
		return rest, false, true
	}
	return name, false, false
}

func parseMethodTable(_ Classifier, node *Node, payload string) error {
	name, boxed, unboxing := parseMangledName(payload)
	if unboxing {
		return fmt.Errorf("unboxing thunk %q", name)
	}
	node.Name = name
	node.IsBoxedValueType = boxed
	return nil
}

// parseInnerMangledName unwraps a method table name embedded after another
// marker. Payloads without the mangled frame keep their text.
func parseInnerMangledName(_ Classifier, node *Node, payload string) error {
	if !isMangledMethodTable(payload) {
		return nil
	}
	name, _, unboxing := parseMangledName(payload)
	if unboxing {
		return fmt.Errorf("unboxing thunk %q", name)
	}
	node.Name = name
	return nil
}

func parseUnboxingStub(_ Classifier, node *Node, _ string) error {
	node.IsUnboxingStub = true
	return nil
}

func parseGCStatics(_ Classifier, node *Node, payload string) error {
	if name, ok := strings.CutSuffix(payload, preInitDataSuffix); ok {
		node.Kind = KindGCStaticsPreInitData
		node.Name = name
		return nil
	}
	node.Name = strings.TrimRight(payload, "@")
	return nil
}

func parseTrailingAt(_ Classifier, node *Node, payload string) error {
	node.Name = strings.TrimRight(payload, "@")
	return nil
}

func parseFixedName(_ Classifier, node *Node, _ string) error {
	node.Name = node.Kind.String()
	return nil
}

func parseUnexpectedSlot(c Classifier, node *Node, _ string) error {
	c.logger().Warn("unexpected constrained method dictionary slot",
		slog.Int("id", node.Index),
		slog.String("name", node.Name),
	)
	return nil
}

func parseGenericComposition(_ Classifier, node *Node, payload string) error {
	payload = strings.TrimPrefix(payload, "_")
	parts := strings.Split(payload, varianceSeparator)
	node.Name = parts[0]
	node.Variance = []int{}
	if len(parts) == 1 {
		return nil
	}
	for _, item := range strings.Split(parts[1], "_") {
		if item == "" {
			continue
		}
		value, err := strconv.Atoi(item)
		if err != nil {
			return fmt.Errorf("variance %q: %w", parts[1], err)
		}
		node.Variance = append(node.Variance, value)
	}
	return nil
}

func parseShadowMethod(_ Classifier, node *Node, payload string) error {
	parts := strings.Split(payload, canonicalSeparator)
	node.Name = parts[0]
	node.CanonicalMethodName = parts[1]
	return nil
}

func parseCustomAttribute(_ Classifier, node *Node, payload string) error {
	parts := strings.Split(payload, assemblySeparator)
	if len(parts) < 2 {
		return fmt.Errorf("custom attribute %q has no assembly", payload)
	}
	node.Name = parts[0]
	node.AssemblyName = parts[1]
	return nil
}

func parseDispatchCell(c Classifier, node *Node, payload string) error {
	parts := strings.Split(payload, callSiteSeparator)
	if len(parts) > 2 {
		c.logger().Warn("interface dispatch cell with several call sites",
			slog.Int("id", node.Index),
			slog.String("payload", payload),
		)
	}
	node.Name = parts[0]
	if len(parts) > 1 {
		node.CallSiteIdentifier = parts[1]
		node.HasCallSite = true
	}
	return nil
}
