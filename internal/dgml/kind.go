package dgml

import "strconv"

// Kind identifies what a dependency-graph node stands for. The set is
// closed: the classifier only ever produces these values.
type Kind uint8

const (
	KindNode Kind = iota
	KindRegion
	KindModuleMetadata
	KindConstructedEEType
	KindReflectedMethod
	KindReflectedField
	KindReflectedType
	KindMethodTable
	KindCustomAttributeMetadata
	KindVTableSlice
	KindInterfaceDispatchMap
	KindSealedVTable
	KindGenericDictionary
	KindDictionaryLayout
	KindFieldMetadata
	KindGenericComposition
	KindWritableData
	KindEETypeOptionalFields
	KindMethodMetadata
	KindSimpleEmbeddedPointerIndirection
	KindVirtualMethodUse
	KindGCStaticEEType
	KindTentativeInstanceMethod
	KindNativeLayoutTemplateMethodLayoutVertex
	KindNativeLayoutTypeSignatureVertex
	KindNativeLayoutPlacedSignatureVertex
	KindNativeLayoutMethodNameAndSignatureVertex
	KindNativeLayoutMethodSignatureVertex
	KindFrozenObject
	KindFatFunctionPointer
	KindShadowConcreteMethod
	KindInterfaceDispatchCell
	KindRuntimeMethodHandle
	KindTypeGVMEntries
	KindGCStatics
	KindGCStaticsPreInitData
	KindNonGCStatics
	KindNativeLayoutTemplateMethodSignatureVertex
	KindNativeLayoutMethodLdTokenVertex
	KindNativeLayoutFieldLdTokenVertex
	KindNativeLayoutExternalReferenceVertex
	KindNativeLayoutPlacedVertexSequenceOfUIntVertex
	KindNativeLayoutDictionarySignature
	KindNativeLayoutTypeHandleGenericDictionarySlot
	KindNativeLayoutUnwrapNullableGenericDictionarySlot
	KindNativeLayoutAllocateObjectGenericDictionarySlot
	KindNativeLayoutThreadStaticBaseIndexDictionarySlot
	KindNativeLayoutDefaultConstructorGenericDictionarySlot
	KindNativeLayoutGcStaticsGenericDictionarySlot
	KindNativeLayoutNonGcStaticsGenericDictionarySlot
	KindNativeLayoutInterfaceDispatchGenericDictionarySlot
	KindNativeLayoutMethodDictionaryGenericDictionarySlot
	KindWrappedMethodDictionaryVertex
	KindNativeLayoutFieldLdTokenGenericDictionarySlot
	KindNativeLayoutMethodLdTokenGenericDictionarySlot
	KindNativeLayoutConstrainedMethodDictionarySlot
	KindNativeLayoutMethodEntrypointGenericDictionarySlot
	KindNativeLayoutNotSupportedDictionarySlot
	KindGVMDependencies
	KindVariantInterfaceMethodUse
	KindDataflowAnalyzedMethod
	KindReadyToRunGenericHelper
	KindConditional
	KindType
	KindField
	KindMethod
	kindCount
)

var kindNames = [kindCount]string{
	KindNode:                                                "Node",
	KindRegion:                                              "RegionNode",
	KindModuleMetadata:                                      "ModuleMetadataNode",
	KindConstructedEEType:                                   "ConstructedEETypeNode",
	KindReflectedMethod:                                     "ReflectedMethodNode",
	KindReflectedField:                                      "ReflectedFieldNode",
	KindReflectedType:                                       "ReflectedTypeNode",
	KindMethodTable:                                         "MethodTableNode",
	KindCustomAttributeMetadata:                             "CustomAttributeMetadataNode",
	KindVTableSlice:                                         "VTableSliceNode",
	KindInterfaceDispatchMap:                                "InterfaceDispatchMapNode",
	KindSealedVTable:                                        "SealedVTableNode",
	KindGenericDictionary:                                   "GenericDictionaryNode",
	KindDictionaryLayout:                                    "DictionaryLayoutNode",
	KindFieldMetadata:                                       "FieldMetadataNode",
	KindGenericComposition:                                  "GenericCompositionNode",
	KindWritableData:                                        "WritableDataNode",
	KindEETypeOptionalFields:                                "EETypeOptionalFieldsNode",
	KindMethodMetadata:                                      "MethodMetadataNode",
	KindSimpleEmbeddedPointerIndirection:                    "SimpleEmbeddedPointerIndirectionNode",
	KindVirtualMethodUse:                                    "VirtualMethodUseNode",
	KindGCStaticEEType:                                      "GCStaticEETypeNode",
	KindTentativeInstanceMethod:                             "TentativeInstanceMethodNode",
	KindNativeLayoutTemplateMethodLayoutVertex:              "NativeLayoutTemplateMethodLayoutVertexNode",
	KindNativeLayoutTypeSignatureVertex:                     "NativeLayoutTypeSignatureVertexNode",
	KindNativeLayoutPlacedSignatureVertex:                   "NativeLayoutPlacedSignatureVertexNode",
	KindNativeLayoutMethodNameAndSignatureVertex:            "NativeLayoutMethodNameAndSignatureVertexNode",
	KindNativeLayoutMethodSignatureVertex:                   "NativeLayoutMethodSignatureVertexNode",
	KindFrozenObject:                                        "FrozenObjectNode",
	KindFatFunctionPointer:                                  "FatFunctionPointerNode",
	KindShadowConcreteMethod:                                "ShadowConcreteMethodNode",
	KindInterfaceDispatchCell:                               "InterfaceDispatchCellNode",
	KindRuntimeMethodHandle:                                 "RuntimeMethodHandleNode",
	KindTypeGVMEntries:                                      "TypeGVMEntriesNode",
	KindGCStatics:                                           "GCStaticsNode",
	KindGCStaticsPreInitData:                                "GCStaticsPreInitDataNode",
	KindNonGCStatics:                                        "NonGCStaticsNode",
	KindNativeLayoutTemplateMethodSignatureVertex:           "NativeLayoutTemplateMethodSignatureVertexNode",
	KindNativeLayoutMethodLdTokenVertex:                     "NativeLayoutMethodLdTokenVertexNode",
	KindNativeLayoutFieldLdTokenVertex:                      "NativeLayoutFieldLdTokenVertexNode",
	KindNativeLayoutExternalReferenceVertex:                 "NativeLayoutExternalReferenceVertexNode",
	KindNativeLayoutPlacedVertexSequenceOfUIntVertex:        "NativeLayoutPlacedVertexSequenceOfUIntVertexNode",
	KindNativeLayoutDictionarySignature:                     "NativeLayoutDictionarySignatureNode",
	KindNativeLayoutTypeHandleGenericDictionarySlot:         "NativeLayoutTypeHandleGenericDictionarySlotNode",
	KindNativeLayoutUnwrapNullableGenericDictionarySlot:     "NativeLayoutUnwrapNullableGenericDictionarySlotNode",
	KindNativeLayoutAllocateObjectGenericDictionarySlot:     "NativeLayoutAllocateObjectGenericDictionarySlotNode",
	KindNativeLayoutThreadStaticBaseIndexDictionarySlot:     "NativeLayoutThreadStaticBaseIndexDictionarySlotNode",
	KindNativeLayoutDefaultConstructorGenericDictionarySlot: "NativeLayoutDefaultConstructorGenericDictionarySlotNode",
	KindNativeLayoutGcStaticsGenericDictionarySlot:          "NativeLayoutGcStaticsGenericDictionarySlotNode",
	KindNativeLayoutNonGcStaticsGenericDictionarySlot:       "NativeLayoutNonGcStaticsGenericDictionarySlotNode",
	KindNativeLayoutInterfaceDispatchGenericDictionarySlot:  "NativeLayoutInterfaceDispatchGenericDictionarySlotNode",
	KindNativeLayoutMethodDictionaryGenericDictionarySlot:   "NativeLayoutMethodDictionaryGenericDictionarySlotNode",
	KindWrappedMethodDictionaryVertex:                       "WrappedMethodDictionaryVertexNode",
	KindNativeLayoutFieldLdTokenGenericDictionarySlot:       "NativeLayoutFieldLdTokenGenericDictionarySlotNode",
	KindNativeLayoutMethodLdTokenGenericDictionarySlot:      "NativeLayoutMethodLdTokenGenericDictionarySlotNode",
	KindNativeLayoutConstrainedMethodDictionarySlot:         "NativeLayoutConstrainedMethodDictionarySlotNode",
	KindNativeLayoutMethodEntrypointGenericDictionarySlot:   "NativeLayoutMethodEntrypointGenericDictionarySlotNode",
	KindNativeLayoutNotSupportedDictionarySlot:              "NativeLayoutNotSupportedDictionarySlotNode",
	KindGVMDependencies:                                     "GVMDependenciesNode",
	KindVariantInterfaceMethodUse:                           "VariantInterfaceMethodUseNode",
	KindDataflowAnalyzedMethod:                              "DataflowAnalyzedMethodNode",
	KindReadyToRunGenericHelper:                             "ReadyToRunGenericHelperNode",
	KindConditional:                                         "ConditionalNode",
	KindType:                                                "TypeNode",
	KindField:                                               "FieldNode",
	KindMethod:                                              "MethodNode",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Resolved reports whether nodes of this kind point into assembly metadata.
func (k Kind) Resolved() bool {
	return k == KindType || k == KindField || k == KindMethod
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, kindCount)
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}
