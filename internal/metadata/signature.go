package metadata

import (
	"fmt"
	"strings"
)

const (
	elemVoid        = 0x01
	elemBoolean     = 0x02
	elemChar        = 0x03
	elemI1          = 0x04
	elemU1          = 0x05
	elemI2          = 0x06
	elemU2          = 0x07
	elemI4          = 0x08
	elemU4          = 0x09
	elemI8          = 0x0a
	elemU8          = 0x0b
	elemR4          = 0x0c
	elemR8          = 0x0d
	elemString      = 0x0e
	elemPtr         = 0x0f
	elemByRef       = 0x10
	elemValueType   = 0x11
	elemClass       = 0x12
	elemVar         = 0x13
	elemArray       = 0x14
	elemGenericInst = 0x15
	elemTypedByRef  = 0x16
	elemI           = 0x18
	elemU           = 0x19
	elemFnPtr       = 0x1b
	elemObject      = 0x1c
	elemSzArray     = 0x1d
	elemMVar        = 0x1e
	elemCModReqd    = 0x1f
	elemCModOpt     = 0x20
	elemSentinel    = 0x41
	elemPinned      = 0x45

	sigHasThis        = 0x20
	sigGeneric        = 0x10
	sigField          = 0x06
	sigGenericInst    = 0x0a
	maxSignatureDepth = 64
)

var primitiveNames = map[byte]string{
	elemVoid:       "Void",
	elemBoolean:    "Boolean",
	elemChar:       "Char",
	elemI1:         "SByte",
	elemU1:         "Byte",
	elemI2:         "Int16",
	elemU2:         "UInt16",
	elemI4:         "Int32",
	elemU4:         "UInt32",
	elemI8:         "Int64",
	elemU8:         "UInt64",
	elemR4:         "Single",
	elemR8:         "Double",
	elemString:     "String",
	elemTypedByRef: "TypedReference",
	elemI:          "IntPtr",
	elemU:          "UIntPtr",
	elemObject:     "Object",
}

type sigReader struct {
	asm   *Assembly
	data  []byte
	pos   int
	depth int
}

func (r *sigReader) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("%w: signature truncated", ErrMalformedMetadata)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *sigReader) uint() (uint32, error) {
	value, n, err := decompressUint(r.data[r.pos:])
	if err != nil {
		return 0, err
	}
	r.pos += n
	return value, nil
}

func (r *sigReader) typeDefOrRef() (*Type, error) {
	encoded, err := r.uint()
	if err != nil {
		return nil, err
	}
	table, row := codedTypeDefOrRef.decode(encoded)
	if table == noTable {
		return nil, fmt.Errorf("%w: bad TypeDefOrRef tag in signature", ErrMalformedMetadata)
	}
	return r.asm.resolveType(NewToken(table, row), r.depth)
}

func (r *sigReader) readType() (*Type, error) {
	if r.depth > maxSignatureDepth {
		return nil, fmt.Errorf("%w: signature nests too deeply", ErrMalformedMetadata)
	}
	r.depth++
	defer func() { r.depth-- }()

	elem, err := r.byte()
	if err != nil {
		return nil, err
	}
	if _, ok := primitiveNames[elem]; ok {
		return r.asm.primitive(elem), nil
	}

	switch elem {
	case elemCModReqd, elemCModOpt:
		if _, err := r.typeDefOrRef(); err != nil {
			return nil, err
		}
		return r.readType()
	case elemPinned, elemSentinel:
		return r.readType()
	case elemPtr:
		inner, err := r.readType()
		if err != nil {
			return nil, err
		}
		return NewPointerType(inner), nil
	case elemByRef:
		inner, err := r.readType()
		if err != nil {
			return nil, err
		}
		return NewByReferenceType(inner), nil
	case elemValueType, elemClass:
		return r.typeDefOrRef()
	case elemVar, elemMVar:
		position, err := r.uint()
		if err != nil {
			return nil, err
		}
		return NewGenericParameter(int(position), elem == elemMVar), nil
	case elemSzArray:
		inner, err := r.readType()
		if err != nil {
			return nil, err
		}
		return NewArrayType(inner, 1), nil
	case elemArray:
		return r.readArray()
	case elemGenericInst:
		return r.readGenericInstance()
	case elemFnPtr:
		sig, err := r.methodSignature()
		if err != nil {
			return nil, err
		}
		params := make([]string, len(sig.params))
		for i, p := range sig.params {
			params[i] = p.FullName()
		}
		return &Type{
			Kind: KindFunctionPointer,
			Name: "method " + sig.ret.FullName() + " *(" + strings.Join(params, ",") + ")",
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported element type %#x", ErrMalformedMetadata, elem)
	}
}

func (r *sigReader) readArray() (*Type, error) {
	inner, err := r.readType()
	if err != nil {
		return nil, err
	}
	rank, err := r.uint()
	if err != nil {
		return nil, err
	}
	// Sizes and lower bounds do not affect the rendered name.
	for range 2 {
		count, err := r.uint()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			if _, err := r.uint(); err != nil {
				return nil, err
			}
		}
	}
	return NewArrayType(inner, int(rank)), nil
}

func (r *sigReader) readGenericInstance() (*Type, error) {
	if _, err := r.byte(); err != nil {
		return nil, err
	}
	definition, err := r.typeDefOrRef()
	if err != nil {
		return nil, err
	}
	count, err := r.uint()
	if err != nil {
		return nil, err
	}
	if int(count) > len(r.data) {
		return nil, fmt.Errorf("%w: generic argument count %d", ErrMalformedMetadata, count)
	}
	args := make([]*Type, count)
	for i := range args {
		if args[i], err = r.readType(); err != nil {
			return nil, err
		}
	}
	// References learn their arity from the instantiations that use them.
	if definition.Kind == KindReference && definition.Arity() < len(args) {
		definition.GenericParameters = placeholderParameters(len(args))
	}
	return NewGenericInstance(definition, args...), nil
}

type methodSignature struct {
	hasThis      bool
	genericCount int
	ret          *Type
	params       []*Type
}

func (r *sigReader) methodSignature() (methodSignature, error) {
	var sig methodSignature
	conv, err := r.byte()
	if err != nil {
		return sig, err
	}
	sig.hasThis = conv&sigHasThis != 0
	if conv&sigGeneric != 0 {
		count, err := r.uint()
		if err != nil {
			return sig, err
		}
		if count > maxGenericArity {
			return sig, fmt.Errorf("%w: generic parameter count %d", ErrMalformedMetadata, count)
		}
		sig.genericCount = int(count)
	}
	paramCount, err := r.uint()
	if err != nil {
		return sig, err
	}
	if int(paramCount) > len(r.data) {
		return sig, fmt.Errorf("%w: parameter count %d", ErrMalformedMetadata, paramCount)
	}
	if sig.ret, err = r.readType(); err != nil {
		return sig, err
	}
	sig.params = make([]*Type, paramCount)
	for i := range sig.params {
		if sig.params[i], err = r.readType(); err != nil {
			return sig, err
		}
	}
	return sig, nil
}

func (a *Assembly) decodeMethodSignature(data []byte) (methodSignature, error) {
	reader := &sigReader{asm: a, data: data}
	return reader.methodSignature()
}

func (a *Assembly) decodeFieldSignature(data []byte) (*Type, error) {
	reader := &sigReader{asm: a, data: data}
	conv, err := reader.byte()
	if err != nil {
		return nil, err
	}
	if conv&0x0f != sigField {
		return nil, fmt.Errorf("%w: field signature lead byte %#x", ErrMalformedMetadata, conv)
	}
	return reader.readType()
}

func (a *Assembly) decodeInstantiation(data []byte) ([]*Type, error) {
	reader := &sigReader{asm: a, data: data}
	conv, err := reader.byte()
	if err != nil {
		return nil, err
	}
	if conv != sigGenericInst {
		return nil, fmt.Errorf("%w: method instantiation lead byte %#x", ErrMalformedMetadata, conv)
	}
	count, err := reader.uint()
	if err != nil {
		return nil, err
	}
	if int(count) > len(data) {
		return nil, fmt.Errorf("%w: generic argument count %d", ErrMalformedMetadata, count)
	}
	args := make([]*Type, count)
	for i := range args {
		if args[i], err = reader.readType(); err != nil {
			return nil, err
		}
	}
	return args, nil
}

// primitive returns the shared corlib reference for a primitive element type.
func (a *Assembly) primitive(elem byte) *Type {
	if t, ok := a.primitives[elem]; ok {
		return t
	}
	t := NewTypeReference(a.corlib, "System", primitiveNames[elem])
	a.primitives[elem] = t
	return t
}
