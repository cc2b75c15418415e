package metadata

import (
	"encoding/binary"
	"fmt"
)

type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandInt
	OperandFloat
	OperandString
	OperandType
	OperandMethod
	OperandField
	OperandBranch
	OperandOther
)

func (k OperandKind) String() string {
	switch k {
	case OperandNone:
		return "none"
	case OperandInt:
		return "int"
	case OperandFloat:
		return "float"
	case OperandString:
		return "string"
	case OperandType:
		return "type"
	case OperandMethod:
		return "method"
	case OperandField:
		return "field"
	case OperandBranch:
		return "branch"
	default:
		return "other"
	}
}

// Operand is one decoded IL instruction reduced to the value it pushes or
// references. Short and macro forms of ldc.i4 are already expanded into Int.
type Operand struct {
	OpCode uint16
	Kind   OperandKind
	Int    int64
	Float  float64
	String string
	Type   *Type
	Method *Method
	Field  *Field
	Token  Token
}

type operandShape uint8

const (
	shapeNone operandShape = iota
	shapeInt8
	shapeInt32
	shapeInt64
	shapeFloat32
	shapeFloat64
	shapeVar8
	shapeVar16
	shapeBranch8
	shapeBranch32
	shapeSwitch
	shapeToken
	shapeString
	shapeInvalid
)

const (
	opLdcI4M1  = 0x15
	opLdcI40   = 0x16
	opLdcI48   = 0x1e
	opLdcI4S   = 0x1f
	opLdcI4    = 0x20
	opLdstr    = 0x72
	opLdtoken  = 0xd0
	opPrefix   = 0xfe
	opTwoByte  = 0xfe00
	tinyFormat = 0x2
	fatFormat  = 0x3
)

var (
	oneByteShapes [256]operandShape
	twoByteShapes [256]operandShape
)

func init() {
	for i := range oneByteShapes {
		oneByteShapes[i] = shapeInvalid
		twoByteShapes[i] = shapeInvalid
	}
	set := func(table *[256]operandShape, shape operandShape, from, to int) {
		for op := from; op <= to; op++ {
			table[op] = shape
		}
	}

	set(&oneByteShapes, shapeNone, 0x00, 0x0d)
	set(&oneByteShapes, shapeVar8, 0x0e, 0x13)
	set(&oneByteShapes, shapeNone, 0x14, 0x1e)
	set(&oneByteShapes, shapeInt8, 0x1f, 0x1f)
	set(&oneByteShapes, shapeInt32, 0x20, 0x20)
	set(&oneByteShapes, shapeInt64, 0x21, 0x21)
	set(&oneByteShapes, shapeFloat32, 0x22, 0x22)
	set(&oneByteShapes, shapeFloat64, 0x23, 0x23)
	set(&oneByteShapes, shapeNone, 0x25, 0x26)
	set(&oneByteShapes, shapeToken, 0x27, 0x29)
	set(&oneByteShapes, shapeNone, 0x2a, 0x2a)
	set(&oneByteShapes, shapeBranch8, 0x2b, 0x37)
	set(&oneByteShapes, shapeBranch32, 0x38, 0x44)
	set(&oneByteShapes, shapeSwitch, 0x45, 0x45)
	set(&oneByteShapes, shapeNone, 0x46, 0x6e)
	set(&oneByteShapes, shapeToken, 0x6f, 0x71)
	set(&oneByteShapes, shapeString, opLdstr, opLdstr)
	set(&oneByteShapes, shapeToken, 0x73, 0x75)
	set(&oneByteShapes, shapeNone, 0x76, 0x76)
	set(&oneByteShapes, shapeToken, 0x79, 0x79)
	set(&oneByteShapes, shapeNone, 0x7a, 0x7a)
	set(&oneByteShapes, shapeToken, 0x7b, 0x81)
	set(&oneByteShapes, shapeNone, 0x82, 0x8b)
	set(&oneByteShapes, shapeToken, 0x8c, 0x8d)
	set(&oneByteShapes, shapeNone, 0x8e, 0x8e)
	set(&oneByteShapes, shapeToken, 0x8f, 0x8f)
	set(&oneByteShapes, shapeNone, 0x90, 0xa2)
	set(&oneByteShapes, shapeToken, 0xa3, 0xa5)
	set(&oneByteShapes, shapeNone, 0xb3, 0xba)
	set(&oneByteShapes, shapeToken, 0xc2, 0xc2)
	set(&oneByteShapes, shapeNone, 0xc3, 0xc3)
	set(&oneByteShapes, shapeToken, 0xc6, 0xc6)
	set(&oneByteShapes, shapeToken, opLdtoken, opLdtoken)
	set(&oneByteShapes, shapeNone, 0xd1, 0xdc)
	set(&oneByteShapes, shapeBranch32, 0xdd, 0xdd)
	set(&oneByteShapes, shapeBranch8, 0xde, 0xde)
	set(&oneByteShapes, shapeNone, 0xdf, 0xe0)

	set(&twoByteShapes, shapeNone, 0x00, 0x05)
	set(&twoByteShapes, shapeToken, 0x06, 0x07)
	set(&twoByteShapes, shapeVar16, 0x09, 0x0e)
	set(&twoByteShapes, shapeNone, 0x0f, 0x0f)
	set(&twoByteShapes, shapeNone, 0x11, 0x11)
	set(&twoByteShapes, shapeInt8, 0x12, 0x12)
	set(&twoByteShapes, shapeNone, 0x13, 0x14)
	set(&twoByteShapes, shapeToken, 0x15, 0x16)
	set(&twoByteShapes, shapeNone, 0x17, 0x18)
	set(&twoByteShapes, shapeInt8, 0x19, 0x19)
	set(&twoByteShapes, shapeNone, 0x1a, 0x1a)
	set(&twoByteShapes, shapeToken, 0x1c, 0x1c)
	set(&twoByteShapes, shapeNone, 0x1d, 0x1e)
}

// Operands decodes the IL body of the named method on the global type.
func (a *Assembly) Operands(methodName string) ([]Operand, error) {
	global, err := a.GlobalType()
	if err != nil {
		return nil, err
	}
	for _, method := range global.Methods {
		if method.Name == methodName {
			return a.MethodOperands(method)
		}
	}
	return nil, fmt.Errorf("%w: %s::%s", ErrMethodNotFound, global.FullName(), methodName)
}

func (a *Assembly) MethodOperands(method *Method) ([]Operand, error) {
	code, err := a.methodCode(method)
	if err != nil {
		return nil, err
	}
	return a.decodeIL(code)
}

func (a *Assembly) methodCode(method *Method) ([]byte, error) {
	if method.rva == 0 {
		return nil, fmt.Errorf("%w: %s has no body", ErrMethodNotFound, method.Name)
	}
	lead, err := a.readRVA(method.rva, 1)
	if err != nil {
		return nil, err
	}
	switch lead[0] & 0x3 {
	case tinyFormat:
		return a.readRVA(method.rva+1, uint32(lead[0]>>2))
	case fatFormat:
		header, err := a.readRVA(method.rva, 12)
		if err != nil {
			return nil, err
		}
		headerSize := uint32(binary.LittleEndian.Uint16(header)>>12) * 4
		codeSize := binary.LittleEndian.Uint32(header[4:])
		return a.readRVA(method.rva+headerSize, codeSize)
	default:
		return nil, fmt.Errorf("%w: method %s has unknown body format %#x", ErrMalformedMetadata, method.Name, lead[0])
	}
}

func (a *Assembly) decodeIL(code []byte) ([]Operand, error) {
	var operands []Operand
	for pos := 0; pos < len(code); {
		op := uint16(code[pos])
		shape := oneByteShapes[code[pos]]
		pos++
		if op == opPrefix {
			if pos >= len(code) {
				return nil, fmt.Errorf("%w: truncated two-byte opcode", ErrMalformedMetadata)
			}
			op = opTwoByte | uint16(code[pos])
			shape = twoByteShapes[code[pos]]
			pos++
		}
		if shape == shapeInvalid {
			return nil, fmt.Errorf("%w: unknown opcode %#x at %d", ErrMalformedMetadata, op, pos)
		}

		width := shapeWidth(shape)
		if shape == shapeSwitch {
			if pos+4 > len(code) {
				return nil, fmt.Errorf("%w: truncated switch at %d", ErrMalformedMetadata, pos)
			}
			width = 4 + 4*int(binary.LittleEndian.Uint32(code[pos:]))
		}
		if pos+width > len(code) {
			return nil, fmt.Errorf("%w: truncated operand for opcode %#x", ErrMalformedMetadata, op)
		}
		raw := code[pos : pos+width]
		pos += width

		operand, err := a.operand(op, shape, raw)
		if err != nil {
			return nil, err
		}
		operands = append(operands, operand)
	}
	return operands, nil
}

func shapeWidth(shape operandShape) int {
	switch shape {
	case shapeInt8, shapeVar8, shapeBranch8:
		return 1
	case shapeVar16:
		return 2
	case shapeInt32, shapeFloat32, shapeBranch32, shapeToken, shapeString:
		return 4
	case shapeInt64, shapeFloat64:
		return 8
	default:
		return 0
	}
}

func (a *Assembly) operand(op uint16, shape operandShape, raw []byte) (Operand, error) {
	operand := Operand{OpCode: op}
	switch {
	case op == opLdcI4M1:
		operand.Kind, operand.Int = OperandInt, -1
		return operand, nil
	case op >= opLdcI40 && op <= opLdcI48:
		operand.Kind, operand.Int = OperandInt, int64(op-opLdcI40)
		return operand, nil
	}

	switch shape {
	case shapeNone:
	case shapeInt8:
		operand.Kind, operand.Int = OperandInt, int64(int8(raw[0]))
	case shapeInt32:
		operand.Kind, operand.Int = OperandInt, int64(int32(binary.LittleEndian.Uint32(raw)))
	case shapeInt64:
		operand.Kind, operand.Int = OperandInt, int64(binary.LittleEndian.Uint64(raw))
	case shapeFloat32, shapeFloat64:
		operand.Kind = OperandFloat
	case shapeBranch8, shapeBranch32, shapeSwitch:
		operand.Kind = OperandBranch
	case shapeVar8, shapeVar16:
		operand.Kind = OperandOther
	case shapeString:
		token := Token(binary.LittleEndian.Uint32(raw))
		text, err := a.heaps.userString(token.Row())
		if err != nil {
			return operand, err
		}
		operand.Kind, operand.String, operand.Token = OperandString, text, token
	case shapeToken:
		token := Token(binary.LittleEndian.Uint32(raw))
		operand.Token = token
		if err := a.resolveOperandToken(&operand, token); err != nil {
			return operand, err
		}
	}
	return operand, nil
}

func (a *Assembly) resolveOperandToken(operand *Operand, token Token) error {
	var err error
	switch token.Table() {
	case TableTypeDef, TableTypeRef, TableTypeSpec:
		operand.Kind = OperandType
		operand.Type, err = a.ResolveType(token)
	case TableMethodDef, TableMethodSpec:
		operand.Kind = OperandMethod
		operand.Method, err = a.ResolveMethod(token)
	case TableField:
		operand.Kind = OperandField
		operand.Field, err = a.ResolveField(token)
	case TableMemberRef:
		var member any
		if !a.tables.validRow(TableMemberRef, token.Row()) {
			return fmt.Errorf("%w: %s", ErrTokenOutOfRange, token)
		}
		if member, err = a.resolveMemberRef(token.Row()); err != nil {
			return err
		}
		switch m := member.(type) {
		case *Method:
			operand.Kind, operand.Method = OperandMethod, m
		case *Field:
			operand.Kind, operand.Field = OperandField, m
		}
	default:
		operand.Kind = OperandOther
	}
	return err
}
