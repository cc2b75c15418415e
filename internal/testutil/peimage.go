package testutil

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

// Element types accepted by ImageBuilder.MethodRef and ImageBuilder.Field.
const (
	ElemVoid   byte = 0x01
	ElemBool   byte = 0x02
	ElemInt32  byte = 0x08
	ElemString byte = 0x0e
	ElemObject byte = 0x1c
)

const (
	tableModule      = 0x00
	tableTypeRef     = 0x01
	tableTypeDef     = 0x02
	tableField       = 0x04
	tableMethodDef   = 0x06
	tableMemberRef   = 0x0a
	tableTypeSpec    = 0x1b
	tableAssembly    = 0x20
	tableAssemblyRef = 0x23
	tableNestedClass = 0x29
	tableGenericPar  = 0x2a
	tableMethodSpec  = 0x2b

	textRVA         = 0x2000
	sectionAlign    = 0x2000
	fileAlign       = 0x200
	headersSize     = 0x200
	cliHeaderSize   = 72
	peHeaderOffset  = 0x80
	optionalHdrSize = 224
)

func token(table byte, row int) uint32 {
	return uint32(table)<<24 | uint32(row)
}

type typeDefRow struct {
	name, namespace string
	fieldList       int
	methodList      int
}

type methodRow struct {
	name string
	sig  []byte
	il   []byte
}

type memberRefRow struct {
	parent uint32
	name   string
	sig    []byte
}

// ImageBuilder writes a minimal managed PE image: one assembly with type
// references, type specs, member references and IL method bodies. Members can
// only be added to the most recently declared type definition, which keeps the
// field and method lists contiguous as the table layout requires.
type ImageBuilder struct {
	name    string
	version [4]uint16

	strings     *bytes.Buffer
	stringIndex map[string]uint16
	userStrings *bytes.Buffer
	blobs       *bytes.Buffer

	assemblyRefs []uint16
	typeRefs     [][3]uint16
	typeDefs     []typeDefRow
	fields       [][2]uint16
	methods      []methodRow
	memberRefs   []memberRefRow
	typeSpecs    []uint16
	nested       [][2]uint16
	genericPars  [][3]uint16
	methodSpecs  [][2]uint16
	names        []string
	hasNames     bool
}

func NewImageBuilder(name string, major, minor uint16) *ImageBuilder {
	b := &ImageBuilder{
		name:        name,
		version:     [4]uint16{major, minor, 0, 0},
		strings:     bytes.NewBuffer([]byte{0}),
		stringIndex: map[string]uint16{"": 0},
		userStrings: bytes.NewBuffer([]byte{0}),
		blobs:       bytes.NewBuffer([]byte{0}),
	}
	b.typeDefs = append(b.typeDefs, typeDefRow{name: "<Module>", fieldList: 1, methodList: 1})
	return b
}

func (b *ImageBuilder) str(value string) uint16 {
	if index, ok := b.stringIndex[value]; ok {
		return index
	}
	index := uint16(b.strings.Len())
	b.strings.WriteString(value)
	b.strings.WriteByte(0)
	b.stringIndex[value] = index
	return index
}

func (b *ImageBuilder) blob(data []byte) uint16 {
	index := uint16(b.blobs.Len())
	b.blobs.Write(compressUint(uint32(len(data))))
	b.blobs.Write(data)
	return index
}

// AssemblyRef returns a ResolutionScope-ready handle for TypeRef.
func (b *ImageBuilder) AssemblyRef(name string) uint32 {
	b.assemblyRefs = append(b.assemblyRefs, b.str(name))
	return token(tableAssemblyRef, len(b.assemblyRefs))
}

// TypeRef declares a type reference scoped to an AssemblyRef, or nested in
// another TypeRef when scope is a TypeRef token.
func (b *ImageBuilder) TypeRef(scope uint32, namespace, name string) uint32 {
	row := int(scope & 0xffffff)
	var coded uint16
	switch byte(scope >> 24) {
	case tableAssemblyRef:
		coded = uint16(row<<2 | 2)
	case tableTypeRef:
		coded = uint16(row<<2 | 3)
	default:
		panic(fmt.Sprintf("unsupported type ref scope %#x", scope))
	}
	b.typeRefs = append(b.typeRefs, [3]uint16{coded, b.str(name), b.str(namespace)})
	return token(tableTypeRef, len(b.typeRefs))
}

// GenericInstance declares a TypeSpec instantiating definition with args.
func (b *ImageBuilder) GenericInstance(definition uint32, args ...uint32) uint32 {
	sig := []byte{0x15, 0x12}
	sig = append(sig, typeDefOrRefEncoded(definition)...)
	sig = append(sig, compressUint(uint32(len(args)))...)
	for _, arg := range args {
		sig = append(sig, typeSig(arg)...)
	}
	b.typeSpecs = append(b.typeSpecs, b.blob(sig))
	return token(tableTypeSpec, len(b.typeSpecs))
}

// TypeDef declares a new type definition; subsequent Field and Method calls
// attach to it.
func (b *ImageBuilder) TypeDef(namespace, name string, genericParameters ...string) uint32 {
	b.typeDefs = append(b.typeDefs, typeDefRow{
		name:       name,
		namespace:  namespace,
		fieldList:  len(b.fields) + 1,
		methodList: len(b.methods) + 1,
	})
	row := len(b.typeDefs)
	for i, param := range genericParameters {
		b.genericPars = append(b.genericPars, [3]uint16{uint16(i), uint16(row << 1), b.str(param)})
	}
	return token(tableTypeDef, row)
}

// NestedTypeDef declares a type definition nested in enclosing.
func (b *ImageBuilder) NestedTypeDef(enclosing uint32, name string) uint32 {
	nested := b.TypeDef("", name)
	b.Nest(nested, enclosing)
	return nested
}

// Nest adds a NestedClass row between two existing type definitions as is,
// so tests can write layouts a compiler never would.
func (b *ImageBuilder) Nest(nested, enclosing uint32) {
	b.nested = append(b.nested, [2]uint16{uint16(nested & 0xffffff), uint16(enclosing & 0xffffff)})
}

func (b *ImageBuilder) Field(name string, elem byte) uint32 {
	b.fields = append(b.fields, [2]uint16{b.str(name), b.blob([]byte{0x06, elem})})
	return token(tableField, len(b.fields))
}

// Method adds a static void method with the given IL body to the current type.
func (b *ImageBuilder) Method(name string, il []byte) uint32 {
	b.methods = append(b.methods, methodRow{name: name, sig: []byte{0x00, 0x00, ElemVoid}, il: il})
	return token(tableMethodDef, len(b.methods))
}

// MethodRef declares an instance method reference on parent returning void
// with primitive parameters.
func (b *ImageBuilder) MethodRef(parent uint32, name string, params ...byte) uint32 {
	sig := []byte{0x20}
	sig = append(sig, compressUint(uint32(len(params)))...)
	sig = append(sig, ElemVoid)
	sig = append(sig, params...)
	b.memberRefs = append(b.memberRefs, memberRefRow{parent: parent, name: name, sig: sig})
	return token(tableMemberRef, len(b.memberRefs))
}

// GenericMethodRef declares a generic method reference with arity parameters.
func (b *ImageBuilder) GenericMethodRef(parent uint32, name string, arity int) uint32 {
	sig := []byte{0x30}
	sig = append(sig, compressUint(uint32(arity))...)
	sig = append(sig, 0x00, ElemVoid)
	b.memberRefs = append(b.memberRefs, memberRefRow{parent: parent, name: name, sig: sig})
	return token(tableMemberRef, len(b.memberRefs))
}

// MethodInstance declares a MethodSpec instantiating a generic method reference.
func (b *ImageBuilder) MethodInstance(method uint32, args ...uint32) uint32 {
	sig := []byte{0x0a}
	sig = append(sig, compressUint(uint32(len(args)))...)
	for _, arg := range args {
		sig = append(sig, typeSig(arg)...)
	}
	coded := uint16(int(method&0xffffff)<<1 | 1)
	b.methodSpecs = append(b.methodSpecs, [2]uint16{coded, b.blob(sig)})
	return token(tableMethodSpec, len(b.methodSpecs))
}

// UserString interns s in the #US heap and returns its ldstr token.
func (b *ImageBuilder) UserString(s string) uint32 {
	index := b.userStrings.Len()
	units := utf16.Encode([]rune(s))
	b.userStrings.Write(compressUint(uint32(len(units)*2 + 1)))
	for _, unit := range units {
		_ = binary.Write(b.userStrings, binary.LittleEndian, unit)
	}
	b.userStrings.WriteByte(0)
	return 0x70000000 | uint32(index)
}

// Names adds a .names section holding length-prefixed UTF-8 strings.
func (b *ImageBuilder) Names(names ...string) {
	b.names = append(b.names, names...)
	b.hasNames = true
}

func typeDefOrRefEncoded(tok uint32) []byte {
	row := tok & 0xffffff
	var tag uint32
	switch byte(tok >> 24) {
	case tableTypeDef:
		tag = 0
	case tableTypeRef:
		tag = 1
	case tableTypeSpec:
		tag = 2
	}
	return compressUint(row<<2 | tag)
}

func typeSig(tok uint32) []byte {
	if byte(tok>>24) == 0 {
		// Primitive element type passed as a bare byte.
		return []byte{byte(tok)}
	}
	return append([]byte{0x12}, typeDefOrRefEncoded(tok)...)
}

// Primitive wraps an element type so it can be passed where a type token is
// expected.
func Primitive(elem byte) uint32 {
	return uint32(elem)
}

func compressUint(value uint32) []byte {
	switch {
	case value < 0x80:
		return []byte{byte(value)}
	case value < 0x4000:
		return []byte{byte(value>>8) | 0x80, byte(value)}
	default:
		return []byte{byte(value>>24) | 0xc0, byte(value >> 16), byte(value >> 8), byte(value)}
	}
}

// Build lays out the image and returns its bytes.
func (b *ImageBuilder) Build() []byte {
	var text bytes.Buffer
	text.Write(make([]byte, cliHeaderSize))

	rvas := make([]uint32, len(b.methods))
	for i, method := range b.methods {
		for text.Len()%4 != 0 {
			text.WriteByte(0)
		}
		rvas[i] = textRVA + uint32(text.Len())
		if len(method.il) < 64 {
			text.WriteByte(byte(len(method.il))<<2 | 0x2)
		} else {
			header := make([]byte, 12)
			binary.LittleEndian.PutUint16(header, 0x3003)
			binary.LittleEndian.PutUint16(header[2:], 8)
			binary.LittleEndian.PutUint32(header[4:], uint32(len(method.il)))
			text.Write(header)
		}
		text.Write(method.il)
	}
	for text.Len()%4 != 0 {
		text.WriteByte(0)
	}

	metadataRVA := textRVA + uint32(text.Len())
	metadata := b.metadata(rvas)
	text.Write(metadata)

	header := text.Bytes()[:cliHeaderSize]
	binary.LittleEndian.PutUint32(header, cliHeaderSize)
	binary.LittleEndian.PutUint16(header[4:], 2)
	binary.LittleEndian.PutUint16(header[6:], 5)
	binary.LittleEndian.PutUint32(header[8:], metadataRVA)
	binary.LittleEndian.PutUint32(header[12:], uint32(len(metadata)))
	binary.LittleEndian.PutUint32(header[16:], 1)

	sections := []struct {
		name string
		data []byte
	}{{".text", text.Bytes()}}
	if b.hasNames {
		var names bytes.Buffer
		for _, name := range b.names {
			names.Write(sevenBitLength(len(name)))
			names.WriteString(name)
		}
		sections = append(sections, struct {
			name string
			data []byte
		}{".names", names.Bytes()})
	}

	var out bytes.Buffer
	dos := make([]byte, peHeaderOffset)
	dos[0], dos[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(dos[0x3c:], peHeaderOffset)
	out.Write(dos)
	out.WriteString("PE\x00\x00")

	_ = binary.Write(&out, binary.LittleEndian, pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_I386,
		NumberOfSections:     uint16(len(sections)),
		SizeOfOptionalHeader: optionalHdrSize,
		Characteristics:      0x2102,
	})

	rva := uint32(textRVA)
	fileOffset := uint32(headersSize)
	headers := make([]pe.SectionHeader32, len(sections))
	for i, section := range sections {
		var name [8]uint8
		copy(name[:], section.name)
		rawSize := alignUp(uint32(len(section.data)), fileAlign)
		headers[i] = pe.SectionHeader32{
			Name:             name,
			VirtualSize:      uint32(len(section.data)),
			VirtualAddress:   rva,
			SizeOfRawData:    rawSize,
			PointerToRawData: fileOffset,
			Characteristics:  0x60000020,
		}
		rva += alignUp(uint32(len(section.data)), sectionAlign)
		fileOffset += rawSize
	}

	optional := pe.OptionalHeader32{
		Magic:               0x10b,
		SectionAlignment:    sectionAlign,
		FileAlignment:       fileAlign,
		SizeOfImage:         rva,
		SizeOfHeaders:       headersSize,
		Subsystem:           3,
		NumberOfRvaAndSizes: 16,
	}
	optional.DataDirectory[14] = pe.DataDirectory{VirtualAddress: textRVA, Size: cliHeaderSize}
	_ = binary.Write(&out, binary.LittleEndian, optional)
	for _, h := range headers {
		_ = binary.Write(&out, binary.LittleEndian, h)
	}
	out.Write(make([]byte, headersSize-out.Len()))

	for i, section := range sections {
		out.Write(section.data)
		out.Write(make([]byte, int(headers[i].SizeOfRawData)-len(section.data)))
	}
	return out.Bytes()
}

func (b *ImageBuilder) metadata(rvas []uint32) []byte {
	assemblyName := b.str(b.name)
	moduleName := b.str(b.name + ".dll")

	rows := map[byte]int{
		tableModule:      1,
		tableTypeRef:     len(b.typeRefs),
		tableTypeDef:     len(b.typeDefs),
		tableField:       len(b.fields),
		tableMethodDef:   len(b.methods),
		tableMemberRef:   len(b.memberRefs),
		tableTypeSpec:    len(b.typeSpecs),
		tableAssembly:    1,
		tableAssemblyRef: len(b.assemblyRefs),
		tableNestedClass: len(b.nested),
		tableGenericPar:  len(b.genericPars),
		tableMethodSpec:  len(b.methodSpecs),
	}
	order := []byte{
		tableModule, tableTypeRef, tableTypeDef, tableField, tableMethodDef, tableMemberRef,
		tableTypeSpec, tableAssembly, tableAssemblyRef, tableNestedClass, tableGenericPar, tableMethodSpec,
	}

	var tables bytes.Buffer
	w := func(values ...any) {
		for _, v := range values {
			_ = binary.Write(&tables, binary.LittleEndian, v)
		}
	}
	var valid uint64
	for _, id := range order {
		if rows[id] > 0 {
			valid |= 1 << id
		}
	}
	w(uint32(0), uint8(2), uint8(0), uint8(0), uint8(1), valid, uint64(0))
	for _, id := range order {
		if rows[id] > 0 {
			w(uint32(rows[id]))
		}
	}

	w(uint16(0), moduleName, uint16(1), uint16(0), uint16(0))
	for _, ref := range b.typeRefs {
		w(ref[0], ref[1], ref[2])
	}
	for _, def := range b.typeDefs {
		w(uint32(0), b.str(def.name), b.str(def.namespace), uint16(0), uint16(def.fieldList), uint16(def.methodList))
	}
	for _, field := range b.fields {
		w(uint16(0x16), field[0], field[1])
	}
	for i, method := range b.methods {
		w(rvas[i], uint16(0), uint16(0x16), b.str(method.name), b.blob(method.sig), uint16(1))
	}
	for _, ref := range b.memberRefs {
		var tag int
		switch byte(ref.parent >> 24) {
		case tableTypeDef:
			tag = 0
		case tableTypeRef:
			tag = 1
		case tableMethodDef:
			tag = 3
		case tableTypeSpec:
			tag = 4
		}
		w(uint16(int(ref.parent&0xffffff)<<3|tag), b.str(ref.name), b.blob(ref.sig))
	}
	for _, spec := range b.typeSpecs {
		w(spec)
	}
	w(uint32(0x8004), b.version[0], b.version[1], b.version[2], b.version[3], uint32(0), uint16(0), assemblyName, uint16(0))
	for _, ref := range b.assemblyRefs {
		w(uint16(0), uint16(0), uint16(0), uint16(0), uint32(0), uint16(0), ref, uint16(0), uint16(0))
	}
	for _, n := range b.nested {
		w(n[0], n[1])
	}
	for _, gp := range b.genericPars {
		w(gp[0], uint16(0), gp[1], gp[2])
	}
	for _, spec := range b.methodSpecs {
		w(spec[0], spec[1])
	}

	streams := []struct {
		name string
		data []byte
	}{
		{"#~", tables.Bytes()},
		{"#Strings", b.strings.Bytes()},
		{"#US", b.userStrings.Bytes()},
		{"#GUID", make([]byte, 16)},
		{"#Blob", b.blobs.Bytes()},
	}
	for _, s := range streams {
		if len(s.data) > 0xffff {
			panic("test image heaps must stay below 64KiB")
		}
	}

	version := []byte("v4.0.30319\x00\x00")
	headerSize := 16 + len(version) + 4
	for _, s := range streams {
		headerSize += 8 + int(alignUp(uint32(len(s.name)+1), 4))
	}

	var root bytes.Buffer
	_ = binary.Write(&root, binary.LittleEndian, uint32(0x424a5342))
	_ = binary.Write(&root, binary.LittleEndian, uint16(1))
	_ = binary.Write(&root, binary.LittleEndian, uint16(1))
	_ = binary.Write(&root, binary.LittleEndian, uint32(0))
	_ = binary.Write(&root, binary.LittleEndian, uint32(len(version)))
	root.Write(version)
	_ = binary.Write(&root, binary.LittleEndian, uint16(0))
	_ = binary.Write(&root, binary.LittleEndian, uint16(len(streams)))

	offset := uint32(headerSize)
	for _, s := range streams {
		size := alignUp(uint32(len(s.data)), 4)
		_ = binary.Write(&root, binary.LittleEndian, offset)
		_ = binary.Write(&root, binary.LittleEndian, size)
		name := make([]byte, alignUp(uint32(len(s.name)+1), 4))
		copy(name, s.name)
		root.Write(name)
		offset += size
	}
	for _, s := range streams {
		root.Write(s.data)
		root.Write(make([]byte, int(alignUp(uint32(len(s.data)), 4))-len(s.data)))
	}
	return root.Bytes()
}

func alignUp(value, align uint32) uint32 {
	return (value + align - 1) &^ (align - 1)
}

func sevenBitLength(n int) []byte {
	var out []byte
	v := uint32(n)
	for v >= 0x80 {
		out = append(out, byte(v)|0x80)
		v >>= 7
	}
	return append(out, byte(v))
}

// IL assembles the handful of opcodes size reports use.
type IL struct {
	buf bytes.Buffer
}

func (il *IL) Ldtoken(tok uint32) *IL {
	il.buf.WriteByte(0xd0)
	_ = binary.Write(&il.buf, binary.LittleEndian, tok)
	return il
}

// LdcI4 emits the shortest ldc.i4 form for v.
func (il *IL) LdcI4(v int32) *IL {
	switch {
	case v == -1:
		il.buf.WriteByte(0x15)
	case v >= 0 && v <= 8:
		il.buf.WriteByte(0x16 + byte(v))
	case v >= -128 && v <= 127:
		il.buf.WriteByte(0x1f)
		il.buf.WriteByte(byte(int8(v)))
	default:
		il.buf.WriteByte(0x20)
		_ = binary.Write(&il.buf, binary.LittleEndian, v)
	}
	return il
}

func (il *IL) Ldstr(tok uint32) *IL {
	il.buf.WriteByte(0x72)
	_ = binary.Write(&il.buf, binary.LittleEndian, tok)
	return il
}

func (il *IL) Pop() *IL {
	il.buf.WriteByte(0x26)
	return il
}

func (il *IL) Ret() *IL {
	il.buf.WriteByte(0x2a)
	return il
}

func (il *IL) Bytes() []byte {
	return append([]byte(nil), il.buf.Bytes()...)
}
