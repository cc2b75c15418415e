package metadata

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/kant2002/MstatAnalyser/internal/safeio"
)

var (
	ErrNotManaged        = errors.New("image has no CLI header")
	ErrMalformedMetadata = errors.New("malformed metadata")
	ErrTokenOutOfRange   = errors.New("metadata token out of range")
	ErrMethodNotFound    = errors.New("method not found")
	ErrSectionNotFound   = errors.New("section not found")
)

const (
	cliHeaderDirectory     = 14
	metadataRootSignature  = 0x424a5342
	defaultCorlibName      = "System.Private.CoreLib"
	maxTypeResolutionDepth = 64
	// maxGenericArity is the largest GenericParam.Number plus one; the column
	// is a 2-byte unsigned integer.
	maxGenericArity        = 0x10000
)

var corlibCandidates = []string{"System.Private.CoreLib", "mscorlib", "System.Runtime", "netstandard"}

type Version struct {
	Major    uint16
	Minor    uint16
	Build    uint16
	Revision uint16
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// Assembly is a read-only view over the metadata of one PE module. Tokens are
// resolved lazily and memoized, so an Assembly is not safe for concurrent use
// while it is still being resolved against.
type Assembly struct {
	Name    string
	Version Version
	Module  string

	file   *pe.File
	tables *tableStream
	heaps  heaps
	corlib string

	assemblyRefs []string
	moduleRefs   []string
	typeDefs     []*Type
	fields       []*Field
	methods      []*Method

	typeRefs    map[uint32]*Type
	typeSpecs   map[uint32]*Type
	// resolving holds TypeRef rows whose scope chain is being walked.
	resolving   map[uint32]struct{}
	memberRefs  map[uint32]any
	methodSpecs map[uint32]*Method
	primitives  map[byte]*Type
}

// Open reads the whole image at path and parses its metadata.
func Open(path string) (*Assembly, error) {
	data, err := safeio.ReadFile(path)
	if err != nil {
		return nil, err
	}
	asm, err := Read(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return asm, nil
}

func Read(r io.ReaderAt) (*Assembly, error) {
	file, err := pe.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("parse PE image: %w", err)
	}

	a := &Assembly{
		file:        file,
		typeRefs:    make(map[uint32]*Type),
		typeSpecs:   make(map[uint32]*Type),
		resolving:   make(map[uint32]struct{}),
		memberRefs:  make(map[uint32]any),
		methodSpecs: make(map[uint32]*Method),
		primitives:  make(map[byte]*Type),
	}
	if err := a.loadStreams(); err != nil {
		return nil, err
	}
	if err := a.loadNames(); err != nil {
		return nil, err
	}
	if err := a.loadTypeDefinitions(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Assembly) loadStreams() error {
	dir, ok := cliDirectory(a.file)
	if !ok || dir.VirtualAddress == 0 {
		return ErrNotManaged
	}
	header, err := a.readRVA(dir.VirtualAddress, 72)
	if err != nil {
		return err
	}
	metaRVA := binary.LittleEndian.Uint32(header[8:])
	metaSize := binary.LittleEndian.Uint32(header[12:])
	root, err := a.readRVA(metaRVA, metaSize)
	if err != nil {
		return err
	}
	if len(root) < 16 || binary.LittleEndian.Uint32(root) != metadataRootSignature {
		return fmt.Errorf("%w: bad metadata root signature", ErrMalformedMetadata)
	}

	versionLength := int(binary.LittleEndian.Uint32(root[12:]))
	pos := 16 + versionLength
	if pos+4 > len(root) {
		return fmt.Errorf("%w: metadata root truncated", ErrMalformedMetadata)
	}
	streamCount := int(binary.LittleEndian.Uint16(root[pos+2:]))
	pos += 4

	for i := 0; i < streamCount; i++ {
		if pos+8 > len(root) {
			return fmt.Errorf("%w: stream header truncated", ErrMalformedMetadata)
		}
		offset := binary.LittleEndian.Uint32(root[pos:])
		size := binary.LittleEndian.Uint32(root[pos+4:])
		pos += 8
		end := bytes.IndexByte(root[pos:], 0)
		if end < 0 {
			return fmt.Errorf("%w: stream name unterminated", ErrMalformedMetadata)
		}
		name := string(root[pos : pos+end])
		pos += (end + 4) &^ 3

		if uint64(offset)+uint64(size) > uint64(len(root)) {
			return fmt.Errorf("%w: stream %s overruns metadata", ErrMalformedMetadata, name)
		}
		data := root[offset : offset+size]
		switch name {
		case "#~", "#-":
			if a.tables, err = parseTableStream(data); err != nil {
				return err
			}
		case "#Strings":
			a.heaps.strings = data
		case "#Blob":
			a.heaps.blobs = data
		case "#US":
			a.heaps.userStrings = data
		}
	}
	if a.tables == nil {
		return fmt.Errorf("%w: no table stream", ErrMalformedMetadata)
	}
	return nil
}

func cliDirectory(file *pe.File) (pe.DataDirectory, bool) {
	switch header := file.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if header.NumberOfRvaAndSizes > cliHeaderDirectory {
			return header.DataDirectory[cliHeaderDirectory], true
		}
	case *pe.OptionalHeader64:
		if header.NumberOfRvaAndSizes > cliHeaderDirectory {
			return header.DataDirectory[cliHeaderDirectory], true
		}
	}
	return pe.DataDirectory{}, false
}

func (a *Assembly) readRVA(rva, size uint32) ([]byte, error) {
	for _, section := range a.file.Sections {
		if rva < section.VirtualAddress {
			continue
		}
		offset := rva - section.VirtualAddress
		if uint64(offset)+uint64(size) > uint64(section.Size) {
			continue
		}
		buf := make([]byte, size)
		if _, err := section.ReadAt(buf, int64(offset)); err != nil {
			return nil, fmt.Errorf("read rva %#x: %w", rva, err)
		}
		return buf, nil
	}
	return nil, fmt.Errorf("%w: rva %#x+%d is not backed by file data", ErrMalformedMetadata, rva, size)
}

func (a *Assembly) loadNames() error {
	ts := a.tables
	if ts.rows(TableModule) > 0 {
		name, err := a.heaps.str(ts.cell(TableModule, 1, 1))
		if err != nil {
			return err
		}
		a.Module = name
	}
	if ts.rows(TableAssembly) > 0 {
		name, err := a.heaps.str(ts.cell(TableAssembly, 1, 7))
		if err != nil {
			return err
		}
		a.Name = name
		a.Version = Version{
			Major:    uint16(ts.cell(TableAssembly, 1, 1)),
			Minor:    uint16(ts.cell(TableAssembly, 1, 2)),
			Build:    uint16(ts.cell(TableAssembly, 1, 3)),
			Revision: uint16(ts.cell(TableAssembly, 1, 4)),
		}
	} else {
		a.Name = strings.TrimSuffix(a.Module, path.Ext(a.Module))
	}

	for row := uint32(1); row <= ts.rows(TableAssemblyRef); row++ {
		name, err := a.heaps.str(ts.cell(TableAssemblyRef, row, 6))
		if err != nil {
			return err
		}
		a.assemblyRefs = append(a.assemblyRefs, name)
	}
	for row := uint32(1); row <= ts.rows(TableModuleRef); row++ {
		name, err := a.heaps.str(ts.cell(TableModuleRef, row, 0))
		if err != nil {
			return err
		}
		a.moduleRefs = append(a.moduleRefs, name)
	}

	a.corlib = defaultCorlibName
	for _, candidate := range corlibCandidates {
		if slices.Contains(a.assemblyRefs, candidate) {
			a.corlib = candidate
			break
		}
	}
	return nil
}

type genericParam struct {
	number uint32
	name   string
}

func (a *Assembly) loadTypeDefinitions() error {
	ts := a.tables
	typeCount := ts.rows(TableTypeDef)
	fieldCount := ts.rows(TableField)
	methodCount := ts.rows(TableMethodDef)

	a.typeDefs = make([]*Type, typeCount)
	for row := uint32(1); row <= typeCount; row++ {
		name, err := a.heaps.str(ts.cell(TableTypeDef, row, 1))
		if err != nil {
			return err
		}
		namespace, err := a.heaps.str(ts.cell(TableTypeDef, row, 2))
		if err != nil {
			return err
		}
		def := NewTypeDefinition(a.Name, namespace, name)
		def.Token = NewToken(TableTypeDef, row)
		a.typeDefs[row-1] = def
	}

	for row := uint32(1); row <= ts.rows(TableNestedClass); row++ {
		nested := ts.cell(TableNestedClass, row, 0)
		enclosing := ts.cell(TableNestedClass, row, 1)
		if !ts.validRow(TableTypeDef, nested) || !ts.validRow(TableTypeDef, enclosing) {
			return fmt.Errorf("%w: nested class row %d", ErrTokenOutOfRange, row)
		}
		if err := a.nest(a.typeDefs[nested-1], a.typeDefs[enclosing-1]); err != nil {
			return fmt.Errorf("nested class row %d: %w", row, err)
		}
	}

	typeParams := make(map[uint32][]genericParam)
	methodParams := make(map[uint32][]genericParam)
	for row := uint32(1); row <= ts.rows(TableGenericParam); row++ {
		name, err := a.heaps.str(ts.cell(TableGenericParam, row, 3))
		if err != nil {
			return err
		}
		param := genericParam{number: ts.cell(TableGenericParam, row, 0), name: name}
		switch owner, ownerRow := codedTypeOrMethodDef.decode(ts.cell(TableGenericParam, row, 2)); owner {
		case TableTypeDef:
			typeParams[ownerRow] = append(typeParams[ownerRow], param)
		case TableMethodDef:
			methodParams[ownerRow] = append(methodParams[ownerRow], param)
		}
	}

	a.fields = make([]*Field, fieldCount)
	a.methods = make([]*Method, methodCount)
	for row := uint32(1); row <= typeCount; row++ {
		def := a.typeDefs[row-1]
		def.GenericParameters = genericParameterNames(typeParams[row])

		fieldStart, fieldEnd := a.memberRange(row, 4, fieldCount)
		for f := fieldStart; f < fieldEnd; f++ {
			name, err := a.heaps.str(ts.cell(TableField, f, 1))
			if err != nil {
				return err
			}
			field := &Field{Token: NewToken(TableField, f), Name: name, DeclaringType: def}
			def.Fields = append(def.Fields, field)
			a.fields[f-1] = field
		}

		methodStart, methodEnd := a.memberRange(row, 5, methodCount)
		for m := methodStart; m < methodEnd; m++ {
			name, err := a.heaps.str(ts.cell(TableMethodDef, m, 3))
			if err != nil {
				return err
			}
			method := &Method{
				Token:             NewToken(TableMethodDef, m),
				Name:              name,
				DeclaringType:     def,
				GenericParameters: genericParameterNames(methodParams[m]),
				rva:               ts.cell(TableMethodDef, m, 0),
			}
			def.Methods = append(def.Methods, method)
			a.methods[m-1] = method
		}
	}

	for row, field := range a.fields {
		if field == nil {
			continue
		}
		sig, err := a.heaps.blob(ts.cell(TableField, uint32(row+1), 2))
		if err != nil {
			return err
		}
		if field.FieldType, err = a.decodeFieldSignature(sig); err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}
	for row, method := range a.methods {
		if method == nil {
			continue
		}
		sig, err := a.heaps.blob(ts.cell(TableMethodDef, uint32(row+1), 4))
		if err != nil {
			return err
		}
		decoded, err := a.decodeMethodSignature(sig)
		if err != nil {
			return fmt.Errorf("method %s: %w", method.Name, err)
		}
		method.HasThis = decoded.hasThis
		method.ReturnType = decoded.ret
		method.Parameters = decoded.params
	}
	return nil
}

// memberRange returns the [start, end) rows of the field or method list owned
// by a TypeDef row.
func (a *Assembly) memberRange(row uint32, col int, count uint32) (uint32, uint32) {
	ts := a.tables
	start := ts.cell(TableTypeDef, row, col)
	end := count + 1
	if row < ts.rows(TableTypeDef) {
		end = ts.cell(TableTypeDef, row+1, col)
	}
	start = max(start, 1)
	end = min(end, count+1)
	if end < start {
		end = start
	}
	return start, end
}

// nest records nested inside enclosing unless that would give a type two
// declaring types or put it on its own enclosing chain.
func (a *Assembly) nest(nested, enclosing *Type) error {
	if nested.DeclaringType != nil {
		return fmt.Errorf("%w: type %s is nested twice", ErrMalformedMetadata, nested.Token)
	}
	for t := enclosing; t != nil; t = t.DeclaringType {
		if t == nested {
			return fmt.Errorf("%w: type %s encloses itself", ErrMalformedMetadata, nested.Token)
		}
	}
	enclosing.AddNestedType(nested)
	return nil
}

func genericParameterNames(params []genericParam) []string {
	if len(params) == 0 {
		return nil
	}
	slices.SortFunc(params, func(x, y genericParam) int { return int(x.number) - int(y.number) })
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.name
	}
	return names
}

// Types returns the top-level type definitions; nested types hang off them.
func (a *Assembly) Types() []*Type {
	types := make([]*Type, 0, len(a.typeDefs))
	for _, def := range a.typeDefs {
		if def.DeclaringType == nil {
			types = append(types, def)
		}
	}
	return types
}

func (a *Assembly) GlobalType() (*Type, error) {
	return a.ResolveType(GlobalTypeToken)
}

// FormatVersion is the major component of the assembly version.
func (a *Assembly) FormatVersion() int {
	return int(a.Version.Major)
}

// Section returns the raw contents of a named PE section, trimmed to its
// virtual size.
func (a *Assembly) Section(name string) ([]byte, error) {
	section := a.file.Section(name)
	if section == nil {
		return nil, fmt.Errorf("%w: %s", ErrSectionNotFound, name)
	}
	data, err := section.Data()
	if err != nil {
		return nil, fmt.Errorf("read section %s: %w", name, err)
	}
	if section.VirtualSize > 0 && int(section.VirtualSize) < len(data) {
		data = data[:section.VirtualSize]
	}
	return data, nil
}

func (a *Assembly) ResolveType(token Token) (*Type, error) {
	return a.resolveType(token, 0)
}

func (a *Assembly) resolveType(token Token, depth int) (*Type, error) {
	if depth > maxTypeResolutionDepth {
		return nil, fmt.Errorf("%w: type %s nests too deeply", ErrMalformedMetadata, token)
	}
	row := token.Row()
	if !a.tables.validRow(token.Table(), row) {
		return nil, fmt.Errorf("%w: %s", ErrTokenOutOfRange, token)
	}
	switch token.Table() {
	case TableTypeDef:
		return a.typeDefs[row-1], nil
	case TableTypeRef:
		return a.resolveTypeRef(row, depth)
	case TableTypeSpec:
		return a.resolveTypeSpec(row, depth)
	default:
		return nil, fmt.Errorf("%w: %s is not a type token", ErrTokenOutOfRange, token)
	}
}

func (a *Assembly) resolveTypeRef(row uint32, depth int) (*Type, error) {
	if ref, ok := a.typeRefs[row]; ok {
		return ref, nil
	}
	if _, ok := a.resolving[row]; ok {
		return nil, fmt.Errorf("%w: type ref %d is its own resolution scope", ErrMalformedMetadata, row)
	}
	a.resolving[row] = struct{}{}
	defer delete(a.resolving, row)

	ts := a.tables
	name, err := a.heaps.str(ts.cell(TableTypeRef, row, 1))
	if err != nil {
		return nil, err
	}
	namespace, err := a.heaps.str(ts.cell(TableTypeRef, row, 2))
	if err != nil {
		return nil, err
	}
	ref := NewTypeReference(a.Name, namespace, name)
	ref.Token = NewToken(TableTypeRef, row)

	scope, scopeRow := codedResolutionScope.decode(ts.cell(TableTypeRef, row, 0))
	switch scope {
	case TableModuleRef:
		if scopeRow >= 1 && int(scopeRow) <= len(a.moduleRefs) {
			ref.Scope = a.moduleRefs[scopeRow-1]
		}
	case TableAssemblyRef:
		if scopeRow >= 1 && int(scopeRow) <= len(a.assemblyRefs) {
			ref.Scope = a.assemblyRefs[scopeRow-1]
		}
	case TableTypeRef:
		outer, err := a.resolveType(NewToken(TableTypeRef, scopeRow), depth+1)
		if err != nil {
			return nil, err
		}
		ref.DeclaringType = outer
		ref.Namespace = ""
		ref.Scope = outer.Scope
	}
	a.typeRefs[row] = ref
	return ref, nil
}

func (a *Assembly) resolveTypeSpec(row uint32, depth int) (*Type, error) {
	if spec, ok := a.typeSpecs[row]; ok {
		return spec, nil
	}
	sig, err := a.heaps.blob(a.tables.cell(TableTypeSpec, row, 0))
	if err != nil {
		return nil, err
	}
	reader := &sigReader{asm: a, data: sig, depth: depth + 1}
	spec, err := reader.readType()
	if err != nil {
		return nil, fmt.Errorf("type spec %d: %w", row, err)
	}
	if spec.Kind != KindDefinition && spec.Kind != KindReference {
		spec.Token = NewToken(TableTypeSpec, row)
	}
	a.typeSpecs[row] = spec
	return spec, nil
}

func (a *Assembly) ResolveMethod(token Token) (*Method, error) {
	row := token.Row()
	if !a.tables.validRow(token.Table(), row) {
		return nil, fmt.Errorf("%w: %s", ErrTokenOutOfRange, token)
	}
	switch token.Table() {
	case TableMethodDef:
		return a.methods[row-1], nil
	case TableMemberRef:
		member, err := a.resolveMemberRef(row)
		if err != nil {
			return nil, err
		}
		method, ok := member.(*Method)
		if !ok {
			return nil, fmt.Errorf("%w: %s is a field reference", ErrTokenOutOfRange, token)
		}
		return method, nil
	case TableMethodSpec:
		return a.resolveMethodSpec(row)
	default:
		return nil, fmt.Errorf("%w: %s is not a method token", ErrTokenOutOfRange, token)
	}
}

func (a *Assembly) ResolveField(token Token) (*Field, error) {
	row := token.Row()
	if !a.tables.validRow(token.Table(), row) {
		return nil, fmt.Errorf("%w: %s", ErrTokenOutOfRange, token)
	}
	switch token.Table() {
	case TableField:
		return a.fields[row-1], nil
	case TableMemberRef:
		member, err := a.resolveMemberRef(row)
		if err != nil {
			return nil, err
		}
		field, ok := member.(*Field)
		if !ok {
			return nil, fmt.Errorf("%w: %s is a method reference", ErrTokenOutOfRange, token)
		}
		return field, nil
	default:
		return nil, fmt.Errorf("%w: %s is not a field token", ErrTokenOutOfRange, token)
	}
}

func (a *Assembly) resolveMemberRef(row uint32) (any, error) {
	if member, ok := a.memberRefs[row]; ok {
		return member, nil
	}
	ts := a.tables
	name, err := a.heaps.str(ts.cell(TableMemberRef, row, 1))
	if err != nil {
		return nil, err
	}
	sig, err := a.heaps.blob(ts.cell(TableMemberRef, row, 2))
	if err != nil {
		return nil, err
	}

	var parent *Type
	switch table, parentRow := codedMemberRefParent.decode(ts.cell(TableMemberRef, row, 0)); table {
	case TableTypeDef, TableTypeRef, TableTypeSpec:
		if parent, err = a.ResolveType(NewToken(table, parentRow)); err != nil {
			return nil, err
		}
	case TableMethodDef:
		if !ts.validRow(TableMethodDef, parentRow) {
			return nil, fmt.Errorf("%w: member ref %d parent", ErrTokenOutOfRange, row)
		}
		parent = a.methods[parentRow-1].DeclaringType
	case TableModuleRef:
		scope := ""
		if parentRow >= 1 && int(parentRow) <= len(a.moduleRefs) {
			scope = a.moduleRefs[parentRow-1]
		}
		parent = NewTypeReference(scope, "", "<Module>")
	default:
		return nil, fmt.Errorf("%w: member ref %d parent", ErrTokenOutOfRange, row)
	}

	token := NewToken(TableMemberRef, row)
	if len(sig) > 0 && sig[0]&0x0f == sigField {
		fieldType, err := a.decodeFieldSignature(sig)
		if err != nil {
			return nil, fmt.Errorf("member ref %s: %w", name, err)
		}
		field := &Field{Token: token, Name: name, DeclaringType: parent, FieldType: fieldType}
		a.memberRefs[row] = field
		return field, nil
	}

	decoded, err := a.decodeMethodSignature(sig)
	if err != nil {
		return nil, fmt.Errorf("member ref %s: %w", name, err)
	}
	method := &Method{
		Token:             token,
		Name:              name,
		DeclaringType:     parent,
		ReturnType:        decoded.ret,
		Parameters:        decoded.params,
		HasThis:           decoded.hasThis,
		GenericParameters: methodPlaceholderParameters(decoded.genericCount),
	}
	a.memberRefs[row] = method
	return method, nil
}

func (a *Assembly) resolveMethodSpec(row uint32) (*Method, error) {
	if spec, ok := a.methodSpecs[row]; ok {
		return spec, nil
	}
	ts := a.tables
	table, baseRow := codedMethodDefOrRef.decode(ts.cell(TableMethodSpec, row, 0))
	base, err := a.ResolveMethod(NewToken(table, baseRow))
	if err != nil {
		return nil, err
	}
	sig, err := a.heaps.blob(ts.cell(TableMethodSpec, row, 1))
	if err != nil {
		return nil, err
	}
	args, err := a.decodeInstantiation(sig)
	if err != nil {
		return nil, fmt.Errorf("method spec %d: %w", row, err)
	}
	spec := &Method{
		Token:             NewToken(TableMethodSpec, row),
		Name:              base.Name,
		DeclaringType:     base.DeclaringType,
		ReturnType:        base.ReturnType,
		Parameters:        base.Parameters,
		HasThis:           base.HasThis,
		GenericParameters: base.GenericParameters,
		GenericArguments:  args,
		ElementMethod:     base,
	}
	a.methodSpecs[row] = spec
	return spec, nil
}

func methodPlaceholderParameters(n int) []string {
	params := placeholderParameters(n)
	for i := range params {
		params[i] = "!" + params[i]
	}
	return params
}
