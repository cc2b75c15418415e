package metadata

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

type TableID uint8

const (
	TableModule                 TableID = 0x00
	TableTypeRef                TableID = 0x01
	TableTypeDef                TableID = 0x02
	TableFieldPtr               TableID = 0x03
	TableField                  TableID = 0x04
	TableMethodPtr              TableID = 0x05
	TableMethodDef              TableID = 0x06
	TableParamPtr               TableID = 0x07
	TableParam                  TableID = 0x08
	TableInterfaceImpl          TableID = 0x09
	TableMemberRef              TableID = 0x0a
	TableConstant               TableID = 0x0b
	TableCustomAttribute        TableID = 0x0c
	TableFieldMarshal           TableID = 0x0d
	TableDeclSecurity           TableID = 0x0e
	TableClassLayout            TableID = 0x0f
	TableFieldLayout            TableID = 0x10
	TableStandAloneSig          TableID = 0x11
	TableEventMap               TableID = 0x12
	TableEventPtr               TableID = 0x13
	TableEvent                  TableID = 0x14
	TablePropertyMap            TableID = 0x15
	TablePropertyPtr            TableID = 0x16
	TableProperty               TableID = 0x17
	TableMethodSemantics        TableID = 0x18
	TableMethodImpl             TableID = 0x19
	TableModuleRef              TableID = 0x1a
	TableTypeSpec               TableID = 0x1b
	TableImplMap                TableID = 0x1c
	TableFieldRVA               TableID = 0x1d
	TableEncLog                 TableID = 0x1e
	TableEncMap                 TableID = 0x1f
	TableAssembly               TableID = 0x20
	TableAssemblyProcessor      TableID = 0x21
	TableAssemblyOS             TableID = 0x22
	TableAssemblyRef            TableID = 0x23
	TableAssemblyRefProcessor   TableID = 0x24
	TableAssemblyRefOS          TableID = 0x25
	TableFile                   TableID = 0x26
	TableExportedType           TableID = 0x27
	TableManifestResource       TableID = 0x28
	TableNestedClass            TableID = 0x29
	TableGenericParam           TableID = 0x2a
	TableMethodSpec             TableID = 0x2b
	TableGenericParamConstraint TableID = 0x2c

	// Token-only tables that never appear in the #~ stream.
	TableUserString TableID = 0x70

	tableCount = int(TableGenericParamConstraint) + 1
)

// noTable fills unused tags of a coded index family.
const noTable TableID = 0xff

type codedIndex struct {
	bits   int
	tables []TableID
}

var (
	codedTypeDefOrRef    = codedIndex{2, []TableID{TableTypeDef, TableTypeRef, TableTypeSpec}}
	codedHasConstant     = codedIndex{2, []TableID{TableField, TableParam, TableProperty}}
	codedHasFieldMarshal = codedIndex{1, []TableID{TableField, TableParam}}
	codedHasDeclSecurity = codedIndex{2, []TableID{TableTypeDef, TableMethodDef, TableAssembly}}
	codedMemberRefParent = codedIndex{3, []TableID{TableTypeDef, TableTypeRef, TableModuleRef, TableMethodDef, TableTypeSpec}}
	codedHasSemantics    = codedIndex{1, []TableID{TableEvent, TableProperty}}
	codedMethodDefOrRef  = codedIndex{1, []TableID{TableMethodDef, TableMemberRef}}
	codedMemberForwarded = codedIndex{1, []TableID{TableField, TableMethodDef}}
	codedImplementation  = codedIndex{2, []TableID{TableFile, TableAssemblyRef, TableExportedType}}
	codedCustomAttrType  = codedIndex{3, []TableID{noTable, noTable, TableMethodDef, TableMemberRef, noTable}}
	codedResolutionScope = codedIndex{2, []TableID{TableModule, TableModuleRef, TableAssemblyRef, TableTypeRef}}
	codedTypeOrMethodDef = codedIndex{1, []TableID{TableTypeDef, TableMethodDef}}
	codedHasCustomAttr   = codedIndex{5, []TableID{
		TableMethodDef, TableField, TableTypeRef, TableTypeDef, TableParam, TableInterfaceImpl, TableMemberRef,
		TableModule, TableDeclSecurity, TableProperty, TableEvent, TableStandAloneSig, TableModuleRef, TableTypeSpec,
		TableAssembly, TableAssemblyRef, TableFile, TableExportedType, TableManifestResource, TableGenericParam,
		TableGenericParamConstraint, TableMethodSpec,
	}}
)

// decode splits a coded index value into its target table and row.
func (c codedIndex) decode(value uint32) (TableID, uint32) {
	tag := value & (1<<c.bits - 1)
	if int(tag) >= len(c.tables) {
		return noTable, 0
	}
	return c.tables[tag], value >> c.bits
}

type columnKind uint8

const (
	colU16 columnKind = iota
	colU32
	colString
	colGUID
	colBlob
	colTable
	colCoded
)

type column struct {
	kind  columnKind
	table TableID
	coded codedIndex
}

var (
	u16    = column{kind: colU16}
	u32    = column{kind: colU32}
	str    = column{kind: colString}
	guid   = column{kind: colGUID}
	blob   = column{kind: colBlob}
	idx    = func(t TableID) column { return column{kind: colTable, table: t} }
	coded  = func(c codedIndex) column { return column{kind: colCoded, coded: c} }
	schema = [tableCount][]column{
		TableModule:                 {u16, str, guid, guid, guid},
		TableTypeRef:                {coded(codedResolutionScope), str, str},
		TableTypeDef:                {u32, str, str, coded(codedTypeDefOrRef), idx(TableField), idx(TableMethodDef)},
		TableFieldPtr:               {idx(TableField)},
		TableField:                  {u16, str, blob},
		TableMethodPtr:              {idx(TableMethodDef)},
		TableMethodDef:              {u32, u16, u16, str, blob, idx(TableParam)},
		TableParamPtr:               {idx(TableParam)},
		TableParam:                  {u16, u16, str},
		TableInterfaceImpl:          {idx(TableTypeDef), coded(codedTypeDefOrRef)},
		TableMemberRef:              {coded(codedMemberRefParent), str, blob},
		TableConstant:               {u16, coded(codedHasConstant), blob},
		TableCustomAttribute:        {coded(codedHasCustomAttr), coded(codedCustomAttrType), blob},
		TableFieldMarshal:           {coded(codedHasFieldMarshal), blob},
		TableDeclSecurity:           {u16, coded(codedHasDeclSecurity), blob},
		TableClassLayout:            {u16, u32, idx(TableTypeDef)},
		TableFieldLayout:            {u32, idx(TableField)},
		TableStandAloneSig:          {blob},
		TableEventMap:               {idx(TableTypeDef), idx(TableEvent)},
		TableEventPtr:               {idx(TableEvent)},
		TableEvent:                  {u16, str, coded(codedTypeDefOrRef)},
		TablePropertyMap:            {idx(TableTypeDef), idx(TableProperty)},
		TablePropertyPtr:            {idx(TableProperty)},
		TableProperty:               {u16, str, blob},
		TableMethodSemantics:        {u16, idx(TableMethodDef), coded(codedHasSemantics)},
		TableMethodImpl:             {idx(TableTypeDef), coded(codedMethodDefOrRef), coded(codedMethodDefOrRef)},
		TableModuleRef:              {str},
		TableTypeSpec:               {blob},
		TableImplMap:                {u16, coded(codedMemberForwarded), str, idx(TableModuleRef)},
		TableFieldRVA:               {u32, idx(TableField)},
		TableEncLog:                 {u32, u32},
		TableEncMap:                 {u32},
		TableAssembly:               {u32, u16, u16, u16, u16, u32, blob, str, str},
		TableAssemblyProcessor:      {u32},
		TableAssemblyOS:             {u32, u32, u32},
		TableAssemblyRef:            {u16, u16, u16, u16, u32, blob, str, str, blob},
		TableAssemblyRefProcessor:   {u32, idx(TableAssemblyRef)},
		TableAssemblyRefOS:          {u32, u32, u32, idx(TableAssemblyRef)},
		TableFile:                   {u32, str, blob},
		TableExportedType:           {u32, u32, str, str, coded(codedImplementation)},
		TableManifestResource:       {u32, u32, str, coded(codedImplementation)},
		TableNestedClass:            {idx(TableTypeDef), idx(TableTypeDef)},
		TableGenericParam:           {u16, u16, coded(codedTypeOrMethodDef), str},
		TableMethodSpec:             {coded(codedMethodDefOrRef), blob},
		TableGenericParamConstraint: {idx(TableGenericParam), coded(codedTypeDefOrRef)},
	}
)

type tableInfo struct {
	rows    uint32
	offset  int
	rowSize int
	offsets []int
	sizes   []int
}

// tableStream is the decoded #~ stream: row counts, column layout and raw rows.
type tableStream struct {
	data   []byte
	tables [tableCount]tableInfo
}

const (
	heapStringsWide = 0x01
	heapGUIDWide    = 0x02
	heapBlobWide    = 0x04
	heapExtraData   = 0x40
)

func parseTableStream(data []byte) (*tableStream, error) {
	if len(data) < 24 {
		return nil, fmt.Errorf("%w: table stream header truncated", ErrMalformedMetadata)
	}
	heapSizes := data[6]
	valid := binary.LittleEndian.Uint64(data[8:16])
	if valid>>tableCount != 0 {
		return nil, fmt.Errorf("%w: unsupported tables present (mask %#x)", ErrMalformedMetadata, valid)
	}

	ts := &tableStream{data: data}
	pos := 24
	for id := 0; id < tableCount; id++ {
		if valid&(1<<id) == 0 {
			continue
		}
		if pos+4 > len(data) {
			return nil, fmt.Errorf("%w: row counts truncated", ErrMalformedMetadata)
		}
		ts.tables[id].rows = binary.LittleEndian.Uint32(data[pos:])
		pos += 4
	}
	if heapSizes&heapExtraData != 0 {
		pos += 4
	}

	stringSize := heapIndexSize(heapSizes&heapStringsWide != 0)
	guidSize := heapIndexSize(heapSizes&heapGUIDWide != 0)
	blobSize := heapIndexSize(heapSizes&heapBlobWide != 0)

	for id := 0; id < tableCount; id++ {
		info := &ts.tables[id]
		cols := schema[id]
		info.offsets = make([]int, len(cols))
		info.sizes = make([]int, len(cols))
		size := 0
		for i, col := range cols {
			var width int
			switch col.kind {
			case colU16:
				width = 2
			case colU32:
				width = 4
			case colString:
				width = stringSize
			case colGUID:
				width = guidSize
			case colBlob:
				width = blobSize
			case colTable:
				width = ts.simpleIndexSize(col.table)
			case colCoded:
				width = ts.codedIndexSize(col.coded)
			}
			info.offsets[i] = size
			info.sizes[i] = width
			size += width
		}
		info.rowSize = size
		info.offset = pos
		pos += size * int(info.rows)
	}
	if pos > len(data) {
		return nil, fmt.Errorf("%w: table rows exceed stream (%d > %d)", ErrMalformedMetadata, pos, len(data))
	}
	return ts, nil
}

func heapIndexSize(wide bool) int {
	if wide {
		return 4
	}
	return 2
}

func (ts *tableStream) simpleIndexSize(table TableID) int {
	if ts.tables[table].rows > 0xffff {
		return 4
	}
	return 2
}

func (ts *tableStream) codedIndexSize(c codedIndex) int {
	var maxRows uint32
	for _, t := range c.tables {
		if t == noTable {
			continue
		}
		maxRows = max(maxRows, ts.tables[t].rows)
	}
	if bits.Len32(maxRows) > 16-c.bits {
		return 4
	}
	return 2
}

func (ts *tableStream) rows(table TableID) uint32 {
	return ts.tables[table].rows
}

// cell returns column col of the 1-based row.
func (ts *tableStream) cell(table TableID, row uint32, col int) uint32 {
	info := &ts.tables[table]
	at := info.offset + int(row-1)*info.rowSize + info.offsets[col]
	if info.sizes[col] == 2 {
		return uint32(binary.LittleEndian.Uint16(ts.data[at:]))
	}
	return binary.LittleEndian.Uint32(ts.data[at:])
}

func (ts *tableStream) validRow(table TableID, row uint32) bool {
	return row >= 1 && row <= ts.tables[table].rows
}
