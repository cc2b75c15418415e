package sizetable

import (
	"errors"
	"fmt"

	"github.com/kant2002/MstatAnalyser/internal/metadata"
)

// Names of the global-type methods whose IL carries the size records.
const (
	TypesMethod   = "Types"
	MethodsMethod = "Methods"
	BlobsMethod   = "Blobs"
)

const noNameIndex = -1

var (
	ErrNoSizeData      = errors.New("no size data")
	ErrMalformedRecord = errors.New("malformed size record")
)

// Source exposes the operand streams of the size-report methods.
type Source interface {
	FormatVersion() int
	Operands(methodName string) ([]metadata.Operand, error)
}

type Stats struct {
	Version int
	Types   []*TypeStats
	Methods []*MethodStats
	Blobs   []BlobStats
}

// Decode reads the type, method and blob records of a size report. Every
// method is attributed to a type record; declaring types without their own
// record get a zero-size placeholder.
func Decode(src Source) (*Stats, error) {
	version := src.FormatVersion()
	typeSlots, err := recordSlots(src, TypesMethod)
	if err != nil {
		return nil, err
	}
	methodSlots, err := recordSlots(src, MethodsMethod)
	if err != nil {
		return nil, err
	}
	blobSlots, err := recordSlots(src, BlobsMethod)
	if err != nil {
		return nil, err
	}

	methods, err := decodeMethods(methodSlots, version)
	if err != nil {
		return nil, err
	}
	types, err := decodeTypes(typeSlots, version)
	if err != nil {
		return nil, err
	}
	blobs, err := decodeBlobs(blobSlots)
	if err != nil {
		return nil, err
	}

	return &Stats{
		Version: version,
		Types:   attachMethods(types, methods),
		Methods: methods,
		Blobs:   blobs,
	}, nil
}

// recordSlots returns the operands that carry values; operand-less
// instructions such as ret never occupy a record slot. Only a missing method
// means the image is not a size report; any other failure is corruption.
func recordSlots(src Source, method string) ([]metadata.Operand, error) {
	operands, err := src.Operands(method)
	if errors.Is(err, metadata.ErrMethodNotFound) {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoSizeData, method, err)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s records: %w", method, err)
	}
	slots := operands[:0:0]
	for _, operand := range operands {
		if operand.Kind != metadata.OperandNone {
			slots = append(slots, operand)
		}
	}
	return slots, nil
}

// hasNameIndex reports whether records of this format version end with a
// mangled-name index.
func hasNameIndex(version int) bool {
	return version >= 2
}

func typeRecordWidth(version int) int {
	if hasNameIndex(version) {
		return 3
	}
	return 2
}

func methodRecordWidth(version int) int {
	if hasNameIndex(version) {
		return 5
	}
	return 4
}

func decodeTypes(slots []metadata.Operand, version int) ([]*TypeStats, error) {
	width := typeRecordWidth(version)
	types := make([]*TypeStats, 0, len(slots)/width)
	for i := 0; i+width <= len(slots); i += width {
		record := slots[i : i+width]
		if err := expectKinds(TypesMethod, i, record, metadata.OperandType, metadata.OperandInt); err != nil {
			return nil, err
		}
		stat := &TypeStats{Type: record[0].Type, Size: int(record[1].Int), NameIndex: noNameIndex}
		if width == 3 {
			if record[2].Kind != metadata.OperandInt {
				return nil, malformed(TypesMethod, i+2, metadata.OperandInt, record[2].Kind)
			}
			stat.NameIndex = int(record[2].Int)
		}
		types = append(types, stat)
	}
	return types, nil
}

func decodeMethods(slots []metadata.Operand, version int) ([]*MethodStats, error) {
	width := methodRecordWidth(version)
	methods := make([]*MethodStats, 0, len(slots)/width)
	for i := 0; i+width <= len(slots); i += width {
		record := slots[i : i+width]
		if err := expectKinds(MethodsMethod, i, record, metadata.OperandMethod, metadata.OperandInt, metadata.OperandInt, metadata.OperandInt); err != nil {
			return nil, err
		}
		stat := &MethodStats{
			Method:     record[0].Method,
			Size:       int(record[1].Int),
			GcInfoSize: int(record[2].Int),
			EhInfoSize: int(record[3].Int),
			NameIndex:  noNameIndex,
		}
		if width == 5 {
			if record[4].Kind != metadata.OperandInt {
				return nil, malformed(MethodsMethod, i+4, metadata.OperandInt, record[4].Kind)
			}
			stat.NameIndex = int(record[4].Int)
		}
		methods = append(methods, stat)
	}
	return methods, nil
}

func decodeBlobs(slots []metadata.Operand) ([]BlobStats, error) {
	blobs := make([]BlobStats, 0, len(slots)/2)
	for i := 0; i+2 <= len(slots); i += 2 {
		record := slots[i : i+2]
		if err := expectKinds(BlobsMethod, i, record, metadata.OperandString, metadata.OperandInt); err != nil {
			return nil, err
		}
		blobs = append(blobs, BlobStats{Name: record[0].String, Size: int(record[1].Int)})
	}
	return blobs, nil
}

func expectKinds(method string, offset int, record []metadata.Operand, kinds ...metadata.OperandKind) error {
	for i, kind := range kinds {
		if record[i].Kind != kind {
			return malformed(method, offset+i, kind, record[i].Kind)
		}
	}
	return nil
}

func malformed(method string, slot int, want, got metadata.OperandKind) error {
	return fmt.Errorf("%w: %s slot %d: expected %s operand, got %s", ErrMalformedRecord, method, slot, want, got)
}

func attachMethods(types []*TypeStats, methods []*MethodStats) []*TypeStats {
	byIdentity := make(map[any]*TypeStats, len(types))
	for _, stat := range types {
		key := typeIdentity(stat.Type)
		if _, ok := byIdentity[key]; !ok {
			byIdentity[key] = stat
		}
	}
	for _, method := range methods {
		declaring := method.Method.DeclaringType
		key := typeIdentity(declaring)
		owner, ok := byIdentity[key]
		if !ok {
			owner = &TypeStats{Type: declaring, NameIndex: noNameIndex, Placeholder: true}
			byIdentity[key] = owner
			types = append(types, owner)
		}
		owner.Methods = append(owner.Methods, method)
	}
	return types
}

// typeIdentity keys a type by its metadata token, falling back to the pointer
// for types that were synthesized without one.
func typeIdentity(t *metadata.Type) any {
	if t != nil && t.Token != 0 {
		return t.Token
	}
	return t
}
