package report

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

const SchemaVersion = "1.0.0"

var ErrUnknownFormat = errors.New("unknown format")

func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, value)
	}
}

// Report is the result of one analysis run. Sizes are in bytes.
type Report struct {
	SchemaVersion       string              `json:"schemaVersion"`
	GeneratedAt         time.Time           `json:"generatedAt"`
	File                string              `json:"file"`
	GraphFile           string              `json:"graphFile,omitempty"`
	FormatVersion       int                 `json:"formatVersion"`
	Detailed            bool                `json:"detailed,omitempty"`
	Filter              *FilterSummary      `json:"filter,omitempty"`
	Summary             Summary             `json:"summary"`
	Assemblies          []AssemblySize      `json:"assemblies"`
	Namespaces          []NamespaceSize     `json:"namespaces,omitempty"`
	Blobs               []BlobSize          `json:"blobs,omitempty"`
	Types               []TypeSize          `json:"types,omitempty"`
	Methods             []MethodSize        `json:"methods,omitempty"`
	Instantiations      []InstantiationSize `json:"instantiations,omitempty"`
	Graph               *GraphSummary       `json:"graph,omitempty"`
	Warnings            []string            `json:"warnings,omitempty"`
	SizeIncreasePercent *float64            `json:"sizeIncreasePercent,omitempty"`
	BaselineComparison  *BaselineComparison `json:"baselineComparison,omitempty"`
}

type FilterSummary struct {
	Assembly          string   `json:"assembly,omitempty"`
	ExcludeAssemblies []string `json:"excludeAssemblies,omitempty"`
}

type Summary struct {
	TypeCount   int   `json:"typeCount"`
	MethodCount int   `json:"methodCount"`
	BlobCount   int   `json:"blobCount"`
	TypesSize   int64 `json:"typesSize"`
	MethodsSize int64 `json:"methodsSize"`
	BlobsSize   int64 `json:"blobsSize"`
	TotalSize   int64 `json:"totalSize"`
}

type AssemblySize struct {
	Assembly    string `json:"assembly"`
	TypesSize   int64  `json:"typesSize"`
	MethodsSize int64  `json:"methodsSize"`
	TotalSize   int64  `json:"totalSize"`
}

type NamespaceSize struct {
	Namespace string `json:"namespace"`
	TotalSize int64  `json:"totalSize"`
}

type BlobSize struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type TypeSize struct {
	Name        string `json:"name"`
	Assembly    string `json:"assembly"`
	MangledName string `json:"mangledName,omitempty"`
	Size        int64  `json:"size"`
	MethodsSize int64  `json:"methodsSize"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

type MethodSize struct {
	Name        string `json:"name"`
	Assembly    string `json:"assembly"`
	MangledName string `json:"mangledName,omitempty"`
	Size        int64  `json:"size"`
	GcInfoSize  int64  `json:"gcInfoSize"`
	EhInfoSize  int64  `json:"ehInfoSize"`
	TotalSize   int64  `json:"totalSize"`
}

type InstantiationSize struct {
	Definition string `json:"definition"`
	Instances  int    `json:"instances"`
	Size       int64  `json:"size"`
}

type GraphSummary struct {
	Name     string      `json:"name,omitempty"`
	Nodes    int         `json:"nodes"`
	Edges    int         `json:"edges"`
	Resolved int         `json:"resolved"`
	Kinds    []KindCount `json:"kinds,omitempty"`
}

type KindCount struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// ComputeSummary totals the assembly rows and the blob list. Type and method
// counts are left to the caller, since detailed lists may be omitted.
func ComputeSummary(assemblies []AssemblySize, blobs []BlobSize) Summary {
	summary := Summary{BlobCount: len(blobs)}
	for _, assembly := range assemblies {
		summary.TypesSize += assembly.TypesSize
		summary.MethodsSize += assembly.MethodsSize
	}
	for _, blob := range blobs {
		summary.BlobsSize += blob.Size
	}
	summary.TotalSize = summary.TypesSize + summary.MethodsSize + summary.BlobsSize
	return summary
}
