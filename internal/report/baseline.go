package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kant2002/MstatAnalyser/internal/safeio"
)

var (
	ErrBaselineMissing = errors.New("baseline report is missing size data")
	ErrBaselineEmpty   = errors.New("baseline total size is zero")
)

type BaselineComparison struct {
	BaselineFile   string          `json:"baselineFile,omitempty"`
	TotalSizeDelta int64           `json:"totalSizeDelta"`
	TypesDelta     int64           `json:"typesSizeDelta"`
	MethodsDelta   int64           `json:"methodsSizeDelta"`
	BlobsDelta     int64           `json:"blobsSizeDelta"`
	Assemblies     []AssemblyDelta `json:"assemblies,omitempty"`
	Regressions    []AssemblyDelta `json:"regressions,omitempty"`
	Progressions   []AssemblyDelta `json:"progressions,omitempty"`
	Added          []AssemblyDelta `json:"added,omitempty"`
	Removed        []AssemblyDelta `json:"removed,omitempty"`
	UnchangedRows  int             `json:"unchangedRows,omitempty"`
}

type AssemblyDeltaKind string

const (
	AssemblyDeltaAdded   AssemblyDeltaKind = "added"
	AssemblyDeltaRemoved AssemblyDeltaKind = "removed"
	AssemblyDeltaChanged AssemblyDeltaKind = "changed"
)

type AssemblyDelta struct {
	Kind             AssemblyDeltaKind `json:"kind"`
	Assembly         string            `json:"assembly"`
	TypesSizeDelta   int64             `json:"typesSizeDelta"`
	MethodsSizeDelta int64             `json:"methodsSizeDelta"`
	TotalSizeDelta   int64             `json:"totalSizeDelta"`
}

// Load reads a JSON report written by an earlier run. A report without a
// stored summary gets one computed from its assembly and blob rows.
func Load(path string) (Report, error) {
	data, err := safeio.ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return Report{}, fmt.Errorf("parse baseline %s: %w", path, err)
	}
	if strings.TrimSpace(rep.SchemaVersion) != "" && majorVersion(rep.SchemaVersion) != majorVersion(SchemaVersion) {
		return Report{}, fmt.Errorf("unsupported baseline schema version: %s", rep.SchemaVersion)
	}
	if rep.Summary.TotalSize == 0 {
		rep.Summary = ComputeSummary(rep.Assemblies, rep.Blobs)
	}
	return rep, nil
}

func majorVersion(version string) string {
	major, _, _ := strings.Cut(strings.TrimSpace(version), ".")
	return major
}

// ApplyBaseline attaches a comparison against baseline and sets
// SizeIncreasePercent to the relative change of the total size.
func ApplyBaseline(current, baseline Report, baselineFile string) (Report, error) {
	if len(baseline.Assemblies) == 0 && baseline.Summary.TotalSize == 0 {
		return current, ErrBaselineMissing
	}
	if baseline.Summary.TotalSize == 0 {
		baseline.Summary = ComputeSummary(baseline.Assemblies, baseline.Blobs)
	}
	if baseline.Summary.TotalSize == 0 {
		return current, ErrBaselineEmpty
	}

	comparison := ComputeBaselineComparison(current, baseline)
	comparison.BaselineFile = strings.TrimSpace(baselineFile)
	current.BaselineComparison = &comparison

	increase := float64(comparison.TotalSizeDelta) / float64(baseline.Summary.TotalSize) * 100
	current.SizeIncreasePercent = &increase
	return current, nil
}

func ComputeBaselineComparison(current, baseline Report) BaselineComparison {
	comparison := BaselineComparison{
		TotalSizeDelta: current.Summary.TotalSize - baseline.Summary.TotalSize,
		TypesDelta:     current.Summary.TypesSize - baseline.Summary.TypesSize,
		MethodsDelta:   current.Summary.MethodsSize - baseline.Summary.MethodsSize,
		BlobsDelta:     current.Summary.BlobsSize - baseline.Summary.BlobsSize,
	}

	currentByName := make(map[string]AssemblySize, len(current.Assemblies))
	for _, row := range current.Assemblies {
		currentByName[row.Assembly] = row
	}
	baselineByName := make(map[string]AssemblySize, len(baseline.Assemblies))
	for _, row := range baseline.Assemblies {
		baselineByName[row.Assembly] = row
	}

	names := make([]string, 0, len(currentByName)+len(baselineByName))
	for name := range currentByName {
		names = append(names, name)
	}
	for name := range baselineByName {
		if _, ok := currentByName[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		curr, hasCurrent := currentByName[name]
		base, hasBaseline := baselineByName[name]

		delta, ok := assemblyDelta(name, curr, hasCurrent, base, hasBaseline)
		if !ok {
			comparison.UnchangedRows++
			continue
		}
		comparison.Assemblies = append(comparison.Assemblies, delta)
		switch delta.Kind {
		case AssemblyDeltaAdded:
			comparison.Added = append(comparison.Added, delta)
		case AssemblyDeltaRemoved:
			comparison.Removed = append(comparison.Removed, delta)
		}
		if delta.TotalSizeDelta > 0 {
			comparison.Regressions = append(comparison.Regressions, delta)
		} else if delta.TotalSizeDelta < 0 {
			comparison.Progressions = append(comparison.Progressions, delta)
		}
	}
	return comparison
}

func assemblyDelta(name string, curr AssemblySize, hasCurrent bool, base AssemblySize, hasBaseline bool) (AssemblyDelta, bool) {
	delta := AssemblyDelta{Assembly: name}
	switch {
	case hasCurrent && !hasBaseline:
		delta.Kind = AssemblyDeltaAdded
		delta.TypesSizeDelta = curr.TypesSize
		delta.MethodsSizeDelta = curr.MethodsSize
		delta.TotalSizeDelta = curr.TotalSize
		return delta, true
	case !hasCurrent && hasBaseline:
		delta.Kind = AssemblyDeltaRemoved
		delta.TypesSizeDelta = -base.TypesSize
		delta.MethodsSizeDelta = -base.MethodsSize
		delta.TotalSizeDelta = -base.TotalSize
		return delta, true
	default:
		delta.Kind = AssemblyDeltaChanged
		delta.TypesSizeDelta = curr.TypesSize - base.TypesSize
		delta.MethodsSizeDelta = curr.MethodsSize - base.MethodsSize
		delta.TotalSizeDelta = curr.TotalSize - base.TotalSize
		if delta.TypesSizeDelta == 0 && delta.MethodsSizeDelta == 0 && delta.TotalSizeDelta == 0 {
			return AssemblyDelta{}, false
		}
		return delta, true
	}
}
