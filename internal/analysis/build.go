package analysis

import (
	"cmp"
	"slices"

	"github.com/kant2002/MstatAnalyser/internal/filter"
	"github.com/kant2002/MstatAnalyser/internal/report"
	"github.com/kant2002/MstatAnalyser/internal/sizetable"
)

type sizeView struct {
	path     string
	version  int
	filter   *filter.Filter
	request  Request
	types    []*sizetable.TypeStats
	methods  []*sizetable.MethodStats
	blobs    []sizetable.BlobStats
	warnings []string
}

// buildReport turns filtered size records into report rows. Namespaces are
// listed only for unfiltered runs and blobs only without an inclusion glob,
// since neither can be attributed to an assembly.
func buildReport(view sizeView) report.Report {
	rep := report.Report{
		SchemaVersion: report.SchemaVersion,
		File:          view.path,
		FormatVersion: view.version,
		Detailed:      view.request.Detailed,
		Assemblies:    assemblyRows(sizetable.ByAssembly(view.types, view.methods)),
		Warnings:      view.warnings,
	}
	if view.filter.Active() {
		rep.Filter = &report.FilterSummary{
			Assembly:          view.request.Assembly,
			ExcludeAssemblies: view.request.ExcludeAssemblies,
		}
	} else {
		rep.Namespaces = namespaceRows(sizetable.ByNamespace(view.types))
	}
	if !view.filter.HasInclude() {
		rep.Blobs = blobRows(view.blobs)
	}

	rep.Summary = report.ComputeSummary(rep.Assemblies, rep.Blobs)
	rep.Summary.MethodCount = len(view.methods)
	for _, stat := range view.types {
		if !stat.Placeholder {
			rep.Summary.TypeCount++
		}
	}

	if view.request.Detailed {
		rep.Types = typeRows(view.types)
		rep.Methods = methodRows(view.methods)
		rep.Instantiations = instantiationRows(sizetable.ByGenericDefinition(view.types))
	}
	return rep
}

func assemblyRows(sizes []sizetable.AssemblySize) []report.AssemblySize {
	rows := make([]report.AssemblySize, 0, len(sizes))
	for _, size := range sizes {
		rows = append(rows, report.AssemblySize{
			Assembly:    size.Assembly,
			TypesSize:   int64(size.TypesSize),
			MethodsSize: int64(size.MethodsSize),
			TotalSize:   int64(size.Total()),
		})
	}
	return rows
}

func namespaceRows(sizes []sizetable.NamespaceSize) []report.NamespaceSize {
	rows := make([]report.NamespaceSize, 0, len(sizes))
	for _, size := range sizes {
		rows = append(rows, report.NamespaceSize{Namespace: size.Namespace, TotalSize: int64(size.Total())})
	}
	return rows
}

func blobRows(blobs []sizetable.BlobStats) []report.BlobSize {
	rows := make([]report.BlobSize, 0, len(blobs))
	for _, blob := range blobs {
		rows = append(rows, report.BlobSize{Name: blob.Name, Size: int64(blob.Size)})
	}
	slices.SortStableFunc(rows, func(a, b report.BlobSize) int {
		return cmp.Compare(b.Size, a.Size)
	})
	return rows
}

func typeRows(types []*sizetable.TypeStats) []report.TypeSize {
	rows := make([]report.TypeSize, 0, len(types))
	for _, stat := range types {
		rows = append(rows, report.TypeSize{
			Name:        stat.Type.FullName(),
			Assembly:    stat.PrimaryAssembly(),
			MangledName: stat.MangledName,
			Size:        int64(stat.Size),
			MethodsSize: int64(stat.MethodsSize()),
			Placeholder: stat.Placeholder,
		})
	}
	slices.SortStableFunc(rows, func(a, b report.TypeSize) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return rows
}

func methodRows(methods []*sizetable.MethodStats) []report.MethodSize {
	rows := make([]report.MethodSize, 0, len(methods))
	for _, stat := range methods {
		rows = append(rows, report.MethodSize{
			Name:        stat.Method.FullName(),
			Assembly:    stat.PrimaryAssembly(),
			MangledName: stat.MangledName,
			Size:        int64(stat.Size),
			GcInfoSize:  int64(stat.GcInfoSize),
			EhInfoSize:  int64(stat.EhInfoSize),
			TotalSize:   int64(stat.TotalSize()),
		})
	}
	slices.SortStableFunc(rows, func(a, b report.MethodSize) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return rows
}

func instantiationRows(sizes []sizetable.InstantiationSize) []report.InstantiationSize {
	rows := make([]report.InstantiationSize, 0, len(sizes))
	for _, size := range sizes {
		rows = append(rows, report.InstantiationSize{
			Definition: size.Definition,
			Instances:  size.Instances,
			Size:       int64(size.Size),
		})
	}
	return rows
}
