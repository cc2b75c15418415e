package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

type Formatter struct{}

func NewFormatter() Formatter {
	return Formatter{}
}

func (f Formatter) Format(report Report, format Format) (string, error) {
	switch format {
	case FormatTable:
		return formatTable(report), nil
	case FormatJSON:
		payload, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return "", err
		}
		return string(payload) + "\n", nil
	default:
		return "", ErrUnknownFormat
	}
}

func formatTable(report Report) string {
	var buffer bytes.Buffer
	appendHeader(&buffer, report)
	appendSummary(&buffer, report.Summary)

	if len(report.Assemblies) == 0 {
		buffer.WriteString("No size records to report.\n")
	} else {
		writeTable(&buffer, []string{"Assembly", "Types", "Methods", "Total"}, len(report.Assemblies), func(i int) []string {
			row := report.Assemblies[i]
			return []string{row.Assembly, formatSize(row.TypesSize), formatSize(row.MethodsSize), formatSize(row.TotalSize)}
		})
	}

	if len(report.Namespaces) > 0 {
		buffer.WriteString("\nSize by namespace:\n")
		writeTable(&buffer, []string{"Namespace", "Total"}, len(report.Namespaces), func(i int) []string {
			row := report.Namespaces[i]
			return []string{row.Namespace, formatSize(row.TotalSize)}
		})
	}
	if len(report.Blobs) > 0 {
		_, _ = fmt.Fprintf(&buffer, "\nBlobs total size %s:\n", formatSize(report.Summary.BlobsSize))
		writeTable(&buffer, []string{"Blob", "Size"}, len(report.Blobs), func(i int) []string {
			row := report.Blobs[i]
			return []string{row.Name, formatSize(row.Size)}
		})
	}
	appendDetails(&buffer, report)
	appendGraph(&buffer, report.Graph)
	appendBaseline(&buffer, report)
	appendWarnings(&buffer, report)
	return buffer.String()
}

// appendHeader names the size report by its base name; the JSON form keeps the
// resolved path.
func appendHeader(buffer *bytes.Buffer, report Report) {
	if report.File != "" {
		_, _ = fmt.Fprintf(buffer, "File: %s (format version %d)\n", filepath.Base(report.File), report.FormatVersion)
	}
	if report.Filter != nil {
		buffer.WriteString("Filter: ")
		buffer.WriteString(formatFilter(report.Filter))
		buffer.WriteString("\n")
	}
	if report.File != "" || report.Filter != nil {
		buffer.WriteString("\n")
	}
}

func formatFilter(filter *FilterSummary) string {
	parts := make([]string, 0, 2)
	if filter.Assembly != "" {
		parts = append(parts, "assembly "+filter.Assembly)
	}
	if len(filter.ExcludeAssemblies) > 0 {
		parts = append(parts, "excluding "+strings.Join(filter.ExcludeAssemblies, ", "))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

func appendSummary(buffer *bytes.Buffer, summary Summary) {
	_, _ = fmt.Fprintf(
		buffer,
		"Summary: types %s, methods %s, blobs %s, total %s bytes (%s)\n\n",
		formatSize(summary.TypesSize),
		formatSize(summary.MethodsSize),
		formatSize(summary.BlobsSize),
		formatSize(summary.TotalSize),
		formatBytes(summary.TotalSize),
	)
}

func appendDetails(buffer *bytes.Buffer, report Report) {
	if len(report.Types) > 0 {
		buffer.WriteString("\nTypes:\n")
		writeTable(buffer, []string{"Type", "Assembly", "Size", "Methods"}, len(report.Types), func(i int) []string {
			row := report.Types[i]
			name := row.Name
			if row.Placeholder {
				name += " (no type record)"
			}
			return []string{name, row.Assembly, formatSize(row.Size), formatSize(row.MethodsSize)}
		})
	}
	if len(report.Methods) > 0 {
		buffer.WriteString("\nMethods:\n")
		writeTable(buffer, []string{"Method", "Assembly", "Size", "GC Info", "EH Info", "Total"}, len(report.Methods), func(i int) []string {
			row := report.Methods[i]
			return []string{row.Name, row.Assembly, formatSize(row.Size), formatSize(row.GcInfoSize), formatSize(row.EhInfoSize), formatSize(row.TotalSize)}
		})
	}
	if len(report.Instantiations) > 0 {
		buffer.WriteString("\nGeneric instantiations:\n")
		writeTable(buffer, []string{"Definition", "Instances", "Size"}, len(report.Instantiations), func(i int) []string {
			row := report.Instantiations[i]
			return []string{row.Definition, humanize.Comma(int64(row.Instances)), formatSize(row.Size)}
		})
	}
}

func appendGraph(buffer *bytes.Buffer, graph *GraphSummary) {
	if graph == nil {
		return
	}
	name := graph.Name
	if name == "" {
		name = "graph"
	}
	_, _ = fmt.Fprintf(buffer, "\nDependency graph %s: %s nodes, %s edges, %s resolved to symbols\n",
		name, humanize.Comma(int64(graph.Nodes)), humanize.Comma(int64(graph.Edges)), humanize.Comma(int64(graph.Resolved)))
	if len(graph.Kinds) == 0 {
		return
	}
	writeTable(buffer, []string{"Kind", "Nodes"}, len(graph.Kinds), func(i int) []string {
		return []string{graph.Kinds[i].Kind, humanize.Comma(int64(graph.Kinds[i].Count))}
	})
}

func appendBaseline(buffer *bytes.Buffer, report Report) {
	comparison := report.BaselineComparison
	if comparison == nil {
		return
	}
	buffer.WriteString("\nBaseline")
	if comparison.BaselineFile != "" {
		buffer.WriteString(" ")
		buffer.WriteString(comparison.BaselineFile)
	}
	_, _ = fmt.Fprintf(buffer, ": total %s bytes", formatSignedSize(comparison.TotalSizeDelta))
	if report.SizeIncreasePercent != nil {
		_, _ = fmt.Fprintf(buffer, " (%+.2f%%)", *report.SizeIncreasePercent)
	}
	buffer.WriteString("\n")
	if len(comparison.Assemblies) == 0 {
		return
	}
	writeTable(buffer, []string{"Assembly", "Change", "Types", "Methods", "Total"}, len(comparison.Assemblies), func(i int) []string {
		row := comparison.Assemblies[i]
		return []string{row.Assembly, string(row.Kind), formatSignedSize(row.TypesSizeDelta), formatSignedSize(row.MethodsSizeDelta), formatSignedSize(row.TotalSizeDelta)}
	})
}

func appendWarnings(buffer *bytes.Buffer, report Report) {
	if len(report.Warnings) == 0 {
		return
	}
	buffer.WriteString("\nWarnings:\n")
	for _, warning := range report.Warnings {
		buffer.WriteString("- ")
		buffer.WriteString(warning)
		buffer.WriteString("\n")
	}
}

func writeTable(buffer *bytes.Buffer, columns []string, rows int, row func(int) []string) {
	writer := tabwriter.NewWriter(buffer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(writer, strings.Join(columns, "\t"))
	for i := range rows {
		_, _ = fmt.Fprintln(writer, strings.Join(row(i), "\t"))
	}
	_ = writer.Flush()
}

func formatSize(value int64) string {
	return humanize.Comma(value)
}

func formatSignedSize(value int64) string {
	if value > 0 {
		return "+" + humanize.Comma(value)
	}
	return humanize.Comma(value)
}

func formatBytes(value int64) string {
	if value < 0 {
		return "-" + humanize.IBytes(uint64(-value))
	}
	return humanize.IBytes(uint64(value))
}
