package app

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/kant2002/MstatAnalyser/internal/dgml"
)

// executeClassify prints the kind and extracted fields of each label, one
// row per label, in input order.
func executeClassify(req ClassifyRequest, logger *slog.Logger) string {
	classifier := dgml.Classifier{Logger: logger}
	var buffer bytes.Buffer
	writer := tabwriter.NewWriter(&buffer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(writer, "Label\tKind\tName\tDetails")
	for i, label := range req.Labels {
		node := classifier.Classify(i, label)
		_, _ = fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", label, node.Kind, node.Name, nodeDetails(node))
	}
	_ = writer.Flush()
	return buffer.String()
}

func nodeDetails(node *dgml.Node) string {
	var details []string
	if node.IsBoxedValueType {
		details = append(details, "boxed")
	}
	if node.IsUnboxingStub {
		details = append(details, "unboxing stub")
	}
	if node.AssemblyName != "" {
		details = append(details, "assembly "+node.AssemblyName)
	}
	if node.CanonicalMethodName != "" {
		details = append(details, "canonical "+node.CanonicalMethodName)
	}
	if node.HasCallSite {
		details = append(details, "call site "+strconv.Quote(node.CallSiteIdentifier))
	}
	if node.Variance != nil {
		details = append(details, "variance "+formatVariance(node.Variance))
	}
	if len(details) == 0 {
		return "-"
	}
	return strings.Join(details, ", ")
}

func formatVariance(variance []int) string {
	values := make([]string, len(variance))
	for i, v := range variance {
		values[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(values, ",") + "]"
}
