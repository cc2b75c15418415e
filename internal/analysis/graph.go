package analysis

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/kant2002/MstatAnalyser/internal/dgml"
	"github.com/kant2002/MstatAnalyser/internal/metadata"
	"github.com/kant2002/MstatAnalyser/internal/report"
	"github.com/kant2002/MstatAnalyser/internal/safeio"
	"github.com/kant2002/MstatAnalyser/internal/sizetable"
	"github.com/kant2002/MstatAnalyser/internal/symbols"
)

// analyseGraph parses the graph dump, resolves generic nodes against the
// types of the size report and summarises the result.
func (s *Service) analyseGraph(ctx context.Context, req Request, asm *metadata.Assembly, stats *sizetable.Stats) (*report.GraphSummary, error) {
	logger := requestLogger(req)
	started := time.Now()
	data, err := safeio.ReadFile(req.GraphPath)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	parser := dgml.Parser{Classifier: dgml.Classifier{Logger: logger}}
	graph, err := parser.Parse(ctx, "", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse graph %s: %w", req.GraphPath, err)
	}
	if graph.Name == "" {
		graph.Name = displayName(req.GraphPath)
	}
	req.Metrics.ObserveStage("graph", time.Since(started).Seconds())

	started = time.Now()
	matcher := newMatcher(asm, stats)
	workers := req.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	resolved, err := dgml.Resolve(ctx, graph, matcher, workers)
	if err != nil {
		return nil, err
	}
	req.Metrics.ObserveStage("resolve", time.Since(started).Seconds())
	logger.Debug("resolved graph nodes", "graph", graph.Name, "candidates", matcher.Len(), "resolved", resolved)

	summary := &report.GraphSummary{
		Name:     graph.Name,
		Nodes:    graph.Len(),
		Edges:    graph.EdgeCount(),
		Resolved: resolved,
	}
	byName := map[string]int{}
	for kind, count := range graph.KindCounts() {
		summary.Kinds = append(summary.Kinds, report.KindCount{Kind: kind.String(), Count: count})
		byName[kind.String()] = count
	}
	slices.SortFunc(summary.Kinds, func(a, b report.KindCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Kind, b.Kind)
	})
	req.Metrics.RecordGraph(byName, summary.Edges)
	req.Metrics.RecordResolved(resolved)
	return summary, nil
}

// newMatcher pools the definitions of the report image together with every
// type and method the size records point at, so references into other
// assemblies resolve as well.
func newMatcher(asm *metadata.Assembly, stats *sizetable.Stats) *symbols.Matcher {
	types := asm.Types()
	methods := make([]*metadata.Method, 0, len(stats.Methods))
	for _, stat := range stats.Types {
		types = append(types, stat.Type)
	}
	for _, stat := range stats.Methods {
		types = append(types, stat.Method.DeclaringType)
		types = append(types, stat.Method.GenericArguments...)
		methods = append(methods, stat.Method)
	}
	matcher := symbols.New(symbols.Pool(types...))
	matcher.AddMethods(methods...)
	return matcher
}
