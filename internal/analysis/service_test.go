package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kant2002/MstatAnalyser/internal/dgml"
	"github.com/kant2002/MstatAnalyser/internal/metrics"
	"github.com/kant2002/MstatAnalyser/internal/report"
	"github.com/kant2002/MstatAnalyser/internal/sizetable"
	"github.com/kant2002/MstatAnalyser/internal/testutil"
)

const unexpectedErrFmt = "unexpected error: %v"

var fixedTime = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

// writeSizeReport writes a report holding List<Foo> and Foo type records, a
// method on List<Foo>, a method on Bar (which has no type record) and one
// blob.
func writeSizeReport(t *testing.T, dir string, major uint16, withNames bool) string {
	t.Helper()

	b := testutil.NewImageBuilder("App.mstat", major, 0)
	core := b.AssemblyRef("System.Private.CoreLib")
	lib := b.AssemblyRef("Lib")
	list := b.TypeRef(core, "System.Collections.Generic", "List`1")
	foo := b.TypeRef(lib, "Lib", "Foo")
	bar := b.TypeRef(lib, "Lib.Sub", "Bar")
	listOfFoo := b.GenericInstance(list, foo)
	add := b.MethodRef(listOfFoo, "Add", testutil.ElemInt32)
	run := b.MethodRef(bar, "Run")
	frozen := b.UserString("__FrozenData")

	nameIndex := func(il *testutil.IL, index int32) *testutil.IL {
		if major >= 2 {
			il.LdcI4(index)
		}
		return il
	}
	types := &testutil.IL{}
	nameIndex(types.Ldtoken(listOfFoo).LdcI4(24), 0)
	nameIndex(types.Ldtoken(foo).LdcI4(16), 1)
	types.Ret()
	methods := &testutil.IL{}
	nameIndex(methods.Ldtoken(add).LdcI4(100).LdcI4(10).LdcI4(2), 2)
	nameIndex(methods.Ldtoken(run).LdcI4(50).LdcI4(5).LdcI4(0), -1)
	methods.Ret()
	blobs := (&testutil.IL{}).Ldstr(frozen).LdcI4(64).Ret()

	b.Method(sizetable.TypesMethod, types.Bytes())
	b.Method(sizetable.MethodsMethod, methods.Bytes())
	b.Method(sizetable.BlobsMethod, blobs.Bytes())
	if withNames {
		b.Names("S_P_CoreLib_System_Collections_Generic_List_1<Lib_Lib_Foo>", "Lib_Lib_Foo", "S_P_CoreLib_System_Collections_Generic_List_1<Lib_Lib_Foo>__Add")
	}

	return testutil.WriteImage(t, dir, "App.mstat", b)
}

const sampleGraph = `<?xml version="1.0" encoding="utf-8"?>
<DirectedGraph Title="App.scan.dgml" xmlns="http://schemas.microsoft.com/vs/2009/dgml">
  <Nodes>
    <Node Id="0" Label="Region __GCStaticRegionStart" />
    <Node Id="1" Label="Lib_Lib_Foo" />
    <Node Id="2" Label="Lib_Lib_Sub_Bar__Run" />
    <Node Id="3" Label="S_P_CoreLib_System_Collections_Generic_List_1&lt;Lib_Lib_Foo&gt;" />
    <Node Id="4" Label="Unknown_Symbol" />
  </Nodes>
  <Links>
    <Link Source="0" Target="1" Reason="Static base" />
    <Link Source="1" Target="2" Reason="Method" />
    <Link Source="2" Target="3" Reason="Call" />
    <Link Source="2" Target="3" Reason="Call again" />
  </Links>
</DirectedGraph>
`

func newTestService() *Service {
	return &Service{Now: func() time.Time { return fixedTime }}
}

func TestAnalyseSummary(t *testing.T) {
	path := writeSizeReport(t, t.TempDir(), 2, true)

	rep, err := newTestService().Analyse(context.Background(), Request{Path: path})
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}

	if rep.SchemaVersion != report.SchemaVersion || rep.FormatVersion != 2 || rep.File != path {
		t.Fatalf("unexpected report header: %+v", rep)
	}
	if !rep.GeneratedAt.Equal(fixedTime) {
		t.Fatalf("expected generatedAt %v, got %v", fixedTime, rep.GeneratedAt)
	}
	wantSummary := report.Summary{TypeCount: 2, MethodCount: 2, BlobCount: 1, TypesSize: 40, MethodsSize: 167, BlobsSize: 64, TotalSize: 271}
	if rep.Summary != wantSummary {
		t.Fatalf("expected summary %+v, got %+v", wantSummary, rep.Summary)
	}
	wantAssemblies := []report.AssemblySize{
		{Assembly: "System.Private.CoreLib", TypesSize: 24, MethodsSize: 112, TotalSize: 136},
		{Assembly: "Lib", TypesSize: 16, MethodsSize: 55, TotalSize: 71},
	}
	if len(rep.Assemblies) != len(wantAssemblies) {
		t.Fatalf("expected %d assemblies, got %+v", len(wantAssemblies), rep.Assemblies)
	}
	for i, want := range wantAssemblies {
		if rep.Assemblies[i] != want {
			t.Fatalf("expected assembly row %+v, got %+v", want, rep.Assemblies[i])
		}
	}
	wantNamespaces := []report.NamespaceSize{
		{Namespace: "System.Collections.Generic", TotalSize: 136},
		{Namespace: "Lib.Sub", TotalSize: 55},
		{Namespace: "Lib", TotalSize: 16},
	}
	for i, want := range wantNamespaces {
		if i >= len(rep.Namespaces) || rep.Namespaces[i] != want {
			t.Fatalf("expected namespace rows %+v, got %+v", wantNamespaces, rep.Namespaces)
		}
	}
	if len(rep.Blobs) != 1 || rep.Blobs[0] != (report.BlobSize{Name: "__FrozenData", Size: 64}) {
		t.Fatalf("unexpected blobs: %+v", rep.Blobs)
	}
	if rep.Filter != nil || rep.Types != nil || rep.Methods != nil || rep.Graph != nil || len(rep.Warnings) != 0 {
		t.Fatalf("expected plain summary report, got %+v", rep)
	}
}

func TestAnalyseVersionsAgree(t *testing.T) {
	v1, err := newTestService().Analyse(context.Background(), Request{Path: writeSizeReport(t, t.TempDir(), 1, false)})
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	v2, err := newTestService().Analyse(context.Background(), Request{Path: writeSizeReport(t, t.TempDir(), 2, true)})
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	if v1.Summary != v2.Summary {
		t.Fatalf("expected equal summaries, got %+v and %+v", v1.Summary, v2.Summary)
	}
	if v1.FormatVersion != 1 || len(v1.Warnings) != 0 {
		t.Fatalf("expected version 1 without warnings, got %d %v", v1.FormatVersion, v1.Warnings)
	}
}

func TestAnalyseDetailed(t *testing.T) {
	path := writeSizeReport(t, t.TempDir(), 2, true)

	rep, err := newTestService().Analyse(context.Background(), Request{Path: path, Detailed: true})
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}

	names := make([]string, 0, len(rep.Types))
	for _, row := range rep.Types {
		names = append(names, row.Name)
	}
	if strings.Join(names, "|") != "Lib.Foo|Lib.Sub.Bar|System.Collections.Generic.List`1<Lib.Foo>" {
		t.Fatalf("expected types ordered by name, got %v", names)
	}
	if !rep.Types[1].Placeholder || rep.Types[1].MethodsSize != 55 {
		t.Fatalf("expected Bar placeholder carrying its method, got %+v", rep.Types[1])
	}
	if rep.Types[0].MangledName != "Lib_Lib_Foo" {
		t.Fatalf("expected mangled name from the names section, got %q", rep.Types[0].MangledName)
	}

	if len(rep.Methods) != 2 {
		t.Fatalf("expected 2 methods, got %+v", rep.Methods)
	}
	if !strings.Contains(rep.Methods[0].Name, "Lib.Sub.Bar::Run") || rep.Methods[0].TotalSize != 55 {
		t.Fatalf("expected Run first, got %+v", rep.Methods[0])
	}
	if rep.Methods[1].GcInfoSize != 10 || rep.Methods[1].EhInfoSize != 2 || !strings.HasSuffix(rep.Methods[1].MangledName, "__Add") {
		t.Fatalf("unexpected Add row %+v", rep.Methods[1])
	}

	want := report.InstantiationSize{Definition: "System.Collections.Generic.List`1", Instances: 1, Size: 136}
	if len(rep.Instantiations) != 1 || rep.Instantiations[0] != want {
		t.Fatalf("expected %+v, got %+v", want, rep.Instantiations)
	}
}

func TestAnalyseFilters(t *testing.T) {
	path := writeSizeReport(t, t.TempDir(), 2, true)

	tests := []struct {
		name       string
		assembly   string
		excludes   []string
		assemblies []string
		total      int64
		blobs      bool
		warning    bool
	}{
		{name: "generic instance follows its argument", assembly: "Lib", assemblies: []string{"System.Private.CoreLib", "Lib"}, total: 207},
		{name: "exclude drops instances over excluded assemblies", excludes: []string{"System.*"}, assemblies: []string{"Lib"}, total: 135, blobs: true},
		{name: "include", assembly: "System.*", assemblies: []string{"System.Private.CoreLib"}, total: 136},
		{name: "nothing matches", assembly: "Missing", total: 0, warning: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rep, err := newTestService().Analyse(context.Background(), Request{Path: path, Assembly: tc.assembly, ExcludeAssemblies: tc.excludes})
			if err != nil {
				t.Fatalf(unexpectedErrFmt, err)
			}
			got := make([]string, 0, len(rep.Assemblies))
			for _, row := range rep.Assemblies {
				got = append(got, row.Assembly)
			}
			if strings.Join(got, ",") != strings.Join(tc.assemblies, ",") {
				t.Fatalf("expected assemblies %v, got %v", tc.assemblies, got)
			}
			if rep.Summary.TotalSize != tc.total {
				t.Fatalf("expected total %d, got %d", tc.total, rep.Summary.TotalSize)
			}
			if (len(rep.Blobs) > 0) != tc.blobs {
				t.Fatalf("expected blobs listed: %v, got %+v", tc.blobs, rep.Blobs)
			}
			if rep.Namespaces != nil {
				t.Fatalf("expected no namespaces for a filtered run, got %+v", rep.Namespaces)
			}
			if rep.Filter == nil {
				t.Fatalf("expected filter summary")
			}
			if (len(rep.Warnings) > 0) != tc.warning {
				t.Fatalf("unexpected warnings %v", rep.Warnings)
			}
		})
	}
}

func TestAnalyseMissingNamesSectionWarns(t *testing.T) {
	path := writeSizeReport(t, t.TempDir(), 2, false)

	rep, err := newTestService().Analyse(context.Background(), Request{Path: path, Detailed: true})
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	if len(rep.Warnings) != 1 || !strings.Contains(rep.Warnings[0], sizetable.NamesSection) {
		t.Fatalf("expected names warning, got %v", rep.Warnings)
	}
	if rep.Types[0].MangledName != "" {
		t.Fatalf("expected no mangled names, got %q", rep.Types[0].MangledName)
	}
}

func TestAnalyseDirectoryInput(t *testing.T) {
	root := t.TempDir()
	path := writeSizeReport(t, filepath.Join(root, "obj", "Release", "native"), 2, true)

	rep, err := newTestService().Analyse(context.Background(), Request{Path: root})
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	if rep.File != path {
		t.Fatalf("expected %s, got %s", path, rep.File)
	}
}

func TestAnalyseGraph(t *testing.T) {
	dir := t.TempDir()
	path := writeSizeReport(t, dir, 2, true)
	graphPath := filepath.Join(dir, "App.scan.dgml.xml")
	testutil.MustWriteFile(t, graphPath, sampleGraph)
	recorder := metrics.NewRecorder()

	rep, err := newTestService().Analyse(context.Background(), Request{Path: path, GraphPath: graphPath, Workers: 2, Metrics: recorder})
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}

	graph := rep.Graph
	if graph == nil || rep.GraphFile != graphPath {
		t.Fatalf("expected graph summary for %s, got %+v", graphPath, rep)
	}
	if graph.Name != "App.scan.dgml" || graph.Nodes != 5 || graph.Edges != 3 || graph.Resolved != 3 {
		t.Fatalf("unexpected graph summary %+v", graph)
	}
	counts := map[string]int{}
	for _, kind := range graph.Kinds {
		counts[kind.Kind] = kind.Count
	}
	want := map[string]int{
		dgml.KindType.String():   2,
		dgml.KindMethod.String(): 1,
		dgml.KindRegion.String(): 1,
		dgml.KindNode.String():   1,
	}
	if len(counts) != len(want) {
		t.Fatalf("expected kinds %v, got %v", want, counts)
	}
	for kind, count := range want {
		if counts[kind] != count {
			t.Fatalf("expected %d %s nodes, got %d", count, kind, counts[kind])
		}
	}
	if graph.Kinds[0].Kind != dgml.KindType.String() {
		t.Fatalf("expected largest kind first, got %+v", graph.Kinds)
	}

	metricsPath := filepath.Join(dir, "mstat.prom")
	if err := recorder.WriteTextfile(metricsPath); err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	data, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	for _, line := range []string{
		"mstat_graph_resolved_nodes_total 3",
		"mstat_graph_edges_total 3",
		`mstat_graph_nodes_total{kind="TypeNode"} 2`,
		`mstat_sizetable_records_total{table="placeholders"} 1`,
		`mstat_sizetable_bytes_total{table="methods"} 167`,
	} {
		if !strings.Contains(string(data), line) {
			t.Fatalf("expected %q in metrics, got:\n%s", line, data)
		}
	}
}

func TestAnalyseGraphNameFallsBackToFileName(t *testing.T) {
	dir := t.TempDir()
	path := writeSizeReport(t, dir, 2, true)
	graphPath := filepath.Join(dir, "untitled.dgml")
	testutil.MustWriteFile(t, graphPath, strings.Replace(sampleGraph, ` Title="App.scan.dgml"`, "", 1))

	rep, err := newTestService().Analyse(context.Background(), Request{Path: path, GraphPath: graphPath})
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	if rep.Graph.Name != "untitled.dgml" {
		t.Fatalf("expected file name fallback, got %q", rep.Graph.Name)
	}
}

func TestAnalyseErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeSizeReport(t, dir, 2, true)
	brokenGraph := filepath.Join(dir, "broken.dgml")
	testutil.MustWriteFile(t, brokenGraph, `<DirectedGraph><Nodes><Node Id="0" Label="A" /></Nodes><Links><Link Source="0" Target="9" /></Links></DirectedGraph>`)
	notManaged := filepath.Join(dir, "other", "bad.mstat")
	testutil.MustWriteFile(t, notManaged, "not a PE image")

	tests := []struct {
		name string
		req  Request
		is   error
	}{
		{name: "missing file", req: Request{Path: filepath.Join(dir, "missing.mstat")}, is: os.ErrNotExist},
		{name: "empty directory", req: Request{Path: t.TempDir()}, is: nil},
		{name: "not a PE image", req: Request{Path: notManaged}},
		{name: "undeclared link", req: Request{Path: path, GraphPath: brokenGraph}, is: dgml.ErrUndeclaredNode},
		{name: "missing graph", req: Request{Path: path, GraphPath: filepath.Join(dir, "missing.dgml")}, is: os.ErrNotExist},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestService().Analyse(context.Background(), tc.req)
			if err == nil {
				t.Fatalf("expected error")
			}
			if tc.is != nil && !errors.Is(err, tc.is) {
				t.Fatalf("expected %v, got %v", tc.is, err)
			}
		})
	}
}

func TestAnalyseCanceled(t *testing.T) {
	path := writeSizeReport(t, t.TempDir(), 2, true)

	_, err := newTestService().Analyse(testutil.CanceledContext(), Request{Path: path})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
