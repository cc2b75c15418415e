package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
)

const unexpectedErrFmt = "unexpected error: %v"

func TestRecorderCounters(t *testing.T) {
	r := NewRecorder()
	r.RecordRecords("types", 2, 40)
	r.RecordRecords("types", 1, 8)
	r.RecordRecords("placeholders", 1, -1)
	r.RecordFiltered("methods", 3)
	r.RecordFiltered("methods", 0)
	r.RecordGraph(map[string]int{"RegionNode": 2, "Node": 5}, 7)
	r.RecordResolved(4)

	if got := promtestutil.ToFloat64(r.recordsTotal.WithLabelValues("types")); got != 3 {
		t.Fatalf("expected 3 type records, got %v", got)
	}
	if got := promtestutil.ToFloat64(r.bytesTotal.WithLabelValues("types")); got != 48 {
		t.Fatalf("expected 48 type bytes, got %v", got)
	}
	if got := promtestutil.CollectAndCount(r.bytesTotal); got != 1 {
		t.Fatalf("expected placeholders to skip bytes, got %d series", got)
	}
	if got := promtestutil.ToFloat64(r.filteredTotal.WithLabelValues("methods")); got != 3 {
		t.Fatalf("expected 3 dropped methods, got %v", got)
	}
	if got := promtestutil.ToFloat64(r.graphNodesTotal.WithLabelValues("Node")); got != 5 {
		t.Fatalf("expected 5 generic nodes, got %v", got)
	}
	if got := promtestutil.ToFloat64(r.graphEdgesTotal); got != 7 {
		t.Fatalf("expected 7 edges, got %v", got)
	}
	if got := promtestutil.ToFloat64(r.resolvedTotal); got != 4 {
		t.Fatalf("expected 4 resolved nodes, got %v", got)
	}
}

func TestRecordersAreIndependent(t *testing.T) {
	first := NewRecorder()
	second := NewRecorder()
	first.RecordResolved(2)

	if got := promtestutil.ToFloat64(second.resolvedTotal); got != 0 {
		t.Fatalf("expected separate registries, got %v", got)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.RecordRecords("types", 1, 1)
	r.RecordFiltered("types", 1)
	r.RecordGraph(map[string]int{"Node": 1}, 1)
	r.RecordResolved(1)
	r.ObserveStage("decode", 0.5)
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.RecordRecords("blobs", 1, 64)
	r.ObserveStage("decode", 0.02)
	path := filepath.Join(t.TempDir(), "mstat.prom")

	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf(unexpectedErrFmt, err)
	}
	text := string(data)
	for _, want := range []string{
		`mstat_sizetable_bytes_total{table="blobs"} 64`,
		`mstat_sizetable_records_total{table="blobs"} 1`,
		`mstat_stage_duration_seconds_count{stage="decode"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in metrics output, got:\n%s", want, text)
		}
	}
}

func TestWriteTextfileBadPath(t *testing.T) {
	r := NewRecorder()
	err := r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "mstat.prom"))
	if err == nil || !strings.Contains(err.Error(), "write metrics") {
		t.Fatalf("expected wrapped write error, got %v", err)
	}
}
