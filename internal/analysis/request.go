package analysis

import (
	"log/slog"

	"github.com/kant2002/MstatAnalyser/internal/metrics"
)

// Request describes one analysis run.
type Request struct {
	// Path is a size report, or a directory holding exactly one.
	Path string
	// GraphPath optionally names a dependency graph dump to summarise.
	GraphPath         string
	Assembly          string
	ExcludeAssemblies []string
	Detailed          bool
	// Workers bounds graph resolution parallelism; zero means GOMAXPROCS.
	Workers int
	Metrics *metrics.Recorder
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}
