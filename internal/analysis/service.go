package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/kant2002/MstatAnalyser/internal/filter"
	"github.com/kant2002/MstatAnalyser/internal/metadata"
	"github.com/kant2002/MstatAnalyser/internal/report"
	"github.com/kant2002/MstatAnalyser/internal/safeio"
	"github.com/kant2002/MstatAnalyser/internal/sizetable"
)

const sizeReportExtension = ".mstat"

type Analyzer interface {
	Analyse(ctx context.Context, req Request) (report.Report, error)
}

type Service struct {
	Now func() time.Time
}

func NewService() *Service {
	return &Service{}
}

func (s *Service) Analyse(ctx context.Context, req Request) (report.Report, error) {
	logger := requestLogger(req)
	path, err := safeio.ResolveSingle(ctx, req.Path, sizeReportExtension)
	if err != nil {
		return report.Report{}, fmt.Errorf("locate size report: %w", err)
	}
	fileFilter := filter.New(req.Assembly, req.ExcludeAssemblies)

	started := time.Now()
	asm, err := metadata.Open(path)
	if err != nil {
		return report.Report{}, err
	}
	req.Metrics.ObserveStage("metadata", time.Since(started).Seconds())
	logger.Debug("loaded size report", "path", path, "assembly", asm.Name, "version", asm.Version.String())

	if err := ctx.Err(); err != nil {
		return report.Report{}, err
	}

	started = time.Now()
	stats, err := sizetable.Decode(asm)
	if err != nil {
		return report.Report{}, fmt.Errorf("decode %s: %w", path, err)
	}
	var warnings []string
	if stats.Version >= 2 {
		if warning := attachNames(asm, stats); warning != "" {
			logger.Warn(warning, "path", path)
			warnings = append(warnings, warning)
		}
	}
	req.Metrics.ObserveStage("decode", time.Since(started).Seconds())
	recordDecoded(req, stats)
	logger.Debug("decoded size records", "types", len(stats.Types), "methods", len(stats.Methods), "blobs", len(stats.Blobs))

	types := fileFilter.Types(stats.Types)
	methods := fileFilter.Methods(stats.Methods)
	req.Metrics.RecordFiltered("types", len(stats.Types)-len(types))
	req.Metrics.RecordFiltered("methods", len(stats.Methods)-len(methods))
	if fileFilter.Active() {
		logger.Debug("applied assembly filter", "filter", fileFilter.String(), "types", len(types), "methods", len(methods))
		if len(types) == 0 && len(methods) == 0 {
			warnings = append(warnings, "assembly filter matched no records: "+fileFilter.String())
		}
	}

	rep := buildReport(sizeView{
		path:     path,
		version:  stats.Version,
		filter:   fileFilter,
		request:  req,
		types:    types,
		methods:  methods,
		blobs:    stats.Blobs,
		warnings: warnings,
	})
	rep.GeneratedAt = s.now()

	if req.GraphPath != "" {
		summary, err := s.analyseGraph(ctx, req, asm, stats)
		if err != nil {
			return report.Report{}, err
		}
		rep.GraphFile = req.GraphPath
		rep.Graph = summary
	}
	return rep, nil
}

// attachNames reads the mangled-name side table. A missing or unreadable
// table only costs the names, so it is reported as a warning.
func attachNames(asm *metadata.Assembly, stats *sizetable.Stats) string {
	data, err := asm.Section(sizetable.NamesSection)
	if errors.Is(err, metadata.ErrSectionNotFound) {
		return "size report has no " + sizetable.NamesSection + " section; mangled names omitted"
	}
	if err != nil {
		return fmt.Sprintf("read %s section: %v", sizetable.NamesSection, err)
	}
	names, err := sizetable.ReadMangledNames(data)
	if err != nil {
		return fmt.Sprintf("read %s section: %v", sizetable.NamesSection, err)
	}
	stats.AttachMangledNames(names)
	return ""
}

func recordDecoded(req Request, stats *sizetable.Stats) {
	var typesSize, placeholders int
	types := 0
	for _, stat := range stats.Types {
		if stat.Placeholder {
			placeholders++
			continue
		}
		types++
		typesSize += stat.Size
	}
	methodsSize := 0
	for _, stat := range stats.Methods {
		methodsSize += stat.TotalSize()
	}
	blobsSize := 0
	for _, blob := range stats.Blobs {
		blobsSize += blob.Size
	}
	req.Metrics.RecordRecords("types", types, int64(typesSize))
	req.Metrics.RecordRecords("placeholders", placeholders, -1)
	req.Metrics.RecordRecords("methods", len(stats.Methods), int64(methodsSize))
	req.Metrics.RecordRecords("blobs", len(stats.Blobs), int64(blobsSize))
}

func requestLogger(req Request) *slog.Logger {
	if req.Logger != nil {
		return req.Logger
	}
	return slog.Default()
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func displayName(path string) string {
	return filepath.Base(path)
}
