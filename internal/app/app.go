package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kant2002/MstatAnalyser/internal/analysis"
	"github.com/kant2002/MstatAnalyser/internal/metrics"
	"github.com/kant2002/MstatAnalyser/internal/report"
)

var (
	ErrUnknownMode      = errors.New("unknown mode")
	ErrFailOnIncrease   = errors.New("binary size increased beyond threshold")
	ErrBaselineRequired = errors.New("baseline report is required for fail-on-increase")
)

type App struct {
	Analyzer  analysis.Analyzer
	Formatter report.Formatter
	// LogOutput receives diagnostics; nil discards them.
	LogOutput io.Writer
}

func New(logOutput io.Writer) *App {
	return &App{
		Analyzer:  analysis.NewService(),
		Formatter: report.NewFormatter(),
		LogOutput: logOutput,
	}
}

func (a *App) Execute(ctx context.Context, req Request) (string, error) {
	switch req.Mode {
	case ModeAnalyse:
		return a.executeAnalyse(ctx, req)
	case ModeClassify:
		return executeClassify(req.Classify, a.logger(req.LogLevel)), nil
	default:
		return "", ErrUnknownMode
	}
}

func (a *App) executeAnalyse(ctx context.Context, req Request) (string, error) {
	values := req.Analyse.Config
	format, err := report.ParseFormat(values.Format)
	if err != nil {
		return "", err
	}
	logger := a.logger(req.LogLevel)
	if req.Analyse.ConfigPath != "" {
		logger.Debug("loaded config", "path", req.Analyse.ConfigPath)
	}

	var recorder *metrics.Recorder
	if req.Analyse.MetricsPath != "" {
		recorder = metrics.NewRecorder()
	}

	reportData, err := a.Analyzer.Analyse(ctx, analysis.Request{
		Path:              req.Analyse.Path,
		GraphPath:         req.Analyse.GraphPath,
		Assembly:          values.Assembly,
		ExcludeAssemblies: append([]string{}, values.ExcludeAssemblies...),
		Detailed:          values.Detailed,
		Workers:           values.Workers,
		Metrics:           recorder,
		Logger:            logger,
	})
	if err != nil {
		return "", err
	}

	if err := writeMetrics(recorder, req.Analyse.MetricsPath); err != nil {
		reportData.Warnings = append(reportData.Warnings, err.Error())
		logger.Warn("metrics not written", "error", err)
	}

	reportData, err = a.applyBaselineIfNeeded(reportData, req.Analyse)
	if err != nil {
		return a.formatWithError(reportData, format, err)
	}
	if err := validateFailOnIncrease(reportData, values.FailOnIncreasePercent); err != nil {
		return a.formatWithError(reportData, format, err)
	}
	return a.Formatter.Format(reportData, format)
}

// formatWithError still renders the report so a failing gate shows what it
// compared.
func (a *App) formatWithError(reportData report.Report, format report.Format, err error) (string, error) {
	formatted, formatErr := a.Formatter.Format(reportData, format)
	if formatErr != nil {
		return "", err
	}
	return formatted, err
}

func (a *App) applyBaselineIfNeeded(reportData report.Report, req AnalyseRequest) (report.Report, error) {
	baselinePath := strings.TrimSpace(req.BaselinePath)
	if baselinePath == "" {
		return reportData, nil
	}
	baseline, err := report.Load(baselinePath)
	if err != nil {
		return reportData, err
	}
	return report.ApplyBaseline(reportData, baseline, baselinePath)
}

func validateFailOnIncrease(reportData report.Report, threshold int) error {
	if threshold <= 0 {
		return nil
	}
	if reportData.SizeIncreasePercent == nil {
		return ErrBaselineRequired
	}
	if *reportData.SizeIncreasePercent > float64(threshold) {
		return fmt.Errorf("%w: %.2f%% > %d%%", ErrFailOnIncrease, *reportData.SizeIncreasePercent, threshold)
	}
	return nil
}

func writeMetrics(recorder *metrics.Recorder, path string) error {
	if recorder == nil || path == "" {
		return nil
	}
	return recorder.WriteTextfile(path)
}

func (a *App) logger(level slog.Level) *slog.Logger {
	if a.LogOutput == nil {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(a.LogOutput, &slog.HandlerOptions{Level: level}))
}
