package app

import (
	"log/slog"

	"github.com/kant2002/MstatAnalyser/internal/config"
)

type Mode string

const (
	ModeAnalyse  Mode = "analyse"
	ModeClassify Mode = "classify"
)

type Request struct {
	Mode     Mode
	LogLevel slog.Level
	Analyse  AnalyseRequest
	Classify ClassifyRequest
}

type AnalyseRequest struct {
	Path         string
	GraphPath    string
	BaselinePath string
	MetricsPath  string
	ConfigPath   string
	Config       config.Values
}

// ClassifyRequest lists node labels to run through the label grammar.
type ClassifyRequest struct {
	Labels []string
}

func DefaultRequest() Request {
	return Request{
		Mode:     ModeAnalyse,
		LogLevel: slog.LevelWarn,
		Analyse: AnalyseRequest{
			Config: config.Defaults(),
		},
	}
}
