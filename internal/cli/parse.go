package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kant2002/MstatAnalyser/internal/app"
	"github.com/kant2002/MstatAnalyser/internal/config"
)

var (
	ErrHelpRequested = errors.New("help requested")
	ErrMissingFile   = errors.New("missing size report: pass --file PATH")
	ErrMissingLabels = errors.New("missing node labels for classify")
)

// stringList collects a repeatable flag; each value may also hold a
// comma-separated list.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(value string) error {
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			*s = append(*s, item)
		}
	}
	return nil
}

func ParseArgs(args []string) (app.Request, error) {
	req := app.DefaultRequest()
	if len(args) == 0 {
		return req, ErrMissingFile
	}

	if isHelpArg(args[0]) {
		return req, ErrHelpRequested
	}

	switch {
	case args[0] == "analyse" || args[0] == "analyze":
		return parseAnalyse(args[1:], req)
	case args[0] == "classify":
		return parseClassify(args[1:], req)
	case strings.HasPrefix(args[0], "-"):
		return parseAnalyse(args, req)
	default:
		return req, fmt.Errorf("unknown command: %s", args[0])
	}
}

func parseAnalyse(args []string, req app.Request) (app.Request, error) {
	args = normalizeArgs(args)

	fs := flag.NewFlagSet("analyse", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	defaults := req.Analyse.Config
	filePath := fs.String("file", "", "size report file or directory")
	graphPath := fs.String("dgml", "", "dependency graph path")
	assembly := fs.String("assembly", defaults.Assembly, "assembly glob to include")
	var excludes stringList
	fs.Var(&excludes, "exclude-assembly", "assembly glob to exclude (repeatable)")
	detailed := fs.Bool("detailed", defaults.Detailed, "list types, methods and instantiations")
	formatFlag := fs.String("format", defaults.Format, "output format")
	configPath := fs.String("config", "", "config file path")
	baselinePath := fs.String("baseline", "", "baseline report path")
	failOnIncrease := fs.Int("fail-on-increase", defaults.FailOnIncreasePercent, "fail if total size increases beyond threshold")
	metricsPath := fs.String("metrics-file", "", "metrics textfile path")
	workers := fs.Int("workers", defaults.Workers, "graph resolution workers")
	logLevel := fs.String("log-level", "warn", "log level")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return req, ErrHelpRequested
		}
		return req, err
	}

	path := strings.TrimSpace(*filePath)
	remaining := fs.Args()
	switch {
	case len(remaining) > 1:
		return req, fmt.Errorf("too many arguments for analyse")
	case len(remaining) == 1 && path != "":
		return req, fmt.Errorf("size report given both as --file and as an argument")
	case len(remaining) == 1:
		path = strings.TrimSpace(remaining[0])
	}
	if path == "" {
		return req, ErrMissingFile
	}

	level, err := parseLogLevel(*logLevel)
	if err != nil {
		return req, err
	}

	loaded, err := config.Load(".", strings.TrimSpace(*configPath))
	if err != nil {
		return req, err
	}

	visited := visitedFlags(fs)
	cliOverrides := config.Overrides{}
	if visited["assembly"] {
		trimmed := strings.TrimSpace(*assembly)
		cliOverrides.Assembly = &trimmed
	}
	if visited["exclude-assembly"] {
		cliOverrides.ExcludeAssemblies = excludes
	}
	if visited["detailed"] {
		cliOverrides.Detailed = detailed
	}
	if visited["format"] {
		trimmed := strings.TrimSpace(*formatFlag)
		cliOverrides.Format = &trimmed
	}
	if visited["fail-on-increase"] {
		cliOverrides.FailOnIncreasePercent = failOnIncrease
	}
	if visited["workers"] {
		cliOverrides.Workers = workers
	}

	resolved := cliOverrides.Apply(loaded.Resolved)
	if err := resolved.Validate(); err != nil {
		return req, err
	}

	req.Mode = app.ModeAnalyse
	req.LogLevel = level
	req.Analyse = app.AnalyseRequest{
		Path:         path,
		GraphPath:    strings.TrimSpace(*graphPath),
		BaselinePath: strings.TrimSpace(*baselinePath),
		MetricsPath:  strings.TrimSpace(*metricsPath),
		ConfigPath:   loaded.ConfigPath,
		Config:       resolved,
	}

	return req, nil
}

func parseClassify(args []string, req app.Request) (app.Request, error) {
	args = normalizeArgs(args)

	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	logLevel := fs.String("log-level", "warn", "log level")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return req, ErrHelpRequested
		}
		return req, err
	}
	if fs.NArg() == 0 {
		return req, ErrMissingLabels
	}
	level, err := parseLogLevel(*logLevel)
	if err != nil {
		return req, err
	}

	req.Mode = app.ModeClassify
	req.LogLevel = level
	req.Classify = app.ClassifyRequest{Labels: append([]string{}, fs.Args()...)}
	return req, nil
}

func parseLogLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %q (must be one of: debug, info, warn, error)", value)
	}
}

func isHelpArg(arg string) bool {
	switch arg {
	case "-h", "--help", "help":
		return true
	default:
		return false
	}
}

// normalizeArgs moves flags ahead of positionals so flags may follow the
// file or label arguments. Everything after "--" stays positional.
func normalizeArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	flags := make([]string, 0, len(args))
	positionals := make([]string, 0, 1)

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positionals = append(positionals, args[i+1:]...)
			break
		}
		if strings.HasPrefix(arg, "-") {
			flags = append(flags, arg)
			if flagNeedsValue(arg) && i+1 < len(args) {
				flags = append(flags, args[i+1])
				i++
			}
			continue
		}
		positionals = append(positionals, arg)
	}

	if len(positionals) == 0 {
		return flags
	}
	flags = append(flags, "--")
	return append(flags, positionals...)
}

func flagNeedsValue(arg string) bool {
	if strings.Contains(arg, "=") {
		return false
	}
	switch strings.TrimLeft(arg, "-") {
	case "file", "dgml", "assembly", "exclude-assembly", "format", "config", "baseline", "fail-on-increase", "metrics-file", "workers", "log-level":
		return true
	default:
		return false
	}
}

func visitedFlags(fs *flag.FlagSet) map[string]bool {
	visited := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		visited[f.Name] = true
	})
	return visited
}
