package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kant2002/MstatAnalyser/internal/safeio"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	readConfigFileErrFmt = "read config file %s: %w"
	parseConfigErrFmt    = "parse config file %s: %w"
)

var defaultConfigNames = []string{".mstat.yml", ".mstat.yaml", "mstat.json", "mstat.toml"}

type LoadResult struct {
	Overrides  Overrides
	Resolved   Values
	ConfigPath string
}

// Load finds and parses the config file for dir. An explicit path must exist;
// otherwise the well-known names are tried in order and a missing file just
// yields the defaults.
func Load(dir, explicitPath string) (LoadResult, error) {
	dirAbs, err := filepath.Abs(dir)
	if err != nil {
		return LoadResult{}, fmt.Errorf("resolve config dir: %w", err)
	}
	explicitPath = strings.TrimSpace(explicitPath)

	configPath, found, err := resolveConfigPath(dirAbs, explicitPath)
	if err != nil {
		return LoadResult{}, err
	}
	if !found {
		return LoadResult{Resolved: Defaults()}, nil
	}

	data, err := readConfigFile(dirAbs, configPath)
	if err != nil {
		return LoadResult{}, fmt.Errorf(readConfigFileErrFmt, configPath, err)
	}
	cfg, err := parseConfig(configPath, data)
	if err != nil {
		return LoadResult{}, fmt.Errorf(parseConfigErrFmt, configPath, err)
	}
	overrides := cfg.toOverrides()
	if err := overrides.Validate(); err != nil {
		return LoadResult{}, fmt.Errorf(parseConfigErrFmt, configPath, err)
	}
	resolved := overrides.Apply(Defaults())
	if err := resolved.Validate(); err != nil {
		return LoadResult{}, fmt.Errorf(parseConfigErrFmt, configPath, err)
	}

	return LoadResult{Overrides: overrides, Resolved: resolved, ConfigPath: configPath}, nil
}

func resolveConfigPath(dir, explicitPath string) (string, bool, error) {
	if explicitPath != "" {
		candidate := explicitPath
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(dir, candidate)
		}
		candidate = filepath.Clean(candidate)
		if _, err := os.Stat(candidate); err != nil {
			if os.IsNotExist(err) {
				return "", false, fmt.Errorf("config file not found: %s", candidate)
			}
			return "", false, fmt.Errorf(readConfigFileErrFmt, candidate, err)
		}
		return candidate, true, nil
	}

	for _, name := range defaultConfigNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !os.IsNotExist(err) {
			return "", false, fmt.Errorf(readConfigFileErrFmt, candidate, err)
		}
	}
	return "", false, nil
}

func readConfigFile(dir, path string) ([]byte, error) {
	if isPathUnderRoot(dir, path) {
		return safeio.ReadFileUnder(dir, path)
	}
	return safeio.ReadFile(path)
}

func parseConfig(path string, data []byte) (rawConfig, error) {
	var cfg rawConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return rawConfig{}, fmt.Errorf("invalid JSON config: %w", err)
		}
		if decoder.More() {
			return rawConfig{}, fmt.Errorf("invalid JSON config: multiple JSON values")
		}
	case ".toml":
		decoder := toml.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return rawConfig{}, fmt.Errorf("invalid TOML config: %w", err)
		}
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return rawConfig{}, fmt.Errorf("invalid YAML config: %w", err)
		}
	}
	return cfg, nil
}

type rawConfig struct {
	Assembly              *string  `yaml:"assembly" json:"assembly" toml:"assembly"`
	ExcludeAssemblies     []string `yaml:"exclude_assemblies" json:"exclude_assemblies" toml:"exclude_assemblies"`
	Detailed              *bool    `yaml:"detailed" json:"detailed" toml:"detailed"`
	Format                *string  `yaml:"format" json:"format" toml:"format"`
	FailOnIncreasePercent *int     `yaml:"fail_on_increase_percent" json:"fail_on_increase_percent" toml:"fail_on_increase_percent"`
	Workers               *int     `yaml:"workers" json:"workers" toml:"workers"`
}

func (c *rawConfig) toOverrides() Overrides {
	overrides := Overrides{
		Assembly:              c.Assembly,
		ExcludeAssemblies:     normalizePatterns(c.ExcludeAssemblies),
		Detailed:              c.Detailed,
		Format:                c.Format,
		FailOnIncreasePercent: c.FailOnIncreasePercent,
		Workers:               c.Workers,
	}
	if overrides.Assembly != nil {
		trimmed := strings.TrimSpace(*overrides.Assembly)
		overrides.Assembly = &trimmed
	}
	return overrides
}

// normalizePatterns trims and dedupes patterns, keeping first-seen order.
func normalizePatterns(patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(patterns))
	normalized := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		trimmed := strings.TrimSpace(pattern)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	if len(normalized) == 0 {
		return nil
	}
	return normalized
}

func isPathUnderRoot(rootPath, targetPath string) bool {
	relative, err := filepath.Rel(rootPath, targetPath)
	if err != nil {
		return false
	}
	return relative != ".." && !strings.HasPrefix(relative, ".."+string(os.PathSeparator))
}
