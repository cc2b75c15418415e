package config

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/kant2002/MstatAnalyser/internal/testutil"
)

const (
	loadConfigErrFmt = "load config: %v"
	mstatYMLName     = ".mstat.yml"
	mstatJSONName    = "mstat.json"
	mstatTOMLName    = "mstat.toml"
)

func TestLoadNoConfigFile(t *testing.T) {
	dir := t.TempDir()
	result, err := Load(dir, "")
	if err != nil {
		t.Fatalf(loadConfigErrFmt, err)
	}
	if result.ConfigPath != "" {
		t.Fatalf("expected no config path, got %q", result.ConfigPath)
	}
	if !reflect.DeepEqual(result.Resolved, Defaults()) {
		t.Fatalf("expected defaults when no config file, got %+v", result.Resolved)
	}
}

func TestLoadYAMLConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := strings.Join([]string{
		"assembly: ' Lib* '",
		"exclude_assemblies:",
		"  - Lib.Tests",
		"  - ' Lib.Tests '",
		"  - ''",
		"detailed: true",
		"format: json",
		"fail_on_increase_percent: 5",
		"workers: 4",
		"",
	}, "\n")
	testutil.MustWriteFile(t, filepath.Join(dir, mstatYMLName), cfg)

	result, err := Load(dir, "")
	if err != nil {
		t.Fatalf(loadConfigErrFmt, err)
	}
	if !strings.HasSuffix(result.ConfigPath, mstatYMLName) {
		t.Fatalf("expected %s path, got %q", mstatYMLName, result.ConfigPath)
	}
	want := Values{
		Assembly:              "Lib*",
		ExcludeAssemblies:     []string{"Lib.Tests"},
		Detailed:              true,
		Format:                "json",
		FailOnIncreasePercent: 5,
		Workers:               4,
	}
	if !reflect.DeepEqual(result.Resolved, want) {
		t.Fatalf("expected %+v, got %+v", want, result.Resolved)
	}
}

func TestLoadJSONConfig(t *testing.T) {
	dir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(dir, mstatJSONName), `{"assembly": "Lib", "fail_on_increase_percent": 2}`)

	result, err := Load(dir, "")
	if err != nil {
		t.Fatalf(loadConfigErrFmt, err)
	}
	if result.Resolved.Assembly != "Lib" || result.Resolved.FailOnIncreasePercent != 2 {
		t.Fatalf("unexpected values: %+v", result.Resolved)
	}
	if result.Resolved.Format != DefaultFormat {
		t.Fatalf("expected default format, got %q", result.Resolved.Format)
	}
}

func TestLoadTOMLConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := strings.Join([]string{
		`assembly = "System.*"`,
		`exclude_assemblies = ["System.Private.CoreLib"]`,
		`detailed = true`,
		`workers = 2`,
		"",
	}, "\n")
	testutil.MustWriteFile(t, filepath.Join(dir, mstatTOMLName), cfg)

	result, err := Load(dir, "")
	if err != nil {
		t.Fatalf(loadConfigErrFmt, err)
	}
	if result.Resolved.Assembly != "System.*" || !result.Resolved.Detailed || result.Resolved.Workers != 2 {
		t.Fatalf("unexpected values: %+v", result.Resolved)
	}
	if !reflect.DeepEqual(result.Resolved.ExcludeAssemblies, []string{"System.Private.CoreLib"}) {
		t.Fatalf("unexpected exclusions: %v", result.Resolved.ExcludeAssemblies)
	}
}

func TestLoadPrefersYAMLOverOtherNames(t *testing.T) {
	dir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(dir, mstatYMLName), "assembly: FromYAML\n")
	testutil.MustWriteFile(t, filepath.Join(dir, mstatJSONName), `{"assembly": "FromJSON"}`)

	result, err := Load(dir, "")
	if err != nil {
		t.Fatalf(loadConfigErrFmt, err)
	}
	if result.Resolved.Assembly != "FromYAML" {
		t.Fatalf("expected yaml config to win, got %q", result.Resolved.Assembly)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()
	path := filepath.Join(other, "custom.json")
	testutil.MustWriteFile(t, path, `{"detailed": true}`)

	result, err := Load(dir, path)
	if err != nil {
		t.Fatalf(loadConfigErrFmt, err)
	}
	if result.ConfigPath != path || !result.Resolved.Detailed {
		t.Fatalf("unexpected result: %+v", result)
	}

	testutil.MustWriteFile(t, filepath.Join(dir, "relative.yml"), "workers: 3\n")
	result, err = Load(dir, "relative.yml")
	if err != nil {
		t.Fatalf(loadConfigErrFmt, err)
	}
	if result.Resolved.Workers != 3 {
		t.Fatalf("expected relative config to load, got %+v", result.Resolved)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{name: "unknown yaml key", file: mstatYMLName, content: "colour: red\n", want: "invalid YAML config"},
		{name: "unknown json key", file: mstatJSONName, content: `{"colour": "red"}`, want: "invalid JSON config"},
		{name: "multiple json values", file: mstatJSONName, content: `{} {}`, want: "multiple JSON values"},
		{name: "unknown toml key", file: mstatTOMLName, content: "colour = \"red\"\n", want: "invalid TOML config"},
		{name: "bad format", file: mstatYMLName, content: "format: xml\n", want: "invalid format"},
		{name: "negative threshold", file: mstatYMLName, content: "fail_on_increase_percent: -1\n", want: "fail_on_increase_percent"},
		{name: "negative workers", file: mstatJSONName, content: `{"workers": -2}`, want: "invalid workers"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			testutil.MustWriteFile(t, filepath.Join(dir, tc.file), tc.content)
			_, err := Load(dir, "")
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
			if !strings.Contains(err.Error(), "parse config file") {
				t.Fatalf("expected parse config prefix, got %v", err)
			}
		})
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	_, err := Load(t.TempDir(), "missing.yml")
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestOverridesMerge(t *testing.T) {
	fileAssembly := "Lib"
	cliAssembly := "App"
	fileWorkers := 2
	detailed := true

	file := Overrides{Assembly: &fileAssembly, Workers: &fileWorkers, ExcludeAssemblies: []string{"A"}}
	cli := Overrides{Assembly: &cliAssembly, Detailed: &detailed}

	if err := file.Merge(cli).Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	resolved := file.Merge(cli).Apply(Defaults())
	if resolved.Assembly != "App" || resolved.Workers != 2 || !resolved.Detailed {
		t.Fatalf("unexpected merge result: %+v", resolved)
	}
	if !reflect.DeepEqual(resolved.ExcludeAssemblies, []string{"A"}) {
		t.Fatalf("expected file exclusions to survive, got %v", resolved.ExcludeAssemblies)
	}
}
