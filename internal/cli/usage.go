package cli

const usage = `Usage:
  mstat [analyse] --file PATH [--dgml PATH] [--assembly GLOB] [--exclude-assembly GLOB]... [--detailed]
                  [--format table|json] [--config PATH] [--baseline PATH] [--fail-on-increase PERCENT]
                  [--metrics-file PATH] [--workers N] [--log-level LEVEL]
  mstat classify LABEL... [--log-level LEVEL]

Options:
  --file PATH                 Size report (*.mstat) or a directory holding exactly one
  --dgml PATH                 Dependency graph (*.dgml.xml) to summarise and resolve
  --assembly GLOB             Only report records related to matching assemblies
  --exclude-assembly GLOB     Drop records related to matching assemblies (repeatable)
  --detailed                  List types, methods and generic instantiations
  --format table|json         Output format (default: table)
  --config PATH               Config file (default: .mstat.yml, .mstat.yaml, mstat.json, mstat.toml)
  --baseline PATH             Baseline report (JSON) for comparison
  --fail-on-increase PERCENT  Exit 3 if total size grows beyond threshold (needs --baseline)
  --metrics-file PATH         Write run metrics in Prometheus text format
  --workers N                 Graph resolution workers (default: number of CPUs)
  --log-level LEVEL           debug, info, warn or error (default: warn)
  -h, --help                  Show this help text
`

func Usage() string {
	return usage
}
