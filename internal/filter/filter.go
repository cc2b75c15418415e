package filter

import (
	"strings"

	"github.com/gobwas/glob"

	"github.com/kant2002/MstatAnalyser/internal/sizetable"
)

// Filter selects size records by the assemblies they relate to. A record is
// kept when an inclusion pattern matches one of its related assemblies and no
// exclusion pattern matches any of them.
type Filter struct {
	Include  string
	Excludes []string

	include glob.Glob
	exclude []glob.Glob
}

// New compiles the wildcard patterns. Only '*' and '?' are special; every
// other character matches itself, so there is no pattern New can reject.
func New(include string, excludes []string) *Filter {
	f := &Filter{Include: include}
	if include != "" {
		f.include = compile(include)
	}
	for _, pattern := range excludes {
		if pattern == "" {
			continue
		}
		f.Excludes = append(f.Excludes, pattern)
		f.exclude = append(f.exclude, compile(pattern))
	}
	return f
}

// compile quotes every glob metacharacter except '*' and '?'. What remains is
// a sequence of literals and wildcards, which always compiles.
func compile(pattern string) glob.Glob {
	var b strings.Builder
	for _, r := range pattern {
		if r == '*' || r == '?' {
			b.WriteRune(r)
			continue
		}
		b.WriteString(glob.QuoteMeta(string(r)))
	}
	return glob.MustCompile(b.String())
}

// HasInclude reports whether an inclusion pattern narrows the selection.
func (f *Filter) HasInclude() bool {
	return f != nil && f.include != nil
}

// Active reports whether the filter can drop anything.
func (f *Filter) Active() bool {
	return f.HasInclude() || (f != nil && len(f.exclude) > 0)
}

func (f *Filter) Matches(related []string) bool {
	if f == nil {
		return true
	}
	if f.include != nil && !anyMatch(f.include, related) {
		return false
	}
	for _, pattern := range f.exclude {
		if anyMatch(pattern, related) {
			return false
		}
	}
	return true
}

func anyMatch(pattern glob.Glob, assemblies []string) bool {
	for _, assembly := range assemblies {
		if pattern.Match(assembly) {
			return true
		}
	}
	return false
}

func (f *Filter) Types(types []*sizetable.TypeStats) []*sizetable.TypeStats {
	if !f.Active() {
		return types
	}
	kept := make([]*sizetable.TypeStats, 0, len(types))
	for _, stat := range types {
		if f.Matches(stat.RelatedAssemblies()) {
			kept = append(kept, stat)
		}
	}
	return kept
}

func (f *Filter) Methods(methods []*sizetable.MethodStats) []*sizetable.MethodStats {
	if !f.Active() {
		return methods
	}
	kept := make([]*sizetable.MethodStats, 0, len(methods))
	for _, stat := range methods {
		if f.Matches(stat.RelatedAssemblies()) {
			kept = append(kept, stat)
		}
	}
	return kept
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	parts := make([]string, 0, 2)
	if f.Include != "" {
		parts = append(parts, "assembly "+f.Include)
	}
	if len(f.exclude) > 0 {
		parts = append(parts, "excluding "+strings.Join(f.Excludes, ", "))
	}
	return strings.Join(parts, " ")
}
