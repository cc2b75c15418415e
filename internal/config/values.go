package config

import (
	"fmt"
	"strings"
)

const (
	DefaultFormat                = "table"
	DefaultFailOnIncreasePercent = 0
	DefaultWorkers               = 0
)

var formatValues = []string{"table", "json"}

// Values is a fully resolved run configuration.
type Values struct {
	Assembly              string
	ExcludeAssemblies     []string
	Detailed              bool
	Format                string
	FailOnIncreasePercent int
	// Workers bounds graph resolution parallelism; 0 means GOMAXPROCS.
	Workers int
}

// Overrides holds the settings one layer (a file or the command line)
// actually sets. Nil fields leave the lower layer alone.
type Overrides struct {
	Assembly              *string
	ExcludeAssemblies     []string
	Detailed              *bool
	Format                *string
	FailOnIncreasePercent *int
	Workers               *int
}

func Defaults() Values {
	return Values{
		Format:                DefaultFormat,
		FailOnIncreasePercent: DefaultFailOnIncreasePercent,
		Workers:               DefaultWorkers,
	}
}

func (v *Values) Validate() error {
	if err := validateFormat(v.Format); err != nil {
		return err
	}
	if err := validateNonNegative("fail_on_increase_percent", v.FailOnIncreasePercent); err != nil {
		return err
	}
	return validateNonNegative("workers", v.Workers)
}

func (o Overrides) Apply(base Values) Values {
	resolved := base
	if o.Assembly != nil {
		resolved.Assembly = *o.Assembly
	}
	if len(o.ExcludeAssemblies) > 0 {
		resolved.ExcludeAssemblies = append([]string{}, o.ExcludeAssemblies...)
	}
	if o.Detailed != nil {
		resolved.Detailed = *o.Detailed
	}
	if o.Format != nil {
		resolved.Format = *o.Format
	}
	if o.FailOnIncreasePercent != nil {
		resolved.FailOnIncreasePercent = *o.FailOnIncreasePercent
	}
	if o.Workers != nil {
		resolved.Workers = *o.Workers
	}
	return resolved
}

func (o Overrides) Validate() error {
	if o.Format != nil {
		if err := validateFormat(*o.Format); err != nil {
			return err
		}
	}
	if err := validateOptionalInt("fail_on_increase_percent", o.FailOnIncreasePercent); err != nil {
		return err
	}
	return validateOptionalInt("workers", o.Workers)
}

// Merge layers higher over o.
func (o Overrides) Merge(higher Overrides) Overrides {
	merged := o
	if higher.Assembly != nil {
		merged.Assembly = higher.Assembly
	}
	if len(higher.ExcludeAssemblies) > 0 {
		merged.ExcludeAssemblies = append([]string{}, higher.ExcludeAssemblies...)
	}
	if higher.Detailed != nil {
		merged.Detailed = higher.Detailed
	}
	if higher.Format != nil {
		merged.Format = higher.Format
	}
	if higher.FailOnIncreasePercent != nil {
		merged.FailOnIncreasePercent = higher.FailOnIncreasePercent
	}
	if higher.Workers != nil {
		merged.Workers = higher.Workers
	}
	return merged
}

func validateFormat(value string) error {
	for _, known := range formatValues {
		if value == known {
			return nil
		}
	}
	return fmt.Errorf("invalid format: %q (must be one of: %s)", value, strings.Join(formatValues, ", "))
}

func validateNonNegative(name string, value int) error {
	if value < 0 {
		return fmt.Errorf("invalid %s: %d (must be >= 0)", name, value)
	}
	return nil
}

func validateOptionalInt(name string, value *int) error {
	if value == nil {
		return nil
	}
	return validateNonNegative(name, *value)
}
