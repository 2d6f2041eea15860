package config

import (
	"io"
	"os"
	"strings"

	"modernc.org/libqbe"
	"tlog.app/go/errors"
)

type Feature int

const (
	FeatInclude Feature = iota
	FeatLineMacro
	FeatArgCap
	FeatCount
)

type Warning int

const (
	WarnMacroRedefined Warning = iota
	WarnShadow
	WarnOverflow
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features     map[Feature]Info
	Warnings     map[Warning]Info
	FeatureMap   map[string]Feature
	WarningMap   map[string]Warning
	Target       string
	TargetArch   string
	WordSize     int
	MaxCallArgs  int
	IncludePaths []string
	Stderr       io.Writer
}

func NewConfig() *Config {
	cfg := &Config{
		FeatureMap:  make(map[string]Feature),
		WarningMap:  make(map[string]Warning),
		WordSize:    8,
		MaxCallArgs: 6,
		Stderr:      os.Stderr,
	}

	features := map[Feature]Info{
		FeatInclude:   {"include", true, "Allow `#include \"path\"` directives."},
		FeatLineMacro: {"line-macro", true, "Replace `__LINE__` with the line of its use site."},
		FeatArgCap:    {"arg-cap", true, "Reject calls with more arguments than the back end has argument registers."},
	}

	warnings := map[Warning]Info{
		WarnMacroRedefined: {"macro-redefined", true, "Warn when a macro is defined twice."},
		WarnShadow:         {"shadow", false, "Warn when a local variable shadows an outer one."},
		WarnOverflow:       {"overflow", true, "Warn when an integer constant is out of range for int."},
		WarnExtra:          {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

// SetTarget configures the compiler for a specific QBE target name.
// An empty target resolves to the host.
func (c *Config) SetTarget(goos, goarch, target string) error {
	if target == "" {
		target = libqbe.DefaultTarget(goos, goarch)
	}
	c.Target, c.TargetArch = target, goarch

	switch c.Target {
	case "amd64_sysv", "amd64_apple", "arm64", "arm64_apple", "rv64":
		c.WordSize = 8
	case "arm", "rv32":
		return errors.New("target '%s' is 32-bit; only 64-bit targets are supported", c.Target)
	default:
		return errors.New("unrecognized target '%s'", c.Target)
	}
	return nil
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// CallArgLimit is the maximum call arity, or 0 when unlimited.
func (c *Config) CallArgLimit() int {
	if !c.IsFeatureEnabled(FeatArgCap) {
		return 0
	}
	return c.MaxCallArgs
}

// ApplyFlag handles one -W or -F style flag. Unknown names are reported
// as an error so the command can print them.
func (c *Config) ApplyFlag(flag string) error {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
	default:
		return errors.New("unknown flag '%s'", flag)
	}
	if isNo {
		name = strings.TrimPrefix(name, "no-")
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, enable)
		}
		return nil
	}

	if isWarning {
		w, ok := c.WarningMap[name]
		if !ok {
			return errors.New("unknown warning '%s'", name)
		}
		c.SetWarning(w, enable)
		return nil
	}
	f, ok := c.FeatureMap[name]
	if !ok {
		return errors.New("unknown feature '%s'", name)
	}
	c.SetFeature(f, enable)
	return nil
}

// ProcessFlags applies -Wall/-Wno-all first so specific flags can override them.
func (c *Config) ProcessFlags(flags []string) error {
	for _, f := range flags {
		if f == "Wall" || f == "Wno-all" {
			if err := c.ApplyFlag("-" + f); err != nil {
				return err
			}
		}
	}
	for _, f := range flags {
		if f != "Wall" && f != "Wno-all" {
			if err := c.ApplyFlag("-" + f); err != nil {
				return err
			}
		}
	}
	return nil
}
