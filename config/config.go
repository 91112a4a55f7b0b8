// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

// Package config loads project settings from an aeonc.toml file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/pelletier/go-toml"

	"github.com/ozanh/aeonc"
)

// FileName is the name of the project configuration file.
const FileName = "aeonc.toml"

// Trace units accepted in Config.Trace.
const (
	TraceCompiler  = "compiler"
	TraceOptimizer = "optimizer"
)

// Config is the [build] table of aeonc.toml. Unset fields take their
// values from Default.
type Config struct {
	// SourceDirs are searched in order for module sources. Relative paths
	// are resolved against the directory of the configuration file.
	SourceDirs []string `toml:"source-dirs"`
	// OutputDir receives the serialized modules.
	OutputDir       string   `toml:"output-dir"`
	ImplicitImports []string `toml:"implicit-imports"`
	TailCalls       *bool    `toml:"tail-calls"`
	DeadCode        *bool    `toml:"dead-code"`
	Trace           []string `toml:"trace"`
	// LogLevel is one of silent, error, warning or verbose.
	LogLevel string `toml:"log-level"`
}

type tomlFile struct {
	Build *Config `toml:"build"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		SourceDirs: []string{"."},
		OutputDir:  "build",
		TailCalls:  boolPtr(true),
		DeadCode:   boolPtr(true),
		LogLevel:   "verbose",
	}
}

func boolPtr(v bool) *bool { return &v }

// Parse decodes data and merges it over the defaults. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	var f tomlFile
	if err := toml.NewDecoder(bytes.NewReader(data)).Strict(true).Decode(&f); err != nil {
		return nil, err
	}
	cfg := Default()
	if f.Build != nil {
		if err := cfg.Merge(f.Build); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the configuration file at path. Relative source and output
// directories are made relative to the directory of path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.resolve(filepath.Dir(path))
	return cfg, nil
}

// Find loads FileName from dir. If the file does not exist the defaults are
// returned, resolved against dir.
func Find(dir string) (*Config, error) {
	cfg, err := Load(filepath.Join(dir, FileName))
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		cfg.resolve(dir)
		return cfg, nil
	}
	return cfg, err
}

func (c *Config) resolve(base string) {
	for i, dir := range c.SourceDirs {
		if !filepath.IsAbs(dir) {
			c.SourceDirs[i] = filepath.Join(base, dir)
		}
	}
	if c.OutputDir != "" && !filepath.IsAbs(c.OutputDir) {
		c.OutputDir = filepath.Join(base, c.OutputDir)
	}
}

// Merge overrides c with the fields set in other. Pointer fields are
// replaced rather than dereferenced, so an explicit false wins.
func (c *Config) Merge(other *Config) error {
	return mergo.Merge(c, other, mergo.WithOverride, mergo.WithoutDereference)
}

// Validate checks the enumerated fields.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "silent", "error", "warning", "verbose":
	default:
		return aeonc.ErrInvalidOption.NewError(
			fmt.Sprintf("log-level: unknown level %q", c.LogLevel))
	}
	for _, unit := range c.Trace {
		if unit != TraceCompiler && unit != TraceOptimizer {
			return aeonc.ErrInvalidOption.NewError(
				fmt.Sprintf("trace: unknown unit %q", unit))
		}
	}
	if len(c.SourceDirs) == 0 {
		return aeonc.ErrInvalidOption.NewError("source-dirs: at least one directory is required")
	}
	return nil
}

// Tracing reports whether unit is listed in Trace.
func (c *Config) Tracing(unit string) bool {
	for _, u := range c.Trace {
		if strings.EqualFold(u, unit) {
			return true
		}
	}
	return false
}

// CompilerOptions converts c into compiler options. The module map is left
// to the caller.
func (c *Config) CompilerOptions() aeonc.CompilerOptions {
	opts := aeonc.DefaultCompilerOptions
	opts.ImplicitImports = append([]string(nil), c.ImplicitImports...)
	opts.DisableTailCalls = c.TailCalls != nil && !*c.TailCalls
	opts.DisableDeadCode = c.DeadCode != nil && !*c.DeadCode
	opts.TraceCompiler = c.Tracing(TraceCompiler)
	opts.TraceOptimizer = c.Tracing(TraceOptimizer)
	if opts.TraceCompiler || opts.TraceOptimizer {
		opts.Trace = os.Stdout
	}
	return opts
}
