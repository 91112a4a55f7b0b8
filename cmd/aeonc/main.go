// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/ComedicChimera/olive"

	"github.com/ozanh/aeonc"
	"github.com/ozanh/aeonc/bytecode"
	"github.com/ozanh/aeonc/config"
	"github.com/ozanh/aeonc/importers"
	"github.com/ozanh/aeonc/internal/interp"
	"github.com/ozanh/aeonc/logging"
)

const (
	title   = "aeonc"
	version = "0.1.0"
	// outputExt is the extension of serialized modules.
	outputExt = ".aeonc"
)

func newCLI() *olive.Command {
	cli := olive.NewCLI(title, "aeonc compiles YAML module trees to VM bytecode", true)
	cli.AddSelectorArg("loglevel", "ll", "the compiler log level", false,
		logging.LevelNames).SetDefaultValue("verbose")

	buildCmd := cli.AddSubcommand("build", "compile a module and its imports", true)
	buildCmd.AddPrimaryArg("module", "the qualified name of the module to build", true)
	addBuildArgs(buildCmd)
	buildCmd.AddStringArg("output", "o", "the output directory", false)

	runCmd := cli.AddSubcommand("run", "compile a module and call one of its methods", true)
	runCmd.AddPrimaryArg("module", "the qualified name of the module to run", true)
	addBuildArgs(runCmd)
	runCmd.AddStringArg("method", "m", "the method to call", false).SetDefaultValue("main")

	inspectCmd := cli.AddSubcommand("inspect", "start the interactive inspector", true)
	inspectCmd.AddPrimaryArg("module", "a module to compile on start", false)
	inspectCmd.AddStringArg("config", "c", "the path to "+config.FileName, false)

	cli.AddSubcommand("version", "print the aeonc version", false)
	return cli
}

func addBuildArgs(cmd *olive.Command) {
	cmd.AddStringArg("config", "c", "the path to "+config.FileName, false)
	cmd.AddStringArg("trace", "t", "comma separated units: compiler,optimizer", false)
	cmd.AddFlag("no-tail-calls", "ntc", "disable tail call elimination")
	cmd.AddFlag("no-dead-code", "ndc", "disable dead code elimination")
}

// execute runs the command line args and returns the exit code.
func execute(args []string, out io.Writer) int {
	result, err := olive.ParseArgs(newCLI(), args)
	if err != nil {
		logging.PrintErrorMessage("CLI Usage Error", err)
		return 2
	}

	logger := logging.New(out, logging.ParseLevel(result.Arguments["loglevel"].(string)))
	logger.Progress = out == os.Stdout && hasMode(os.Stdout, os.ModeCharDevice)

	name, sub, _ := result.Subcommand()
	switch name {
	case "build":
		return exitCode(execBuild(sub, logger, out))
	case "run":
		return exitCode(execRun(sub, logger, out))
	case "inspect":
		return exitCode(execInspect(sub, out))
	case "version":
		fmt.Fprintf(out, "%s v%s %s %s/%s\n", title, version,
			runtime.Version(), runtime.GOOS, runtime.GOARCH)
	}
	return 0
}

func exitCode(ok bool) int {
	if ok {
		return 0
	}
	return 1
}

func stringArg(result *olive.ArgParseResult, name string) string {
	if v, ok := result.Arguments[name].(string); ok {
		return v
	}
	return ""
}

// loadConfig reads the configuration named by --config, or aeonc.toml in
// the working directory, and applies the command line overrides.
func loadConfig(result *olive.ArgParseResult) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := stringArg(result, "config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.Find(".")
	}
	if err != nil {
		return nil, err
	}

	override := &config.Config{OutputDir: stringArg(result, "output")}
	if trace := stringArg(result, "trace"); trace != "" {
		override.Trace = strings.Split(trace, ",")
	}
	off := false
	if result.HasFlag("no-tail-calls") {
		override.TailCalls = &off
	}
	if result.HasFlag("no-dead-code") {
		override.DeadCode = &off
	}
	if err := cfg.Merge(override); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// compile compiles name with the sources found in the configured
// directories and logs the diagnostics of the run.
func compile(cfg *config.Config, name string, logger *logging.Logger,
	trace io.Writer) (*aeonc.State, *aeonc.Module, bool) {

	opts := cfg.CompilerOptions()
	opts.ModuleMap = aeonc.NewModuleMap().
		SetExtImporter(importers.NewSearchPath(cfg.SourceDirs...))
	if opts.Trace != nil {
		opts.Trace = trace
	}

	logger.BeginPhase("Compiling")
	s := aeonc.NewState(opts)
	m, err := s.Compile(name)
	logger.LogAll(s.Diagnostics.All())
	if err != nil && !s.Diagnostics.HasErrors() {
		logger.LogError("Compile Error", err)
	}
	logger.EndPhase(err == nil)
	return s, m, err == nil
}

// outputPath returns the file module name is written to, a::b is stored
// as <dir>/a/b.aeonc.
func outputPath(dir, name string) string {
	parts := strings.Split(name, "::")
	return filepath.Join(append([]string{dir}, parts...)...) + outputExt
}

func writeModules(dir string, modules []*aeonc.Module) error {
	for _, m := range modules {
		if len(m.Bytes) == 0 {
			continue
		}
		path := outputPath(dir, m.Name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, m.Bytes, 0644); err != nil {
			return err
		}
	}
	return nil
}

// applyLevel lowers the log level to the configured one. The command line
// wins when it is quieter.
func applyLevel(logger *logging.Logger, cfg *config.Config) {
	if lvl := logging.ParseLevel(cfg.LogLevel); lvl < logger.Level {
		logger.Level = lvl
	}
}

func execBuild(result *olive.ArgParseResult, logger *logging.Logger, out io.Writer) bool {
	cfg, err := loadConfig(result)
	if err != nil {
		logger.LogError("Config Error", err)
		return logger.Finish()
	}
	applyLevel(logger, cfg)

	name, _ := result.PrimaryArg()
	s, _, ok := compile(cfg, name, logger, out)
	if ok {
		logger.BeginPhase("Writing")
		if err := writeModules(cfg.OutputDir, s.Modules()); err != nil {
			logger.LogError("Output Error", err)
		}
	}
	return logger.Finish()
}

func execRun(result *olive.ArgParseResult, logger *logging.Logger, out io.Writer) bool {
	cfg, err := loadConfig(result)
	if err != nil {
		logger.LogError("Config Error", err)
		return logger.Finish()
	}
	applyLevel(logger, cfg)

	name, _ := result.PrimaryArg()
	s, _, _ := compile(cfg, name, logger, out)
	if !logger.Finish() {
		return false
	}

	in := interp.New(compiledModules(s))
	in.Stdout = out
	v, err := in.Call(name, stringArg(result, "method"))
	if err != nil {
		var thrown *interp.ThrowError
		tag := "Runtime Error"
		if errors.As(err, &thrown) {
			tag = "Uncaught Throw"
		}
		logger.LogError(tag, err)
		return false
	}
	if v != nil {
		fmt.Fprintln(out, interp.Format(v))
	}
	return true
}

func compiledModules(s *aeonc.State) map[string]*bytecode.CompiledModule {
	mods := make(map[string]*bytecode.CompiledModule)
	for _, m := range s.Modules() {
		if m.Compiled != nil {
			mods[m.Name] = m.Compiled
		}
	}
	return mods
}

func execInspect(result *olive.ArgParseResult, out io.Writer) bool {
	cfg, err := loadConfig(result)
	if err != nil {
		logging.PrintErrorMessage("Config Error", err)
		return false
	}
	if !hasMode(os.Stdout, os.ModeCharDevice) {
		_, _ = fmt.Fprintln(os.Stderr, "not a terminal")
		return false
	}

	setTerminalTitle(title)
	start, _ := result.PrimaryArg()
	for {
		r := newInspector(cfg, out)
		if start != "" {
			_ = r.execute(".compile " + start)
		}
		err := r.run(strings.NewReader(history))
		switch err {
		case errReset:
			continue
		case nil, errExit:
			return true
		}
		_, _ = fmt.Fprintf(os.Stderr, "%+v\n", err)
		return false
	}
}

func hasMode(f *os.File, m os.FileMode) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&m == m
}

func setTerminalTitle(title string) {
	if runtime.GOOS == "windows" {
		return
	}
	title = strings.NewReplacer("\x13", "", "\x07", "").Replace(title)
	_, _ = os.Stdout.WriteString("\x1b]2;" + title + "\x07")
}

func main() {
	os.Exit(execute(os.Args, os.Stdout))
}
