package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ozanh/aeonc"
	. "github.com/ozanh/aeonc/config"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	opts := cfg.CompilerOptions()
	require.False(t, opts.DisableTailCalls)
	require.False(t, opts.DisableDeadCode)
	require.False(t, opts.TraceCompiler)
	require.Nil(t, opts.Trace)
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`
[build]
source-dirs = ["src", "lib"]
implicit-imports = ["std::prelude"]
tail-calls = false
trace = ["optimizer"]
log-level = "error"
`))
	require.NoError(t, err)
	require.Equal(t, []string{"src", "lib"}, cfg.SourceDirs)
	require.Equal(t, "build", cfg.OutputDir)
	require.Equal(t, []string{"std::prelude"}, cfg.ImplicitImports)
	require.NotNil(t, cfg.TailCalls)
	require.False(t, *cfg.TailCalls)
	require.True(t, *cfg.DeadCode)
	require.Equal(t, "error", cfg.LogLevel)

	opts := cfg.CompilerOptions()
	require.True(t, opts.DisableTailCalls)
	require.False(t, opts.DisableDeadCode)
	require.False(t, opts.TraceCompiler)
	require.True(t, opts.TraceOptimizer)
	require.Equal(t, os.Stdout, opts.Trace)
	require.Equal(t, []string{"std::prelude"}, opts.ImplicitImports)

	// defaults are not shared between configurations
	require.True(t, *Default().TailCalls)
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{"syntax", "[build\n"},
		{"unknown key", "[build]\noptimize = true\n"},
		{"wrong type", "[build]\ntail-calls = \"no\"\n"},
		{"log level", "[build]\nlog-level = \"loud\"\n"},
		{"trace unit", "[build]\ntrace = [\"parser\"]\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.input))
			require.Error(t, err)
		})
	}

	_, err := Parse([]byte("[build]\nlog-level = \"loud\"\n"))
	require.True(t, errors.Is(err, aeonc.ErrInvalidOption))
}

func TestMerge(t *testing.T) {
	cfg := Default()
	off := false
	require.NoError(t, cfg.Merge(&Config{DeadCode: &off, OutputDir: "out"}))
	require.False(t, *cfg.DeadCode)
	require.True(t, *cfg.TailCalls)
	require.Equal(t, "out", cfg.OutputDir)
	require.Equal(t, []string{"."}, cfg.SourceDirs)
	require.Equal(t, "verbose", cfg.LogLevel)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Find(dir)
	require.NoError(t, err)
	require.Equal(t, []string{dir}, cfg.SourceDirs)
	require.Equal(t, filepath.Join(dir, "build"), cfg.OutputDir)

	abs := filepath.Join(dir, "abs")
	data := "[build]\nsource-dirs = [\"src\", " + `"` + filepath.ToSlash(abs) + `"` + "]\noutput-dir = \"bin\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(data), 0644))

	cfg, err = Find(dir)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "src"), filepath.FromSlash(filepath.ToSlash(abs))}, cfg.SourceDirs)
	require.Equal(t, filepath.Join(dir, "bin"), cfg.OutputDir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("[build]\nx = 1\n"), 0644))
	_, err = Find(dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), FileName)
}

func TestTracing(t *testing.T) {
	cfg := Default()
	cfg.Trace = []string{"Compiler"}
	require.True(t, cfg.Tracing(TraceCompiler))
	require.False(t, cfg.Tracing(TraceOptimizer))
}
