package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/require"

	"github.com/ozanh/aeonc/bytecode"
	"github.com/ozanh/aeonc/config"
)

const mainSource = `
module: main
imports: [lib]
body:
  - kind: method
    name: main
    returns: Integer
    body:
      - kind: return
        value: {kind: send, receiver: lib, message: double, arguments: [21]}
`

const libSource = `
module: lib
body:
  - kind: method
    name: double
    arguments: [{name: x, type: Integer}]
    returns: Integer
    body:
      - kind: return
        value: {kind: send, receiver: x, message: "*", arguments: [2]}
`

const brokenSource = `
module: broken
body:
  - {kind: let, name: x, value: missing}
`

func init() {
	pterm.DisableColor()
}

// newProject writes a project with two source directories and returns the
// path of its configuration file.
func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"src/main.yml":   mainSource,
		"src/broken.yml": brokenSource,
		"vendor/lib.yml": libSource,
		config.FileName: `
[build]
source-dirs = ["src", "vendor"]
output-dir = "out"
`,
	}
	for name, data := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	}
	return filepath.Join(dir, config.FileName)
}

func TestBuild(t *testing.T) {
	cfgPath := newProject(t)
	dir := filepath.Dir(cfgPath)

	var out bytes.Buffer
	code := execute([]string{"aeonc", "build", "main", "--config=" + cfgPath}, &out)
	require.Equal(t, 0, code, out.String())
	require.Contains(t, out.String(), "Done Compiling")
	require.Contains(t, out.String(), "All done! (0 errors")

	for _, name := range []string{"main", "lib"} {
		data, err := os.ReadFile(filepath.Join(dir, "out", name+outputExt))
		require.NoError(t, err)
		mod, err := bytecode.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		require.NoError(t, mod.Validate())
	}

	// the command line can redirect the output
	other := filepath.Join(dir, "other")
	out.Reset()
	code = execute([]string{"aeonc", "build", "lib", "--config=" + cfgPath,
		"--output=" + other, "--loglevel=silent"}, &out)
	require.Equal(t, 0, code)
	require.Empty(t, out.String())
	require.FileExists(t, filepath.Join(other, "lib"+outputExt))
}

func TestBuildErrors(t *testing.T) {
	cfgPath := newProject(t)

	var out bytes.Buffer
	code := execute([]string{"aeonc", "build", "broken", "--config=" + cfgPath,
		"--loglevel=error"}, &out)
	require.Equal(t, 1, code)
	require.Contains(t, out.String(), "Name Error")
	require.Contains(t, out.String(), "Oh no! (1 error")
	require.NoFileExists(t, filepath.Join(filepath.Dir(cfgPath), "out", "broken"+outputExt))

	out.Reset()
	code = execute([]string{"aeonc", "build", "nowhere", "--config=" + cfgPath,
		"--loglevel=error"}, &out)
	require.Equal(t, 1, code)
	require.Contains(t, out.String(), "Compile Error")

	out.Reset()
	code = execute([]string{"aeonc", "build", "main", "--config=" + cfgPath,
		"--trace=parser", "--loglevel=error"}, &out)
	require.Equal(t, 1, code)
	require.Contains(t, out.String(), "Config Error")
}

func TestRun(t *testing.T) {
	cfgPath := newProject(t)

	var out bytes.Buffer
	code := execute([]string{"aeonc", "run", "main", "--config=" + cfgPath,
		"--loglevel=silent"}, &out)
	require.Equal(t, 0, code, out.String())
	require.Equal(t, "42\n", out.String())

	out.Reset()
	code = execute([]string{"aeonc", "run", "main", "--config=" + cfgPath,
		"--method=nope", "--loglevel=error"}, &out)
	require.Equal(t, 1, code)
	require.Contains(t, out.String(), "Runtime Error")
}

func TestTrace(t *testing.T) {
	cfgPath := newProject(t)

	var out bytes.Buffer
	code := execute([]string{"aeonc", "build", "lib", "--config=" + cfgPath,
		"--trace=optimizer", "--no-tail-calls", "--loglevel=silent"}, &out)
	require.Equal(t, 0, code)
	require.Contains(t, out.String(), "DeadCode")
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	require.Equal(t, 0, execute([]string{"aeonc", "version"}, &out))
	require.True(t, strings.HasPrefix(out.String(), "aeonc v"+version))
}

func TestOutputPath(t *testing.T) {
	require.Equal(t, filepath.Join("out", "a", "b"+outputExt), outputPath("out", "a::b"))
	require.Equal(t, filepath.Join("out", "main"+outputExt), outputPath("out", "main"))
}

func TestInspector(t *testing.T) {
	cfgPath := newProject(t)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	var out bytes.Buffer
	r := newInspector(cfg, &out)
	run := func(line string) string {
		t.Helper()
		out.Reset()
		require.NoError(t, r.execute(line))
		return out.String()
	}

	require.Contains(t, run(".commands"), ".compile")
	require.Equal(t, "[]\n", run(".modules"))
	require.Contains(t, run(".tir"), "no module compiled")
	require.Contains(t, run(".nope"), "unknown command .nope")

	require.Contains(t, run(".compile main"), "All done!")
	modules := run(".modules")
	require.Contains(t, modules, "main\tdone")
	require.Contains(t, modules, "lib\tdone")

	require.Contains(t, run(".tir"), "Code main")
	require.Contains(t, run(".tir lib"), "Code lib")
	require.Contains(t, run(".tir missing"), `unknown module "missing"`)
	require.NotEmpty(t, run(".bytecode"))
	require.Contains(t, run(".symbols"), "Name:lib")
	require.Contains(t, run(".types"), "Integer")
	require.Equal(t, "no diagnostics\n", run(".diagnostics"))

	require.Equal(t, "⇦   42\n", run(".call main"))
	require.Contains(t, run(".stats"), "Calls = ")
	require.Contains(t, run(".call nope"), "!   ")
	require.Contains(t, run(".call"), "usage")

	require.Contains(t, r.complete(".comp"), ".compile")
	require.Contains(t, r.complete(".tir l"), ".tir lib")

	// bare names compile
	require.Contains(t, run("broken"), "Oh no!")
	require.Contains(t, run(".diagnostics"), "UndefinedSymbol")
	require.Contains(t, run(".tir"), "last compilation failed")

	require.Equal(t, errReset, r.execute(".reset"))
	require.Equal(t, errExit, r.execute(".exit"))
}

func TestInspectorLoad(t *testing.T) {
	cfgPath := newProject(t)
	dir := filepath.Dir(cfgPath)
	var out bytes.Buffer
	require.Equal(t, 0, execute([]string{"aeonc", "build", "lib",
		"--config=" + cfgPath, "--loglevel=silent"}, &out))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	r := newInspector(cfg, &out)
	out.Reset()
	require.NoError(t, r.execute(".load "+filepath.Join(dir, "out", "lib"+outputExt)))
	require.Contains(t, out.String(), "double")

	out.Reset()
	require.NoError(t, r.execute(".load "+filepath.Join(dir, "missing")))
	require.True(t, strings.HasPrefix(out.String(), "!   "))
}

func TestParseValue(t *testing.T) {
	require.Equal(t, int64(3), parseValue("3"))
	require.Equal(t, 1.5, parseValue("1.5"))
	require.Equal(t, true, parseValue("true"))
	require.Nil(t, parseValue("nil"))
	require.Equal(t, "a b", parseValue(`"a b"`))
	require.Equal(t, "word", parseValue("word"))
}
