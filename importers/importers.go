// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package importers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ozanh/aeonc"
	"github.com/ozanh/aeonc/ast"
)

// DefaultExt is the file extension of module sources.
const DefaultExt = ".yml"

// FileImporter is an implementation of aeonc.Importable to import module
// ASTs from the file system. Module `a::b` is read from `<WorkDir>/a/b.yml`.
type FileImporter struct {
	WorkDir string
	// Ext is the file extension, DefaultExt if empty.
	Ext string
	// FileReader reads the file, os.ReadFile if nil.
	FileReader func(string) ([]byte, error)
}

var _ aeonc.Importable = (*FileImporter)(nil)

// Path returns the absolute path of the source file of moduleName.
func (m *FileImporter) Path(moduleName string) string {
	ext := m.Ext
	if ext == "" {
		ext = DefaultExt
	}
	parts := strings.Split(moduleName, "::")
	path := filepath.Join(append([]string{m.WorkDir}, parts...)...) + ext
	if p, err := filepath.Abs(path); err == nil {
		path = p
	}
	return path
}

// Import implements aeonc.Importable. A missing file yields an error
// wrapping aeonc.ErrNoSource.
func (m *FileImporter) Import(moduleName string) (*ast.Module, error) {
	if moduleName == "" {
		return nil, errors.New("invalid import call")
	}
	for _, part := range strings.Split(moduleName, "::") {
		if part == "" || part == "." || part == ".." ||
			strings.ContainsAny(part, `/\`) {
			return nil, fmt.Errorf("invalid module name %q", moduleName)
		}
	}

	path := m.Path(moduleName)
	read := m.FileReader
	if read == nil {
		read = os.ReadFile
	}
	src, err := read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", aeonc.ErrNoSource, path)
		}
		return nil, err
	}
	mod, err := ast.LoadYAML(path, src)
	if err != nil {
		return nil, err
	}
	if mod.Name != moduleName {
		return nil, fmt.Errorf("%s: declares module %q, expected %q",
			path, mod.Name, moduleName)
	}
	return mod, nil
}

// SearchPath imports a module from the first directory that has its source.
// Directories are tried in order; only a missing source moves the search on.
type SearchPath struct {
	Dirs []string
	Ext  string
	// FileReader is passed to the FileImporter of every directory.
	FileReader func(string) ([]byte, error)
}

var _ aeonc.Importable = (*SearchPath)(nil)

// NewSearchPath returns a SearchPath over dirs with the default extension.
func NewSearchPath(dirs ...string) *SearchPath {
	return &SearchPath{Dirs: dirs}
}

// Import implements aeonc.Importable.
func (m *SearchPath) Import(moduleName string) (*ast.Module, error) {
	for _, dir := range m.Dirs {
		imp := &FileImporter{WorkDir: dir, Ext: m.Ext, FileReader: m.FileReader}
		mod, err := imp.Import(moduleName)
		if errors.Is(err, aeonc.ErrNoSource) {
			continue
		}
		return mod, err
	}
	return nil, fmt.Errorf("%w: %s in %s", aeonc.ErrNoSource, moduleName,
		strings.Join(m.Dirs, string(filepath.ListSeparator)))
}
