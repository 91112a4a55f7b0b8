package aeonc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/ozanh/aeonc"
	"github.com/ozanh/aeonc/ast"
)

func TestDiagnostics(t *testing.T) {
	var ds Diagnostics
	require.False(t, ds.HasErrors())
	require.Zero(t, ds.Len())

	at := ast.Location{File: "main.yml", Line: 3, Column: 5}
	w := ds.Warnf(ThrowSignatureMismatch, "main", at, "%s never throws", "run")
	require.Equal(t, SeverityWarning, w.Severity)
	require.False(t, ds.HasErrors())

	e := ds.Errorf(TypeMismatch, "main", at, "expected %s", "Integer")
	require.Equal(t, SeverityError, e.Severity)
	require.Equal(t, "main.yml:3:5: error TypeMismatch: expected Integer", e.String())

	// always fatal kinds are escalated
	f := ds.Errorf(ModuleNotFound, "util", ast.Location{}, "no source")
	require.Equal(t, SeverityFatal, f.Severity)
	require.True(t, ModuleNotFound.Fatal())
	require.False(t, TypeMismatch.Fatal())

	require.True(t, ds.HasErrors())
	require.Equal(t, 3, ds.Len())
	require.Equal(t, []DiagnosticKind{ThrowSignatureMismatch, TypeMismatch, ModuleNotFound}, ds.Kinds())
	require.Equal(t, []*Diagnostic{w}, ds.Warnings())
	require.Equal(t, []*Diagnostic{e, f}, ds.Errors())
	require.Equal(t, []*Diagnostic{f}, ds.Since(2))
	require.Nil(t, ds.Since(3))

	require.True(t, ds.ModuleHas("main", SeverityError))
	require.False(t, ds.ModuleHas("main", SeverityFatal))
	require.True(t, ds.ModuleHas("util", SeverityFatal))
	require.False(t, ds.ModuleHas("other", SeverityWarning))

	all := ds.All()
	all[0] = nil
	require.Same(t, w, ds.All()[0])

	require.Equal(t,
		"main.yml:3:5: warning ThrowSignatureMismatch: run never throws\n"+
			"main.yml:3:5: error TypeMismatch: expected Integer\n"+
			"0:0: fatal ModuleNotFound: no source\n",
		ds.String())
}

func TestDiagnosticKindString(t *testing.T) {
	require.Equal(t, "AmbiguousDefaultMethod", AmbiguousDefaultMethod.String())
	require.Equal(t, "DiagnosticKind(99)", DiagnosticKind(99).String())
	require.Equal(t, "fatal", SeverityFatal.String())
	require.Equal(t, "unknown", Severity(9).String())
}
