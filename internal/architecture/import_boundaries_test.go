package architecture_test

import (
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const modulePath = "github.com/rowmeta/rowmeta"

type layerRule struct {
	sourcePrefix string
	forbidden    []string
	hint         string
}

var architectureRules = []layerRule{
	{
		sourcePrefix: modulePath + "/internal/domain",
		forbidden: []string{
			modulePath + "/internal/api",
			modulePath + "/internal/cli",
			modulePath + "/internal/config",
			modulePath + "/internal/db",
			modulePath + "/internal/ddl",
			modulePath + "/internal/middleware",
			modulePath + "/internal/provision",
			modulePath + "/internal/rewrite",
			modulePath + "/cmd",
		},
		hint: "domain may only import domain",
	},
	{
		sourcePrefix: modulePath + "/internal/ddl",
		forbidden: []string{
			modulePath + "/internal/api",
			modulePath + "/internal/cli",
			modulePath + "/internal/config",
			modulePath + "/internal/db",
			modulePath + "/internal/middleware",
			modulePath + "/internal/provision",
			modulePath + "/internal/rewrite",
			modulePath + "/cmd",
		},
		hint: "ddl should depend on domain at most",
	},
	{
		sourcePrefix: modulePath + "/internal/rewrite",
		forbidden: []string{
			modulePath + "/internal/api",
			modulePath + "/internal/cli",
			modulePath + "/internal/config",
			modulePath + "/internal/db",
			modulePath + "/internal/ddl",
			modulePath + "/internal/middleware",
			modulePath + "/internal/provision",
			modulePath + "/cmd",
		},
		hint: "rewrite should depend on domain only",
	},
	{
		sourcePrefix: modulePath + "/internal/provision",
		forbidden: []string{
			modulePath + "/internal/api",
			modulePath + "/internal/cli",
			modulePath + "/internal/config",
			modulePath + "/internal/db",
			modulePath + "/internal/middleware",
			modulePath + "/cmd",
		},
		hint: "provision should depend on domain, ddl, and rewrite",
	},
	{
		sourcePrefix: modulePath + "/internal/db",
		forbidden: []string{
			modulePath + "/internal/api",
			modulePath + "/internal/cli",
			modulePath + "/internal/config",
			modulePath + "/internal/middleware",
			modulePath + "/internal/provision",
			modulePath + "/internal/rewrite",
			modulePath + "/cmd",
		},
		hint: "db should depend on domain and db-local packages",
	},
	{
		sourcePrefix: modulePath + "/internal/middleware",
		forbidden: []string{
			modulePath + "/internal/api",
			modulePath + "/internal/cli",
			modulePath + "/internal/config",
			modulePath + "/internal/db",
			modulePath + "/internal/provision",
			modulePath + "/internal/rewrite",
			modulePath + "/cmd",
		},
		hint: "middleware should depend on middleware-local packages",
	},
	{
		sourcePrefix: modulePath + "/internal/config",
		forbidden: []string{
			modulePath + "/internal/api",
			modulePath + "/internal/cli",
			modulePath + "/internal/db",
			modulePath + "/internal/middleware",
			modulePath + "/internal/provision",
			modulePath + "/internal/rewrite",
			modulePath + "/cmd",
		},
		hint: "config should depend on domain and ddl",
	},
	{
		sourcePrefix: modulePath + "/internal/api",
		forbidden: []string{
			modulePath + "/internal/cli",
			modulePath + "/internal/config",
			modulePath + "/internal/db",
			modulePath + "/cmd",
		},
		hint: "api should depend on domain, middleware, rewrite, and provision",
	},
}

func TestImportBoundaries(t *testing.T) {
	files, err := collectGoFiles(internalRootDir())
	require.NoError(t, err)
	require.NotEmpty(t, files, "no Go files found under internal")

	violations := make([]string, 0)
	fset := token.NewFileSet()

	for _, file := range files {
		if isTestFile(file) {
			continue
		}

		sourcePkg := packageImportPath(file)
		rule, ok := findRule(sourcePkg)
		if !ok {
			continue
		}

		parsed, parseErr := parser.ParseFile(fset, file, nil, parser.ImportsOnly)
		require.NoErrorf(t, parseErr, "parse imports for %s", file)

		for _, imp := range parsed.Imports {
			importPath := strings.Trim(imp.Path.Value, "\"")
			if !strings.HasPrefix(importPath, modulePath+"/") {
				continue
			}
			if violatesRule(importPath, rule.forbidden) {
				violations = append(violations,
					sourcePkg+" imports "+importPath+" via "+relToRepoRoot(file)+"; allowed direction: "+rule.hint,
				)
			}
		}
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		t.Fatalf("%s", strings.Join(violations, "\n"))
	}
}

func TestCommandsDependOnCLIOnly(t *testing.T) {
	files, err := collectGoFiles(filepath.Join(repoRootDir(), "cmd"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "no Go files found under cmd")

	fset := token.NewFileSet()
	for _, file := range files {
		parsed, parseErr := parser.ParseFile(fset, file, nil, parser.ImportsOnly)
		require.NoErrorf(t, parseErr, "parse imports for %s", file)

		for _, imp := range parsed.Imports {
			importPath := strings.Trim(imp.Path.Value, "\"")
			if !strings.HasPrefix(importPath, modulePath+"/") {
				continue
			}
			require.Equalf(t, modulePath+"/internal/cli", importPath,
				"%s should wire the binary through internal/cli", relToRepoRoot(file))
		}
	}
}

func collectGoFiles(root string) ([]string, error) {
	files := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".go") {
			files = append(files, filepath.ToSlash(path))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func repoRootDir() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "."
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}

func internalRootDir() string {
	return filepath.Join(repoRootDir(), "internal")
}

func findRule(sourcePkg string) (layerRule, bool) {
	for _, rule := range architectureRules {
		if hasPathPrefix(sourcePkg, rule.sourcePrefix) {
			return rule, true
		}
	}
	return layerRule{}, false
}

func violatesRule(importPath string, forbidden []string) bool {
	for _, prefix := range forbidden {
		if hasPathPrefix(importPath, prefix) {
			return true
		}
	}
	return false
}

func hasPathPrefix(value string, prefix string) bool {
	return value == prefix || strings.HasPrefix(value, prefix+"/")
}

func packageImportPath(file string) string {
	path := filepath.ToSlash(file)
	idx := strings.Index(path, "/internal/")
	if idx >= 0 {
		return modulePath + path[idx:idx+len("/internal/")] + strings.SplitN(path[idx+len("/internal/"):], "/", 2)[0]
	}
	return modulePath
}

func isTestFile(path string) bool {
	return strings.HasSuffix(filepath.Base(path), "_test.go")
}

func relToRepoRoot(path string) string {
	rel, err := filepath.Rel(repoRootDir(), path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
