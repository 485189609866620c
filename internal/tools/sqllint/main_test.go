package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGoFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLintAcceptsMarkedStatements(t *testing.T) {
	dir := t.TempDir()
	writeGoFile(t, dir, "q.go", "package q\n\nconst QOne = `--sql 11111111-2222-4333-8444-555555555555\nselect 1;\n`\n\nconst Label = \"not sql\"\n")

	l := &linter{seen: make(map[string]markerSite)}
	if err := l.lintPath(dir); err != nil {
		t.Fatalf("lintPath returned error: %v", err)
	}
	if len(l.violations) != 0 {
		t.Fatalf("unexpected violations: %v", l.violations)
	}
}

func TestLintFlagsMissingMarker(t *testing.T) {
	dir := t.TempDir()
	writeGoFile(t, dir, "q.go", "package q\n\nconst QBad = `\nupdate jobs set state = 'failed';\n`\n")

	l := &linter{seen: make(map[string]markerSite)}
	if err := l.lintPath(dir); err != nil {
		t.Fatalf("lintPath returned error: %v", err)
	}
	if len(l.violations) != 1 || l.violations[0].name != "QBad" {
		t.Fatalf("violations = %v, want one for QBad", l.violations)
	}
}

func TestLintFlagsDuplicateMarkersAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	marker := "--sql aaaaaaaa-bbbb-4ccc-8ddd-eeeeeeeeeeee"
	writeGoFile(t, dir, "a.go", "package q\n\nconst QA = `"+marker+"\nselect 1;\n`\n")
	writeGoFile(t, dir, "b.go", "package q\n\nconst QB = `"+marker+"\nselect 2;\n`\n")

	l := &linter{seen: make(map[string]markerSite)}
	if err := l.lintPath(dir); err != nil {
		t.Fatalf("lintPath returned error: %v", err)
	}
	if len(l.violations) != 1 {
		t.Fatalf("violations = %v, want exactly one duplicate", l.violations)
	}
	if !strings.Contains(l.violations[0].message, "already used by QA") {
		t.Fatalf("message = %q", l.violations[0].message)
	}
}

func TestLintSkipsTestsAndUnderscoreDirs(t *testing.T) {
	dir := t.TempDir()
	writeGoFile(t, dir, "q_test.go", "package q\n\nconst QT = `select 1;`\n")
	hidden := filepath.Join(dir, "_scratch")
	if err := os.Mkdir(hidden, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeGoFile(t, hidden, "q.go", "package q\n\nconst QH = `select 1;`\n")

	l := &linter{seen: make(map[string]markerSite)}
	if err := l.lintPath(dir); err != nil {
		t.Fatalf("lintPath returned error: %v", err)
	}
	if len(l.violations) != 0 {
		t.Fatalf("unexpected violations: %v", l.violations)
	}
}

func TestSQLInlineStatementsAreMarked(t *testing.T) {
	l := &linter{seen: make(map[string]markerSite)}
	if err := l.lintPath(filepath.Join("..", "..", "sqlinline")); err != nil {
		t.Fatalf("lintPath returned error: %v", err)
	}
	if len(l.violations) != 0 {
		t.Fatalf("sqlinline violations: %v", l.violations)
	}
}
