package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGo(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestRunAcceptsMarkedQueries(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "q.go", "package q\n\nconst QOne = `--sql 8af00b35-6a33-4cd8-8a1a-e68a9c3b78d3\nselect 1;`\n\nconst Label = \"not sql\"\n")

	var stderr bytes.Buffer
	if code := run([]string{dir}, &stderr); code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, stderr.String())
	}
}

func TestRunReportsMissingAndDuplicateMarkers(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "a.go", "package q\n\nconst QA = `--sql 8af00b35-6a33-4cd8-8a1a-e68a9c3b78d3\nselect 1;`\n")
	writeGo(t, dir, "b.go", "package q\n\nconst QB = `--sql 8af00b35-6a33-4cd8-8a1a-e68a9c3b78d3\nupdate t set x = 1;`\n\nconst QC = `delete from t;`\n")

	var stderr bytes.Buffer
	if code := run([]string{dir}, &stderr); code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
	out := stderr.String()
	if !strings.Contains(out, "already used by QA") {
		t.Fatalf("duplicate not reported: %s", out)
	}
	if !strings.Contains(out, "missing or invalid --sql <uuid> marker (QC)") {
		t.Fatalf("missing marker not reported: %s", out)
	}
}

func TestRepositoryQueriesAreMarked(t *testing.T) {
	var stderr bytes.Buffer
	if code := run([]string{filepath.Join("..", "..", "sqlinline")}, &stderr); code != 0 {
		t.Fatalf("sqlinline violations:\n%s", stderr.String())
	}
}
