package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInlineQueriesAreClean(t *testing.T) {
	violations, err := lintTargets([]string{"../../sqlinline"})
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	for _, v := range violations {
		t.Errorf("%s", v)
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLintFlagsBadQueries(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package q\n\n"+
		"const QNoMarker = `select 1 from video_jobs`\n\n"+
		"const QDollar = `--sql 11111111-2222-3333-4444-555555555555\nselect * from video_jobs where id = $1`\n\n"+
		"const QQuoted = `--sql 11111111-2222-3333-4444-666666666666\nselect '$1' from video_jobs where id = ?`\n")
	writeFile(t, dir, "b.go", "package q\n\n"+
		"const QDup = `--sql 11111111-2222-3333-4444-555555555555\nselect 2`\n\n"+
		"const NotSQL = \"hello\"\n")

	violations, err := lintTargets([]string{dir})
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	got := map[string]string{}
	for _, v := range violations {
		got[v.name] = v.message
	}
	if len(got) != 3 {
		t.Fatalf("violations = %v", violations)
	}
	if !strings.Contains(got["QNoMarker"], "marker") {
		t.Fatalf("QNoMarker: %q", got["QNoMarker"])
	}
	if !strings.Contains(got["QDollar"], "placeholders") {
		t.Fatalf("QDollar: %q", got["QDollar"])
	}
	if !strings.Contains(got["QDup"], "QDollar") {
		t.Fatalf("QDup: %q", got["QDup"])
	}
}
