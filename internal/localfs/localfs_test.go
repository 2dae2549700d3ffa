package localfs

import (
	"os"
	"path/filepath"
	"testing"
)

type nopLogger struct{}

func (nopLogger) Logf(format string, args ...interface{}) (int, error) { return 0, nil }

func TestScanSkipsDotPathsAndSidecar(t *testing.T) {
	root := t.TempDir()
	write(t, root, "Hello.md", "---\nid_outline: A\n---\n\nhi\n")
	write(t, root, ".outline", "{}")
	write(t, root, ".git/config", "junk")
	write(t, root, "notes.txt", "not markdown")

	files, err := Scan(root, nopLogger{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := files["Hello.md"]; !ok {
		t.Fatalf("expected Hello.md in scan result: %v", files)
	}
	if len(files) != 1 {
		t.Fatalf("expected exactly one file, got %v", files)
	}
}

func TestScanFatalOnMissingRoot(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "missing"), nopLogger{})
	if err == nil {
		t.Fatal("expected IOError")
	}
	if _, ok := err.(*IOError); !ok {
		t.Fatalf("expected *IOError, got %T", err)
	}
}

func TestCleanTextCollapsesBlankRunsAndTrailingBackslash(t *testing.T) {
	in := "  line one\\\nline two\n\n\n\nline three  \n"
	got := CleanText(in)
	want := "line one\nline two\n\nline three"
	if got != want {
		t.Fatalf("CleanText = %q, want %q", got, want)
	}
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
