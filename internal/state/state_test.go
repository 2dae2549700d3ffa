package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingIsFirstRun(t *testing.T) {
	s := Load(t.TempDir())
	if !s.IsFirstRun {
		t.Fatal("expected IsFirstRun for missing sidecar")
	}
}

func TestLoadMalformedIsFirstRun(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, SidecarName), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := Load(root)
	if !s.IsFirstRun {
		t.Fatal("expected IsFirstRun for malformed sidecar")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	now := time.Now().UTC().Truncate(time.Second)

	s := &SyncState{
		LastSync:     now,
		CollectionID: "col1",
		DocumentMapping: []DocMapping{
			{ID: "A", Title: "Hello", LocalPath: "Hello.md"},
		},
		LocalFiles: []LocalFileSnapshot{
			{RelPath: "Hello.md", ModTime: now, Size: 5, ContentHash: "abc"},
		},
	}

	if err := Save(root, s); err != nil {
		t.Fatal(err)
	}

	loaded := Load(root)
	if loaded.IsFirstRun {
		t.Fatal("did not expect IsFirstRun after a save")
	}
	if loaded.CollectionID != "col1" {
		t.Fatalf("collection id = %q", loaded.CollectionID)
	}
	if len(loaded.DocumentMapping) != 1 || loaded.DocumentMapping[0].ID != "A" {
		t.Fatalf("document mapping not preserved: %+v", loaded.DocumentMapping)
	}
	if !loaded.LastSync.Equal(now) {
		t.Fatalf("last sync = %v, want %v", loaded.LastSync, now)
	}
}

func TestLoadSavePreservesUnknownTopLevelKeys(t *testing.T) {
	root := t.TempDir()
	raw := `{"last_sync":"2026-01-01T00:00:00Z","collection_id":"col1","document_mapping":[],"local_files":[],"future_field":{"nested":true}}`
	if err := os.WriteFile(filepath.Join(root, SidecarName), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	s := Load(root)
	if s.IsFirstRun {
		t.Fatal("did not expect IsFirstRun for a well-formed sidecar")
	}
	if _, ok := s.Extra["future_field"]; !ok {
		t.Fatalf("expected future_field to survive into Extra, got %+v", s.Extra)
	}

	if err := Save(root, s); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(root, SidecarName))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"future_field"`) {
		t.Fatalf("expected future_field to round-trip through Save, got %s", data)
	}
}

func TestSaveLeavesNoTempFileBehind(t *testing.T) {
	root := t.TempDir()
	if err := Save(root, &SyncState{}); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != SidecarName {
		t.Fatalf("expected only the sidecar file, got %v", entries)
	}
}
