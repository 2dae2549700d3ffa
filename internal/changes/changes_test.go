package changes

import (
	"testing"
	"time"

	"github.com/mdsync/outline-sync/internal/localfs"
	"github.com/mdsync/outline-sync/internal/remote"
	"github.com/mdsync/outline-sync/internal/state"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestDetectLocalFirstRunIsEmptyRegardlessOfDisk(t *testing.T) {
	current := map[string]localfs.File{
		"a.md": {RelPath: "a.md", ModTime: t0.Add(time.Hour)},
		"b.md": {RelPath: "b.md", ModTime: t0.Add(time.Hour)},
	}
	out := DetectLocal(nil, true, t0, current)
	if len(out.NewFiles) != 0 || len(out.ModifiedFiles) != 0 || len(out.DeletedFiles) != 0 {
		t.Fatalf("expected empty delta on first run, got %+v", out)
	}
}

func TestDetectLocalNewFile(t *testing.T) {
	prev := map[string]localfs.File{}
	current := map[string]localfs.File{
		"a.md": {RelPath: "a.md", ModTime: t0.Add(time.Hour)},
	}
	out := DetectLocal(prev, false, t0, current)
	if len(out.NewFiles) != 1 {
		t.Fatalf("expected 1 new file, got %+v", out.NewFiles)
	}
}

func TestDetectLocalMove(t *testing.T) {
	prev := map[string]localfs.File{
		"A/X.md": {RelPath: "A/X.md", OutlineID: "X1", ModTime: t0},
	}
	current := map[string]localfs.File{
		"B/X.md": {RelPath: "B/X.md", OutlineID: "X1", ModTime: t0.Add(time.Hour)},
	}
	out := DetectLocal(prev, false, t0, current)
	if len(out.MovedFiles) != 1 {
		t.Fatalf("expected 1 moved file, got %+v", out)
	}
	mv := out.MovedFiles[0]
	if mv.FromPath != "A/X.md" || mv.ToPath != "B/X.md" || mv.ID != "X1" {
		t.Fatalf("unexpected move: %+v", mv)
	}
	if len(out.DeletedFiles) != 0 {
		t.Fatalf("move source should not also be reported deleted: %+v", out.DeletedFiles)
	}
}

func TestDetectLocalModifiedAndPotentialConflict(t *testing.T) {
	lastSync := t0.Add(30 * time.Minute)
	prev := map[string]localfs.File{
		"a.md": {RelPath: "a.md", OutlineID: "A1", ModTime: t0},
	}

	// Modified before lastSync: modified, not a conflict.
	current1 := map[string]localfs.File{
		"a.md": {RelPath: "a.md", OutlineID: "A1", ModTime: t0.Add(10 * time.Minute)},
	}
	out1 := DetectLocal(prev, false, lastSync, current1)
	if len(out1.ModifiedFiles) != 1 || len(out1.PotentialConflicts) != 0 {
		t.Fatalf("expected modified-only, got %+v", out1)
	}

	// Modified after lastSync: modified AND potential conflict.
	current2 := map[string]localfs.File{
		"a.md": {RelPath: "a.md", OutlineID: "A1", ModTime: lastSync.Add(10 * time.Minute)},
	}
	out2 := DetectLocal(prev, false, lastSync, current2)
	if len(out2.ModifiedFiles) != 1 || len(out2.PotentialConflicts) != 1 {
		t.Fatalf("expected modified+conflict, got %+v", out2)
	}
}

func TestDetectLocalNeverSyncedFileStaysNew(t *testing.T) {
	// A file the previous run's first-run-safety rule merely cataloged
	// (never pushed, so it still has no outlineId) must keep surfacing
	// as a newFile, even though it is already present in prev with an
	// unchanged mtime, until it actually gets synced.
	prev := map[string]localfs.File{
		"Note.md": {RelPath: "Note.md", ModTime: t0},
	}
	current := map[string]localfs.File{
		"Note.md": {RelPath: "Note.md", ModTime: t0},
	}
	out := DetectLocal(prev, false, t0, current)
	if len(out.NewFiles) != 1 {
		t.Fatalf("expected Note.md to still be new, got %+v", out)
	}
	if len(out.ModifiedFiles) != 0 {
		t.Fatalf("unsynced file must not be reported modified, got %+v", out.ModifiedFiles)
	}
}

func TestDetectLocalDeleted(t *testing.T) {
	prev := map[string]localfs.File{
		"a.md": {RelPath: "a.md", ModTime: t0},
	}
	current := map[string]localfs.File{}
	out := DetectLocal(prev, false, t0, current)
	if len(out.DeletedFiles) != 1 || out.DeletedFiles[0].RelPath != "a.md" {
		t.Fatalf("expected a.md deleted, got %+v", out.DeletedFiles)
	}
}

func TestDetectRemote(t *testing.T) {
	lastSync := t0
	prevMapping := map[string]state.DocMapping{
		"A": {ID: "A", LocalPath: "A.md"},
		"B": {ID: "B", LocalPath: "B.md"},
	}
	current := []remote.Doc{
		{ID: "A", UpdatedAt: t0.Add(-time.Hour)}, // unchanged
		{ID: "C", UpdatedAt: t0.Add(time.Hour)},  // new
		// B absent => deleted
	}
	out := DetectRemote(prevMapping, lastSync, current)
	if len(out.NewDocs) != 1 || out.NewDocs[0].ID != "C" {
		t.Fatalf("expected C as new, got %+v", out.NewDocs)
	}
	if len(out.UpdatedDocs) != 0 {
		t.Fatalf("expected no updates, got %+v", out.UpdatedDocs)
	}
	if len(out.DeletedDocs) != 1 || out.DeletedDocs[0].ID != "B" {
		t.Fatalf("expected B deleted, got %+v", out.DeletedDocs)
	}
}

func TestDetectRemoteUpdated(t *testing.T) {
	lastSync := t0
	prevMapping := map[string]state.DocMapping{"A": {ID: "A"}}
	current := []remote.Doc{{ID: "A", UpdatedAt: t0.Add(time.Hour)}}
	out := DetectRemote(prevMapping, lastSync, current)
	if len(out.UpdatedDocs) != 1 {
		t.Fatalf("expected A updated, got %+v", out)
	}
}
