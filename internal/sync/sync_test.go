package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mdsync/outline-sync/internal/frontmatter"
	"github.com/mdsync/outline-sync/internal/remote"
	"github.com/mdsync/outline-sync/internal/state"
)

// fakeGateway is an in-memory remote.Gateway, the same shape as
// internal/engine's, for driving the end-to-end scenarios in
// spec.md §8 (S1-S6) against a real temp-directory local tree.
type fakeGateway struct {
	docs    map[string]remote.Doc
	nextID  int
	creates []remote.Doc
	updates []remote.Doc
	deletes []string
}

func newFakeGateway(docs ...remote.Doc) *fakeGateway {
	g := &fakeGateway{docs: map[string]remote.Doc{}}
	for _, d := range docs {
		g.docs[d.ID] = d
	}
	return g
}

func (g *fakeGateway) ListCollections(ctx context.Context) ([]remote.Collection, error) {
	return []remote.Collection{{ID: "col1", Name: "Wiki"}}, nil
}

func (g *fakeGateway) ListDocuments(ctx context.Context, collectionID string) ([]remote.Doc, error) {
	var out []remote.Doc
	for _, d := range g.docs {
		out = append(out, d)
	}
	return out, nil
}

func (g *fakeGateway) CreateDocument(ctx context.Context, collectionID, title, text, parentID string) (remote.Doc, error) {
	g.nextID++
	d := remote.Doc{
		ID:        fmt.Sprintf("new-%d", g.nextID),
		Title:     title,
		Text:      text,
		ParentID:  parentID,
		UpdatedAt: time.Now(),
	}
	g.docs[d.ID] = d
	g.creates = append(g.creates, d)
	return d, nil
}

func (g *fakeGateway) UpdateDocument(ctx context.Context, id string, title, text, parentID *string) (remote.Doc, error) {
	d, ok := g.docs[id]
	if !ok {
		return remote.Doc{}, fmt.Errorf("no such document %s", id)
	}
	if title != nil {
		d.Title = *title
	}
	if text != nil {
		d.Text = *text
	}
	if parentID != nil {
		d.ParentID = *parentID
	}
	d.UpdatedAt = time.Now()
	g.docs[id] = d
	g.updates = append(g.updates, d)
	return d, nil
}

func (g *fakeGateway) DeleteDocument(ctx context.Context, id string) error {
	delete(g.docs, id)
	g.deletes = append(g.deletes, id)
	return nil
}

func writeFile(t *testing.T, root, relPath, content string, mtime time.Time) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(abs, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
}

// S1 - new remote document.
func TestE2ENewRemoteDocument(t *testing.T) {
	root := t.TempDir()
	gw := newFakeGateway(remote.Doc{ID: "A", Title: "Hello", Text: "hi", UpdatedAt: time.Now()})

	o := New(root, "col1", gw, nil)
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(root, "Hello.md"))
	if err != nil {
		t.Fatalf("Hello.md not written: %v", err)
	}
	doc := frontmatter.Parse(content)
	if doc.OutlineID() != "A" {
		t.Fatalf("id_outline = %q, want A", doc.OutlineID())
	}
	if doc.Body != "hi" {
		t.Fatalf("body = %q, want hi", doc.Body)
	}

	st := state.Load(root)
	if st.IsFirstRun {
		t.Fatal("sidecar should have been written")
	}
	if len(st.DocumentMapping) != 1 || st.DocumentMapping[0].LocalPath != "Hello.md" {
		t.Fatalf("unexpected mapping: %+v", st.DocumentMapping)
	}
}

// S2 - new local document; first run ships nothing, second run creates it.
func TestE2ENewLocalDocumentFirstRunSafety(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Note.md", "body", time.Time{})
	gw := newFakeGateway()

	o := New(root, "col1", gw, nil)
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(gw.creates) != 0 {
		t.Fatalf("first run must not push anything, got %d creates", len(gw.creates))
	}

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(gw.creates) != 1 {
		t.Fatalf("second run should create one remote doc, got %d", len(gw.creates))
	}
	if gw.creates[0].Title != "Note" || gw.creates[0].Text != "body" {
		t.Fatalf("unexpected created doc: %+v", gw.creates[0])
	}

	content, err := os.ReadFile(filepath.Join(root, "Note.md"))
	if err != nil {
		t.Fatal(err)
	}
	doc := frontmatter.Parse(content)
	if doc.OutlineID() != gw.creates[0].ID {
		t.Fatalf("front matter id = %q, want %q", doc.OutlineID(), gw.creates[0].ID)
	}
}

// S3 - promotion: a standalone file becomes a folder+index when its
// remote document gains a child.
func TestE2EPromotion(t *testing.T) {
	root := t.TempDir()
	now := time.Now().Add(-time.Hour)
	writeFile(t, root, "Topic.md", "---\nid_outline: T1\n---\n\nbody", now)

	gw := newFakeGateway(remote.Doc{ID: "T1", Title: "Topic", Text: "body", UpdatedAt: now})
	o := New(root, "col1", gw, nil)
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Remote gains a child of T1.
	gw.docs["S1"] = remote.Doc{ID: "S1", Title: "Sub", Text: "sub body", ParentID: "T1", UpdatedAt: time.Now()}

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "Topic.md")); !os.IsNotExist(err) {
		t.Fatalf("Topic.md should be gone after promotion, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "Topic", "README.md")); err != nil {
		t.Fatalf("Topic/README.md missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "Topic", "Sub.md")); err != nil {
		t.Fatalf("Topic/Sub.md missing: %v", err)
	}
}

// S4 - demotion: folder+index collapses back to a standalone file once
// its only child is removed remotely.
func TestE2EDemotion(t *testing.T) {
	root := t.TempDir()
	past := time.Now().Add(-time.Hour)
	writeFile(t, root, "Topic/README.md", "---\nid_outline: T1\n---\n\nbody", past)
	writeFile(t, root, "Topic/Sub.md", "---\nid_outline: S1\n---\n\nsub body", past)

	gw := newFakeGateway(
		remote.Doc{ID: "T1", Title: "Topic", Text: "body", UpdatedAt: past},
		remote.Doc{ID: "S1", Title: "Sub", Text: "sub body", ParentID: "T1", UpdatedAt: past},
	)
	o := New(root, "col1", gw, nil)
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	delete(gw.docs, "S1")

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "Topic", "Sub.md")); !os.IsNotExist(err) {
		t.Fatalf("Topic/Sub.md should be deleted, err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "Topic")); !os.IsNotExist(err) {
		t.Fatalf("Topic/ should have been demoted away, err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "Topic.md")); err != nil {
		t.Fatalf("Topic.md should exist after demotion: %v", err)
	}
}

// S5 - move: a locally renamed file becomes a parentId + title update.
func TestE2EMove(t *testing.T) {
	root := t.TempDir()
	past := time.Now().Add(-time.Hour)
	writeFile(t, root, "A/README.md", "---\nid_outline: A1\n---\n\n", past)
	writeFile(t, root, "A/X.md", "---\nid_outline: X1\n---\n\nx body", past)
	writeFile(t, root, "B/README.md", "---\nid_outline: B1\n---\n\n", past)

	gw := newFakeGateway(
		remote.Doc{ID: "A1", Title: "A", UpdatedAt: past},
		remote.Doc{ID: "X1", Title: "X", Text: "x body", ParentID: "A1", UpdatedAt: past},
		remote.Doc{ID: "B1", Title: "B", UpdatedAt: past},
	)
	o := New(root, "col1", gw, nil)
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// User moves A/X.md -> B/X.md on disk.
	if err := os.Rename(filepath.Join(root, "A", "X.md"), filepath.Join(root, "B", "X.md")); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(filepath.Join(root, "B", "X.md"), time.Now(), time.Now()); err != nil {
		t.Fatal(err)
	}

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	moved, ok := gw.docs["X1"]
	if !ok {
		t.Fatal("X1 should still exist remotely")
	}
	if moved.ParentID != "B1" {
		t.Fatalf("X1 parentId = %q, want B1", moved.ParentID)
	}
	if moved.Title != "X" {
		t.Fatalf("X1 title = %q, want X", moved.Title)
	}
}

// S6 - bidirectional edit halts the run without mutating either side.
func TestE2EBidirectionalEditHalts(t *testing.T) {
	root := t.TempDir()
	past := time.Now().Add(-time.Hour)
	writeFile(t, root, "Q.md", "---\nid_outline: Q1\n---\n\noriginal", past)

	gw := newFakeGateway(remote.Doc{ID: "Q1", Title: "Q", Text: "original", UpdatedAt: past})
	o := New(root, "col1", gw, nil)
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstSidecar, err := os.ReadFile(filepath.Join(root, ".outline"))
	if err != nil {
		t.Fatal(err)
	}

	// Both sides edit after lastSync: the remote 5 minutes after it, the
	// local file 10 minutes after it.
	lastSync := state.Load(root).LastSync
	gw.docs["Q1"] = remote.Doc{ID: "Q1", Title: "Q", Text: "remote edit", UpdatedAt: lastSync.Add(5 * time.Minute)}
	writeFile(t, root, "Q.md", "---\nid_outline: Q1\n---\n\nlocal edit", lastSync.Add(10*time.Minute))

	report, err := o.Run(context.Background())
	var cd *ConflictDetected
	if err == nil {
		t.Fatal("expected ConflictDetected")
	}
	if !asConflictDetected(err, &cd) {
		t.Fatalf("expected *ConflictDetected, got %T: %v", err, err)
	}
	if len(report.Conflicts) != 1 || report.Conflicts[0].Kind != "BidirectionalEdit" {
		t.Fatalf("unexpected conflicts: %+v", report.Conflicts)
	}

	// Neither side mutated: local body unchanged, remote doc unchanged,
	// sidecar unchanged.
	content, err := os.ReadFile(filepath.Join(root, "Q.md"))
	if err != nil {
		t.Fatal(err)
	}
	if frontmatter.Parse(content).Body != "local edit" {
		t.Fatalf("local file should be untouched by the halted run")
	}
	if gw.docs["Q1"].Text != "remote edit" {
		t.Fatalf("remote doc should be untouched by the halted run")
	}
	secondSidecar, err := os.ReadFile(filepath.Join(root, ".outline"))
	if err != nil {
		t.Fatal(err)
	}
	if string(firstSidecar) != string(secondSidecar) {
		t.Fatalf("sidecar must not be rewritten when Phase 3 halts the run")
	}
}

func asConflictDetected(err error, out **ConflictDetected) bool {
	cd, ok := err.(*ConflictDetected)
	if !ok {
		return false
	}
	*out = cd
	return true
}
