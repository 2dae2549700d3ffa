package engine

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/mdsync/outline-sync/internal/changes"
	"github.com/mdsync/outline-sync/internal/frontmatter"
	"github.com/mdsync/outline-sync/internal/localfs"
	"github.com/mdsync/outline-sync/internal/parentconv"
	"github.com/mdsync/outline-sync/internal/pathmap"
	"github.com/mdsync/outline-sync/internal/remote"
	"github.com/mdsync/outline-sync/internal/state"
)

// PullEngine applies a remote ChangeSet to local disk, spec.md §4.9.
type PullEngine struct {
	Root        string
	Hierarchy   *remote.Hierarchy
	Assignment  pathmap.Assignment
	PrevMapping map[string]state.DocMapping
	Log         Logger
}

// PullOutcome records what happened to one pulled document.
type PullOutcome struct {
	DocID   string
	RelPath string
	Deleted bool
	Errored bool
}

// Run executes, in order: promotions, deleted docs, demotions, new docs,
// then updated docs (spec.md §4.9). Demotions (the other half of parent
// conversion) run after deletions but before creates that might reuse
// the restored filename, per spec.md §4.7.
func (e *PullEngine) Run(ctx context.Context, remoteSet changes.RemoteSet, promotions []parentconv.Promotion, demotions []string) []PullOutcome {
	var outcomes []PullOutcome

	e.runPromotions(promotions)
	outcomes = append(outcomes, e.runDeletes(remoteSet.DeletedDocs)...)
	e.runDemotions(demotions)
	outcomes = append(outcomes, e.runCreates(remoteSet.NewDocs)...)
	outcomes = append(outcomes, e.runUpdates(remoteSet.UpdatedDocs)...)

	return outcomes
}

func (e *PullEngine) runPromotions(promotions []parentconv.Promotion) {
	for _, p := range promotions {
		if _, err := parentconv.Promote(e.Root, p.FromRelPath, p.ToDirRel, p.DocID); err != nil {
			if e.Log != nil {
				e.Log.Logf("promote %s: %v\n", p.FromRelPath, err)
			}
		}
	}
}

func (e *PullEngine) runDemotions(folders []string) {
	for _, folder := range folders {
		if _, skipped, err := parentconv.Demote(e.Root, folder, e.Log); err != nil && !skipped {
			if e.Log != nil {
				e.Log.Logf("demote %s: %v\n", folder, err)
			}
		}
	}
}

func (e *PullEngine) runCreates(docs []remote.Doc) []PullOutcome {
	outcomes := make([]PullOutcome, len(docs))
	fns := make([]func() error, len(docs))
	used := map[string]bool{}

	for i, d := range docs {
		i, d := i, d
		fns[i] = func() error {
			relPath, ok := e.Assignment[d.ID]
			if !ok {
				outcomes[i] = PullOutcome{DocID: d.ID, Errored: true}
				return fmt.Errorf("pull create %s: no path assignment", d.ID)
			}
			relPath = dedupe(used, relPath)

			absP := absPath(e.Root, relPath)
			if err := os.MkdirAll(filepath.Dir(absP), 0o755); err != nil {
				outcomes[i] = PullOutcome{DocID: d.ID, Errored: true}
				return err
			}

			doc := &frontmatter.Doc{Body: localfs.CleanText(d.Text)}
			doc.Set(frontmatter.IDKey, frontMatterID(d))

			if err := os.WriteFile(absP, frontmatter.Serialize(doc), 0o644); err != nil {
				outcomes[i] = PullOutcome{DocID: d.ID, Errored: true}
				return err
			}
			if !d.UpdatedAt.IsZero() {
				os.Chtimes(absP, d.UpdatedAt, d.UpdatedAt)
			}

			outcomes[i] = PullOutcome{DocID: d.ID, RelPath: relPath}
			return nil
		}
	}

	runJobs(e.Log, "pull create", fns)
	return outcomes
}

// dedupe applies the same -2, -3 collision suffix rule as PathMapper
// when a freshly assigned path happens to already exist on disk,
// spec.md §4.9.2 "avoid overwrite."
func dedupe(used map[string]bool, relPath string) string {
	if !used[relPath] {
		used[relPath] = true
		return relPath
	}
	ext := path.Ext(relPath)
	base := relPath[:len(relPath)-len(ext)]
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d%s", base, n, ext)
		if !used[candidate] {
			used[candidate] = true
			return candidate
		}
	}
}

func (e *PullEngine) runUpdates(docs []remote.Doc) []PullOutcome {
	outcomes := make([]PullOutcome, len(docs))
	fns := make([]func() error, len(docs))

	for i, d := range docs {
		i, d := i, d
		fns[i] = func() error {
			prevPath := e.findLocalPath(d.ID, d.ShortID)
			if prevPath == "" {
				outcomes[i] = PullOutcome{DocID: d.ID, Errored: true}
				return fmt.Errorf("pull update %s: no local file found", d.ID)
			}

			info, err := os.Stat(absPath(e.Root, prevPath))
			if err != nil {
				outcomes[i] = PullOutcome{DocID: d.ID, Errored: true}
				return err
			}
			if info.ModTime().After(d.UpdatedAt) {
				// Staleness guard: local is newer, skip.
				outcomes[i] = PullOutcome{DocID: d.ID, RelPath: prevPath}
				return nil
			}

			newPath := e.Assignment[d.ID]
			if newPath == "" {
				newPath = prevPath
			}

			targetPath := prevPath
			if newPath != prevPath {
				if err := e.moveFile(prevPath, newPath); err != nil {
					outcomes[i] = PullOutcome{DocID: d.ID, Errored: true}
					return err
				}
				targetPath = newPath
			}

			if err := e.writeBody(targetPath, d); err != nil {
				outcomes[i] = PullOutcome{DocID: d.ID, Errored: true}
				return err
			}

			outcomes[i] = PullOutcome{DocID: d.ID, RelPath: targetPath}
			return nil
		}
	}

	runJobs(e.Log, "pull update", fns)
	return outcomes
}

// writeBody replaces a local file's body with the remote text
// (normalized through the cleaning hook) while preserving every
// front-matter key except id_outline, which is refreshed to the
// canonical/short form per spec.md §4.9.3.
func (e *PullEngine) writeBody(relPath string, d remote.Doc) error {
	absP := absPath(e.Root, relPath)
	content, err := os.ReadFile(absP)
	if err != nil {
		return err
	}
	doc := frontmatter.Parse(content)
	doc.Set(frontmatter.IDKey, frontMatterID(d))
	doc.Body = localfs.CleanText(d.Text)
	return os.WriteFile(absP, frontmatter.Serialize(doc), 0o644)
}

func (e *PullEngine) moveFile(from, to string) error {
	absTo := absPath(e.Root, to)
	if err := os.MkdirAll(filepath.Dir(absTo), 0o755); err != nil {
		return err
	}
	if err := os.Rename(absPath(e.Root, from), absTo); err != nil {
		return err
	}
	removeEmptyAncestors(e.Root, path.Dir(from))
	return nil
}

func (e *PullEngine) findLocalPath(id, shortID string) string {
	if m, ok := e.PrevMapping[id]; ok {
		return m.LocalPath
	}
	for _, m := range e.PrevMapping {
		if shortID != "" && m.ShortID == shortID {
			return m.LocalPath
		}
	}
	return ""
}

func (e *PullEngine) runDeletes(deleted []state.DocMapping) []PullOutcome {
	outcomes := make([]PullOutcome, len(deleted))
	fns := make([]func() error, len(deleted))

	for i, m := range deleted {
		i, m := i, m
		fns[i] = func() error {
			if m.LocalPath == "" {
				outcomes[i] = PullOutcome{DocID: m.ID, Deleted: true}
				return nil
			}
			absP := absPath(e.Root, m.LocalPath)
			if err := os.Remove(absP); err != nil && !os.IsNotExist(err) {
				outcomes[i] = PullOutcome{DocID: m.ID, Errored: true}
				return err
			}
			removeEmptyAncestors(e.Root, path.Dir(m.LocalPath))
			outcomes[i] = PullOutcome{DocID: m.ID, RelPath: m.LocalPath, Deleted: true}
			return nil
		}
	}

	runJobs(e.Log, "pull delete", fns)
	return outcomes
}

// removeEmptyAncestors walks up from dir toward (but not including) the
// sync root, removing directories left empty by a move or delete,
// spec.md §4.9.4.
func removeEmptyAncestors(root, dir string) {
	for dir != "." && dir != "/" && dir != "" {
		absDir := absPath(root, dir)
		entries, err := os.ReadDir(absDir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(absDir); err != nil {
			return
		}
		dir = path.Dir(dir)
	}
}
