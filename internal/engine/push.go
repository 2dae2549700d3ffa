package engine

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/mdsync/outline-sync/internal/changes"
	"github.com/mdsync/outline-sync/internal/frontmatter"
	"github.com/mdsync/outline-sync/internal/localfs"
	"github.com/mdsync/outline-sync/internal/remote"
	"github.com/mdsync/outline-sync/internal/state"
)

// PushEngine applies a local ChangeSet to the remote collection,
// spec.md §4.8.
type PushEngine struct {
	Root         string
	CollectionID string
	Gateway      remote.Gateway
	Hierarchy    *remote.Hierarchy
	PrevMapping  map[string]state.DocMapping
	Log          Logger
	// Staleness overrides StalenessTolerance when non-zero, letting the
	// Orchestrator pass through config.yaml's staleness_tolerance_seconds.
	Staleness time.Duration
}

func (e *PushEngine) staleness() time.Duration {
	if e.Staleness > 0 {
		return e.Staleness
	}
	return StalenessTolerance
}

// PushOutcome records what happened to one pushed path, for the
// Orchestrator to fold into the next SyncState.
type PushOutcome struct {
	RelPath string
	DocID   string
	Deleted bool
	Errored bool
}

// Run executes creates, then updates, then moves, then deletes, in that
// order (spec.md §5 "within each engine... creates, updates, moves,
// deletes"). Each category runs its items with bounded concurrency;
// categories themselves are a barrier, so a move never races a delete
// of the same path's old parent.
func (e *PushEngine) Run(ctx context.Context, local changes.LocalSet) []PushOutcome {
	ctx = ctxOrBackground(ctx)
	var outcomes []PushOutcome

	outcomes = append(outcomes, e.runCreates(ctx, local.NewFiles)...)
	outcomes = append(outcomes, e.runUpdates(ctx, local.ModifiedFiles)...)
	outcomes = append(outcomes, e.runMoves(ctx, local.MovedFiles)...)
	outcomes = append(outcomes, e.runDeletes(ctx, local.DeletedFiles)...)

	return outcomes
}

// resolveParentID implements spec.md §4.8.1/§4.8.3: read the id_outline
// of the containing directory's index file; fall back to the previous
// mapping's localPath lookup; else the document is a root (empty id).
func (e *PushEngine) resolveParentID(relPath string) string {
	dir := path.Dir(relPath)
	if dir == "." || dir == "/" {
		return ""
	}

	indexRel := path.Join(dir, localfs.IndexName)
	if content, err := os.ReadFile(absPath(e.Root, indexRel)); err == nil {
		doc := frontmatter.Parse(content)
		if id := doc.OutlineID(); id != "" {
			return canonicalID(e.PrevMapping, id)
		}
	}

	for _, m := range e.PrevMapping {
		if m.LocalPath == indexRel || m.LocalPath == dir {
			return m.ID
		}
	}

	return ""
}

func (e *PushEngine) runCreates(ctx context.Context, files []localfs.File) []PushOutcome {
	outcomes := make([]PushOutcome, len(files))
	fns := make([]func() error, len(files))

	for i, f := range files {
		i, f := i, f
		fns[i] = func() error {
			content, err := os.ReadFile(absPath(e.Root, f.RelPath))
			if err != nil {
				outcomes[i] = PushOutcome{RelPath: f.RelPath, Errored: true}
				return err
			}
			body := frontmatter.Parse(content).Body

			parentID := e.resolveParentID(f.RelPath)
			title := titleFromPath(f.RelPath)

			doc, err := e.Gateway.CreateDocument(ctx, e.CollectionID, title, body, parentID)
			if err != nil {
				outcomes[i] = PushOutcome{RelPath: f.RelPath, Errored: true}
				return err
			}

			id := frontMatterID(doc)
			if err := writeFrontMatterID(e.Root, f.RelPath, id); err != nil {
				outcomes[i] = PushOutcome{RelPath: f.RelPath, Errored: true}
				return err
			}

			outcomes[i] = PushOutcome{RelPath: f.RelPath, DocID: doc.ID}
			return nil
		}
	}

	runJobs(e.Log, "push create", fns)
	return outcomes
}

func (e *PushEngine) runUpdates(ctx context.Context, files []localfs.File) []PushOutcome {
	outcomes := make([]PushOutcome, len(files))
	fns := make([]func() error, len(files))

	for i, f := range files {
		i, f := i, f
		fns[i] = func() error {
			id := canonicalID(e.PrevMapping, f.OutlineID)
			node := e.Hierarchy.LookupEither(id)
			if node == nil {
				outcomes[i] = PushOutcome{RelPath: f.RelPath, Errored: true}
				return fmt.Errorf("push update %s: remote document %s no longer exists", f.RelPath, id)
			}

			content, err := os.ReadFile(absPath(e.Root, f.RelPath))
			if err != nil {
				outcomes[i] = PushOutcome{RelPath: f.RelPath, Errored: true}
				return err
			}
			localBody := frontmatter.Parse(content).Body

			if node.Doc.UpdatedAt.After(f.ModTime.Add(e.staleness())) &&
				localfs.HashBody(localfs.CleanText(node.Doc.Text)) == localfs.HashBody(localfs.CleanText(localBody)) {
				outcomes[i] = PushOutcome{RelPath: f.RelPath, DocID: node.Doc.ID}
				return nil
			}

			title := titleFromPath(f.RelPath)
			doc, err := e.Gateway.UpdateDocument(ctx, node.Doc.ID, &title, &localBody, nil)
			if err != nil {
				outcomes[i] = PushOutcome{RelPath: f.RelPath, Errored: true}
				return err
			}
			outcomes[i] = PushOutcome{RelPath: f.RelPath, DocID: doc.ID}
			return nil
		}
	}

	runJobs(e.Log, "push update", fns)
	return outcomes
}

func (e *PushEngine) runMoves(ctx context.Context, moves []changes.MovedFile) []PushOutcome {
	outcomes := make([]PushOutcome, len(moves))
	fns := make([]func() error, len(moves))

	for i, mv := range moves {
		i, mv := i, mv
		fns[i] = func() error {
			id := canonicalID(e.PrevMapping, mv.ID)
			newParentID := e.resolveParentID(mv.ToPath)
			title := titleFromPath(mv.ToPath)

			doc, err := e.Gateway.UpdateDocument(ctx, id, &title, nil, &newParentID)
			if err != nil {
				outcomes[i] = PushOutcome{RelPath: mv.ToPath, Errored: true}
				return err
			}
			outcomes[i] = PushOutcome{RelPath: mv.ToPath, DocID: doc.ID}
			return nil
		}
	}

	runJobs(e.Log, "push move", fns)
	return outcomes
}

func (e *PushEngine) runDeletes(ctx context.Context, deleted []state.LocalFileSnapshot) []PushOutcome {
	var relevant []state.LocalFileSnapshot
	for _, f := range deleted {
		if f.OutlineID != "" {
			relevant = append(relevant, f)
		}
	}

	outcomes := make([]PushOutcome, len(relevant))
	fns := make([]func() error, len(relevant))

	for i, f := range relevant {
		i, f := i, f
		fns[i] = func() error {
			id := canonicalID(e.PrevMapping, f.OutlineID)
			if err := e.Gateway.DeleteDocument(ctx, id); err != nil {
				outcomes[i] = PushOutcome{RelPath: f.RelPath, Errored: true}
				return err
			}
			outcomes[i] = PushOutcome{RelPath: f.RelPath, DocID: id, Deleted: true}
			return nil
		}
	}

	runJobs(e.Log, "push delete", fns)
	return outcomes
}
