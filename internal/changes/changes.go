// Package changes computes local and remote deltas against the
// last-known sidecar state — the three-way diff at the heart of the
// reconciliation engine.
package changes

import (
	"time"

	"github.com/mdsync/outline-sync/internal/localfs"
	"github.com/mdsync/outline-sync/internal/remote"
	"github.com/mdsync/outline-sync/internal/state"
)

// MovedFile records a locally renamed/relocated file whose outlineId
// matches a previously known file at a different path.
type MovedFile struct {
	ID       string
	FromPath string
	ToPath   string
}

// LocalSet holds the local-side categories of one run's ChangeSet.
// NewFiles, ModifiedFiles, MovedFiles and DeletedFiles are disjoint;
// PotentialConflicts is the subset of ModifiedFiles changed after the
// last sync.
type LocalSet struct {
	NewFiles           []localfs.File
	ModifiedFiles      []localfs.File
	MovedFiles         []MovedFile
	DeletedFiles       []state.LocalFileSnapshot
	PotentialConflicts []localfs.File
}

// RemoteSet holds the remote-side categories of one run's ChangeSet.
type RemoteSet struct {
	NewDocs     []remote.Doc
	UpdatedDocs []remote.Doc
	// DeletedDocs carries the *previous* mapping entry, which still
	// knows the document's last localPath, for PullEngine.
	DeletedDocs []state.DocMapping
}

// ChangeSet is the full output of Phase 2.
type ChangeSet struct {
	Local  LocalSet
	Remote RemoteSet
}

// DetectLocal implements spec.md §4.5.1. prev is the previous run's
// local file snapshot (by path); current is this run's LocalScanner
// output; lastSync is prev.LastSync. If prev is empty because no
// sidecar existed (isFirstRun), an empty LocalSet is returned
// regardless of what is on disk — the cold-start safety rule in
// spec.md §4.5.1.
func DetectLocal(prev map[string]localfs.File, isFirstRun bool, lastSync time.Time, current map[string]localfs.File) LocalSet {
	var out LocalSet
	if isFirstRun {
		return out
	}

	matchedAsMoveSource := make(map[string]bool)

	// Index previous files by outline id for move detection.
	prevByID := make(map[string]string) // outlineId -> path
	for p, f := range prev {
		if f.OutlineID != "" {
			prevByID[f.OutlineID] = p
		}
	}

	for path, cur := range current {
		prevFile, existed := prev[path]

		// A path can be present in the previous scan yet never have
		// been pushed (outlineId still unset on both sides) if an
		// earlier run's first-run-safety rule persisted the baseline
		// without creating the remote document. Such a file keeps
		// surfacing as newFile, not modifiedFile, until it actually
		// syncs and picks up an id: mtime equality would otherwise
		// hide it from every subsequent run.
		neverSynced := existed && cur.OutlineID == "" && prevFile.OutlineID == ""

		if !existed || neverSynced {
			if cur.OutlineID != "" {
				if fromPath, ok := prevByID[cur.OutlineID]; ok && fromPath != path {
					out.MovedFiles = append(out.MovedFiles, MovedFile{
						ID:       cur.OutlineID,
						FromPath: fromPath,
						ToPath:   path,
					})
					matchedAsMoveSource[fromPath] = true
					continue
				}
			}
			out.NewFiles = append(out.NewFiles, cur)
			continue
		}

		if cur.ModTime.After(prevFile.ModTime) {
			out.ModifiedFiles = append(out.ModifiedFiles, cur)
			if cur.ModTime.After(lastSync) {
				out.PotentialConflicts = append(out.PotentialConflicts, cur)
			}
		}
	}

	for path, f := range prev {
		if matchedAsMoveSource[path] {
			continue
		}
		if _, stillThere := current[path]; !stillThere {
			out.DeletedFiles = append(out.DeletedFiles, state.FromLocalFile(f))
		}
	}

	return out
}

// DetectRemote implements spec.md §4.5.2.
func DetectRemote(prevMapping map[string]state.DocMapping, lastSync time.Time, current []remote.Doc) RemoteSet {
	var out RemoteSet

	seen := make(map[string]bool, len(current))
	for _, d := range current {
		seen[d.ID] = true
		prevEntry, existed := prevMapping[d.ID]
		if !existed {
			out.NewDocs = append(out.NewDocs, d)
			continue
		}
		_ = prevEntry
		if d.UpdatedAt.After(lastSync) {
			out.UpdatedDocs = append(out.UpdatedDocs, d)
		}
	}

	for id, m := range prevMapping {
		if !seen[id] {
			out.DeletedDocs = append(out.DeletedDocs, m)
		}
	}

	return out
}
