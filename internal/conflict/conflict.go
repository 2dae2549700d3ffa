// Package conflict identifies divergent edits between the local and
// remote change sets computed in Phase 2.
package conflict

import (
	"time"

	"github.com/mdsync/outline-sync/internal/changes"
	"github.com/mdsync/outline-sync/internal/remote"
)

// Kind distinguishes the two conflict categories spec.md §4.6 defines.
type Kind string

const (
	BidirectionalEdit Kind = "BidirectionalEdit"
	SimultaneousEdit  Kind = "SimultaneousEdit"
)

// SimultaneousWindow is the close-in-time threshold for SimultaneousEdit,
// spec.md §4.6 / §9 ("300 s").
const SimultaneousWindow = 300 * time.Second

// Conflict is a single divergent-edit report.
type Conflict struct {
	Kind            Kind
	Path            string
	ID              string
	LocalMtime      time.Time
	RemoteUpdatedAt time.Time
	LocalData       string
	RemoteData      string
	// Suggestion is derived from sign(LocalMtime - RemoteUpdatedAt)
	// when the gap exceeds SimultaneousWindow; "manual review" inside
	// the window, per spec.md §4.6.
	Suggestion string
}

func suggestion(localMtime, remoteUpdatedAt time.Time, window time.Duration) string {
	gap := localMtime.Sub(remoteUpdatedAt)
	if gap < 0 {
		gap = -gap
	}
	if gap <= window {
		return "manual review"
	}
	if localMtime.After(remoteUpdatedAt) {
		return "local is newer; consider keeping local and discarding the remote edit"
	}
	return "remote is newer; consider keeping remote and discarding the local edit"
}

// Detect applies spec.md §4.6's two rules with the default
// SimultaneousWindow. Callers that honor config.yaml's
// conflict_window_seconds should use DetectWithWindow instead.
func Detect(cs changes.ChangeSet) []Conflict {
	return DetectWithWindow(cs, SimultaneousWindow)
}

// DetectWithWindow applies spec.md §4.6's two rules against one
// ChangeSet's local and remote halves, using window as the
// SimultaneousEdit threshold. remoteUpdated indexes
// RemoteSet.UpdatedDocs by both id and shortId for O(1) lookup per
// local file: a file's stored id_outline may be either form (DESIGN.md
// OQ4), and spec.md §9 requires every equality test to consider both.
func DetectWithWindow(cs changes.ChangeSet, window time.Duration) []Conflict {
	remoteUpdated := make(map[string]remote.Doc, len(cs.Remote.UpdatedDocs)*2)
	for _, d := range cs.Remote.UpdatedDocs {
		remoteUpdated[d.ID] = d
		if d.ShortID != "" {
			remoteUpdated[d.ShortID] = d
		}
	}

	var out []Conflict

	// BidirectionalEdit: any potentialConflict file whose outlineId
	// also appears in remote updatedDocs, regardless of timestamps.
	flagged := make(map[string]bool)
	for _, f := range cs.Local.PotentialConflicts {
		if f.OutlineID == "" {
			continue
		}
		if doc, ok := remoteUpdated[f.OutlineID]; ok {
			out = append(out, Conflict{
				Kind:            BidirectionalEdit,
				Path:            f.RelPath,
				ID:              f.OutlineID,
				LocalMtime:      f.ModTime,
				RemoteUpdatedAt: doc.UpdatedAt,
				RemoteData:      doc.Text,
				Suggestion:      suggestion(f.ModTime, doc.UpdatedAt, window),
			})
			flagged[f.OutlineID] = true
		}
	}

	// SimultaneousEdit: a modifiedFile (not already flagged above)
	// whose outlineId appears in remote updatedDocs and whose
	// timestamps fall within the simultaneous-edit window.
	for _, f := range cs.Local.ModifiedFiles {
		if f.OutlineID == "" || flagged[f.OutlineID] {
			continue
		}
		doc, ok := remoteUpdated[f.OutlineID]
		if !ok {
			continue
		}
		gap := f.ModTime.Sub(doc.UpdatedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap < window {
			out = append(out, Conflict{
				Kind:            SimultaneousEdit,
				Path:            f.RelPath,
				ID:              f.OutlineID,
				LocalMtime:      f.ModTime,
				RemoteUpdatedAt: doc.UpdatedAt,
				RemoteData:      doc.Text,
				Suggestion:      suggestion(f.ModTime, doc.UpdatedAt, window),
			})
			flagged[f.OutlineID] = true
		}
	}

	return out
}
