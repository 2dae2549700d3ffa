package parentconv

import (
	"path"

	"github.com/mdsync/outline-sync/internal/pathmap"
	"github.com/mdsync/outline-sync/internal/remote"
	"github.com/mdsync/outline-sync/internal/state"
)

// Promotion describes one file-to-folder conversion to perform.
type Promotion struct {
	DocID       string
	FromRelPath string
	ToDirRel    string
}

// Plan inspects the current Hierarchy against the previous run's
// document mapping and decides which local representations need to be
// promoted (file -> folder) or demoted (folder -> file), per spec.md
// §4.7's triggers. Promotions run before any pull creation/update;
// demotions run after deletions but before creation of a document that
// would reuse the restored filename (caller, internal/engine, enforces
// that ordering).
func Plan(h *remote.Hierarchy, prevMapping map[string]state.DocMapping) (promotions []Promotion, demotions []string) {
	for id, m := range prevMapping {
		if m.LocalPath == "" {
			continue
		}

		node := h.Lookup(id)

		if m.IsFolder {
			// Demote trigger: an index file whose document is either
			// gone from the hierarchy or no longer a parent.
			if node == nil || !node.IsParent {
				demotions = append(demotions, path.Dir(m.LocalPath))
			}
			continue
		}

		// Promote trigger: a non-index local file whose document has
		// gained children.
		if node != nil && node.IsParent {
			dir := path.Dir(m.LocalPath)
			toDirRel := pathmap.Sanitize(node.Doc.Title)
			if dir != "." {
				toDirRel = path.Join(dir, toDirRel)
			}
			promotions = append(promotions, Promotion{
				DocID:       id,
				FromRelPath: m.LocalPath,
				ToDirRel:    toDirRel,
			})
		}
	}

	return promotions, demotions
}
