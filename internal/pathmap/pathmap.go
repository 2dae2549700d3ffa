// Package pathmap maps the remote document hierarchy onto local
// relative file paths.
package pathmap

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/mdsync/outline-sync/internal/localfs"
	"github.com/mdsync/outline-sync/internal/remote"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Sanitize replaces every character outside [A-Za-z0-9_-] with a single
// "-", trims leading/trailing "-", and falls back to "untitled" for an
// empty result. Case-preserving.
func Sanitize(title string) string {
	s := unsafeChars.ReplaceAllString(title, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "untitled"
	}
	return s
}

// Assignment is the id -> relPath mapping PathMapper produces.
type Assignment map[string]string

// Build computes the path assignment for every document in h,
// deterministically: roots and each node's children are visited in id
// ascending order (Hierarchy.Roots and Node.Children are kept sorted),
// so sibling name collisions always resolve the same
// way across reruns regardless of the order documents arrived from the
// remote listing.
func Build(h *remote.Hierarchy) Assignment {
	assign := make(Assignment, len(h.Docs()))
	used := make(map[string]map[string]bool) // parent dir -> taken names

	var place func(id, dir string)
	place = func(id, dir string) {
		node := h.Lookup(id)
		if node == nil {
			return
		}
		base := Sanitize(node.Doc.Title)

		if node.IsParent {
			name := uniqueName(used, dir, base)
			childDir := path.Join(dir, name)
			assign[id] = path.Join(childDir, localfs.IndexName)
			for _, c := range node.Children {
				place(c, childDir)
			}
			return
		}

		name := uniqueName(used, dir, base) + ".md"
		assign[id] = path.Join(dir, name)
	}

	for _, root := range h.Roots() {
		place(root, "")
	}

	return assign
}

// uniqueName returns base (or base-2, base-3, ...) such that it has not
// already been handed out under dir, and records the choice.
func uniqueName(used map[string]map[string]bool, dir, base string) string {
	taken, ok := used[dir]
	if !ok {
		taken = map[string]bool{}
		used[dir] = taken
	}

	if !taken[base] {
		taken[base] = true
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if !taken[candidate] {
			taken[candidate] = true
			return candidate
		}
	}
}
