// Package parentconv converts between a standalone file and a
// folder-with-index-file representation when a remote document gains
// or loses children, reconciling the remote "documents can nest" model
// with the filesystem's "a name is either a file or a directory" model.
package parentconv

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mdsync/outline-sync/internal/frontmatter"
	"github.com/mdsync/outline-sync/internal/localfs"
)

// Logger receives a skip notice when a demotion is refused.
type Logger interface {
	Logf(format string, args ...interface{}) (int, error)
}

// Promote converts a standalone file at root/fromRelPath into
// root/toDirRelPath/README.md, creating toDirRelPath if needed and
// rewriting the front matter's id_outline to id. Returns the new
// relative path.
func Promote(root, fromRelPath, toDirRelPath, id string) (string, error) {
	absDir := filepath.Join(root, filepath.FromSlash(toDirRelPath))
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("promote %s: mkdir %s: %w", fromRelPath, toDirRelPath, err)
	}

	toRelPath := filepath.ToSlash(filepath.Join(toDirRelPath, localfs.IndexName))
	absFrom := filepath.Join(root, filepath.FromSlash(fromRelPath))
	absTo := filepath.Join(root, filepath.FromSlash(toRelPath))

	if err := os.Rename(absFrom, absTo); err != nil {
		return "", fmt.Errorf("promote %s: rename to %s: %w", fromRelPath, toRelPath, err)
	}

	if err := rewriteID(absTo, id); err != nil {
		return "", fmt.Errorf("promote %s: rewrite front matter: %w", toRelPath, err)
	}

	return toRelPath, nil
}

// Demote converts root/folderRelPath/README.md back into a standalone
// file root/<folderRelPath>.md, removing the now-empty directory. It
// refuses — never destructively — if the directory holds anything
// besides the index file, returning skipped=true and logging via log.
func Demote(root, folderRelPath string, log Logger) (newRelPath string, skipped bool, err error) {
	absDir := filepath.Join(root, filepath.FromSlash(folderRelPath))

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return "", false, fmt.Errorf("demote %s: %w", folderRelPath, err)
	}
	for _, e := range entries {
		if e.Name() != localfs.IndexName {
			if log != nil {
				log.Logf("skipping demotion of %s: directory holds %s besides the index file\n", folderRelPath, e.Name())
			}
			return "", true, nil
		}
	}

	newRelPath = folderRelPath + ".md"
	absFrom := filepath.Join(absDir, localfs.IndexName)
	absTo := filepath.Join(root, filepath.FromSlash(newRelPath))

	if err := os.Rename(absFrom, absTo); err != nil {
		return "", false, fmt.Errorf("demote %s: rename: %w", folderRelPath, err)
	}
	if err := os.Remove(absDir); err != nil {
		return "", false, fmt.Errorf("demote %s: rmdir: %w", folderRelPath, err)
	}

	return newRelPath, false, nil
}

func rewriteID(absPath, id string) error {
	content, err := os.ReadFile(absPath)
	if err != nil {
		return err
	}
	doc := frontmatter.Parse(content)
	updated := frontmatter.WithID(doc, id)
	return os.WriteFile(absPath, frontmatter.Serialize(updated), 0o644)
}
